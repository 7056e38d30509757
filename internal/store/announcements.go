package store

import (
	"database/sql"
	"fmt"
	"time"

	json "github.com/json-iterator/go"

	"github.com/cexwatch/cexwatch/internal/model"
)

// Filter narrows announcement queries. Zero values mean no constraint.
type Filter struct {
	Exchange   string
	Category   string
	Importance string
	Limit      int
}

const announcementColumns = `id, exchange, exchange_id, title, content,
	category, importance, publish_time, tags, url, synthetic`

// UpsertAnnouncement inserts or refreshes one announcement keyed on
// (exchange, exchange_id). Returns true when the row is new.
func (s *Store) UpsertAnnouncement(ann model.Announcement) (bool, error) {
	var existing int
	err := s.conn.QueryRow(
		"SELECT COUNT(*) FROM announcements WHERE exchange = ? AND exchange_id = ?",
		ann.Exchange, ann.ExchangeID,
	).Scan(&existing)
	if err != nil {
		return false, fmt.Errorf("checking existing announcement: %w", err)
	}

	tags, err := json.Marshal(ann.Tags)
	if err != nil {
		return false, fmt.Errorf("encoding tags: %w", err)
	}

	_, err = s.conn.Exec(`
INSERT INTO announcements (id, exchange, exchange_id, title, content,
	category, importance, publish_time, tags, url, synthetic)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (exchange, exchange_id) DO UPDATE SET
	title = excluded.title,
	content = excluded.content,
	category = excluded.category,
	importance = excluded.importance,
	publish_time = excluded.publish_time,
	tags = excluded.tags,
	url = excluded.url,
	synthetic = excluded.synthetic,
	updated_at = datetime('now')`,
		ann.ID, ann.Exchange, ann.ExchangeID, ann.Title, ann.Content,
		ann.Category, ann.Importance, ann.PublishTime, string(tags),
		ann.URL, boolToInt(ann.Synthetic),
	)
	if err != nil {
		return false, fmt.Errorf("upserting announcement %s: %w", ann.ID, err)
	}
	return existing == 0, nil
}

// GetAnnouncements returns announcements matching the filter, newest first.
func (s *Store) GetAnnouncements(f Filter) ([]model.Announcement, error) {
	query := "SELECT " + announcementColumns + " FROM announcements WHERE 1=1"
	var args []any
	if f.Exchange != "" {
		query += " AND exchange = ?"
		args = append(args, f.Exchange)
	}
	if f.Category != "" {
		query += " AND category = ?"
		args = append(args, f.Category)
	}
	if f.Importance != "" {
		query += " AND importance = ?"
		args = append(args, f.Importance)
	}
	query += " ORDER BY publish_time DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAnnouncements(rows)
}

// GetAnnouncementsNeedingEnrich returns live announcements still carrying
// placeholder content that haven't had an enrichment attempt.
func (s *Store) GetAnnouncementsNeedingEnrich(limit int) ([]model.Announcement, error) {
	query := "SELECT " + announcementColumns + ` FROM announcements
	WHERE content = ? AND content_enriched = 0 AND synthetic = 0 AND url != ''
	ORDER BY publish_time DESC`
	args := []any{model.PlaceholderContent}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAnnouncements(rows)
}

// UpdateContent replaces an announcement's content after enrichment.
func (s *Store) UpdateContent(id, content string) error {
	_, err := s.conn.Exec(
		"UPDATE announcements SET content = ?, content_enriched = 1, updated_at = datetime('now') WHERE id = ?",
		content, id,
	)
	return err
}

// MarkEnrichAttempted records that enrichment was tried and failed, so the
// row is not retried every run.
func (s *Store) MarkEnrichAttempted(id string) error {
	_, err := s.conn.Exec(
		"UPDATE announcements SET content_enriched = 1 WHERE id = ?", id,
	)
	return err
}

// Stats summarizes stored announcements for the status surfaces.
type Stats struct {
	Total       int            `json:"total"`
	ByExchange  map[string]int `json:"byExchange"`
	ByCategory  map[string]int `json:"byCategory"`
	Synthetic   int            `json:"synthetic"`
	NewestEpoch int64          `json:"newestEpoch"`
}

// GetStats computes aggregate counts over the announcements table.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{
		ByExchange: make(map[string]int),
		ByCategory: make(map[string]int),
	}

	err := s.conn.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(synthetic), 0), COALESCE(MAX(publish_time), 0) FROM announcements",
	).Scan(&stats.Total, &stats.Synthetic, &stats.NewestEpoch)
	if err != nil {
		return nil, err
	}

	if err := countsInto(s.conn, "exchange", stats.ByExchange); err != nil {
		return nil, err
	}
	if err := countsInto(s.conn, "category", stats.ByCategory); err != nil {
		return nil, err
	}
	return stats, nil
}

// RecordRun persists one aggregation run report.
func (s *Store) RecordRun(runID string, started time.Time, duration time.Duration, found, kept, created, updated int) error {
	_, err := s.conn.Exec(`
INSERT INTO scrape_runs (id, started_at, duration_ms, found, kept, created, updated)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, started.UTC().Format(time.RFC3339), duration.Milliseconds(),
		found, kept, created, updated,
	)
	return err
}

// Run is one persisted scrape run report.
type Run struct {
	ID         string `json:"id"`
	StartedAt  string `json:"startedAt"`
	DurationMS int64  `json:"durationMs"`
	Found      int    `json:"found"`
	Kept       int    `json:"kept"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
}

// GetRecentRuns returns the most recent scrape runs, newest first.
func (s *Store) GetRecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.conn.Query(
		`SELECT id, started_at, duration_ms, found, kept, created, updated
		FROM scrape_runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.DurationMS, &r.Found, &r.Kept, &r.Created, &r.Updated); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func countsInto(conn *sql.DB, column string, dst map[string]int) error {
	rows, err := conn.Query("SELECT " + column + ", COUNT(*) FROM announcements GROUP BY " + column)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		dst[key] = n
	}
	return rows.Err()
}

func scanAnnouncements(rows *sql.Rows) ([]model.Announcement, error) {
	var anns []model.Announcement
	for rows.Next() {
		var a model.Announcement
		var tags sql.NullString
		var synthetic int
		if err := rows.Scan(&a.ID, &a.Exchange, &a.ExchangeID, &a.Title, &a.Content,
			&a.Category, &a.Importance, &a.PublishTime, &tags, &a.URL, &synthetic); err != nil {
			return nil, err
		}
		a.Synthetic = synthetic != 0
		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &a.Tags); err != nil {
				return nil, fmt.Errorf("decoding tags for %s: %w", a.ID, err)
			}
		}
		anns = append(anns, a)
	}
	return anns, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
