package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/json-iterator/go"

	"github.com/cexwatch/cexwatch/internal/model"
	"github.com/cexwatch/cexwatch/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedAnnouncement(t *testing.T, s *store.Store, exchange, id, title, category string) {
	t.Helper()
	_, err := s.UpsertAnnouncement(model.Announcement{
		ID:          exchange + "_" + id,
		Exchange:    exchange,
		ExchangeID:  id,
		Title:       title,
		Content:     model.PlaceholderContent,
		Category:    category,
		Importance:  model.ImportanceMedium,
		PublishTime: time.Now().UnixMilli(),
		Tags:        []string{"listing"},
		URL:         "https://www." + exchange + ".com/announcement/" + id,
	})
	if err != nil {
		t.Fatalf("seeding announcement: %v", err)
	}
}

type fakeChecker struct {
	status map[string]bool
}

func (f *fakeChecker) HealthCheck(_ context.Context) map[string]bool {
	return f.status
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding response: %v\nbody: %s", err, rec.Body.String())
	}
	return env
}

func TestAnnouncementsRoute(t *testing.T) {
	st := openTestStore(t)
	seedAnnouncement(t, st, "binance", "1", "Binance Will List ABC", model.CategoryNewListings)
	seedAnnouncement(t, st, "okx", "2", "OKX Maintenance Notice", model.CategoryMaintenance)

	srv := New(st, nil)
	rec := get(t, srv, "/api/announcements")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Error("expected success envelope")
	}
	items, ok := env.Data.([]any)
	if !ok || len(items) != 2 {
		t.Errorf("expected 2 announcements, got %v", env.Data)
	}
}

func TestAnnouncementsFilterByExchange(t *testing.T) {
	st := openTestStore(t)
	seedAnnouncement(t, st, "binance", "1", "Binance Will List ABC", model.CategoryNewListings)
	seedAnnouncement(t, st, "okx", "2", "OKX Maintenance Notice", model.CategoryMaintenance)

	srv := New(st, nil)
	rec := get(t, srv, "/api/announcements?exchange=okx")

	env := decodeEnvelope(t, rec)
	items, ok := env.Data.([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected 1 announcement, got %v", env.Data)
	}
	first, _ := items[0].(map[string]any)
	if first["exchange"] != "okx" {
		t.Errorf("wrong exchange in filtered result: %v", first)
	}
}

func TestAnnouncementsRejectsBadLimit(t *testing.T) {
	srv := New(openTestStore(t), nil)

	for _, raw := range []string{"0", "-5", "9999", "abc"} {
		rec := get(t, srv, "/api/announcements?limit="+raw)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", raw, rec.Code)
		}
		env := decodeEnvelope(t, rec)
		if env.Success {
			t.Errorf("limit=%s: expected failure envelope", raw)
		}
	}
}

func TestStatsRoute(t *testing.T) {
	st := openTestStore(t)
	seedAnnouncement(t, st, "binance", "1", "Binance Will List ABC", model.CategoryNewListings)

	srv := New(st, nil)
	rec := get(t, srv, "/api/stats")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	data, _ := env.Data.(map[string]any)
	if data["total"] != float64(1) {
		t.Errorf("expected total 1, got %v", data["total"])
	}
}

func TestHealthRoute(t *testing.T) {
	srv := New(openTestStore(t), &fakeChecker{status: map[string]bool{
		"binance-api": true,
		"okx-api":     false,
	}})

	rec := get(t, srv, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	data, _ := env.Data.(map[string]any)
	strategies, _ := data["strategies"].(map[string]any)
	if strategies["binance-api"] != true || strategies["okx-api"] != false {
		t.Errorf("strategy health not passed through: %v", strategies)
	}
}

func TestDigestRoute(t *testing.T) {
	st := openTestStore(t)
	seedAnnouncement(t, st, "binance", "1", "Binance Will List ABC", model.CategoryNewListings)

	srv := New(st, nil)
	rec := get(t, srv, "/digest")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<h2") {
		t.Error("digest should render markdown headings as HTML")
	}
	if !strings.Contains(body, "Binance Will List ABC") {
		t.Error("digest missing seeded announcement")
	}
}

func TestRunsRoute(t *testing.T) {
	st := openTestStore(t)
	if err := st.RecordRun("run-1", time.Now(), time.Second, 5, 5, 5, 0); err != nil {
		t.Fatalf("recording run: %v", err)
	}

	srv := New(st, nil)
	rec := get(t, srv, "/api/runs")

	env := decodeEnvelope(t, rec)
	items, ok := env.Data.([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected 1 run, got %v", env.Data)
	}
}
