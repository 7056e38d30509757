// Package enrich fills placeholder announcement content by fetching the
// original announcement page and extracting its readable text.
package enrich

import (
	"context"
	"log"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/cexwatch/cexwatch/internal/model"
	"github.com/cexwatch/cexwatch/internal/stealth"
)

// minTextLength guards against extracting boilerplate shells instead of
// the announcement body.
const minTextLength = 100

// Requester matches the stealth client's request surface.
type Requester interface {
	SmartRequest(ctx context.Context, rawURL string, opts *stealth.Options) (*stealth.Response, error)
}

// AnnouncementStore is the persistence surface enrichment needs.
type AnnouncementStore interface {
	GetAnnouncementsNeedingEnrich(limit int) ([]model.Announcement, error)
	UpdateContent(id, content string) error
	MarkEnrichAttempted(id string) error
}

// Result holds the results of an enrichment run.
type Result struct {
	Enriched int
	Failed   int
}

// Enricher fetches announcement pages through the stealth client and
// extracts readable text.
type Enricher struct {
	store  AnnouncementStore
	client Requester
}

// New creates an enricher.
func New(store AnnouncementStore, client Requester) *Enricher {
	return &Enricher{store: store, client: client}
}

// Run enriches up to limit announcements still carrying placeholder
// content. A domain that fails once is skipped for the rest of the run;
// exchange blocks apply host-wide, so further attempts only burn quota.
func (e *Enricher) Run(ctx context.Context, limit int) *Result {
	anns, err := e.store.GetAnnouncementsNeedingEnrich(limit)
	if err != nil {
		log.Printf("enrich: listing candidates failed: %v", err)
		return &Result{}
	}
	if len(anns) == 0 {
		log.Println("enrich: no announcements need content")
		return &Result{}
	}

	result := &Result{}
	failedDomains := make(map[string]struct{})

	for _, ann := range anns {
		domain := hostOf(ann.URL)
		if _, failed := failedDomains[domain]; failed {
			e.store.MarkEnrichAttempted(ann.ID)
			result.Failed++
			continue
		}

		content, err := e.fetchContent(ctx, ann)
		if err != nil {
			e.store.MarkEnrichAttempted(ann.ID)
			result.Failed++
			if domain != "" {
				failedDomains[domain] = struct{}{}
			}
			log.Printf("enrich: %s failed (%v), skipping remaining from %s", ann.URL, err, domain)
			continue
		}

		if content != "" {
			if err := e.store.UpdateContent(ann.ID, content); err != nil {
				log.Printf("enrich: saving content for %s failed: %v", ann.ID, err)
				result.Failed++
				continue
			}
			result.Enriched++
			log.Printf("enrich: filled content for %s", ann.Title)
		} else {
			e.store.MarkEnrichAttempted(ann.ID)
			result.Failed++
			log.Printf("enrich: no extractable content from %s", ann.URL)
		}
	}

	log.Printf("enrich: complete: %d enriched, %d failed", result.Enriched, result.Failed)
	return result
}

func (e *Enricher) fetchContent(ctx context.Context, ann model.Announcement) (string, error) {
	resp, err := e.client.SmartRequest(ctx, ann.URL, &stealth.Options{
		Exchange: ann.Exchange,
		Headers: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		},
	})
	if err != nil {
		return "", err
	}
	if stealth.LooksLikeBotPage(resp.StatusCode, resp.Body) {
		return "", nil
	}

	parsedURL, _ := url.Parse(ann.URL)
	article, err := readability.FromReader(strings.NewReader(string(resp.Body)), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > minTextLength {
		return text, nil
	}
	return "", nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u == nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
