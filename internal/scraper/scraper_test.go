package scraper

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/cexwatch/cexwatch/internal/model"
	"github.com/cexwatch/cexwatch/internal/stealth"
)

type fakeRegistry struct {
	anns  []model.Announcement
	calls int
}

func (r *fakeRegistry) FetchAnnouncements(_ context.Context, _ string) []model.Announcement {
	r.calls++
	return r.anns
}

func (r *fakeRegistry) Probe(_ context.Context, _ string) bool { return len(r.anns) > 0 }

type fakeWeb struct {
	anns  []model.Announcement
	calls int
}

func (w *fakeWeb) ScrapeExchange(_ context.Context, _ string) []model.Announcement {
	w.calls++
	return w.anns
}

func (w *fakeWeb) Probe(_ context.Context, _ string) bool { return len(w.anns) > 0 }

type fakeRequester struct {
	responses map[string]*stealth.Response
	errs      map[string]error
	calls     []string
}

func (f *fakeRequester) SmartRequest(_ context.Context, rawURL string, _ *stealth.Options) (*stealth.Response, error) {
	f.calls = append(f.calls, rawURL)
	if err, ok := f.errs[rawURL]; ok {
		return nil, err
	}
	if resp, ok := f.responses[rawURL]; ok {
		return resp, nil
	}
	return nil, &stealth.StatusError{Code: 404}
}

func testAnnouncement(exchange, id string) model.Announcement {
	return model.Announcement{
		ID:          exchange + "_" + id,
		Exchange:    exchange,
		ExchangeID:  id,
		Title:       "Will List Token " + id,
		Content:     model.PlaceholderContent,
		Category:    model.CategoryNewListings,
		Importance:  model.ImportanceMedium,
		PublishTime: time.Now().UnixMilli(),
		Tags:        []string{"listing"},
	}
}

func newTestScraper(exchange string, registry SourceRegistry, web PageScraper, client Requester) *ExchangeScraper {
	s := NewExchangeScraper(exchange, registry, web, client)
	s.rng = rand.New(rand.NewSource(1))
	s.sleep = func(time.Duration) {}
	return s
}

func TestScrapeRegistryShortCircuits(t *testing.T) {
	registry := &fakeRegistry{anns: []model.Announcement{testAnnouncement("binance", "1")}}
	web := &fakeWeb{}
	client := &fakeRequester{}

	s := newTestScraper(model.ExchangeBinance, registry, web, client)
	anns, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(anns) != 1 || anns[0].ID != "binance_1" {
		t.Fatalf("unexpected result %+v", anns)
	}
	if len(client.calls) != 0 {
		t.Errorf("legacy endpoints called %d times, want 0", len(client.calls))
	}
	if web.calls != 0 {
		t.Errorf("web scraper called %d times, want 0", web.calls)
	}
}

func TestScrapeFallsThroughToLegacy(t *testing.T) {
	primaryURL := legacyGroups(model.ExchangeBinance)[0].url
	body := []byte(`{"data":{"articles":[{"id":"77","title":"Binance Will List XYZ (XYZ)","releaseDate":1704067200000}]}}`)

	client := &fakeRequester{responses: map[string]*stealth.Response{
		primaryURL: {StatusCode: 200, Body: body},
	}}
	web := &fakeWeb{}

	s := newTestScraper(model.ExchangeBinance, &fakeRegistry{}, web, client)
	anns, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(anns) != 1 {
		t.Fatalf("got %d announcements, want 1", len(anns))
	}
	if anns[0].ID != "binance_77" {
		t.Errorf("ID = %q, want binance_77", anns[0].ID)
	}
	if anns[0].Category != model.CategoryNewListings {
		t.Errorf("Category = %q, want %q", anns[0].Category, model.CategoryNewListings)
	}
	if web.calls != 0 {
		t.Errorf("web scraper called after legacy success")
	}
}

func TestLegacyPausesBetweenGroups(t *testing.T) {
	groups := legacyGroups(model.ExchangeBinance)
	if len(groups) < 2 {
		t.Fatalf("binance needs at least two legacy groups")
	}
	body := []byte(`{"data":{"articles":[{"id":"5","title":"Notice","releaseDate":1704067200000}]}}`)

	client := &fakeRequester{
		errs:      map[string]error{groups[0].url: &stealth.StatusError{Code: 403}},
		responses: map[string]*stealth.Response{groups[1].url: {StatusCode: 200, Body: body}},
	}

	var pauses []time.Duration
	s := newTestScraper(model.ExchangeBinance, &fakeRegistry{}, &fakeWeb{}, client)
	s.sleep = func(d time.Duration) { pauses = append(pauses, d) }

	anns, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(anns) != 1 {
		t.Fatalf("got %d announcements, want 1", len(anns))
	}
	if len(pauses) != 1 {
		t.Fatalf("got %d pauses, want 1 between the two groups", len(pauses))
	}
	if pauses[0] < 2*time.Second || pauses[0] >= 4*time.Second {
		t.Errorf("pause %v outside [2s, 4s)", pauses[0])
	}
}

func TestLegacyRejectsErrorPayload(t *testing.T) {
	groups := legacyGroups(model.ExchangeOKX)
	client := &fakeRequester{responses: map[string]*stealth.Response{
		groups[0].url: {StatusCode: 200, Body: []byte(`{"code":50011,"msg":"Too Many Requests"}`)},
	}}

	s := newTestScraper(model.ExchangeOKX, &fakeRegistry{}, &fakeWeb{}, client)
	anns, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	for _, ann := range anns {
		if !ann.Synthetic {
			t.Fatalf("expected only fallback data, got live record %+v", ann)
		}
	}
}

func TestScrapeGracefulTotalFailure(t *testing.T) {
	client := &fakeRequester{errs: map[string]error{}}
	for _, grp := range legacyGroups(model.ExchangeBinance) {
		client.errs[grp.url] = &stealth.StatusError{Code: 403}
	}

	s := newTestScraper(model.ExchangeBinance, &fakeRegistry{}, &fakeWeb{}, client)
	anns, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape with fallback floor returned error: %v", err)
	}
	if len(anns) == 0 {
		t.Fatal("fallback floor returned no announcements")
	}
	for _, ann := range anns {
		if !ann.Synthetic {
			t.Errorf("fallback record %s not marked synthetic", ann.ID)
		}
		if ann.Exchange != model.ExchangeBinance {
			t.Errorf("fallback record %s has exchange %q", ann.ID, ann.Exchange)
		}
	}
}

func TestBestEffortScraperErrors(t *testing.T) {
	client := &fakeRequester{errs: map[string]error{}}
	for _, grp := range legacyGroups(model.ExchangeBybit) {
		client.errs[grp.url] = &stealth.StatusError{Code: 403}
	}

	s := NewBestEffortScraper(model.ExchangeBybit, client)
	s.sleep = func(time.Duration) {}

	if _, err := s.Scrape(context.Background()); err == nil {
		t.Fatal("best-effort scraper should error when every strategy fails")
	}
}

func TestStaticFallbackDatasets(t *testing.T) {
	now := time.Now()
	for _, exchange := range []string{model.ExchangeBinance, model.ExchangeOKX, model.ExchangeBybit, model.ExchangeHTX} {
		anns := StaticFallback(exchange, now)
		if len(anns) == 0 {
			t.Errorf("%s: empty fallback dataset", exchange)
		}
		for _, ann := range anns {
			if !ann.Synthetic {
				t.Errorf("%s: record %s not synthetic", exchange, ann.ID)
			}
			if ann.PublishTime >= now.UnixMilli() {
				t.Errorf("%s: record %s timestamped in the future", exchange, ann.ID)
			}
		}
	}
}
