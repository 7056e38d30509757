package sources

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cexwatch/cexwatch/internal/model"
	"github.com/cexwatch/cexwatch/internal/stealth"
)

// mockRequester serves canned responses per URL and counts calls.
type mockRequester struct {
	responses map[string]*stealth.Response
	errs      map[string]error
	calls     map[string]int
}

func newMockRequester() *mockRequester {
	return &mockRequester{
		responses: make(map[string]*stealth.Response),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (m *mockRequester) SmartRequest(_ context.Context, rawURL string, _ *stealth.Options) (*stealth.Response, error) {
	m.calls[rawURL]++
	if err, ok := m.errs[rawURL]; ok {
		return nil, err
	}
	if resp, ok := m.responses[rawURL]; ok {
		return resp, nil
	}
	return nil, errors.New("no canned response")
}

func jsonResp(body string) *stealth.Response {
	return &stealth.Response{StatusCode: 200, Body: []byte(body)}
}

const cmsBody = `{"data":{"articles":[
	{"id":"1","title":"Binance Will List ABC (ABC)","releaseDate":"2024-01-01T00:00:00Z"},
	{"id":"2","title":"System Maintenance Notice","releaseDate":1704067200000}
]}}`

func testRegistry(req Requester, list []Source) *Registry {
	r := &Registry{client: req, sources: map[string][]Source{}}
	r.SetSources(model.ExchangeBinance, list)
	return r
}

func TestFetchShortCircuitsOnFirstHit(t *testing.T) {
	req := newMockRequester()
	req.responses["http://primary"] = jsonResp(cmsBody)
	req.responses["http://secondary"] = jsonResp(cmsBody)

	reg := testRegistry(req, []Source{
		{Name: "secondary", URL: "http://secondary", Priority: 50, Parse: parseJSONArticles(model.ExchangeBinance)},
		{Name: "primary", URL: "http://primary", Priority: 100, Parse: parseJSONArticles(model.ExchangeBinance)},
	})

	anns := reg.FetchAnnouncements(context.Background(), model.ExchangeBinance)
	if len(anns) != 2 {
		t.Fatalf("expected 2 announcements, got %d", len(anns))
	}
	if req.calls["http://primary"] != 1 {
		t.Errorf("primary called %d times", req.calls["http://primary"])
	}
	if req.calls["http://secondary"] != 0 {
		t.Errorf("lower-priority source must not be called after a hit, got %d calls", req.calls["http://secondary"])
	}
}

func TestFetchSkipsFailingSource(t *testing.T) {
	req := newMockRequester()
	req.errs["http://primary"] = errors.New("connection reset")
	req.responses["http://secondary"] = jsonResp(cmsBody)

	reg := testRegistry(req, []Source{
		{Name: "primary", URL: "http://primary", Priority: 100, Parse: parseJSONArticles(model.ExchangeBinance)},
		{Name: "secondary", URL: "http://secondary", Priority: 50, Parse: parseJSONArticles(model.ExchangeBinance)},
	})

	anns := reg.FetchAnnouncements(context.Background(), model.ExchangeBinance)
	if len(anns) != 2 {
		t.Fatalf("expected fallthrough to secondary, got %d announcements", len(anns))
	}
}

func TestFetchReturnsNilWhenAllFail(t *testing.T) {
	req := newMockRequester()
	req.errs["http://primary"] = errors.New("timeout")
	req.errs["http://secondary"] = errors.New("timeout")

	reg := testRegistry(req, []Source{
		{Name: "primary", URL: "http://primary", Priority: 100, Parse: parseJSONArticles(model.ExchangeBinance)},
		{Name: "secondary", URL: "http://secondary", Priority: 50, Parse: parseJSONArticles(model.ExchangeBinance)},
	})

	if anns := reg.FetchAnnouncements(context.Background(), model.ExchangeBinance); anns != nil {
		t.Errorf("expected nil on total failure, got %v", anns)
	}
}

func TestFetchRejectsBotPage(t *testing.T) {
	req := newMockRequester()
	req.responses["http://primary"] = &stealth.Response{StatusCode: 200, Body: []byte("<html>captcha</html>")}
	req.responses["http://secondary"] = jsonResp(cmsBody)

	reg := testRegistry(req, []Source{
		{Name: "primary", URL: "http://primary", Priority: 100, Parse: parseJSONArticles(model.ExchangeBinance)},
		{Name: "secondary", URL: "http://secondary", Priority: 50, Parse: parseJSONArticles(model.ExchangeBinance)},
	})

	anns := reg.FetchAnnouncements(context.Background(), model.ExchangeBinance)
	if len(anns) != 2 {
		t.Fatalf("expected bot page to be skipped, got %d announcements", len(anns))
	}
}

// End-to-end normalization of a CMS article per the documented defaults.
func TestParseArticlesCMSExample(t *testing.T) {
	anns, err := ParseArticles(model.ExchangeBinance, []byte(cmsBody), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(anns) != 2 {
		t.Fatalf("expected 2 announcements, got %d", len(anns))
	}

	a := anns[0]
	if a.ID != "binance_1" || a.ExchangeID != "1" {
		t.Errorf("unexpected id construction: %s / %s", a.ID, a.ExchangeID)
	}
	if a.Category != model.CategoryNewListings {
		t.Errorf("expected new-listings, got %s", a.Category)
	}
	if a.Importance != model.ImportanceHigh && a.Importance != model.ImportanceMedium {
		t.Errorf("expected high or medium importance, got %s", a.Importance)
	}
	if !containsTag(a.Tags, "ABC") {
		t.Errorf("expected ABC tag, got %v", a.Tags)
	}
	want, _ := time.Parse(time.RFC3339, "2024-01-01T00:00:00Z")
	if a.PublishTime != want.UnixMilli() {
		t.Errorf("publishTime = %d, want %d", a.PublishTime, want.UnixMilli())
	}
	if a.Content != model.PlaceholderContent {
		t.Errorf("missing content must default to placeholder, got %q", a.Content)
	}
	if a.Synthetic {
		t.Error("live parse must not be marked synthetic")
	}

	// Second article: numeric epoch-millis release date.
	if anns[1].PublishTime != 1704067200000 {
		t.Errorf("numeric releaseDate mishandled: %d", anns[1].PublishTime)
	}
}

func TestDecodeArticlesEnvelopes(t *testing.T) {
	article := `{"id":7,"title":"Notice"}`
	bodies := []string{
		`{"data":{"catalogs":[{"articles":[` + article + `]}]}}`,
		`{"data":{"articles":[` + article + `]}}`,
		`{"data":{"list":[` + article + `]}}`,
		`{"data":[` + article + `]}`,
		`{"articles":[` + article + `]}`,
		`{"list":[` + article + `]}`,
		`[` + article + `]`,
	}
	for _, body := range bodies {
		raws, err := decodeArticles([]byte(body))
		if err != nil {
			t.Errorf("envelope %s: %v", body, err)
			continue
		}
		if len(raws) != 1 || raws[0].Title != "Notice" || raws[0].ID.String() != "7" {
			t.Errorf("envelope %s decoded wrong: %+v", body, raws)
		}
	}

	if _, err := decodeArticles([]byte(`{"unrelated":true}`)); err == nil {
		t.Error("expected error for unknown envelope")
	}
}

func TestLooksLikeErrorPayload(t *testing.T) {
	if !LooksLikeErrorPayload([]byte(`{"code":"51000","msg":"parameter error"}`)) {
		t.Error("explicit error envelope not detected")
	}
	if LooksLikeErrorPayload([]byte(`{"code":"0","msg":"","data":[]}`)) {
		t.Error("success envelope misdetected as error")
	}
}

func TestParseRSS(t *testing.T) {
	rss := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Announcements</title>
<item>
  <title>OKX Will List XYZ for Spot Trading</title>
  <link>https://www.okx.com/help/xyz</link>
  <guid>notice-42</guid>
  <pubDate>Mon, 01 Jan 2024 00:00:00 GMT</pubDate>
  <description>XYZ spot trading opens soon.</description>
</item>
</channel></rss>`

	anns, err := parseRSS(model.ExchangeOKX)([]byte(rss), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(anns) != 1 {
		t.Fatalf("expected 1 announcement, got %d", len(anns))
	}
	a := anns[0]
	if a.ID != "okx_notice-42" {
		t.Errorf("unexpected id %s", a.ID)
	}
	if a.Category != model.CategoryNewListings {
		t.Errorf("expected new-listings, got %s", a.Category)
	}
	if a.PublishTime != 1704067200000 {
		t.Errorf("unexpected publish time %d", a.PublishTime)
	}
	if a.URL != "https://www.okx.com/help/xyz" {
		t.Errorf("unexpected url %s", a.URL)
	}
}

func TestDefaultRegistriesOrdered(t *testing.T) {
	reg := NewRegistry(newMockRequester())
	for _, exchange := range []string{model.ExchangeBinance, model.ExchangeOKX} {
		list := reg.Sources(exchange)
		if len(list) != 4 {
			t.Errorf("%s: expected 4 sources, got %d", exchange, len(list))
		}
		for i := 1; i < len(list); i++ {
			if list[i].Priority > list[i-1].Priority {
				t.Errorf("%s: sources not in priority order at %d", exchange, i)
			}
		}
	}
}

func containsTag(tags []string, want string) bool {
	for _, tag := range tags {
		if tag == want {
			return true
		}
	}
	return false
}

func TestParseArticlesDistinctFallbackIDs(t *testing.T) {
	body := []byte(`{"data":{"articles":[
		{"title":"First Notice Without ID"},
		{"title":"Second Notice Without ID"},
		{"title":"Third Notice Without ID"}
	]}}`)

	anns, err := ParseArticles(model.ExchangeBinance, body, time.Now())
	if err != nil {
		t.Fatalf("ParseArticles: %v", err)
	}
	if len(anns) != 3 {
		t.Fatalf("got %d announcements, want 3", len(anns))
	}

	seen := make(map[string]bool)
	for _, ann := range anns {
		if seen[ann.ExchangeID] {
			t.Fatalf("duplicate generated ExchangeID %q; id-less articles must not collide on the natural key", ann.ExchangeID)
		}
		seen[ann.ExchangeID] = true
	}
}
