package webscrape

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	json "github.com/json-iterator/go"

	"github.com/cexwatch/cexwatch/internal/classify"
	"github.com/cexwatch/cexwatch/internal/model"
)

// extractAnnouncements runs the extraction cascade over fetched HTML.
// Each step is tried only when the previous one yielded nothing.
func extractAnnouncements(html, exchange string, now time.Time) []model.Announcement {
	if anns := extractAppState(html, exchange, now); len(anns) > 0 {
		return anns
	}
	if anns := extractHydration(html, exchange, now); len(anns) > 0 {
		return anns
	}
	if anns := extractJSONFragments(html, exchange, now); len(anns) > 0 {
		return anns
	}
	return extractTitleElements(html, exchange, now)
}

// appStatePatterns locate known global state variables embedded in script
// tags. The capture group is the JSON blob.
var appStatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)window\.__APP_DATA\s*=\s*(\{.*?\})\s*(?:;|</script>)`),
	regexp.MustCompile(`(?s)window\.__APP_STATE__\s*=\s*(\{.*?\})\s*(?:;|</script>)`),
	regexp.MustCompile(`(?s)window\.__INITIAL_STATE__\s*=\s*(\{.*?\})\s*(?:;|</script>)`),
}

// extractAppState locates an embedded global state variable and walks its
// JSON tree for an announcement array.
func extractAppState(html, exchange string, now time.Time) []model.Announcement {
	for _, pattern := range appStatePatterns {
		m := pattern.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		var state any
		if err := json.Unmarshal([]byte(m[1]), &state); err != nil {
			continue
		}
		if items := findAnnouncementArray(state); len(items) > 0 {
			return itemsToAnnouncements(items, exchange, now)
		}
	}
	return nil
}

// hydrationIDs are well-known hydration script tag ids.
var hydrationIDs = []string{"__NEXT_DATA__", "__NUXT_DATA__", "app-data"}

// extractHydration pulls the framework hydration payload out of its script
// tag and walks it the same way as app state.
func extractHydration(html, exchange string, now time.Time) []model.Announcement {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	for _, id := range hydrationIDs {
		raw := doc.Find("script#" + id).First().Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}
		var state any
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			continue
		}
		if items := findAnnouncementArray(state); len(items) > 0 {
			return itemsToAnnouncements(items, exchange, now)
		}
	}
	return nil
}

// fragmentPattern matches flat JSON objects containing a "title" key.
var fragmentPattern = regexp.MustCompile(`\{[^{}]*"title"\s*:\s*"[^"]+"[^{}]*\}`)

// extractJSONFragments scans the raw HTML for object-shaped fragments and
// parses each independently, skipping ones that fail.
func extractJSONFragments(html, exchange string, now time.Time) []model.Announcement {
	var items []map[string]any
	for _, frag := range fragmentPattern.FindAllString(html, -1) {
		var m map[string]any
		if err := json.Unmarshal([]byte(frag), &m); err != nil {
			continue
		}
		if title, _ := m["title"].(string); strings.TrimSpace(title) != "" {
			items = append(items, m)
		}
	}
	if len(items) == 0 {
		return nil
	}
	return itemsToAnnouncements(items, exchange, now)
}

// extractTitleElements is the lowest-fidelity step: any element whose
// class mentions "title" contributes its text as an announcement title.
func extractTitleElements(html, exchange string, now time.Time) []model.Announcement {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var anns []model.Announcement
	seen := make(map[string]struct{})
	doc.Find(`[class*="title"]`).Each(func(i int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Text())
		if title == "" || len(title) < 8 {
			return
		}
		if _, dup := seen[title]; dup {
			return
		}
		seen[title] = struct{}{}

		exchangeID := strconv.FormatInt(now.UnixMilli()+int64(len(seen)), 10)
		anns = append(anns, model.Announcement{
			ID:          exchange + "_" + exchangeID,
			Exchange:    exchange,
			ExchangeID:  exchangeID,
			Title:       title,
			Content:     model.PlaceholderContent,
			Category:    classify.Category(title),
			Importance:  classify.Importance(title),
			PublishTime: now.UnixMilli(),
			Tags:        classify.Tags(title),
			URL:         "https://www." + exchange + ".com",
		})
	})
	return anns
}

// arrayKeys is the priority order for the JSON-tree search: providers nest
// announcement arrays under these names most of the time, and checking
// them first avoids full-tree recursion.
var arrayKeys = []string{"list", "data", "announcements", "articles", "items"}

// findAnnouncementArray recursively searches a decoded JSON tree for an
// array of titled objects, preferring the well-known key names at each
// level before scanning remaining keys.
func findAnnouncementArray(v any) []map[string]any {
	switch node := v.(type) {
	case map[string]any:
		for _, key := range arrayKeys {
			child, ok := node[key]
			if !ok {
				continue
			}
			if items := titledArray(child); len(items) > 0 {
				return items
			}
			if items := findAnnouncementArray(child); len(items) > 0 {
				return items
			}
		}
		for key, child := range node {
			if isArrayKey(key) {
				continue
			}
			if items := findAnnouncementArray(child); len(items) > 0 {
				return items
			}
		}
	case []any:
		if items := titledArray(node); len(items) > 0 {
			return items
		}
		for _, child := range node {
			if items := findAnnouncementArray(child); len(items) > 0 {
				return items
			}
		}
	}
	return nil
}

func isArrayKey(key string) bool {
	for _, k := range arrayKeys {
		if k == key {
			return true
		}
	}
	return false
}

// titledArray returns the object elements of an array that carry a
// non-empty title, or nil when the value is not such an array.
func titledArray(v any) []map[string]any {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	var items []map[string]any
	for _, el := range arr {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		if title, _ := m["title"].(string); strings.TrimSpace(title) != "" {
			items = append(items, m)
		}
	}
	return items
}

// itemsToAnnouncements normalizes loosely-typed extracted objects with the
// same defaults as the structured API parsers.
func itemsToAnnouncements(items []map[string]any, exchange string, now time.Time) []model.Announcement {
	anns := make([]model.Announcement, 0, len(items))
	for i, item := range items {
		title, _ := item["title"].(string)
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}

		exchangeID := stringField(item, "id", "code", "articleId", "noticeId")
		if exchangeID == "" {
			exchangeID = strconv.FormatInt(now.UnixMilli()+int64(i), 10)
		}

		content := stringField(item, "body", "content", "brief", "description")
		if content == "" {
			content = model.PlaceholderContent
		}

		link := stringField(item, "url", "link")
		if link == "" {
			link = pageLink(exchange, item)
		}

		anns = append(anns, model.Announcement{
			ID:          exchange + "_" + exchangeID,
			Exchange:    exchange,
			ExchangeID:  exchangeID,
			Title:       title,
			Content:     content,
			Category:    classify.Category(title + " " + stringField(item, "catalogName", "annType", "type")),
			Importance:  classify.Importance(title + " " + content),
			PublishTime: timeField(item, now, "releaseDate", "publishTime", "pTime", "cTime"),
			Tags:        classify.Tags(title + " " + content),
			URL:         link,
		})
	}
	return anns
}

// stringField returns the first non-empty candidate field, stringifying
// numeric ids.
func stringField(item map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := item[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}

// timeField resolves the first parseable timestamp field to epoch millis,
// defaulting to now.
func timeField(item map[string]any, now time.Time, keys ...string) int64 {
	for _, key := range keys {
		switch v := item[key].(type) {
		case float64:
			ms := int64(v)
			if ms > 0 && ms < 1e12 {
				ms *= 1000
			}
			if ms > 0 {
				return ms
			}
		case string:
			if t, err := dateparse.ParseAny(v); err == nil {
				return t.UnixMilli()
			}
		}
	}
	return now.UnixMilli()
}

func pageLink(exchange string, item map[string]any) string {
	if exchange == model.ExchangeBinance {
		if code := stringField(item, "code"); code != "" {
			return "https://www.binance.com/zh-CN/support/announcement/" + code
		}
	}
	return "https://www." + exchange + ".com"
}
