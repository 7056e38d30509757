package sources

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	json "github.com/json-iterator/go"
	"github.com/mmcdole/gofeed"

	"github.com/cexwatch/cexwatch/internal/classify"
	"github.com/cexwatch/cexwatch/internal/model"
)

// rawArticle is the superset of fields observed across provider payloads.
// Every field is optional; normalization supplies defaults.
type rawArticle struct {
	ID          flexValue `json:"id"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Content     string    `json:"content"`
	Brief       string    `json:"brief"`
	Description string    `json:"description"`
	CatalogName string    `json:"catalogName"`
	AnnType     string    `json:"annType"`
	Type        string    `json:"type"`
	ReleaseDate flexValue `json:"releaseDate"`
	PublishTime flexValue `json:"publishTime"`
	PTime       flexValue `json:"pTime"`
	CTime       flexValue `json:"cTime"`
	URL         string    `json:"url"`
}

var errNoEnvelope = errors.New("no known response envelope matched")

// envelopeProbes are the known response shapes, most specific first.
// Providers change envelopes between deployments, so each shape gets an
// explicit decode attempt instead of optional-chaining guesswork.
var envelopeProbes = []func(body []byte) ([]rawArticle, bool){
	// {"data":{"catalogs":[{"articles":[...]}]}}
	func(body []byte) ([]rawArticle, bool) {
		var v struct {
			Data struct {
				Catalogs []struct {
					Articles []rawArticle `json:"articles"`
				} `json:"catalogs"`
			} `json:"data"`
		}
		if json.Unmarshal(body, &v) != nil {
			return nil, false
		}
		var all []rawArticle
		for _, c := range v.Data.Catalogs {
			all = append(all, c.Articles...)
		}
		return all, len(all) > 0
	},
	// {"data":{"articles":[...]}}
	func(body []byte) ([]rawArticle, bool) {
		var v struct {
			Data struct {
				Articles []rawArticle `json:"articles"`
			} `json:"data"`
		}
		if json.Unmarshal(body, &v) != nil {
			return nil, false
		}
		return v.Data.Articles, len(v.Data.Articles) > 0
	},
	// {"data":{"list":[...]}}
	func(body []byte) ([]rawArticle, bool) {
		var v struct {
			Data struct {
				List []rawArticle `json:"list"`
			} `json:"data"`
		}
		if json.Unmarshal(body, &v) != nil {
			return nil, false
		}
		return v.Data.List, len(v.Data.List) > 0
	},
	// {"data":[...]}
	func(body []byte) ([]rawArticle, bool) {
		var v struct {
			Data []rawArticle `json:"data"`
		}
		if json.Unmarshal(body, &v) != nil {
			return nil, false
		}
		return v.Data, len(v.Data) > 0
	},
	// {"articles":[...]}
	func(body []byte) ([]rawArticle, bool) {
		var v struct {
			Articles []rawArticle `json:"articles"`
		}
		if json.Unmarshal(body, &v) != nil {
			return nil, false
		}
		return v.Articles, len(v.Articles) > 0
	},
	// {"list":[...]}
	func(body []byte) ([]rawArticle, bool) {
		var v struct {
			List []rawArticle `json:"list"`
		}
		if json.Unmarshal(body, &v) != nil {
			return nil, false
		}
		return v.List, len(v.List) > 0
	},
	// {"result":{"list":[...]}} (bybit-style)
	func(body []byte) ([]rawArticle, bool) {
		var v struct {
			Result struct {
				List []rawArticle `json:"list"`
			} `json:"result"`
		}
		if json.Unmarshal(body, &v) != nil {
			return nil, false
		}
		return v.Result.List, len(v.Result.List) > 0
	},
	// bare [...]
	func(body []byte) ([]rawArticle, bool) {
		var v []rawArticle
		if json.Unmarshal(body, &v) != nil {
			return nil, false
		}
		return v, len(v) > 0
	},
}

// decodeArticles tries each known envelope shape in sequence and returns
// the first that yields articles.
func decodeArticles(body []byte) ([]rawArticle, error) {
	for _, probe := range envelopeProbes {
		if articles, ok := probe(body); ok {
			return articles, nil
		}
	}
	return nil, errNoEnvelope
}

// normalize converts a provider article into the unified announcement
// shape with the documented per-field defaults. idx keeps generated
// fallback IDs distinct when several articles in one response lack an id.
func normalize(raw rawArticle, idx int, exchange string, fetchedAt time.Time) model.Announcement {
	title := strings.TrimSpace(raw.Title)

	exchangeID := raw.ID.String()
	if exchangeID == "" {
		exchangeID = raw.Code
	}
	if exchangeID == "" {
		exchangeID = fmt.Sprintf("%d", fetchedAt.UnixMilli()+int64(idx))
	}

	content := firstNonEmpty(raw.Body, raw.Content, raw.Brief, raw.Description)
	if strings.TrimSpace(content) == "" {
		content = model.PlaceholderContent
	}

	categoryText := strings.Join([]string{raw.CatalogName, raw.AnnType, raw.Type, title}, " ")

	return model.Announcement{
		ID:          exchange + "_" + exchangeID,
		Exchange:    exchange,
		ExchangeID:  exchangeID,
		Title:       title,
		Content:     content,
		Category:    classify.Category(categoryText),
		Importance:  classify.Importance(title + " " + content),
		PublishTime: parsePublishTime(fetchedAt, raw.ReleaseDate, raw.PublishTime, raw.PTime, raw.CTime),
		Tags:        classify.Tags(title + " " + content),
		URL:         announcementURL(exchange, raw),
		Synthetic:   false,
	}
}

// parsePublishTime resolves the first usable timestamp candidate. Numeric
// values are epoch millis (or seconds when too small); strings go through
// dateparse. Missing or unparseable values default to the fetch time.
func parsePublishTime(fetchedAt time.Time, candidates ...flexValue) int64 {
	for _, c := range candidates {
		s := c.String()
		if s == "" {
			continue
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			if ms > 0 && ms < 1e12 {
				ms *= 1000 // epoch seconds
			}
			if ms > 0 {
				return ms
			}
			continue
		}
		if t, err := dateparse.ParseAny(s); err == nil {
			return t.UnixMilli()
		}
	}
	return fetchedAt.UnixMilli()
}

// announcementURL returns the provider URL, or reconstructs a deep link
// from ID/code fields using the exchange's known URL template.
func announcementURL(exchange string, raw rawArticle) string {
	if raw.URL != "" {
		return raw.URL
	}
	switch exchange {
	case model.ExchangeBinance:
		if raw.Code != "" {
			return "https://www.binance.com/zh-CN/support/announcement/" + raw.Code
		}
	case model.ExchangeOKX:
		if id := raw.ID.String(); id != "" {
			return "https://www.okx.com/zh-hans/help/" + id
		}
	}
	return "https://www." + exchange + ".com"
}

// ParseArticles decodes a structured API response through the known
// envelope shapes and normalizes every titled article. Shared by the
// registry sources and the orchestrator's legacy-endpoint path.
func ParseArticles(exchange string, body []byte, fetchedAt time.Time) ([]model.Announcement, error) {
	raws, err := decodeArticles(body)
	if err != nil {
		return nil, err
	}
	anns := make([]model.Announcement, 0, len(raws))
	for i, raw := range raws {
		if strings.TrimSpace(raw.Title) == "" {
			continue
		}
		anns = append(anns, normalize(raw, i, exchange, fetchedAt))
	}
	return anns, nil
}

// LooksLikeErrorPayload reports whether a 200-status body is actually an
// explicit provider error envelope ({"code":"51000","msg":...}).
func LooksLikeErrorPayload(body []byte) bool {
	var v struct {
		Code flexValue `json:"code"`
		Msg  string    `json:"msg"`
	}
	if json.Unmarshal(body, &v) != nil {
		return false
	}
	code := v.Code.String()
	return v.Msg != "" && code != "" && code != "0" && code != "200"
}

// parseJSONArticles is the Parse implementation shared by all structured
// API sources.
func parseJSONArticles(exchange string) func(body []byte, fetchedAt time.Time) ([]model.Announcement, error) {
	return func(body []byte, fetchedAt time.Time) ([]model.Announcement, error) {
		return ParseArticles(exchange, body, fetchedAt)
	}
}

// parseRSS is the Parse implementation for feed-format last-resort
// sources. Feeds carry less metadata, so category and tags come from the
// title and description alone.
func parseRSS(exchange string) func(body []byte, fetchedAt time.Time) ([]model.Announcement, error) {
	return func(body []byte, fetchedAt time.Time) ([]model.Announcement, error) {
		feed, err := gofeed.NewParser().ParseString(string(body))
		if err != nil {
			return nil, err
		}

		var anns []model.Announcement
		for _, item := range feed.Items {
			title := strings.TrimSpace(item.Title)
			if title == "" {
				continue
			}

			exchangeID := item.GUID
			if exchangeID == "" {
				exchangeID = item.Link
			}
			if exchangeID == "" {
				exchangeID = fmt.Sprintf("%d", fetchedAt.UnixMilli())
			}

			content := strings.TrimSpace(item.Description)
			if content == "" {
				content = model.PlaceholderContent
			}

			publishTime := fetchedAt.UnixMilli()
			if item.PublishedParsed != nil {
				publishTime = item.PublishedParsed.UnixMilli()
			} else if item.UpdatedParsed != nil {
				publishTime = item.UpdatedParsed.UnixMilli()
			}

			link := item.Link
			if link == "" {
				link = "https://www." + exchange + ".com"
			}

			anns = append(anns, model.Announcement{
				ID:          exchange + "_" + exchangeID,
				Exchange:    exchange,
				ExchangeID:  exchangeID,
				Title:       title,
				Content:     content,
				Category:    classify.Category(title),
				Importance:  classify.Importance(title + " " + content),
				PublishTime: publishTime,
				Tags:        classify.Tags(title + " " + content),
				URL:         link,
			})
		}
		return anns, nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// binanceSources is the default registry for Binance: structured CMS API
// first, feed format last.
func binanceSources() []Source {
	return []Source{
		{
			Name: "binance-cms",
			URL:  "https://www.binance.com/bapi/apex/v1/public/apex/cms/article/list/query",
			Params: url.Values{
				"type":      {"1"},
				"catalogId": {"48"},
				"pageNo":    {"1"},
				"pageSize":  {"20"},
			},
			Priority: 100,
			Parse:    parseJSONArticles(model.ExchangeBinance),
		},
		{
			Name: "binance-composite",
			URL:  "https://www.binance.com/bapi/composite/v1/public/cms/article/catalog/list/query",
			Params: url.Values{
				"catalogId": {"48"},
				"pageNo":    {"1"},
				"pageSize":  {"20"},
			},
			Priority: 80,
			Parse:    parseJSONArticles(model.ExchangeBinance),
		},
		{
			Name: "binance-announcement-center",
			URL:  "https://www.binance.com/bapi/composite/v1/public/cms/article/all/query",
			Params: url.Values{
				"pageNo":   {"1"},
				"pageSize": {"20"},
			},
			Priority: 60,
			Parse:    parseJSONArticles(model.ExchangeBinance),
		},
		{
			Name:     "binance-rss",
			URL:      "https://www.binance.com/en/feed/rss/news",
			Priority: 40,
			Headers:  map[string]string{"Accept": "application/rss+xml, application/xml, text/xml"},
			Parse:    parseRSS(model.ExchangeBinance),
		},
	}
}

// okxSources is the default registry for OKX.
func okxSources() []Source {
	return []Source{
		{
			Name: "okx-support-api",
			URL:  "https://www.okx.com/api/v5/support/announcements",
			Params: url.Values{
				"page": {"1"},
			},
			Priority: 100,
			Parse:    parseJSONArticles(model.ExchangeOKX),
		},
		{
			Name: "okx-support-home",
			URL:  "https://www.okx.com/v2/support/home/web",
			Params: url.Values{
				"t": {"announcement"},
			},
			Priority: 80,
			Parse:    parseJSONArticles(model.ExchangeOKX),
		},
		{
			Name: "okx-notice-api",
			URL:  "https://www.okx.com/priapi/v5/public/notices",
			Params: url.Values{
				"page":     {"1"},
				"pageSize": {"20"},
			},
			Priority: 60,
			Parse:    parseJSONArticles(model.ExchangeOKX),
		},
		{
			Name:     "okx-rss",
			URL:      "https://www.okx.com/rss/help/announcements",
			Priority: 40,
			Headers:  map[string]string{"Accept": "application/rss+xml, application/xml, text/xml"},
			Parse:    parseRSS(model.ExchangeOKX),
		},
	}
}
