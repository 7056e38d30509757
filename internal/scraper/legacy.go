package scraper

import (
	"context"
	"log"
	"net/url"
	"time"

	"github.com/cexwatch/cexwatch/internal/model"
	"github.com/cexwatch/cexwatch/internal/sources"
	"github.com/cexwatch/cexwatch/internal/stealth"
)

// legacyGroup is one named endpoint-group config: an older or alternate
// base path that sometimes answers when the registry's endpoints are
// blocked.
type legacyGroup struct {
	name   string
	url    string
	params url.Values
}

// legacyGroups returns the fixed endpoint-group map per exchange.
func legacyGroups(exchange string) []legacyGroup {
	switch exchange {
	case model.ExchangeBinance:
		return []legacyGroup{
			{
				name: "primary",
				url:  "https://www.binance.com/bapi/composite/v4/friendly/pc/cms/article/list/query",
				params: url.Values{
					"type":      {"1"},
					"catalogId": {"48"},
					"pageNo":    {"1"},
					"pageSize":  {"20"},
				},
			},
			{
				name: "fallback",
				url:  "https://www.binance.info/bapi/composite/v1/public/cms/article/list/query",
				params: url.Values{
					"catalogId": {"48"},
					"pageNo":    {"1"},
					"pageSize":  {"20"},
				},
			},
		}
	case model.ExchangeOKX:
		return []legacyGroup{
			{
				name: "primary",
				url:  "https://www.okx.com/v3/announcement/list",
				params: url.Values{
					"page":     {"1"},
					"pageSize": {"20"},
				},
			},
			{
				name: "fallback",
				url:  "https://aws.okx.com/v3/announcement/list",
				params: url.Values{
					"page":     {"1"},
					"pageSize": {"20"},
				},
			},
		}
	case model.ExchangeBybit:
		return []legacyGroup{
			{
				name: "primary",
				url:  "https://api.bybit.com/v5/announcements/index",
				params: url.Values{
					"locale": {"zh-TW"},
					"limit":  {"20"},
				},
			},
		}
	case model.ExchangeHTX:
		return []legacyGroup{
			{
				name: "primary",
				url:  "https://www.htx.com/-/x/support/public/getNoticeList",
				params: url.Values{
					"page":     {"1"},
					"pageSize": {"20"},
				},
			},
		}
	}
	return nil
}

// tryLegacyEndpoints iterates the endpoint groups with a randomized 2-4s
// pause between attempts.
func (s *ExchangeScraper) tryLegacyEndpoints(ctx context.Context) []model.Announcement {
	if s.client == nil {
		return nil
	}

	for i, grp := range s.legacy {
		if i > 0 {
			pause := time.Duration(2000+s.rng.Intn(2000)) * time.Millisecond
			s.sleep(pause)
		}

		resp, err := s.client.SmartRequest(ctx, grp.url, &stealth.Options{
			Exchange: s.exchange,
			Params:   grp.params,
		})
		if err != nil {
			log.Printf("scraper: %s legacy group %q failed: %v", s.exchange, grp.name, err)
			continue
		}

		if !validLegacyBody(resp) {
			log.Printf("scraper: %s legacy group %q returned invalid payload", s.exchange, grp.name)
			continue
		}

		anns, err := sources.ParseArticles(s.exchange, resp.Body, time.Now())
		if err != nil {
			log.Printf("scraper: %s legacy group %q parse failed: %v", s.exchange, grp.name, err)
			continue
		}
		if len(anns) > 0 {
			log.Printf("scraper: %s legacy group %q yielded %d announcements", s.exchange, grp.name, len(anns))
			return anns
		}
	}
	return nil
}

// validLegacyBody checks the raw response shape before parsing: it must
// not be an anti-bot page and must not be an explicit provider error
// envelope.
func validLegacyBody(resp *stealth.Response) bool {
	if stealth.LooksLikeBotPage(resp.StatusCode, resp.Body) {
		return false
	}
	return !sources.LooksLikeErrorPayload(resp.Body)
}
