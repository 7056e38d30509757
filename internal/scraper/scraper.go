// Package scraper coordinates the per-exchange acquisition cascade and the
// cross-exchange aggregation pass. Each exchange is tried through a strict
// strategy order: API source registry, legacy endpoint groups, HTML page
// scrape, static fallback. Any stage returning results is terminal.
package scraper

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/cexwatch/cexwatch/internal/model"
	"github.com/cexwatch/cexwatch/internal/stealth"
)

// SourceRegistry is the prioritized API source layer, the first cascade
// stage.
type SourceRegistry interface {
	FetchAnnouncements(ctx context.Context, exchange string) []model.Announcement
	Probe(ctx context.Context, exchange string) bool
}

// PageScraper is the HTML extraction layer, tried after the API stages.
type PageScraper interface {
	ScrapeExchange(ctx context.Context, exchange string) []model.Announcement
	Probe(ctx context.Context, exchange string) bool
}

// Requester matches the stealth client, used for legacy endpoint groups.
type Requester interface {
	SmartRequest(ctx context.Context, rawURL string, opts *stealth.Options) (*stealth.Response, error)
}

// ExchangeScraper runs the full strategy cascade for one exchange.
type ExchangeScraper struct {
	exchange     string
	registry     SourceRegistry
	web          PageScraper
	client       Requester
	legacy       []legacyGroup
	withFallback bool

	// sleep and rng are injection points for tests.
	sleep func(time.Duration)
	rng   *rand.Rand
}

// NewExchangeScraper builds a primary-exchange scraper: full cascade with
// the static fallback floor.
func NewExchangeScraper(exchange string, registry SourceRegistry, web PageScraper, client Requester) *ExchangeScraper {
	return &ExchangeScraper{
		exchange:     exchange,
		registry:     registry,
		web:          web,
		client:       client,
		legacy:       legacyGroups(exchange),
		withFallback: true,
		sleep:        time.Sleep,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewBestEffortScraper builds a lower-priority exchange scraper: legacy
// endpoints only, no fallback floor. Total failure returns an error the
// aggregator logs and drops.
func NewBestEffortScraper(exchange string, client Requester) *ExchangeScraper {
	return &ExchangeScraper{
		exchange: exchange,
		client:   client,
		legacy:   legacyGroups(exchange),
		sleep:    time.Sleep,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Exchange returns the exchange identifier this scraper serves.
func (s *ExchangeScraper) Exchange() string {
	return s.exchange
}

// Scrape walks the strategy cascade in fixed order and returns the first
// non-empty stage. Stages are never reordered or parallelized: structured
// APIs beat scraping on fidelity and block risk, and both beat static
// data. With the fallback floor enabled this never returns an error.
func (s *ExchangeScraper) Scrape(ctx context.Context) ([]model.Announcement, error) {
	if s.registry != nil {
		if anns := s.registry.FetchAnnouncements(ctx, s.exchange); len(anns) > 0 {
			return anns, nil
		}
		log.Printf("scraper: %s registry empty, trying legacy endpoints", s.exchange)
	}

	if anns := s.tryLegacyEndpoints(ctx); len(anns) > 0 {
		return anns, nil
	}

	if s.web != nil {
		log.Printf("scraper: %s legacy endpoints empty, trying web scrape", s.exchange)
		if anns := s.web.ScrapeExchange(ctx, s.exchange); len(anns) > 0 {
			return anns, nil
		}
	}

	if !s.withFallback {
		return nil, fmt.Errorf("%s: all acquisition strategies exhausted", s.exchange)
	}
	log.Printf("scraper: %s all strategies exhausted, serving static fallback", s.exchange)
	return StaticFallback(s.exchange, time.Now()), nil
}

// Probe reports reachability of each strategy for the health check.
func (s *ExchangeScraper) Probe(ctx context.Context) map[string]bool {
	health := make(map[string]bool)
	if s.registry != nil {
		health[s.exchange+"-api"] = s.registry.Probe(ctx, s.exchange)
	}
	if s.web != nil {
		health[s.exchange+"-web"] = s.web.Probe(ctx, s.exchange)
	}
	if s.registry == nil && s.web == nil {
		health[s.exchange+"-legacy"] = s.probeLegacy(ctx)
	}
	return health
}

func (s *ExchangeScraper) probeLegacy(ctx context.Context) bool {
	if len(s.legacy) == 0 || s.client == nil {
		return false
	}
	grp := s.legacy[0]
	resp, err := s.client.SmartRequest(ctx, grp.url, &stealth.Options{
		Exchange: s.exchange,
		Params:   grp.params,
	})
	return err == nil && resp.StatusCode == 200
}
