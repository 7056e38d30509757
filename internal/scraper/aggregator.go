package scraper

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cexwatch/cexwatch/internal/model"
)

// ExchangeSource is one per-exchange acquisition unit as the aggregator
// sees it. ExchangeScraper satisfies this.
type ExchangeSource interface {
	Exchange() string
	Scrape(ctx context.Context) ([]model.Announcement, error)
	Probe(ctx context.Context) map[string]bool
}

// Upserter persists merged announcements. Satisfied by store.Store.
type Upserter interface {
	UpsertAnnouncement(ann model.Announcement) (bool, error)
}

// Report summarizes one aggregation run.
type Report struct {
	RunID       string         `json:"runId"`
	Started     time.Time      `json:"started"`
	Duration    time.Duration  `json:"duration"`
	Found       int            `json:"found"`
	Kept        int            `json:"kept"`
	Created     int            `json:"created"`
	Updated     int            `json:"updated"`
	PerExchange map[string]int `json:"perExchange"`
}

// Aggregator fans out to every exchange source concurrently, merges the
// results, and persists the deduplicated set.
type Aggregator struct {
	sources []ExchangeSource
	store   Upserter
}

// NewAggregator wires the exchange sources to a store. The store may be
// nil for dry runs; results are then merged but not persisted.
func NewAggregator(store Upserter, sources ...ExchangeSource) *Aggregator {
	return &Aggregator{sources: sources, store: store}
}

type exchangeResult struct {
	exchange string
	anns     []model.Announcement
	err      error
}

// ScrapeAll runs every exchange source concurrently and waits for all of
// them. A failing exchange is logged and dropped; it never poisons the
// run. The merged set is sorted newest-first and deduplicated by
// normalized title before persisting.
func (a *Aggregator) ScrapeAll(ctx context.Context) ([]model.Announcement, Report, error) {
	report := Report{
		RunID:       uuid.NewString(),
		Started:     time.Now(),
		PerExchange: make(map[string]int),
	}
	log.Printf("aggregator: run %s starting across %d exchanges", report.RunID, len(a.sources))

	results := make([]exchangeResult, len(a.sources))
	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src ExchangeSource) {
			defer wg.Done()
			anns, err := src.Scrape(ctx)
			results[i] = exchangeResult{exchange: src.Exchange(), anns: anns, err: err}
		}(i, src)
	}
	wg.Wait()

	var merged []model.Announcement
	for _, res := range results {
		if res.err != nil {
			log.Printf("aggregator: %s failed, dropping from run: %v", res.exchange, res.err)
			report.PerExchange[res.exchange] = 0
			continue
		}
		report.PerExchange[res.exchange] = len(res.anns)
		merged = append(merged, res.anns...)
	}
	report.Found = len(merged)

	model.SortByRecency(merged)
	merged = model.Dedupe(merged)
	report.Kept = len(merged)

	if a.store != nil {
		for _, ann := range merged {
			created, err := a.store.UpsertAnnouncement(ann)
			if err != nil {
				log.Printf("aggregator: persist %s failed: %v", ann.ID, err)
				continue
			}
			if created {
				report.Created++
			} else {
				report.Updated++
			}
		}
	}

	report.Duration = time.Since(report.Started)
	log.Printf("aggregator: run %s done in %s: found %d, kept %d, created %d, updated %d",
		report.RunID, report.Duration.Round(time.Millisecond), report.Found, report.Kept, report.Created, report.Updated)
	return merged, report, nil
}

// HealthCheck probes every exchange source's strategies and merges the
// per-strategy reachability maps.
func (a *Aggregator) HealthCheck(ctx context.Context) map[string]bool {
	health := make(map[string]bool)
	for _, src := range a.sources {
		for name, ok := range src.Probe(ctx) {
			health[name] = ok
		}
	}
	return health
}
