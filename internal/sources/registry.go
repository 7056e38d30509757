// Package sources holds the declarative, priority-ordered API source
// registries per exchange. Sources are tried from highest priority down and
// the first one yielding announcements wins; individual source failures are
// logged and skipped so a broken endpoint never hides a working one.
package sources

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sort"
	"time"

	"github.com/cexwatch/cexwatch/internal/model"
	"github.com/cexwatch/cexwatch/internal/stealth"
)

// Source is one named fetch configuration within a registry.
type Source struct {
	Name     string
	URL      string
	Params   url.Values
	Headers  map[string]string
	Priority int
	// Parse converts a raw response body into announcements. Parsers never
	// return partial data on error; a nil/empty slice means "try the next
	// source".
	Parse func(body []byte, fetchedAt time.Time) ([]model.Announcement, error)
}

// Requester is the transport the registry fetches through.
type Requester interface {
	SmartRequest(ctx context.Context, rawURL string, opts *stealth.Options) (*stealth.Response, error)
}

// Registry is an immutable set of per-exchange source lists, constructed
// once at startup and shared by the orchestrators.
type Registry struct {
	client  Requester
	sources map[string][]Source
}

// NewRegistry builds a registry with the default source lists for the
// primary exchanges, sorted by descending priority.
func NewRegistry(client Requester) *Registry {
	r := &Registry{
		client: client,
		sources: map[string][]Source{
			model.ExchangeBinance: binanceSources(),
			model.ExchangeOKX:     okxSources(),
		},
	}
	for ex := range r.sources {
		sort.SliceStable(r.sources[ex], func(i, j int) bool {
			return r.sources[ex][i].Priority > r.sources[ex][j].Priority
		})
	}
	return r
}

// SetSources replaces the source list for an exchange. Used by tests and
// by config overrides; the list is re-sorted by priority.
func (r *Registry) SetSources(exchange string, list []Source) {
	sorted := make([]Source, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	r.sources[exchange] = sorted
}

// Sources returns the configured source list for an exchange.
func (r *Registry) Sources(exchange string) []Source {
	return r.sources[exchange]
}

// FetchAnnouncements tries each source for the exchange in priority order
// and returns the first non-empty parse. It degrades to nil silently when
// every source fails; escalation is the orchestrator's job.
func (r *Registry) FetchAnnouncements(ctx context.Context, exchange string) []model.Announcement {
	for _, src := range r.sources[exchange] {
		anns, err := r.fetchSource(ctx, exchange, src)
		if err != nil {
			log.Printf("sources: %s/%s failed: %v", exchange, src.Name, err)
			continue
		}
		if len(anns) > 0 {
			log.Printf("sources: %s/%s yielded %d announcements", exchange, src.Name, len(anns))
			return anns
		}
	}
	log.Printf("sources: all sources exhausted for %s", exchange)
	return nil
}

// Probe checks reachability of the exchange's top-priority source. Used
// by the health check, never by the fetch path.
func (r *Registry) Probe(ctx context.Context, exchange string) bool {
	list := r.sources[exchange]
	if len(list) == 0 {
		return false
	}
	src := list[0]
	resp, err := r.client.SmartRequest(ctx, src.URL, &stealth.Options{
		Exchange: exchange,
		Headers:  src.Headers,
		Params:   src.Params,
	})
	return err == nil && resp.StatusCode == 200
}

func (r *Registry) fetchSource(ctx context.Context, exchange string, src Source) ([]model.Announcement, error) {
	resp, err := r.client.SmartRequest(ctx, src.URL, &stealth.Options{
		Exchange: exchange,
		Headers:  src.Headers,
		Params:   src.Params,
	})
	if err != nil {
		return nil, err
	}
	if stealth.LooksLikeBotPage(resp.StatusCode, resp.Body) {
		return nil, fmt.Errorf("anti-bot page from %s (status %d)", src.URL, resp.StatusCode)
	}
	return src.Parse(resp.Body, time.Now())
}
