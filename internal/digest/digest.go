// Package digest renders stored announcements as a markdown report
// grouped by exchange.
package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/cexwatch/cexwatch/internal/model"
)

var importanceBadges = map[string]string{
	model.ImportanceHigh:   "🔴",
	model.ImportanceMedium: "🟡",
	model.ImportanceLow:    "⚪",
}

var exchangeLabels = map[string]string{
	model.ExchangeBinance: "Binance",
	model.ExchangeOKX:     "OKX",
	model.ExchangeBybit:   "Bybit",
	model.ExchangeHTX:     "HTX",
}

// Render assembles the full markdown digest. Announcements are expected
// sorted newest-first; exchange sections keep that order internally and
// are emitted in a fixed exchange order so the digest is stable between
// runs.
func Render(anns []model.Announcement, generated time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Exchange Announcements Digest\n\n")
	fmt.Fprintf(&b, "_Generated %s · %d announcements_\n", generated.UTC().Format("2006-01-02 15:04 UTC"), len(anns))

	if len(anns) == 0 {
		b.WriteString("\nNo announcements collected yet. Run a scrape first.\n")
		return b.String()
	}

	grouped := make(map[string][]model.Announcement)
	var order []string
	for _, ann := range anns {
		if _, seen := grouped[ann.Exchange]; !seen {
			order = append(order, ann.Exchange)
		}
		grouped[ann.Exchange] = append(grouped[ann.Exchange], ann)
	}

	// Known exchanges first in canonical order, then anything else in
	// first-seen order.
	canonical := []string{model.ExchangeBinance, model.ExchangeOKX, model.ExchangeBybit, model.ExchangeHTX}
	var sections []string
	emitted := make(map[string]bool)
	for _, exchange := range canonical {
		if list, ok := grouped[exchange]; ok {
			sections = append(sections, renderSection(exchange, list))
			emitted[exchange] = true
		}
	}
	for _, exchange := range order {
		if !emitted[exchange] {
			sections = append(sections, renderSection(exchange, grouped[exchange]))
		}
	}

	b.WriteString("\n")
	b.WriteString(strings.Join(sections, "\n---\n\n"))
	return b.String()
}

func renderSection(exchange string, anns []model.Announcement) string {
	label := exchangeLabels[exchange]
	if label == "" {
		label = exchange
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## %s (%d)\n\n", label, len(anns))

	for _, ann := range anns {
		badge := importanceBadges[ann.Importance]
		if badge == "" {
			badge = importanceBadges[model.ImportanceLow]
		}

		title := ann.Title
		if ann.URL != "" {
			title = fmt.Sprintf("[%s](%s)", ann.Title, ann.URL)
		}
		fmt.Fprintf(&b, "### %s %s\n\n", badge, title)

		meta := []string{
			time.UnixMilli(ann.PublishTime).UTC().Format("2006-01-02 15:04"),
			ann.Category,
		}
		if len(ann.Tags) > 0 {
			meta = append(meta, strings.Join(ann.Tags, ", "))
		}
		if ann.Synthetic {
			meta = append(meta, "synthetic")
		}
		fmt.Fprintf(&b, "_%s_\n\n", strings.Join(meta, " · "))

		if ann.Content != "" && ann.Content != model.PlaceholderContent {
			fmt.Fprintf(&b, "%s\n\n", truncate(ann.Content, 400))
		}
	}
	return b.String()
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
