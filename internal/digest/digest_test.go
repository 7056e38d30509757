package digest

import (
	"strings"
	"testing"
	"time"

	"github.com/cexwatch/cexwatch/internal/model"
)

func digestAnnouncement(exchange, id, title, importance string) model.Announcement {
	return model.Announcement{
		ID:          exchange + "_" + id,
		Exchange:    exchange,
		ExchangeID:  id,
		Title:       title,
		Content:     model.PlaceholderContent,
		Category:    model.CategoryNewListings,
		Importance:  importance,
		PublishTime: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		URL:         "https://www." + exchange + ".com/announcement/" + id,
	}
}

func TestRenderEmpty(t *testing.T) {
	out := Render(nil, time.Now())
	if !strings.Contains(out, "No announcements collected yet") {
		t.Errorf("empty digest missing placeholder text:\n%s", out)
	}
}

func TestRenderGroupsByExchange(t *testing.T) {
	anns := []model.Announcement{
		digestAnnouncement("okx", "1", "OKX Will List DEF", model.ImportanceMedium),
		digestAnnouncement("binance", "2", "Binance Will List ABC", model.ImportanceHigh),
	}

	out := Render(anns, time.Now())

	binanceIdx := strings.Index(out, "## Binance (1)")
	okxIdx := strings.Index(out, "## OKX (1)")
	if binanceIdx == -1 || okxIdx == -1 {
		t.Fatalf("missing exchange sections:\n%s", out)
	}
	if binanceIdx > okxIdx {
		t.Error("binance section should come before okx regardless of input order")
	}
}

func TestRenderImportanceBadges(t *testing.T) {
	anns := []model.Announcement{
		digestAnnouncement("binance", "1", "Critical Delisting", model.ImportanceHigh),
	}

	out := Render(anns, time.Now())
	if !strings.Contains(out, "🔴") {
		t.Errorf("high importance badge missing:\n%s", out)
	}
	if !strings.Contains(out, "[Critical Delisting](https://www.binance.com/announcement/1)") {
		t.Errorf("title not linked:\n%s", out)
	}
}

func TestRenderMarksSynthetic(t *testing.T) {
	ann := digestAnnouncement("binance", "1", "Fallback Notice", model.ImportanceLow)
	ann.Synthetic = true

	out := Render([]model.Announcement{ann}, time.Now())
	if !strings.Contains(out, "synthetic") {
		t.Errorf("synthetic marker missing:\n%s", out)
	}
}

func TestRenderSkipsPlaceholderContent(t *testing.T) {
	withBody := digestAnnouncement("binance", "1", "Enriched", model.ImportanceMedium)
	withBody.Content = "Full announcement body text goes here."
	placeholder := digestAnnouncement("binance", "2", "Placeholder", model.ImportanceMedium)

	out := Render([]model.Announcement{withBody, placeholder}, time.Now())
	if !strings.Contains(out, "Full announcement body text") {
		t.Errorf("enriched content missing:\n%s", out)
	}
	if strings.Contains(out, model.PlaceholderContent) {
		t.Errorf("placeholder content should not be rendered:\n%s", out)
	}
}
