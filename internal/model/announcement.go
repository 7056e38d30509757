package model

import (
	"sort"
	"strings"
	"unicode"
)

// Supported exchange identifiers.
const (
	ExchangeBinance = "binance"
	ExchangeOKX     = "okx"
	ExchangeBybit   = "bybit"
	ExchangeHTX     = "htx"
)

// Announcement categories.
const (
	CategoryNewListings   = "new-listings"
	CategoryDelisting     = "delisting"
	CategoryDerivatives   = "derivatives"
	CategoryMarginTrading = "margin-trading"
	CategoryAPIUpdates    = "api-updates"
	CategoryMaintenance   = "maintenance"
	CategoryGeneral       = "general"
)

// Importance levels.
const (
	ImportanceHigh   = "high"
	ImportanceMedium = "medium"
	ImportanceLow    = "low"
)

// PlaceholderContent is substituted when a provider omits announcement
// content, so downstream consumers never see an empty body.
const PlaceholderContent = "请查看公告原文了解详情 (see the original announcement for details)"

// Announcement is the unified record every acquisition strategy produces.
// ID is globally unique across sources; (Exchange, ExchangeID) is the
// natural key used for upsert in the store.
type Announcement struct {
	ID          string   `json:"id"`
	Exchange    string   `json:"exchange"`
	ExchangeID  string   `json:"exchangeId"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Category    string   `json:"category"`
	Importance  string   `json:"importance"`
	PublishTime int64    `json:"publishTime"` // epoch milliseconds
	Tags        []string `json:"tags"`
	URL         string   `json:"url"`
	Synthetic   bool     `json:"synthetic"`
}

const dedupKeyLen = 50

// DedupKey returns the cross-exchange deduplication key for a title:
// lower-cased, all whitespace removed, first 50 runes. Titles sharing a
// long common prefix collapse to the same key; that is accepted behavior.
func DedupKey(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	key := []rune(b.String())
	if len(key) > dedupKeyLen {
		key = key[:dedupKeyLen]
	}
	return string(key)
}

// SortByRecency sorts announcements newest-first in place. The sort is
// stable so that Dedupe keeps the most recent copy of a duplicated title.
func SortByRecency(list []Announcement) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].PublishTime > list[j].PublishTime
	})
}

// Dedupe keeps the first occurrence of each dedup key, preserving order.
// Callers sort by recency first so the surviving copy is the newest one.
func Dedupe(list []Announcement) []Announcement {
	seen := make(map[string]struct{}, len(list))
	out := make([]Announcement, 0, len(list))
	for _, a := range list {
		key := DedupKey(a.Title)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}
