// Package classify holds the shared keyword heuristics that turn free-text
// exchange announcements into categories, importance levels, and tags.
// All functions are pure; every acquisition layer calls into them.
//
// Keyword tables are bilingual: the exchanges publish in both English and
// Chinese, often mixing the two in a single title.
package classify

import (
	"regexp"
	"strings"

	"github.com/cexwatch/cexwatch/internal/model"
)

type categoryRule struct {
	category string
	keywords []string
}

// categoryRules is checked in order; first match wins. Delisting comes
// before new-listings because "delist"/"delisting" contain "list(ing)".
var categoryRules = []categoryRule{
	{model.CategoryDelisting, []string{
		"delist", "removal of", "will remove", "cease trading",
		"下架", "退市", "终止", "摘牌",
	}},
	{model.CategoryNewListings, []string{
		"will list", "listing", "lists", "new cryptocurrency", "launchpool",
		"launchpad", "new trading pair", "will add",
		"上线", "上币", "新增", "首发", "开放交易",
	}},
	{model.CategoryDerivatives, []string{
		"futures", "perpetual", "options", "delivery contract",
		"合约", "期货", "期权", "永续",
	}},
	{model.CategoryMarginTrading, []string{
		"margin", "isolated", "cross collateral", "borrow",
		"杠杆", "借贷", "质押借币", "全仓", "逐仓",
	}},
	{model.CategoryAPIUpdates, []string{
		"api", "websocket", "sdk", "rate limit",
		"接口", "应用程序",
	}},
	{model.CategoryMaintenance, []string{
		"maintenance", "upgrade", "suspension", "suspend", "resumed", "wallet",
		"维护", "升级", "暂停", "恢复", "钱包",
	}},
}

// highKeywords mark urgent, security-sensitive, or delisting-type notices.
var highKeywords = []string{
	"delist", "removal", "security", "hack", "attack", "urgent", "risk",
	"halt", "emergency", "phishing",
	"下架", "退市", "安全", "紧急", "风险", "盗", "钓鱼",
}

// mediumKeywords mark routine operational notices.
var mediumKeywords = []string{
	"list", "listing", "launchpool", "launchpad", "airdrop", "maintenance",
	"upgrade", "suspend", "margin", "futures", "perpetual", "staking",
	"上线", "上币", "空投", "维护", "升级", "暂停", "杠杆", "合约",
}

// Category maps announcement text to one of the fixed category values,
// defaulting to general.
func Category(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return model.CategoryGeneral
}

// Importance scores announcement text. High keywords take precedence over
// medium; anything unmatched is low.
func Importance(text string) string {
	lower := strings.ToLower(text)
	for _, kw := range highKeywords {
		if strings.Contains(lower, kw) {
			return model.ImportanceHigh
		}
	}
	for _, kw := range mediumKeywords {
		if strings.Contains(lower, kw) {
			return model.ImportanceMedium
		}
	}
	return model.ImportanceLow
}

// symbolPattern matches token-symbol-like runs of uppercase letters.
var symbolPattern = regexp.MustCompile(`\b[A-Z]{3,8}\b`)

// symbolStoplist filters common false positives of the symbol pattern:
// fiat currency codes and uppercase English words that appear in titles.
var symbolStoplist = map[string]struct{}{
	"USD": {}, "EUR": {}, "GBP": {}, "JPY": {}, "KRW": {}, "CNY": {},
	"TRY": {}, "RUB": {}, "THE": {}, "AND": {}, "FOR": {}, "NEW": {},
	"NOW": {}, "WILL": {}, "LIST": {}, "WITH": {}, "FROM": {}, "ALL": {},
	"API": {}, "APP": {}, "FAQ": {}, "AMA": {}, "UTC": {}, "GMT": {},
	"CEO": {}, "IEO": {}, "NOTICE": {},
}

// functionalTags maps keyword hits to human-readable tags.
var functionalTags = []struct {
	tag      string
	keywords []string
}{
	{"listing", []string{"will list", "listing", "上线", "上币", "新增"}},
	{"delisting", []string{"delist", "下架", "退市"}},
	{"launchpool", []string{"launchpool", "launchpad"}},
	{"airdrop", []string{"airdrop", "空投"}},
	{"maintenance", []string{"maintenance", "upgrade", "维护", "升级"}},
	{"futures", []string{"futures", "perpetual", "合约", "永续"}},
	{"margin", []string{"margin", "杠杆"}},
	{"staking", []string{"staking", "earn", "理财", "质押"}},
}

// fallbackTag guarantees the never-empty tags invariant.
const fallbackTag = "announcement"

// Tags extracts a deduplicated tag list from announcement text: token
// symbols unioned with functional keyword tags. Never returns an empty
// slice.
func Tags(text string) []string {
	var tags []string
	seen := make(map[string]struct{})

	add := func(tag string) {
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	for _, sym := range symbolPattern.FindAllString(text, -1) {
		if _, stop := symbolStoplist[sym]; stop {
			continue
		}
		add(sym)
	}

	lower := strings.ToLower(text)
	for _, ft := range functionalTags {
		for _, kw := range ft.keywords {
			if strings.Contains(lower, kw) {
				add(ft.tag)
				break
			}
		}
	}

	if len(tags) == 0 {
		add(fallbackTag)
	}
	return tags
}
