package stealth

import (
	"bytes"
	"strings"
)

// blockKeywords are content markers of anti-bot interstitial pages.
var blockKeywords = []string{
	"captcha",
	"cloudflare",
	"access denied",
	"unusual traffic",
	"please verify",
	"are you a robot",
	"ddos protection",
	"请验证",
	"验证码",
	"访问受限",
}

// suspiciousStatuses are statuses anti-bot layers commonly answer with.
var suspiciousStatuses = map[int]struct{}{
	202: {},
	403: {},
	429: {},
	503: {},
}

const minPlausibleBody = 512

// LooksLikeBotPage reports whether a response is probably an anti-bot
// challenge rather than real data. Used by callers as a secondary validity
// check on top of the HTTP status.
func LooksLikeBotPage(statusCode int, body []byte) bool {
	if _, ok := suspiciousStatuses[statusCode]; ok {
		return true
	}

	lower := strings.ToLower(string(body))
	for _, kw := range blockKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	// Tiny non-JSON bodies from a data endpoint are challenge shells.
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) < minPlausibleBody && !looksLikeJSON(trimmed) {
		return true
	}

	return false
}

func looksLikeJSON(trimmed []byte) bool {
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}
