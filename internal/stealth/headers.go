package stealth

import (
	"fmt"
	"math/rand"
	"net/http"
)

// fingerprint is one internally-consistent browser identity. Headers that
// depend on the browser family (Sec-CH-* on Chromium, for example) are
// derived from it rather than mixed at random.
type fingerprint struct {
	userAgent string
	family    string // "chromium", "firefox", "safari"
	platform  string // sec-ch-ua-platform value
	secCHUA   string
}

var fingerprints = []fingerprint{
	{
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		family:    "chromium",
		platform:  `"Windows"`,
		secCHUA:   `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
	},
	{
		userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		family:    "chromium",
		platform:  `"macOS"`,
		secCHUA:   `"Chromium";v="123", "Google Chrome";v="123", "Not-A.Brand";v="99"`,
	},
	{
		userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		family:    "chromium",
		platform:  `"Linux"`,
		secCHUA:   `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
	},
	{
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
		family:    "chromium",
		platform:  `"Windows"`,
		secCHUA:   `"Chromium";v="124", "Microsoft Edge";v="124", "Not-A.Brand";v="99"`,
	},
	{
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
		family:    "firefox",
	},
	{
		userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:124.0) Gecko/20100101 Firefox/124.0",
		family:    "firefox",
	},
	{
		userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		family:    "safari",
	},
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-US,en;q=0.9,zh-CN;q=0.8",
	"zh-CN,zh;q=0.9,en;q=0.8",
	"zh-CN,zh;q=0.9,en-US;q=0.8,en;q=0.7",
}

var viewportWidths = []string{"1280", "1366", "1440", "1536", "1920"}

// exchangeOrigins maps the exchange hint to a Referer/Origin pairing.
var exchangeOrigins = map[string]string{
	"binance": "https://www.binance.com",
	"okx":     "https://www.okx.com",
	"bybit":   "https://www.bybit.com",
	"htx":     "https://www.htx.com",
}

// buildHeaders generates a randomized browser-realistic header set. Family
// specific headers are only emitted when the chosen user agent supports
// them, and probabilistic headers (DNT) are omitted rather than sent empty.
func buildHeaders(rng *rand.Rand, exchange string) http.Header {
	fp := fingerprints[rng.Intn(len(fingerprints))]

	h := http.Header{}
	h.Set("User-Agent", fp.userAgent)
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", acceptLanguages[rng.Intn(len(acceptLanguages))])
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")

	if fp.family == "chromium" {
		h.Set("Sec-CH-UA", fp.secCHUA)
		h.Set("Sec-CH-UA-Mobile", "?0")
		h.Set("Sec-CH-UA-Platform", fp.platform)
		h.Set("Viewport-Width", viewportWidths[rng.Intn(len(viewportWidths))])
	}

	// DNT is only sent by a minority of real browsers.
	if rng.Float64() < 0.3 {
		h.Set("DNT", "1")
	}

	if origin, ok := exchangeOrigins[exchange]; ok {
		h.Set("Referer", origin+"/")
		h.Set("Origin", origin)
	}

	return h
}

// StatusError reports a non-success HTTP status from SmartRequest.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}
