// Package stealth performs HTTP GETs with randomized, internally-consistent
// browser fingerprints and a per-status retry policy tuned for sites that
// actively resist automated access.
package stealth

import (
	"context"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	maxBackoff        = 30 * time.Second
	rateLimitDefault  = 60 * time.Second
	maxBodyBytes      = 4 << 20
)

// Options carries per-call overrides for SmartRequest.
type Options struct {
	// Exchange selects the Referer/Origin pairing.
	Exchange string
	// Headers override or extend the generated fingerprint headers.
	Headers map[string]string
	// Params are merged into the URL query string.
	Params url.Values
}

// Response is the materialized result of a successful SmartRequest.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client issues fingerprinted requests with adaptive retries. A single
// client may be shared across goroutines; the RNG source is locked.
// The zero value is not usable; call New.
type Client struct {
	HTTPClient *http.Client
	MaxRetries int

	// sleep and rng are injection points for tests.
	sleep func(time.Duration)
	rng   *rand.Rand
}

// New creates a client with the default timeout and retry budget.
func New() *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		MaxRetries: defaultMaxRetries,
		sleep:      time.Sleep,
		rng:        rand.New(newLockedSource(time.Now().UnixNano())),
	}
}

// lockedSource makes a rand.Source safe for concurrent use. *rand.Rand
// itself is not goroutine-safe, and one client serves every scraper
// goroutine in an aggregation run.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source64
}

func newLockedSource(seed int64) *lockedSource {
	return &lockedSource{src: rand.NewSource(seed).(rand.Source64)}
}

func (s *lockedSource) Int63() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Int63()
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

func (s *lockedSource) Seed(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.src.Seed(seed)
}

// SmartRequest performs a GET against rawURL with a freshly randomized
// fingerprint per attempt. Status handling per attempt:
//
//	200          -> success
//	202          -> soft anti-bot challenge: wait 5-10s, retry
//	403          -> hard block: fail immediately, no retry
//	429          -> honor Retry-After (default 60s), retry
//	5xx          -> exponential backoff capped at 30s, retry
//	other status -> fail immediately
//
// Transport errors get the same backoff-and-retry treatment as 5xx. After
// the retry budget is spent the last error is returned.
func (c *Client) SmartRequest(ctx context.Context, rawURL string, opts *Options) (*Response, error) {
	if opts == nil {
		opts = &Options{}
	}

	target, err := buildURL(rawURL, opts.Params)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.MaxRetries; attempt++ {
		resp, err := c.attempt(ctx, target, opts)
		if err != nil {
			lastErr = err
			if !retriableTransport(attempt, c.MaxRetries) {
				break
			}
			wait := backoff(attempt)
			log.Printf("stealth: %s attempt %d failed (%v), retrying in %s", target, attempt, err, wait)
			c.sleep(wait)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return resp, nil

		case resp.StatusCode == http.StatusAccepted:
			lastErr = &StatusError{Code: resp.StatusCode, URL: target}
			if attempt == c.MaxRetries {
				break
			}
			wait := time.Duration(5000+c.rng.Intn(5000)) * time.Millisecond
			log.Printf("stealth: %s returned 202 (challenge), waiting %s", target, wait)
			c.sleep(wait)

		case resp.StatusCode == http.StatusForbidden:
			// Hard block; retrying with another fingerprint only burns quota.
			return nil, &StatusError{Code: resp.StatusCode, URL: target}

		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = &StatusError{Code: resp.StatusCode, URL: target}
			if attempt == c.MaxRetries {
				break
			}
			wait := retryAfter(resp.Header)
			log.Printf("stealth: %s rate limited, waiting %s", target, wait)
			c.sleep(wait)

		case resp.StatusCode >= 500:
			lastErr = &StatusError{Code: resp.StatusCode, URL: target}
			if attempt == c.MaxRetries {
				break
			}
			c.sleep(backoff(attempt))

		default:
			// Remaining 4xx are not transient.
			return nil, &StatusError{Code: resp.StatusCode, URL: target}
		}
	}

	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, target string, opts *Options) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	req.Header = buildHeaders(c.rng, opts.Exchange)
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// shouldRetry is the retry predicate: attempts must remain, and the failure
// must be transport-level, 5xx, or an anti-bot soft signal (202/429).
func shouldRetry(attempt, maxRetries, status int, hasResponse bool) bool {
	if attempt >= maxRetries {
		return false
	}
	if !hasResponse {
		return true
	}
	return status >= 500 || status == http.StatusAccepted || status == http.StatusTooManyRequests
}

func retriableTransport(attempt, maxRetries int) bool {
	return shouldRetry(attempt, maxRetries, 0, false)
}

// backoff returns min(1s * 2^(attempt-1), 30s).
func backoff(attempt int) time.Duration {
	d := time.Second << (attempt - 1)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// retryAfter reads the Retry-After header in seconds, defaulting to 60s.
func retryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return rateLimitDefault
}

func buildURL(rawURL string, params url.Values) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
