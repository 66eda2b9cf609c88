package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	appLog "icsanon/internal/log"
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
	DefaultBackoff = 0.5

	// Some calendar hosts refuse requests without a browser-like agent.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

	snippetLen    = 200
	maxRetryAfter = 5 * time.Minute
)

// HTTPStatusError is returned for a non-2xx response that was not retried
// or whose retries ran out.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	// Snippet is the start of the response body, for diagnostics.
	Snippet string
	// RetryAfter is the server's requested delay, zero if none.
	RetryAfter time.Duration
}

func (e *HTTPStatusError) Error() string {
	return "unexpected HTTP status " + e.Status
}

// Retryable reports whether the status is one a server uses for transient
// trouble.
func (e *HTTPStatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// FetchOptions configures a Fetcher. Zero values take the defaults above,
// except CacheDir where empty disables conditional requests.
type FetchOptions struct {
	Timeout time.Duration
	// Retries is the number of retries after the first attempt.
	Retries int
	// Backoff is the base delay in seconds; the n-th retry waits
	// Backoff * 2^(n-1) seconds unless the server sent Retry-After.
	Backoff   float64
	CacheDir  string
	UserAgent string
}

// cacheEntry holds HTTP cache metadata for a single ICS URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads one ICS feed with retries, optionally reusing a disk
// cache through ETag / Last-Modified revalidation. A network failure never
// falls back to the cache.
type Fetcher struct {
	client *http.Client
	opts   FetchOptions
	log    zerolog.Logger
}

func NewFetcher(opts FetchOptions, logger zerolog.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	return &Fetcher{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		log:    logger,
	}
}

// Fetch returns the feed body. Connection errors, body read errors and
// statuses 429/500/502/503/504 are retried; any other non-2xx fails at once.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, errors.New("source URL is empty")
	}
	redacted := appLog.RedactURL(url)

	var cachePath string
	var meta cacheEntry
	var cachedBody []byte
	if f.opts.CacheDir != "" {
		cachePath = f.cachePathForURL(url)
		if err := os.MkdirAll(cachePath, 0o700); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		meta, _ = loadCacheMeta(cachePath)
		cachedBody, _ = loadCacheBody(cachePath)
		if len(cachedBody) == 0 {
			meta = cacheEntry{}
		}
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = time.Duration(f.opts.Backoff * float64(time.Second))
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	policy := &retryAfterBackOff{BackOff: exp}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(f.opts.Retries)), ctx)

	attempt := 0
	var body []byte
	op := func() error {
		attempt++
		res, err := f.fetchOnce(ctx, url, meta, cachedBody)
		if err == nil {
			body = res.body
			if res.fresh && cachePath != "" {
				if err := saveCache(cachePath, res.meta, res.body); err != nil {
					f.log.Warn().Err(err).Str("url", redacted).Msg("ics cache save failed")
				}
			}
			f.log.Info().
				Str("url", redacted).
				Int("status", res.status).
				Bool("from_cache", !res.fresh).
				Int("bytes", len(res.body)).
				Int("attempt", attempt).
				Msg("ics fetch success")
			return nil
		}

		var se *HTTPStatusError
		if errors.As(err, &se) {
			f.log.Debug().Str("url", redacted).Int("status", se.StatusCode).Str("body", se.Snippet).Msg("ics fetch HTTP error")
			if !se.Retryable() {
				return backoff.Permanent(err)
			}
			policy.hint = se.RetryAfter
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		f.log.Warn().Err(err).Str("url", redacted).Int("attempt", attempt).Dur("wait", wait).Msg("ics fetch failed, retrying")
	}

	f.log.Info().Str("url", redacted).Msg("ics fetch start")
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, fmt.Errorf("fetch %s after %d attempt(s): %w", redacted, attempt, err)
	}
	return body, nil
}

type fetchResult struct {
	body   []byte
	status int
	fresh  bool
	meta   cacheEntry
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string, meta cacheEntry, cachedBody []byte) (fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fetchResult{}, backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fetchResult{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fetchResult{}, fmt.Errorf("read body: %w", err)
		}
		return fetchResult{
			body:   body,
			status: resp.StatusCode,
			fresh:  true,
			meta: cacheEntry{
				URL:          url,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			},
		}, nil

	case resp.StatusCode == http.StatusNotModified:
		if len(cachedBody) == 0 {
			return fetchResult{}, backoff.Permanent(errors.New("received 304 Not Modified but no cached body available"))
		}
		return fetchResult{body: cachedBody, status: resp.StatusCode}, nil

	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, snippetLen))
		return fetchResult{}, &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Snippet:    string(snippet),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP-date. Unusable or past
// values yield zero; large values are capped.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(v); err == nil {
		d = at.Sub(now)
	}
	if d < 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

// retryAfterBackOff substitutes a server-requested delay for the next
// computed one, once.
type retryAfterBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.hint > 0 {
		next = b.hint
	}
	b.hint = 0
	return next
}

func (b *retryAfterBackOff) Reset() {
	b.hint = 0
	b.BackOff.Reset()
}

func (f *Fetcher) cachePathForURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	// First 16 hex chars name the per-URL directory.
	return filepath.Join(f.opts.CacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.ics"))
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.ics"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}
