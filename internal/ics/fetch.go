package ics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	appLog "calnotes/internal/log"
)

// Fetcher retrieves feed bodies over HTTP(S), honoring ETag and
// Last-Modified so unchanged feeds are not re-downloaded. Validators and
// the last good body are kept in memory per URL.
type Fetcher struct {
	client *http.Client

	mu      sync.Mutex
	entries map[string]*httpCacheEntry
}

type httpCacheEntry struct {
	etag         string
	lastModified string
	body         []byte
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		entries: make(map[string]*httpCacheEntry),
	}
}

// Fetch retrieves one feed body. webcal:// URLs are rewritten to https://
// before the request. A network error or non-success status is returned as
// an error; callers treat that feed as temporarily unknown for the cycle.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	if feedURL == "" {
		return nil, errors.New("feed URL is empty")
	}
	fetchURL := rewriteWebcal(feedURL)

	f.mu.Lock()
	entry := f.entries[feedURL]
	f.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		if entry.etag != "" {
			req.Header.Set("If-None-Match", entry.etag)
		}
		if entry.lastModified != "" {
			req.Header.Set("If-Modified-Since", entry.lastModified)
		}
	}

	appLog.Debug("feed fetch start", "url", redactURL(feedURL))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		if entry == nil || len(entry.body) == 0 {
			return nil, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Debug("feed not modified, reusing body", "url", redactURL(feedURL))
		return entry.body, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, readErr
		}
		f.mu.Lock()
		f.entries[feedURL] = &httpCacheEntry{
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
			body:         body,
		}
		f.mu.Unlock()
		appLog.Debug("feed fetch success", "url", redactURL(feedURL), "status", resp.StatusCode, "bytes", len(body))
		return body, nil

	default:
		return nil, errors.New("feed fetch failed: " + resp.Status)
	}
}

// rewriteWebcal maps the webcal:// subscription scheme onto https://.
func rewriteWebcal(u string) string {
	if strings.HasPrefix(strings.ToLower(u), "webcal://") {
		return "https://" + u[len("webcal://"):]
	}
	return u
}

// redactURL hides path and query of a feed URL for logging; many feed URLs
// embed access tokens.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i < 0 {
		return "feed://...(redacted)"
	}
	rest := u[i+3:]
	j := strings.IndexByte(rest, '/')
	if j < 0 {
		return u
	}
	return u[:i+3+j] + redactedSuffix
}
