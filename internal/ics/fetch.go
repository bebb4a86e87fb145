package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"homewidget/internal/cache"
	appLog "homewidget/internal/log"
)

// Source represents a single ICS subscription.
type Source struct {
	// ID is an internal identifier (config calendar key).
	ID string
	// URL is the ICS endpoint.
	URL string
	// Name is the calendar name events are tagged with. When empty the
	// feed's X-WR-CALNAME is used.
	Name string
	// Color is the calendar colour. When empty the feed's
	// X-APPLE-CALENDAR-COLOR is used.
	Color string
}

// FetchResult contains the outcome of fetching a single ICS source.
type FetchResult struct {
	Source    Source
	Body      []byte
	FromCache bool // true if the body came from the cache (fresh, 304 or fallback)
}

// httpMeta is the HTTP validator state kept per feed.
type httpMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher fetches ICS feeds with conditional requests (ETag /
// Last-Modified). Bodies and validators live in a cache namespace, and a
// cached body is served when the network fails.
type Fetcher struct {
	client *http.Client
	store  *cache.Cache

	// FreshFor skips the network entirely while the cached body is younger
	// than this. Zero always revalidates.
	FreshFor time.Duration

	now func() time.Time
}

// NewFetcher creates a Fetcher storing feeds in store. A nil client gets a
// 15s timeout client.
func NewFetcher(store *cache.Cache, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{
		client: client,
		store:  store,
		now:    time.Now,
	}
}

// FetchAll fetches all sources in order. Per-source errors are logged and
// collected; results only contain sources that produced a body.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]FetchResult, []error) {
	results := make([]FetchResult, 0, len(sources))
	var errs []error

	for _, src := range sources {
		res, err := f.FetchOne(ctx, src)
		if err != nil {
			errs = append(errs, fmt.Errorf("ics: %s: %w", src.ID, err))
			appLog.Error("ics fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		results = append(results, res)
	}

	return results, errs
}

// FetchOne fetches a single source, honoring ETag and Last-Modified.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}

	bodyKey, metaKey := cacheKeys(src.URL)

	var meta httpMeta
	f.store.ReadInto(ctx, metaKey, 0, &meta)
	cachedBody, _ := f.store.Lookup(ctx, bodyKey, 0)

	cached := func() FetchResult {
		return FetchResult{Source: src, Body: []byte(cachedBody), FromCache: true}
	}

	if f.FreshFor > 0 && cachedBody != "" && f.now().Sub(meta.UpdatedAt) < f.FreshFor {
		appLog.Debug("ics cache fresh; skipping fetch", "id", src.ID, "age", f.now().Sub(meta.UpdatedAt))
		return cached(), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Info("ics fetch start", "id", src.ID, "url", redactURL(src.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		if cachedBody != "" {
			appLog.Error("ics fetch network error, using cached body", err, "id", src.ID, "url", redactURL(src.URL))
			return cached(), nil
		}
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return FetchResult{}, err
		}

		newMeta := httpMeta{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    f.now().UTC(),
		}
		// Body first so the validators never point at a missing body.
		if err := f.store.Write(ctx, bodyKey, body); err != nil {
			appLog.Error("ics cache save failed", err, "id", src.ID)
		} else if err := f.store.Write(ctx, metaKey, newMeta); err != nil {
			appLog.Error("ics cache meta save failed", err, "id", src.ID)
		}

		appLog.Info("ics fetch success", "id", src.ID, "status", resp.StatusCode, "bytes", len(body))
		return FetchResult{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if cachedBody == "" {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		meta.UpdatedAt = f.now().UTC()
		if err := f.store.Write(ctx, metaKey, meta); err != nil {
			appLog.Error("ics cache meta save failed", err, "id", src.ID)
		}
		appLog.Info("ics fetch not modified; using cache", "id", src.ID)
		return cached(), nil

	default:
		if cachedBody != "" {
			appLog.Error("ics fetch non-OK, using cached body", errors.New(resp.Status), "id", src.ID, "status", resp.StatusCode)
			return cached(), nil
		}
		return FetchResult{}, errors.New(resp.Status)
	}
}

// cacheKeys derives the body and validator keys for a feed URL from the
// first 8 bytes of its SHA-256.
func cacheKeys(url string) (body, meta string) {
	sum := sha256.Sum256([]byte(url))
	id := hex.EncodeToString(sum[:8])
	return id + ".ics", id + ".meta.json"
}

// redactURL keeps only scheme and host of an ICS URL for logging; private
// feed URLs usually carry a token in the path or query.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "ics://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}
