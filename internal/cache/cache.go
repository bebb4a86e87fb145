// Package cache implements a namespaced key/value cache with read-time
// expiration on top of a Store.
//
// Values are persisted as one entry per key: JSON text for structured
// values, the raw text for strings. Reads never fail outward; every error
// (missing entry, expired entry, storage failure) is a miss. Lookup exposes
// the distinguishable reason for callers that need it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	appLog "homewidget/internal/log"
)

var (
	// ErrNotFound is returned by Lookup when no entry exists for the key.
	ErrNotFound = errors.New("cache: key not found")
	// ErrExpired is returned by Lookup when the entry was older than the
	// requested expiration. The entry has been removed.
	ErrExpired = errors.New("cache: entry expired")
	// ErrEmptyKey is returned for empty keys.
	ErrEmptyKey = errors.New("cache: key is empty")
	// ErrInvalidKey is returned for keys that name the namespace directory
	// or its parent.
	ErrInvalidKey = errors.New("cache: key is not a valid entry name")
)

// Cache is a key/value cache scoped to one namespace of a Store.
//
// A Cache is meant for a single refresh at a time; it does no locking of its
// own beyond what the Store provides.
type Cache struct {
	store     Store
	namespace string
	now       func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the clock used to age entries.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New returns a Cache for namespace, creating the namespace directory if it
// does not exist yet.
func New(ctx context.Context, store Store, namespace string, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, errors.New("cache: store is nil")
	}
	if namespace == "" {
		return nil, errors.New("cache: namespace is empty")
	}

	c := &Cache{
		store:     store,
		namespace: namespace,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	ok, err := store.Exists(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("cache: stat namespace %s: %w", namespace, err)
	}
	if !ok {
		if err := store.EnsureDir(ctx, namespace); err != nil {
			return nil, fmt.Errorf("cache: create namespace %s: %w", namespace, err)
		}
	}
	return c, nil
}

// Namespace returns the namespace this cache is scoped to.
func (c *Cache) Namespace() string {
	return c.namespace
}

// SanitizeKey replaces every "/" with "-" so a key never escapes the
// namespace directory.
func SanitizeKey(key string) string {
	return strings.ReplaceAll(key, "/", "-")
}

func (c *Cache) path(key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	name := SanitizeKey(key)
	if name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return path.Join(c.namespace, name), nil
}

// Lookup returns the raw stored text for key.
//
// When expiration > 0 and the entry is older than expiration, the entry is
// removed and ErrExpired is returned. An entry exactly expiration old is
// still fresh.
func (c *Cache) Lookup(ctx context.Context, key string, expiration time.Duration) (string, error) {
	p, err := c.path(key)
	if err != nil {
		return "", err
	}

	if d, ok := c.store.(Downloader); ok {
		if err := d.Download(ctx, p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", ErrNotFound
			}
			return "", fmt.Errorf("cache: download %s: %w", p, err)
		}
	}

	exists, err := c.store.Exists(ctx, p)
	if err != nil {
		return "", fmt.Errorf("cache: stat %s: %w", p, err)
	}
	if !exists {
		return "", ErrNotFound
	}

	if expiration > 0 {
		createdAt, err := c.store.CreatedAt(ctx, p)
		if err != nil {
			return "", fmt.Errorf("cache: creation time %s: %w", p, err)
		}
		if c.now().Sub(createdAt) > expiration {
			if err := c.store.Remove(ctx, p); err != nil {
				appLog.Error("cache: failed to remove expired entry", err, "path", p)
			}
			return "", ErrExpired
		}
	}

	value, err := c.store.ReadString(ctx, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("cache: read %s: %w", p, err)
	}
	return value, nil
}

// Read returns the value stored under key, or nil on any miss.
//
// JSON text is decoded into its generic form (maps, slices, float64, ...);
// text that is not valid JSON is returned unchanged as a string.
func (c *Cache) Read(ctx context.Context, key string, expiration time.Duration) any {
	raw, err := c.Lookup(ctx, key, expiration)
	if err != nil {
		logMiss(key, c.namespace, err)
		return nil
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// ReadInto decodes the entry under key into dst and reports whether it did.
// A *string destination receives non-JSON text verbatim.
func (c *Cache) ReadInto(ctx context.Context, key string, expiration time.Duration, dst any) bool {
	raw, err := c.Lookup(ctx, key, expiration)
	if err != nil {
		logMiss(key, c.namespace, err)
		return false
	}

	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		if s, ok := dst.(*string); ok {
			*s = raw
			return true
		}
		appLog.Debug("cache: entry does not decode into destination", "namespace", c.namespace, "key", key, "err", err)
		return false
	}
	return true
}

// Write stores value under key, fully replacing any prior entry. Strings and
// byte slices are stored verbatim; everything else is JSON-encoded.
func (c *Cache) Write(ctx context.Context, key string, value any) error {
	p, err := c.path(key)
	if err != nil {
		return err
	}

	var text string
	switch v := value.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("cache: encode %s: %w", p, err)
		}
		text = string(data)
	}

	appLog.Debug("cache: writing entry", "path", p, "bytes", len(text))
	if err := c.store.WriteString(ctx, p, text); err != nil {
		return fmt.Errorf("cache: write %s: %w", p, err)
	}
	return nil
}

// Remove deletes the entry under key. Removing a missing key is not an error.
func (c *Cache) Remove(ctx context.Context, key string) error {
	p, err := c.path(key)
	if err != nil {
		return err
	}
	return c.store.Remove(ctx, p)
}

func logMiss(key, namespace string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrExpired):
		appLog.Debug("cache miss", "namespace", namespace, "key", key, "reason", err)
	default:
		appLog.Warn("cache read failed; treating as miss", "namespace", namespace, "key", key, "err", err)
	}
}
