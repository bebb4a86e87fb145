package cache

import (
	"context"
	"time"

	appLog "homewidget/internal/log"
)

// ReadThrough returns the cached value for key when it is present and not
// older than expiration. Otherwise it calls fetch, stores the result and
// returns it. A fetch error is returned as is; nothing is written.
//
// A failed write is logged and does not fail the call.
func ReadThrough[T any](ctx context.Context, c *Cache, key string, expiration time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var cached T
	if c.ReadInto(ctx, key, expiration, &cached) {
		return cached, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if err := c.Write(ctx, key, v); err != nil {
		appLog.Error("cache: read-through write failed", err, "namespace", c.namespace, "key", key)
	}
	return v, nil
}
