package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/okian/ceoorcto/internal/domain/model"
	"github.com/okian/ceoorcto/pkg/metrics"
)

// Cache defaults.
const (
	DefaultCacheVersion = "v2"
	DefaultCacheTTL     = 5 * time.Minute
)

// Cache stores recent comparisons under
// comparison:<version>:<variant>:<location> as {timestamp, variant, data}.
type Cache struct {
	storage Storage
	version string
	ttl     time.Duration
	now     func() time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheVersion namespaces entries; bumping it orphans older ones.
func WithCacheVersion(v string) CacheOption {
	return func(c *Cache) {
		if v != "" {
			c.version = v
		}
	}
}

// WithCacheTTL sets how long an entry is served.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheClock replaces time.Now.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCache creates a cache over storage.
func NewCache(storage Storage, opts ...CacheOption) *Cache {
	c := &Cache{storage: storage, version: DefaultCacheVersion, ttl: DefaultCacheTTL, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key is the storage key for a variant and location.
func (c *Cache) Key(v model.Variant, location string) string {
	if location == "" {
		location = model.LocationRandom
	}
	return fmt.Sprintf("comparison:%s:%s:%s", c.version, v, location)
}

// Put stores resp.
func (c *Cache) Put(ctx context.Context, v model.Variant, location string, resp model.ComparisonResponse) error {
	const op = "client.Cache.Put"
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	entry, err := sjson.SetBytes(nil, "timestamp", c.now().UnixMilli())
	if err == nil {
		entry, err = sjson.SetBytes(entry, "variant", string(v))
	}
	if err == nil {
		entry, err = sjson.SetRawBytes(entry, "data", data)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.storage.Set(ctx, c.Key(v, location), entry); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Get returns the live entry for v and location. Corrupt, mismatched and
// expired entries are deleted and reported as ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, v model.Variant, location string) (model.ComparisonResponse, error) {
	key := c.Key(v, location)
	raw, ok, err := c.storage.Get(ctx, key)
	if err != nil {
		metrics.RecordCacheLookup("error")
		return model.ComparisonResponse{}, fmt.Errorf("client.Cache.Get: %w", err)
	}
	if !ok {
		metrics.RecordCacheLookup("miss")
		return model.ComparisonResponse{}, ErrCacheMiss
	}

	resp, err := c.decode(raw, v)
	if err != nil {
		metrics.RecordCacheLookup("corrupt")
		_ = c.storage.Delete(ctx, key)
		return model.ComparisonResponse{}, fmt.Errorf("%w: %w", ErrCacheMiss, err)
	}

	ts := time.UnixMilli(gjson.GetBytes(raw, "timestamp").Int())
	if c.now().Sub(ts) > c.ttl {
		metrics.RecordCacheLookup("expired")
		_ = c.storage.Delete(ctx, key)
		return model.ComparisonResponse{}, ErrCacheMiss
	}
	metrics.RecordCacheLookup("hit")
	return resp, nil
}

// Invalidate drops the entry for v and location.
func (c *Cache) Invalidate(ctx context.Context, v model.Variant, location string) error {
	return c.storage.Delete(ctx, c.Key(v, location))
}

func (c *Cache) decode(raw []byte, v model.Variant) (model.ComparisonResponse, error) {
	if !gjson.ValidBytes(raw) {
		return model.ComparisonResponse{}, fmt.Errorf("%w: invalid json", ErrCorruptEntry)
	}
	fields := gjson.GetManyBytes(raw, "timestamp", "variant", "data.person1", "data.person2")
	switch {
	case fields[0].Type != gjson.Number:
		return model.ComparisonResponse{}, fmt.Errorf("%w: missing timestamp", ErrCorruptEntry)
	case fields[1].String() != string(v):
		return model.ComparisonResponse{}, fmt.Errorf("%w: variant %q", ErrCorruptEntry, fields[1].String())
	case !fields[2].IsObject(), !fields[3].IsObject():
		return model.ComparisonResponse{}, fmt.Errorf("%w: missing pair", ErrCorruptEntry)
	}

	var resp model.ComparisonResponse
	if err := json.Unmarshal([]byte(gjson.GetBytes(raw, "data").Raw), &resp); err != nil {
		return model.ComparisonResponse{}, fmt.Errorf("%w: %w", ErrCorruptEntry, err)
	}
	return resp, nil
}
