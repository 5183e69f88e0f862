// Package configcache decorates a PriceStore with a Redis read-through
// layer. Whole per-region record sets are cached as JSON snapshots;
// validity windows and priorities are evaluated downstream at quote
// time, so snapshots never go stale relative to the clock, only
// relative to configuration writes. Cache failures fall through to the
// backing store so Redis outages degrade latency, not correctness.
package configcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/transferhub/farequote/internal/cache/keys"
	"github.com/transferhub/farequote/internal/observability"
	"github.com/transferhub/farequote/internal/pricing"
	"github.com/transferhub/farequote/internal/store"
)

// Backend is the slice of the Redis client the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	DelPattern(ctx context.Context, pattern string) (int, error)
}

const (
	DefaultTTL       = 5 * time.Minute
	DefaultOpTimeout = 150 * time.Millisecond
)

type Option func(*Cache)

func WithTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

// WithOpTimeout bounds each Redis round trip so a slow cache cannot
// stall quote serving beyond the budget.
func WithOpTimeout(d time.Duration) Option {
	return func(c *Cache) { c.opTimeout = d }
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Cache) { c.log = log }
}

type Cache struct {
	source    store.PriceStore
	backend   Backend
	ttl       time.Duration
	opTimeout time.Duration
	log       zerolog.Logger
}

var _ store.PriceStore = (*Cache)(nil)

func New(source store.PriceStore, backend Backend, opts ...Option) *Cache {
	c := &Cache{
		source:    source,
		backend:   backend,
		ttl:       DefaultTTL,
		opTimeout: DefaultOpTimeout,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) BasePrices(ctx context.Context, regionID string) ([]pricing.BasePrice, error) {
	key := keys.BasePrices(regionID)
	var cached []pricing.BasePrice
	if c.fetch(ctx, key, &cached) {
		return cached, nil
	}
	records, err := c.source.BasePrices(ctx, regionID)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, records)
	return records, nil
}

func (c *Cache) FixedPrices(ctx context.Context, originRegionID, destinationRegionID string) ([]pricing.FixedPrice, error) {
	key := keys.FixedPrices(originRegionID, destinationRegionID)
	var cached []pricing.FixedPrice
	if c.fetch(ctx, key, &cached) {
		return cached, nil
	}
	records, err := c.source.FixedPrices(ctx, originRegionID, destinationRegionID)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, records)
	return records, nil
}

// Surcharges needs DTO indirection because Condition is an interface
// hidden from plain JSON; the envelope codec restores the concrete type.
func (c *Cache) Surcharges(ctx context.Context, regionID string) ([]pricing.Surcharge, error) {
	key := keys.Surcharges(regionID)

	raw, ok := c.fetchRaw(ctx, key)
	if ok {
		records, err := decodeSurcharges(raw)
		if err == nil {
			return records, nil
		}
		c.log.Warn().Err(err).Str("key", key).Msg("discarding undecodable surcharge snapshot")
	}

	records, err := c.source.Surcharges(ctx, regionID)
	if err != nil {
		return nil, err
	}
	if buf, err := encodeSurcharges(records); err == nil {
		c.putRaw(ctx, key, buf)
	} else {
		c.log.Warn().Err(err).Str("region_id", regionID).Msg("surcharge snapshot encode failed")
	}
	return records, nil
}

// EvictRegion drops every snapshot that involves the region. Returns
// the number of keys removed.
func (c *Cache) EvictRegion(ctx context.Context, regionID string) (int, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.backend.DelPattern(ctx, keys.RegionPattern(regionID))
}

func (c *Cache) fetch(ctx context.Context, key string, out any) bool {
	raw, ok := c.fetchRaw(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("discarding undecodable snapshot")
		return false
	}
	return true
}

func (c *Cache) fetchRaw(ctx context.Context, key string) ([]byte, bool) {
	opCtx, cancel := c.bound(ctx)
	defer cancel()

	raw, ok, err := c.backend.Get(opCtx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed, falling through")
		observability.IncCacheMiss()
		return nil, false
	}
	if !ok {
		observability.IncCacheMiss()
		return nil, false
	}
	observability.IncCacheHit()
	return raw, true
}

func (c *Cache) put(ctx context.Context, key string, records any) {
	buf, err := json.Marshal(records)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("snapshot encode failed")
		return
	}
	c.putRaw(ctx, key, buf)
}

func (c *Cache) putRaw(ctx context.Context, key string, buf []byte) {
	opCtx, cancel := c.bound(ctx)
	defer cancel()
	if err := c.backend.Set(opCtx, key, buf, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (c *Cache) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opTimeout)
}

// surchargeSnapshot is the cached wire form of a Surcharge with the
// condition flattened through the envelope codec.
type surchargeSnapshot struct {
	Record    pricing.Surcharge `json:"record"`
	Condition json.RawMessage   `json:"condition"`
}

func encodeSurcharges(records []pricing.Surcharge) ([]byte, error) {
	snaps := make([]surchargeSnapshot, 0, len(records))
	for _, s := range records {
		cond, err := pricing.MarshalCondition(s.Condition)
		if err != nil {
			return nil, fmt.Errorf("encode condition for %s: %w", s.ID, err)
		}
		snaps = append(snaps, surchargeSnapshot{Record: s, Condition: cond})
	}
	return json.Marshal(snaps)
}

func decodeSurcharges(raw []byte) ([]pricing.Surcharge, error) {
	var snaps []surchargeSnapshot
	if err := json.Unmarshal(raw, &snaps); err != nil {
		return nil, err
	}
	records := make([]pricing.Surcharge, 0, len(snaps))
	for _, snap := range snaps {
		cond, err := pricing.UnmarshalCondition(snap.Condition)
		if err != nil {
			return nil, fmt.Errorf("decode condition for %s: %w", snap.Record.ID, err)
		}
		s := snap.Record
		s.Condition = cond
		records = append(records, s)
	}
	return records, nil
}
