// Package kafkaconsumer consumes pricing configuration change events
// and evicts the affected cached snapshots.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/transferhub/farequote/internal/invalidation"
	"github.com/transferhub/farequote/internal/observability"
)

// Evictor is the slice of the config cache the consumer drives. Every
// valid event names the regions it touches, so region-scoped eviction
// is all the consumer needs.
type Evictor interface {
	EvictRegion(ctx context.Context, regionID string) (int, error)
}

// IndexRebuilder refreshes the geographic prefilter after a region change.
// Implemented by regionindex.Keeper.
type IndexRebuilder interface {
	Rebuild(ctx context.Context) error
}

type Consumer struct {
	cfg   Config
	cache Evictor
	index IndexRebuilder
	log   zerolog.Logger

	// seen tracks the newest TS handled per event scope so replayed
	// deliveries do not trigger redundant evictions.
	seen *lru.Cache[string, time.Time]
}

type Option func(*Consumer)

// WithIndexRebuilder makes region events also rebuild the candidate index,
// so reshaped or newly created regions become resolvable without a restart.
func WithIndexRebuilder(r IndexRebuilder) Option {
	return func(c *Consumer) { c.index = r }
}

func New(cfg Config, cache Evictor, log zerolog.Logger, opts ...Option) (*Consumer, error) {
	if cache == nil {
		return nil, errors.New("kafkaconsumer: cache is required")
	}
	size := cfg.DedupeSize
	if size <= 0 {
		size = 4096
	}
	seen, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, fmt.Errorf("dedupe cache: %w", err)
	}
	c := &Consumer{
		cfg:   cfg,
		cache: cache,
		log:   log.With().Str("component", "kafka_consumer").Logger(),
		seen:  seen,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Start joins the consumer group and processes events until the
// context is cancelled. Consume errors are logged and retried; the
// loop only exits on cancellation.
func (c *Consumer) Start(ctx context.Context) error {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.log.Info().
		Strs("brokers", c.cfg.Brokers).
		Str("topic", c.cfg.Topic).
		Str("group", c.cfg.GroupID).
		Msg("invalidation consumer starting")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.log.Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("consumer error")
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne handles a single event message. Malformed messages are
// logged and dropped rather than retried; a poison message must not
// wedge the partition.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.IncInvalidation("unknown", "decode_error")
		c.log.Error().Err(err).
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("dropping undecodable invalidation event")
		return nil
	}
	if err := ev.Validate(); err != nil {
		observability.IncInvalidation(ev.Entity, "invalid")
		c.log.Error().Err(err).
			Str("entity", ev.Entity).
			Str("op", ev.Op).
			Int64("offset", msg.Offset).
			Msg("dropping invalid invalidation event")
		return nil
	}

	if c.isReplay(ev) {
		observability.IncInvalidation(ev.Entity, "duplicate")
		c.log.Debug().Str("scope", ev.Scope()).Msg("skipping replayed event")
		return nil
	}

	deleted := 0
	for _, regionID := range ev.Regions() {
		n, err := c.cache.EvictRegion(ctx, regionID)
		if err != nil {
			observability.IncInvalidation(ev.Entity, "evict_error")
			return fmt.Errorf("evict region %s: %w", regionID, err)
		}
		deleted += n
	}

	if ev.Entity == invalidation.EntityRegion && c.index != nil {
		if err := c.index.Rebuild(ctx); err != nil {
			// the periodic rebuild catches up later
			observability.IncInvalidation(ev.Entity, "index_rebuild_error")
			c.log.Error().Err(err).Str("region", ev.RegionID).Msg("region index rebuild failed")
		}
	}

	observability.IncInvalidation(ev.Entity, "ok")
	c.log.Info().
		Str("entity", ev.Entity).
		Str("op", ev.Op).
		Strs("regions", ev.Regions()).
		Int("keys", deleted).
		Msg("evicted configuration snapshots")
	return nil
}

func (c *Consumer) isReplay(ev invalidation.Event) bool {
	scope := ev.Scope()
	if last, ok := c.seen.Get(scope); ok && !ev.TS.After(last) {
		return true
	}
	c.seen.Add(scope, ev.TS)
	return false
}
