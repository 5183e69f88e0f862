package kafkaconsumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/transferhub/farequote/internal/invalidation"
)

type recordingEvictor struct {
	regions []string
}

func (r *recordingEvictor) EvictRegion(_ context.Context, regionID string) (int, error) {
	r.regions = append(r.regions, regionID)
	return 1, nil
}

func message(t *testing.T, ev invalidation.Event) *sarama.ConsumerMessage {
	t.Helper()
	buf, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: "pricing-config-changes", Value: buf}
}

func newConsumer(t *testing.T, ev Evictor) *Consumer {
	t.Helper()
	c, err := New(Config{DedupeSize: 16}, ev, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestProcessOne_EvictsEventRegions(t *testing.T) {
	rec := &recordingEvictor{}
	c := newConsumer(t, rec)

	ev := invalidation.Event{
		Version:  1,
		Op:       "update",
		Entity:   invalidation.EntitySurcharge,
		RegionID: "r1",
		TS:       time.Now(),
	}
	if err := c.ProcessOne(context.Background(), message(t, ev)); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if len(rec.regions) != 1 || rec.regions[0] != "r1" {
		t.Fatalf("evicted %v, want [r1]", rec.regions)
	}
}

func TestProcessOne_FixedPriceEvictsBothEnds(t *testing.T) {
	rec := &recordingEvictor{}
	c := newConsumer(t, rec)

	ev := invalidation.Event{
		Version:             1,
		Op:                  "create",
		Entity:              invalidation.EntityFixedPrice,
		OriginRegionID:      "airport",
		DestinationRegionID: "marina",
		TS:                  time.Now(),
	}
	if err := c.ProcessOne(context.Background(), message(t, ev)); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if len(rec.regions) != 2 || rec.regions[0] != "airport" || rec.regions[1] != "marina" {
		t.Fatalf("evicted %v, want [airport marina]", rec.regions)
	}
}

func TestProcessOne_DropsMalformedWithoutError(t *testing.T) {
	rec := &recordingEvictor{}
	c := newConsumer(t, rec)

	msg := &sarama.ConsumerMessage{Value: []byte("{not json")}
	if err := c.ProcessOne(context.Background(), msg); err != nil {
		t.Fatalf("malformed message must not error the claim: %v", err)
	}

	invalid := invalidation.Event{Version: 1, Op: "upsert", Entity: "region", RegionID: "r1", TS: time.Now()}
	if err := c.ProcessOne(context.Background(), message(t, invalid)); err != nil {
		t.Fatalf("invalid event must not error the claim: %v", err)
	}
	if len(rec.regions) != 0 {
		t.Fatalf("dropped events still evicted: %v", rec.regions)
	}
}

func TestProcessOne_SkipsReplayedDeliveries(t *testing.T) {
	rec := &recordingEvictor{}
	c := newConsumer(t, rec)

	ts := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	ev := invalidation.Event{
		Version:  1,
		Op:       "update",
		Entity:   invalidation.EntityBasePrice,
		RegionID: "r1",
		TS:       ts,
	}
	for i := 0; i < 3; i++ {
		if err := c.ProcessOne(context.Background(), message(t, ev)); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if len(rec.regions) != 1 {
		t.Fatalf("replayed delivery evicted again: %v", rec.regions)
	}

	// A newer edit to the same scope must still get through.
	ev.TS = ts.Add(time.Minute)
	if err := c.ProcessOne(context.Background(), message(t, ev)); err != nil {
		t.Fatalf("newer event: %v", err)
	}
	if len(rec.regions) != 2 {
		t.Fatalf("newer event suppressed: %v", rec.regions)
	}
}

type recordingRebuilder struct {
	calls int
}

func (r *recordingRebuilder) Rebuild(context.Context) error {
	r.calls++
	return nil
}

func TestProcessOne_RegionEventRebuildsIndex(t *testing.T) {
	rec := &recordingEvictor{}
	reb := &recordingRebuilder{}
	c, err := New(Config{DedupeSize: 16}, rec, zerolog.Nop(), WithIndexRebuilder(reb))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	region := invalidation.Event{
		Version:  1,
		Op:       "update",
		Entity:   invalidation.EntityRegion,
		RegionID: "airport",
		TS:       time.Now(),
	}
	if err := c.ProcessOne(context.Background(), message(t, region)); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if reb.calls != 1 {
		t.Fatalf("rebuild calls=%d want 1", reb.calls)
	}

	price := invalidation.Event{
		Version:  1,
		Op:       "update",
		Entity:   invalidation.EntityBasePrice,
		RegionID: "airport",
		TS:       time.Now(),
	}
	if err := c.ProcessOne(context.Background(), message(t, price)); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if reb.calls != 1 {
		t.Fatalf("price event rebuilt the index: calls=%d", reb.calls)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("broker-1:9092, broker-2:9092", "changes", "group-a")
	if len(cfg.Brokers) != 2 || cfg.Brokers[0] != "broker-1:9092" || cfg.Brokers[1] != "broker-2:9092" {
		t.Fatalf("brokers=%v", cfg.Brokers)
	}
	if cfg.Topic != "changes" || cfg.GroupID != "group-a" {
		t.Fatalf("topic=%s group=%s", cfg.Topic, cfg.GroupID)
	}
	if cfg.DedupeSize != 4096 || !cfg.InitialOffsetOldest {
		t.Fatalf("defaults not applied: %+v", cfg)
	}

	def := NewConfig("", "", "")
	if len(def.Brokers) != 1 || def.Brokers[0] != "localhost:9092" {
		t.Fatalf("default brokers=%v", def.Brokers)
	}
	if def.Topic != "pricing-config-changes" || def.GroupID != "farequote-invalidator" {
		t.Fatalf("default topic=%s group=%s", def.Topic, def.GroupID)
	}
}
