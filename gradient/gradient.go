// Package gradient implements the Gradient Broadcaster: periodic
// resource-availability dissemination and aggregation, per spec.md §4.1.
//
// The entry map and its guarding mutex follow the same shape as the
// quorum.Static tracker in github.com/luxfi/consensus/quorum: one map
// keyed by NodeID, one sync.RWMutex, snapshot-then-compute outside the
// lock for aggregation, matching spec.md §5's critical-section
// discipline.
package gradient

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vudo/enr-bridge/clock"
	"github.com/vudo/enr-bridge/codec"
	"github.com/vudo/enr-bridge/events"
	"github.com/vudo/enr-bridge/ids"
	"github.com/vudo/enr-bridge/identity"
	"github.com/vudo/enr-bridge/log"
	"github.com/vudo/enr-bridge/metrics"
)

// Topic is the fixed pub/sub topic gradient updates travel on.
const Topic = "/vudo/enr/gradient/1.0.0"

// Bounds from spec.md §3 and §6.
const (
	MaxAgeMs             = 15_000
	MaxFutureToleranceMs = 5_000
)

// ErrFutureTimestamp is returned when an inbound update's timestamp is
// too far ahead of the local clock.
var ErrFutureTimestamp = errors.New("gradient: timestamp too far in the future")

// ErrStaleTimestamp is returned when an inbound update is older than the
// freshness window.
var ErrStaleTimestamp = errors.New("gradient: timestamp is stale")

// ErrInvalidSignature is returned by HandleInbound when the injected
// Verifier rejects the envelope's signature.
var ErrInvalidSignature = errors.New("gradient: invalid signature")

// ResourceGradient is a node's reported resource-availability vector.
// Each field is a fraction in [0.0, 1.0].
type ResourceGradient struct {
	CPUAvailable       float64 `json:"cpu_available"`
	MemoryAvailable    float64 `json:"memory_available"`
	BandwidthAvailable float64 `json:"bandwidth_available"`
	StorageAvailable   float64 `json:"storage_available"`
}

// wireUpdate is the GradientUpdate envelope payload.
type wireUpdate struct {
	Source    ids.NodeID       `json:"source"`
	Gradient  ResourceGradient `json:"gradient"`
	Timestamp int64            `json:"timestamp"`
	Signature []byte           `json:"signature,omitempty"`
}

// entry is the local mutable view of one peer's last-known gradient.
type entry struct {
	gradient   ResourceGradient
	receivedAt int64
}

// Publisher is the single egress injection point gossip goes through.
// Tests substitute a no-op or recording implementation.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Config holds the Gradient Broadcaster's tunables, mirroring the flat
// Config-struct-with-defaults convention of
// networking/router.HealthConfig.
type Config struct {
	MaxAgeMs             int64
	MaxFutureToleranceMs int64
}

// DefaultConfig returns the constants fixed by spec.md §6.
func DefaultConfig() Config {
	return Config{
		MaxAgeMs:             MaxAgeMs,
		MaxFutureToleranceMs: MaxFutureToleranceMs,
	}
}

// Broadcaster implements the Gradient Broadcaster subsystem.
type Broadcaster struct {
	mu sync.RWMutex

	self     ids.NodeID
	clock    *clock.Clock
	cfg      Config
	pub      Publisher
	signer   identity.Signer
	verifier identity.Verifier
	log      log.Logger
	sink     events.Sink
	metrics  *metrics.GradientCollectors

	entries map[ids.NodeID]entry
}

// New constructs a Broadcaster for self, publishing through pub.
func New(self ids.NodeID, pub Publisher, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		self:     self,
		clock:    clock.New(),
		cfg:      DefaultConfig(),
		pub:      pub,
		signer:   identity.NoOpSigner{},
		verifier: identity.NoOpVerifier{},
		log:      log.NewNoOp(),
		sink:     events.NoOpSink{},
		entries:  make(map[ids.NodeID]entry),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Option configures a Broadcaster at construction time.
type Option func(*Broadcaster)

// WithClock injects a mockable clock.
func WithClock(c *clock.Clock) Option { return func(b *Broadcaster) { b.clock = c } }

// WithConfig overrides the default tunables.
func WithConfig(cfg Config) Option { return func(b *Broadcaster) { b.cfg = cfg } }

// WithSigner injects a signing hook.
func WithSigner(s identity.Signer) Option { return func(b *Broadcaster) { b.signer = s } }

// WithVerifier injects a signature-verification hook for inbound
// updates. Defaults to identity.NoOpVerifier, which accepts everything.
func WithVerifier(v identity.Verifier) Option { return func(b *Broadcaster) { b.verifier = v } }

// WithLogger injects a structured logger.
func WithLogger(l log.Logger) Option { return func(b *Broadcaster) { b.log = l } }

// WithSink injects an event sink.
func WithSink(s events.Sink) Option { return func(b *Broadcaster) { b.sink = s } }

// WithMetrics registers Prometheus collectors for this Broadcaster.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broadcaster) { b.metrics = metrics.NewGradientCollectors(m) }
}

// BroadcastLocal timestamps g, signs the envelope, publishes it, and
// atomically replaces the local self-entry.
func (b *Broadcaster) BroadcastLocal(g ResourceGradient) error {
	now := b.clock.NowMs()

	b.mu.Lock()
	b.entries[b.self] = entry{gradient: g, receivedAt: now}
	b.mu.Unlock()

	wire := wireUpdate{Source: b.self, Gradient: g, Timestamp: now}
	body, err := codec.Encode(codec.KindGradientUpdate, wire)
	if err != nil {
		return fmt.Errorf("gradient: encode: %w", err)
	}
	wire.Signature = b.signer.Sign(body)
	if len(wire.Signature) > 0 {
		if body, err = codec.Encode(codec.KindGradientUpdate, wire); err != nil {
			return fmt.Errorf("gradient: encode: %w", err)
		}
	}

	b.sink.Emit(events.Event{Kind: events.KindGradientUpdate, Data: events.GradientUpdate{
		Source: b.self, CPUAvailable: g.CPUAvailable, MemoryAvailable: g.MemoryAvailable,
		BandwidthAvailable: g.BandwidthAvailable, StorageAvailable: g.StorageAvailable,
		ReceivedAtMs: now,
	}})

	if err := b.pub.Publish(Topic, body); err != nil {
		b.log.Warn("gradient: publish failed", "error", err)
		return fmt.Errorf("gradient: publish: %w", err)
	}
	return nil
}

// HandleInbound applies a remote GradientUpdate envelope, per spec.md
// §4.1's rejection and last-timestamp-wins rules.
func (b *Broadcaster) HandleInbound(data []byte) error {
	var wire wireUpdate
	if err := codec.Decode(data, codec.KindGradientUpdate, &wire); err != nil {
		b.log.Debug("gradient: decode failed", "error", err)
		return fmt.Errorf("gradient: %w", err)
	}
	if !b.verifySignature(wire) {
		b.countRejected("invalid_signature")
		return ErrInvalidSignature
	}
	return b.applyInbound(wire)
}

// verifySignature re-encodes wire without its Signature field (the same
// body BroadcastLocal signs before attaching one) and checks it against
// the injected Verifier. Node public key resolution is the external
// identity module's concern per spec.md §1; the no-op default ignores it.
func (b *Broadcaster) verifySignature(wire wireUpdate) bool {
	sig := wire.Signature
	wire.Signature = nil
	body, err := codec.Encode(codec.KindGradientUpdate, wire)
	if err != nil {
		return false
	}
	return b.verifier.Verify(body, sig, nil)
}

func (b *Broadcaster) applyInbound(wire wireUpdate) error {
	now := b.clock.NowMs()

	if wire.Timestamp > now+b.cfg.MaxFutureToleranceMs {
		b.countRejected("future")
		return ErrFutureTimestamp
	}
	if now-wire.Timestamp > b.cfg.MaxAgeMs {
		b.countRejected("stale")
		return ErrStaleTimestamp
	}

	b.mu.Lock()
	if existing, ok := b.entries[wire.Source]; ok && existing.receivedAt >= wire.Timestamp {
		b.mu.Unlock()
		b.countRejected("superseded")
		return nil
	}
	b.entries[wire.Source] = entry{gradient: wire.Gradient, receivedAt: wire.Timestamp}
	n := len(b.entries)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.EntriesTracked.Set(float64(n))
	}
	b.sink.Emit(events.Event{Kind: events.KindGradientUpdate, Data: events.GradientUpdate{
		Source: wire.Source, CPUAvailable: wire.Gradient.CPUAvailable,
		MemoryAvailable: wire.Gradient.MemoryAvailable, BandwidthAvailable: wire.Gradient.BandwidthAvailable,
		StorageAvailable: wire.Gradient.StorageAvailable, ReceivedAtMs: wire.Timestamp,
	}})
	return nil
}

func (b *Broadcaster) countRejected(reason string) {
	if b.metrics != nil {
		b.metrics.Rejected.WithLabelValues(reason).Inc()
	}
}

// Aggregate returns the arithmetic mean of each resource fraction across
// fresh entries (age <= MaxAgeMs), or false if no entry is fresh.
func (b *Broadcaster) Aggregate() (ResourceGradient, bool) {
	now := b.clock.NowMs()

	b.mu.RLock()
	snapshot := make([]entry, 0, len(b.entries))
	for _, e := range b.entries {
		snapshot = append(snapshot, e)
	}
	b.mu.RUnlock()

	var sum ResourceGradient
	fresh := 0
	for _, e := range snapshot {
		if now-e.receivedAt > b.cfg.MaxAgeMs {
			continue
		}
		sum.CPUAvailable += e.gradient.CPUAvailable
		sum.MemoryAvailable += e.gradient.MemoryAvailable
		sum.BandwidthAvailable += e.gradient.BandwidthAvailable
		sum.StorageAvailable += e.gradient.StorageAvailable
		fresh++
	}
	if fresh == 0 {
		return ResourceGradient{}, false
	}
	n := float64(fresh)
	return ResourceGradient{
		CPUAvailable:       sum.CPUAvailable / n,
		MemoryAvailable:    sum.MemoryAvailable / n,
		BandwidthAvailable: sum.BandwidthAvailable / n,
		StorageAvailable:   sum.StorageAvailable / n,
	}, true
}

// PruneStale drops every entry older than MaxAgeMs. Idempotent.
func (b *Broadcaster) PruneStale() int {
	now := b.clock.NowMs()

	b.mu.Lock()
	dropped := 0
	for src, e := range b.entries {
		if now-e.receivedAt > b.cfg.MaxAgeMs {
			delete(b.entries, src)
			dropped++
		}
	}
	n := len(b.entries)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.EntriesTracked.Set(float64(n))
		if dropped > 0 {
			b.metrics.Pruned.Add(float64(dropped))
		}
	}
	return dropped
}

// PeerCount returns the number of tracked entries (fresh or stale),
// primarily for tests and observability.
func (b *Broadcaster) PeerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
