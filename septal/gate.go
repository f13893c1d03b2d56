// Package septal implements the Septal Gate Manager: a per-peer circuit
// breaker that isolates unhealthy peers and blocks transactions through a
// coupled "Woronin body" sidecar, per spec.md §4.4.
//
// The per-peer state map guarded by a single mutex, with Stats()
// snapshotting counts before returning, follows the same shape as the
// Credit Synchronizer's ledger (github.com/vudo/enr-bridge/credit). The
// Health() reporting surface implements the health.Checkable interface
// adapted from github.com/luxfi/consensus/health, whose
// Report{Healthy, Checks, Details, Duration} shape this package reuses to
// expose one Check per isolated peer instead of a one-check-per-subsystem
// layout.
package septal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vudo/enr-bridge/clock"
	"github.com/vudo/enr-bridge/codec"
	"github.com/vudo/enr-bridge/events"
	"github.com/vudo/enr-bridge/identity"
	"github.com/vudo/enr-bridge/ids"
	"github.com/vudo/enr-bridge/internal/health"
	"github.com/vudo/enr-bridge/log"
	"github.com/vudo/enr-bridge/metrics"
)

// Topic is the fixed pub/sub topic septal messages travel on.
const Topic = "/vudo/enr/septal/1.0.0"

// Constants from spec.md §6.
const (
	FailureThreshold          = 5
	RecoveryTimeoutMs   int64 = 60_000
	IsolationThreshold        = 0.7
	WeightTimeout             = 0.4
	WeightCreditDefault       = 0.3
	WeightReputation          = 0.3
)

// GateState is a peer gate's circuit-breaker position.
type GateState int

const (
	Open GateState = iota
	HalfOpen
	Closed
)

func (s GateState) String() string {
	switch s {
	case Open:
		return "Open"
	case HalfOpen:
		return "HalfOpen"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ErrUnknownPeer is returned by operations that require a previously
// observed peer but were given one with no tracked gate.
var ErrUnknownPeer = errors.New("septal: no gate tracked for peer")

// ErrRecoveryNotEligible is returned by AttemptHalfOpen when the 60s
// isolation window has not yet elapsed.
var ErrRecoveryNotEligible = errors.New("septal: recovery timeout has not elapsed")

// HealthScore is the three-way weighted subscore input to the
// Open→Closed transition, per spec.md §4.4: each component lies in
// [0,1]; the combined weighted score is compared against
// IsolationThreshold.
type HealthScore struct {
	TimeoutScore       float64
	CreditDefaultScore float64
	ReputationScore    float64
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Weighted combines the three subscores per spec.md's fixed weights
// (0.4, 0.3, 0.3).
func (h HealthScore) Weighted() float64 {
	return WeightTimeout*clamp01(h.TimeoutScore) +
		WeightCreditDefault*clamp01(h.CreditDefaultScore) +
		WeightReputation*clamp01(h.ReputationScore)
}

// WoroninBody tracks transactions blocked for one isolated peer.
type WoroninBody struct {
	Active        bool
	BlockedCount  uint64
	Reason        string
}

// gate is one peer's full tracked circuit-breaker state.
type gate struct {
	peer            ids.NodeID
	state           GateState
	failureCount    uint32
	isolationStart  int64 // 0 when unset
	lastTransition  int64
	body            WoroninBody
}

// wireStateChange is the gossip payload for handle_remote_state_change.
type wireStateChange struct {
	Peer   ids.NodeID `json:"peer"`
	State  string     `json:"state"`
	AtMs   int64      `json:"at_ms"`
	Reason string     `json:"reason"`
}

// Stats is the stats() observability snapshot.
type Stats struct {
	Open          int
	HalfOpen      int
	Closed        int
	TotalIsolated int
	TotalFailures uint64
}

// Publisher is the single egress injection point gossip goes through.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Manager implements the Septal Gate Manager.
type Manager struct {
	mu sync.Mutex

	self ids.NodeID
	pub  Publisher
	clk  *clock.Clock

	signer  identity.Signer
	log     log.Logger
	sink    events.Sink
	metrics *metrics.SeptalCollectors

	gates         map[ids.NodeID]*gate
	totalIsolated int
	totalFailures uint64
}

// New constructs a Manager for self, publishing through pub.
func New(self ids.NodeID, pub Publisher, opts ...Option) *Manager {
	m := &Manager{
		self:   self,
		pub:    pub,
		clk:    clock.New(),
		signer: identity.NoOpSigner{},
		log:    log.NewNoOp(),
		sink:   events.NoOpSink{},
		gates:  make(map[ids.NodeID]*gate),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Option configures a Manager at construction time.
type Option func(*Manager)

func WithClock(c *clock.Clock) Option    { return func(m *Manager) { m.clk = c } }
func WithSigner(s identity.Signer) Option { return func(m *Manager) { m.signer = s } }
func WithLogger(l log.Logger) Option      { return func(m *Manager) { m.log = l } }
func WithSink(s events.Sink) Option        { return func(m *Manager) { m.sink = s } }
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics.NewSeptalCollectors(mt) }
}

// getOrCreateLocked returns peer's gate, creating it Open with
// failure_count 0 if this is the first time peer has been observed.
func (m *Manager) getOrCreateLocked(peer ids.NodeID) *gate {
	g, ok := m.gates[peer]
	if !ok {
		g = &gate{peer: peer, state: Open, lastTransition: m.clk.NowMs()}
		m.gates[peer] = g
	}
	return g
}

// countTransition records the transition and refreshes the gate-state
// gauge from the current map. Callers must hold m.mu.
func (m *Manager) countTransition(to GateState) {
	if m.metrics == nil {
		return
	}
	m.metrics.Transitions.WithLabelValues(to.String()).Inc()

	var open, halfOpen, closed float64
	for _, g := range m.gates {
		switch g.state {
		case Open:
			open++
		case HalfOpen:
			halfOpen++
		case Closed:
			closed++
		}
	}
	m.metrics.GateState.WithLabelValues(Open.String()).Set(open)
	m.metrics.GateState.WithLabelValues(HalfOpen.String()).Set(halfOpen)
	m.metrics.GateState.WithLabelValues(Closed.String()).Set(closed)
}

// RecordFailure increments peer's failure_count and may trigger the
// Open→Closed transition if both the count and weighted health score
// clear their thresholds.
func (m *Manager) RecordFailure(peer ids.NodeID, reason string, score HealthScore) {
	m.mu.Lock()
	g := m.getOrCreateLocked(peer)
	g.failureCount++
	m.totalFailures++

	var emit *events.SeptalStateChange
	if g.state == Open && g.failureCount >= FailureThreshold && score.Weighted() >= IsolationThreshold {
		now := m.clk.NowMs()
		g.state = Closed
		g.isolationStart = now
		g.lastTransition = now
		g.body = WoroninBody{Active: true, Reason: reason}
		m.totalIsolated++
		m.countTransition(Closed)
		emit = &events.SeptalStateChange{Peer: peer, From: Open.String(), To: Closed.String(), AtMs: now, Reason: reason}
	}
	m.mu.Unlock()

	if emit != nil {
		if err := m.publishStateChange(peer, Closed, reason); err != nil {
			m.log.Warn("septal: publish state change failed", "error", err)
		}
		m.sink.Emit(events.Event{Kind: events.KindSeptalStateChange, Data: *emit})
	}
}

// RecordSuccess clears failure_count while Open, completes recovery
// while HalfOpen, and is ignored while Closed.
func (m *Manager) RecordSuccess(peer ids.NodeID) {
	m.mu.Lock()
	g, ok := m.gates[peer]
	if !ok {
		m.mu.Unlock()
		return
	}

	switch g.state {
	case Open:
		g.failureCount = 0
		m.mu.Unlock()
	case HalfOpen:
		m.mu.Unlock()
		m.recover(peer)
	case Closed:
		m.mu.Unlock()
	}
}

// AllowsTraffic reports whether peer's gate is Open or HalfOpen.
func (m *Manager) AllowsTraffic(peer ids.NodeID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gates[peer]
	if !ok {
		return true // unobserved peers default Open
	}
	return g.state == Open || g.state == HalfOpen
}

// ShouldBlockTransaction reports whether either party is Closed. Each
// isolated party's Woronin body counts the blocked transaction.
func (m *Manager) ShouldBlockTransaction(a, b ids.NodeID) bool {
	m.mu.Lock()
	blocked := false
	if g, ok := m.gates[a]; ok && g.state == Closed {
		g.body.BlockedCount++
		blocked = true
	}
	if g, ok := m.gates[b]; ok && g.state == Closed {
		g.body.BlockedCount++
		blocked = true
	}
	m.mu.Unlock()
	if blocked && m.metrics != nil {
		m.metrics.BlockedTxns.Inc()
	}
	return blocked
}

// AttemptHalfOpen transitions peer from Closed to HalfOpen if at least
// RecoveryTimeoutMs has elapsed since isolation_start.
func (m *Manager) AttemptHalfOpen(peer ids.NodeID) error {
	m.mu.Lock()
	g, ok := m.gates[peer]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownPeer
	}
	if g.state != Closed {
		m.mu.Unlock()
		return nil
	}
	now := m.clk.NowMs()
	if now-g.isolationStart < RecoveryTimeoutMs {
		m.mu.Unlock()
		return ErrRecoveryNotEligible
	}
	g.state = HalfOpen
	g.lastTransition = now
	m.countTransition(HalfOpen)
	m.mu.Unlock()

	if err := m.publishStateChange(peer, HalfOpen, "recovery probe"); err != nil {
		m.log.Warn("septal: publish state change failed", "error", err)
	}
	m.sink.Emit(events.Event{Kind: events.KindSeptalStateChange, Data: events.SeptalStateChange{
		Peer: peer, From: Closed.String(), To: HalfOpen.String(), AtMs: now, Reason: "recovery probe",
	}})
	return nil
}

// recover implements the HalfOpen→Open transition.
func (m *Manager) recover(peer ids.NodeID) {
	m.mu.Lock()
	g, ok := m.gates[peer]
	if !ok || g.state != HalfOpen {
		m.mu.Unlock()
		return
	}
	now := m.clk.NowMs()
	g.state = Open
	g.failureCount = 0
	g.isolationStart = 0
	g.lastTransition = now
	g.body = WoroninBody{}
	m.totalIsolated--
	m.countTransition(Open)
	m.mu.Unlock()

	if err := m.publishStateChange(peer, Open, "recovery succeeded"); err != nil {
		m.log.Warn("septal: publish state change failed", "error", err)
	}
	m.sink.Emit(events.Event{Kind: events.KindSeptalStateChange, Data: events.SeptalStateChange{
		Peer: peer, From: HalfOpen.String(), To: Open.String(), AtMs: now, Reason: "recovery succeeded",
	}})
}

// FailRecovery implements the HalfOpen→Closed transition: the probe
// failed, so isolation restarts from now while the Woronin body stays
// active.
func (m *Manager) FailRecovery(peer ids.NodeID) {
	m.mu.Lock()
	g, ok := m.gates[peer]
	if !ok || g.state != HalfOpen {
		m.mu.Unlock()
		return
	}
	now := m.clk.NowMs()
	g.state = Closed
	g.isolationStart = now
	g.lastTransition = now
	g.body.Active = true
	m.countTransition(Closed)
	m.mu.Unlock()

	if err := m.publishStateChange(peer, Closed, "recovery probe failed"); err != nil {
		m.log.Warn("septal: publish state change failed", "error", err)
	}
	m.sink.Emit(events.Event{Kind: events.KindSeptalStateChange, Data: events.SeptalStateChange{
		Peer: peer, From: HalfOpen.String(), To: Closed.String(), AtMs: now, Reason: "recovery probe failed",
	}})
}

// HandleRemoteStateChange applies a peer's observed state change to the
// local gate map as an advisory hint; the local node may decline to
// follow it entirely (it never overrides a Closed gate's isolation with
// a weaker remote-reported state).
func (m *Manager) HandleRemoteStateChange(data []byte) error {
	var wire wireStateChange
	if err := codec.Decode(data, codec.KindSeptalStateChange, &wire); err != nil {
		return fmt.Errorf("septal: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.getOrCreateLocked(wire.Peer)
	remote := parseState(wire.State)

	// Advisory: never let a remote hint pull a locally Closed gate open.
	if g.state == Closed && remote != Closed {
		return nil
	}
	if g.state == remote {
		return nil
	}

	if remote == Closed {
		g.state = Closed
		g.isolationStart = wire.AtMs
		g.body = WoroninBody{Active: true, Reason: wire.Reason}
		m.totalIsolated++
	} else {
		g.state = remote
	}
	g.lastTransition = wire.AtMs
	m.countTransition(remote)
	return nil
}

func parseState(s string) GateState {
	switch s {
	case "Closed":
		return Closed
	case "HalfOpen":
		return HalfOpen
	default:
		return Open
	}
}

// Stats returns an observability snapshot of the gate population.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{TotalIsolated: m.totalIsolated, TotalFailures: m.totalFailures}
	for _, g := range m.gates {
		switch g.state {
		case Open:
			stats.Open++
		case HalfOpen:
			stats.HalfOpen++
		case Closed:
			stats.Closed++
		}
	}
	return stats
}

// OpenPeers returns the set of peers currently in the Open state, used
// by the Distributed Election subsystem to size its quorum denominator.
func (m *Manager) OpenPeers() []ids.NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ids.NodeID, 0, len(m.gates))
	for peer, g := range m.gates {
		if g.state == Open {
			out = append(out, peer)
		}
	}
	return out
}

// ClosedPeers returns the set of peers currently isolated, used by the
// bridge's maintenance tick to drive opportunistic half-open attempts.
func (m *Manager) ClosedPeers() []ids.NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ids.NodeID, 0, m.totalIsolated)
	for peer, g := range m.gates {
		if g.state == Closed {
			out = append(out, peer)
		}
	}
	return out
}

// Health implements health.Checkable: one Check per isolated peer, plus
// an overall rollup. A Manager with zero Closed gates reports healthy.
func (m *Manager) Health(_ context.Context) (interface{}, error) {
	start := m.clk.Now()
	m.mu.Lock()
	checks := make([]health.Check, 0, m.totalIsolated)
	for _, g := range m.gates {
		if g.state != Closed {
			continue
		}
		checks = append(checks, health.Check{
			Name:    g.peer.String(),
			Healthy: false,
			Error:   g.body.Reason,
			Details: map[string]interface{}{
				"failure_count":   g.failureCount,
				"isolation_start": g.isolationStart,
			},
		})
	}
	healthy := len(checks) == 0
	m.mu.Unlock()

	return health.Report{
		Healthy:  healthy,
		Checks:   checks,
		Duration: time.Duration(m.clk.NowMs()-start.UnixMilli()) * time.Millisecond,
	}, nil
}

func (m *Manager) publishStateChange(peer ids.NodeID, to GateState, reason string) error {
	wire := wireStateChange{Peer: peer, State: to.String(), AtMs: m.clk.NowMs(), Reason: reason}
	body, err := codec.Encode(codec.KindSeptalStateChange, wire)
	if err != nil {
		return fmt.Errorf("septal: encode: %w", err)
	}
	// wireStateChange carries no signature field, unlike gradient/credit's
	// wire payloads; this call just exercises the signing hook.
	_ = m.signer.Sign(body)
	return m.pub.Publish(Topic, body)
}
