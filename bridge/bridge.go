// Package bridge wires the four ENR subsystems (gradient, credit,
// election, septal) behind the single ingress/egress surface described in
// spec.md §4.5: handle_message(bytes) demultiplexes by envelope
// discriminator, publish(topic, bytes) is the sole egress injection
// point, and maintenance() drives the periodic gradient-prune /
// election-deadline / septal-recovery ticks.
//
// The single-entrypoint dispatch-by-kind shape is adapted from
// router.InboundHandler (github.com/luxfi/consensus/networking/router),
// which also funnels every inbound message through one handler before
// fanning out; this package fans out by codec.Kind instead of by chain ID.
package bridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vudo/enr-bridge/clock"
	"github.com/vudo/enr-bridge/codec"
	"github.com/vudo/enr-bridge/credit"
	"github.com/vudo/enr-bridge/election"
	"github.com/vudo/enr-bridge/gradient"
	"github.com/vudo/enr-bridge/identity"
	"github.com/vudo/enr-bridge/ids"
	"github.com/vudo/enr-bridge/log"
	"github.com/vudo/enr-bridge/metrics"
	"github.com/vudo/enr-bridge/septal"
)

// ErrUnhandledKind is returned by HandleMessage for a discriminator no
// subsystem in this bridge owns (e.g. a health probe/response, which is
// an external collaborator's concern per spec.md §1).
var ErrUnhandledKind = errors.New("bridge: no subsystem handles this envelope kind")

// GossipPublisher is the single external collaborator: the pub/sub
// fabric the bridge publishes onto. The transport fabric itself is out
// of scope per spec.md §1; this is its injection seam.
type GossipPublisher interface {
	Publish(topic string, payload []byte) error
}

// MaintenanceInterval is the minimum cadence spec.md §4.5 requires for
// gradient pruning; callers are expected to invoke Maintenance at least
// this often.
const MaintenanceInterval = 5 * time.Second

// Snapshot is the bridge's optional graceful-shutdown snapshot, per
// spec.md §9: it holds only the Credit Synchronizer's ledger. The Septal
// Gate Manager is not snapshotted and restarts with no gates; the
// Gradient Broadcaster and Distributed Election are pruned/time-bounded
// in a way that makes a cold restart equivalent to an empty start.
type Snapshot struct {
	Credit credit.Snapshot
}

// Bridge is the EnrBridge router: it owns one instance of each
// subsystem and sequences cross-subsystem effects that spec.md §9 says
// must not become direct back-references (e.g. Election reads the
// Open-gated peer count from Septal through a closure set up here). A
// failed signature check is returned by HandleMessage as the subsystem's
// error; the bridge does not record a septal failure for it.
type Bridge struct {
	mu sync.Mutex

	self     ids.NodeID
	pub      GossipPublisher
	log      log.Logger
	clk      *clock.Clock
	verifier identity.Verifier
	zapLog   *zap.Logger

	Gradient *gradient.Broadcaster
	Credit   *credit.Ledger
	Election *election.Election
	Septal   *septal.Manager

	lastGradientPrune time.Time
}

// Option configures a Bridge at construction time.
type Option func(*Bridge)

func WithLogger(l log.Logger) Option { return func(b *Bridge) { b.log = l } }

// WithClock injects a single mockable clock shared by every subsystem
// that has one (gradient, election, septal), so bridge-level tests can
// drive phase deadlines and freshness windows deterministically.
func WithClock(c *clock.Clock) Option { return func(b *Bridge) { b.clk = c } }

// WithVerifier injects a shared signature-verification hook, forwarded to
// every subsystem whose wire payload carries a Signature field (gradient,
// credit). Defaults to identity.NoOpVerifier.
func WithVerifier(v identity.Verifier) Option { return func(b *Bridge) { b.verifier = v } }

// WithZapDiagnostics injects the zap.Logger used to flag, at construction
// time, any subsystem left on the unauthenticated no-op Verifier default
// per spec.md §7. Defaults to a no-op logger.
func WithZapDiagnostics(zl *zap.Logger) Option { return func(b *Bridge) { b.zapLog = zl } }

// New wires the four subsystems together. Each subsystem is constructed
// with this bridge as its publisher, so every outbound envelope passes
// through the single publish(topic, bytes) seam, and with self.Election
// is given a ParticipantsFunc backed by Septal's Open-gated peer set, per
// spec.md §4.3's quorum rule.
func New(self ids.NodeID, pub GossipPublisher, m *metrics.Metrics, opts ...Option) *Bridge {
	b := &Bridge{
		self:     self,
		pub:      pub,
		log:      log.NewNoOp(),
		clk:      clock.New(),
		verifier: identity.NoOpVerifier{},
		zapLog:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	gradientOpts := []gradient.Option{
		gradient.WithLogger(b.log), gradient.WithClock(b.clk), gradient.WithVerifier(b.verifier),
	}
	creditOpts := []credit.Option{credit.WithLogger(b.log), credit.WithVerifier(b.verifier)}
	septalOpts := []septal.Option{septal.WithLogger(b.log), septal.WithClock(b.clk)}
	electionOpts := []election.Option{
		election.WithLogger(b.log),
		election.WithClock(b.clk),
		election.WithParticipants(func() int { return len(b.Septal.OpenPeers()) }),
	}

	if m != nil {
		gradientOpts = append(gradientOpts, gradient.WithMetrics(m))
		creditOpts = append(creditOpts, credit.WithMetrics(m))
		septalOpts = append(septalOpts, septal.WithMetrics(m))
		electionOpts = append(electionOpts, election.WithMetrics(m))
	}

	b.Gradient = gradient.New(self, gradientPublisher{b}, gradientOpts...)
	b.Credit = credit.New(self, creditPublisher{b}, creditOpts...)
	b.Septal = septal.New(self, septalPublisher{b}, septalOpts...)
	b.Election = election.New(self, electionPublisher{b}, electionOpts...)

	identity.WarnIfUnverified(b.zapLog, "gradient", b.verifier)
	identity.WarnIfUnverified(b.zapLog, "credit", b.verifier)

	return b
}

// the four thin Publisher adapters route each subsystem's egress
// through Bridge.publish, so GossipPublisher is the bridge's only
// external collaborator no matter how many subsystems are added later.

type gradientPublisher struct{ b *Bridge }

func (p gradientPublisher) Publish(topic string, payload []byte) error {
	return p.b.publish(topic, payload)
}

type creditPublisher struct{ b *Bridge }

func (p creditPublisher) Publish(topic string, payload []byte) error {
	return p.b.publish(topic, payload)
}

type electionPublisher struct{ b *Bridge }

func (p electionPublisher) Publish(topic string, payload []byte) error {
	return p.b.publish(topic, payload)
}

type septalPublisher struct{ b *Bridge }

func (p septalPublisher) Publish(topic string, payload []byte) error {
	return p.b.publish(topic, payload)
}

func (b *Bridge) publish(topic string, payload []byte) error {
	return b.pub.Publish(topic, payload)
}

// HandleMessage decodes the envelope's discriminator and dispatches to
// the owning subsystem. Unknown discriminators are logged and discarded
// per spec.md §7, never escalated to the caller as a hard error beyond
// ErrUnhandledKind, which callers may choose to ignore.
func (b *Bridge) HandleMessage(data []byte) error {
	kind, _, err := codec.Peek(data)
	if err != nil {
		b.log.Warn("bridge: malformed envelope", "error", err)
		return fmt.Errorf("bridge: %w", err)
	}

	switch kind {
	case codec.KindGradientUpdate:
		return b.Gradient.HandleInbound(data)
	case codec.KindCreditTransfer:
		return b.Credit.HandleInboundTransfer(data)
	case codec.KindBalanceQuery:
		return b.Credit.HandleBalanceQuery(data)
	case codec.KindElectionAnnouncement:
		return b.Election.HandleAnnouncement(data)
	case codec.KindElectionCandidacy:
		return b.Election.HandleCandidacy(data)
	case codec.KindElectionVote:
		return b.Election.HandleVote(data)
	case codec.KindSeptalStateChange:
		return b.Septal.HandleRemoteStateChange(data)
	default:
		b.log.Warn("bridge: unhandled envelope kind", "kind", kind.String())
		return ErrUnhandledKind
	}
}

// Maintenance runs the periodic tick described in spec.md §4.5: gradient
// pruning (throttled to MaintenanceInterval), election phase/deadline
// checks, and an opportunistic half-open attempt for any peer whose
// isolation window has elapsed. Callers are expected to invoke this at
// least every MaintenanceInterval.
func (b *Bridge) Maintenance(now time.Time) {
	b.mu.Lock()
	due := now.Sub(b.lastGradientPrune) >= MaintenanceInterval
	if due {
		b.lastGradientPrune = now
	}
	b.mu.Unlock()

	if due {
		b.Gradient.PruneStale()
	}

	if _, err := b.Election.Maintenance(); err != nil {
		b.log.Warn("bridge: election maintenance", "error", err)
	}

	b.attemptRecoveries()
}

// attemptRecoveries calls AttemptHalfOpen for every Closed peer whose
// recovery timeout has elapsed. ErrRecoveryNotEligible is expected for
// peers still inside their isolation window and is not logged.
func (b *Bridge) attemptRecoveries() {
	stats := b.Septal.Stats()
	if stats.Closed == 0 {
		return
	}
	for _, peer := range b.Septal.ClosedPeers() {
		if err := b.Septal.AttemptHalfOpen(peer); err != nil && !errors.Is(err, septal.ErrRecoveryNotEligible) {
			b.log.Warn("bridge: septal recovery attempt", "error", err)
		}
	}
}

// Snapshot captures the restartable subset of bridge state, per
// spec.md §9: the Credit Synchronizer's ledger. The Septal Gate Manager
// and Gradient Broadcaster re-initialize cold, and the Distributed
// Election never survives a restart by design (an in-flight election is
// abandoned, matching the hard-deadline abandonment behavior).
func (b *Bridge) Snapshot() Snapshot {
	return Snapshot{Credit: b.Credit.Snapshot()}
}

// Restore applies a prior Snapshot to a freshly constructed Bridge.
func (b *Bridge) Restore(s Snapshot) {
	b.Credit.Restore(s.Credit)
}
