// Package metrics provides the Prometheus collectors the ENR bridge
// subsystems register themselves against. The Metrics struct is a thin
// Registerer wrapper; the collector sets below are one per subsystem, so
// each concern gets real counters and gauges instead of a bare-stdlib
// tally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps a Prometheus registerer for the bridge.
type Metrics struct {
	Registry prometheus.Registerer
}

// New creates a Metrics wrapper around reg. A nil reg is replaced with a
// fresh, unshared registry so callers who don't care about export can
// still register collectors without panicking.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Metrics{Registry: reg}
}

// Register registers a collector, ignoring AlreadyRegisteredError so
// repeated subsystem construction in tests doesn't panic.
func (m *Metrics) Register(c prometheus.Collector) {
	if err := m.Registry.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			panic(err)
		}
	}
}

// GradientCollectors are the Gradient Broadcaster's counters and gauges.
type GradientCollectors struct {
	EntriesTracked prometheus.Gauge
	Rejected       *prometheus.CounterVec
	Pruned         prometheus.Counter
}

// NewGradientCollectors builds and registers the Gradient Broadcaster's
// collectors against m.
func NewGradientCollectors(m *Metrics) *GradientCollectors {
	c := &GradientCollectors{
		EntriesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "enr",
			Subsystem: "gradient",
			Name:      "entries_tracked",
			Help:      "Number of gradient entries currently held, fresh or stale.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enr",
			Subsystem: "gradient",
			Name:      "rejected_total",
			Help:      "Inbound gradient updates rejected, by reason.",
		}, []string{"reason"}),
		Pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "enr",
			Subsystem: "gradient",
			Name:      "pruned_total",
			Help:      "Gradient entries dropped for exceeding the freshness window.",
		}),
	}
	m.Register(c.EntriesTracked)
	m.Register(c.Rejected)
	m.Register(c.Pruned)
	return c
}

// CreditCollectors are the Credit Synchronizer's counters and gauges.
type CreditCollectors struct {
	RevivalPool    prometheus.Gauge
	TransfersTotal *prometheus.CounterVec
	ReplaysDropped prometheus.Counter
}

// NewCreditCollectors builds and registers the Credit Synchronizer's
// collectors against m.
func NewCreditCollectors(m *Metrics) *CreditCollectors {
	c := &CreditCollectors{
		RevivalPool: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "enr",
			Subsystem: "credit",
			Name:      "revival_pool",
			Help:      "Current scalar value of the entropy-tax revival pool.",
		}),
		TransfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enr",
			Subsystem: "credit",
			Name:      "transfers_total",
			Help:      "Credit transfers processed, by outcome.",
		}, []string{"outcome"}),
		ReplaysDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "enr",
			Subsystem: "credit",
			Name:      "replays_dropped_total",
			Help:      "Inbound transfers dropped for replay or out-of-order nonce.",
		}),
	}
	m.Register(c.RevivalPool)
	m.Register(c.TransfersTotal)
	m.Register(c.ReplaysDropped)
	return c
}

// ElectionCollectors are the Distributed Election's counters and gauges.
type ElectionCollectors struct {
	PhaseTransitions *prometheus.CounterVec
	Finalized        *prometheus.CounterVec
}

// NewElectionCollectors builds and registers the Election subsystem's
// collectors against m.
func NewElectionCollectors(m *Metrics) *ElectionCollectors {
	c := &ElectionCollectors{
		PhaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enr",
			Subsystem: "election",
			Name:      "phase_transitions_total",
			Help:      "Election phase transitions, by destination phase.",
		}, []string{"phase"}),
		Finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enr",
			Subsystem: "election",
			Name:      "finalized_total",
			Help:      "Elections finalized, by result.",
		}, []string{"result"}),
	}
	m.Register(c.PhaseTransitions)
	m.Register(c.Finalized)
	return c
}

// SeptalCollectors are the Septal Gate Manager's counters and gauges.
type SeptalCollectors struct {
	GateState       *prometheus.GaugeVec
	Transitions     *prometheus.CounterVec
	BlockedTxns     prometheus.Counter
}

// NewSeptalCollectors builds and registers the Septal Gate Manager's
// collectors against m.
func NewSeptalCollectors(m *Metrics) *SeptalCollectors {
	c := &SeptalCollectors{
		GateState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "enr",
			Subsystem: "septal",
			Name:      "gates",
			Help:      "Current gate count, by state.",
		}, []string{"state"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enr",
			Subsystem: "septal",
			Name:      "transitions_total",
			Help:      "Gate state transitions, by destination state.",
		}, []string{"state"}),
		BlockedTxns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "enr",
			Subsystem: "septal",
			Name:      "blocked_transactions_total",
			Help:      "Transactions blocked by an isolated peer's Woronin body.",
		}),
	}
	m.Register(c.GateState)
	m.Register(c.Transitions)
	m.Register(c.BlockedTxns)
	return c
}
