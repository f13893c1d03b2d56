package septal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vudo/enr-bridge/clock"
	"github.com/vudo/enr-bridge/ids"
	"github.com/vudo/enr-bridge/internal/health"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (p *recordingPublisher) Publish(_ string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, payload)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *clock.Clock, *recordingPublisher) {
	t.Helper()
	c := clock.New()
	c.Set(time.UnixMilli(1_000_000))
	pub := &recordingPublisher{}
	m := New(ids.GenerateTestID(), pub, WithClock(c))
	return m, c, pub
}

var tripScore = HealthScore{TimeoutScore: 1.0, CreditDefaultScore: 1.0, ReputationScore: 1.0}

func TestNewPeerStartsOpen(t *testing.T) {
	m, _, _ := newTestManager(t)
	peer := ids.GenerateTestID()
	require.True(t, m.AllowsTraffic(peer))
}

// TestSeptalTripAndRecoverScenarioS5 implements spec.md §8 scenario S5.
func TestSeptalTripAndRecoverScenarioS5(t *testing.T) {
	require := require.New(t)
	m, c, _ := newTestManager(t)
	peer := ids.GenerateTestID()

	for i := 0; i < 4; i++ {
		m.RecordFailure(peer, "timeout", tripScore)
	}
	require.True(m.AllowsTraffic(peer))
	stats := m.Stats()
	require.Equal(0, stats.Closed)

	m.RecordFailure(peer, "timeout", tripScore) // 5th failure trips the gate
	require.False(m.AllowsTraffic(peer))
	stats = m.Stats()
	require.Equal(1, stats.Closed)
	require.Equal(1, stats.TotalIsolated)

	c.Advance(60 * time.Second)
	require.NoError(m.AttemptHalfOpen(peer))

	m.RecordSuccess(peer)
	require.True(m.AllowsTraffic(peer))
	stats = m.Stats()
	require.Equal(1, stats.Open)
	require.Equal(0, stats.Closed)
}

func TestRecordFailureBelowThresholdStaysOpen(t *testing.T) {
	require := require.New(t)
	m, _, _ := newTestManager(t)
	peer := ids.GenerateTestID()

	for i := 0; i < 4; i++ {
		m.RecordFailure(peer, "timeout", tripScore)
	}
	require.True(m.AllowsTraffic(peer))
}

func TestRecordFailureBelowWeightedScoreStaysOpen(t *testing.T) {
	require := require.New(t)
	m, _, _ := newTestManager(t)
	peer := ids.GenerateTestID()

	low := HealthScore{TimeoutScore: 0.1, CreditDefaultScore: 0.1, ReputationScore: 0.1}
	for i := 0; i < 10; i++ {
		m.RecordFailure(peer, "timeout", low)
	}
	require.True(m.AllowsTraffic(peer)) // never trips: weighted score stays below 0.7
}

// TestClosedInvariant4 checks invariant 4: state == Closed implies
// isolation_start is set, by exercising the gate's internal state
// through the manager's own observability surface.
func TestClosedInvariant4(t *testing.T) {
	require := require.New(t)
	m, _, _ := newTestManager(t)
	peer := ids.GenerateTestID()

	for i := 0; i < 5; i++ {
		m.RecordFailure(peer, "timeout", tripScore)
	}

	m.mu.Lock()
	g := m.gates[peer]
	closed := g.state == Closed
	hasStart := g.isolationStart != 0
	m.mu.Unlock()

	require.True(closed)
	require.True(hasStart)
}

func TestAttemptHalfOpenBeforeTimeoutFails(t *testing.T) {
	require := require.New(t)
	m, c, _ := newTestManager(t)
	peer := ids.GenerateTestID()

	for i := 0; i < 5; i++ {
		m.RecordFailure(peer, "timeout", tripScore)
	}
	c.Advance(30 * time.Second)

	err := m.AttemptHalfOpen(peer)
	require.ErrorIs(err, ErrRecoveryNotEligible)
}

func TestFailRecoveryReturnsToClosedWithFreshIsolation(t *testing.T) {
	require := require.New(t)
	m, c, _ := newTestManager(t)
	peer := ids.GenerateTestID()

	for i := 0; i < 5; i++ {
		m.RecordFailure(peer, "timeout", tripScore)
	}
	c.Advance(60 * time.Second)
	require.NoError(m.AttemptHalfOpen(peer))

	m.FailRecovery(peer)
	require.False(m.AllowsTraffic(peer))

	stats := m.Stats()
	require.Equal(1, stats.Closed)
	require.Equal(1, stats.TotalIsolated)
}

func TestShouldBlockTransactionRequiresEitherIsolated(t *testing.T) {
	require := require.New(t)
	m, _, _ := newTestManager(t)
	a := ids.GenerateTestID()
	b := ids.GenerateTestID()

	require.False(m.ShouldBlockTransaction(a, b))

	for i := 0; i < 5; i++ {
		m.RecordFailure(a, "timeout", tripScore)
	}
	require.True(m.ShouldBlockTransaction(a, b))
	require.True(m.ShouldBlockTransaction(b, a))
	require.Equal(uint64(2), m.gates[a].body.BlockedCount)
}

func TestCascadePreventionIsolatesOnlyTargetPeer(t *testing.T) {
	require := require.New(t)
	m, _, _ := newTestManager(t)
	a := ids.GenerateTestID()
	b := ids.GenerateTestID()

	for i := 0; i < 5; i++ {
		m.RecordFailure(a, "timeout", tripScore)
	}
	require.False(m.AllowsTraffic(a))
	require.True(m.AllowsTraffic(b))
}

func TestHealthReportsUnhealthyWhenPeerIsolated(t *testing.T) {
	require := require.New(t)
	m, _, _ := newTestManager(t)
	peer := ids.GenerateTestID()

	for i := 0; i < 5; i++ {
		m.RecordFailure(peer, "timeout", tripScore)
	}

	raw, err := m.Health(context.Background())
	require.NoError(err)
	report, ok := raw.(health.Report)
	require.True(ok)
	require.False(report.Healthy)
	require.Len(report.Checks, 1)
}
