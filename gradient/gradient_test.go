package gradient

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vudo/enr-bridge/clock"
	"github.com/vudo/enr-bridge/codec"
	"github.com/vudo/enr-bridge/ids"
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

func (p *recordingPublisher) last() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.msgs[len(p.msgs)-1]
}

func newTestBroadcaster(t *testing.T) (*Broadcaster, *clock.Clock, *recordingPublisher) {
	t.Helper()
	c := clock.New()
	c.Set(time.UnixMilli(1_000_000))
	pub := &recordingPublisher{}
	b := New(ids.GenerateTestID(), pub, WithClock(c))
	return b, c, pub
}

func TestBroadcastLocalReplacesEntryAtomically(t *testing.T) {
	require := require.New(t)
	b, _, pub := newTestBroadcaster(t)

	require.NoError(b.BroadcastLocal(ResourceGradient{CPUAvailable: 0.5}))
	require.Equal(1, b.PeerCount())
	require.Len(pub.msgs, 1)

	require.NoError(b.BroadcastLocal(ResourceGradient{CPUAvailable: 0.9}))
	require.Equal(1, b.PeerCount())

	got, ok := b.Aggregate()
	require.True(ok)
	require.Equal(0.9, got.CPUAvailable)
}

func TestHandleInboundRejectsFuture(t *testing.T) {
	require := require.New(t)
	b, c, _ := newTestBroadcaster(t)

	wire := wireUpdate{Source: ids.GenerateTestID(), Timestamp: c.NowMs() + MaxFutureToleranceMs + 1}
	data, err := codec.Encode(codec.KindGradientUpdate, wire)
	require.NoError(err)

	err = b.HandleInbound(data)
	require.ErrorIs(err, ErrFutureTimestamp)
}

func TestHandleInboundRejectsStale(t *testing.T) {
	require := require.New(t)
	b, c, _ := newTestBroadcaster(t)

	wire := wireUpdate{Source: ids.GenerateTestID(), Timestamp: c.NowMs() - MaxAgeMs - 1}
	data, err := codec.Encode(codec.KindGradientUpdate, wire)
	require.NoError(err)

	err = b.HandleInbound(data)
	require.ErrorIs(err, ErrStaleTimestamp)
}

func TestHandleInboundLastTimestampWins(t *testing.T) {
	require := require.New(t)
	b, c, _ := newTestBroadcaster(t)
	src := ids.GenerateTestID()

	newer := wireUpdate{Source: src, Gradient: ResourceGradient{CPUAvailable: 0.9}, Timestamp: c.NowMs()}
	data, err := codec.Encode(codec.KindGradientUpdate, newer)
	require.NoError(err)
	require.NoError(b.HandleInbound(data))

	older := wireUpdate{Source: src, Gradient: ResourceGradient{CPUAvailable: 0.1}, Timestamp: c.NowMs() - 100}
	data, err = codec.Encode(codec.KindGradientUpdate, older)
	require.NoError(err)
	require.NoError(b.HandleInbound(data)) // dropped silently, no error

	got, ok := b.Aggregate()
	require.True(ok)
	require.Equal(0.9, got.CPUAvailable)
}

// TestAggregateScenarioS4 implements spec.md §8 scenario S4.
func TestAggregateScenarioS4(t *testing.T) {
	require := require.New(t)
	b, c, _ := newTestBroadcaster(t)

	grads := []ResourceGradient{
		{CPUAvailable: 0.8, MemoryAvailable: 0.6, BandwidthAvailable: 0.4, StorageAvailable: 1.0},
		{CPUAvailable: 0.6, MemoryAvailable: 0.8, BandwidthAvailable: 0.2, StorageAvailable: 0.8},
		{CPUAvailable: 0.7, MemoryAvailable: 0.7, BandwidthAvailable: 0.3, StorageAvailable: 0.9},
	}
	t0 := c.NowMs()
	for _, g := range grads {
		wire := wireUpdate{Source: ids.GenerateTestID(), Gradient: g, Timestamp: t0}
		data, err := codec.Encode(codec.KindGradientUpdate, wire)
		require.NoError(err)
		require.NoError(b.HandleInbound(data))
	}

	c.Set(time.UnixMilli(t0 + 1_000))
	got, ok := b.Aggregate()
	require.True(ok)
	require.InDelta(0.7, got.CPUAvailable, 1e-9)
	require.InDelta(0.7, got.MemoryAvailable, 1e-9)
	require.InDelta(0.3, got.BandwidthAvailable, 1e-9)
	require.InDelta(0.9, got.StorageAvailable, 1e-9)

	c.Set(time.UnixMilli(t0 + 16_000))
	_, ok = b.Aggregate()
	require.False(ok)
}

func TestPruneStaleIsIdempotent(t *testing.T) {
	require := require.New(t)
	b, c, _ := newTestBroadcaster(t)

	wire := wireUpdate{Source: ids.GenerateTestID(), Timestamp: c.NowMs()}
	data, err := codec.Encode(codec.KindGradientUpdate, wire)
	require.NoError(err)
	require.NoError(b.HandleInbound(data))

	c.Advance(20 * time.Second)
	require.Equal(1, b.PruneStale())
	require.Equal(0, b.PruneStale())
	require.Equal(0, b.PeerCount())
}

func TestHandleInboundMalformedEnvelope(t *testing.T) {
	b, _, _ := newTestBroadcaster(t)
	err := b.HandleInbound([]byte{0xFF})
	require.Error(t, err)
}
