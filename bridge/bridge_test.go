package bridge

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vudo/enr-bridge/clock"
	"github.com/vudo/enr-bridge/codec"
	"github.com/vudo/enr-bridge/gradient"
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

func TestHandleMessageDispatchesByKind(t *testing.T) {
	require := require.New(t)
	self := ids.GenerateTestID()
	b := New(self, &recordingPublisher{}, nil)

	src := ids.GenerateTestID()
	wire := struct {
		Source    ids.NodeID              `json:"source"`
		Gradient  gradient.ResourceGradient `json:"gradient"`
		Timestamp int64                   `json:"timestamp"`
	}{Source: src, Timestamp: time.Now().UnixMilli()}
	data, err := codec.Encode(codec.KindGradientUpdate, wire)
	require.NoError(err)

	require.NoError(b.HandleMessage(data))
	require.Equal(1, b.Gradient.PeerCount())
}

func TestHandleMessageUnhandledKind(t *testing.T) {
	self := ids.GenerateTestID()
	b := New(self, &recordingPublisher{}, nil)

	data, err := codec.Encode(codec.KindHealthProbe, struct{}{})
	require.NoError(t, err)

	err = b.HandleMessage(data)
	require.ErrorIs(t, err, ErrUnhandledKind)
}

func TestHandleMessageRejectsShortFrame(t *testing.T) {
	self := ids.GenerateTestID()
	b := New(self, &recordingPublisher{}, nil)

	err := b.HandleMessage([]byte{0x01})
	require.Error(t, err)
}

func TestCreditTransferRoutesThroughSingleGossipPublisher(t *testing.T) {
	require := require.New(t)
	pub := &recordingPublisher{}
	self := ids.GenerateTestID()
	b := New(self, pub, nil)

	to := ids.GenerateTestID()
	_, err := b.Credit.Transfer(to, 10)
	require.NoError(err)
	require.NotEmpty(pub.msgs)
}

func TestMaintenancePrunesStaleGradientsAtInterval(t *testing.T) {
	require := require.New(t)
	self := ids.GenerateTestID()
	c := clock.New()
	c.Set(time.UnixMilli(1_000_000))
	b := New(self, &recordingPublisher{}, nil, WithClock(c))

	require.NoError(b.Gradient.BroadcastLocal(gradient.ResourceGradient{CPUAvailable: 0.5}))

	now := c.Now()
	b.Maintenance(now) // first tick is always due

	c.Advance(20 * time.Second)
	future := c.Now()
	b.Maintenance(future)
	require.Equal(0, b.Gradient.PeerCount())
}

func TestSnapshotRestoreRoundTripsCreditLedger(t *testing.T) {
	require := require.New(t)
	self := ids.GenerateTestID()
	b := New(self, &recordingPublisher{}, nil)

	to := ids.GenerateTestID()
	_, err := b.Credit.Transfer(to, 50)
	require.NoError(err)

	snap := b.Snapshot()

	fresh := New(self, &recordingPublisher{}, nil)
	fresh.Restore(snap)
	require.Equal(b.Credit.Balance(self), fresh.Credit.Balance(self))
	require.Equal(b.Credit.Balance(to), fresh.Credit.Balance(to))
}
