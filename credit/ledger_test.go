package credit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

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

func TestBalanceLazyGrantsInitialCredits(t *testing.T) {
	require := require.New(t)
	l := New(ids.GenerateTestID(), &recordingPublisher{})

	other := ids.GenerateTestID()
	require.Equal(InitialNodeCredits, l.Balance(other))
}

// TestTransferScenarioS1 implements spec.md §8 scenario S1.
func TestTransferScenarioS1(t *testing.T) {
	require := require.New(t)

	a := ids.GenerateTestID()
	b := ids.GenerateTestID()
	pub := &recordingPublisher{}
	la := New(a, pub)
	lb := New(b, &recordingPublisher{})

	require.Equal(uint64(1000), la.Balance(a))
	require.Equal(uint64(1000), lb.Balance(b))

	tr, err := la.Transfer(b, 100)
	require.NoError(err)
	require.Equal(uint64(2), tr.EntropyCost)

	require.Equal(uint64(898), la.Balance(a))
	require.Equal(uint64(2), la.RevivalPool())

	require.NoError(lb.HandleInboundTransfer(pub.msgs[len(pub.msgs)-1]))
	require.Equal(uint64(1100), lb.Balance(b))
	require.Equal(uint64(2), lb.RevivalPool())

	require.Equal(uint64(2000), la.Balance(a)+lb.Balance(b)+la.RevivalPool())
}

// TestReplayScenarioS2 implements spec.md §8 scenario S2.
func TestReplayScenarioS2(t *testing.T) {
	require := require.New(t)

	a := ids.GenerateTestID()
	b := ids.GenerateTestID()
	la := New(a, &recordingPublisher{})

	transfer := Transfer{From: a, To: b, Amount: 50, EntropyCost: entropyCost(50), Nonce: 7}
	data, err := codec.Encode(codec.KindCreditTransfer, transfer)
	require.NoError(err)

	require.NoError(la.HandleInboundTransfer(data))
	balAfterFirst := la.Balance(b)

	require.NoError(la.HandleInboundTransfer(data)) // republish, same nonce
	require.Equal(balAfterFirst, la.Balance(b))
	require.Equal(uint64(1), la.Stats().ReplaysDropped)
}

// TestInsufficientFundsScenarioS3 implements spec.md §8 scenario S3.
func TestInsufficientFundsScenarioS3(t *testing.T) {
	require := require.New(t)

	a := ids.GenerateTestID()
	b := ids.GenerateTestID()
	la := New(a, &recordingPublisher{})

	_, err := la.Transfer(b, 1000)
	var te *TransferError
	require.ErrorAs(err, &te)
	require.Equal("InsufficientCredits", te.Kind)
	require.Equal(uint64(1000), te.Available)
	require.Equal(uint64(1020), te.Required)

	require.Equal(uint64(1000), la.Balance(a))
}

func TestTransferZeroAmount(t *testing.T) {
	la := New(ids.GenerateTestID(), &recordingPublisher{})
	_, err := la.Transfer(ids.GenerateTestID(), 0)
	require.ErrorIs(t, err, ErrZeroAmount)
}

func TestTransferSelf(t *testing.T) {
	self := ids.GenerateTestID()
	la := New(self, &recordingPublisher{})
	_, err := la.Transfer(self, 10)
	require.ErrorIs(t, err, ErrSelfTransfer)
}

func TestInboundMalformedEntropyRejected(t *testing.T) {
	require := require.New(t)
	a := ids.GenerateTestID()
	b := ids.GenerateTestID()
	la := New(a, &recordingPublisher{})

	transfer := Transfer{From: a, To: b, Amount: 100, EntropyCost: 999, Nonce: 1}
	data, err := codec.Encode(codec.KindCreditTransfer, transfer)
	require.NoError(err)

	err = la.HandleInboundTransfer(data)
	require.ErrorIs(err, ErrMalformedEntropy)
}

func TestInboundOutOfOrderNonceDropped(t *testing.T) {
	require := require.New(t)
	a := ids.GenerateTestID()
	b := ids.GenerateTestID()
	la := New(a, &recordingPublisher{})

	higher := Transfer{From: a, To: b, Amount: 10, EntropyCost: entropyCost(10), Nonce: 5}
	data, err := codec.Encode(codec.KindCreditTransfer, higher)
	require.NoError(err)
	require.NoError(la.HandleInboundTransfer(data))

	lower := Transfer{From: a, To: b, Amount: 10, EntropyCost: entropyCost(10), Nonce: 3}
	data, err = codec.Encode(codec.KindCreditTransfer, lower)
	require.NoError(err)
	require.NoError(la.HandleInboundTransfer(data))

	require.Equal(uint64(1), la.Stats().ReplaysDropped)
}

// TestIdempotenceInvariant8 checks invariant 8: applying the same
// transfer twice yields the same final state as applying it once, via
// the nonce replay guard.
func TestIdempotenceInvariant8(t *testing.T) {
	require := require.New(t)
	a := ids.GenerateTestID()
	b := ids.GenerateTestID()
	la := New(a, &recordingPublisher{})

	transfer := Transfer{From: a, To: b, Amount: 42, EntropyCost: entropyCost(42), Nonce: 1}
	data, err := codec.Encode(codec.KindCreditTransfer, transfer)
	require.NoError(err)

	require.NoError(la.HandleInboundTransfer(data))
	snap1 := la.Snapshot()

	require.NoError(la.HandleInboundTransfer(data))
	snap2 := la.Snapshot()

	require.Equal(snap1.Balances, snap2.Balances)
	require.Equal(snap1.RevivalPool, snap2.RevivalPool)
}

func TestHandleBalanceQueryPublishesResponse(t *testing.T) {
	require := require.New(t)
	a := ids.GenerateTestID()
	pub := &recordingPublisher{}
	la := New(a, pub)

	q := BalanceQuery{Requester: ids.GenerateTestID(), Subject: a}
	data, err := codec.Encode(codec.KindBalanceQuery, q)
	require.NoError(err)

	require.NoError(la.HandleBalanceQuery(data))
	require.Len(pub.msgs, 1)

	var resp BalanceResponse
	require.NoError(codec.Decode(pub.msgs[0], codec.KindBalanceResponse, &resp))
	require.Equal(a, resp.Subject)
	require.Equal(uint64(1000), resp.Balance)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	require := require.New(t)
	a := ids.GenerateTestID()
	b := ids.GenerateTestID()
	la := New(a, &recordingPublisher{})

	_, err := la.Transfer(b, 100)
	require.NoError(err)

	snap := la.Snapshot()

	fresh := New(a, &recordingPublisher{})
	fresh.Restore(snap)
	require.Equal(la.Balance(a), fresh.Balance(a))
	require.Equal(la.Balance(b), fresh.Balance(b))
	require.Equal(la.RevivalPool(), fresh.RevivalPool())
}
