// Package credit implements the Credit Synchronizer: a local mutual-credit
// ledger with optimistic gossip, entropy taxation, and replay protection,
// per spec.md §4.2.
//
// The ledger map, last-seen-nonce map, and revival pool are guarded by a
// single mutex, following the same per-subsystem-owns-one-lock discipline
// as the quorum trackers; balances are read under RLock and mutated
// under Lock exactly like quorum.Static.Add/Check.
package credit

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/vudo/enr-bridge/codec"
	"github.com/vudo/enr-bridge/events"
	"github.com/vudo/enr-bridge/ids"
	"github.com/vudo/enr-bridge/identity"
	"github.com/vudo/enr-bridge/log"
	"github.com/vudo/enr-bridge/metrics"
)

// Topic is the fixed pub/sub topic credit messages travel on.
const Topic = "/vudo/enr/credits/1.0.0"

// InitialNodeCredits is the lazily-granted starting balance for any
// NodeID not yet seen.
const InitialNodeCredits uint64 = 1000

// EntropyTaxRate is the fraction of a transfer amount routed to the
// revival pool.
const EntropyTaxRate = 0.02

// TransferError is the input-validation error taxonomy for Transfer, per
// spec.md §7. All are returned to the caller with no state change.
type TransferError struct {
	Kind      string
	Available uint64
	Required  uint64
}

func (e *TransferError) Error() string {
	switch e.Kind {
	case "InsufficientCredits":
		return fmt.Sprintf("credit: insufficient credits: available=%d required=%d", e.Available, e.Required)
	default:
		return "credit: " + e.Kind
	}
}

// Sentinel transfer errors. Use errors.Is against these, or inspect a
// *TransferError for InsufficientCredits' available/required fields.
var (
	ErrZeroAmount         = &TransferError{Kind: "ZeroAmount"}
	ErrSelfTransfer       = &TransferError{Kind: "SelfTransfer"}
	ErrInsufficientCredit = &TransferError{Kind: "InsufficientCredits"}
)

func (e *TransferError) Is(target error) bool {
	te, ok := target.(*TransferError)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

// ErrReplay names the replayed or out-of-order nonce case: an inbound
// transfer's nonce is not strictly greater than the last-seen nonce for
// its sender. HandleInboundTransfer does not return it; such a transfer
// is dropped with a nil error and counted in Stats.ReplaysDropped.
var ErrReplay = errors.New("credit: replayed or out-of-order nonce")

// ErrMalformedEntropy is returned when an inbound transfer's entropy_cost
// does not match floor(amount * EntropyTaxRate).
var ErrMalformedEntropy = errors.New("credit: entropy_cost mismatch")

// ErrInvalidSignature is returned by HandleInboundTransfer when the
// injected Verifier rejects the envelope's signature.
var ErrInvalidSignature = errors.New("credit: invalid signature")

// Transfer is the CreditTransfer record, both the return value of a local
// Transfer call and the wire payload gossiped to peers.
type Transfer struct {
	From        ids.NodeID `json:"from"`
	To          ids.NodeID `json:"to"`
	Amount      uint64     `json:"amount"`
	EntropyCost uint64     `json:"entropy_cost"`
	Nonce       uint64     `json:"nonce"`
	Signature   []byte     `json:"signature,omitempty"`
}

// BalanceQuery is the wire payload for a balance lookup request.
type BalanceQuery struct {
	Requester ids.NodeID `json:"requester"`
	Subject   ids.NodeID `json:"subject"`
}

// BalanceResponse is the wire payload published in reply to a query.
type BalanceResponse struct {
	Subject ids.NodeID `json:"subject"`
	Balance uint64     `json:"balance"`
}

// entropyCost computes floor(amount * EntropyTaxRate) with saturating
// semantics; amount is bounded well below the point where this could
// overflow a uint64 via float64 multiplication in realistic deployments.
func entropyCost(amount uint64) uint64 {
	return uint64(math.Floor(float64(amount) * EntropyTaxRate))
}

// saturatingSub returns a-b, clamped at zero instead of wrapping.
func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// saturatingAdd returns a+b, clamped at math.MaxUint64 instead of
// wrapping.
func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

// Publisher is the single egress injection point gossip goes through.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Stats is an observability snapshot.
type Stats struct {
	ReplaysDropped uint64
	RevivalPool    uint64
}

// Ledger implements the Credit Synchronizer subsystem.
type Ledger struct {
	mu sync.RWMutex

	self ids.NodeID
	pub  Publisher

	signer   identity.Signer
	verifier identity.Verifier
	log      log.Logger
	sink     events.Sink
	metrics  *metrics.CreditCollectors

	balances     map[ids.NodeID]uint64
	lastNonce    map[ids.NodeID]uint64
	revivalPool  uint64
	replaysDropped uint64
}

// New constructs a Ledger for self, publishing through pub.
func New(self ids.NodeID, pub Publisher, opts ...Option) *Ledger {
	l := &Ledger{
		self:      self,
		pub:       pub,
		signer:    identity.NoOpSigner{},
		verifier:  identity.NoOpVerifier{},
		log:       log.NewNoOp(),
		sink:      events.NoOpSink{},
		balances:  make(map[ids.NodeID]uint64),
		lastNonce: make(map[ids.NodeID]uint64),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Option configures a Ledger at construction time.
type Option func(*Ledger)

// WithSigner injects a signing hook.
func WithSigner(s identity.Signer) Option { return func(l *Ledger) { l.signer = s } }

// WithVerifier injects a signature-verification hook for inbound
// transfers. Defaults to identity.NoOpVerifier, which accepts everything.
func WithVerifier(v identity.Verifier) Option { return func(l *Ledger) { l.verifier = v } }

// WithLogger injects a structured logger.
func WithLogger(lg log.Logger) Option { return func(l *Ledger) { l.log = lg } }

// WithSink injects an event sink.
func WithSink(s events.Sink) Option { return func(l *Ledger) { l.sink = s } }

// WithMetrics registers Prometheus collectors for this Ledger.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = metrics.NewCreditCollectors(m) }
}

// Balance returns node's balance, lazily granting InitialNodeCredits on
// first access.
func (l *Ledger) Balance(node ids.NodeID) uint64 {
	l.mu.RLock()
	bal, ok := l.balances[node]
	l.mu.RUnlock()
	if ok {
		return bal
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if bal, ok = l.balances[node]; ok {
		return bal
	}
	l.balances[node] = InitialNodeCredits
	return InitialNodeCredits
}

// balanceLocked returns node's balance assuming l.mu is already held for
// writing, granting InitialNodeCredits lazily.
func (l *Ledger) balanceLocked(node ids.NodeID) uint64 {
	if bal, ok := l.balances[node]; ok {
		return bal
	}
	l.balances[node] = InitialNodeCredits
	return InitialNodeCredits
}

// Transfer moves amount from self to `to`, taxing the sender the entropy
// cost and crediting it to the revival pool. On success the transfer is
// published on Topic and returned to the caller.
func (l *Ledger) Transfer(to ids.NodeID, amount uint64) (Transfer, error) {
	if amount == 0 {
		return Transfer{}, ErrZeroAmount
	}
	if to == l.self {
		return Transfer{}, ErrSelfTransfer
	}
	cost := saturatingAdd(amount, entropyCost(amount))

	l.mu.Lock()
	available := l.balanceLocked(l.self)
	if available < cost {
		l.mu.Unlock()
		return Transfer{}, &TransferError{Kind: "InsufficientCredits", Available: available, Required: cost}
	}

	tax := entropyCost(amount)
	l.balances[l.self] = available - cost
	l.balances[to] = saturatingAdd(l.balanceLocked(to), amount)
	l.revivalPool = saturatingAdd(l.revivalPool, tax)
	nonce := l.lastNonce[l.self] + 1
	l.lastNonce[l.self] = nonce
	revivalPool := l.revivalPool
	l.mu.Unlock()

	t := Transfer{From: l.self, To: to, Amount: amount, EntropyCost: tax, Nonce: nonce}

	if l.metrics != nil {
		l.metrics.RevivalPool.Set(float64(revivalPool))
		l.metrics.TransfersTotal.WithLabelValues("sent").Inc()
	}
	l.sink.Emit(events.Event{Kind: events.KindCreditTransfer, Data: events.CreditTransfer{
		From: t.From, To: t.To, Amount: t.Amount, EntropyCost: t.EntropyCost, Nonce: t.Nonce,
	}})
	l.emitBalanceUpdates(l.self, to)

	body, err := codec.Encode(codec.KindCreditTransfer, t)
	if err != nil {
		return t, fmt.Errorf("credit: encode: %w", err)
	}
	t.Signature = l.signer.Sign(body)
	if len(t.Signature) > 0 {
		if body, err = codec.Encode(codec.KindCreditTransfer, t); err != nil {
			return t, fmt.Errorf("credit: encode: %w", err)
		}
	}
	if err := l.pub.Publish(Topic, body); err != nil {
		l.log.Warn("credit: publish failed", "error", err)
		return t, fmt.Errorf("credit: publish: %w", err)
	}
	return t, nil
}

// HandleInboundTransfer applies a remote CreditTransfer envelope, per
// spec.md §4.2's replay-protection and conservation rules.
func (l *Ledger) HandleInboundTransfer(data []byte) error {
	var t Transfer
	if err := codec.Decode(data, codec.KindCreditTransfer, &t); err != nil {
		l.log.Debug("credit: decode failed", "error", err)
		return fmt.Errorf("credit: %w", err)
	}
	if !l.verifySignature(t) {
		return ErrInvalidSignature
	}
	return l.applyInboundTransfer(t)
}

// verifySignature re-encodes t without its Signature field (the same
// body Transfer signs before attaching one) and checks it against the
// injected Verifier. Node public key resolution is the external identity
// module's concern per spec.md §1; the no-op default ignores it.
func (l *Ledger) verifySignature(t Transfer) bool {
	sig := t.Signature
	t.Signature = nil
	body, err := codec.Encode(codec.KindCreditTransfer, t)
	if err != nil {
		return false
	}
	return l.verifier.Verify(body, sig, nil)
}

func (l *Ledger) applyInboundTransfer(t Transfer) error {
	if t.EntropyCost != entropyCost(t.Amount) {
		return ErrMalformedEntropy
	}

	l.mu.Lock()
	if t.Nonce <= l.lastNonce[t.From] {
		l.mu.Unlock()
		l.countReplay()
		return nil
	}

	senderBal := l.balanceLocked(t.From)
	debit := saturatingAdd(t.Amount, t.EntropyCost)
	l.balances[t.From] = saturatingSub(senderBal, debit)
	l.balances[t.To] = saturatingAdd(l.balanceLocked(t.To), t.Amount)
	l.revivalPool = saturatingAdd(l.revivalPool, t.EntropyCost)
	l.lastNonce[t.From] = t.Nonce
	revivalPool := l.revivalPool
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.RevivalPool.Set(float64(revivalPool))
		l.metrics.TransfersTotal.WithLabelValues("applied").Inc()
	}
	l.sink.Emit(events.Event{Kind: events.KindCreditTransfer, Data: events.CreditTransfer{
		From: t.From, To: t.To, Amount: t.Amount, EntropyCost: t.EntropyCost, Nonce: t.Nonce,
	}})
	l.emitBalanceUpdates(t.From, t.To)
	return nil
}

func (l *Ledger) countReplay() {
	l.mu.Lock()
	l.replaysDropped++
	l.mu.Unlock()
	if l.metrics != nil {
		l.metrics.ReplaysDropped.Inc()
		l.metrics.TransfersTotal.WithLabelValues("replay_dropped").Inc()
	}
}

func (l *Ledger) emitBalanceUpdates(nodes ...ids.NodeID) {
	for _, n := range nodes {
		l.sink.Emit(events.Event{Kind: events.KindBalanceUpdate, Data: events.BalanceUpdate{
			Node: n, Balance: l.Balance(n),
		}})
	}
}

// HandleBalanceQuery publishes a BalanceResponse for the queried node's
// locally-known balance.
func (l *Ledger) HandleBalanceQuery(data []byte) error {
	var q BalanceQuery
	if err := codec.Decode(data, codec.KindBalanceQuery, &q); err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	resp := BalanceResponse{Subject: q.Subject, Balance: l.Balance(q.Subject)}
	body, err := codec.Encode(codec.KindBalanceResponse, resp)
	if err != nil {
		return fmt.Errorf("credit: encode: %w", err)
	}
	if err := l.pub.Publish(Topic, body); err != nil {
		return fmt.Errorf("credit: publish: %w", err)
	}
	return nil
}

// Stats returns an observability snapshot.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{ReplaysDropped: l.replaysDropped, RevivalPool: l.revivalPool}
}

// RevivalPool returns the current revival pool value.
func (l *Ledger) RevivalPool() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.revivalPool
}

// Snapshot is a persistable view of the ledger, for the optional
// graceful-shutdown save spec.md §9 describes. No I/O happens here; a
// collaborator serializes/deserializes this struct.
type Snapshot struct {
	Balances    map[ids.NodeID]uint64
	LastNonce   map[ids.NodeID]uint64
	RevivalPool uint64
}

// Snapshot returns a deep copy of the ledger's state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Snapshot{
		Balances:    make(map[ids.NodeID]uint64, len(l.balances)),
		LastNonce:   make(map[ids.NodeID]uint64, len(l.lastNonce)),
		RevivalPool: l.revivalPool,
	}
	for k, v := range l.balances {
		s.Balances[k] = v
	}
	for k, v := range l.lastNonce {
		s.LastNonce[k] = v
	}
	return s
}

// Restore replaces the ledger's state with a prior Snapshot. Intended for
// cold-start recovery only; it is not safe to call concurrently with
// other Ledger methods.
func (l *Ledger) Restore(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = make(map[ids.NodeID]uint64, len(s.Balances))
	for k, v := range s.Balances {
		l.balances[k] = v
	}
	l.lastNonce = make(map[ids.NodeID]uint64, len(s.LastNonce))
	for k, v := range s.LastNonce {
		l.lastNonce[k] = v
	}
	l.revivalPool = s.RevivalPool
}
