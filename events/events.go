// Package events implements the ENR bridge's outbound event stream:
// typed notifications mirroring the on-wire envelope variants plus
// state-change notifications, per spec.md §6. Every subsystem emits
// through a Sink after a locally committed state change. Each subsystem
// defaults to NoOpSink and takes a Sink through its own WithSink option
// (e.g. a ChannelSink an external WebSocket/REST collaborator can drain);
// bridge.New passes no Sink to the subsystems it builds, so they emit to
// NoOpSink.
package events

import "github.com/vudo/enr-bridge/ids"

// Kind names an event's payload shape. Field naming round-trips with the
// wire envelope field names, per spec.md §6.
type Kind string

const (
	KindCreditTransfer      Kind = "EnrCreditTransfer"
	KindBalanceUpdate       Kind = "EnrBalanceUpdate"
	KindGradientUpdate      Kind = "GradientUpdate"
	KindElectionAnnounce    Kind = "ElectionAnnouncement"
	KindElectionCandidacy   Kind = "ElectionCandidacy"
	KindElectionVote        Kind = "ElectionVote"
	KindElectionResult      Kind = "ElectionResult"
	KindFailedElection      Kind = "FailedElection"
	KindSeptalStateChange   Kind = "SeptalStateChange"
	KindSeptalHealthStatus  Kind = "SeptalHealthStatus"
)

// Event is a single outbound notification.
type Event struct {
	Kind Kind
	Data interface{}
}

// CreditTransfer mirrors the wire CreditTransfer variant.
type CreditTransfer struct {
	From        ids.NodeID
	To          ids.NodeID
	Amount      uint64
	EntropyCost uint64
	Nonce       uint64
}

// BalanceUpdate is emitted whenever a locally tracked balance changes.
type BalanceUpdate struct {
	Node    ids.NodeID
	Balance uint64
}

// GradientUpdate mirrors the wire GradientUpdate variant.
type GradientUpdate struct {
	Source            ids.NodeID
	CPUAvailable      float64
	MemoryAvailable   float64
	BandwidthAvailable float64
	StorageAvailable  float64
	ReceivedAtMs      int64
}

// ElectionAnnouncement mirrors the wire Election announcement variant.
type ElectionAnnouncement struct {
	ElectionID uint64
	RegionID   string
	Initiator  ids.NodeID
	AtMs       int64
}

// ElectionCandidacy mirrors a submitted NexusCandidate.
type ElectionCandidacy struct {
	ElectionID uint64
	Node       ids.NodeID
	Score      float64
}

// ElectionVote mirrors a cast vote.
type ElectionVote struct {
	ElectionID uint64
	Voter      ids.NodeID
	Choice     ids.NodeID
}

// ElectionResult mirrors a finalized election.
type ElectionResult struct {
	ElectionID uint64
	Winner     ids.NodeID
	RegionID   string
	VoteCount  int
}

// FailedElection is emitted locally when an election ends without a
// result: Finalize found no quorum, or the hard deadline elapsed before a
// result; per spec.md §7 there is "no remote apology".
type FailedElection struct {
	ElectionID uint64
	RegionID   string
	Phase      string
}

// SeptalStateChange mirrors a gate transition.
type SeptalStateChange struct {
	Peer   ids.NodeID
	From   string
	To     string
	AtMs   int64
	Reason string
}

// SeptalHealthStatus is a stats() snapshot pushed as an event.
type SeptalHealthStatus struct {
	Open, HalfOpen, Closed int
	TotalIsolated          int
	TotalFailures          uint64
}

// Sink receives emitted events. Implementations must not block the
// calling subsystem. Gradient, credit and septal call Emit after
// releasing their lock; the election subsystem calls it while holding its
// own mutex, so an implementation must not call back into that Election.
type Sink interface {
	Emit(Event)
}

// ChannelSink is a buffered-channel Sink. Emit drops the event rather
// than blocking if the channel is full, so a slow or absent consumer
// never stalls a subsystem.
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan Event, buffer)}
}

// Emit pushes ev onto the channel, dropping it if the buffer is full.
func (s *ChannelSink) Emit(ev Event) {
	select {
	case s.ch <- ev:
	default:
	}
}

// Events returns the receive side of the channel for a collaborator to
// drain.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// NoOpSink discards every event. It is the default Sink for subsystems
// constructed without one, e.g. in unit tests that don't assert on the
// event stream.
type NoOpSink struct{}

// Emit discards ev.
func (NoOpSink) Emit(Event) {}
