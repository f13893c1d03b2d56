// Package election implements the Distributed Election subsystem: a
// four-phase, time-bounded, quorum-based protocol for electing a region
// "nexus" coordinator, per spec.md §4.3.
//
// The quorum-tracking shape (one map of responses keyed by NodeID, guarded
// by a single mutex, Check() snapshotting participants before computing
// outside the lock) is adapted from the quorum.Static and quorum.Dynamic
// trackers in github.com/luxfi/consensus/quorum, generalized from a
// fixed integer threshold to the ceil(participants*0.5) rule in
// spec.md §4.3. Runner-up ranking for observability reuses the weighted
// sampler in github.com/luxfi/consensus/utils/sampler to pick a
// score-weighted sample of non-winning candidates, deterministically
// seeded by the election_id so results are reproducible.
package election

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/vudo/enr-bridge/clock"
	"github.com/vudo/enr-bridge/codec"
	"github.com/vudo/enr-bridge/events"
	"github.com/vudo/enr-bridge/ids"
	"github.com/vudo/enr-bridge/identity"
	"github.com/vudo/enr-bridge/internal/sampler"
	"github.com/vudo/enr-bridge/log"
	"github.com/vudo/enr-bridge/metrics"
)

// Topic is the fixed pub/sub topic election messages travel on.
const Topic = "/vudo/enr/election/1.0.0"

// Phase timings and thresholds from spec.md §4.3 and §6.
const (
	CandidacyPhaseMs = 10_000
	VotingPhaseMs    = 15_000
	ConfirmingMaxMs  = 5_000
	ElectionTimeoutMs = 30_000
	MinVoteFraction  = 0.5
)

// Phase is the election's state-machine position.
type Phase int

const (
	Idle Phase = iota
	Candidacy
	Voting
	Confirming
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "Idle"
	case Candidacy:
		return "Candidacy"
	case Voting:
		return "Voting"
	case Confirming:
		return "Confirming"
	default:
		return "Unknown"
	}
}

// Error taxonomy, per spec.md §7.
var (
	ErrElectionInProgress  = errors.New("election: an election is already in progress")
	ErrIneligibleCandidate = errors.New("election: candidate does not meet eligibility requirements")
	ErrInsufficientVotes   = errors.New("election: quorum was not reached before the voting deadline")
	ErrNotCandidacyPhase   = errors.New("election: not in the Candidacy phase")
	ErrNotVotingPhase      = errors.New("election: not in the Voting phase")
	ErrNoCandidates        = errors.New("election: no candidates to vote for")
	ErrUnknownElection     = errors.New("election: message references an unknown or stale election_id")
)

// LocalMetrics is the raw input to NexusCandidate scoring and the
// eligibility predicate.
type LocalMetrics struct {
	UptimeFraction float64 // fraction of wall-clock time observed up, in [0,1]
	UptimeMs       uint64
	BandwidthBps   uint64
	Reputation     float64
	LeafCount      uint32
}

// NexusCandidate is a scored candidacy for nexus coordinator.
type NexusCandidate struct {
	Node          ids.NodeID `json:"node"`
	UptimeMs      uint64     `json:"uptime_ms"`
	BandwidthBps  uint64     `json:"bandwidth_bps"`
	Reputation    float64    `json:"reputation"`
	LeafCount     uint32     `json:"leaf_count"`
	ElectionScore float64    `json:"election_score"`
}

// ScoreWeights controls how the four raw metrics combine into a monotone
// election_score. spec.md §9 leaves the exact formula an open question;
// this is the documented default (see DESIGN.md): each factor is
// normalized against a reference scale and then combined as a weighted
// sum, so only the relative ordering of scores is meaningful.
type ScoreWeights struct {
	Uptime     float64
	Bandwidth  float64
	Reputation float64
	LeafCount  float64

	UptimeNormMs     float64
	BandwidthNormBps float64
	LeafCountNorm    float64
}

// DefaultScoreWeights is the documented default weighting.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		Uptime:           0.3,
		Bandwidth:        0.3,
		Reputation:       0.3,
		LeafCount:        0.1,
		UptimeNormMs:     30 * 24 * 60 * 60 * 1000, // 30 days
		BandwidthNormBps: 100 * 1024 * 1024,        // 100MB/s
		LeafCountNorm:    50,
	}
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

// Score computes the monotone election_score for m under weights w.
func (w ScoreWeights) Score(m LocalMetrics) float64 {
	uptimeN := clamp01(float64(m.UptimeMs) / w.UptimeNormMs)
	bwN := clamp01(float64(m.BandwidthBps) / w.BandwidthNormBps)
	leafN := clamp01(float64(m.LeafCount) / w.LeafCountNorm)
	rep := clamp01(m.Reputation)
	return w.Uptime*uptimeN + w.Bandwidth*bwN + w.Reputation*rep + w.LeafCount*leafN
}

// EligibilityFunc decides whether LocalMetrics qualifies as a nexus
// candidate. The default matches spec.md §4.3: uptime > 0.95, bandwidth
// > 10MB/s, reputation > 0.70.
type EligibilityFunc func(LocalMetrics) bool

// DefaultEligibility is the default eligibility predicate, per spec.md §4.3.
func DefaultEligibility(m LocalMetrics) bool {
	const minUptime = 0.95
	const minBandwidthBps = 10 * 1024 * 1024
	const minReputation = 0.70
	return m.UptimeFraction > minUptime && m.BandwidthBps > minBandwidthBps && m.Reputation > minReputation
}

// ParticipantsFunc returns the count of known peers that would have
// received an election announcement, taken from the Septal Gate
// Manager's Open-gated peer set. Wired by the router rather than a
// direct import, per spec.md §9's back-reference guidance.
type ParticipantsFunc func() int

// wire payloads.

type wireAnnouncement struct {
	ElectionID uint64     `json:"election_id"`
	RegionID   string     `json:"region_id"`
	Initiator  ids.NodeID `json:"initiator"`
	Timestamp  int64      `json:"timestamp"`
}

type wireCandidacy struct {
	ElectionID uint64         `json:"election_id"`
	Candidate  NexusCandidate `json:"candidate"`
}

type wireVote struct {
	ElectionID uint64     `json:"election_id"`
	Voter      ids.NodeID `json:"voter"`
	Choice     ids.NodeID `json:"choice"`
}

// Result is the ElectionResult wire/event payload.
type Result struct {
	ElectionID uint64       `json:"election_id"`
	Winner     ids.NodeID   `json:"winner"`
	RegionID   string       `json:"region_id"`
	VoteCount  int          `json:"vote_count"`
	RunnerUps  []ids.NodeID `json:"runner_ups,omitempty"`
}

// state is the single active election's mutable record. At most one
// exists per Election instance, per spec.md's Election invariant.
type state struct {
	electionID     uint64
	regionID       string
	initiator      ids.NodeID
	phase          Phase
	phaseStartedAt int64
	electionStart  int64
	participants   int

	candidates map[ids.NodeID]NexusCandidate
	votes      map[ids.NodeID]ids.NodeID // voter -> choice
}

// Publisher is the single egress injection point gossip goes through.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Config holds the Election subsystem's tunables.
type Config struct {
	CandidacyPhaseMs  int64
	VotingPhaseMs     int64
	ConfirmingMaxMs   int64
	ElectionTimeoutMs int64
	MinVoteFraction   float64
}

// DefaultConfig returns the constants fixed by spec.md §6.
func DefaultConfig() Config {
	return Config{
		CandidacyPhaseMs:  CandidacyPhaseMs,
		VotingPhaseMs:     VotingPhaseMs,
		ConfirmingMaxMs:   ConfirmingMaxMs,
		ElectionTimeoutMs: ElectionTimeoutMs,
		MinVoteFraction:   MinVoteFraction,
	}
}

// Election implements the Distributed Election subsystem.
type Election struct {
	mu sync.Mutex

	self ids.NodeID
	pub  Publisher
	clk  *clock.Clock
	cfg  Config

	eligibility  EligibilityFunc
	weights      ScoreWeights
	participants ParticipantsFunc

	signer  identity.Signer
	log     log.Logger
	sink    events.Sink
	metrics *metrics.ElectionCollectors

	nextElectionID uint64
	cur            *state
}

// New constructs an Election for self, publishing through pub.
func New(self ids.NodeID, pub Publisher, opts ...Option) *Election {
	e := &Election{
		self:         self,
		pub:          pub,
		clk:          clock.New(),
		cfg:          DefaultConfig(),
		eligibility:  DefaultEligibility,
		weights:      DefaultScoreWeights(),
		participants: func() int { return 1 },
		signer:       identity.NoOpSigner{},
		log:          log.NewNoOp(),
		sink:         events.NoOpSink{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Option configures an Election at construction time.
type Option func(*Election)

func WithClock(c *clock.Clock) Option           { return func(e *Election) { e.clk = c } }
func WithConfig(cfg Config) Option              { return func(e *Election) { e.cfg = cfg } }
func WithEligibility(f EligibilityFunc) Option  { return func(e *Election) { e.eligibility = f } }
func WithScoreWeights(w ScoreWeights) Option     { return func(e *Election) { e.weights = w } }
func WithParticipants(f ParticipantsFunc) Option { return func(e *Election) { e.participants = f } }
func WithSigner(s identity.Signer) Option        { return func(e *Election) { e.signer = s } }
func WithLogger(l log.Logger) Option             { return func(e *Election) { e.log = l } }
func WithSink(s events.Sink) Option               { return func(e *Election) { e.sink = s } }
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Election) { e.metrics = metrics.NewElectionCollectors(m) }
}

func (e *Election) countPhase(p Phase) {
	if e.metrics != nil {
		e.metrics.PhaseTransitions.WithLabelValues(p.String()).Inc()
	}
}

// Trigger starts a fresh election for regionID. Fails with
// ErrElectionInProgress if an election is already active.
func (e *Election) Trigger(regionID string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur != nil && e.cur.phase != Idle {
		return 0, ErrElectionInProgress
	}

	now := e.clk.NowMs()
	e.nextElectionID++
	id := e.nextElectionID
	e.cur = &state{
		electionID:     id,
		regionID:       regionID,
		initiator:      e.self,
		phase:          Candidacy,
		phaseStartedAt: now,
		electionStart:  now,
		participants:   e.participants(),
		candidates:     make(map[ids.NodeID]NexusCandidate),
		votes:          make(map[ids.NodeID]ids.NodeID),
	}
	e.countPhase(Candidacy)

	ann := wireAnnouncement{ElectionID: id, RegionID: regionID, Initiator: e.self, Timestamp: now}
	if err := e.publish(codec.KindElectionAnnouncement, ann); err != nil {
		e.log.Warn("election: publish announcement failed", "error", err)
	}
	e.sink.Emit(events.Event{Kind: events.KindElectionAnnounce, Data: events.ElectionAnnouncement{
		ElectionID: id, RegionID: regionID, Initiator: e.self, AtMs: now,
	}})
	return id, nil
}

// HandleAnnouncement applies a remote ElectionAnnouncement. The first
// observed election_id wins; a later announcement with a different ID
// during an active election is rejected.
func (e *Election) HandleAnnouncement(data []byte) error {
	var ann wireAnnouncement
	if err := codec.Decode(data, codec.KindElectionAnnouncement, &ann); err != nil {
		return fmt.Errorf("election: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur != nil && e.cur.phase != Idle {
		if e.cur.electionID != ann.ElectionID {
			return ErrElectionInProgress
		}
		return nil // same election, already tracked
	}

	if ann.ElectionID > e.nextElectionID {
		e.nextElectionID = ann.ElectionID
	}
	e.cur = &state{
		electionID:     ann.ElectionID,
		regionID:       ann.RegionID,
		initiator:      ann.Initiator,
		phase:          Candidacy,
		phaseStartedAt: ann.Timestamp,
		electionStart:  ann.Timestamp,
		participants:   e.participants(),
		candidates:     make(map[ids.NodeID]NexusCandidate),
		votes:          make(map[ids.NodeID]ids.NodeID),
	}
	e.countPhase(Candidacy)
	e.sink.Emit(events.Event{Kind: events.KindElectionAnnounce, Data: events.ElectionAnnouncement{
		ElectionID: ann.ElectionID, RegionID: ann.RegionID, Initiator: ann.Initiator, AtMs: ann.Timestamp,
	}})
	return nil
}

// SubmitCandidacy scores m and enters it into the current election if
// the bridge is in the Candidacy phase and m is eligible.
func (e *Election) SubmitCandidacy(m LocalMetrics) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur == nil || e.cur.phase != Candidacy {
		return ErrNotCandidacyPhase
	}
	if !e.eligibility(m) {
		return ErrIneligibleCandidate
	}

	cand := NexusCandidate{
		Node: e.self, UptimeMs: m.UptimeMs, BandwidthBps: m.BandwidthBps,
		Reputation: m.Reputation, LeafCount: m.LeafCount, ElectionScore: e.weights.Score(m),
	}
	e.cur.candidates[e.self] = cand

	wire := wireCandidacy{ElectionID: e.cur.electionID, Candidate: cand}
	if err := e.publish(codec.KindElectionCandidacy, wire); err != nil {
		e.log.Warn("election: publish candidacy failed", "error", err)
	}
	e.sink.Emit(events.Event{Kind: events.KindElectionCandidacy, Data: events.ElectionCandidacy{
		ElectionID: e.cur.electionID, Node: e.self, Score: cand.ElectionScore,
	}})
	return nil
}

// HandleCandidacy idempotently inserts a remote NexusCandidate, per
// spec.md §4.3: it must reference the currently active election and pass
// the eligibility predicate. The originator's uptime fraction is not on
// the wire, so the eligibility check uses uptime_ms / UptimeNormMs in its
// place; the score is re-derived from the reported metrics so a malicious
// or buggy peer cannot claim an inflated score for a reported metric set.
func (e *Election) HandleCandidacy(data []byte) error {
	var wire wireCandidacy
	if err := codec.Decode(data, codec.KindElectionCandidacy, &wire); err != nil {
		return fmt.Errorf("election: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur == nil || e.cur.electionID != wire.ElectionID {
		return ErrUnknownElection
	}
	if e.cur.phase != Candidacy {
		return ErrNotCandidacyPhase
	}

	m := LocalMetrics{
		UptimeFraction: clamp01(float64(wire.Candidate.UptimeMs) / e.weights.UptimeNormMs),
		UptimeMs:       wire.Candidate.UptimeMs,
		BandwidthBps:   wire.Candidate.BandwidthBps,
		Reputation:     wire.Candidate.Reputation,
		LeafCount:      wire.Candidate.LeafCount,
	}
	if !e.eligibility(m) {
		return ErrIneligibleCandidate
	}

	cand := wire.Candidate
	cand.ElectionScore = e.weights.Score(m)
	if _, exists := e.cur.candidates[cand.Node]; !exists {
		e.cur.candidates[cand.Node] = cand
	}
	return nil
}

// CastVote selects the highest-scored known candidate (tie-break:
// smaller NodeID) and records and broadcasts exactly one vote for self.
func (e *Election) CastVote() (ids.NodeID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur == nil || e.cur.phase != Voting {
		return ids.Empty, ErrNotVotingPhase
	}
	if _, already := e.cur.votes[e.self]; already {
		return e.cur.votes[e.self], nil
	}

	choice, ok := bestCandidate(e.cur.candidates)
	if !ok {
		return ids.Empty, ErrNoCandidates
	}

	e.cur.votes[e.self] = choice
	wire := wireVote{ElectionID: e.cur.electionID, Voter: e.self, Choice: choice}
	if err := e.publish(codec.KindElectionVote, wire); err != nil {
		e.log.Warn("election: publish vote failed", "error", err)
	}
	e.sink.Emit(events.Event{Kind: events.KindElectionVote, Data: events.ElectionVote{
		ElectionID: e.cur.electionID, Voter: e.self, Choice: choice,
	}})
	return choice, nil
}

// bestCandidate returns the highest-scored candidate, tie-breaking on
// the smaller NodeID.
func bestCandidate(candidates map[ids.NodeID]NexusCandidate) (ids.NodeID, bool) {
	var best NexusCandidate
	found := false
	for _, c := range candidates {
		if !found || c.ElectionScore > best.ElectionScore ||
			(c.ElectionScore == best.ElectionScore && c.Node.Less(best.Node)) {
			best = c
			found = true
		}
	}
	return best.Node, found
}

// HandleVote inserts voter's choice if voter has not yet voted in this
// election; duplicate votes are ignored.
func (e *Election) HandleVote(data []byte) error {
	var wire wireVote
	if err := codec.Decode(data, codec.KindElectionVote, &wire); err != nil {
		return fmt.Errorf("election: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur == nil || e.cur.electionID != wire.ElectionID {
		return ErrUnknownElection
	}
	if _, already := e.cur.votes[wire.Voter]; already {
		return nil
	}
	e.cur.votes[wire.Voter] = wire.Choice
	return nil
}

// quorumThreshold returns ceil(participants * MinVoteFraction).
func quorumThreshold(participants int, fraction float64) int {
	return int(math.Ceil(float64(participants) * fraction))
}

// Tally returns the candidate with the most votes if quorum is met, with
// ties broken by candidate score then by NodeID.
func (e *Election) Tally() (ids.NodeID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tallyLocked()
}

func (e *Election) tallyLocked() (ids.NodeID, bool) {
	if e.cur == nil || len(e.cur.votes) == 0 {
		return ids.Empty, false
	}

	threshold := quorumThreshold(e.cur.participants, e.cfg.MinVoteFraction)
	if len(e.cur.votes) < threshold {
		return ids.Empty, false
	}

	counts := make(map[ids.NodeID]int, len(e.cur.candidates))
	for _, choice := range e.cur.votes {
		counts[choice]++
	}

	var winner ids.NodeID
	winnerCount := -1
	found := false
	for node, count := range counts {
		cand := e.cur.candidates[node]
		winCand := e.cur.candidates[winner]
		switch {
		case !found:
			winner, winnerCount, found = node, count, true
		case count > winnerCount:
			winner, winnerCount = node, count
		case count == winnerCount && cand.ElectionScore > winCand.ElectionScore:
			winner = node
		case count == winnerCount && cand.ElectionScore == winCand.ElectionScore && node.Less(winner):
			winner = node
		}
	}
	return winner, found
}

// Finalize is called on Voting-phase exit (deadline or quorum). It
// broadcasts the result and transitions the election into Confirming;
// Maintenance resets it back to Idle once ConfirmingMaxMs elapses. A
// second call while not in Voting returns ErrNotVotingPhase rather than
// re-tallying.
func (e *Election) Finalize() (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur == nil {
		return Result{}, ErrUnknownElection
	}
	if e.cur.phase != Voting {
		return Result{}, ErrNotVotingPhase
	}

	winner, ok := e.tallyLocked()
	if !ok {
		failed := e.cur
		e.resetLocked()
		if e.metrics != nil {
			e.metrics.Finalized.WithLabelValues("insufficient_votes").Inc()
		}
		e.sink.Emit(events.Event{Kind: events.KindFailedElection, Data: events.FailedElection{
			ElectionID: failed.electionID, RegionID: failed.regionID, Phase: failed.phase.String(),
		}})
		return Result{}, ErrInsufficientVotes
	}

	result := Result{
		ElectionID: e.cur.electionID,
		Winner:     winner,
		RegionID:   e.cur.regionID,
		VoteCount:  len(e.cur.votes),
		RunnerUps:  e.runnerUpsLocked(winner),
	}

	e.cur.phase = Confirming
	e.cur.phaseStartedAt = e.clk.NowMs()
	e.countPhase(Confirming)

	if err := e.publish(codec.KindElectionResult, result); err != nil {
		e.log.Warn("election: publish result failed", "error", err)
	}
	e.sink.Emit(events.Event{Kind: events.KindElectionResult, Data: events.ElectionResult{
		ElectionID: result.ElectionID, Winner: result.Winner, RegionID: result.RegionID, VoteCount: result.VoteCount,
	}})
	if e.metrics != nil {
		e.metrics.Finalized.WithLabelValues("winner").Inc()
	}

	return result, nil
}

// runnerUpsLocked picks a small score-weighted sample of non-winning
// candidates for observability, deterministically seeded by election_id.
func (e *Election) runnerUpsLocked(winner ids.NodeID) []ids.NodeID {
	others := make([]NexusCandidate, 0, len(e.cur.candidates))
	for node, c := range e.cur.candidates {
		if node != winner {
			others = append(others, c)
		}
	}
	if len(others) == 0 {
		return nil
	}

	weights := make([]uint64, len(others))
	for i, c := range others {
		weights[i] = uint64(c.ElectionScore*1000) + 1
	}

	size := len(others)
	if size > 3 {
		size = 3
	}

	src := sampler.NewSource(int64(e.cur.electionID))
	w := sampler.NewWeightedWithoutReplacement(src)
	if err := w.Initialize(weights); err != nil {
		return nil
	}
	indices, ok := w.Sample(size)
	if !ok {
		return nil
	}
	out := make([]ids.NodeID, len(indices))
	for i, idx := range indices {
		out[i] = others[idx].Node
	}
	return out
}

// resetLocked returns the bridge to Idle, ready for a new election.
func (e *Election) resetLocked() {
	e.cur = nil
	e.countPhase(Idle)
}

// Maintenance advances the phase machine based on elapsed time: it is
// the election half of the bridge's periodic maintenance() tick (§4.5).
// It returns the Result if Finalize was triggered this tick, or an error
// if the election failed or hit its hard deadline.
func (e *Election) Maintenance() (*Result, error) {
	e.mu.Lock()
	if e.cur == nil {
		e.mu.Unlock()
		return nil, nil
	}
	now := e.clk.NowMs()

	// A Confirming election already has a result; its own branch below
	// returns it to Idle, so the hard deadline applies to earlier phases.
	if e.cur.phase != Confirming && now-e.cur.electionStart >= e.cfg.ElectionTimeoutMs {
		failed := e.cur
		e.resetLocked()
		e.mu.Unlock()
		if e.metrics != nil {
			e.metrics.Finalized.WithLabelValues("deadline_expired").Inc()
		}
		e.sink.Emit(events.Event{Kind: events.KindFailedElection, Data: events.FailedElection{
			ElectionID: failed.electionID, RegionID: failed.regionID, Phase: failed.phase.String(),
		}})
		return nil, ErrInsufficientVotes
	}

	switch e.cur.phase {
	case Candidacy:
		if now-e.cur.phaseStartedAt >= e.cfg.CandidacyPhaseMs {
			e.cur.phase = Voting
			e.cur.phaseStartedAt = now
			e.countPhase(Voting)
		}
		e.mu.Unlock()
		return nil, nil
	case Voting:
		deadlineHit := now-e.cur.phaseStartedAt >= e.cfg.VotingPhaseMs
		_, quorumHit := e.tallyLocked()
		e.mu.Unlock()
		if deadlineHit || quorumHit {
			result, err := e.Finalize()
			if err != nil {
				return nil, err
			}
			return &result, nil
		}
		return nil, nil
	case Confirming:
		if now-e.cur.phaseStartedAt >= e.cfg.ConfirmingMaxMs {
			e.resetLocked()
		}
		e.mu.Unlock()
		return nil, nil
	default:
		e.mu.Unlock()
		return nil, nil
	}
}

// Phase returns the current phase (Idle if no election is active).
func (e *Election) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil {
		return Idle
	}
	return e.cur.phase
}

// CurrentElectionID returns the active election's ID, or 0 if Idle.
func (e *Election) CurrentElectionID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil {
		return 0
	}
	return e.cur.electionID
}

func (e *Election) publish(kind codec.Kind, v interface{}) error {
	body, err := codec.Encode(kind, v)
	if err != nil {
		return fmt.Errorf("election: encode: %w", err)
	}
	// election's wire payloads carry no signature field, unlike
	// gradient/credit's; this call just exercises the signing hook.
	_ = e.signer.Sign(body)
	return e.pub.Publish(Topic, body)
}
