package stratum

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/boomstarternetwork/chainweb-mining-client/internal/core"
)

// State is a position in the session state machine of spec.md §4.6:
// Connected -> Subscribed -> Authorized -> Active -> Closed. Active is
// reached implicitly the moment a job has been broadcast to an Authorized
// session; it is tracked explicitly here so share validation can tell a
// session that has never seen a job apart from one that has.
type State int

const (
	StateConnected State = iota
	StateSubscribed
	StateAuthorized
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateAuthorized:
		return "authorized"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// submitKey identifies a share for duplicate detection: (job id,
// extranonce2, ntime, nonce), per spec.md P7.
type submitKey struct {
	jobID       string
	extranonce2 [4]byte
	ntime       [4]byte
	nonce       core.Nonce
}

// Session is one ASIC miner's connection and its place in the protocol
// state machine. Its shares are validated against its own (pool) difficulty
// target first and the block target second, per spec.md §4.6 point 4.
type Session struct {
	ID         uuid.UUID
	WorkerName string

	mu           sync.Mutex
	state        State
	extranonce1  [4]byte
	difficulty   float64
	sessionTarget core.Target

	sharesSubmitted uint64
	sharesValid     uint64
	sharesStale     uint64

	seen map[submitKey]struct{}

	limiter *rate.Limiter

	currentJobID string
}

// NewSession creates a session freshly Connected, with an exclusively
// assigned extranonce1 and a submit rate limiter (10 shares/sec, burst 20 —
// generous for a single ASIC, tight enough to bound abusive reconnect-spam
// per spec.md's out-of-scope-but-ambient DoS note).
func NewSession(extranonce1 [4]byte) *Session {
	s := &Session{
		ID:          uuid.New(),
		state:       StateConnected,
		extranonce1: extranonce1,
		difficulty:  1,
		seen:        make(map[submitKey]struct{}),
		limiter:     rate.NewLimiter(rate.Limit(10), 20),
	}
	s.sessionTarget, _ = DifficultyToTarget(s.difficulty)
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MarkSubscribed transitions Connected -> Subscribed. No-op if already past
// that point.
func (s *Session) MarkSubscribed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnected {
		s.state = StateSubscribed
	}
}

// Authorize transitions Subscribed -> Authorized and records the worker
// name presented by the miner.
func (s *Session) Authorize(workerName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WorkerName = workerName
	if s.state == StateSubscribed {
		s.state = StateAuthorized
	}
}

func (s *Session) IsSubscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state >= StateSubscribed
}

func (s *Session) IsAuthorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state >= StateAuthorized
}

// Close transitions to Closed, a terminal state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateClosed
}

// SetDifficulty updates the session's pool difficulty and recomputed
// target. The current job id is left as it is, so shares for the job already
// sent keep validating, now against the new target.
func (s *Session) SetDifficulty(difficulty float64) error {
	target, err := DifficultyToTarget(difficulty)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.difficulty = difficulty
	s.sessionTarget = target
	return nil
}

func (s *Session) Difficulty() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.difficulty
}

// SetCurrentJob records the job id most recently broadcast to this
// session and moves it into Active, so long as it was already Authorized.
func (s *Session) SetCurrentJob(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentJobID = jobID
	if s.state == StateAuthorized {
		s.state = StateActive
	}
}

// ShareOutcome is the result of validating a submitted share.
type ShareOutcome int

const (
	ShareRejectedStale ShareOutcome = iota
	ShareRejectedDuplicate
	ShareRejectedLowDifficulty
	ShareAcceptedSessionOnly
	ShareAcceptedMeetsBlockTarget
)

// ValidateShare checks a submitted share against the session's current job,
// its dedup set, its pool-difficulty target, and finally the block target,
// in that order, per spec.md §4.6 point 4 and §7/P7. The submit rate limit
// is not checked here; the server applies it through Allow beforehand.
func (s *Session) ValidateShare(jobID string, extranonce2, ntime [4]byte,
	nonce core.Nonce, blockTarget core.Target, job *JobTemplate) (ShareOutcome, core.Work, core.Hash) {

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sharesSubmitted++

	if job == nil || job.ID != jobID || jobID != s.currentJobID {
		s.sharesStale++
		return ShareRejectedStale, core.Work{}, core.Hash{}
	}

	key := submitKey{jobID: jobID, extranonce2: extranonce2, ntime: ntime, nonce: nonce}
	if _, dup := s.seen[key]; dup {
		return ShareRejectedDuplicate, core.Work{}, core.Hash{}
	}

	work := job.Splice(s.extranonce1, extranonce2, ntime, nonce)
	hash := work.Hash()

	if !s.sessionTarget.MeetsTarget(hash) {
		return ShareRejectedLowDifficulty, work, hash
	}

	s.seen[key] = struct{}{}
	s.sharesValid++

	if blockTarget.MeetsTarget(hash) {
		return ShareAcceptedMeetsBlockTarget, work, hash
	}
	return ShareAcceptedSessionOnly, work, hash
}

// Allow reports whether this session's submit rate limiter currently has
// budget, consuming one token if so.
func (s *Session) Allow() bool {
	return s.limiter.AllowN(time.Now(), 1)
}

// Stats returns the session's share counters for diagnostics.
func (s *Session) Stats() (submitted, valid, stale uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sharesSubmitted, s.sharesValid, s.sharesStale
}

func (s *Session) ExtraNonce1() [4]byte {
	return s.extranonce1
}
