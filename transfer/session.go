package transfer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/moyoez/imagerestore/estimator"
	"github.com/moyoez/imagerestore/tool"
	"github.com/moyoez/imagerestore/types"
)

// State is where a session sits in Idle -> Running -> {Completed, Cancelled, Failed}.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) SessionState() types.SessionState {
	switch s {
	case StateRunning:
		return types.SessionRunning
	case StateCompleted:
		return types.SessionCompleted
	case StateCancelled:
		return types.SessionCancelled
	case StateFailed:
		return types.SessionFailed
	default:
		return types.SessionIdle
	}
}

func (s State) String() string {
	return string(s.SessionState())
}

// Result is the terminal outcome of one session.
type Result struct {
	State      State
	Err        error // set only when State is StateFailed
	TotalBytes uint64
	Duration   time.Duration
}

// Request names what to restore where. Locators are interpreted by the providers.
type Request struct {
	Source string
	Target string
}

// Session is the state of one restore. Only the worker mutates it; everybody
// else reads through Snapshot.
type Session struct {
	Id      string
	Request Request

	completed atomic.Uint64

	mu          sync.RWMutex
	state       State
	sourceBytes uint64
	targetBytes uint64
	startedAt   time.Time
	endedAt     time.Time
	err         error
	est         *estimator.Estimator
}

// NewSession creates an idle session with a fresh id.
func NewSession(req Request) *Session {
	return &Session{
		Id:      tool.GenerateRandomUUID(),
		Request: req,
	}
}

func (s *Session) begin(at time.Time) {
	s.mu.Lock()
	s.state = StateRunning
	s.startedAt = at
	s.mu.Unlock()
}

func (s *Session) setSizes(sourceBytes, targetBytes uint64, est *estimator.Estimator) {
	s.mu.Lock()
	s.sourceBytes = sourceBytes
	s.targetBytes = targetBytes
	s.est = est
	s.mu.Unlock()
}

func (s *Session) advance(completed uint64) {
	s.completed.Store(completed)
}

func (s *Session) finish(res Result, at time.Time) {
	s.mu.Lock()
	s.state = res.State
	s.err = res.Err
	s.endedAt = at
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot copies the session for a controller. CompletedBytes never decreases
// between calls.
func (s *Session) Snapshot() types.SessionSnapshot {
	s.mu.RLock()
	snap := types.SessionSnapshot{
		SessionId:   s.Id,
		State:       s.state.SessionState(),
		Source:      s.Request.Source,
		Target:      s.Request.Target,
		SourceBytes: s.sourceBytes,
		TargetBytes: s.targetBytes,
		StartedAt:   s.startedAt,
		EndedAt:     s.endedAt,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	est := s.est
	s.mu.RUnlock()

	snap.CompletedBytes = s.completed.Load()
	if est != nil && !snap.State.Terminal() {
		es := est.Snapshot()
		snap.BytesPerSec = es.BytesPerSec
		snap.USecRemaining = es.USecRemaining
		snap.ETAKnown = es.ETAKnown
	}
	return snap
}

// SessionHandle is the controller's side of a running session.
type SessionHandle struct {
	session *Session
	token   *CancellationToken
	done    chan struct{}
	result  Result
}

// Start runs engine on its own goroutine and returns immediately. A nil token
// gets a fresh one; a nil progress means nobody is listening.
func Start(engine *Engine, req Request, token *CancellationToken, progress Progress) *SessionHandle {
	return StartSession(engine, NewSession(req), token, progress)
}

// StartSession is Start for a session created up front, so its id can be
// handed out (to sinks, for instance) before the worker runs.
func StartSession(engine *Engine, s *Session, token *CancellationToken, progress Progress) *SessionHandle {
	if token == nil {
		token = NewCancellationToken(nil)
	}
	h := &SessionHandle{
		session: s,
		token:   token,
		done:    make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		h.result = engine.RunSession(s, token, progress)
	}()
	return h
}

func (h *SessionHandle) Id() string {
	return h.session.Id
}

// Cancel asks the worker to stop. The wipe is skipped; the rescan still runs.
func (h *SessionHandle) Cancel() {
	h.token.Cancel()
}

// Wait blocks until the worker is done, recovery included.
func (h *SessionHandle) Wait() Result {
	<-h.done
	return h.result
}

func (h *SessionHandle) Done() <-chan struct{} {
	return h.done
}

func (h *SessionHandle) Snapshot() types.SessionSnapshot {
	return h.session.Snapshot()
}
