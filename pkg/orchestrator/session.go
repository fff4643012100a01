package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/orchid/pkg/planner"
)

// Session identifies one conversation. It owns the mode, the state-machine
// position, the pending plan, and the clarification counter. All fields are
// guarded for concurrent access; a session processes at most one turn at a
// time.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu                    sync.Mutex
	mode                  Mode
	state                 State
	pendingPlan           *planner.Plan
	clarificationAttempts int
	lastTurnAt            time.Time
	turnCancel            context.CancelFunc
}

// NewSession creates a session in the given mode.
func NewSession(mode Mode) *Session {
	return &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		mode:      mode,
		state:     StateIdle,
	}
}

// Mode returns the session's current mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode changes the mode. Mode is per-session configuration and may only
// change between turns, never mid-turn.
func (s *Session) SetMode(mode Mode) error {
	if !mode.Valid() {
		return errInvalidMode(mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.turnCancel != nil {
		return ErrSessionBusy
	}
	s.mode = mode
	return nil
}

// State returns the session's state-machine position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// PendingPlan returns the plan awaiting feedback, if any.
func (s *Session) PendingPlan() *planner.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingPlan
}

func (s *Session) setPendingPlan(plan *planner.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingPlan = plan
}

// ClarificationAttempts returns the clarification counter for the current
// turn. It resets at turn boundaries.
func (s *Session) ClarificationAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clarificationAttempts
}

func (s *Session) addClarifications(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clarificationAttempts += n
}

// beginTurn marks the session busy, resets per-turn counters, and snapshots
// the mode so it stays fixed for the turn. It returns a context the session
// can cancel.
func (s *Session) beginTurn(parent context.Context) (context.Context, Mode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.turnCancel != nil {
		return nil, "", ErrSessionBusy
	}

	ctx, cancel := context.WithCancel(parent)
	s.turnCancel = cancel
	s.clarificationAttempts = 0
	s.pendingPlan = nil
	s.lastTurnAt = time.Now()

	return ctx, s.mode, nil
}

// endTurn releases the busy marker.
func (s *Session) endTurn(final State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.turnCancel != nil {
		s.turnCancel()
		s.turnCancel = nil
	}
	s.state = final
	s.pendingPlan = nil
}

// Cancel aborts any in-flight turn promptly. The turn's outcome becomes
// Cancelled rather than leaving the session suspended.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.turnCancel != nil {
		s.turnCancel()
	}
}
