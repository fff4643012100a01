package orchestrator

import (
	"errors"
	"fmt"

	"github.com/harun/orchid/pkg/coordinator"
)

// Mode selects the control strategy for a session's turns.
type Mode string

const (
	// ModePlanner runs plan-then-act with human-in-the-loop feedback.
	ModePlanner Mode = "planner"
	// ModeDirect runs intent classification and single-agent dispatch.
	ModeDirect Mode = "direct"
)

// Valid reports whether the mode is a known value.
func (m Mode) Valid() bool {
	return m == ModePlanner || m == ModeDirect
}

// State is the session's position in the top-level state machine.
type State string

const (
	StateIdle             State = "idle"
	StateClassifying      State = "classifying"
	StateClarifying       State = "clarifying"
	StateDispatching      State = "dispatching"
	StatePlanning         State = "planning"
	StateAwaitingFeedback State = "awaiting_feedback"
	StateCoordinating     State = "coordinating"
	StateTurnComplete     State = "turn_complete"
	StateCancelled        State = "cancelled"
)

// OutcomeKind classifies how a turn ended.
type OutcomeKind string

const (
	// OutcomeCompleted means the turn produced an answer.
	OutcomeCompleted OutcomeKind = "completed"
	// OutcomeIncomplete means the coordinator hit its iteration limit
	// without a completion signal.
	OutcomeIncomplete OutcomeKind = "incomplete"
	// OutcomeCancelled means the session was cancelled mid-turn.
	OutcomeCancelled OutcomeKind = "cancelled"
	// OutcomeFailed means the turn could not make progress.
	OutcomeFailed OutcomeKind = "failed"
)

// ErrSessionBusy is returned when a turn arrives while another is in flight.
var ErrSessionBusy = errors.New("session has a turn in flight")

func errInvalidMode(m Mode) error {
	return fmt.Errorf("invalid mode: %s", m)
}

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// TurnResult is what one user turn produced.
type TurnResult struct {
	Outcome             OutcomeKind               `json:"outcome"`
	Answer              string                    `json:"answer,omitempty"`
	Intent              string                    `json:"intent,omitempty"`
	Agent               string                    `json:"agent,omitempty"`
	Observations        []coordinator.Observation `json:"observations,omitempty"`
	ClarificationRounds int                       `json:"clarification_rounds"`
	Iterations          int                       `json:"iterations,omitempty"`
	Err                 error                     `json:"-"`
}
