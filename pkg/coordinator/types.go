package coordinator

import (
	"time"

	"github.com/harun/orchid/pkg/reasoning"
)

// Phase is the coordinator's position in the observe/reason/act cycle.
type Phase string

const (
	PhaseSelecting  Phase = "selecting"
	PhaseExecuting  Phase = "executing"
	PhaseObserving  Phase = "observing"
	PhaseReasoning  Phase = "reasoning"
	PhaseTerminated Phase = "terminated"
)

// Observation records the result of one agent invocation. Observations are
// append-only, strictly ordered by Seq, and never mutated after creation.
type Observation struct {
	ID        string    `json:"id"`
	Seq       int       `json:"seq"`
	Agent     string    `json:"agent"`
	Query     string    `json:"query"`
	Content   string    `json:"content,omitempty"`
	Failed    bool      `json:"failed"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary converts the observation into the reasoning-engine view.
func (o Observation) Summary() reasoning.ObservationSummary {
	return reasoning.ObservationSummary{
		Seq:     o.Seq,
		Agent:   o.Agent,
		Query:   o.Query,
		Content: o.Content,
		Failed:  o.Failed,
		Reason:  o.Reason,
	}
}

// Termination says how a loop run ended.
type Termination string

const (
	// TerminationCompleted means the reasoning step declared the task done.
	TerminationCompleted Termination = "completed"
	// TerminationIterationLimit means the loop hit MaxIterations without a
	// completion signal.
	TerminationIterationLimit Termination = "iteration_limit"
)

// Outcome is the result of one coordinator run.
type Outcome struct {
	Termination  Termination   `json:"termination"`
	Answer       string        `json:"answer,omitempty"`
	Observations []Observation `json:"observations"`
	Iterations   int           `json:"iterations"`
}

// Completed reports whether the run ended with a completion signal.
func (o *Outcome) Completed() bool {
	return o.Termination == TerminationCompleted
}

// loopState is the coordinator's per-run state. Created when the loop
// starts, discarded when it terminates.
type loopState struct {
	iteration    int
	phase        Phase
	observations []Observation
	answer       string
}

func (s *loopState) summaries() []reasoning.ObservationSummary {
	summaries := make([]reasoning.ObservationSummary, len(s.observations))
	for i, o := range s.observations {
		summaries[i] = o.Summary()
	}
	return summaries
}
