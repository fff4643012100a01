package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/orchid/pkg/planner"
	"github.com/harun/orchid/pkg/reasoning"
	"github.com/harun/orchid/pkg/subagent"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Coordinator drives the ReAct loop over an accepted plan: ask the reasoning
// engine to choose an agent (or finish), invoke it, record the observation,
// and feed it back into the next decision.
type Coordinator struct {
	engine        reasoning.Engine
	registry      *subagent.Registry
	maxIterations int
	agentTimeout  time.Duration
	logger        zerolog.Logger
}

// Config holds coordinator configuration.
type Config struct {
	Engine        reasoning.Engine
	Registry      *subagent.Registry
	MaxIterations int
	AgentTimeout  time.Duration
	Logger        zerolog.Logger
}

// New creates a coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("reasoning engine is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("agent registry is required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = 60 * time.Second
	}

	return &Coordinator{
		engine:        cfg.Engine,
		registry:      cfg.Registry,
		maxIterations: cfg.MaxIterations,
		agentTimeout:  cfg.AgentTimeout,
		logger:        cfg.Logger,
	}, nil
}

// Run executes the loop for an accepted plan. It returns an Outcome whose
// Termination distinguishes completion from the iteration-limit cutoff. An
// error is returned only when further progress is impossible: cancellation,
// an unknown agent, or the reasoning engine failing at a decision point.
func (c *Coordinator) Run(ctx context.Context, plan *planner.Plan, tc subagent.TurnContext) (*Outcome, error) {
	if plan == nil || !plan.Accepted() {
		return nil, fmt.Errorf("coordinator requires an accepted plan")
	}

	state := &loopState{phase: PhaseSelecting}
	capabilities := c.capabilities()

	logger := c.logger.With().Str("plan_id", plan.ID).Logger()
	logger.Info().Int("max_iterations", c.maxIterations).Msg("Coordinator loop started")

	for state.iteration < c.maxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		state.iteration++

		// Selecting: name the next agent or declare completion.
		state.phase = PhaseSelecting
		selection, err := c.selectAgent(ctx, plan, capabilities, state)
		if err != nil {
			return nil, err
		}
		if selection.Done {
			state.answer = selection.Answer
			state.phase = PhaseTerminated
			logger.Info().Int("iterations", state.iteration).Msg("Selection declared completion")
			return c.outcome(state, TerminationCompleted), nil
		}

		reg, err := c.registry.Resolve(selection.Agent)
		if err != nil {
			// A registry miss is fatal to the dispatch: configuration and
			// reasoning disagree about the capability set.
			return nil, err
		}

		// Executing: the call is timeout-bound and individually cancellable.
		state.phase = PhaseExecuting
		observation, err := c.execute(ctx, reg, selection, state.iteration, tc)
		if err != nil {
			return nil, err
		}

		// Observing: failures become data, not aborts.
		state.phase = PhaseObserving
		state.observations = append(state.observations, observation)
		logger.Debug().
			Int("seq", observation.Seq).
			Str("agent", observation.Agent).
			Bool("failed", observation.Failed).
			Msg("Observation recorded")

		// Reasoning: ask whether the task is complete.
		state.phase = PhaseReasoning
		completion, err := c.evaluate(ctx, plan, state)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			// The next Selecting step will surface a persistent engine
			// failure; a transient one just costs an iteration.
			logger.Warn().Err(err).Msg("Completion evaluation failed, continuing loop")
			continue
		}
		if completion.Done {
			state.answer = completion.Answer
			state.phase = PhaseTerminated
			logger.Info().Int("iterations", state.iteration).Msg("Reasoning declared completion")
			return c.outcome(state, TerminationCompleted), nil
		}
	}

	state.phase = PhaseTerminated
	logger.Warn().Int("iterations", state.iteration).Msg("Iteration limit reached without completion")

	return c.outcome(state, TerminationIterationLimit), nil
}

func (c *Coordinator) selectAgent(ctx context.Context, plan *planner.Plan, capabilities []reasoning.Capability, state *loopState) (*reasoning.SelectionOutput, error) {
	out, err := c.engine.Reason(ctx, reasoning.Request{
		Kind:         reasoning.PromptSelectAgent,
		Goal:         plan.Goal,
		PlanSteps:    plan.StepDescriptions(),
		Capabilities: capabilities,
		Observations: state.summaries(),
	})
	if err != nil {
		return nil, fmt.Errorf("agent selection failed: %w", err)
	}
	return out.Selection, nil
}

func (c *Coordinator) execute(ctx context.Context, reg subagent.Registration, selection *reasoning.SelectionOutput, seq int, tc subagent.TurnContext) (Observation, error) {
	execCtx, cancel := context.WithTimeout(ctx, c.agentTimeout)
	defer cancel()

	result, err := reg.Agent.Execute(execCtx, selection.Query, tc)

	// Session-level cancellation aborts the turn; an agent timeout is just
	// a failed observation.
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return Observation{}, ctx.Err()
	}

	id, idErr := gonanoid.New()
	if idErr != nil {
		return Observation{}, fmt.Errorf("failed to generate observation ID: %w", idErr)
	}

	observation := Observation{
		ID:        id,
		Seq:       seq,
		Agent:     reg.Descriptor.Name,
		Query:     selection.Query,
		CreatedAt: time.Now(),
	}

	if err != nil {
		observation.Failed = true
		observation.Reason = failureReason(err)
		c.logger.Warn().
			Err(err).
			Str("agent", reg.Descriptor.Name).
			Msg("Agent execution failed")
		return observation, nil
	}

	observation.Content = result.Content
	return observation, nil
}

func (c *Coordinator) evaluate(ctx context.Context, plan *planner.Plan, state *loopState) (*reasoning.CompletionOutput, error) {
	out, err := c.engine.Reason(ctx, reasoning.Request{
		Kind:         reasoning.PromptEvaluateCompletion,
		Goal:         plan.Goal,
		PlanSteps:    plan.StepDescriptions(),
		Observations: state.summaries(),
	})
	if err != nil {
		return nil, err
	}
	return out.Completion, nil
}

func (c *Coordinator) capabilities() []reasoning.Capability {
	descriptors := c.registry.List()
	capabilities := make([]reasoning.Capability, len(descriptors))
	for i, d := range descriptors {
		capabilities[i] = reasoning.Capability{
			Name:        d.Name,
			Description: d.Description,
			Input:       d.Input,
			Output:      d.Output,
		}
	}
	return capabilities
}

func (c *Coordinator) outcome(state *loopState, termination Termination) *Outcome {
	return &Outcome{
		Termination:  termination,
		Answer:       state.answer,
		Observations: state.observations,
		Iterations:   state.iteration,
	}
}

func failureReason(err error) string {
	var execErr *subagent.ExecutionError
	if errors.As(err, &execErr) {
		return string(execErr.Reason)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return string(subagent.ReasonTimeout)
	}
	return err.Error()
}
