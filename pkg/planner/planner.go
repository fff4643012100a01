package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harun/orchid/pkg/reasoning"
	"github.com/rs/zerolog"
)

// FeedbackChannel presents a plan for human review and awaits the verdict.
// Implementations must not hold exclusive resources while waiting; there is
// no bound on response latency, only context cancellation.
type FeedbackChannel interface {
	AwaitFeedback(ctx context.Context, plan *Plan) (FeedbackEvent, error)
}

// Planner derives plans from user goals and revises them on feedback until
// the user accepts one.
type Planner struct {
	engine       reasoning.Engine
	capabilities []reasoning.Capability
	logger       zerolog.Logger
}

// Config holds planner configuration.
type Config struct {
	Engine       reasoning.Engine
	Capabilities []reasoning.Capability
	Logger       zerolog.Logger
}

// New creates a planner.
func New(cfg Config) (*Planner, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("reasoning engine is required")
	}

	return &Planner{
		engine:       cfg.Engine,
		capabilities: cfg.Capabilities,
		logger:       cfg.Logger,
	}, nil
}

// DraftPlan produces an initial plan for the goal. The returned plan is in
// AwaitingFeedback: drafting and the transition out of Draft are atomic
// from the caller's perspective, and the caller suspends for human input.
func (p *Planner) DraftPlan(ctx context.Context, goal string) (*Plan, error) {
	if goal == "" {
		return nil, fmt.Errorf("goal cannot be empty")
	}

	out, err := p.engine.Reason(ctx, reasoning.Request{
		Kind:         reasoning.PromptDraftPlan,
		Goal:         goal,
		Capabilities: p.capabilities,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to draft plan: %w", err)
	}

	now := time.Now()
	plan := &Plan{
		ID:        uuid.New().String(),
		Goal:      goal,
		Steps:     buildSteps(out.Plan.Steps),
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := plan.Transition(StatusAwaitingFeedback); err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("plan_id", plan.ID).
		Int("steps", len(plan.Steps)).
		Msg("Plan drafted")

	return plan, nil
}

// SubmitFeedback applies the user's verdict. Acceptance moves the plan to
// Accepted; rejection moves it through Revising, re-derives the steps with
// the feedback, and returns it to AwaitingFeedback.
func (p *Planner) SubmitFeedback(ctx context.Context, plan *Plan, fb FeedbackEvent) (*Plan, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan is required")
	}
	if plan.Status != StatusAwaitingFeedback {
		return nil, fmt.Errorf("plan %s is not awaiting feedback (status %s)", plan.ID, plan.Status)
	}

	if fb.Accept {
		if err := plan.Transition(StatusAccepted); err != nil {
			return nil, err
		}
		p.logger.Info().Str("plan_id", plan.ID).Int("revision", plan.Revision).Msg("Plan accepted")
		return plan, nil
	}

	if err := plan.Transition(StatusRevising); err != nil {
		return nil, err
	}

	out, err := p.engine.Reason(ctx, reasoning.Request{
		Kind:         reasoning.PromptRevisePlan,
		Goal:         plan.Goal,
		PlanSteps:    plan.StepDescriptions(),
		Feedback:     fb.Notes,
		Capabilities: p.capabilities,
	})
	if err != nil {
		// Revision failed; the plan stays revisable so the caller can retry
		// or abandon the session.
		if terr := plan.Transition(StatusAwaitingFeedback); terr != nil {
			return nil, terr
		}
		return nil, fmt.Errorf("failed to revise plan: %w", err)
	}

	plan.Steps = buildSteps(out.Plan.Steps)
	plan.Revision++

	if err := plan.Transition(StatusAwaitingFeedback); err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("plan_id", plan.ID).
		Int("revision", plan.Revision).
		Int("steps", len(plan.Steps)).
		Msg("Plan revised")

	return plan, nil
}

// Review drives the full draft/feedback cycle until the user accepts the
// plan or the context is cancelled. There is deliberately no iteration
// bound: a human is in the loop and may revise indefinitely.
func (p *Planner) Review(ctx context.Context, goal string, ch FeedbackChannel, onAwaiting func(*Plan)) (*Plan, error) {
	if ch == nil {
		return nil, fmt.Errorf("feedback channel is required")
	}

	plan, err := p.DraftPlan(ctx, goal)
	if err != nil {
		return nil, err
	}

	for {
		if onAwaiting != nil {
			onAwaiting(plan)
		}

		fb, err := ch.AwaitFeedback(ctx, plan)
		if err != nil {
			return nil, fmt.Errorf("feedback aborted: %w", err)
		}

		plan, err = p.SubmitFeedback(ctx, plan, fb)
		if err != nil {
			return nil, err
		}
		if plan.Accepted() {
			return plan, nil
		}
	}
}

func buildSteps(descriptions []string) []Step {
	steps := make([]Step, len(descriptions))
	for i, d := range descriptions {
		steps[i] = Step{
			ID:          fmt.Sprintf("step-%d", i+1),
			Description: d,
		}
	}
	return steps
}
