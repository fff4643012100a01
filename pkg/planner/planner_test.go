package planner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/harun/orchid/pkg/reasoning"
	"github.com/rs/zerolog"
)

// scriptedEngine returns canned plan outputs in order.
type scriptedEngine struct {
	outputs []*reasoning.Output
	errs    []error
	calls   int
	reqs    []reasoning.Request
}

func (e *scriptedEngine) Reason(ctx context.Context, req reasoning.Request) (*reasoning.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.reqs = append(e.reqs, req)
	i := e.calls
	e.calls++
	if i < len(e.errs) && e.errs[i] != nil {
		return nil, e.errs[i]
	}
	if i >= len(e.outputs) {
		return nil, fmt.Errorf("unexpected reasoning call %d", i)
	}
	return e.outputs[i], nil
}

func planOutput(steps ...string) *reasoning.Output {
	return &reasoning.Output{Plan: &reasoning.PlanOutput{Steps: steps}}
}

func newTestPlanner(t *testing.T, engine reasoning.Engine) *Planner {
	t.Helper()
	p, err := New(Config{Engine: engine, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestNew(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("Expected error without engine")
	}
}

func TestDraftPlan(t *testing.T) {
	t.Run("drafts and awaits feedback", func(t *testing.T) {
		engine := &scriptedEngine{outputs: []*reasoning.Output{planOutput("look up flights", "compare prices")}}
		p := newTestPlanner(t, engine)

		plan, err := p.DraftPlan(context.Background(), "book a trip")
		if err != nil {
			t.Fatalf("DraftPlan failed: %v", err)
		}
		if plan.ID == "" {
			t.Error("Plan ID is empty")
		}
		if plan.Status != StatusAwaitingFeedback {
			t.Errorf("Expected status %s, got %s", StatusAwaitingFeedback, plan.Status)
		}
		if len(plan.Steps) != 2 {
			t.Errorf("Expected 2 steps, got %d", len(plan.Steps))
		}
		if plan.Revision != 0 {
			t.Errorf("Expected revision 0, got %d", plan.Revision)
		}
	})

	t.Run("empty goal", func(t *testing.T) {
		p := newTestPlanner(t, &scriptedEngine{})
		if _, err := p.DraftPlan(context.Background(), ""); err == nil {
			t.Error("Expected error for empty goal")
		}
	})

	t.Run("engine failure", func(t *testing.T) {
		engine := &scriptedEngine{errs: []error{reasoning.ErrUnavailable}}
		p := newTestPlanner(t, engine)

		_, err := p.DraftPlan(context.Background(), "book a trip")
		if !errors.Is(err, reasoning.ErrUnavailable) {
			t.Errorf("Expected ErrUnavailable, got %v", err)
		}
	})
}

func TestSubmitFeedback(t *testing.T) {
	t.Run("accept", func(t *testing.T) {
		engine := &scriptedEngine{outputs: []*reasoning.Output{planOutput("step one")}}
		p := newTestPlanner(t, engine)

		plan, err := p.DraftPlan(context.Background(), "do the thing")
		if err != nil {
			t.Fatalf("DraftPlan failed: %v", err)
		}

		plan, err = p.SubmitFeedback(context.Background(), plan, FeedbackEvent{Accept: true})
		if err != nil {
			t.Fatalf("SubmitFeedback failed: %v", err)
		}
		if !plan.Accepted() {
			t.Errorf("Expected accepted, got %s", plan.Status)
		}
	})

	t.Run("reject revises and returns to awaiting feedback", func(t *testing.T) {
		engine := &scriptedEngine{outputs: []*reasoning.Output{
			planOutput("original step"),
			planOutput("revised step one", "revised step two"),
		}}
		p := newTestPlanner(t, engine)

		plan, err := p.DraftPlan(context.Background(), "do the thing")
		if err != nil {
			t.Fatalf("DraftPlan failed: %v", err)
		}

		plan, err = p.SubmitFeedback(context.Background(), plan, FeedbackEvent{Accept: false, Notes: "add a second step"})
		if err != nil {
			t.Fatalf("SubmitFeedback failed: %v", err)
		}
		if plan.Status != StatusAwaitingFeedback {
			t.Errorf("Expected status %s, got %s", StatusAwaitingFeedback, plan.Status)
		}
		if plan.Revision != 1 {
			t.Errorf("Expected revision 1, got %d", plan.Revision)
		}
		if len(plan.Steps) != 2 {
			t.Errorf("Expected 2 revised steps, got %d", len(plan.Steps))
		}

		// Revision request carries the feedback notes.
		last := engine.reqs[len(engine.reqs)-1]
		if last.Kind != reasoning.PromptRevisePlan {
			t.Errorf("Expected revise_plan request, got %s", last.Kind)
		}
		if last.Feedback != "add a second step" {
			t.Errorf("Feedback not forwarded, got %q", last.Feedback)
		}
	})

	t.Run("revision failure keeps plan revisable", func(t *testing.T) {
		engine := &scriptedEngine{
			outputs: []*reasoning.Output{planOutput("step"), nil},
			errs:    []error{nil, reasoning.ErrTimeout},
		}
		p := newTestPlanner(t, engine)

		plan, err := p.DraftPlan(context.Background(), "do the thing")
		if err != nil {
			t.Fatalf("DraftPlan failed: %v", err)
		}

		_, err = p.SubmitFeedback(context.Background(), plan, FeedbackEvent{Accept: false, Notes: "change it"})
		if !errors.Is(err, reasoning.ErrTimeout) {
			t.Errorf("Expected ErrTimeout, got %v", err)
		}
		if plan.Status != StatusAwaitingFeedback {
			t.Errorf("Plan should return to awaiting_feedback, got %s", plan.Status)
		}
	})

	t.Run("feedback on accepted plan rejected", func(t *testing.T) {
		engine := &scriptedEngine{outputs: []*reasoning.Output{planOutput("step")}}
		p := newTestPlanner(t, engine)

		plan, _ := p.DraftPlan(context.Background(), "goal")
		plan, _ = p.SubmitFeedback(context.Background(), plan, FeedbackEvent{Accept: true})

		if _, err := p.SubmitFeedback(context.Background(), plan, FeedbackEvent{Accept: true}); err == nil {
			t.Error("Expected error submitting feedback on accepted plan")
		}
	})
}

// channelFeedback scripts a sequence of feedback events.
type channelFeedback struct {
	events []FeedbackEvent
	seen   []*Plan
}

func (c *channelFeedback) AwaitFeedback(ctx context.Context, plan *Plan) (FeedbackEvent, error) {
	if err := ctx.Err(); err != nil {
		return FeedbackEvent{}, err
	}
	c.seen = append(c.seen, plan)
	if len(c.events) == 0 {
		return FeedbackEvent{}, fmt.Errorf("no more feedback scripted")
	}
	fb := c.events[0]
	c.events = c.events[1:]
	return fb, nil
}

func TestReview(t *testing.T) {
	t.Run("reject then accept", func(t *testing.T) {
		engine := &scriptedEngine{outputs: []*reasoning.Output{
			planOutput("draft step"),
			planOutput("revised step"),
		}}
		p := newTestPlanner(t, engine)

		ch := &channelFeedback{events: []FeedbackEvent{
			{Accept: false, Notes: "not quite"},
			{Accept: true},
		}}

		var awaited int
		plan, err := p.Review(context.Background(), "plan my week", ch, func(*Plan) { awaited++ })
		if err != nil {
			t.Fatalf("Review failed: %v", err)
		}
		if !plan.Accepted() {
			t.Errorf("Expected accepted plan, got %s", plan.Status)
		}
		if plan.Revision != 1 {
			t.Errorf("Expected revision 1, got %d", plan.Revision)
		}
		if awaited != 2 {
			t.Errorf("Expected 2 awaiting callbacks, got %d", awaited)
		}
		if plan.Steps[0].Description != "revised step" {
			t.Errorf("Expected revised steps, got %q", plan.Steps[0].Description)
		}
	})

	t.Run("cancellation while awaiting feedback", func(t *testing.T) {
		engine := &scriptedEngine{outputs: []*reasoning.Output{planOutput("step")}}
		p := newTestPlanner(t, engine)

		ctx, cancel := context.WithCancel(context.Background())
		ch := feedbackFunc(func(fctx context.Context, plan *Plan) (FeedbackEvent, error) {
			cancel()
			return FeedbackEvent{}, fctx.Err()
		})

		_, err := p.Review(ctx, "goal", ch, nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})
}

type feedbackFunc func(ctx context.Context, plan *Plan) (FeedbackEvent, error)

func (f feedbackFunc) AwaitFeedback(ctx context.Context, plan *Plan) (FeedbackEvent, error) {
	return f(ctx, plan)
}
