package intent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/harun/orchid/pkg/reasoning"
	"github.com/rs/zerolog"
)

// fakeEngine answers classify and clarify prompts from queues.
type fakeEngine struct {
	intents   []*reasoning.IntentOutput
	errs      []error
	questions []string
	calls     int
	qCalls    int
}

func (e *fakeEngine) Reason(ctx context.Context, req reasoning.Request) (*reasoning.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch req.Kind {
	case reasoning.PromptClassifyIntent:
		i := e.calls
		e.calls++
		if i < len(e.errs) && e.errs[i] != nil {
			return nil, e.errs[i]
		}
		if i >= len(e.intents) {
			return nil, fmt.Errorf("unexpected classify call %d", i)
		}
		return &reasoning.Output{Intent: e.intents[i]}, nil

	case reasoning.PromptClarifyQuestion:
		q := "What exactly do you need?"
		if e.qCalls < len(e.questions) {
			q = e.questions[e.qCalls]
		}
		e.qCalls++
		return &reasoning.Output{Question: q}, nil

	default:
		return nil, fmt.Errorf("unexpected prompt kind %s", req.Kind)
	}
}

var testLabels = []string{"knowledge_qa", "product_recommendation", "concierge"}

func newTestClassifier(t *testing.T, engine reasoning.Engine, threshold float64) *Classifier {
	t.Helper()
	c, err := NewClassifier(ClassifierConfig{
		Engine:    engine,
		Labels:    testLabels,
		Threshold: threshold,
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewClassifier failed: %v", err)
	}
	return c
}

func TestClassify(t *testing.T) {
	t.Run("confident known label", func(t *testing.T) {
		engine := &fakeEngine{intents: []*reasoning.IntentOutput{{Label: "knowledge_qa", Confidence: 0.92}}}
		c := newTestClassifier(t, engine, 0.7)

		result, err := c.Classify(context.Background(), "what is the capital of France?", nil)
		if err != nil {
			t.Fatalf("Classify failed: %v", err)
		}
		if !result.Resolved() || result.Label != "knowledge_qa" {
			t.Errorf("Unexpected intent: %+v", result)
		}
	})

	t.Run("below threshold is unresolved", func(t *testing.T) {
		engine := &fakeEngine{intents: []*reasoning.IntentOutput{{Label: "knowledge_qa", Confidence: 0.4}}}
		c := newTestClassifier(t, engine, 0.7)

		result, err := c.Classify(context.Background(), "hmm", nil)
		if err != nil {
			t.Fatalf("Classify failed: %v", err)
		}
		if result.Resolved() {
			t.Errorf("Expected unresolved, got %+v", result)
		}
		if result.Label != LabelUnresolved {
			t.Errorf("Expected %s, got %s", LabelUnresolved, result.Label)
		}
	})

	t.Run("unknown label is unresolved", func(t *testing.T) {
		engine := &fakeEngine{intents: []*reasoning.IntentOutput{{Label: "made_up", Confidence: 0.99}}}
		c := newTestClassifier(t, engine, 0.7)

		result, err := c.Classify(context.Background(), "anything", nil)
		if err != nil {
			t.Fatalf("Classify failed: %v", err)
		}
		if result.Label != LabelUnresolved {
			t.Errorf("Expected unresolved for out-of-set label, got %s", result.Label)
		}
	})

	t.Run("engine failure returns unresolved and the error", func(t *testing.T) {
		engine := &fakeEngine{errs: []error{reasoning.ErrUnavailable}}
		c := newTestClassifier(t, engine, 0.7)

		result, err := c.Classify(context.Background(), "anything", nil)
		if !errors.Is(err, reasoning.ErrUnavailable) {
			t.Errorf("Expected ErrUnavailable, got %v", err)
		}
		if result.Resolved() {
			t.Errorf("Engine failure must not resolve an intent: %+v", result)
		}
	})

	t.Run("empty utterance", func(t *testing.T) {
		c := newTestClassifier(t, &fakeEngine{}, 0.7)
		if _, err := c.Classify(context.Background(), "", nil); err == nil {
			t.Error("Expected error for empty utterance")
		}
	})
}
