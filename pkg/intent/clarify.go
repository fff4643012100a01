package intent

import (
	"context"
	"fmt"

	"github.com/harun/orchid/pkg/reasoning"
	"github.com/rs/zerolog"
)

// DefaultClarifyQuestion is used when the reasoning engine cannot produce a
// tailored follow-up question.
const DefaultClarifyQuestion = "Could you tell me a bit more about what you're looking for?"

// Asker emits a clarifying question to the user and awaits the response.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Loop re-prompts the user when intent is ambiguous, bounded by a retry
// limit. On exhaustion it falls back to a designated default label so the
// caller never dispatches an unresolved intent.
type Loop struct {
	classifier    *Classifier
	engine        reasoning.Engine
	maxAttempts   int
	fallbackLabel string
	logger        zerolog.Logger
}

// LoopConfig holds clarification loop configuration.
type LoopConfig struct {
	Classifier    *Classifier
	Engine        reasoning.Engine
	MaxAttempts   int
	FallbackLabel string
	Logger        zerolog.Logger
}

// NewLoop creates a clarification loop.
func NewLoop(cfg LoopConfig) (*Loop, error) {
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("reasoning engine is required")
	}
	if cfg.FallbackLabel == "" {
		return nil, fmt.Errorf("fallback label is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	return &Loop{
		classifier:    cfg.Classifier,
		engine:        cfg.Engine,
		maxAttempts:   cfg.MaxAttempts,
		fallbackLabel: cfg.FallbackLabel,
		logger:        cfg.Logger,
	}, nil
}

// Clarify runs clarification rounds after an initial classification came
// back unresolved. It returns the resolved intent and the number of
// clarification questions asked. The initial classification counts as the
// first attempt, so at most maxAttempts-1 rounds run here. The returned
// intent is never unresolved: on exhaustion it carries the fallback label.
func (l *Loop) Clarify(ctx context.Context, asker Asker, utterance string, history []string) (Intent, int, error) {
	if asker == nil {
		return Intent{}, 0, fmt.Errorf("asker is required")
	}

	attempts := 1 // the caller's failed classification
	rounds := 0
	current := utterance

	for attempts < l.maxAttempts {
		if err := ctx.Err(); err != nil {
			return Intent{}, rounds, err
		}

		question := l.clarifyQuestion(ctx, current, history)

		answer, err := asker.Ask(ctx, question)
		if err != nil {
			return Intent{}, rounds, fmt.Errorf("clarification aborted: %w", err)
		}
		rounds++
		attempts++

		history = append(history, "assistant: "+question, "user: "+answer)
		current = answer

		resolved, err := l.classifier.Classify(ctx, current, history)
		if err != nil {
			// Engine failure is treated as unresolved: keep clarifying
			// within the bound, never guess.
			l.logger.Warn().Err(err).Int("attempt", attempts).Msg("Classification failed during clarification")
			continue
		}
		if resolved.Resolved() {
			return resolved, rounds, nil
		}
	}

	l.logger.Info().
		Int("attempts", attempts).
		Str("fallback", l.fallbackLabel).
		Msg("Clarification exhausted, using fallback intent")

	return Intent{Label: l.fallbackLabel}, rounds, nil
}

func (l *Loop) clarifyQuestion(ctx context.Context, utterance string, history []string) string {
	out, err := l.engine.Reason(ctx, reasoning.Request{
		Kind:      reasoning.PromptClarifyQuestion,
		Utterance: utterance,
		History:   history,
	})
	if err != nil || out.Question == "" {
		return DefaultClarifyQuestion
	}
	return out.Question
}
