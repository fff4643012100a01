package intent

import (
	"context"
	"fmt"

	"github.com/harun/orchid/pkg/reasoning"
	"github.com/rs/zerolog"
)

// LabelUnresolved is the sentinel intent label used when classification
// confidence is below the threshold or the reasoning engine is unavailable.
const LabelUnresolved = "unresolved"

// Intent is a classified label drawn from the registry-known set, plus the
// classifier's confidence. Not persisted beyond the turn that resolves it.
type Intent struct {
	Label      string
	Confidence float64
}

// Resolved reports whether the intent names a dispatchable label.
func (i Intent) Resolved() bool {
	return i.Label != "" && i.Label != LabelUnresolved
}

// Classifier maps a user utterance to a known intent or the unresolved
// sentinel. Pure over its inputs plus the reasoning-engine call.
type Classifier struct {
	engine    reasoning.Engine
	labels    []string
	threshold float64
	logger    zerolog.Logger
}

// ClassifierConfig holds classifier configuration.
type ClassifierConfig struct {
	Engine    reasoning.Engine
	Labels    []string
	Threshold float64
	Logger    zerolog.Logger
}

// NewClassifier creates an intent classifier over the known label set.
func NewClassifier(cfg ClassifierConfig) (*Classifier, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("reasoning engine is required")
	}
	if len(cfg.Labels) == 0 {
		return nil, fmt.Errorf("at least one intent label is required")
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = 0.7
	}

	return &Classifier{
		engine:    cfg.Engine,
		labels:    cfg.Labels,
		threshold: cfg.Threshold,
		logger:    cfg.Logger,
	}, nil
}

// Classify resolves the utterance to an intent. A reasoning-engine failure
// is returned as an error; callers must treat it as unresolved rather than
// picking an arbitrary label.
func (c *Classifier) Classify(ctx context.Context, utterance string, history []string) (Intent, error) {
	if utterance == "" {
		return Intent{}, fmt.Errorf("utterance cannot be empty")
	}

	out, err := c.engine.Reason(ctx, reasoning.Request{
		Kind:      reasoning.PromptClassifyIntent,
		Utterance: utterance,
		History:   history,
		Labels:    c.labels,
	})
	if err != nil {
		return Intent{Label: LabelUnresolved}, err
	}

	result := Intent{
		Label:      out.Intent.Label,
		Confidence: out.Intent.Confidence,
	}

	// An unknown label is as good as no label.
	if !c.knownLabel(result.Label) {
		c.logger.Warn().
			Str("label", result.Label).
			Msg("Classifier returned label outside the known set")
		return Intent{Label: LabelUnresolved, Confidence: result.Confidence}, nil
	}

	if result.Confidence < c.threshold {
		c.logger.Debug().
			Str("label", result.Label).
			Float64("confidence", result.Confidence).
			Float64("threshold", c.threshold).
			Msg("Classification below confidence threshold")
		return Intent{Label: LabelUnresolved, Confidence: result.Confidence}, nil
	}

	return result, nil
}

func (c *Classifier) knownLabel(label string) bool {
	for _, l := range c.labels {
		if l == label {
			return true
		}
	}
	return false
}
