package reasoning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PromptKind identifies the decision the engine is asked to make.
type PromptKind string

const (
	PromptDraftPlan          PromptKind = "draft_plan"
	PromptRevisePlan         PromptKind = "revise_plan"
	PromptClassifyIntent     PromptKind = "classify_intent"
	PromptSelectAgent        PromptKind = "select_agent"
	PromptEvaluateCompletion PromptKind = "evaluate_completion"
	PromptClarifyQuestion    PromptKind = "clarify_question"
)

var (
	// ErrUnavailable indicates the reasoning backend could not be reached.
	ErrUnavailable = errors.New("reasoning engine unavailable")
	// ErrTimeout indicates the reasoning call exceeded its deadline.
	ErrTimeout = errors.New("reasoning engine timed out")
	// ErrMalformedOutput indicates the backend returned output that failed
	// schema validation.
	ErrMalformedOutput = errors.New("reasoning engine returned malformed output")
)

// Capability describes an agent the engine may choose from.
type Capability struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Input       string `json:"input"`
	Output      string `json:"output"`
}

// ObservationSummary is the loop-visible record of one agent invocation.
type ObservationSummary struct {
	Seq     int    `json:"seq"`
	Agent   string `json:"agent"`
	Query   string `json:"query"`
	Content string `json:"content"`
	Failed  bool   `json:"failed"`
	Reason  string `json:"reason,omitempty"`
}

// Request carries the context for one reasoning call. Only the fields
// relevant to the prompt kind need to be set.
type Request struct {
	Kind         PromptKind
	Utterance    string
	Goal         string
	History      []string
	Capabilities []Capability
	PlanSteps    []string
	Feedback     string
	Observations []ObservationSummary
	Labels       []string
}

// IntentOutput is the result of a classify_intent call.
type IntentOutput struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// PlanOutput is the result of a draft_plan or revise_plan call.
type PlanOutput struct {
	Steps []string `json:"steps"`
}

// SelectionOutput is the result of a select_agent call.
type SelectionOutput struct {
	Done   bool   `json:"done"`
	Agent  string `json:"agent,omitempty"`
	Query  string `json:"query,omitempty"`
	Answer string `json:"answer,omitempty"`
}

// CompletionOutput is the result of an evaluate_completion call.
type CompletionOutput struct {
	Done   bool   `json:"done"`
	Answer string `json:"answer,omitempty"`
}

// Output is the parsed, validated result of a reasoning call. Exactly one
// field matching the request kind is populated.
type Output struct {
	Intent     *IntentOutput
	Plan       *PlanOutput
	Selection  *SelectionOutput
	Completion *CompletionOutput
	Question   string
}

// Engine produces structured decisions for the orchestration state machine.
type Engine interface {
	Reason(ctx context.Context, req Request) (*Output, error)
}

// Completer is the raw text-in, text-out surface of an LLM backend.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Provider() string
}

// LLMEngine implements Engine on top of a Completer, enforcing a per-call
// timeout and validating the backend's JSON output before trusting it.
type LLMEngine struct {
	completer Completer
	timeout   time.Duration
	logger    zerolog.Logger
}

// Config holds engine configuration.
type Config struct {
	Completer Completer
	Timeout   time.Duration
	Logger    zerolog.Logger
}

// NewLLMEngine creates an engine backed by an LLM completer.
func NewLLMEngine(cfg Config) (*LLMEngine, error) {
	if cfg.Completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &LLMEngine{
		completer: cfg.Completer,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
	}, nil
}

// Reason makes one reasoning call and returns its validated output.
func (e *LLMEngine) Reason(ctx context.Context, req Request) (*Output, error) {
	system, user, err := buildPrompt(req)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	started := time.Now()
	raw, err := e.completer.Complete(callCtx, system, user)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			e.logger.Warn().
				Str("kind", string(req.Kind)).
				Dur("elapsed", time.Since(started)).
				Msg("Reasoning call timed out")
			return nil, fmt.Errorf("%w: %s", ErrTimeout, req.Kind)
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		e.logger.Error().Err(err).Str("kind", string(req.Kind)).Msg("Reasoning call failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out, err := parseOutput(req.Kind, raw)
	if err != nil {
		e.logger.Error().
			Err(err).
			Str("kind", string(req.Kind)).
			Str("provider", e.completer.Provider()).
			Msg("Reasoning output rejected")
		return nil, err
	}

	e.logger.Debug().
		Str("kind", string(req.Kind)).
		Dur("elapsed", time.Since(started)).
		Msg("Reasoning call completed")

	return out, nil
}
