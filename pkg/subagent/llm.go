package subagent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harun/orchid/pkg/reasoning"
	"github.com/rs/zerolog"
)

// LLMAgent is a reference agent backed by an LLM completer. The knowledge-QA
// and product-recommendation agents are instances of this with different
// system prompts.
type LLMAgent struct {
	name         string
	systemPrompt string
	completer    reasoning.Completer
	logger       zerolog.Logger
}

// LLMAgentConfig holds LLM agent configuration.
type LLMAgentConfig struct {
	Name         string
	SystemPrompt string
	Completer    reasoning.Completer
	Logger       zerolog.Logger
}

// NewLLMAgent creates an LLM-backed agent.
func NewLLMAgent(cfg LLMAgentConfig) (*LLMAgent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if cfg.Completer == nil {
		return nil, fmt.Errorf("agent %s: completer is required", cfg.Name)
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = "You are a helpful assistant. Answer the query concisely."
	}

	return &LLMAgent{
		name:         cfg.Name,
		systemPrompt: cfg.SystemPrompt,
		completer:    cfg.Completer,
		logger:       cfg.Logger,
	}, nil
}

// Execute runs the query through the backing model.
func (a *LLMAgent) Execute(ctx context.Context, query string, tc TurnContext) (*Result, error) {
	var b strings.Builder
	if len(tc.History) > 0 {
		fmt.Fprintf(&b, "Conversation so far:\n%s\n\n", strings.Join(tc.History, "\n"))
	}
	fmt.Fprintf(&b, "Query:\n%s\n", query)

	content, err := a.completer.Complete(ctx, a.systemPrompt, b.String())
	if err != nil {
		reason := ReasonUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		a.logger.Warn().Err(err).Str("agent", a.name).Msg("Agent execution failed")
		return nil, &ExecutionError{Agent: a.name, Reason: reason, Err: err}
	}

	return &Result{
		Content:  content,
		Metadata: map[string]interface{}{"provider": a.completer.Provider()},
	}, nil
}

// StaticAgent replies with a fixed message. Used as the deterministic
// fallback target when clarification is exhausted.
type StaticAgent struct {
	name  string
	reply string
}

// NewStaticAgent creates an agent that always returns the given reply.
func NewStaticAgent(name, reply string) *StaticAgent {
	return &StaticAgent{name: name, reply: reply}
}

// Execute returns the canned reply.
func (a *StaticAgent) Execute(ctx context.Context, query string, tc TurnContext) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, &ExecutionError{Agent: a.name, Reason: ReasonTimeout, Err: ctx.Err()}
	default:
	}

	return &Result{Content: a.reply}, nil
}
