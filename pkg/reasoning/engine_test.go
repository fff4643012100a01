package reasoning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// stubCompleter returns a fixed response or error.
type stubCompleter struct {
	response string
	err      error
	block    bool
}

func (s *stubCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubCompleter) Provider() string { return "stub" }

func newTestEngine(t *testing.T, completer Completer, timeout time.Duration) *LLMEngine {
	t.Helper()
	e, err := NewLLMEngine(Config{Completer: completer, Timeout: timeout, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewLLMEngine failed: %v", err)
	}
	return e
}

func TestLLMEngine(t *testing.T) {
	t.Run("requires completer", func(t *testing.T) {
		if _, err := NewLLMEngine(Config{}); err == nil {
			t.Error("Expected error without completer")
		}
	})

	t.Run("returns validated output", func(t *testing.T) {
		completer := &stubCompleter{response: `{"label": "knowledge_qa", "confidence": 0.9}`}
		e := newTestEngine(t, completer, time.Second)

		out, err := e.Reason(context.Background(), Request{
			Kind:      PromptClassifyIntent,
			Utterance: "what is Go?",
			Labels:    []string{"knowledge_qa"},
		})
		if err != nil {
			t.Fatalf("Reason failed: %v", err)
		}
		if out.Intent == nil || out.Intent.Label != "knowledge_qa" {
			t.Errorf("Unexpected output: %+v", out)
		}
	})

	t.Run("timeout maps to ErrTimeout", func(t *testing.T) {
		e := newTestEngine(t, &stubCompleter{block: true}, 20*time.Millisecond)

		_, err := e.Reason(context.Background(), Request{
			Kind:      PromptClassifyIntent,
			Utterance: "anything",
			Labels:    []string{"a"},
		})
		if !errors.Is(err, ErrTimeout) {
			t.Errorf("Expected ErrTimeout, got %v", err)
		}
	})

	t.Run("backend failure maps to ErrUnavailable", func(t *testing.T) {
		e := newTestEngine(t, &stubCompleter{err: errors.New("dial tcp: refused")}, time.Second)

		_, err := e.Reason(context.Background(), Request{
			Kind:      PromptClassifyIntent,
			Utterance: "anything",
			Labels:    []string{"a"},
		})
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("Expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("cancellation passes through unmapped", func(t *testing.T) {
		e := newTestEngine(t, &stubCompleter{block: true}, time.Minute)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		_, err := e.Reason(ctx, Request{
			Kind:      PromptClassifyIntent,
			Utterance: "anything",
			Labels:    []string{"a"},
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})

	t.Run("malformed output surfaces ErrMalformedOutput", func(t *testing.T) {
		e := newTestEngine(t, &stubCompleter{response: "sure, happy to help!"}, time.Second)

		_, err := e.Reason(context.Background(), Request{
			Kind:      PromptClassifyIntent,
			Utterance: "anything",
			Labels:    []string{"a"},
		})
		if !errors.Is(err, ErrMalformedOutput) {
			t.Errorf("Expected ErrMalformedOutput, got %v", err)
		}
	})
}
