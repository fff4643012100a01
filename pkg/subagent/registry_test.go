package subagent

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type nopAgent struct{}

func (nopAgent) Execute(ctx context.Context, query string, tc TurnContext) (*Result, error) {
	return &Result{Content: "ok"}, nil
}

func register(t *testing.T, r *Registry, name string) {
	t.Helper()
	err := r.Register(Registration{
		Descriptor: Descriptor{Name: name, Description: name + " agent"},
		Agent:      nopAgent{},
	})
	if err != nil {
		t.Fatalf("Register %s failed: %v", name, err)
	}
}

func TestRegistry(t *testing.T) {
	t.Run("register and resolve", func(t *testing.T) {
		r := NewRegistry()
		register(t, r, "search")

		reg, err := r.Resolve("search")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if reg.Descriptor.Name != "search" {
			t.Errorf("Unexpected descriptor: %+v", reg.Descriptor)
		}
	})

	t.Run("resolution is stable", func(t *testing.T) {
		r := NewRegistry()
		register(t, r, "search")

		first, _ := r.Resolve("search")
		second, _ := r.Resolve("search")
		if first.Descriptor != second.Descriptor {
			t.Error("Same label resolved to different descriptors")
		}
	})

	t.Run("unknown label", func(t *testing.T) {
		r := NewRegistry()
		register(t, r, "search")

		_, err := r.Resolve("ghost")
		if !errors.Is(err, ErrUnknownAgent) {
			t.Errorf("Expected ErrUnknownAgent, got %v", err)
		}
	})

	t.Run("duplicate registration", func(t *testing.T) {
		r := NewRegistry()
		register(t, r, "search")

		err := r.Register(Registration{Descriptor: Descriptor{Name: "search"}, Agent: nopAgent{}})
		if err == nil {
			t.Error("Expected error for duplicate registration")
		}
	})

	t.Run("sealed registry rejects registration", func(t *testing.T) {
		r := NewRegistry()
		register(t, r, "search")
		r.Seal()

		err := r.Register(Registration{Descriptor: Descriptor{Name: "late"}, Agent: nopAgent{}})
		if err == nil {
			t.Error("Expected error registering into sealed registry")
		}
	})

	t.Run("missing name or agent", func(t *testing.T) {
		r := NewRegistry()
		if err := r.Register(Registration{Agent: nopAgent{}}); err == nil {
			t.Error("Expected error for missing name")
		}
		if err := r.Register(Registration{Descriptor: Descriptor{Name: "x"}}); err == nil {
			t.Error("Expected error for missing agent")
		}
	})

	t.Run("labels sorted", func(t *testing.T) {
		r := NewRegistry()
		register(t, r, "zeta")
		register(t, r, "alpha")
		register(t, r, "mid")

		want := []string{"alpha", "mid", "zeta"}
		if got := r.Labels(); !reflect.DeepEqual(got, want) {
			t.Errorf("Labels = %v, want %v", got, want)
		}
		if r.Count() != 3 {
			t.Errorf("Count = %d, want 3", r.Count())
		}
	})
}

func TestStaticAgent(t *testing.T) {
	agent := NewStaticAgent("concierge", "let me hand you over")

	t.Run("returns canned reply", func(t *testing.T) {
		result, err := agent.Execute(context.Background(), "anything", TurnContext{})
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if result.Content != "let me hand you over" {
			t.Errorf("Unexpected reply: %q", result.Content)
		}
	})

	t.Run("honors cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := agent.Execute(ctx, "anything", TurnContext{})
		var execErr *ExecutionError
		if !errors.As(err, &execErr) {
			t.Fatalf("Expected ExecutionError, got %v", err)
		}
	})
}

func TestExecutionError(t *testing.T) {
	inner := errors.New("boom")
	err := &ExecutionError{Agent: "search", Reason: ReasonInternal, Err: inner}

	if !errors.Is(err, inner) {
		t.Error("Unwrap should expose the inner error")
	}
	if err.Error() == "" {
		t.Error("Error string is empty")
	}
}
