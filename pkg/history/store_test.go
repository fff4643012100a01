package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{
		Path:   filepath.Join(t.TempDir(), "history.db"),
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendTurn(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, "s1", "direct"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	t.Run("sequences increase per session", func(t *testing.T) {
		first, err := store.AppendTurn(ctx, "s1", "hello", "hi there", "completed", nil)
		if err != nil {
			t.Fatalf("AppendTurn failed: %v", err)
		}
		second, err := store.AppendTurn(ctx, "s1", "and?", "that's all", "completed", nil)
		if err != nil {
			t.Fatalf("AppendTurn failed: %v", err)
		}
		if first.Seq != 1 || second.Seq != 2 {
			t.Errorf("Expected seqs 1,2 got %d,%d", first.Seq, second.Seq)
		}
	})

	t.Run("observations stored with the turn", func(t *testing.T) {
		observations := []ObservationRecord{
			{ID: "o1", Seq: 1, Agent: "search", Query: "find", Content: "found", CreatedAt: time.Now()},
			{ID: "o2", Seq: 2, Agent: "search", Query: "retry", Failed: true, Reason: "timeout", CreatedAt: time.Now()},
		}

		turn, err := store.AppendTurn(ctx, "s1", "look it up", "done", "completed", observations)
		if err != nil {
			t.Fatalf("AppendTurn failed: %v", err)
		}

		stored, err := store.Observations(ctx, turn.ID)
		if err != nil {
			t.Fatalf("Observations failed: %v", err)
		}
		if len(stored) != 2 {
			t.Fatalf("Expected 2 observations, got %d", len(stored))
		}
		if stored[0].Content != "found" {
			t.Errorf("Unexpected content: %q", stored[0].Content)
		}
		if !stored[1].Failed || stored[1].Reason != "timeout" {
			t.Errorf("Failure not preserved: %+v", stored[1])
		}
	})
}

func TestTurns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, "s1", "direct"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	for _, u := range []string{"one", "two", "three"} {
		if _, err := store.AppendTurn(ctx, "s1", u, "ack "+u, "completed", nil); err != nil {
			t.Fatalf("AppendTurn failed: %v", err)
		}
	}

	t.Run("all in order", func(t *testing.T) {
		turns, err := store.Turns(ctx, "s1", 0)
		if err != nil {
			t.Fatalf("Turns failed: %v", err)
		}
		if len(turns) != 3 {
			t.Fatalf("Expected 3 turns, got %d", len(turns))
		}
		if turns[0].Utterance != "one" || turns[2].Utterance != "three" {
			t.Errorf("Turns out of order: %+v", turns)
		}
	})

	t.Run("limit keeps the newest", func(t *testing.T) {
		turns, err := store.Turns(ctx, "s1", 2)
		if err != nil {
			t.Fatalf("Turns failed: %v", err)
		}
		if len(turns) != 2 {
			t.Fatalf("Expected 2 turns, got %d", len(turns))
		}
		if turns[0].Utterance != "two" || turns[1].Utterance != "three" {
			t.Errorf("Expected newest two in order, got %+v", turns)
		}
	})
}

func TestArchiveAndPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, "old", "direct"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := store.CreateSession(ctx, "live", "direct"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if _, err := store.AppendTurn(ctx, "old", "hi", "bye", "completed", []ObservationRecord{
		{ID: "o1", Seq: 1, Agent: "a", Query: "q", CreatedAt: time.Now()},
	}); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	if err := store.ArchiveSession(ctx, "old"); err != nil {
		t.Fatalf("ArchiveSession failed: %v", err)
	}

	t.Run("double archive rejected", func(t *testing.T) {
		if err := store.ArchiveSession(ctx, "old"); err == nil {
			t.Error("Expected error archiving twice")
		}
	})

	t.Run("prune removes only expired archives", func(t *testing.T) {
		// Zero retention expires everything archived before now.
		n, err := store.PruneArchived(ctx, -time.Second)
		if err != nil {
			t.Fatalf("PruneArchived failed: %v", err)
		}
		if n != 1 {
			t.Errorf("Expected 1 pruned session, got %d", n)
		}

		turns, err := store.Turns(ctx, "old", 0)
		if err != nil {
			t.Fatalf("Turns failed: %v", err)
		}
		if len(turns) != 0 {
			t.Errorf("Expected pruned turns, got %d", len(turns))
		}

		// The unarchived session is untouched.
		if err := store.ArchiveSession(ctx, "live"); err != nil {
			t.Errorf("Live session disappeared: %v", err)
		}
	})
}
