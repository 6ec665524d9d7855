package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/busara/internal/agents"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{
		SQLitePath: filepath.Join(t.TempDir(), "history.db"),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGetOrCreate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	convID := uuid.New()

	got, err := store.GetOrCreate(ctx, "alice", convID)
	if err != nil {
		t.Fatalf("GetOrCreate error: %v", err)
	}
	if got != convID {
		t.Errorf("expected %s, got %s", convID, got)
	}

	// Second call returns the same conversation.
	again, err := store.GetOrCreate(ctx, "alice", convID)
	if err != nil {
		t.Fatalf("second GetOrCreate error: %v", err)
	}
	if again != convID {
		t.Errorf("expected %s, got %s", convID, again)
	}
}

func TestGetOrCreate_WrongUser(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	convID := uuid.New()

	if _, err := store.GetOrCreate(ctx, "alice", convID); err != nil {
		t.Fatalf("GetOrCreate error: %v", err)
	}
	if _, err := store.GetOrCreate(ctx, "mallory", convID); !errors.Is(err, ErrWrongUser) {
		t.Fatalf("expected ErrWrongUser, got %v", err)
	}
}

func TestAppendAndHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	convID := uuid.New()
	if _, err := store.GetOrCreate(ctx, "alice", convID); err != nil {
		t.Fatalf("GetOrCreate error: %v", err)
	}

	if err := store.Append(ctx, convID, []Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there", AgentType: agents.TypeGeneral, Model: "m1"},
	}); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if err := store.Append(ctx, convID, []Message{
		{Role: "user", Content: "and now?"},
	}); err != nil {
		t.Fatalf("second Append error: %v", err)
	}

	msgs, err := store.History(ctx, convID, 0)
	if err != nil {
		t.Fatalf("History error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	// Oldest-first, sequence preserved across separate appends.
	if msgs[0].Content != "hello" || msgs[2].Content != "and now?" {
		t.Errorf("unexpected ordering: %+v", msgs)
	}
	if msgs[1].AgentType != agents.TypeGeneral || msgs[1].Model != "m1" {
		t.Errorf("agent attribution lost: %+v", msgs[1])
	}

	// Limit returns the most recent messages, still oldest-first.
	tail, err := store.History(ctx, convID, 2)
	if err != nil {
		t.Fatalf("limited History error: %v", err)
	}
	if len(tail) != 2 || tail[0].Content != "hi there" || tail[1].Content != "and now?" {
		t.Errorf("unexpected tail: %+v", tail)
	}
}

func TestListAndTitle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := uuid.New()
	second := uuid.New()
	if _, err := store.GetOrCreate(ctx, "alice", first); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetOrCreate(ctx, "alice", second); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetOrCreate(ctx, "bob", uuid.New()); err != nil {
		t.Fatal(err)
	}

	if err := store.SetTitle(ctx, first, "travel plans"); err != nil {
		t.Fatalf("SetTitle error: %v", err)
	}

	convs, err := store.List(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations for alice, got %d", len(convs))
	}

	conv, err := store.Get(ctx, first)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if conv.Title != "travel plans" {
		t.Errorf("unexpected title %q", conv.Title)
	}

	if _, err := store.Get(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	stale := uuid.New()
	fresh := uuid.New()
	if _, err := store.GetOrCreate(ctx, "alice", stale); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(ctx, stale, []Message{{Role: "user", Content: "old"}}); err != nil {
		t.Fatal(err)
	}
	// Backdate the stale conversation.
	if err := store.db.Model(&ConversationModel{}).
		Where("id = ?", stale).
		Update("updated_at", time.Now().UTC().Add(-48*time.Hour)).Error; err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetOrCreate(ctx, "alice", fresh); err != nil {
		t.Fatal(err)
	}

	removed, err := store.DeleteOlderThan(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan error: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed conversation, got %d", removed)
	}

	if _, err := store.Get(ctx, stale); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale conversation should be gone, got %v", err)
	}
	if _, err := store.Get(ctx, fresh); err != nil {
		t.Errorf("fresh conversation should survive: %v", err)
	}
	// Messages of the stale conversation are gone too.
	msgs, err := store.History(ctx, stale, 0)
	if err != nil {
		t.Fatalf("History error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages for deleted conversation, got %d", len(msgs))
	}
}

func TestNewSweeper_InvalidSchedule(t *testing.T) {
	store := openTestStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := NewSweeper(store, 24*time.Hour, "not a schedule", logger); err == nil {
		t.Fatal("expected schedule parse error")
	}
	// Zero retention skips schedule parsing entirely.
	if _, err := NewSweeper(store, 0, "not a schedule", logger); err != nil {
		t.Fatalf("zero retention should not parse the schedule: %v", err)
	}
}
