package memory

import (
	"context"
	"errors"
	"testing"

	"quiz-ledger/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	if err := store.Save(ctx, domain.Session{ID: "s1", QuizID: "quiz-1", Answers: map[string]bool{}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("expected session present: %v", err)
	}

	// mutating the copy must not leak into the store
	got.Answers["q1"] = true
	again, _ := store.Get(ctx, "s1")
	if len(again.Answers) != 0 {
		t.Fatalf("expected stored session untouched, got %+v", again.Answers)
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session removed, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store")
	}
}
