package events

import (
	"context"
	"errors"
	"testing"

	"quiz-ledger/internal/domain"
)

func TestHubDeliversByQuiz(t *testing.T) {
	hub := NewHub()
	q1, cancel1 := hub.Subscribe("q1")
	defer cancel1()
	all, cancelAll := hub.Subscribe("")
	defer cancelAll()

	_ = hub.Publish(context.Background(), domain.Event{Type: domain.EventQuizCompleted, QuizID: "q1", Score: 3})
	_ = hub.Publish(context.Background(), domain.Event{Type: domain.EventQuizCompleted, QuizID: "q2", Score: 1})

	if ev := <-q1; ev.QuizID != "q1" || ev.Score != 3 {
		t.Fatalf("unexpected event %+v", ev)
	}
	select {
	case ev := <-q1:
		t.Fatalf("q1 subscriber got foreign event %+v", ev)
	default:
	}

	first, second := <-all, <-all
	if first.QuizID != "q1" || second.QuizID != "q2" {
		t.Fatalf("wildcard subscriber saw %s then %s", first.QuizID, second.QuizID)
	}
}

func TestHubDropsOldestForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("q1")
	defer cancel()

	for i := uint64(0); i < 20; i++ {
		_ = hub.Publish(context.Background(), domain.Event{QuizID: "q1", Score: i})
	}
	var last domain.Event
	for len(ch) > 0 {
		last = <-ch
	}
	if last.Score != 19 {
		t.Fatalf("expected newest event to survive, got %d", last.Score)
	}
}

func TestHubCancelClosesAndCleansUp(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("q1")
	if hub.Subscribers("q1") != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if hub.Subscribers("q1") != 0 {
		t.Fatalf("expected subscriber removed")
	}
}

type failingPublisher struct{ err error }

func (p failingPublisher) Publish(context.Context, domain.Event) error { return p.err }

func TestFanoutJoinsErrors(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("q1")
	defer cancel()

	boom := errors.New("broker down")
	err := Fanout{hub, nil, failingPublisher{boom}}.Publish(context.Background(), domain.Event{QuizID: "q1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ch) != 1 {
		t.Fatalf("hub should still receive the event")
	}
}
