package events

import (
	"context"
	"errors"
	"sync"

	"quiz-ledger/internal/domain"
)

// Hub fans ledger notifications out to in-process subscribers, keyed by
// quiz id. An empty key subscribes to every quiz.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan domain.Event]struct{})}
}

// Subscribe returns a channel of events for quizID.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(quizID string) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[quizID]
	if !ok {
		subs = make(map[chan domain.Event]struct{})
		h.subscribers[quizID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs, ok := h.subscribers[quizID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, quizID)
		}
	}
	return ch, cancel
}

// Publish never blocks: a subscriber that is behind loses its oldest
// buffered event.
func (h *Hub) Publish(_ context.Context, ev domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliverLocked(h.subscribers[ev.QuizID], ev)
	if ev.QuizID != "" {
		h.deliverLocked(h.subscribers[""], ev)
	}
	return nil
}

func (h *Hub) deliverLocked(subs map[chan domain.Event]struct{}, ev domain.Event) {
	for ch := range subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Subscribers reports how many channels are listening on quizID.
func (h *Hub) Subscribers(quizID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[quizID])
}

// Publisher is anything that can take a ledger notification.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Fanout delivers to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
