package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"quiz-ledger/internal/domain"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	err    error
	closed bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestPublishRoutesByEventType(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{channel: ch, exchange: "quiz.ledger", log: zerolog.Nop()}

	player := domain.MustParseAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	ev := domain.Event{
		Type:      domain.EventQuizCompleted,
		QuizID:    "q1",
		Player:    player,
		Score:     3,
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(ch.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(ch.sent))
	}
	got := ch.sent[0]
	if got.exchange != "quiz.ledger" || got.key != "QuizCompleted" {
		t.Fatalf("unexpected routing %s/%s", got.exchange, got.key)
	}
	if got.msg.Headers["player"] != player.Hex() || got.msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publishing %+v", got.msg)
	}
	var decoded domain.Event
	if err := json.Unmarshal(got.msg.Body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.Player != player || decoded.Score != 3 {
		t.Fatalf("unexpected body %+v", decoded)
	}

	if err := p.Close(); err != nil || !ch.closed {
		t.Fatalf("expected channel closed, err=%v", err)
	}
}

func TestPublishWrapsBrokerError(t *testing.T) {
	boom := errors.New("channel closed")
	p := &Publisher{channel: &fakeChannel{err: boom}, exchange: "x", log: zerolog.Nop()}
	if err := p.Publish(context.Background(), domain.Event{Type: domain.EventRewardClaimed}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}
