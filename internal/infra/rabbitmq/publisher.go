package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"quiz-ledger/internal/domain"
)

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher forwards ledger notifications to a topic exchange so off-system
// indexers can follow the ledger. The routing key is the event type.
type Publisher struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
	log      zerolog.Logger
}

func NewPublisher(amqpURL, exchange string, log zerolog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.Info().Str("exchange", exchange).Msg("event publisher initialized")
	return &Publisher{conn: conn, channel: ch, exchange: exchange, log: log}, nil
}

func (p *Publisher) Publish(ctx context.Context, ev domain.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,      // exchange
		string(ev.Type), // routing key
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    ev.Timestamp,
			Type:         string(ev.Type),
			Body:         body,
			Headers: amqp.Table{
				"quiz_id": ev.QuizID,
				"player":  ev.Player.Hex(),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Type, err)
	}
	p.log.Debug().Str("type", string(ev.Type)).Str("quizId", ev.QuizID).Msg("published event")
	return nil
}

func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
