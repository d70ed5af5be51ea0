package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/noah-isme/oncall-api/internal/models"
)

// AMQPSink publishes transitions onto a durable queue for downstream
// messaging consumers.
type AMQPSink struct {
	channel *amqp.Channel
	queue   string
}

// NewAMQPSink declares the destination queue and returns a sink bound to it.
func NewAMQPSink(conn *amqp.Connection, queue string) (*AMQPSink, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return &AMQPSink{channel: ch, queue: queue}, nil
}

// Deliver implements Sink.
func (s *AMQPSink) Deliver(ctx context.Context, t models.ShiftTransition) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transition: %w", err)
	}

	if err := s.channel.PublishWithContext(
		ctx,
		"",
		s.queue,
		true,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		return fmt.Errorf("publish transition: %w", err)
	}
	return nil
}

// Close releases the channel.
func (s *AMQPSink) Close() error {
	return s.channel.Close()
}
