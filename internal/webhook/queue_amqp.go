package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/custodix/custos-oss/pkg/domain"
)

// AMQPQueue publishes routed events to a topic exchange on an AMQP broker
// (RabbitMQ). Downstream business consumers bind their own queues against
// the exchange using the event type as the routing key.
type AMQPQueue struct {
	conn     *amqp.Connection
	exchange string
	logger   *slog.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

// NewAMQPQueue connects to the broker at uri and declares the durable topic
// exchange events are published to.
func NewAMQPQueue(uri, exchange string, logger *slog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("dial amqp broker: %w", err)
	}

	if exchange == "" {
		exchange = "custody.events"
	}

	// One-use channel for the declaration.
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	defer func() { _ = channel.Close() }()

	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	return &AMQPQueue{
		conn:     conn,
		exchange: exchange,
		logger:   logger.With("component", "amqp_queue"),
	}, nil
}

// Enqueue implements Queue. Publish failures surface as queue-unavailable
// errors so the router rolls back its claim and a redelivery retries.
func (q *AMQPQueue) Enqueue(_ context.Context, event domain.Envelope) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	channel, err := q.channel()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}

	publishing := amqp.Publishing{
		MessageId:    event.ID,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}

	if q.conn.IsClosed() {
		return domain.ErrQueueUnavailable
	}

	if err := channel.Publish(q.exchange, event.Type, false, false, publishing); err != nil {
		q.invalidateChannel()
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}

	q.logger.Debug("event published", "event_id", event.ID, "routing_key", event.Type)
	return nil
}

// Close terminates the broker connection gracefully.
func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	if q.ch != nil {
		_ = q.ch.Close()
		q.ch = nil
	}
	q.mu.Unlock()
	return q.conn.Close()
}

func (q *AMQPQueue) channel() (*amqp.Channel, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ch == nil {
		ch, err := q.conn.Channel()
		if err != nil {
			return nil, err
		}
		q.ch = ch
	}
	return q.ch, nil
}

func (q *AMQPQueue) invalidateChannel() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch != nil {
		_ = q.ch.Close()
		q.ch = nil
	}
}
