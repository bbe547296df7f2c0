package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/config"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/logging"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/metrics"
	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
)

const (
	EventsQueueName = "fetscr_events"

	RoutingUsageRecorded = "usage.recorded"
	RoutingPlanActivated = "plan.activated"

	eventTypeHeader  = "x-event-type"
	retryCountHeader = "x-retry-count"
)

// ErrPermanent marks a handler failure that retrying cannot fix
var ErrPermanent = errors.New("permanent failure")

// Handler processes one consumed event
type Handler func(ctx context.Context, eventType string, body []byte) error

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Queue publishes and consumes domain events over RabbitMQ
type Queue struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	pub      publisher
	exchange string
	logger   *logging.Logger
}

// New creates a new queue client
func New(cfg config.QueueConfig, logger *logging.Logger) (*Queue, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Declare exchange
	err = channel.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Queue{
		conn:     conn,
		channel:  channel,
		pub:      channel,
		exchange: cfg.Exchange,
		logger:   logger,
	}, nil
}

// Close closes the queue connection
func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// PublishUsage announces a committed aggregation run
func (q *Queue) PublishUsage(ctx context.Context, event models.UsageEvent) error {
	return q.publish(ctx, RoutingUsageRecorded, event)
}

// PublishPlanActivated announces a plan change
func (q *Queue) PublishPlanActivated(ctx context.Context, event models.PlanActivatedEvent) error {
	return q.publish(ctx, RoutingPlanActivated, event)
}

func (q *Queue) publish(ctx context.Context, routingKey string, event interface{}) (err error) {
	defer func() { metrics.RecordEventPublished(routingKey, err) }()

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", routingKey, err)
	}

	err = q.pub.PublishWithContext(ctx,
		q.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
			Headers:      amqp.Table{eventTypeHeader: routingKey},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", routingKey, err)
	}

	return nil
}

// Consume starts delivering every event on the exchange to handler.
// Failed events are retried with backoff and dead-lettered after MaxRetries.
func (q *Queue) Consume(ctx context.Context, handler Handler) error {
	if err := q.SetupDeadLetterQueue(); err != nil {
		return err
	}

	_, err := q.channel.QueueDeclare(
		EventsQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	// Bind queue to every event type
	if err := q.channel.QueueBind(EventsQueueName, "#", q.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	// Set QoS to limit concurrent processing
	err = q.channel.Qos(
		10,    // prefetch count
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := q.channel.Consume(
		EventsQueueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				q.handleDelivery(ctx, msg, handler)
			}
		}
	}()

	return nil
}

func (q *Queue) handleDelivery(ctx context.Context, msg amqp.Delivery, handler Handler) {
	eventType := eventTypeOf(msg)
	log := q.logger.WithField("event", eventType)

	err := handler(ctx, eventType, msg.Body)
	if err == nil {
		msg.Ack(false)
		metrics.RecordEventConsumed(eventType, "processed")
		return
	}

	retries := retryCountOf(msg)
	if errors.Is(err, ErrPermanent) || retries >= MaxRetries {
		if dlqErr := q.PublishToDeadLetterQueue(ctx, eventType, msg.Body, err.Error()); dlqErr != nil {
			log.WithError(dlqErr).Error("Failed to dead-letter event")
			msg.Nack(false, true)
			return
		}
		log.WithError(err).Warn("Event moved to dead letter queue")
		msg.Ack(false)
		metrics.RecordEventConsumed(eventType, "dead_lettered")
		return
	}

	if retryErr := q.PublishToRetryQueue(ctx, eventType, msg.Body, retries); retryErr != nil {
		log.WithError(retryErr).Error("Failed to schedule event retry")
		msg.Nack(false, true)
		return
	}
	log.WithError(err).WithField("retry", retries+1).Warn("Event scheduled for retry")
	msg.Ack(false)
	metrics.RecordEventConsumed(eventType, "retried")
}

func eventTypeOf(msg amqp.Delivery) string {
	if v, ok := msg.Headers[eventTypeHeader].(string); ok && v != "" {
		return v
	}
	return msg.RoutingKey
}

func retryCountOf(msg amqp.Delivery) int {
	switch v := msg.Headers[retryCountHeader].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	}
	return 0
}
