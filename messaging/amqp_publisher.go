package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nephrolytics/practice-api/logger"
)

const (
	tracerName            = "github.com/nephrolytics/practice-api/messaging"
	exchangeKind          = "topic"
	defaultConfirmTimeout = 5 * time.Second
)

var (
	errClosed         = errors.New("publisher closed")
	errNotAcked       = errors.New("broker did not acknowledge message")
	errConfirmTimeout = errors.New("publish confirmation timeout")
	errChannelClosed  = errors.New("channel closed before confirmation")
)

// AMQPPublisher publishes events to a durable topic exchange with publisher
// confirms. The routing key is the event type. The connection is dialed on
// first use and re-dialed after any failure.
type AMQPPublisher struct {
	url            string
	exchange       string
	log            logger.Logger
	confirmTimeout time.Duration

	mu       sync.Mutex
	conn     amqpConnection
	channel  amqpChannel
	confirms chan amqp.Confirmation
	closed   bool
}

var _ Publisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher creates a publisher for exchange on brokerURL.
func NewAMQPPublisher(brokerURL, exchange string, log logger.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		url:            brokerURL,
		exchange:       exchange,
		log:            log,
		confirmTimeout: defaultConfirmTimeout,
	}
}

// Connect dials the broker eagerly so startup logs report connectivity.
func (p *AMQPPublisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _, err := p.ensureChannel()
	return err
}

// Publish implements Publisher.
func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, p.exchange+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", p.exchange),
			attribute.String("messaging.rabbitmq.routing_key", event.Type),
			attribute.String("messaging.message.id", event.ID.String()),
		),
	)
	defer span.End()

	if err := p.publish(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (p *AMQPPublisher) publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	headers := amqp.Table{"account_id": event.AccountID}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(headers))

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID.String(),
		Timestamp:    event.OccurredAt,
		Type:         event.Type,
		Headers:      headers,
		Body:         body,
	}

	// Confirmations arrive in publish order, so publishes are serialized.
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, confirms, err := p.ensureChannel()
	if err != nil {
		return err
	}

	if err := ch.PublishWithContext(ctx, p.exchange, event.Type, false, false, msg); err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}

	timer := time.NewTimer(p.confirmTimeout)
	defer timer.Stop()

	select {
	case confirm, ok := <-confirms:
		if !ok {
			p.reset()
			return errChannelClosed
		}
		if !confirm.Ack {
			return errNotAcked
		}
		p.log.Debug().
			Str("event_type", event.Type).
			Str("message_id", msg.MessageId).
			Msg("Event published")
		return nil
	case <-timer.C:
		p.reset()
		return errConfirmTimeout
	case <-ctx.Done():
		p.reset()
		return ctx.Err()
	}
}

// ensureChannel must be called with p.mu held.
func (p *AMQPPublisher) ensureChannel() (amqpChannel, chan amqp.Confirmation, error) {
	if p.closed {
		return nil, nil, errClosed
	}
	if p.channel != nil {
		return p.channel, p.confirms, nil
	}

	conn, err := amqpDialFunc(p.url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", redactAMQPURL(p.url), err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("enable confirms: %w", err)
	}

	if err := ch.ExchangeDeclare(p.exchange, exchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}

	p.conn = conn
	p.channel = ch
	p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	p.log.Info().
		Str("broker", redactAMQPURL(p.url)).
		Str("exchange", p.exchange).
		Msg("Connected to AMQP broker")

	return p.channel, p.confirms, nil
}

// reset must be called with p.mu held.
func (p *AMQPPublisher) reset() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.channel = nil
	p.conn = nil
	p.confirms = nil
}

// Close implements Publisher.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	p.channel = nil
	p.conn = nil
	p.confirms = nil

	p.log.Info().Msg("AMQP publisher closed")
	return errors.Join(errs...)
}
