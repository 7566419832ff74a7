package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/events"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/sequence"
)

// LogSink writes confirmations to the log. Used when no broker is configured.
type LogSink struct {
	logger logrus.FieldLogger
}

func NewLogSink(logger logrus.FieldLogger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(ctx context.Context, c Confirmation) error {
	s.logger.WithFields(logrus.Fields{
		"order_id":       c.OrderID,
		"order_number":   c.OrderNumber,
		"customer_email": c.CustomerEmail,
		"total_amount":   c.TotalAmount.StringFixed(2),
		"items":          len(c.Items),
	}).Info("order confirmation")
	return nil
}

// ErrInvalidConfirmation marks a confirmation that no retry can deliver.
var ErrInvalidConfirmation = errors.New("invalid confirmation envelope")

// envelopes builds the versioned event that wraps a confirmation.
type envelopes struct {
	seq sequence.Repository
	now func() time.Time
}

func (e envelopes) build(ctx context.Context, c Confirmation) ([]byte, error) {
	env := events.NewEnvelope(
		events.OrderConfirmationRequestedEvent,
		events.OrderConfirmationRequestedVersion,
		events.OrderConfirmationRequestedSchema,
		events.ProducerName,
		events.EnvelopeMetadata{
			CorrelationID: c.CorrelationID,
			CausationID:   c.OrderID,
			PartitionKey:  c.partitionKey(),
		},
		e.now(),
		c,
	)
	if err := env.Validate(events.OrderConfirmationRequestedEvent, events.OrderConfirmationRequestedVersion); err != nil {
		return nil, errors.Wrap(ErrInvalidConfirmation, err.Error())
	}
	if e.seq != nil {
		n, err := e.seq.NextSequence(ctx, env.PartitionKey)
		if err != nil {
			return nil, errors.Wrap(err, "reserve sequence")
		}
		env.Sequence = &n
	}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "marshal confirmation envelope")
	}
	return body, nil
}

// RabbitSink publishes confirmations to the events topic exchange.
type RabbitSink struct {
	mu        sync.Mutex
	ch        events.Channel
	envelopes envelopes
}

func NewRabbitSink(conn *amqp.Connection, seq sequence.Repository) (*RabbitSink, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open channel")
	}
	return newRabbitSink(ch, seq, time.Now)
}

func newRabbitSink(ch events.Channel, seq sequence.Repository, now func() time.Time) (*RabbitSink, error) {
	if err := events.DeclareEventsExchange(ch); err != nil {
		_ = ch.Close()
		return nil, errors.Wrap(err, "declare events exchange")
	}
	return &RabbitSink{ch: ch, envelopes: envelopes{seq: seq, now: now}}, nil
}

func (s *RabbitSink) Send(ctx context.Context, c Confirmation) error {
	body, err := s.envelopes.build(ctx, c)
	if err != nil {
		return err
	}

	// amqp channels are not meant for concurrent publishers.
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.ch.PublishWithContext(
		ctx,
		events.EventsExchange,
		events.OrderConfirmationRequestedRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     c.OrderID,
			CorrelationId: c.CorrelationID,
			Timestamp:     time.Now().UTC(),
			Body:          body,
		},
	)
	return errors.Wrap(err, "publish confirmation")
}

func (s *RabbitSink) Close() error {
	return s.ch.Close()
}

// MessageWriter is the subset of *kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes confirmations to a topic keyed by order id.
type KafkaSink struct {
	writer    MessageWriter
	envelopes envelopes
}

func NewKafkaSink(brokers []string, topic string, seq sequence.Repository) *KafkaSink {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaSink(w, seq, time.Now)
}

func newKafkaSink(w MessageWriter, seq sequence.Repository, now func() time.Time) *KafkaSink {
	return &KafkaSink{writer: w, envelopes: envelopes{seq: seq, now: now}}
}

func (s *KafkaSink) Send(ctx context.Context, c Confirmation) error {
	body, err := s.envelopes.build(ctx, c)
	if err != nil {
		return err
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(c.OrderID),
		Value: body,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "eventName", Value: []byte(events.OrderConfirmationRequestedEvent)},
		},
	})
	return errors.Wrap(err, "write confirmation")
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
