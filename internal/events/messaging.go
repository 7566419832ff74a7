package events

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	EventsExchange = "ecommerce.events"
	ProducerName   = "order-service-go"

	OrderConfirmationRequestedEvent      = "OrderConfirmationRequested"
	OrderConfirmationRequestedVersion    = 1
	OrderConfirmationRequestedRoutingKey = "order.confirmation.requested.v1"
	OrderConfirmationRequestedSchema     = "ecommerce.order.confirmation.requested.v1"
)

// Channel is the subset of *amqp.Channel used for declaring and publishing.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

func DeclareEventsExchange(ch Channel) error {
	return ch.ExchangeDeclare(
		EventsExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}

// DialRabbit connects to the broker, retrying while it is still starting up.
func DialRabbit(ctx context.Context, url string, logger logrus.FieldLogger) (*amqp.Connection, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second

	var conn *amqp.Connection
	err := backoff.RetryNotify(func() error {
		var err error
		conn, err = amqp.Dial(url)
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		logger.WithError(err).WithField("retry_in", wait.String()).Warn("rabbitmq not reachable")
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect to rabbitmq")
	}
	return conn, nil
}
