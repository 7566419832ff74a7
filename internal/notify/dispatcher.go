package notify

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

// Delivery outcomes reported to the Observer.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

// Sink delivers one confirmation. Implementations must honour ctx.
type Sink interface {
	Send(ctx context.Context, c Confirmation) error
}

type Observer interface {
	ObserveNotification(outcome string)
}

type noopObserver struct{}

func (noopObserver) ObserveNotification(string) {}

type Options struct {
	Workers        int
	QueueSize      int
	MaxRetries     uint64
	Timeout        time.Duration
	InitialBackoff time.Duration
	// BreakerFailures is the consecutive failure count that opens the breaker.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.QueueSize < 1 {
		o.QueueSize = 64
	}
	if o.Timeout <= 0 {
		o.Timeout = 3 * time.Second
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 200 * time.Millisecond
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = 5
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 30 * time.Second
	}
	return o
}

// Dispatcher sends confirmations in the background. Enqueue never blocks and
// delivery failures never reach the caller.
type Dispatcher struct {
	sink     Sink
	opts     Options
	queue    chan Confirmation
	breaker  *gobreaker.CircuitBreaker[struct{}]
	logger   logrus.FieldLogger
	observer Observer

	mu      sync.RWMutex
	stopped bool
}

func NewDispatcher(sink Sink, opts Options, logger logrus.FieldLogger, observer Observer) *Dispatcher {
	opts = opts.withDefaults()
	if observer == nil {
		observer = noopObserver{}
	}

	d := &Dispatcher{
		sink:     sink,
		opts:     opts,
		queue:    make(chan Confirmation, opts.QueueSize),
		logger:   logger,
		observer: observer,
	}
	d.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "notification-sink",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("notification breaker state changed")
		},
	})
	return d
}

// Enqueue schedules c for delivery. It reports false when the queue is full
// or the dispatcher has stopped; the confirmation is then dropped.
func (d *Dispatcher) Enqueue(c Confirmation) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	log := d.logger.WithFields(logrus.Fields{"order_id": c.OrderID, "order_number": c.OrderNumber})
	if d.stopped {
		log.Warn("notification dropped: dispatcher stopped")
		d.observer.ObserveNotification(OutcomeDropped)
		return false
	}

	select {
	case d.queue <- c:
		return true
	default:
		log.Warn("notification dropped: queue full")
		d.observer.ObserveNotification(OutcomeDropped)
		return false
	}
}

// Run delivers queued confirmations until ctx is done, then drains what is
// left in the queue and returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case c := <-d.queue:
					d.deliver(ctx, c)
				}
			}
		}()
	}
	wg.Wait()

	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	for {
		select {
		case c := <-d.queue:
			d.deliver(ctx, c)
		default:
			return nil
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, c Confirmation) {
	// In-flight deliveries finish even when shutdown starts.
	ctx = context.WithoutCancel(ctx)
	log := d.logger.WithFields(logrus.Fields{"order_id": c.OrderID, "order_number": c.OrderNumber})

	attempt := 0
	op := func() error {
		attempt++
		_, err := d.breaker.Execute(func() (struct{}, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
			defer cancel()
			return struct{}{}, d.sink.Send(attemptCtx, c)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) ||
			errors.Is(err, ErrInvalidConfirmation) {
			return backoff.Permanent(err)
		}
		if err != nil {
			log.WithError(err).WithField("attempt", attempt).Debug("notification attempt failed")
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.opts.InitialBackoff
	policy.MaxElapsedTime = 0

	if err := backoff.Retry(op, backoff.WithMaxRetries(policy, d.opts.MaxRetries)); err != nil {
		log.WithError(err).WithField("attempts", attempt).Error("order confirmation not delivered")
		d.observer.ObserveNotification(OutcomeFailed)
		return
	}
	log.Debug("order confirmation delivered")
	d.observer.ObserveNotification(OutcomeSent)
}
