package order

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrInvalidTransition = errors.New("invalid status transition")

type Service struct {
	repo   Repository
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewService builds the order service. A nil now uses time.Now.
func NewService(repo Repository, logger logrus.FieldLogger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, logger: logger, now: now}
}

func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.repo.GetByID(ctx, orderID)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) Tracking(ctx context.Context, orderID string) (Tracking, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return Tracking{}, err
	}
	return BuildTracking(o, s.now()), nil
}

// UpdateStatus is the administrative setter. Any valid status is accepted;
// moves outside the transition table are logged as overrides.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status Status) (*Order, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	current, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"from":     current.Status.String(),
		"to":       status.String(),
	})
	if current.Status != status && !CanTransition(current.Status, status) {
		log.Warn("order status override outside transition table")
	}

	if err := s.repo.UpdateStatus(ctx, orderID, status, s.now().UTC()); err != nil {
		return nil, err
	}
	log.Info("order status updated")

	return s.repo.GetByID(ctx, orderID)
}

// Cancel moves a pending or paid order to cancelled. Stock is not returned.
func (s *Service) Cancel(ctx context.Context, orderID string) (*Order, error) {
	return s.Transition(ctx, orderID, StatusCancelled)
}

// Transition applies a policy transition. It fails with ErrInvalidTransition
// when the table forbids the move or the order changed concurrently.
func (s *Service) Transition(ctx context.Context, orderID string, to Status) (*Order, error) {
	current, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(current.Status, to) {
		return nil, errors.Wrapf(ErrInvalidTransition, "%s -> %s", current.Status, to)
	}

	ok, err := s.repo.CompareAndSetStatus(ctx, orderID, []Status{current.Status}, to, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(ErrInvalidTransition, "order %s changed concurrently", orderID)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"from":     current.Status.String(),
		"to":       to.String(),
	}).Info("order status transitioned")

	return s.repo.GetByID(ctx, orderID)
}
