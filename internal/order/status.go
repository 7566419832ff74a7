package order

import (
	"strings"

	"github.com/pkg/errors"
)

// Status is the order lifecycle state. The numeric order matches the
// lifecycle order and is persisted as its lowercase name.
type Status int

const (
	StatusPending Status = iota
	StatusPaid
	StatusProcessing
	StatusShipped
	StatusDelivered
	StatusCancelled
	StatusRefunded
)

var ErrInvalidStatus = errors.New("invalid order status")

var statusNames = [...]string{
	StatusPending:    "pending",
	StatusPaid:       "paid",
	StatusProcessing: "processing",
	StatusShipped:    "shipped",
	StatusDelivered:  "delivered",
	StatusCancelled:  "cancelled",
	StatusRefunded:   "refunded",
}

// transitions lists the moves customer-facing flows may make.
var transitions = map[Status][]Status{
	StatusPending:    {StatusPaid, StatusCancelled},
	StatusPaid:       {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped},
	StatusShipped:    {StatusDelivered},
	StatusCancelled:  {StatusRefunded},
}

func (s Status) String() string {
	if s.Valid() {
		return statusNames[s]
	}
	return "unknown"
}

func (s Status) Valid() bool {
	return s >= StatusPending && s <= StatusRefunded
}

// Terminal reports whether the order has left the fulfilment path for good.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusRefunded
}

func ParseStatus(v string) (Status, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for i, name := range statusNames {
		if name == v {
			return Status(i), nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidStatus, "%q", v)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, errors.Wrapf(ErrInvalidStatus, "%d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CanTransition reports whether from -> to is a legal policy transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
