package checkout

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/inventory"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrAddressNotFound = errors.New("address not found")
	ErrInvalidRequest  = errors.New("invalid checkout request")
	// ErrDuplicateRequest means another checkout bound the same idempotency
	// key first.
	ErrDuplicateRequest = errors.New("idempotency key already bound")
)

// InsufficientStockError names the first cart line that cannot be filled and
// lists every line that failed.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
	Lines       []inventory.DepletedLine
}

func newInsufficientStockError(lines []inventory.DepletedLine) *InsufficientStockError {
	first := lines[0]
	return &InsufficientStockError{
		ProductID:   first.ProductID,
		ProductName: first.ProductName,
		Requested:   first.Requested,
		Available:   first.Available,
		Lines:       lines,
	}
}

func (e *InsufficientStockError) Error() string {
	msg := fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductName, e.Requested, e.Available)
	if len(e.Lines) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(e.Lines)-1)
	}
	return msg
}
