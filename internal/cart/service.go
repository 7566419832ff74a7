package cart

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/product"
)

// MaxLineQuantity bounds a single cart line.
const MaxLineQuantity = 9999

var ErrInvalidQuantity = errors.New("invalid quantity")

// ProductReader is the catalog lookup used to snapshot name and price.
type ProductReader interface {
	Get(ctx context.Context, productID string) (product.Product, error)
}

type Service struct {
	repo     Repository
	products ProductReader
	logger   logrus.FieldLogger
}

func NewService(repo Repository, products ProductReader, logger logrus.FieldLogger) *Service {
	return &Service{repo: repo, products: products, logger: logger}
}

func (s *Service) GetCart(ctx context.Context, userID string) (*Cart, error) {
	return s.repo.GetOrCreate(ctx, userID)
}

// AddItem puts quantity units of the product in the user's cart, capturing
// the current catalog name and price.
func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int) (*Cart, error) {
	if quantity <= 0 || quantity > MaxLineQuantity {
		return nil, errors.Wrapf(ErrInvalidQuantity, "quantity must be between 1 and %d", MaxLineQuantity)
	}

	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}

	c, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, l := range c.Lines {
		if l.ProductID == p.ID && l.Quantity+quantity > MaxLineQuantity {
			return nil, errors.Wrapf(ErrInvalidQuantity, "line would exceed %d units", MaxLineQuantity)
		}
	}

	line := Line{ProductID: p.ID, ProductName: p.Name, Quantity: quantity, UnitPrice: p.Price}
	if err := s.repo.AddLine(ctx, c.ID, line); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"product_id": productID,
		"quantity":   quantity,
	}).Debug("cart line added")

	return s.repo.GetOrCreate(ctx, userID)
}

// UpdateQuantity sets the line quantity. Zero removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*Cart, error) {
	if quantity < 0 || quantity > MaxLineQuantity {
		return nil, errors.Wrapf(ErrInvalidQuantity, "quantity must be between 0 and %d", MaxLineQuantity)
	}

	c, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	if quantity == 0 {
		err = s.repo.RemoveLine(ctx, c.ID, productID)
	} else {
		err = s.repo.SetQuantity(ctx, c.ID, productID, quantity)
	}
	if err != nil {
		return nil, err
	}
	return s.repo.GetOrCreate(ctx, userID)
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (*Cart, error) {
	return s.UpdateQuantity(ctx, userID, productID, 0)
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	c, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	return s.repo.Clear(ctx, c.ID)
}
