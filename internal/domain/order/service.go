package order

import (
	"context"

	"github.com/go-faster/errors"
)

// Service serves the orders table.
type Service struct {
	orders Repository
}

// NewService creates an order Service.
func NewService(orders Repository) *Service {
	return &Service{orders: orders}
}

// List returns orders newest first. An empty status lists every order;
// otherwise only orders in that status are returned.
func (s *Service) List(ctx context.Context, status string) ([]Order, error) {
	var f Filter
	if status != "" {
		st, err := ParseStatus(status)
		if err != nil {
			return nil, err
		}
		f.Status = &st
	}

	orders, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}
