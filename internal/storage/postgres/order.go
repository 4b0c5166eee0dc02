package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/catalog-admin/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// List returns orders newest first, optionally restricted to one status.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}

	rows, err := r.pool.Query(ctx, `
		SELECT o.id, o.number, o.customer_id, c.name, o.status, o.payment_method, o.total, o.placed_at
		FROM orders o
		JOIN customers c ON c.id = o.customer_id
		WHERE $1::text IS NULL OR o.status = $1
		ORDER BY o.placed_at DESC, o.number DESC`, status)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}

	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		var (
			o      order.Order
			status string
		)
		err := row.Scan(&o.ID, &o.Number, &o.CustomerID, &o.CustomerName, &status, &o.PaymentMethod, &o.Total, &o.PlacedAt)
		o.Status = order.Status(status)
		return o, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	return orders, nil
}
