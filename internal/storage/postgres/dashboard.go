package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/catalog-admin/internal/domain/dashboard"
	"github.com/xenking/catalog-admin/internal/domain/order"
)

var _ dashboard.Repository = (*DashboardRepository)(nil)

// DashboardRepository implements dashboard.Repository backed by PostgreSQL.
// Revenue and sales only count completed orders.
type DashboardRepository struct {
	pool *pgxpool.Pool
}

// NewDashboardRepository returns a DashboardRepository that uses the given pool.
func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	return &DashboardRepository{pool: pool}
}

// Totals returns the all-time counters.
func (r *DashboardRepository) Totals(ctx context.Context) (*dashboard.Totals, error) {
	var (
		t         dashboard.Totals
		customers int64
		sales     int64
		pending   int64
	)
	err := r.pool.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT SUM(total) FROM orders WHERE status = $1), 0),
			(SELECT COUNT(*) FROM customers),
			(SELECT COUNT(*) FROM orders WHERE status = $1),
			(SELECT COUNT(*) FROM orders WHERE status = $2)`,
		string(order.StatusCompleted), string(order.StatusPending),
	).Scan(&t.Revenue, &customers, &sales, &pending)
	if err != nil {
		return nil, errors.Wrap(err, "query totals")
	}
	t.Customers = int(customers)
	t.Sales = int(sales)
	t.PendingOrders = int(pending)
	return &t, nil
}

// RevenueByMonth groups completed orders placed since the given time by UTC
// calendar month.
func (r *DashboardRepository) RevenueByMonth(ctx context.Context, since time.Time) ([]dashboard.MonthlyRevenue, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT date_trunc('month', placed_at AT TIME ZONE 'UTC') AS month, SUM(total), COUNT(*)
		FROM orders
		WHERE status = $1 AND placed_at >= $2
		GROUP BY month
		ORDER BY month`,
		string(order.StatusCompleted), since,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query monthly revenue")
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (dashboard.MonthlyRevenue, error) {
		var (
			m     dashboard.MonthlyRevenue
			month time.Time
			sales int64
		)
		if err := row.Scan(&month, &m.Revenue, &sales); err != nil {
			return m, err
		}
		m.Month = time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
		m.Sales = int(sales)
		return m, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan monthly revenue")
	}
	return out, nil
}

// RecentSales returns the latest completed orders.
func (r *DashboardRepository) RecentSales(ctx context.Context, limit int) ([]dashboard.Sale, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.name, c.email, o.total, o.placed_at
		FROM orders o
		JOIN customers c ON c.id = o.customer_id
		WHERE o.status = $1
		ORDER BY o.placed_at DESC, o.number DESC
		LIMIT $2`,
		string(order.StatusCompleted), limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query recent sales")
	}

	sales, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (dashboard.Sale, error) {
		var s dashboard.Sale
		err := row.Scan(&s.CustomerName, &s.Email, &s.Amount, &s.PlacedAt)
		return s, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan recent sales")
	}
	return sales, nil
}

// ListCustomers returns every customer with the date of their latest order.
func (r *DashboardRepository) ListCustomers(ctx context.Context) ([]dashboard.Customer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.name, c.email, c.payment_method, MAX(o.placed_at)
		FROM customers c
		LEFT JOIN orders o ON o.customer_id = c.id
		GROUP BY c.id
		ORDER BY MAX(o.placed_at) DESC NULLS LAST, c.name`)
	if err != nil {
		return nil, errors.Wrap(err, "query customers")
	}

	customers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (dashboard.Customer, error) {
		var c dashboard.Customer
		err := row.Scan(&c.ID, &c.Name, &c.Email, &c.PaymentMethod, &c.LastOrderAt)
		return c, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan customers")
	}
	return customers, nil
}

// SeedCustomer is a customer row loaded by the seed tool.
type SeedCustomer struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	PaymentMethod string `json:"paymentMethod"`
}

// SeedOrder is an order row loaded by the seed tool.
type SeedOrder struct {
	ID            string          `json:"id"`
	Number        int64           `json:"number"`
	CustomerID    string          `json:"customerId"`
	Status        order.Status    `json:"status"`
	PaymentMethod string          `json:"paymentMethod"`
	Total         decimal.Decimal `json:"total"`
	PlacedAt      time.Time       `json:"placedAt"`
}

// UpsertCustomers inserts or updates customers by id.
func (r *DashboardRepository) UpsertCustomers(ctx context.Context, customers []SeedCustomer) error {
	batch := &pgx.Batch{}
	for _, c := range customers {
		batch.Queue(`
			INSERT INTO customers (id, name, email, payment_method)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, email = EXCLUDED.email, payment_method = EXCLUDED.payment_method`,
			c.ID, c.Name, c.Email, c.PaymentMethod,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "upsert customers")
	}
	return nil
}

// UpsertOrders inserts or updates orders by id. Every status must be known.
func (r *DashboardRepository) UpsertOrders(ctx context.Context, orders []SeedOrder) error {
	batch := &pgx.Batch{}
	for _, o := range orders {
		if _, err := order.ParseStatus(string(o.Status)); err != nil {
			return errors.Wrapf(err, "order %q", o.ID)
		}
		batch.Queue(`
			INSERT INTO orders (id, number, customer_id, status, payment_method, total, placed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE
			SET number = EXCLUDED.number, customer_id = EXCLUDED.customer_id, status = EXCLUDED.status,
				payment_method = EXCLUDED.payment_method, total = EXCLUDED.total, placed_at = EXCLUDED.placed_at`,
			o.ID, o.Number, o.CustomerID, string(o.Status), o.PaymentMethod, o.Total, o.PlacedAt,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "upsert orders")
	}
	return nil
}
