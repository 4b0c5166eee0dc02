package dashboard

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	overviewMonths = 12
	recentSales    = 5
)

var hundred = decimal.NewFromInt(100)

// Service assembles dashboard views.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a dashboard Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Overview returns the all-time totals, a 12-month revenue series ending in
// the current month and the most recent sales.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	now := s.now().UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	since := current.AddDate(0, -(overviewMonths - 1), 0)

	var (
		totals  *Totals
		monthly []MonthlyRevenue
		sales   []Sale
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.repo.Totals(gctx)
		if err != nil {
			return errors.Wrap(err, "totals")
		}
		totals = t
		return nil
	})
	g.Go(func() error {
		rows, err := s.repo.RevenueByMonth(gctx, since)
		if err != nil {
			return errors.Wrap(err, "revenue by month")
		}
		monthly = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.repo.RecentSales(gctx, recentSales)
		if err != nil {
			return errors.Wrap(err, "recent sales")
		}
		sales = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "dashboard overview")
	}

	series := fillMonths(since, overviewMonths, monthly)
	cur, prev := series[len(series)-1], series[len(series)-2]

	for i := range sales {
		sales[i].AvatarURL = AvatarURL(sales[i].CustomerName)
	}
	if sales == nil {
		sales = []Sale{}
	}

	return &Overview{
		TotalRevenue:   totals.Revenue,
		RevenueChange:  percentChange(prev.Revenue, cur.Revenue),
		Customers:      totals.Customers,
		Sales:          totals.Sales,
		SalesThisMonth: cur.Sales,
		PendingOrders:  totals.PendingOrders,
		Monthly:        series,
		RecentSales:    sales,
	}, nil
}

// Customers returns the customers table.
func (s *Service) Customers(ctx context.Context) ([]Customer, error) {
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list customers")
	}
	for i := range customers {
		customers[i].AvatarURL = AvatarURL(customers[i].Name)
	}
	return customers, nil
}

// fillMonths returns n consecutive months starting at since, taking values
// from rows and zero for months without sales.
func fillMonths(since time.Time, n int, rows []MonthlyRevenue) []MonthlyRevenue {
	byMonth := make(map[time.Time]MonthlyRevenue, len(rows))
	for _, r := range rows {
		m := time.Date(r.Month.Year(), r.Month.Month(), 1, 0, 0, 0, 0, time.UTC)
		byMonth[m] = r
	}

	out := make([]MonthlyRevenue, n)
	for i := range out {
		m := since.AddDate(0, i, 0)
		r, ok := byMonth[m]
		if !ok {
			r = MonthlyRevenue{Revenue: decimal.Zero}
		}
		r.Month = m
		out[i] = r
	}
	return out
}

// percentChange returns (cur-prev)/prev in percent, rounded to one decimal.
func percentChange(prev, cur decimal.Decimal) *decimal.Decimal {
	if prev.IsZero() {
		return nil
	}
	change := cur.Sub(prev).Div(prev).Mul(hundred).Round(1)
	return &change
}
