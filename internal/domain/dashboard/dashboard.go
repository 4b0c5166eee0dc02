// Package dashboard computes the sales overview and the customers table of
// the admin dashboard.
package dashboard

import (
	"context"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Customer is a row of the customers table.
type Customer struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	PaymentMethod string     `json:"paymentMethod"`
	LastOrderAt   *time.Time `json:"lastOrderAt,omitempty"`
	AvatarURL     string     `json:"avatarUrl"`
}

// AvatarURL returns the generated avatar image for a customer name.
func AvatarURL(name string) string {
	return "https://api.dicebear.com/9.x/lorelei/svg?seed=" + url.QueryEscape(name)
}

// Sale is a completed order shown in the recent sales list.
type Sale struct {
	CustomerName string          `json:"name"`
	Email        string          `json:"email"`
	Amount       decimal.Decimal `json:"amount"`
	PlacedAt     time.Time       `json:"placedAt"`
	AvatarURL    string          `json:"avatarUrl"`
}

// MonthlyRevenue aggregates completed orders placed in one calendar month.
type MonthlyRevenue struct {
	Month   time.Time       `json:"month"`
	Revenue decimal.Decimal `json:"revenue"`
	Sales   int             `json:"sales"`
}

// Totals are all-time counters.
type Totals struct {
	Revenue       decimal.Decimal
	Customers     int
	Sales         int
	PendingOrders int
}

// Overview is the dashboard landing page.
type Overview struct {
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	// RevenueChange is the percent change of this month's revenue against
	// the previous month. Nil when the previous month had no revenue.
	RevenueChange  *decimal.Decimal `json:"revenueChange,omitempty"`
	Customers      int              `json:"customers"`
	Sales          int              `json:"sales"`
	SalesThisMonth int              `json:"salesThisMonth"`
	PendingOrders  int              `json:"pendingOrders"`
	Monthly        []MonthlyRevenue `json:"monthly"`
	RecentSales    []Sale           `json:"recentSales"`
}

// Repository defines the read queries behind the dashboard.
type Repository interface {
	Totals(ctx context.Context) (*Totals, error)
	// RevenueByMonth returns one entry per month since the given time that
	// has at least one completed order, oldest first.
	RevenueByMonth(ctx context.Context, since time.Time) ([]MonthlyRevenue, error)
	RecentSales(ctx context.Context, limit int) ([]Sale, error)
	ListCustomers(ctx context.Context) ([]Customer, error)
}
