package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
	StatusFailed     Status = "Failed"
)

// Statuses lists every order status.
var Statuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusCancelled, StatusFailed}

// InvalidStatusError indicates an unknown order status filter.
type InvalidStatusError struct {
	Status string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("unknown order status %q", e.Status)
}

// ParseStatus resolves s case-insensitively.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", &InvalidStatusError{Status: s}
}

// Order is a row of the orders table.
type Order struct {
	ID            string          `json:"id"`
	Number        int64           `json:"number"`
	CustomerID    string          `json:"customerId"`
	CustomerName  string          `json:"customerName"`
	Status        Status          `json:"status"`
	PaymentMethod string          `json:"paymentMethod"`
	Total         decimal.Decimal `json:"total"`
	PlacedAt      time.Time       `json:"placedAt"`
}

// Filter narrows an order listing. A nil Status matches every order.
type Filter struct {
	Status *Status
}

// Repository defines read access to orders.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Order, error)
}
