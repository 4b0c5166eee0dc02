package order

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	orders     []Order
	lastFilter Filter
	err        error
}

func (m *mockOrderRepo) List(_ context.Context, f Filter) ([]Order, error) {
	m.lastFilter = f
	if m.err != nil {
		return nil, m.err
	}
	var out []Order
	for _, o := range m.orders {
		if f.Status == nil || o.Status == *f.Status {
			out = append(out, o)
		}
	}
	return out, nil
}

// --- Helpers ---

func newTestOrder(number int64, status Status, method string) Order {
	return Order{
		ID:            fmt.Sprintf("o-%d", number),
		Number:        number,
		CustomerID:    "c1",
		CustomerName:  "John Doe",
		Status:        status,
		PaymentMethod: method,
		Total:         decimal.RequireFromString("19.99"),
		PlacedAt:      time.Date(2024, 3, int(number), 0, 0, 0, 0, time.UTC),
	}
}

func newOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: []Order{
		newTestOrder(1, StatusCompleted, "Credit Card"),
		newTestOrder(2, StatusPending, "PayPal"),
		newTestOrder(3, StatusProcessing, "Bank Transfer"),
		newTestOrder(4, StatusPending, "PayPal"),
	}}
}

// --- Tests ---

func TestList_All(t *testing.T) {
	repo := newOrderRepo()
	svc := NewService(repo)

	orders, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, orders, 4)
	assert.Nil(t, repo.lastFilter.Status)
}

func TestList_ByStatus(t *testing.T) {
	repo := newOrderRepo()
	svc := NewService(repo)

	orders, err := svc.List(context.Background(), "pending")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, o := range orders {
		assert.Equal(t, StatusPending, o.Status)
	}
	require.NotNil(t, repo.lastFilter.Status)
	assert.Equal(t, StatusPending, *repo.lastFilter.Status)
}

func TestList_InvalidStatus(t *testing.T) {
	repo := newOrderRepo()
	svc := NewService(repo)

	_, err := svc.List(context.Background(), "shipped")
	var isErr *InvalidStatusError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, "shipped", isErr.Status)
}

func TestList_RepositoryError(t *testing.T) {
	svc := NewService(&mockOrderRepo{err: errors.New("connection reset")})

	_, err := svc.List(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list orders")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestParseStatus(t *testing.T) {
	for _, st := range Statuses {
		got, err := ParseStatus(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}

	got, err := ParseStatus("CANCELLED")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got)

	_, err = ParseStatus("")
	require.Error(t, err)
}
