package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xenking/catalog-admin/internal/domain/dashboard"
	"github.com/xenking/catalog-admin/internal/domain/order"
)

// Overview returns the sales overview.
func (h *Handler) Overview(c *gin.Context) {
	ov, err := h.dashboard.Overview(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ov)
}

// ListOrders returns the orders table, filtered by the optional status
// query parameter.
func (h *Handler) ListOrders(c *gin.Context) {
	orders, err := h.orders.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		writeError(c, err)
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}
	c.JSON(http.StatusOK, orders)
}

// ListCustomers returns the customers table.
func (h *Handler) ListCustomers(c *gin.Context) {
	customers, err := h.dashboard.Customers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if customers == nil {
		customers = []dashboard.Customer{}
	}
	c.JSON(http.StatusOK, customers)
}
