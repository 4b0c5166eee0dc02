// Package handler exposes the catalog admin API over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/catalog-admin/internal/domain/dashboard"
	"github.com/xenking/catalog-admin/internal/domain/order"
	"github.com/xenking/catalog-admin/internal/domain/product"
	"github.com/xenking/catalog-admin/internal/domain/productform"
	"github.com/xenking/catalog-admin/pkg/httpmiddleware"
)

// Drafts manages product draft sessions.
type Drafts interface {
	Open() *productform.Form
	Get(id string) (*productform.Form, error)
	Discard(id string) error
}

// Catalog reads persisted products.
type Catalog interface {
	List(ctx context.Context) ([]product.Product, error)
	GetByID(ctx context.Context, id string) (*product.Product, error)
}

// Orders lists orders, optionally filtered by status.
type Orders interface {
	List(ctx context.Context, status string) ([]order.Order, error)
}

// Dashboard builds the dashboard views.
type Dashboard interface {
	Overview(ctx context.Context) (*dashboard.Overview, error)
	Customers(ctx context.Context) ([]dashboard.Customer, error)
}

// Handler serves the API routes.
type Handler struct {
	drafts    Drafts
	catalog   Catalog
	orders    Orders
	dashboard Dashboard

	submissions metric.Int64Counter
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	drafts Drafts,
	catalog Catalog,
	orders Orders,
	dash Dashboard,
	mp metric.MeterProvider,
) (*Handler, error) {
	meter := mp.Meter("github.com/xenking/catalog-admin/internal/handler")
	submissions, err := meter.Int64Counter("catalog.draft.submissions",
		metric.WithDescription("Product draft submissions by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create submissions counter")
	}

	return &Handler{
		drafts:      drafts,
		catalog:     catalog,
		orders:      orders,
		dashboard:   dash,
		submissions: submissions,
	}, nil
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.Use(recordRoute)

	drafts := r.Group("/drafts")
	drafts.POST("", h.OpenDraft)
	drafts.GET("/:id", h.GetDraft)
	drafts.DELETE("/:id", h.DiscardDraft)
	drafts.PUT("/:id/fields/:field", h.ChangeField)
	drafts.POST("/:id/images", h.SelectImages)
	drafts.DELETE("/:id/images/:index", h.RemoveImage)
	drafts.POST("/:id/sizes/:size", h.ToggleSize)
	drafts.POST("/:id/submit", h.SubmitDraft)

	r.GET("/products", h.ListProducts)
	r.GET("/products/:id", h.GetProduct)

	r.GET("/dashboard/overview", h.Overview)
	r.GET("/orders", h.ListOrders)
	r.GET("/customers", h.ListCustomers)
}

// recordRoute exposes the matched gin route to the outer net/http
// middleware for logging and metrics labels.
func recordRoute(c *gin.Context) {
	httpmiddleware.SetRoute(c.Request.Context(), c.FullPath())
	c.Next()
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Code       int               `json:"code"`
	Message    string            `json:"message"`
	RequestID  string            `json:"requestId,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	ImageError string            `json:"imageError,omitempty"`
}

func abort(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, errorResponse{
		Code:      code,
		Message:   msg,
		RequestID: httpmiddleware.RequestIDFromContext(c.Request.Context()),
	})
}

// writeError maps domain errors to HTTP responses. Unknown errors are logged
// and reported as 500 without details.
func writeError(c *gin.Context, err error) {
	ctx := c.Request.Context()
	resp := errorResponse{RequestID: httpmiddleware.RequestIDFromContext(ctx)}

	var (
		verr   *productform.ValidationError
		ferr   *productform.FieldValidationError
		serr   *productform.SubmissionError
		status *order.InvalidStatusError
	)
	switch {
	case errors.As(err, &verr):
		resp.Code = http.StatusUnprocessableEntity
		resp.Fields = make(map[string]string, len(verr.Fields))
		for _, f := range verr.Fields {
			resp.Fields[string(f.Field)] = f.Reason
		}
		if verr.Images != nil {
			resp.ImageError = verr.Images.Error()
		}
	case errors.As(err, &ferr):
		resp.Code = http.StatusUnprocessableEntity
		resp.Fields = map[string]string{string(ferr.Field): ferr.Reason}
	case errors.As(err, &status):
		resp.Code = http.StatusBadRequest
	case errors.Is(err, productform.ErrDraftNotFound),
		errors.Is(err, productform.ErrImageIndexOutOfRange),
		errors.Is(err, product.ErrNotFound):
		resp.Code = http.StatusNotFound
	case errors.Is(err, productform.ErrUnknownField):
		resp.Code = http.StatusBadRequest
	case errors.Is(err, productform.ErrSubmitInProgress):
		resp.Code = http.StatusConflict
	case errors.Is(err, productform.ErrClosed):
		resp.Code = http.StatusGone
	case errors.As(err, &serr):
		resp.Code = http.StatusBadGateway
		if errors.Is(serr.Cause, product.ErrDuplicateSKU) {
			resp.Code = http.StatusConflict
			resp.Fields = map[string]string{string(productform.FieldSKU): "SKU already exists."}
		}
	default:
		zctx.From(ctx).Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		abort(c, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	resp.Message = err.Error()
	c.AbortWithStatusJSON(resp.Code, resp)
}
