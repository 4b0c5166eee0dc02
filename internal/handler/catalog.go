package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/xenking/catalog-admin/internal/domain/product"
)

type productImageResponse struct {
	Position    int    `json:"position"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type productResponse struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Price        decimal.Decimal        `json:"price"`
	SKU          string                 `json:"sku"`
	Stock        int                    `json:"stock"`
	Description  string                 `json:"description"`
	Category     product.Category       `json:"category"`
	Sizes        []product.Size         `json:"sizes"`
	PrimaryImage string                 `json:"primaryImage,omitempty"`
	Images       []productImageResponse `json:"images"`
	CreatedAt    time.Time              `json:"createdAt"`
}

func newProductResponse(p *product.Product) productResponse {
	images := make([]productImageResponse, len(p.Images))
	for i, img := range p.Images {
		images[i] = productImageResponse{
			Position:    img.Position,
			URL:         img.URL,
			ContentType: img.ContentType,
			Size:        img.Size,
		}
	}
	sizes := p.Sizes
	if sizes == nil {
		sizes = []product.Size{}
	}

	resp := productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Price:       p.Price,
		SKU:         p.SKU,
		Stock:       p.Stock,
		Description: p.Description,
		Category:    p.Category,
		Sizes:       sizes,
		Images:      images,
		CreatedAt:   p.CreatedAt,
	}
	if primary, ok := p.PrimaryImage(); ok {
		resp.PrimaryImage = primary.URL
	}
	return resp
}

// ListProducts returns the catalog.
func (h *Handler) ListProducts(c *gin.Context) {
	products, err := h.catalog.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]productResponse, len(products))
	for i := range products {
		resp[i] = newProductResponse(&products[i])
	}
	c.JSON(http.StatusOK, resp)
}

// GetProduct returns a single product.
func (h *Handler) GetProduct(c *gin.Context) {
	p, err := h.catalog.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newProductResponse(p))
}
