package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrDuplicateSKU is returned when another product already uses the SKU.
	ErrDuplicateSKU = errors.New("sku already exists")
)

// Category groups products in the catalog.
type Category string

const (
	CategoryElectronics Category = "electronics"
	CategoryClothing    Category = "clothing"
	CategoryHome        Category = "home"
	CategoryBooks       Category = "books"
	CategoryToys        Category = "toys"
)

// Categories lists every accepted category in display order.
var Categories = []Category{
	CategoryElectronics,
	CategoryClothing,
	CategoryHome,
	CategoryBooks,
	CategoryToys,
}

// Valid reports whether c is one of Categories.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Size is an apparel size a product is offered in.
type Size string

const (
	SizeXS  Size = "XS"
	SizeS   Size = "S"
	SizeM   Size = "M"
	SizeL   Size = "L"
	SizeXL  Size = "XL"
	SizeXXL Size = "XXL"
)

// Sizes lists every accepted size from smallest to largest.
var Sizes = []Size{SizeXS, SizeS, SizeM, SizeL, SizeXL, SizeXXL}

// ParseSize returns the Size named by s.
func ParseSize(s string) (Size, bool) {
	for _, v := range Sizes {
		if string(v) == s {
			return v, true
		}
	}
	return "", false
}

// Product is a persisted catalog item.
type Product struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	SKU         string
	Stock       int
	Description string
	Category    Category
	Sizes       []Size
	Images      []Image
	CreatedAt   time.Time
}

// Image is a stored product image. Position 0 is the primary image.
type Image struct {
	Position    int
	Key         string
	URL         string
	ContentType string
	Size        int64
}

// PrimaryImage returns the image at position 0.
func (p *Product) PrimaryImage() (Image, bool) {
	for _, img := range p.Images {
		if img.Position == 0 {
			return img, true
		}
	}
	return Image{}, false
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
}

// ObjectStore stores image bytes and returns an addressable URL for them.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
}
