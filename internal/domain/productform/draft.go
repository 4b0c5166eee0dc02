// Package productform implements the product submission form: a per-session
// state container that collects product attributes and images, validates them
// field by field, keeps asynchronous image previews, and hands the finished
// draft to a submission function exactly once per successful attempt.
package productform

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/catalog-admin/internal/domain/product"
)

// Image constraints enforced at selection and submission time.
const (
	MaxImageBytes = 5 << 20
	MinImages     = 2
	MaxImages     = 4
)

// Field names a scalar draft attribute edited through ChangeField.
type Field string

const (
	FieldName        Field = "name"
	FieldPrice       Field = "price"
	FieldSKU         Field = "sku"
	FieldStock       Field = "stock"
	FieldDescription Field = "description"
	FieldCategory    Field = "category"

	// FieldSizes and FieldImages are collection fields. They are not accepted
	// by ChangeField but appear on validation errors.
	FieldSizes  Field = "sizes"
	FieldImages Field = "images"
)

// Upload is a file picked by the operator, before it has been checked.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// ImageFile is an accepted image. ID is stable for the lifetime of the file
// in the draft and keys its preview.
type ImageFile struct {
	ID          uuid.UUID
	Name        string
	ContentType string
	Size        int64
	Data        []byte
}

// Draft is a complete, validated product record handed to the submission
// function. Images[0] is the primary image.
type Draft struct {
	Name        string
	Price       decimal.Decimal
	SKU         string
	Stock       int
	Description string
	Category    product.Category
	Sizes       []product.Size
	Images      []ImageFile
}

// CreateRequest converts the draft into a product creation request.
func (d Draft) CreateRequest() product.CreateRequest {
	images := make([]product.ImageUpload, len(d.Images))
	for i, img := range d.Images {
		images[i] = product.ImageUpload{
			Name:        img.Name,
			ContentType: img.ContentType,
			Data:        img.Data,
		}
	}
	return product.CreateRequest{
		Name:        d.Name,
		Price:       d.Price,
		SKU:         d.SKU,
		Stock:       d.Stock,
		Description: d.Description,
		Category:    d.Category,
		Sizes:       d.Sizes,
		Images:      images,
	}
}
