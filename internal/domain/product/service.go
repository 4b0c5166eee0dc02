package product

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ImageUpload is an image that has not been stored yet.
type ImageUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// CreateRequest holds the input for creating a product. Images keep the order
// they were selected in; the first one becomes the primary image.
type CreateRequest struct {
	Name        string
	Price       decimal.Decimal
	SKU         string
	Stock       int
	Description string
	Category    Category
	Sizes       []Size
	Images      []ImageUpload
}

// Service encapsulates product creation and catalog reads.
type Service struct {
	repo  Repository
	store ObjectStore
	now   func() time.Time
}

// NewService creates a product Service backed by the given repository and
// object store.
func NewService(repo Repository, store ObjectStore) *Service {
	return &Service{
		repo:  repo,
		store: store,
		now:   time.Now,
	}
}

// Create uploads the request images concurrently, then persists the product.
// Uploaded objects are removed again when persisting fails.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Product, error) {
	id := uuid.New().String()
	images := make([]Image, len(req.Images))

	g, gctx := errgroup.WithContext(ctx)
	for i, upload := range req.Images {
		g.Go(func() error {
			key := objectKey(id, i, upload.Name)
			url, err := s.store.Put(gctx, key, upload.ContentType, upload.Data)
			if err != nil {
				return errors.Wrapf(err, "upload image %d", i)
			}
			images[i] = Image{
				Position:    i,
				Key:         key,
				URL:         url,
				ContentType: upload.ContentType,
				Size:        int64(len(upload.Data)),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.discard(ctx, images)
		return nil, errors.Wrap(err, "upload images")
	}

	p := &Product{
		ID:          id,
		Name:        req.Name,
		Price:       req.Price,
		SKU:         req.SKU,
		Stock:       req.Stock,
		Description: req.Description,
		Category:    req.Category,
		Sizes:       req.Sizes,
		Images:      images,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		s.discard(ctx, images)
		if errors.Is(err, ErrDuplicateSKU) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create product")
	}

	zctx.From(ctx).Info("Product created",
		zap.String("product_id", p.ID),
		zap.String("sku", p.SKU),
		zap.Int("images", len(p.Images)),
	)
	return p, nil
}

// List returns every product in the catalog.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

// GetByID returns a single product.
func (s *Service) GetByID(ctx context.Context, id string) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "get product")
	}
	return p, nil
}

// discard removes already uploaded objects. Failures are logged only: the
// caller is already returning an error.
func (s *Service) discard(ctx context.Context, images []Image) {
	ctx = context.WithoutCancel(ctx)
	for _, img := range images {
		if img.Key == "" {
			continue
		}
		if err := s.store.Delete(ctx, img.Key); err != nil {
			zctx.From(ctx).Warn("Failed to delete orphaned image",
				zap.String("key", img.Key),
				zap.Error(err),
			)
		}
	}
}

func objectKey(productID string, position int, name string) string {
	ext := strings.ToLower(path.Ext(name))
	return fmt.Sprintf("products/%s/%d-%s%s", productID, position, uuid.New().String(), ext)
}
