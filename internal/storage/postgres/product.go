package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/catalog-admin/internal/domain/product"
)

const uniqueViolation = "23505"

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// Create inserts the product and its images in one transaction. A SKU that
// is already taken yields product.ErrDuplicateSKU.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	sizes := make([]string, len(p.Sizes))
	for i, s := range p.Sizes {
		sizes[i] = string(s)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO products (id, name, price, sku, stock, description, category, sizes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at`,
			p.ID, p.Name, p.Price, p.SKU, p.Stock, p.Description, string(p.Category), sizes,
		).Scan(&p.CreatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return product.ErrDuplicateSKU
			}
			return errors.Wrapf(err, "insert product %q", p.ID)
		}

		batch := &pgx.Batch{}
		for _, img := range p.Images {
			batch.Queue(`
				INSERT INTO product_images (product_id, position, storage_key, url, content_type, size_bytes)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				p.ID, img.Position, img.Key, img.URL, img.ContentType, img.Size,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrapf(err, "insert images of %q", p.ID)
		}
		return nil
	})
}

// List returns every product, newest first, with its images.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, price, sku, stock, description, category, sizes, created_at
		FROM products
		ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, errors.Wrap(err, "query products")
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "scan products")
	}

	ids := make([]string, len(products))
	for i := range products {
		ids[i] = products[i].ID
	}
	images, err := r.images(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range products {
		products[i].Images = images[products[i].ID]
	}
	return products, nil
}

// GetByID returns a single product or product.ErrNotFound.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, price, sku, stock, description, category, sizes, created_at
		FROM products
		WHERE id = $1`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "query product %q", id)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "scan product %q", id)
	}

	images, err := r.images(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	p.Images = images[id]
	return &p, nil
}

func (r *ProductRepository) images(ctx context.Context, ids []string) (map[string][]product.Image, error) {
	out := make(map[string][]product.Image, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT product_id, position, storage_key, url, content_type, size_bytes
		FROM product_images
		WHERE product_id = ANY($1)
		ORDER BY product_id, position`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "query product images")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID string
			img       product.Image
		)
		if err := rows.Scan(&productID, &img.Position, &img.Key, &img.URL, &img.ContentType, &img.Size); err != nil {
			return nil, errors.Wrap(err, "scan product image")
		}
		out[productID] = append(out[productID], img)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate product images")
	}
	return out, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p        product.Product
		category string
		sizes    []string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.SKU, &p.Stock, &p.Description, &category, &sizes, &p.CreatedAt)
	if err != nil {
		return product.Product{}, err
	}
	p.Category = product.Category(category)
	p.Sizes = make([]product.Size, len(sizes))
	for i, s := range sizes {
		p.Sizes[i] = product.Size(s)
	}
	return p, nil
}
