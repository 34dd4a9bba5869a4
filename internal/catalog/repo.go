package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrImageNotFound   = errors.New("image not found")
)

type Repo struct{ DB *pgxpool.Pool }

const productCols = `id, name, COALESCE(description,''), price_cents, COALESCE(image_url,''), is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.ImageURL, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// ListActive returns storefront products with variants and images attached.
func (r *Repo) ListActive(ctx context.Context) ([]ProductDetail, error) {
	return r.list(ctx, true)
}

// List returns every product, inactive included, for the back office.
func (r *Repo) List(ctx context.Context) ([]ProductDetail, error) {
	return r.list(ctx, false)
}

func (r *Repo) list(ctx context.Context, activeOnly bool) ([]ProductDetail, error) {
	q := `SELECT ` + productCols + ` FROM products`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY created_at DESC`

	rows, err := r.DB.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProductDetail
	ids := make([]string, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ProductDetail{Product: p})
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	variants, err := r.variantsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	images, err := r.imagesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Variants = variants[out[i].ID]
		out[i].Images = images[out[i].ID]
	}
	return out, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*ProductDetail, error) {
	return r.get(ctx, id, false)
}

func (r *Repo) GetActive(ctx context.Context, id string) (*ProductDetail, error) {
	return r.get(ctx, id, true)
}

func (r *Repo) get(ctx context.Context, id string, activeOnly bool) (*ProductDetail, error) {
	q := `SELECT ` + productCols + ` FROM products WHERE id=$1`
	if activeOnly {
		q += ` AND is_active`
	}
	p, err := scanProduct(r.DB.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	variants, err := r.variantsFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	images, err := r.imagesFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	return &ProductDetail{Product: p, Variants: variants[id], Images: images[id]}, nil
}

func (r *Repo) variantsFor(ctx context.Context, productIDs []string) (map[string][]Variant, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, product_id, size, stock, created_at, updated_at
		FROM product_variants WHERE product_id = ANY($1) ORDER BY size`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]Variant{}
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Size, &v.Stock, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		out[v.ProductID] = append(out[v.ProductID], v)
	}
	return out, rows.Err()
}

func (r *Repo) imagesFor(ctx context.Context, productIDs []string) (map[string][]Image, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, product_id, url, position, created_at
		FROM product_images WHERE product_id = ANY($1) ORDER BY position`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]Image{}
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.ID, &img.ProductID, &img.URL, &img.Position, &img.CreatedAt); err != nil {
			return nil, err
		}
		out[img.ProductID] = append(out[img.ProductID], img)
	}
	return out, rows.Err()
}

// ProductsByIDs loads the products a checkout references, keyed by id.
// Missing ids are simply absent from the map.
func (r *Repo) ProductsByIDs(ctx context.Context, ids []string) (map[string]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productCols+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *Repo) VariantBySize(ctx context.Context, productID, size string) (*Variant, error) {
	var v Variant
	err := r.DB.QueryRow(ctx, `
		SELECT id, product_id, size, stock, created_at, updated_at
		FROM product_variants WHERE product_id=$1 AND size=$2`, productID, size,
	).Scan(&v.ID, &v.ProductID, &v.Size, &v.Stock, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repo) CreateProduct(ctx context.Context, in CreateProductInput) (*Product, error) {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	id := uuid.NewString()
	_, err := r.DB.Exec(ctx, `
		INSERT INTO products(id, name, description, price_cents, image_url, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, in.Name, in.Description, in.PriceCents, in.ImageURL, active)
	if err != nil {
		return nil, err
	}
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) UpdateProduct(ctx context.Context, id string, in UpdateProductInput) (*Product, error) {
	set := ""
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		if set != "" {
			set += ", "
		}
		set += fmt.Sprintf("%s=$%d", col, len(args))
	}
	if in.Name != nil {
		add("name", *in.Name)
	}
	if in.Description != nil {
		add("description", *in.Description)
	}
	if in.PriceCents != nil {
		add("price_cents", *in.PriceCents)
	}
	if in.ImageURL != nil {
		add("image_url", *in.ImageURL)
	}
	if in.IsActive != nil {
		add("is_active", *in.IsActive)
	}
	if set != "" {
		ct, err := r.DB.Exec(ctx, `UPDATE products SET `+set+`, updated_at=now() WHERE id=$1`, args...)
		if err != nil {
			return nil, err
		}
		if ct.RowsAffected() != 1 {
			return nil, ErrProductNotFound
		}
	}
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) SetActive(ctx context.Context, id string, active bool) error {
	ct, err := r.DB.Exec(ctx, `UPDATE products SET is_active=$2, updated_at=now() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrProductNotFound
	}
	return nil
}

// DeleteProduct removes variants and images first so the product row never
// leaves orphans behind.
func (r *Repo) DeleteProduct(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM product_variants WHERE product_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM product_images WHERE product_id=$1`, id); err != nil {
		return err
	}
	ct, err := tx.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrProductNotFound
	}
	return tx.Commit(ctx)
}

func (r *Repo) UpsertVariant(ctx context.Context, productID, size string, stock int) (*Variant, error) {
	var v Variant
	err := r.DB.QueryRow(ctx, `
		INSERT INTO product_variants(id, product_id, size, stock)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id, size)
		DO UPDATE SET stock = EXCLUDED.stock, updated_at = now()
		RETURNING id, product_id, size, stock, created_at, updated_at`,
		uuid.NewString(), productID, size, stock,
	).Scan(&v.ID, &v.ProductID, &v.Size, &v.Stock, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repo) BulkUpsertStock(ctx context.Context, productID string, in []StockInput) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, s := range in {
		_, err := tx.Exec(ctx, `
			INSERT INTO product_variants(id, product_id, size, stock)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (product_id, size)
			DO UPDATE SET stock = EXCLUDED.stock, updated_at = now()`,
			uuid.NewString(), productID, s.Size, s.Stock)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// AddImage appends to the gallery: position is one past the current maximum.
func (r *Repo) AddImage(ctx context.Context, productID, url string) (*Image, error) {
	var img Image
	err := r.DB.QueryRow(ctx, `
		INSERT INTO product_images(id, product_id, url, position)
		VALUES ($1, $2, $3,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM product_images WHERE product_id = $2))
		RETURNING id, product_id, url, position, created_at`,
		uuid.NewString(), productID, url,
	).Scan(&img.ID, &img.ProductID, &img.URL, &img.Position, &img.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &img, nil
}

func (r *Repo) GetImage(ctx context.Context, imageID string) (*Image, error) {
	var img Image
	err := r.DB.QueryRow(ctx, `
		SELECT id, product_id, url, position, created_at
		FROM product_images WHERE id=$1`, imageID,
	).Scan(&img.ID, &img.ProductID, &img.URL, &img.Position, &img.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrImageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

func (r *Repo) DeleteImage(ctx context.Context, imageID string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM product_images WHERE id=$1`, imageID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrImageNotFound
	}
	return nil
}

// ReorderImages reassigns dense positions 0..n-1 following the given order.
func (r *Repo) ReorderImages(ctx context.Context, productID string, imageIDs []string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, id := range imageIDs {
		ct, err := tx.Exec(ctx, `
			UPDATE product_images SET position=$3 WHERE id=$1 AND product_id=$2`,
			id, productID, i)
		if err != nil {
			return err
		}
		if ct.RowsAffected() != 1 {
			return fmt.Errorf("%w: %s", ErrImageNotFound, id)
		}
	}
	return tx.Commit(ctx)
}
