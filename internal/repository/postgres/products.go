package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/pkg/errors"
)

type productRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *sql.DB, logger *zap.Logger) *productRepository {
	return &productRepository{
		db:     db,
		logger: logger,
	}
}

func (r *productRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `
		SELECT id, name, base_price, stock, has_variants, main_image, is_active, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	var product domain.Product
	var mainImage sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.Name,
		&product.BasePrice,
		&product.Stock,
		&product.HasVariants,
		&mainImage,
		&product.IsActive,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "product", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get product by ID", zap.Error(err))
		return nil, err
	}
	if mainImage.Valid {
		product.MainImage = &mainImage.String
	}

	if product.HasVariants {
		variants, err := r.variants(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		product.Variants = variants
	}

	return &product, nil
}

func (r *productRepository) variants(ctx context.Context, productID uuid.UUID) ([]domain.ProductVariant, error) {
	query := `
		SELECT sku, size, color, stock, price_adjustment, image_url, is_available
		FROM product_variants
		WHERE product_id = $1
		ORDER BY sku
	`

	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		r.logger.Error("Failed to query product variants", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var variants []domain.ProductVariant
	for rows.Next() {
		var v domain.ProductVariant
		var size, color, image sql.NullString
		if err := rows.Scan(&v.SKU, &size, &color, &v.Stock, &v.PriceAdjustment, &image, &v.IsAvailable); err != nil {
			return nil, err
		}
		v.Size = nullStringPtr(size)
		v.Color = nullStringPtr(color)
		v.ImageURL = nullStringPtr(image)
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	now := time.Now().UTC()
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, name, base_price, stock, has_variants, main_image, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		product.ID,
		product.Name,
		product.BasePrice,
		product.Stock,
		product.HasVariants,
		product.MainImage,
		product.IsActive,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create product", zap.Error(err))
		return err
	}

	for _, v := range product.Variants {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO product_variants (product_id, sku, size, color, stock, price_adjustment, image_url, is_available)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, product.ID, v.SKU, v.Size, v.Color, v.Stock, v.PriceAdjustment, v.ImageURL, v.IsAvailable)
		if isUniqueViolation(err) {
			return &errors.ErrConflict{Message: fmt.Sprintf("duplicate variant SKU %s", v.SKU)}
		}
		if err != nil {
			r.logger.Error("Failed to create product variant", zap.String("sku", v.SKU), zap.Error(err))
			return err
		}
	}

	return tx.Commit()
}

func (r *productRepository) FindByVariantSKU(ctx context.Context, sku string) ([]*domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT product_id FROM product_variants WHERE sku = $1`, sku)
	if err != nil {
		r.logger.Error("Failed to query variants by SKU", zap.Error(err))
		return nil, err
	}

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	products := make([]*domain.Product, 0, len(ids))
	for _, id := range ids {
		product, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

func (r *productRepository) DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) (bool, error) {
	query := `
		UPDATE products
		SET stock = stock - $2, updated_at = $3
		WHERE id = $1 AND stock >= $2
	`
	return r.execConditional(ctx, "decrement stock", query, productID, quantity, time.Now().UTC())
}

func (r *productRepository) DecrementVariantStock(ctx context.Context, productID uuid.UUID, sku string, quantity int) (bool, error) {
	query := `
		UPDATE product_variants
		SET stock = stock - $3
		WHERE product_id = $1 AND sku = $2 AND is_available AND stock >= $3
	`
	return r.execConditional(ctx, "decrement variant stock", query, productID, sku, quantity)
}

func (r *productRepository) IncrementStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	query := `UPDATE products SET stock = stock + $2, updated_at = $3 WHERE id = $1`
	ok, err := r.execConditional(ctx, "increment stock", query, productID, quantity, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return &errors.ErrNotFound{Resource: "product", ID: productID.String()}
	}
	return nil
}

func (r *productRepository) IncrementVariantStock(ctx context.Context, productID uuid.UUID, sku string, quantity int) error {
	query := `UPDATE product_variants SET stock = stock + $3 WHERE product_id = $1 AND sku = $2`
	ok, err := r.execConditional(ctx, "increment variant stock", query, productID, sku, quantity)
	if err != nil {
		return err
	}
	if !ok {
		return &errors.ErrNotFound{Resource: "product variant", ID: productID.String() + "/" + sku}
	}
	return nil
}

func (r *productRepository) execConditional(ctx context.Context, op, query string, args ...interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, zap.Error(err))
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}
