package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/pkg/errors"
)

type couponRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCouponRepository creates a new coupon repository
func NewCouponRepository(db *sql.DB, logger *zap.Logger) *couponRepository {
	return &couponRepository{
		db:     db,
		logger: logger,
	}
}

const couponColumns = `id, code, description, discount_type, discount_value, minimum_amount, maximum_discount,
	max_uses, max_uses_per_user, current_uses, valid_from, valid_until, is_active, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCoupon(row rowScanner) (*domain.Coupon, error) {
	var c domain.Coupon
	var discountType string
	var minimum, maximum sql.NullFloat64
	var maxUses sql.NullInt64
	var createdBy sql.NullString

	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.Description,
		&discountType,
		&c.DiscountValue,
		&minimum,
		&maximum,
		&maxUses,
		&c.MaxUsesPerUser,
		&c.CurrentUses,
		&c.ValidFrom,
		&c.ValidUntil,
		&c.IsActive,
		&createdBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.DiscountType = domain.DiscountType(discountType)
	if minimum.Valid {
		c.MinimumAmount = &minimum.Float64
	}
	if maximum.Valid {
		c.MaximumDiscount = &maximum.Float64
	}
	if maxUses.Valid {
		n := int(maxUses.Int64)
		c.MaxUses = &n
	}
	c.CreatedBy = nullStringPtr(createdBy)
	return &c, nil
}

func (r *couponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	code = normalizeCode(code)
	coupon, err := scanCoupon(r.db.QueryRowContext(ctx, query, code))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "coupon", ID: code}
	}
	if err != nil {
		r.logger.Error("Failed to get coupon", zap.String("code", code), zap.Error(err))
		return nil, err
	}
	return coupon, nil
}

func (r *couponRepository) Create(ctx context.Context, coupon *domain.Coupon) error {
	query := `
		INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	now := time.Now().UTC()
	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = now
	}
	coupon.UpdatedAt = now
	coupon.Code = normalizeCode(coupon.Code)

	_, err := r.db.ExecContext(ctx, query,
		coupon.ID,
		coupon.Code,
		coupon.Description,
		string(coupon.DiscountType),
		coupon.DiscountValue,
		coupon.MinimumAmount,
		coupon.MaximumDiscount,
		coupon.MaxUses,
		coupon.MaxUsesPerUser,
		coupon.CurrentUses,
		coupon.ValidFrom,
		coupon.ValidUntil,
		coupon.IsActive,
		coupon.CreatedBy,
		coupon.CreatedAt,
		coupon.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return &errors.ErrConflict{Message: "a coupon with that code already exists"}
	}
	if err != nil {
		r.logger.Error("Failed to create coupon", zap.Error(err))
		return err
	}
	return nil
}

// Update writes the admin-editable fields. current_uses is only touched by IncrementUses/DecrementUses.
func (r *couponRepository) Update(ctx context.Context, coupon *domain.Coupon) error {
	query := `
		UPDATE coupons
		SET description = $2, discount_type = $3, discount_value = $4, minimum_amount = $5,
			maximum_discount = $6, max_uses = $7, max_uses_per_user = $8, valid_from = $9,
			valid_until = $10, is_active = $11, updated_at = $12
		WHERE code = $1
	`

	coupon.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		coupon.Code,
		coupon.Description,
		string(coupon.DiscountType),
		coupon.DiscountValue,
		coupon.MinimumAmount,
		coupon.MaximumDiscount,
		coupon.MaxUses,
		coupon.MaxUsesPerUser,
		coupon.ValidFrom,
		coupon.ValidUntil,
		coupon.IsActive,
		coupon.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to update coupon", zap.Error(err))
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "coupon", ID: coupon.Code}
	}
	return nil
}

func (r *couponRepository) Delete(ctx context.Context, code string) error {
	code = normalizeCode(code)
	result, err := r.db.ExecContext(ctx, `DELETE FROM coupons WHERE code = $1`, code)
	if err != nil {
		r.logger.Error("Failed to delete coupon", zap.Error(err))
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &errors.ErrNotFound{Resource: "coupon", ID: code}
	}
	return nil
}

func (r *couponRepository) List(ctx context.Context, activeAt *time.Time, limit, offset int) ([]*domain.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons`
	args := []interface{}{}
	if activeAt != nil {
		query += ` WHERE is_active AND valid_from <= $1 AND valid_until >= $1`
		args = append(args, *activeAt)
	}
	query += ` ORDER BY created_at DESC LIMIT $` + itoa(len(args)+1) + ` OFFSET $` + itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list coupons", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	coupons := []*domain.Coupon{}
	for rows.Next() {
		coupon, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, coupon)
	}
	return coupons, rows.Err()
}

func (r *couponRepository) IncrementUses(ctx context.Context, code string) (bool, error) {
	query := `
		UPDATE coupons
		SET current_uses = current_uses + 1, updated_at = $2
		WHERE code = $1 AND (max_uses IS NULL OR current_uses < max_uses)
	`
	result, err := r.db.ExecContext(ctx, query, normalizeCode(code), time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to increment coupon uses", zap.Error(err))
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *couponRepository) DecrementUses(ctx context.Context, code string) error {
	query := `
		UPDATE coupons
		SET current_uses = GREATEST(current_uses - 1, 0), updated_at = $2
		WHERE code = $1
	`
	if _, err := r.db.ExecContext(ctx, query, normalizeCode(code), time.Now().UTC()); err != nil {
		r.logger.Error("Failed to decrement coupon uses", zap.Error(err))
		return err
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
