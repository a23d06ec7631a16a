package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/domain"
	"github.com/salvashop/shopapi/internal/money"
	"github.com/salvashop/shopapi/internal/repository"
	"github.com/salvashop/shopapi/pkg/errors"
)

type orderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOrderRepository creates a new order repository.
// Orders are stored as JSONB documents; status, transaction id and coupon code
// are mirrored into columns for filtering.
func NewOrderRepository(db *sql.DB, logger *zap.Logger) *orderRepository {
	return &orderRepository{
		db:     db,
		logger: logger,
	}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (id, user_id, status, transaction_id, coupon_code, total_amount, version, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	now := time.Now().UTC()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = now
	}
	order.Version = 1

	document, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode order: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		order.ID,
		order.UserID,
		string(order.Status),
		order.GatewayTransactionID,
		order.CouponCode,
		order.TotalAmount,
		order.Version,
		document,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create order", zap.Error(err))
		return err
	}
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := r.getOne(ctx, `SELECT document, version FROM orders WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "order", ID: id.String()}
	}
	return order, err
}

func (r *orderRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Order, error) {
	order, err := r.getOne(ctx, `
		SELECT document, version FROM orders
		WHERE transaction_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, transactionID)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "order", ID: transactionID}
	}
	return order, err
}

func (r *orderRepository) getOne(ctx context.Context, query string, arg interface{}) (*domain.Order, error) {
	var document []byte
	var version int
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&document, &version); err != nil {
		if err != sql.ErrNoRows {
			r.logger.Error("Failed to get order", zap.Error(err))
		}
		return nil, err
	}
	return decodeOrder(document, version)
}

func (r *orderRepository) Save(ctx context.Context, order *domain.Order) error {
	query := `
		UPDATE orders
		SET status = $3, transaction_id = $4, coupon_code = $5, total_amount = $6,
			version = version + 1, document = $7, updated_at = $8
		WHERE id = $1 AND version = $2
	`

	expected := order.Version
	order.Version = expected + 1
	document, err := json.Marshal(order)
	if err != nil {
		order.Version = expected
		return fmt.Errorf("failed to encode order: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query,
		order.ID,
		expected,
		string(order.Status),
		order.GatewayTransactionID,
		order.CouponCode,
		order.TotalAmount,
		document,
		order.UpdatedAt,
	)
	if err != nil {
		order.Version = expected
		r.logger.Error("Failed to save order", zap.Error(err))
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		order.Version = expected
		return err
	}
	if n == 0 {
		order.Version = expected
		return &errors.ErrConflict{Message: fmt.Sprintf("order %s was modified concurrently", order.ID)}
	}
	return nil
}

func (r *orderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]*domain.Order, error) {
	query := `SELECT document, version FROM orders WHERE 1 = 1`
	args := []interface{}{}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		query += ` AND user_id = $` + itoa(len(args))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += ` AND status = $` + itoa(len(args))
	}
	args = append(args, filter.Limit, filter.Offset)
	query += ` ORDER BY created_at DESC LIMIT $` + itoa(len(args)-1) + ` OFFSET $` + itoa(len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list orders", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		var document []byte
		var version int
		if err := rows.Scan(&document, &version); err != nil {
			return nil, err
		}
		order, err := decodeOrder(document, version)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (r *orderRepository) CountCouponUses(ctx context.Context, userID uuid.UUID, code string) (int, error) {
	query := `
		SELECT COUNT(*) FROM orders
		WHERE user_id = $1 AND coupon_code = $2 AND status NOT IN ($3, $4)
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, userID, normalizeCode(code),
		string(domain.OrderStatusCancelled), string(domain.OrderStatusRefunded)).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count coupon uses", zap.Error(err))
		return 0, err
	}
	return count, nil
}

func (r *orderRepository) Stats(ctx context.Context) (*domain.OrderStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'PENDING'),
			COUNT(*) FILTER (WHERE status = 'PAID'),
			COUNT(*) FILTER (WHERE status = 'SHIPPED'),
			COUNT(*) FILTER (WHERE status = 'DELIVERED'),
			COALESCE(SUM(total_amount) FILTER (WHERE status IN ('PAID', 'SHIPPED', 'DELIVERED')), 0)
		FROM orders
	`
	var stats domain.OrderStats
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalOrders,
		&stats.Pending,
		&stats.Paid,
		&stats.Shipped,
		&stats.Delivered,
		&stats.TotalRevenue,
	)
	if err != nil {
		r.logger.Error("Failed to compute order stats", zap.Error(err))
		return nil, err
	}
	stats.TotalRevenue = money.Round(stats.TotalRevenue)
	return &stats, nil
}

func decodeOrder(document []byte, version int) (*domain.Order, error) {
	var order domain.Order
	if err := json.Unmarshal(document, &order); err != nil {
		return nil, fmt.Errorf("failed to decode order: %w", err)
	}
	order.Version = version
	return &order, nil
}
