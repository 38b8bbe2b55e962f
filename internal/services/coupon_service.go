package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"market-system/internal/database"
	"market-system/internal/logger"
	"market-system/internal/models"
)

// CouponService хранит выданные купоны.
type CouponService struct {
	db  *database.DB
	log *logger.Logger
}

// NewCouponService создаёт сервис купонов.
func NewCouponService(db *database.DB, log *logger.Logger) *CouponService {
	return &CouponService{
		db:  db,
		log: log,
	}
}

// InsertWithTx сохраняет купон в рамках транзакции.
// Возвращает false, если пользователь уже получил купон этой активности.
func (s *CouponService) InsertWithTx(ctx context.Context, tx *sql.Tx, c *models.Coupon) (bool, error) {
	query := `
		INSERT INTO coupon (id, activity_id, name, type, discount_amount, amount_condition, discount_rate,
			validity_time, status, user_id, user_name, user_phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (activity_id, user_id) DO NOTHING
	`

	result, err := tx.ExecContext(ctx, query,
		c.ID, c.ActivityID, c.Name, c.Type, c.DiscountAmount, c.AmountCondition, c.DiscountRate,
		c.ValidityTime, c.Status, c.UserID, c.UserName, c.UserPhone, c.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert coupon: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// RevokeWithTx аннулирует все неиспользованные купоны активности.
func (s *CouponService) RevokeWithTx(ctx context.Context, tx *sql.Tx, activityID int64) (int64, error) {
	query := `
		UPDATE coupon
		SET status = $1, updated_at = $2
		WHERE activity_id = $3 AND status = $4
	`

	result, err := tx.ExecContext(ctx, query, models.CouponStatusVoided, time.Now(), activityID, models.CouponStatusUnused)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke coupons: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// CountWriteOffByActivity возвращает число погашенных купонов активности.
func (s *CouponService) CountWriteOffByActivity(ctx context.Context, activityID int64) (int, error) {
	var count sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM coupon_write_off WHERE activity_id = $1", activityID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count write-offs: %w", err)
	}
	return int(count.Int64), nil
}
