package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"market-system/internal/apperror"
	"market-system/internal/config"
	"market-system/internal/database"
	"market-system/internal/idgen"
	"market-system/internal/logger"
	"market-system/internal/metrics"
	"market-system/internal/models"
	"market-system/internal/redis"

	"github.com/sirupsen/logrus"
)

const activityColumns = `id, name, type, discount_amount, amount_condition, discount_rate, validity_days,
	distribute_start_time, distribute_end_time, total_num, stock_num, status, created_at, updated_at`

// ActivityService управляет активностями, их статусами и остатками.
type ActivityService struct {
	db      *database.DB
	cache   *redis.Client
	coupons *CouponService
	ids     idgen.Generator
	log     *logger.Logger
	cfg     *config.SeizeConfig
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewActivityService создаёт сервис активностей.
func NewActivityService(
	db *database.DB,
	cache *redis.Client,
	coupons *CouponService,
	ids idgen.Generator,
	log *logger.Logger,
	cfg *config.SeizeConfig,
	m *metrics.Metrics,
) *ActivityService {
	return &ActivityService{
		db:      db,
		cache:   cache,
		coupons: coupons,
		ids:     ids,
		log:     log,
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanActivity(row rowScanner) (*models.Activity, error) {
	a := &models.Activity{}
	err := row.Scan(
		&a.ID, &a.Name, &a.Type, &a.DiscountAmount, &a.AmountCondition, &a.DiscountRate, &a.ValidityDays,
		&a.DistributeStartTime, &a.DistributeEndTime, &a.TotalNum, &a.StockNum, &a.Status, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// QueryForPage возвращает страницу активностей по фильтрам, новые первыми.
func (s *ActivityService) QueryForPage(ctx context.Context, q *models.ActivityPageQuery) (*models.ActivityPage, error) {
	q.Normalize()

	var (
		conds []string
		args  []interface{}
	)
	if q.ID != nil {
		args = append(args, *q.ID)
		conds = append(conds, fmt.Sprintf("id = $%d", len(args)))
	}
	if q.Name != "" {
		args = append(args, "%"+q.Name+"%")
		conds = append(conds, fmt.Sprintf("name LIKE $%d", len(args)))
	}
	if q.Type != nil {
		args = append(args, *q.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if q.Status != nil {
		args = append(args, *q.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activity"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count activities: %w", err)
	}

	page := &models.ActivityPage{
		Total: total,
		Pages: (total + int64(q.PageSize) - 1) / int64(q.PageSize),
		List:  []*models.Activity{},
	}
	if total == 0 {
		return page, nil
	}

	args = append(args, q.PageSize, q.Offset())
	query := fmt.Sprintf("SELECT %s FROM activity%s ORDER BY id DESC LIMIT $%d OFFSET $%d",
		activityColumns, where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		page.List = append(page.List, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activities: %w", err)
	}

	return page, nil
}

// GetActivity возвращает активность или ErrActivityNotFound.
func (s *ActivityService) GetActivity(ctx context.Context, id int64) (*models.Activity, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+activityColumns+" FROM activity WHERE id = $1", id)
	a, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	return a, nil
}

// QueryByID возвращает активность со счётчиками выдачи и погашения.
// Для неизвестного id возвращается пустая структура без ошибки.
func (s *ActivityService) QueryByID(ctx context.Context, id int64) (*models.ActivityDetail, error) {
	a, err := s.GetActivity(ctx, id)
	if err != nil {
		if errors.Is(err, ErrActivityNotFound) {
			return &models.ActivityDetail{}, nil
		}
		return nil, err
	}

	writeOff, err := s.coupons.CountWriteOffByActivity(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.ActivityDetail{
		Activity:    *a,
		ReceiveNum:  a.TotalNum - a.StockNum,
		WriteOffNum: writeOff,
	}, nil
}

// Save создаёт активность или редактирует ещё не начавшуюся.
// Статус всегда сбрасывается в NOT_STARTED, остаток равен общему количеству.
func (s *ActivityService) Save(ctx context.Context, req *models.ActivitySaveRequest) (*models.Activity, error) {
	now := s.now()
	if err := req.Check(now); err != nil {
		return nil, err
	}

	a := &models.Activity{
		Name:                req.Name,
		Type:                req.Type,
		DiscountAmount:      req.DiscountAmount,
		AmountCondition:     req.AmountCondition,
		DiscountRate:        req.DiscountRate,
		ValidityDays:        req.ValidityDays,
		DistributeStartTime: req.DistributeStartTime,
		DistributeEndTime:   req.DistributeEndTime,
		TotalNum:            req.TotalNum,
		StockNum:            req.TotalNum,
		Status:              models.ActivityStatusNotStarted,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if req.ID != nil {
		a.ID = *req.ID
	} else {
		a.ID = s.ids.NextID()
	}

	query := `
		INSERT INTO activity (` + activityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			discount_amount = EXCLUDED.discount_amount,
			amount_condition = EXCLUDED.amount_condition,
			discount_rate = EXCLUDED.discount_rate,
			validity_days = EXCLUDED.validity_days,
			distribute_start_time = EXCLUDED.distribute_start_time,
			distribute_end_time = EXCLUDED.distribute_end_time,
			total_num = EXCLUDED.total_num,
			stock_num = EXCLUDED.stock_num,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		WHERE activity.status = $12
	`

	result, err := s.db.ExecContext(ctx, query,
		a.ID, a.Name, a.Type, a.DiscountAmount, a.AmountCondition, a.DiscountRate, a.ValidityDays,
		a.DistributeStartTime, a.DistributeEndTime, a.TotalNum, a.StockNum, a.Status, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save activity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, apperror.Conflict("activity can be edited only before distribution starts", nil)
	}

	s.log.WithFields(logrus.Fields{
		"activity_id": a.ID,
		"total_num":   a.TotalNum,
	}).Info("Activity saved")
	return a, nil
}

// UpdateStatus переводит активности по окну раздачи.
// Сначала открываются начавшиеся, затем закрываются завершившиеся.
func (s *ActivityService) UpdateStatus(ctx context.Context) error {
	now := s.now()
	var opened, expired int64

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE activity
			SET status = $1, updated_at = $2
			WHERE status = $3 AND distribute_start_time <= $2 AND distribute_end_time > $2
		`, models.ActivityStatusDistributing, now, models.ActivityStatusNotStarted)
		if err != nil {
			return fmt.Errorf("failed to open activities: %w", err)
		}
		if opened, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE activity
			SET status = $1, updated_at = $2
			WHERE status IN ($3, $4) AND distribute_end_time <= $2
		`, models.ActivityStatusExpired, now, models.ActivityStatusNotStarted, models.ActivityStatusDistributing)
		if err != nil {
			return fmt.Errorf("failed to expire activities: %w", err)
		}
		if expired, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		return nil
	})
	s.metrics.SweepDone(err)
	if err != nil {
		return err
	}

	if opened > 0 || expired > 0 {
		s.log.WithFields(logrus.Fields{
			"opened":  opened,
			"expired": expired,
		}).Info("Activity statuses updated")
	}
	return nil
}

// Revoke аннулирует активность и её неиспользованные купоны.
// Активность вне статусов NOT_STARTED/DISTRIBUTING остаётся без изменений.
func (s *ActivityService) Revoke(ctx context.Context, id int64) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE activity
			SET status = $1, updated_at = $2
			WHERE id = $3 AND status IN ($4, $5)
		`, models.ActivityStatusVoided, s.now(), id, models.ActivityStatusNotStarted, models.ActivityStatusDistributing)
		if err != nil {
			return fmt.Errorf("failed to revoke activity: %w", err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			s.log.WithField("activity_id", id).Debug("Activity not revocable, skipping")
			return nil
		}

		voided, err := s.coupons.RevokeWithTx(ctx, tx, id)
		if err != nil {
			return err
		}

		s.log.WithFields(logrus.Fields{
			"activity_id":    id,
			"coupons_voided": voided,
		}).Info("Activity revoked")
		return nil
	})
}

// DeductStockWithTx списывает единицу остатка, не допуская отрицательного значения.
func (s *ActivityService) DeductStockWithTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE activity
		SET stock_num = stock_num - 1, updated_at = $1
		WHERE id = $2 AND stock_num > 0
	`, s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to deduct stock: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// IssueCoupon списывает остаток и сохраняет купон одной транзакцией.
// Повторная выдача той же паре (activity, user) откатывает списание и возвращает false.
func (s *ActivityService) IssueCoupon(ctx context.Context, c *models.Coupon) (bool, error) {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.DeductStockWithTx(ctx, tx, c.ActivityID); err != nil {
			return err
		}

		inserted, err := s.coupons.InsertWithTx(ctx, tx, c)
		if err != nil {
			return err
		}
		if !inserted {
			return errDuplicateGrab
		}
		return nil
	})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errDuplicateGrab):
		return false, nil
	case errors.Is(err, ErrInsufficientStock):
		return false, err
	default:
		return false, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}
}
