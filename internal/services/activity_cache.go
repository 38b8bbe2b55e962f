package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"market-system/internal/models"
	"market-system/internal/redis"

	"github.com/sirupsen/logrus"
)

// PreHeat переносит ближайшие активности и их остатки в кеш.
// Счётчик ещё не начавшейся активности перезаписывается общим количеством,
// счётчик идущей раздачи пишется только если его нет.
func (s *ActivityService) PreHeat(ctx context.Context) error {
	written, err := s.preHeat(ctx)
	s.metrics.PreHeatDone(written, err)
	return err
}

func (s *ActivityService) preHeat(ctx context.Context) (int, error) {
	now := s.now()
	horizon := now.AddDate(0, 0, s.cfg.PreHeatWindowDays)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+activityColumns+` FROM activity
		WHERE distribute_start_time <= $1 AND status IN ($2, $3)
		ORDER BY distribute_start_time ASC`,
		horizon, models.ActivityStatusNotStarted, models.ActivityStatusDistributing,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to load activities for pre-heat: %w", err)
	}
	defer rows.Close()

	var activities []*models.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return 0, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate activities: %w", err)
	}

	infos := make([]*models.SeizeCouponInfo, 0, len(activities))
	for _, a := range activities {
		if err := s.writeStock(ctx, a, a.EffectiveStatus(now)); err != nil {
			return 0, err
		}
		infos = append(infos, models.NewSeizeCouponInfo(a))
	}

	if err := s.cache.Set(ctx, s.cfg.ActivityListKey, infos, 0); err != nil {
		return 0, fmt.Errorf("failed to cache activity list: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"activities": len(infos),
		"horizon":    horizon.Format(time.RFC3339),
	}).Debug("Activity cache pre-heated")
	return len(infos), nil
}

func (s *ActivityService) writeStock(ctx context.Context, a *models.Activity, status models.ActivityStatus) error {
	key := redis.StockKey(s.cfg.StockKeyPrefix, a.ID, s.cfg.StockShards)
	field := strconv.FormatInt(a.ID, 10)

	switch status {
	case models.ActivityStatusNotStarted:
		if err := s.cache.HSet(ctx, key, field, a.TotalNum); err != nil {
			return fmt.Errorf("failed to cache stock of activity %d: %w", a.ID, err)
		}
	case models.ActivityStatusDistributing:
		if _, err := s.cache.HSetNX(ctx, key, field, a.TotalNum); err != nil {
			return fmt.Errorf("failed to cache stock of activity %d: %w", a.ID, err)
		}
	}
	return nil
}

// QueryForListFromCache возвращает витрину для вкладки из кеша.
// Пустой кеш даёт пустой список без ошибки.
func (s *ActivityService) QueryForListFromCache(ctx context.Context, tab models.TabType) ([]*models.SeizeCouponInfo, error) {
	var cached []*models.SeizeCouponInfo
	if err := s.cache.Get(ctx, s.cfg.ActivityListKey, &cached); err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return []*models.SeizeCouponInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read activity list: %w", err)
	}

	want := models.ActivityStatusNotStarted
	if tab == models.TabSeizing {
		want = models.ActivityStatusDistributing
	}

	now := s.now()
	result := make([]*models.SeizeCouponInfo, 0, len(cached))
	for _, item := range cached {
		if item == nil {
			continue
		}
		if models.EffectiveStatus(item.DistributeStartTime, item.DistributeEndTime, item.Status, now) != want {
			continue
		}
		item.Status = want
		item.RemainNum = item.TotalNum
		result = append(result, item)
	}
	return result, nil
}
