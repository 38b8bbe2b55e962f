package handlers

import (
	"context"

	"market-system/internal/models"
)

// ----- Activities -----

type ActivityService interface {
	QueryForPage(ctx context.Context, q *models.ActivityPageQuery) (*models.ActivityPage, error)
	QueryByID(ctx context.Context, id int64) (*models.ActivityDetail, error)
	Save(ctx context.Context, req *models.ActivitySaveRequest) (*models.Activity, error)
	Revoke(ctx context.Context, id int64) error
	QueryForListFromCache(ctx context.Context, tab models.TabType) ([]*models.SeizeCouponInfo, error)
}

// ----- Health -----

type DBHealth interface {
	Health() error
}

type RedisHealth interface {
	Health(ctx context.Context) error
}

// KafkaHealthCheck проверяет доступность брокеров
type KafkaHealthCheck func(brokers []string) error
