package services

import (
	"sync/atomic"
	"testing"
	"time"

	"market-system/internal/config"
	"market-system/internal/database"
	"market-system/internal/logger"
	"market-system/internal/models"
	"market-system/internal/redis"

	"github.com/DATA-DOG/go-sqlmock"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
)

func newTestLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "debug", Format: "json"})
}

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	return &database.DB{DB: db}, mock
}

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redis.Connect(&config.RedisConfig{Host: "127.0.0.1", Port: mr.Port(), DB: 0}, newTestLogger())
	if err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func testSeizeConfig() *config.SeizeConfig {
	return &config.SeizeConfig{
		QueueNum:          4,
		KeepAliveSeconds:  120,
		StockShards:       10,
		PreHeatWindowDays: 30,
		ActivityListKey:   "ACTIVITY:CACHE:LIST",
		StockKeyPrefix:    "COUPON:RESOURCE:STOCK",
	}
}

// sequenceIDs выдаёт последовательные id начиная с start+1
type sequenceIDs struct {
	next int64
}

func (s *sequenceIDs) NextID() int64 {
	return atomic.AddInt64(&s.next, 1)
}

type activityFixture struct {
	svc  *ActivityService
	mock sqlmock.Sqlmock
	mr   *miniredis.Miniredis
	now  time.Time
}

func newActivityFixture(t *testing.T) *activityFixture {
	t.Helper()
	db, mock := newMockDB(t)
	t.Cleanup(func() { db.Close() })
	cache, mr := newTestRedis(t)

	log := newTestLogger()
	svc := NewActivityService(db, cache, NewCouponService(db, log), &sequenceIDs{next: 1000}, log, testSeizeConfig(), nil)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &activityFixture{svc: svc, mock: mock, mr: mr, now: now}
}

var activityColumnNames = []string{
	"id", "name", "type", "discount_amount", "amount_condition", "discount_rate", "validity_days",
	"distribute_start_time", "distribute_end_time", "total_num", "stock_num", "status", "created_at", "updated_at",
}

func activityRows(activities ...*models.Activity) *sqlmock.Rows {
	rows := sqlmock.NewRows(activityColumnNames)
	for _, a := range activities {
		rows.AddRow(
			a.ID, a.Name, int64(a.Type), a.DiscountAmount.StringFixed(2), a.AmountCondition.StringFixed(2),
			a.DiscountRate, a.ValidityDays, a.DistributeStartTime, a.DistributeEndTime,
			a.TotalNum, a.StockNum, int64(a.Status), a.CreatedAt, a.UpdatedAt,
		)
	}
	return rows
}

func testActivity(id int64, status models.ActivityStatus, start, end time.Time) *models.Activity {
	return &models.Activity{
		ID:                  id,
		Name:                "spring sale",
		Type:                models.ActivityTypeAmountOff,
		DiscountAmount:      decimal.RequireFromString("10"),
		AmountCondition:     decimal.RequireFromString("100"),
		ValidityDays:        7,
		DistributeStartTime: start,
		DistributeEndTime:   end,
		TotalNum:            100,
		StockNum:            100,
		Status:              status,
		CreatedAt:           start.Add(-24 * time.Hour),
		UpdatedAt:           start.Add(-24 * time.Hour),
	}
}
