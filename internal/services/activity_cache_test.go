package services

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"market-system/internal/metrics"
	"market-system/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var preHeatQuery = regexp.QuoteMeta("WHERE distribute_start_time <= $1 AND status IN ($2, $3)")

func expectPreHeat(f *activityFixture, activities ...*models.Activity) {
	f.mock.ExpectQuery(preHeatQuery).
		WithArgs(f.now.AddDate(0, 0, 30), models.ActivityStatusNotStarted, models.ActivityStatusDistributing).
		WillReturnRows(activityRows(activities...))
}

func TestPreHeat_StockCounters(t *testing.T) {
	f := newActivityFixture(t)

	upcoming := testActivity(11, models.ActivityStatusNotStarted, f.now.Add(24*time.Hour), f.now.Add(48*time.Hour))
	opened := testActivity(12, models.ActivityStatusNotStarted, f.now.Add(-time.Hour), f.now.Add(time.Hour))
	running := testActivity(13, models.ActivityStatusDistributing, f.now.Add(-2*time.Hour), f.now.Add(time.Hour))
	ended := testActivity(14, models.ActivityStatusDistributing, f.now.Add(-3*time.Hour), f.now.Add(-time.Hour))

	f.mr.HSet("COUPON:RESOURCE:STOCK:1", "11", "3")
	f.mr.HSet("COUPON:RESOURCE:STOCK:2", "12", "5")

	expectPreHeat(f, ended, running, opened, upcoming)

	if err := f.svc.PreHeat(context.Background()); err != nil {
		t.Fatalf("pre-heat failed: %v", err)
	}

	if got := f.mr.HGet("COUPON:RESOURCE:STOCK:1", "11"); got != "100" {
		t.Fatalf("upcoming counter must be overwritten with total, got %q", got)
	}
	if got := f.mr.HGet("COUPON:RESOURCE:STOCK:2", "12"); got != "5" {
		t.Fatalf("in-flight counter must not be clobbered, got %q", got)
	}
	if got := f.mr.HGet("COUPON:RESOURCE:STOCK:3", "13"); got != "100" {
		t.Fatalf("missing in-flight counter must be created, got %q", got)
	}
	if f.mr.Exists("COUPON:RESOURCE:STOCK:4") {
		t.Fatalf("expired activity must not get a counter")
	}

	raw, err := f.mr.Get("ACTIVITY:CACHE:LIST")
	if err != nil {
		t.Fatalf("listing blob missing: %v", err)
	}
	var cached []models.SeizeCouponInfo
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		t.Fatalf("bad listing blob: %v", err)
	}
	if len(cached) != 4 || cached[0].ID != 14 || cached[3].ID != 11 {
		t.Fatalf("listing must keep query order, got %+v", cached)
	}

	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPreHeat_Idempotent(t *testing.T) {
	f := newActivityFixture(t)

	upcoming := testActivity(21, models.ActivityStatusNotStarted, f.now.Add(time.Hour), f.now.Add(2*time.Hour))
	running := testActivity(22, models.ActivityStatusDistributing, f.now.Add(-time.Hour), f.now.Add(time.Hour))

	expectPreHeat(f, running, upcoming)
	if err := f.svc.PreHeat(context.Background()); err != nil {
		t.Fatalf("first pre-heat failed: %v", err)
	}
	firstBlob, _ := f.mr.Get("ACTIVITY:CACHE:LIST")
	firstKeys := f.mr.Keys()

	expectPreHeat(f, running, upcoming)
	if err := f.svc.PreHeat(context.Background()); err != nil {
		t.Fatalf("second pre-heat failed: %v", err)
	}
	secondBlob, _ := f.mr.Get("ACTIVITY:CACHE:LIST")

	if firstBlob != secondBlob {
		t.Fatalf("listing snapshot changed between runs:\n%s\n%s", firstBlob, secondBlob)
	}
	if len(f.mr.Keys()) != len(firstKeys) {
		t.Fatalf("unexpected keys after second run: %v", f.mr.Keys())
	}
	if f.mr.HGet("COUPON:RESOURCE:STOCK:1", "21") != "100" || f.mr.HGet("COUPON:RESOURCE:STOCK:2", "22") != "100" {
		t.Fatalf("stock counters changed between runs")
	}
}

func TestPreHeat_EmptyThenListing(t *testing.T) {
	f := newActivityFixture(t)

	expectPreHeat(f)
	if err := f.svc.PreHeat(context.Background()); err != nil {
		t.Fatalf("pre-heat failed: %v", err)
	}
	raw, err := f.mr.Get("ACTIVITY:CACHE:LIST")
	if err != nil || raw != "[]" {
		t.Fatalf("expected empty list blob, got %q err=%v", raw, err)
	}

	list, err := f.svc.QueryForListFromCache(context.Background(), models.TabSeizing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %+v", list)
	}
}

func TestPreHeat_QueryFailure(t *testing.T) {
	f := newActivityFixture(t)
	reg := prometheus.NewRegistry()
	f.svc.metrics = metrics.New(reg)

	f.mock.ExpectQuery(preHeatQuery).WillReturnError(errors.New("db down"))

	if err := f.svc.PreHeat(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if f.mr.Exists("ACTIVITY:CACHE:LIST") {
		t.Fatalf("failed pre-heat must not write the listing")
	}

	expected := `
		# HELP market_cache_preheat_runs_total Cache pre-heat runs by result.
		# TYPE market_cache_preheat_runs_total counter
		market_cache_preheat_runs_total{result="error"} 1
	`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "market_cache_preheat_runs_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestPreHeat_RedisFailure(t *testing.T) {
	f := newActivityFixture(t)
	expectPreHeat(f, testActivity(1, models.ActivityStatusNotStarted, f.now.Add(time.Hour), f.now.Add(2*time.Hour)))
	f.mr.Close()

	if err := f.svc.PreHeat(context.Background()); err == nil {
		t.Fatalf("expected redis error")
	}
}

func TestQueryForListFromCache_Miss(t *testing.T) {
	f := newActivityFixture(t)

	list, err := f.svc.QueryForListFromCache(context.Background(), models.TabUpcoming)
	if err != nil {
		t.Fatalf("cache miss must not be an error, got %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %+v", list)
	}
}

func TestQueryForListFromCache_FiltersByTab(t *testing.T) {
	f := newActivityFixture(t)

	snapshot := []*models.SeizeCouponInfo{
		// снимок сделан до открытия окна: сохранённый статус ещё NOT_STARTED
		models.NewSeizeCouponInfo(testActivity(1, models.ActivityStatusNotStarted, f.now.Add(-time.Minute), f.now.Add(time.Hour))),
		models.NewSeizeCouponInfo(testActivity(2, models.ActivityStatusDistributing, f.now.Add(-time.Hour), f.now.Add(time.Hour))),
		models.NewSeizeCouponInfo(testActivity(3, models.ActivityStatusNotStarted, f.now.Add(time.Hour), f.now.Add(2*time.Hour))),
		models.NewSeizeCouponInfo(testActivity(4, models.ActivityStatusDistributing, f.now.Add(-2*time.Hour), f.now.Add(-time.Hour))),
		models.NewSeizeCouponInfo(testActivity(5, models.ActivityStatusVoided, f.now.Add(-time.Hour), f.now.Add(time.Hour))),
	}
	if err := f.svc.cache.Set(context.Background(), "ACTIVITY:CACHE:LIST", snapshot, 0); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	seizing, err := f.svc.QueryForListFromCache(context.Background(), models.TabSeizing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seizing) != 2 || seizing[0].ID != 1 || seizing[1].ID != 2 {
		t.Fatalf("unexpected seizing tab: %+v", seizing)
	}
	for _, item := range seizing {
		if item.Status != models.ActivityStatusDistributing || item.RemainNum != item.TotalNum {
			t.Fatalf("seizing entry not normalized: %+v", item)
		}
	}

	upcoming, err := f.svc.QueryForListFromCache(context.Background(), models.TabUpcoming)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(upcoming) != 1 || upcoming[0].ID != 3 || upcoming[0].Status != models.ActivityStatusNotStarted {
		t.Fatalf("unexpected upcoming tab: %+v", upcoming)
	}
	if upcoming[0].RemainNum != 100 {
		t.Fatalf("remain must equal total, got %d", upcoming[0].RemainNum)
	}
}

func TestQueryForListFromCache_BrokenBlob(t *testing.T) {
	f := newActivityFixture(t)
	if err := f.mr.Set("ACTIVITY:CACHE:LIST", "not-json"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if _, err := f.svc.QueryForListFromCache(context.Background(), models.TabSeizing); err == nil {
		t.Fatalf("expected decode error")
	}
}
