package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"market-system/internal/config"
	"market-system/internal/database"
	"market-system/internal/handlers"
	"market-system/internal/logger"
	"market-system/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
)

func stubConfig(t *testing.T) {
	t.Helper()
	prevLoad, prevDB := loadConfig, dbConnect
	t.Cleanup(func() {
		loadConfig, dbConnect = prevLoad, prevDB
	})
	loadConfig = func() *config.Config {
		cfg := config.Load()
		cfg.Logger = config.LoggerConfig{Level: "error", Format: "json"}
		return cfg
	}
}

func TestBuildApplication_DBConnectError(t *testing.T) {
	stubConfig(t)
	dbConnect = func(*config.DatabaseConfig, *logger.Logger) (*database.DB, error) {
		return nil, errors.New("connection refused")
	}

	if _, err := buildApplication(context.Background()); err == nil || !strings.Contains(err.Error(), "db connect") {
		t.Fatalf("expected db connect error, got %v", err)
	}
}

func TestBuildApplication_MigrateErrorClosesDB(t *testing.T) {
	stubConfig(t)
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	mock.ExpectBegin().WillReturnError(errors.New("read-only"))
	mock.ExpectClose()

	dbConnect = func(*config.DatabaseConfig, *logger.Logger) (*database.DB, error) {
		return &database.DB{DB: sqlDB}, nil
	}

	if _, err := buildApplication(context.Background()); err == nil || !strings.Contains(err.Error(), "db migrate") {
		t.Fatalf("expected db migrate error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type routeStubService struct {
	called string
}

func (s *routeStubService) QueryForPage(ctx context.Context, q *models.ActivityPageQuery) (*models.ActivityPage, error) {
	s.called = "page"
	return &models.ActivityPage{}, nil
}

func (s *routeStubService) QueryByID(ctx context.Context, id int64) (*models.ActivityDetail, error) {
	s.called = "detail"
	return &models.ActivityDetail{}, nil
}

func (s *routeStubService) Save(ctx context.Context, req *models.ActivitySaveRequest) (*models.Activity, error) {
	s.called = "save"
	return &models.Activity{}, nil
}

func (s *routeStubService) Revoke(ctx context.Context, id int64) error {
	s.called = "revoke"
	return nil
}

func (s *routeStubService) QueryForListFromCache(ctx context.Context, tab models.TabType) ([]*models.SeizeCouponInfo, error) {
	s.called = "seizing"
	return nil, nil
}

type okHealth struct{}

func (okHealth) Health() error { return nil }

type okRedisHealth struct{}

func (okRedisHealth) Health(context.Context) error { return nil }

func TestSetupRoutes(t *testing.T) {
	svc := &routeStubService{}
	log := logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	mux := setupRoutes(
		handlers.NewActivityHandler(svc, log),
		handlers.NewHealthHandler(okHealth{}, okRedisHealth{}, []string{"kafka:9092"}, func([]string) error { return nil }),
		metricsHandler,
	)

	cases := []struct {
		method string
		path   string
		body   string
		called string
		code   int
	}{
		{method: http.MethodGet, path: "/api/activities", called: "page", code: http.StatusOK},
		{method: http.MethodPost, path: "/api/activities", body: `{}`, called: "save", code: http.StatusCreated},
		{method: http.MethodGet, path: "/api/activities/1001", called: "detail", code: http.StatusOK},
		{method: http.MethodPost, path: "/api/activities/1001/revoke", called: "revoke", code: http.StatusOK},
		{method: http.MethodGet, path: "/api/activities/seizing?tab=2", called: "seizing", code: http.StatusOK},
		{method: http.MethodGet, path: "/health/liveness", code: http.StatusOK},
		{method: http.MethodGet, path: "/metrics", code: http.StatusTeapot},
		{method: http.MethodOptions, path: "/api/activities", code: http.StatusOK},
	}

	for _, tc := range cases {
		svc.called = ""
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body)))
		if rr.Code != tc.code {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.code, rr.Code)
		}
		if svc.called != tc.called {
			t.Fatalf("%s %s: expected %q call, got %q", tc.method, tc.path, tc.called, svc.called)
		}
	}
}
