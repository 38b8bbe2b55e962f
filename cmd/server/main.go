package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-system/internal/config"
	"market-system/internal/customer"
	"market-system/internal/database"
	"market-system/internal/handlers"
	"market-system/internal/idgen"
	"market-system/internal/kafka"
	"market-system/internal/logger"
	"market-system/internal/metrics"
	"market-system/internal/redis"
	"market-system/internal/scheduler"
	"market-system/internal/services"
	"market-system/internal/workerpool"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Фабричные функции для подключения внешних сервисов (подменяемые в тестах).
var (
	dbConnect        = database.Connect
	redisConnect     = redis.Connect
	newKafkaConsumer = kafka.NewConsumer
	kafkaHealthCheck = handlers.CheckKafkaHealth
	loadConfig       = config.Load
	newLogger        = logger.New
)

// application агрегирует собранные зависимости.
type application struct {
	cfg       *config.Config
	log       *logger.Logger
	db        *database.DB
	redis     *redis.Client
	pool      *workerpool.Pool
	consumer  *kafka.Consumer
	scheduler *scheduler.Scheduler
	server    *http.Server
}

func main() {
	app, err := buildApplication(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build app: %v\n", err)
		os.Exit(1)
	}
	app.log.Info("Starting market system server...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.run(ctx); err != nil {
		app.log.WithError(err).Error("Application terminated with error")
		os.Exit(1)
	}
	app.log.Info("Server exited")
}

// run запускает фоновые задачи и HTTP сервер и ждёт отмены ctx
func (app *application) run(ctx context.Context) error {
	if err := app.consumer.Start(); err != nil {
		return fmt.Errorf("kafka consumer start: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.scheduler.Run(ctx)
	})

	g.Go(func() error {
		app.log.WithField("address", app.server.Addr).Info("HTTP server starting")
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		app.log.Info("Shutting down server...")
		return app.shutdown()
	})

	return g.Wait()
}

// shutdown останавливает приём сообщений, дожидается воркеров и закрывает соединения
func (app *application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.consumer.Stop(); err != nil {
		app.log.WithError(err).Error("Failed to stop kafka consumer")
	}
	app.pool.Close()

	err := app.server.Shutdown(shutdownCtx)
	if err != nil {
		app.log.WithError(err).Error("Server forced to shutdown")
	}
	_ = app.redis.Close()
	_ = app.db.Close()
	return err
}

// buildApplication создает все зависимости (подменяемые в тестах).
func buildApplication(ctx context.Context) (*application, error) {
	cfg := loadConfig()
	log := newLogger(&cfg.Logger)

	db, err := dbConnect(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}

	redisClient, err := redisConnect(&cfg.Redis, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	ids, err := idgen.NewSnowflake(cfg.Snowflake.NodeID)
	if err != nil {
		_ = redisClient.Close()
		_ = db.Close()
		return nil, fmt.Errorf("id generator: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	pool := workerpool.New(workerpool.Config{
		CoreWorkers: 1,
		MaxWorkers:  cfg.Seize.QueueNum,
		KeepAlive:   time.Duration(cfg.Seize.KeepAliveSeconds) * time.Second,
	}, log, m)

	consumer, err := newKafkaConsumer(&cfg.Kafka, pool, log)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		_ = db.Close()
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}

	couponService := services.NewCouponService(db, log)
	activityService := services.NewActivityService(db, redisClient, couponService, ids, log, &cfg.Seize, m)
	processor := services.NewSeizeCouponProcessor(customer.NewClient(&cfg.UserDirectory), activityService, ids, log, m)

	consumer.RegisterHandler(cfg.Kafka.Topics.SeizeSync, processor)

	jobs := scheduler.New(log, cfg.Scheduler.RunOnStart,
		scheduler.Job{
			Name:     "status-sweep",
			Interval: time.Duration(cfg.Scheduler.StatusSweepSeconds) * time.Second,
			Run:      activityService.UpdateStatus,
		},
		scheduler.Job{
			Name:     "pre-heat",
			Interval: time.Duration(cfg.Scheduler.PreHeatSeconds) * time.Second,
			Run:      activityService.PreHeat,
		},
	)

	activityHandler := handlers.NewActivityHandler(activityService, log)
	healthHandler := handlers.NewHealthHandler(db, redisClient, cfg.Kafka.Brokers, kafkaHealthCheck)

	mux := setupRoutes(activityHandler, healthHandler, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	return &application{
		cfg:       cfg,
		log:       log,
		db:        db,
		redis:     redisClient,
		pool:      pool,
		consumer:  consumer,
		scheduler: jobs,
		server:    server,
	}, nil
}

// setupRoutes настраивает маршруты HTTP сервера
func setupRoutes(activityHandler *handlers.ActivityHandler, healthHandler *handlers.HealthHandler, metricsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("/health", corsMiddleware(healthHandler.Health))
	mux.HandleFunc("/health/readiness", corsMiddleware(healthHandler.Readiness))
	mux.HandleFunc("/health/liveness", corsMiddleware(healthHandler.Liveness))

	mux.Handle("/metrics", metricsHandler)

	// Activity endpoints
	mux.HandleFunc("/api/activities", corsMiddleware(activityHandler.Collection))
	mux.HandleFunc("/api/activities/seizing", corsMiddleware(activityHandler.ListSeizing))
	mux.HandleFunc("/api/activities/", corsMiddleware(activityHandler.Item))

	return mux
}

func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}
