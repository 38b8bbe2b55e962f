package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"market-system/internal/config"
	"market-system/internal/logger"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss возвращается, когда ключа нет в кеше
var ErrCacheMiss = errors.New("cache miss")

// Client представляет клиент Redis
type Client struct {
	client *redis.Client
	log    *logger.Logger
}

// Connect создает подключение к Redis
func Connect(cfg *config.RedisConfig, log *logger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Проверка подключения
	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Successfully connected to Redis")

	return &Client{
		client: rdb,
		log:    log,
	}, nil
}

// Close закрывает подключение к Redis
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Set сохраняет значение в JSON. ttl == 0 означает ключ без срока жизни.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	c.log.WithField("key", key).Debug("Value set in Redis")
	return nil
}

// Get читает JSON-значение в dest. Отсутствующий ключ даёт ErrCacheMiss.
func (c *Client) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("key %s: %w", key, ErrCacheMiss)
		}
		return fmt.Errorf("failed to get key %s: %w", key, err)
	}

	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("failed to unmarshal value for key %s: %w", key, err)
	}

	c.log.WithField("key", key).Debug("Value retrieved from Redis")
	return nil
}

// HSet безусловно записывает поле хеша
func (c *Client) HSet(ctx context.Context, key, field string, value interface{}) error {
	if err := c.client.HSet(ctx, key, field, value).Err(); err != nil {
		return fmt.Errorf("failed to hset %s/%s: %w", key, field, err)
	}
	return nil
}

// HSetNX записывает поле хеша, только если его ещё нет.
// Возвращает true, если значение было записано.
func (c *Client) HSetNX(ctx context.Context, key, field string, value interface{}) (bool, error) {
	ok, err := c.client.HSetNX(ctx, key, field, value).Result()
	if err != nil {
		return false, fmt.Errorf("failed to hsetnx %s/%s: %w", key, field, err)
	}
	return ok, nil
}

// Health проверяет состояние Redis
func (c *Client) Health(ctx context.Context) error {
	_, err := c.client.Ping(ctx).Result()
	return err
}

// StockKey возвращает ключ шардированного хеша остатков для активности
func StockKey(prefix string, activityID int64, shards int) string {
	if shards <= 0 {
		shards = 1
	}
	shard := activityID % int64(shards)
	if shard < 0 {
		shard = -shard
	}
	return fmt.Sprintf("%s:%d", prefix, shard)
}
