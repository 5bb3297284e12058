package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/instabids/smartscope/internal/storage/models"
	"github.com/instabids/smartscope/pkg/logger"
)

const (
	accuracyMetricsKey = "smartscope:accuracy_metrics"
	budgetStatusKey    = "smartscope:budget_status"
)

// Client is a snapshot cache for aggregate read endpoints. Vision model
// responses are never cached here; every analysis run invokes the model.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis cache initialized",
		zap.String("host", host),
		zap.Int("port", port),
		zap.Duration("ttl", ttl),
	)

	return &Client{rdb: rdb, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) GetAccuracyMetrics(ctx context.Context) (*models.AccuracyMetrics, bool) {
	var metrics models.AccuracyMetrics
	if !c.get(ctx, accuracyMetricsKey, &metrics) {
		return nil, false
	}
	return &metrics, true
}

func (c *Client) SetAccuracyMetrics(ctx context.Context, metrics *models.AccuracyMetrics) {
	c.set(ctx, accuracyMetricsKey, metrics)
}

func (c *Client) GetBudgetStatus(ctx context.Context) (*models.BudgetStatus, bool) {
	var status models.BudgetStatus
	if !c.get(ctx, budgetStatusKey, &status) {
		return nil, false
	}
	return &status, true
}

func (c *Client) SetBudgetStatus(ctx context.Context, status *models.BudgetStatus) {
	c.set(ctx, budgetStatusKey, status)
}

// InvalidateAggregates drops cached snapshots after a write that changes them.
func (c *Client) InvalidateAggregates(ctx context.Context) {
	if err := c.rdb.Del(ctx, accuracyMetricsKey, budgetStatusKey).Err(); err != nil {
		logger.Warn("Failed to invalidate cached aggregates", zap.Error(err))
	}
}

func (c *Client) get(ctx context.Context, key string, dest interface{}) bool {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		logger.Warn("Cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *Client) set(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}
