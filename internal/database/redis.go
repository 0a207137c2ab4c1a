package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"cipherlink-backend/pkg/logger"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// RedisClient wraps the Redis client with health tracking. Pub/sub is the
// event fan-out path; a Redis outage degrades real-time delivery but must
// not take the process down.
type RedisClient struct {
	Client *redis.Client

	healthyMu sync.RWMutex
	healthy   bool
}

var (
	redisHealthGauge prometheus.Gauge
	redisMetricsOnce sync.Once
)

// InitRedisMetrics registers the Redis health gauge. Call once from main
// before metrics are scraped.
func InitRedisMetrics() {
	redisMetricsOnce.Do(func() {
		redisHealthGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redis_healthy",
			Help: "Whether the last Redis health check succeeded (1 = healthy)",
		})
		prometheus.MustRegister(redisHealthGauge)
	})
}

// NewRedisDB creates a new Redis client from config
func NewRedisDB(cfg *RedisConfig) (*RedisClient, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		DialTimeout:  cfg.Timeout,
	})

	return &RedisClient{Client: client, healthy: true}, nil
}

// Close closes the Redis client connection
func (r *RedisClient) Close() {
	r.Client.Close()
}

// IsHealthy reports the result of the most recent health check
func (r *RedisClient) IsHealthy() bool {
	r.healthyMu.RLock()
	defer r.healthyMu.RUnlock()
	return r.healthy
}

func (r *RedisClient) setHealthy(healthy bool) {
	r.healthyMu.Lock()
	changed := r.healthy != healthy
	r.healthy = healthy
	r.healthyMu.Unlock()

	if redisHealthGauge != nil {
		if healthy {
			redisHealthGauge.Set(1)
		} else {
			redisHealthGauge.Set(0)
		}
	}
	if changed && !healthy {
		logger.Warn("redis unavailable, real-time delivery degraded")
	}
}

// HealthCheck pings Redis and updates the health state
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.Client.Ping(healthCtx).Err(); err != nil {
		r.setHealthy(false)
		return fmt.Errorf("redis health check failed: %w", err)
	}

	r.setHealthy(true)
	return nil
}

// StartHealthCheck runs periodic health checks until the context is canceled
func (r *RedisClient) StartHealthCheck(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.HealthCheck(context.Background())
			}
		}
	}()
}
