package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ppg-vitals/internal/measurement"
)

// RedisCache хранилище истории измерений и счётчиков
type RedisCache struct {
	client   *redis.Client
	ttl      time.Duration
	capacity int
}

// NewRedisCache подключается к Redis. История устройства ограничена capacity записями.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration, capacity int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
	})

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if capacity < 1 {
		capacity = 1
	}
	return &RedisCache{
		client:   client,
		ttl:      ttl,
		capacity: capacity,
	}, nil
}

func historyKey(deviceID string) string {
	return fmt.Sprintf("history:%s", deviceID)
}

// StoreMeasurement добавляет измерение в начало истории устройства и обрезает её
func (r *RedisCache) StoreMeasurement(ctx context.Context, m measurement.Measurement) error {
	jsonData, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal measurement: %w", err)
	}

	key := historyKey(m.DeviceID)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, jsonData)
	pipe.LTrim(ctx, key, 0, int64(r.capacity-1))
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store measurement: %w", err)
	}
	return nil
}

// GetHistory последние измерения устройства, новые первыми
func (r *RedisCache) GetHistory(ctx context.Context, deviceID string, limit int) ([]measurement.Measurement, error) {
	if limit < 1 || limit > r.capacity {
		limit = r.capacity
	}

	raw, err := r.client.LRange(ctx, historyKey(deviceID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	out := make([]measurement.Measurement, 0, len(raw))
	for _, item := range raw {
		var m measurement.Measurement
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal measurement: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// IncrementCounter увеличивает счетчик
func (r *RedisCache) IncrementCounter(ctx context.Context, key string) error {
	return r.client.Incr(ctx, key).Err()
}

// GetCounter получает значение счетчика
func (r *RedisCache) GetCounter(ctx context.Context, key string) (int64, error) {
	val, err := r.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}

// Close закрывает соединение с Redis
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Ping проверяет доступность Redis
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// GetStats возвращает статистику пула соединений
func (r *RedisCache) GetStats() map[string]interface{} {
	stats := r.client.PoolStats()

	return map[string]interface{}{
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}
}
