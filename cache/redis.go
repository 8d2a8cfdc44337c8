// Package cache keeps recent analysis summaries in Redis so repeated
// analysis queries over the same window do not recompute the aggregation.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"soundsense-ml/models"

	"github.com/go-redis/redis/v8"
)

type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(addr, password string, ttl time.Duration) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		PoolSize:     50,
		MinIdleConns: 10,
		MaxRetries:   3,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return &RedisClient{client: rdb, ttl: ttl}, nil
}

func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// summaryKey namespaces cached summaries by the query shape.
func summaryKey(limit, hoursBack int) string {
	return fmt.Sprintf("analysis:limit=%d:hours=%d", limit, hoursBack)
}

func (rc *RedisClient) SaveSummary(ctx context.Context, limit, hoursBack int, summary *models.AnalysisSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	return rc.client.Set(ctx, summaryKey(limit, hoursBack), data, rc.ttl).Err()
}

// GetSummary returns the cached summary for a query shape, nil on a miss.
func (rc *RedisClient) GetSummary(ctx context.Context, limit, hoursBack int) (*models.AnalysisSummary, error) {
	val, err := rc.client.Get(ctx, summaryKey(limit, hoursBack)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var summary models.AnalysisSummary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, err
	}

	return &summary, nil
}

// Invalidate drops all cached summaries, used after new data is ingested.
func (rc *RedisClient) Invalidate(ctx context.Context) error {
	iter := rc.client.Scan(ctx, 0, "analysis:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := rc.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
