package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// AvailabilityCache は便ごとの空席数（一覧表示用の目安）をキャッシュする
// 予約の判定には使わない
type AvailabilityCache struct {
	client *redis.Client
}

// NewAvailabilityCache は新しいAvailabilityCacheインスタンスを作成する
func NewAvailabilityCache(client *redis.Client) *AvailabilityCache {
	return &AvailabilityCache{client: client}
}

// Get は便の空席数をキャッシュから取得する
func (c *AvailabilityCache) Get(ctx context.Context, tripID int64) (int, error) {
	val, err := c.client.Get(ctx, availableKey(tripID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	return val, nil
}

// Set は便の空席数をキャッシュに保存する
func (c *AvailabilityCache) Set(ctx context.Context, tripID int64, available int, ttl time.Duration) error {
	if err := c.client.Set(ctx, availableKey(tripID), available, ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate は便のキャッシュを無効化する
func (c *AvailabilityCache) Invalidate(ctx context.Context, tripID int64) error {
	if err := c.client.Del(ctx, availableKey(tripID)).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func availableKey(tripID int64) string {
	return fmt.Sprintf("trips:available:%d", tripID)
}
