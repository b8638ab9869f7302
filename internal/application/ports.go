package application

import (
	"context"
	"time"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/reservation"
)

// EventPublisher は予約イベントを外部へ配信する
type EventPublisher interface {
	Publish(ctx context.Context, event reservation.Event) error
}

// AvailabilityCache は一覧表示用の空席数キャッシュ
// 予約の可否判定には使わない
type AvailabilityCache interface {
	Get(ctx context.Context, tripID int64) (int, error)
	Set(ctx context.Context, tripID int64, available int, ttl time.Duration) error
	Invalidate(ctx context.Context, tripID int64) error
}

// Caller は操作を行う呼び出し元
type Caller struct {
	UserID  int64
	IsAdmin bool
}
