package lock

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var (
	ErrNotAcquired = errors.New("ロックを取得できませんでした")
	ErrNotOwned    = errors.New("ロックの所有者ではありません")
)

// Lock は取得済みのロック
type Lock interface {
	// Release はロックを解放する
	Release(ctx context.Context) error
}

// Manager はキー単位の排他ロックを提供する
// ctx に期限があれば期限まで待つ。期限がなければ maxRetries * retryDelay までで諦める
type Manager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (Lock, error)
}

// TripKey は便単位のロックキーを返す
func TripKey(tripID int64) string {
	return "trip:" + strconv.FormatInt(tripID, 10)
}
