package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/pkg/logger"
)

// AvailabilityRefresher は全便の空席数キャッシュを更新する
type AvailabilityRefresher interface {
	RefreshAvailability(ctx context.Context) (int, error)
}

// AvailabilityWarmer は一覧表示用の空席数キャッシュを定期的に温めるワーカー
// 開始直後に1回、その後は interval ごとに更新する
type AvailabilityWarmer struct {
	refresher AvailabilityRefresher
	interval  time.Duration
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
}

// NewAvailabilityWarmer は新しいワーカーを作成
func NewAvailabilityWarmer(r AvailabilityRefresher, interval time.Duration) *AvailabilityWarmer {
	return &AvailabilityWarmer{
		refresher: r,
		interval:  interval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start はワーカーを開始する。ctx のキャンセルか Stop まで戻らない
func (w *AvailabilityWarmer) Start(ctx context.Context) {
	logger.Info("空席キャッシュ更新ワーカー開始", zap.Duration("interval", w.interval))

	defer close(w.doneCh)

	w.refresh(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("空席キャッシュ更新ワーカー停止（コンテキストキャンセル）")
			return
		case <-w.stopCh:
			logger.Info("空席キャッシュ更新ワーカー停止（シグナル受信）")
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

// Stop はワーカーを停止し、実行中の更新の完了を待つ
func (w *AvailabilityWarmer) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

// refresh は1回分の更新を interval 以内で行う
func (w *AvailabilityWarmer) refresh(ctx context.Context) {
	log := logger.Get()

	ctx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	start := time.Now()
	count, err := w.refresher.RefreshAvailability(ctx)
	if err != nil {
		log.Error("空席キャッシュの更新失敗", zap.Int("refreshed", count), zap.Error(err))
		return
	}
	log.Debug("空席キャッシュを更新", zap.Int("trips", count), zap.Duration("elapsed", time.Since(start)))
}
