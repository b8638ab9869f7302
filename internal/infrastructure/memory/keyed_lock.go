package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/lock"
)

// KeyedLocker はキー単位の排他ロック（単一プロセス用）
// 異なるキーは互いにブロックしない。使われなくなったキーは解放時に削除する
type KeyedLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{slots: make(map[string]*slot)}
}

// Acquire はキーのロックを取得する
// ctx に期限があれば期限まで待つ。期限がない場合の待ち時間は maxRetries * retryDelay。
// ttl はプロセス内ロックでは使わない
func (l *KeyedLocker) Acquire(ctx context.Context, key string, _ time.Duration, maxRetries int, retryDelay time.Duration) (lock.Lock, error) {
	s := l.ref(key)

	// 空いていれば即座に取得
	select {
	case s.ch <- struct{}{}:
		return &keyedLock{locker: l, key: key, slot: s}, nil
	default:
	}

	var timeout <-chan time.Time
	if _, ok := ctx.Deadline(); !ok {
		wait := time.Duration(maxRetries) * retryDelay
		if wait <= 0 {
			l.unref(key, s)
			return nil, lock.ErrNotAcquired
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	return l.wait(ctx, key, s, timeout)
}

// acquireUntilDone は ctx が終わるまでロックを待つ。行ロック相当として Store が使う
func (l *KeyedLocker) acquireUntilDone(ctx context.Context, key string) (*keyedLock, error) {
	return l.wait(ctx, key, l.ref(key), nil)
}

func (l *KeyedLocker) wait(ctx context.Context, key string, s *slot, timeout <-chan time.Time) (*keyedLock, error) {
	select {
	case s.ch <- struct{}{}:
		return &keyedLock{locker: l, key: key, slot: s}, nil
	case <-timeout:
		l.unref(key, s)
		return nil, lock.ErrNotAcquired
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ctx.Err()
	}
}

func (l *KeyedLocker) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *KeyedLocker) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// size は保持しているキー数（テスト用）
func (l *KeyedLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

type keyedLock struct {
	locker *KeyedLocker
	key    string
	slot   *slot
	once   sync.Once
}

// Release はロックを解放する。2回目以降の呼び出しは ErrNotOwned を返す
func (k *keyedLock) Release(_ context.Context) error {
	released := false
	k.once.Do(func() {
		<-k.slot.ch
		k.locker.unref(k.key, k.slot)
		released = true
	})
	if !released {
		return lock.ErrNotOwned
	}
	return nil
}

var _ lock.Manager = (*KeyedLocker)(nil)
