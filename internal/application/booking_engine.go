package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/lock"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/trip"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/pkg/metrics"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/pkg/tracing"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100

	// コミット後の通知処理（キャッシュ無効化・イベント発行）の上限時間
	notifyTimeout = 2 * time.Second
)

// EngineConfig は予約エンジンの待ち時間と再試行の設定
type EngineConfig struct {
	// LockTimeout はロック待ちを含む1回の書き込み処理全体の上限
	LockTimeout time.Duration
	// LockTTL は分散ロックの有効期限。LockTimeout より長くする
	LockTTL time.Duration
	// MaxRetries はロック取得と競合時の再試行回数
	MaxRetries int
	// RetryDelay は再試行の間隔
	RetryDelay time.Duration
}

// DefaultEngineConfig はデフォルトの設定を返す
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		LockTimeout: 2 * time.Second,
		LockTTL:     10 * time.Second,
		MaxRetries:  3,
		RetryDelay:  50 * time.Millisecond,
	}
}

// BookingEngine は便の定員を超えないように予約の受付とキャンセルを行う
//
// 同じ便への書き込みは便単位のロック（lock.Manager）とストアの行ロックで直列化され、
// 空席の確認と予約の記録は1つのトランザクション内で行われる。
// 異なる便の処理は互いにブロックしない。
type BookingEngine struct {
	txManager    transaction.Manager
	trips        trip.Repository
	reservations reservation.Repository
	locks        lock.Manager
	cache        AvailabilityCache
	publisher    EventPublisher
	metrics      *metrics.Metrics
	cfg          EngineConfig
}

// EngineOption は BookingEngine の任意の依存を設定する
type EngineOption func(*BookingEngine)

func WithAvailabilityCache(c AvailabilityCache) EngineOption {
	return func(e *BookingEngine) { e.cache = c }
}

func WithEventPublisher(p EventPublisher) EngineOption {
	return func(e *BookingEngine) { e.publisher = p }
}

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *BookingEngine) { e.metrics = m }
}

// NewBookingEngine は新しい BookingEngine を作成する
// locks が nil の場合は trip.Repository.LockCapacity の行ロックのみで直列化する。
// ストアの LockCapacity は同じ便の他トランザクションをコミットまで待たせる実装でなければならない
func NewBookingEngine(txm transaction.Manager, trips trip.Repository, reservations reservation.Repository, locks lock.Manager, cfg EngineConfig, opts ...EngineOption) *BookingEngine {
	e := &BookingEngine{
		txManager:    txm,
		trips:        trips,
		reservations: reservations,
		locks:        locks,
		cfg:          cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReserveInput は予約リクエスト
type ReserveInput struct {
	TripID int64
	UserID int64
	Seats  int
}

// Reserve は便の座席を予約する
//
// 空席数ちょうどの要求は受け付ける。拒否した場合は台帳に何も書き込まない。
// 返り値のエラー:
//   - trip.ErrTripNotFound
//   - reservation.ErrInvalidSeatCount などのリクエスト不正
//   - *reservation.InsufficientCapacityError（判定時点の空席数を持つ）
//   - reservation.ErrBusy（待ち時間の上限に達した。再試行してよい）
func (e *BookingEngine) Reserve(ctx context.Context, input ReserveInput) (*reservation.Reservation, error) {
	ctx, span := tracing.Tracer().Start(ctx, "BookingEngine.Reserve", trace.WithAttributes(
		attribute.Int64("trip.id", input.TripID),
		attribute.Int64("user.id", input.UserID),
		attribute.Int("seats", input.Seats),
	))
	defer span.End()

	res, err := e.reserve(ctx, input)
	e.recordReservation(ctx, span, input, res, err)
	return res, err
}

func (e *BookingEngine) reserve(ctx context.Context, input ReserveInput) (*reservation.Reservation, error) {
	// 正でない便IDの便は存在しない。AvailableSeats と同じく NotFound として返す
	if input.TripID <= 0 {
		return nil, trip.ErrTripNotFound
	}
	if input.UserID <= 0 {
		return nil, reservation.ErrUserIDRequired
	}
	if input.Seats <= 0 {
		return nil, reservation.ErrInvalidSeatCount
	}

	var res *reservation.Reservation
	err := e.serialize(ctx, input.TripID, func(ctx context.Context) error {
		r, err := e.reserveOnce(ctx, input)
		res = r
		return err
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, reservation.EventCreated, res)
	return res, nil
}

// reserveOnce は空席の確認と予約の記録を1つのトランザクションで行う
func (e *BookingEngine) reserveOnce(ctx context.Context, input ReserveInput) (*reservation.Reservation, error) {
	tx, err := e.txManager.Begin(ctx, transaction.Options{})
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	capacity, err := e.trips.LockCapacity(ctx, tx, input.TripID)
	if err != nil {
		return nil, err
	}
	reserved, err := e.reservations.SumActiveSeats(ctx, tx, input.TripID)
	if err != nil {
		return nil, err
	}

	available := remaining(capacity, reserved)
	if input.Seats > available {
		return nil, &reservation.InsufficientCapacityError{Available: available, Requested: input.Seats}
	}

	res := reservation.NewReservation(input.TripID, input.UserID, input.Seats)
	if err := e.reservations.Insert(ctx, tx, res); err != nil {
		return nil, fmt.Errorf("予約の記録に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}
	return res, nil
}

// Cancel は予約をキャンセルし、座席を便に戻す
//
// 予約者本人または管理者のみ実行できる。キャンセル済みの予約に対しては何もせず成功する。
func (e *BookingEngine) Cancel(ctx context.Context, reservationID int64, caller Caller) error {
	ctx, span := tracing.Tracer().Start(ctx, "BookingEngine.Cancel", trace.WithAttributes(
		attribute.Int64("reservation.id", reservationID),
		attribute.Int64("caller.id", caller.UserID),
		attribute.Bool("caller.admin", caller.IsAdmin),
	))
	defer span.End()

	res, changed, err := e.cancel(ctx, reservationID, caller)
	e.recordCancellation(ctx, span, reservationID, res, changed, err)
	return err
}

func (e *BookingEngine) cancel(ctx context.Context, reservationID int64, caller Caller) (*reservation.Reservation, bool, error) {
	if reservationID <= 0 {
		return nil, false, reservation.ErrReservationNotFound
	}
	if caller.UserID <= 0 && !caller.IsAdmin {
		return nil, false, reservation.ErrUserIDRequired
	}

	current, err := e.reservations.GetByID(ctx, nil, reservationID)
	if err != nil {
		return nil, false, err
	}
	if !caller.IsAdmin && !current.IsOwnedBy(caller.UserID) {
		return current, false, reservation.ErrForbidden
	}
	// キャンセルは終端状態なので、ロックを取らずに成功を返してよい
	if !current.IsActive() {
		return current, false, nil
	}

	var changed bool
	err = e.serialize(ctx, current.TripID, func(ctx context.Context) error {
		c, err := e.cancelOnce(ctx, current.TripID, reservationID)
		changed = c
		return err
	})
	if err != nil {
		return current, false, err
	}

	if changed {
		current.Cancel()
		e.afterCommit(ctx, reservation.EventCancelled, current)
	}
	return current, changed, nil
}

// cancelOnce は便をロックした上で予約を読み直し、有効な場合のみキャンセルする
func (e *BookingEngine) cancelOnce(ctx context.Context, tripID, reservationID int64) (bool, error) {
	tx, err := e.txManager.Begin(ctx, transaction.Options{})
	if err != nil {
		return false, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if _, err := e.trips.LockCapacity(ctx, tx, tripID); err != nil {
		return false, err
	}
	res, err := e.reservations.GetByID(ctx, tx, reservationID)
	if err != nil {
		return false, err
	}
	if !res.Cancel() {
		return false, nil
	}
	if err := e.reservations.SetStatus(ctx, tx, reservationID, res.Status); err != nil {
		return false, fmt.Errorf("予約の更新に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("コミットに失敗: %w", err)
	}
	return true, nil
}

// AvailableSeats は便の現在の空席数を返す
// 定員と予約済み座席数は同じスナップショットから読み取る
func (e *BookingEngine) AvailableSeats(ctx context.Context, tripID int64) (int, error) {
	ctx, span := tracing.Tracer().Start(ctx, "BookingEngine.AvailableSeats", trace.WithAttributes(
		attribute.Int64("trip.id", tripID),
	))
	defer span.End()

	if tripID <= 0 {
		return 0, trip.ErrTripNotFound
	}

	tx, err := e.txManager.Begin(ctx, transaction.Options{ReadOnly: true})
	if err != nil {
		return 0, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	capacity, err := e.trips.GetCapacity(ctx, tx, tripID)
	if err != nil {
		return 0, err
	}
	reserved, err := e.reservations.SumActiveSeats(ctx, tx, tripID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	available := remaining(capacity, reserved)
	span.SetAttributes(attribute.Int("available", available))
	return available, nil
}

// GetReservation は予約を取得する。予約者本人または管理者のみ参照できる
func (e *BookingEngine) GetReservation(ctx context.Context, reservationID int64, caller Caller) (*reservation.Reservation, error) {
	if reservationID <= 0 {
		return nil, reservation.ErrReservationNotFound
	}
	res, err := e.reservations.GetByID(ctx, nil, reservationID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin && !res.IsOwnedBy(caller.UserID) {
		return nil, reservation.ErrForbidden
	}
	return res, nil
}

// ListUserReservations はユーザーの予約一覧を新しい順に返す
func (e *BookingEngine) ListUserReservations(ctx context.Context, userID int64, limit, offset int) ([]*reservation.Detail, error) {
	if userID <= 0 {
		return nil, reservation.ErrUserIDRequired
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return e.reservations.ListByUser(ctx, userID, limit, offset)
}

// serialize は便のロックを取得し、処理全体を LockTimeout で制限して fn を実行する
// ストアが競合を報告した場合（ErrBusy）は MaxRetries 回まで再試行する
func (e *BookingEngine) serialize(parent context.Context, tripID int64, fn func(ctx context.Context) error) error {
	ctx := parent
	if e.cfg.LockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, e.cfg.LockTimeout)
		defer cancel()
	}

	err := e.withTripLock(ctx, tripID, func() error {
		return e.retry(ctx, fn)
	})
	if err == nil {
		return nil
	}
	// 呼び出し元ではなくエンジン側の期限で中断された場合は Busy として返す
	if parent.Err() == nil && ctx.Err() != nil && !isClassified(err) {
		return fmt.Errorf("%w: %v", reservation.ErrBusy, err)
	}
	return err
}

func (e *BookingEngine) withTripLock(ctx context.Context, tripID int64, fn func() error) error {
	if e.locks == nil {
		return fn()
	}

	start := time.Now()
	held, err := e.locks.Acquire(ctx, lock.TripKey(tripID), e.cfg.LockTTL, e.cfg.MaxRetries, e.cfg.RetryDelay)
	e.observeLockWait(start, err)
	if err != nil {
		switch {
		case errors.Is(err, lock.ErrNotAcquired):
			return fmt.Errorf("%w: %v", reservation.ErrBusy, err)
		case ctx.Err() != nil:
			return err
		default:
			logger.FromContext(ctx).Error("便ロックの取得に失敗しました", zap.Int64("trip_id", tripID), zap.Error(err))
			return fmt.Errorf("%w: %v", reservation.ErrBusy, err)
		}
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := held.Release(releaseCtx); err != nil {
			logger.FromContext(ctx).Warn("便ロックの解放に失敗しました", zap.Int64("trip_id", tripID), zap.Error(err))
		}
	}()

	return fn()
}

func (e *BookingEngine) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !errors.Is(err, reservation.ErrBusy) || attempt >= e.cfg.MaxRetries {
			return err
		}
		logger.FromContext(ctx).Debug("競合を検出したため再試行します", zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return err
		case <-time.After(e.cfg.RetryDelay):
		}
	}
}

// afterCommit はコミット済みの変更をキャッシュとイベント購読者に通知する
// 失敗してもコミット済みの結果は変わらないため、ログのみ残す
func (e *BookingEngine) afterCommit(ctx context.Context, eventType reservation.EventType, res *reservation.Reservation) {
	if e.cache == nil && e.publisher == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	log := logger.FromContext(ctx)
	if e.cache != nil {
		if err := e.cache.Invalidate(notifyCtx, res.TripID); err != nil {
			log.Warn("空席キャッシュの無効化に失敗しました", zap.Int64("trip_id", res.TripID), zap.Error(err))
		}
	}
	if e.publisher != nil {
		if err := e.publisher.Publish(notifyCtx, reservation.NewEvent(eventType, res)); err != nil {
			log.Warn("予約イベントの発行に失敗しました",
				zap.String("type", string(eventType)),
				zap.Int64("reservation_id", res.ID),
				zap.Error(err),
			)
		}
	}
}

func (e *BookingEngine) observeLockWait(start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	status := "acquired"
	if err != nil {
		status = "failed"
	}
	e.metrics.TripLockWait.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

func (e *BookingEngine) recordReservation(ctx context.Context, span trace.Span, input ReserveInput, res *reservation.Reservation, err error) {
	outcome := outcomeOf(err, metrics.OutcomeAdmitted)
	span.SetAttributes(attribute.String("outcome", outcome))
	if e.metrics != nil {
		e.metrics.ReservationsTotal.WithLabelValues(outcome).Inc()
		if err == nil {
			e.metrics.ReservedSeatsTotal.Add(float64(res.SeatCount))
		}
	}

	log := logger.FromContext(ctx).With(
		zap.Int64("trip_id", input.TripID),
		zap.Int64("user_id", input.UserID),
		zap.Int("seats", input.Seats),
	)
	var capErr *reservation.InsufficientCapacityError
	switch {
	case err == nil:
		log.Debug("予約を受け付けました", zap.Int64("reservation_id", res.ID))
	case errors.As(err, &capErr):
		log.Info("空席不足のため予約を拒否しました", zap.Int("available", capErr.Available))
	case outcome == metrics.OutcomeError:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("予約処理に失敗しました", zap.Error(err))
	default:
		log.Info("予約を拒否しました", zap.String("outcome", outcome), zap.Error(err))
	}
}

func (e *BookingEngine) recordCancellation(ctx context.Context, span trace.Span, reservationID int64, res *reservation.Reservation, changed bool, err error) {
	outcome := outcomeOf(err, metrics.OutcomeCancelled)
	if err == nil && !changed {
		outcome = metrics.OutcomeNoop
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	if e.metrics != nil {
		e.metrics.CancellationsTotal.WithLabelValues(outcome).Inc()
	}

	log := logger.FromContext(ctx).With(zap.Int64("reservation_id", reservationID))
	if res != nil {
		log = log.With(zap.Int64("trip_id", res.TripID), zap.Int("seats", res.SeatCount))
	}
	switch outcome {
	case metrics.OutcomeCancelled:
		log.Debug("予約をキャンセルしました")
	case metrics.OutcomeNoop:
		log.Debug("予約は既にキャンセル済みです")
	case metrics.OutcomeError:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("キャンセル処理に失敗しました", zap.Error(err))
	default:
		log.Info("キャンセルを拒否しました", zap.String("outcome", outcome), zap.Error(err))
	}
}

func outcomeOf(err error, success string) string {
	switch {
	case err == nil:
		return success
	case errors.Is(err, reservation.ErrInsufficientCapacity):
		return metrics.OutcomeInsufficient
	case reservation.IsInvalidRequest(err):
		return metrics.OutcomeInvalid
	case errors.Is(err, trip.ErrTripNotFound), errors.Is(err, reservation.ErrReservationNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, reservation.ErrForbidden):
		return metrics.OutcomeForbidden
	case errors.Is(err, reservation.ErrBusy):
		return metrics.OutcomeBusy
	default:
		return metrics.OutcomeError
	}
}

// isClassified は呼び出し元に意味のある分類済みエラーかを返す
func isClassified(err error) bool {
	return outcomeOf(err, "") != metrics.OutcomeError
}

func remaining(capacity, reserved int) int {
	if reserved >= capacity {
		return 0
	}
	return capacity - reserved
}
