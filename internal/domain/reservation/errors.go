package reservation

import (
	"errors"
	"fmt"
)

// Reservation ドメインのエラー定義
//
// 呼び出し側への分類:
//   - NotFound:             ErrReservationNotFound（便の場合は trip.ErrTripNotFound）
//   - InvalidRequest:       ErrInvalidSeatCount, ErrTripIDRequired, ErrUserIDRequired, ErrInvalidStatus
//   - InsufficientCapacity: *InsufficientCapacityError（errors.Is で ErrInsufficientCapacity に一致）
//   - Forbidden:            ErrForbidden
//   - Busy:                 ErrBusy（呼び出し側はバックオフ付きで再試行してよい）
var (
	ErrReservationNotFound  = errors.New("予約が見つかりません")
	ErrInvalidSeatCount     = errors.New("座席数は1以上である必要があります")
	ErrTripIDRequired       = errors.New("便IDは必須です")
	ErrUserIDRequired       = errors.New("ユーザーIDは必須です")
	ErrInvalidStatus        = errors.New("予約の状態が不正です")
	ErrInsufficientCapacity = errors.New("空席が不足しています")
	ErrForbidden            = errors.New("この予約を操作する権限がありません")
	ErrBusy                 = errors.New("混雑のため処理できませんでした。時間をおいて再試行してください")
)

// InsufficientCapacityError は空席不足で予約を拒否したことを表す
// Available は判定時点の空席数
type InsufficientCapacityError struct {
	Available int
	Requested int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("%s（空席: %d, 要求: %d）", ErrInsufficientCapacity.Error(), e.Available, e.Requested)
}

func (e *InsufficientCapacityError) Is(target error) bool {
	return target == ErrInsufficientCapacity
}

// IsInvalidRequest はリクエスト不正に分類されるエラーかを返す
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidSeatCount) ||
		errors.Is(err, ErrTripIDRequired) ||
		errors.Is(err, ErrUserIDRequired) ||
		errors.Is(err, ErrInvalidStatus)
}
