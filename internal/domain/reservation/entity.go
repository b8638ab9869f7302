package reservation

import "time"

// Status は予約の状態を表す
// active --cancel--> cancelled（終端）の2状態のみ。仮押さえ状態は存在しない
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// IsValid は既知の状態かを返す
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusCancelled
}

// Reservation は予約エンティティを表す
type Reservation struct {
	ID        int64
	UserID    int64
	TripID    int64
	SeatCount int
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewReservation は新しい有効な予約を作成する
func NewReservation(tripID, userID int64, seatCount int) *Reservation {
	now := time.Now()
	return &Reservation{
		UserID:    userID,
		TripID:    tripID,
		SeatCount: seatCount,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive は予約が有効かを返す
func (r *Reservation) IsActive() bool {
	return r.Status == StatusActive
}

// IsOwnedBy は指定ユーザーの予約かを返す
func (r *Reservation) IsOwnedBy(userID int64) bool {
	return r.UserID == userID
}

// Cancel は予約をキャンセルする
// 既にキャンセル済みの場合は何もせず false を返す（座席の二重解放を防ぐ）
func (r *Reservation) Cancel() bool {
	if r.Status == StatusCancelled {
		return false
	}
	r.Status = StatusCancelled
	r.UpdatedAt = time.Now()
	return true
}

// Validate は予約の検証を行う
func (r *Reservation) Validate() error {
	if r.TripID == 0 {
		return ErrTripIDRequired
	}
	if r.UserID == 0 {
		return ErrUserIDRequired
	}
	if r.SeatCount <= 0 {
		return ErrInvalidSeatCount
	}
	if !r.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

// Detail は便とバスの情報を含む予約（予約一覧表示用）
type Detail struct {
	Reservation
	Departure  string
	Arrival    string
	Date       time.Time
	Time       string
	BusNumber  string
	PriceCents int64
}

// TotalCents は表示用の合計金額（座席数 × 運賃）を返す
func (d *Detail) TotalCents() int64 {
	return int64(d.SeatCount) * d.PriceCents
}
