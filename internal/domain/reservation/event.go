package reservation

import "time"

// EventType は予約イベントの種類
type EventType string

const (
	EventCreated   EventType = "reservation.created"
	EventCancelled EventType = "reservation.cancelled"
)

// Event は予約の状態変化を外部へ通知するためのイベント
// コミット後にのみ発行される
type Event struct {
	Type          EventType `json:"type"`
	ReservationID int64     `json:"reservation_id"`
	TripID        int64     `json:"trip_id"`
	UserID        int64     `json:"user_id"`
	Seats         int       `json:"seats"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewEvent は予約からイベントを作成する
func NewEvent(t EventType, r *Reservation) Event {
	return Event{
		Type:          t,
		ReservationID: r.ID,
		TripID:        r.TripID,
		UserID:        r.UserID,
		Seats:         r.SeatCount,
		OccurredAt:    time.Now().UTC(),
	}
}
