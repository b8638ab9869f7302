package trip

import "time"

// Bus はバス（座席数と運賃を持つ車両）を表す
type Bus struct {
	ID         int64
	Number     string
	Capacity   int
	PriceCents int64
}

// NewBus は新しいバスを作成する
func NewBus(number string, capacity int, priceCents int64) *Bus {
	return &Bus{Number: number, Capacity: capacity, PriceCents: priceCents}
}

// Validate はバスの検証を行う
func (b *Bus) Validate() error {
	if b.Number == "" {
		return ErrBusNumberRequired
	}
	if b.Capacity <= 0 {
		return ErrInvalidCapacity
	}
	if b.PriceCents < 0 {
		return ErrInvalidPrice
	}
	return nil
}

// Trip は運行便を表す
// 定員はバスから引き継ぎ、便の運行期間中は変わらない
type Trip struct {
	ID         int64
	BusID      int64
	BusNumber  string
	Capacity   int
	PriceCents int64
	Departure  string
	Arrival    string
	Date       time.Time
	Time       string // HH:MM:SS
	CreatedAt  time.Time
}

// NewTrip はバスに紐づく新しい便を作成する
func NewTrip(bus *Bus, departure, arrival string, date time.Time, departTime string) *Trip {
	return &Trip{
		BusID:      bus.ID,
		BusNumber:  bus.Number,
		Capacity:   bus.Capacity,
		PriceCents: bus.PriceCents,
		Departure:  departure,
		Arrival:    arrival,
		Date:       date,
		Time:       departTime,
		CreatedAt:  time.Now(),
	}
}

// Validate は便の検証を行う
func (t *Trip) Validate() error {
	if t.BusID == 0 {
		return ErrBusIDRequired
	}
	if t.Departure == "" || t.Arrival == "" {
		return ErrRouteRequired
	}
	if t.Capacity <= 0 {
		return ErrInvalidCapacity
	}
	return nil
}

// DepartsAt は出発日時を返す
func (t *Trip) DepartsAt() time.Time {
	clock, err := time.Parse("15:04:05", t.Time)
	if err != nil {
		return t.Date
	}
	y, m, d := t.Date.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), clock.Second(), 0, t.Date.Location())
}
