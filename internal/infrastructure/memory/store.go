package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/lock"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/trip"
)

var (
	ErrTxRequired = errors.New("トランザクションが必要です")
	ErrTxClosed   = errors.New("トランザクションは終了しています")
	ErrForeignTx  = errors.New("このストアで開始されたトランザクションではありません")
)

// Store はプロセス内の在庫・予約台帳
// トランザクションは書き込みをバッファし、Commit 時にまとめて反映する。
// LockCapacity は便ごとの行ロックを取り、トランザクション終了まで保持する
type Store struct {
	mu           sync.RWMutex
	rowLocks     *KeyedLocker
	buses        map[int64]*trip.Bus
	trips        map[int64]*trip.Trip
	reservations map[int64]*reservation.Reservation

	nextBusID         int64
	nextTripID        int64
	nextReservationID int64
}

// NewStore は空のストアを作成する
func NewStore() *Store {
	return &Store{
		buses:        make(map[int64]*trip.Bus),
		trips:        make(map[int64]*trip.Trip),
		reservations: make(map[int64]*reservation.Reservation),
		rowLocks:     NewKeyedLocker(),
	}
}

// AddBus はバスを登録し、IDを設定する
func (s *Store) AddBus(b *trip.Bus) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBusID++
	b.ID = s.nextBusID
	cp := *b
	s.buses[b.ID] = &cp
	return nil
}

// AddTrip は便を登録し、IDを設定する。定員と運賃はバスから引き継ぐ
func (s *Store) AddTrip(t *trip.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bus, ok := s.buses[t.BusID]
	if !ok {
		return trip.ErrBusNotFound
	}
	t.BusNumber = bus.Number
	t.Capacity = bus.Capacity
	t.PriceCents = bus.PriceCents
	if err := t.Validate(); err != nil {
		return err
	}
	s.nextTripID++
	t.ID = s.nextTripID
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	cp := *t
	s.trips[t.ID] = &cp
	return nil
}

// Begin は新しいトランザクションを開始する
// ReadOnly の場合も同じ実装を返す。読み取りはストアのロック下で行うため一貫している
func (s *Store) Begin(_ context.Context, opts transaction.Options) (transaction.Tx, error) {
	return &Tx{
		store:    s,
		readOnly: opts.ReadOnly,
		statuses: make(map[int64]reservation.Status),
		rowLocks: make(map[int64]*keyedLock),
	}, nil
}

// Tx はバッファ付きのトランザクション
type Tx struct {
	store    *Store
	readOnly bool
	inserts  []*reservation.Reservation
	statuses map[int64]reservation.Status
	rowLocks map[int64]*keyedLock
	done     bool
}

func (t *Tx) memoryTx() *Tx { return t }

// Commit はバッファした書き込みをストアへ反映する
func (t *Tx) Commit() error {
	if t.done {
		return ErrTxClosed
	}
	t.done = true
	defer t.releaseRows()

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, r := range t.inserts {
		cp := *r
		s.reservations[r.ID] = &cp
	}
	for id, status := range t.statuses {
		if r, ok := s.reservations[id]; ok {
			r.Status = status
			r.UpdatedAt = now
		}
	}
	return nil
}

// Rollback はバッファを破棄する。コミット済みの場合は何もしない
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.inserts = nil
	t.statuses = nil
	t.releaseRows()
	return nil
}

func (t *Tx) releaseRows() {
	for id, l := range t.rowLocks {
		_ = l.Release(context.Background())
		delete(t.rowLocks, id)
	}
}

// txUnwrapper は埋め込みで Tx を拡張した型からも元の Tx を取り出せるようにする
type txUnwrapper interface {
	memoryTx() *Tx
}

func (s *Store) unwrap(tx transaction.Tx) (*Tx, error) {
	if tx == nil {
		return nil, ErrTxRequired
	}
	u, ok := tx.(txUnwrapper)
	if !ok {
		return nil, ErrForeignTx
	}
	t := u.memoryTx()
	if t.store != s {
		return nil, ErrForeignTx
	}
	if t.done {
		return nil, ErrTxClosed
	}
	return t, nil
}

// TripRepository は Store を trip.Repository として公開する
type TripRepository struct{ store *Store }

func NewTripRepository(s *Store) *TripRepository {
	return &TripRepository{store: s}
}

func (r *TripRepository) GetByID(_ context.Context, id int64) (*trip.Trip, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	t, ok := r.store.trips[id]
	if !ok {
		return nil, trip.ErrTripNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *TripRepository) List(_ context.Context) ([]*trip.Trip, error) {
	r.store.mu.RLock()
	result := make([]*trip.Trip, 0, len(r.store.trips))
	for _, t := range r.store.trips {
		cp := *t
		result = append(result, &cp)
	}
	r.store.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].DepartsAt(), result[j].DepartsAt()
		if a.Equal(b) {
			return result[i].ID < result[j].ID
		}
		return a.Before(b)
	})
	return result, nil
}

func (r *TripRepository) GetCapacity(_ context.Context, tx transaction.Tx, tripID int64) (int, error) {
	if _, err := r.store.unwrap(tx); err != nil {
		return 0, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	t, ok := r.store.trips[tripID]
	if !ok {
		return 0, trip.ErrTripNotFound
	}
	return t.Capacity, nil
}

// LockCapacity は便の行ロックを取ってから定員を返す
// ロックはトランザクションの Commit / Rollback まで保持し、待ちは ctx で打ち切る
func (r *TripRepository) LockCapacity(ctx context.Context, tx transaction.Tx, tripID int64) (int, error) {
	t, err := r.store.unwrap(tx)
	if err != nil {
		return 0, err
	}
	if _, held := t.rowLocks[tripID]; !held {
		l, err := r.store.rowLocks.acquireUntilDone(ctx, lock.TripKey(tripID))
		if err != nil {
			return 0, err
		}
		t.rowLocks[tripID] = l
	}
	return r.GetCapacity(ctx, tx, tripID)
}

// ReservationRepository は Store を reservation.Repository として公開する
type ReservationRepository struct{ store *Store }

func NewReservationRepository(s *Store) *ReservationRepository {
	return &ReservationRepository{store: s}
}

func (r *ReservationRepository) SumActiveSeats(_ context.Context, tx transaction.Tx, tripID int64) (int, error) {
	t, err := r.store.unwrap(tx)
	if err != nil {
		return 0, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	sum := 0
	for id, res := range r.store.reservations {
		if res.TripID != tripID {
			continue
		}
		status := res.Status
		if pending, ok := t.statuses[id]; ok {
			status = pending
		}
		if status == reservation.StatusActive {
			sum += res.SeatCount
		}
	}
	for _, res := range t.inserts {
		if res.TripID != tripID {
			continue
		}
		status := res.Status
		if pending, ok := t.statuses[res.ID]; ok {
			status = pending
		}
		if status == reservation.StatusActive {
			sum += res.SeatCount
		}
	}
	return sum, nil
}

func (r *ReservationRepository) Insert(_ context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	t, err := r.store.unwrap(tx)
	if err != nil {
		return err
	}
	if t.readOnly {
		return errors.New("読み取り専用トランザクションでは書き込めません")
	}
	if err := res.Validate(); err != nil {
		return err
	}

	r.store.mu.Lock()
	if _, ok := r.store.trips[res.TripID]; !ok {
		r.store.mu.Unlock()
		return trip.ErrTripNotFound
	}
	r.store.nextReservationID++
	res.ID = r.store.nextReservationID
	r.store.mu.Unlock()

	cp := *res
	t.inserts = append(t.inserts, &cp)
	return nil
}

func (r *ReservationRepository) GetByID(_ context.Context, tx transaction.Tx, id int64) (*reservation.Reservation, error) {
	var t *Tx
	if tx != nil {
		var err error
		if t, err = r.store.unwrap(tx); err != nil {
			return nil, err
		}
	}

	var found *reservation.Reservation
	r.store.mu.RLock()
	if res, ok := r.store.reservations[id]; ok {
		cp := *res
		found = &cp
	}
	r.store.mu.RUnlock()

	if t != nil {
		if found == nil {
			for _, res := range t.inserts {
				if res.ID == id {
					cp := *res
					found = &cp
					break
				}
			}
		}
		if found != nil {
			if pending, ok := t.statuses[id]; ok {
				found.Status = pending
			}
		}
	}

	if found == nil {
		return nil, reservation.ErrReservationNotFound
	}
	return found, nil
}

func (r *ReservationRepository) SetStatus(ctx context.Context, tx transaction.Tx, id int64, status reservation.Status) error {
	t, err := r.store.unwrap(tx)
	if err != nil {
		return err
	}
	if t.readOnly {
		return errors.New("読み取り専用トランザクションでは書き込めません")
	}
	if !status.IsValid() {
		return reservation.ErrInvalidStatus
	}
	if _, err := r.GetByID(ctx, tx, id); err != nil {
		return err
	}
	t.statuses[id] = status
	return nil
}

func (r *ReservationRepository) ListByUser(_ context.Context, userID int64, limit, offset int) ([]*reservation.Detail, error) {
	r.store.mu.RLock()
	var result []*reservation.Detail
	for _, res := range r.store.reservations {
		if res.UserID != userID {
			continue
		}
		d := &reservation.Detail{Reservation: *res}
		if t, ok := r.store.trips[res.TripID]; ok {
			d.Departure = t.Departure
			d.Arrival = t.Arrival
			d.Date = t.Date
			d.Time = t.Time
			d.BusNumber = t.BusNumber
			d.PriceCents = t.PriceCents
		}
		result = append(result, d)
	}
	r.store.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if offset >= len(result) {
		return []*reservation.Detail{}, nil
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

var (
	_ transaction.Manager    = (*Store)(nil)
	_ trip.Repository        = (*TripRepository)(nil)
	_ reservation.Repository = (*ReservationRepository)(nil)
)
