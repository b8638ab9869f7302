package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/trip"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/infrastructure/sqltx"
)

type tripRow struct {
	ID         int64     `db:"id"`
	BusID      int64     `db:"bus_id"`
	BusNumber  string    `db:"bus_number"`
	Capacity   int       `db:"capacity"`
	PriceCents int64     `db:"price_cents"`
	Departure  string    `db:"departure"`
	Arrival    string    `db:"arrival"`
	TripDate   time.Time `db:"trip_date"`
	DepartTime string    `db:"departure_time"`
	CreatedAt  time.Time `db:"created_at"`
}

func (row *tripRow) toEntity() *trip.Trip {
	return &trip.Trip{
		ID:         row.ID,
		BusID:      row.BusID,
		BusNumber:  row.BusNumber,
		Capacity:   row.Capacity,
		PriceCents: row.PriceCents,
		Departure:  row.Departure,
		Arrival:    row.Arrival,
		Date:       row.TripDate,
		Time:       row.DepartTime,
		CreatedAt:  row.CreatedAt,
	}
}

const tripSelect = `SELECT t.id, t.bus_id, b.number AS bus_number, b.capacity, b.price_cents,
	t.departure, t.arrival, t.trip_date, TIME_FORMAT(t.departure_time, '%H:%i:%s') AS departure_time, t.created_at
	FROM trips t JOIN buses b ON b.id = t.bus_id`

type TripRepository struct{ db *sqlx.DB }

func NewTripRepository(db *sqlx.DB) *TripRepository {
	return &TripRepository{db: db}
}

// CreateBus はバスを登録する（初期データ投入用）
func (r *TripRepository) CreateBus(ctx context.Context, b *trip.Bus) error {
	if err := b.Validate(); err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `INSERT INTO buses (number, capacity, price_cents) VALUES (?, ?, ?)`, b.Number, b.Capacity, b.PriceCents)
	if err != nil {
		return fmt.Errorf("バス作成に失敗: %w", err)
	}
	if b.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("バスID取得に失敗: %w", err)
	}
	return nil
}

// CreateTrip は便を登録する（初期データ投入用）
func (r *TripRepository) CreateTrip(ctx context.Context, t *trip.Trip) error {
	if err := t.Validate(); err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO trips (bus_id, departure, arrival, trip_date, departure_time, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.BusID, t.Departure, t.Arrival, t.Date, t.Time, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("便作成に失敗: %w", err)
	}
	if t.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("便ID取得に失敗: %w", err)
	}
	return nil
}

func (r *TripRepository) GetByID(ctx context.Context, id int64) (*trip.Trip, error) {
	var row tripRow
	if err := r.db.GetContext(ctx, &row, tripSelect+` WHERE t.id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, trip.ErrTripNotFound
		}
		return nil, fmt.Errorf("便取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *TripRepository) List(ctx context.Context) ([]*trip.Trip, error) {
	var rows []tripRow
	if err := r.db.SelectContext(ctx, &rows, tripSelect+` ORDER BY t.trip_date, t.departure_time, t.id`); err != nil {
		return nil, fmt.Errorf("便一覧取得に失敗: %w", err)
	}
	result := make([]*trip.Trip, len(rows))
	for i := range rows {
		result[i] = rows[i].toEntity()
	}
	return result, nil
}

func (r *TripRepository) GetCapacity(ctx context.Context, tx transaction.Tx, tripID int64) (int, error) {
	return r.capacity(ctx, tx, tripID, `SELECT b.capacity FROM trips t JOIN buses b ON b.id = t.bus_id WHERE t.id = ?`)
}

// LockCapacity は便の行だけをロックする（MySQL 8.0 の FOR UPDATE OF）
func (r *TripRepository) LockCapacity(ctx context.Context, tx transaction.Tx, tripID int64) (int, error) {
	return r.capacity(ctx, tx, tripID, `SELECT b.capacity FROM trips t JOIN buses b ON b.id = t.bus_id WHERE t.id = ? FOR UPDATE OF t`)
}

func (r *TripRepository) capacity(ctx context.Context, tx transaction.Tx, tripID int64, query string) (int, error) {
	sqlxTx, err := sqltx.UnwrapTx(tx)
	if err != nil {
		return 0, err
	}
	var capacity int
	if err := sqlxTx.GetContext(ctx, &capacity, query, tripID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, trip.ErrTripNotFound
		}
		return 0, mapError("定員取得に失敗", err)
	}
	return capacity, nil
}

var _ trip.Repository = (*TripRepository)(nil)
