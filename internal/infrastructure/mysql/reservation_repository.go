package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/infrastructure/sqltx"
)

type reservationRow struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	TripID    int64     `db:"trip_id"`
	SeatCount int       `db:"seat_count"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row *reservationRow) toEntity() *reservation.Reservation {
	return &reservation.Reservation{
		ID:        row.ID,
		UserID:    row.UserID,
		TripID:    row.TripID,
		SeatCount: row.SeatCount,
		Status:    reservation.Status(row.Status),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

type reservationDetailRow struct {
	reservationRow
	Departure  string    `db:"departure"`
	Arrival    string    `db:"arrival"`
	TripDate   time.Time `db:"trip_date"`
	DepartTime string    `db:"departure_time"`
	BusNumber  string    `db:"bus_number"`
	PriceCents int64     `db:"price_cents"`
}

type ReservationRepository struct{ db *sqlx.DB }

func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) SumActiveSeats(ctx context.Context, tx transaction.Tx, tripID int64) (int, error) {
	sqlxTx, err := sqltx.UnwrapTx(tx)
	if err != nil {
		return 0, err
	}
	var sum int
	query := `SELECT COALESCE(SUM(seat_count), 0) FROM reservations WHERE trip_id = ? AND status = 'active'`
	if err := sqlxTx.GetContext(ctx, &sum, query, tripID); err != nil {
		return 0, mapError("予約座席数の集計に失敗", err)
	}
	return sum, nil
}

func (r *ReservationRepository) Insert(ctx context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	sqlxTx, err := sqltx.UnwrapTx(tx)
	if err != nil {
		return err
	}
	if err := res.Validate(); err != nil {
		return err
	}
	result, err := sqlxTx.ExecContext(ctx,
		`INSERT INTO reservations (user_id, trip_id, seat_count, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		res.UserID, res.TripID, res.SeatCount, string(res.Status), res.CreatedAt, res.UpdatedAt)
	if err != nil {
		return mapError("予約作成に失敗", err)
	}
	if res.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("予約ID取得に失敗: %w", err)
	}
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, tx transaction.Tx, id int64) (*reservation.Reservation, error) {
	q, err := sqltx.Queryer(r.db, tx)
	if err != nil {
		return nil, err
	}
	var row reservationRow
	query := `SELECT id, user_id, trip_id, seat_count, status, created_at, updated_at FROM reservations WHERE id = ?`
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, mapError("予約取得に失敗", err)
	}
	return row.toEntity(), nil
}

// SetStatus は予約の状態を更新する
// MySQL は値が変わらない UPDATE の影響行数を0と報告するため、存在確認は別に行う
func (r *ReservationRepository) SetStatus(ctx context.Context, tx transaction.Tx, id int64, status reservation.Status) error {
	sqlxTx, err := sqltx.UnwrapTx(tx)
	if err != nil {
		return err
	}
	if !status.IsValid() {
		return reservation.ErrInvalidStatus
	}
	if _, err := r.GetByID(ctx, tx, id); err != nil {
		return err
	}
	if _, err := sqlxTx.ExecContext(ctx, `UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?`, string(status), time.Now(), id); err != nil {
		return mapError("予約更新に失敗", err)
	}
	return nil
}

func (r *ReservationRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*reservation.Detail, error) {
	var rows []reservationDetailRow
	query := `SELECT r.id, r.user_id, r.trip_id, r.seat_count, r.status, r.created_at, r.updated_at,
		t.departure, t.arrival, t.trip_date, TIME_FORMAT(t.departure_time, '%H:%i:%s') AS departure_time,
		b.number AS bus_number, b.price_cents
		FROM reservations r
		JOIN trips t ON t.id = r.trip_id
		JOIN buses b ON b.id = t.bus_id
		WHERE r.user_id = ?
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT ? OFFSET ?`
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	result := make([]*reservation.Detail, len(rows))
	for i := range rows {
		result[i] = &reservation.Detail{
			Reservation: *rows[i].toEntity(),
			Departure:   rows[i].Departure,
			Arrival:     rows[i].Arrival,
			Date:        rows[i].TripDate,
			Time:        rows[i].DepartTime,
			BusNumber:   rows[i].BusNumber,
			PriceCents:  rows[i].PriceCents,
		}
	}
	return result, nil
}

var _ reservation.Repository = (*ReservationRepository)(nil)
