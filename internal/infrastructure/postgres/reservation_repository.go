package postgres

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
	query := `SELECT COALESCE(SUM(seat_count), 0) FROM reservations WHERE trip_id = $1 AND status = 'active'`
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
	query := `INSERT INTO reservations (user_id, trip_id, seat_count, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if err := sqlxTx.QueryRowContext(ctx, query, res.UserID, res.TripID, res.SeatCount, string(res.Status), res.CreatedAt, res.UpdatedAt).Scan(&res.ID); err != nil {
		return mapError("予約作成に失敗", err)
	}
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, tx transaction.Tx, id int64) (*reservation.Reservation, error) {
	q, err := sqltx.Queryer(r.db, tx)
	if err != nil {
		return nil, err
	}
	var row reservationRow
	query := `SELECT id, user_id, trip_id, seat_count, status, created_at, updated_at FROM reservations WHERE id = $1`
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, mapError("予約取得に失敗", err)
	}
	return row.toEntity(), nil
}

func (r *ReservationRepository) SetStatus(ctx context.Context, tx transaction.Tx, id int64, status reservation.Status) error {
	sqlxTx, err := sqltx.UnwrapTx(tx)
	if err != nil {
		return err
	}
	if !status.IsValid() {
		return reservation.ErrInvalidStatus
	}
	result, err := sqlxTx.ExecContext(ctx, `UPDATE reservations SET status = $1, updated_at = $2 WHERE id = $3`, string(status), time.Now(), id)
	if err != nil {
		return mapError("予約更新に失敗", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return reservation.ErrReservationNotFound
	}
	return nil
}

func (r *ReservationRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*reservation.Detail, error) {
	var rows []reservationDetailRow
	query := `SELECT r.id, r.user_id, r.trip_id, r.seat_count, r.status, r.created_at, r.updated_at,
		t.departure, t.arrival, t.trip_date, t.departure_time::text AS departure_time, b.number AS bus_number, b.price_cents
		FROM reservations r
		JOIN trips t ON t.id = r.trip_id
		JOIN buses b ON b.id = t.bus_id
		WHERE r.user_id = $1
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT $2 OFFSET $3`
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
