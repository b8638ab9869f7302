package handler

import (
	"context"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/application"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/reservation"
)

// BookingEngineInterface は予約エンジンのインターフェース
type BookingEngineInterface interface {
	Reserve(ctx context.Context, input application.ReserveInput) (*reservation.Reservation, error)
	Cancel(ctx context.Context, reservationID int64, caller application.Caller) error
	AvailableSeats(ctx context.Context, tripID int64) (int, error)
	GetReservation(ctx context.Context, reservationID int64, caller application.Caller) (*reservation.Reservation, error)
	ListUserReservations(ctx context.Context, userID int64, limit, offset int) ([]*reservation.Detail, error)
}

// TripServiceInterface は便サービスのインターフェース
type TripServiceInterface interface {
	ListTrips(ctx context.Context) ([]*application.TripAvailability, error)
	GetTrip(ctx context.Context, tripID int64) (*application.TripAvailability, error)
}
