package handler

import (
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/api/middleware"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/application"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/reservation"
)

// MockBookingEngine はBookingEngineInterfaceのモック
type MockBookingEngine struct {
	mock.Mock
}

func (m *MockBookingEngine) Reserve(ctx context.Context, input application.ReserveInput) (*reservation.Reservation, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockBookingEngine) Cancel(ctx context.Context, reservationID int64, caller application.Caller) error {
	args := m.Called(ctx, reservationID, caller)
	return args.Error(0)
}

func (m *MockBookingEngine) AvailableSeats(ctx context.Context, tripID int64) (int, error) {
	args := m.Called(ctx, tripID)
	return args.Int(0), args.Error(1)
}

func (m *MockBookingEngine) GetReservation(ctx context.Context, reservationID int64, caller application.Caller) (*reservation.Reservation, error) {
	args := m.Called(ctx, reservationID, caller)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockBookingEngine) ListUserReservations(ctx context.Context, userID int64, limit, offset int) ([]*reservation.Detail, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Detail), args.Error(1)
}

// MockTripService はTripServiceInterfaceのモック
type MockTripService struct {
	mock.Mock
}

func (m *MockTripService) ListTrips(ctx context.Context) ([]*application.TripAvailability, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*application.TripAvailability), args.Error(1)
}

func (m *MockTripService) GetTrip(ctx context.Context, tripID int64) (*application.TripAvailability, error) {
	args := m.Called(ctx, tripID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.TripAvailability), args.Error(1)
}

// newContext はテスト用のリクエストコンテキストを作る。caller が nil なら未識別
func newContext(e *echo.Echo, req *http.Request, caller *application.Caller) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if caller != nil {
		middleware.SetCaller(c, *caller)
	}
	return c, rec
}

func httpCode(err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return 0
}
