package handler

import (
	"github.com/labstack/echo/v4"
)

// Handlers はルーティング対象のハンドラー群
type Handlers struct {
	Health      *HealthHandler
	Trip        *TripHandler
	Reservation *ReservationHandler
}

// RegisterRoutes は /health と /api/v1 配下のルートを登録する
// identity は /api/v1 配下にのみ適用する
func RegisterRoutes(e *echo.Echo, h Handlers, identity echo.MiddlewareFunc) {
	e.GET("/health", h.Health.Check)

	v1 := e.Group("/api/v1", identity)

	trips := v1.Group("/trips")
	trips.GET("", h.Trip.List)
	trips.GET("/:id", h.Trip.GetByID)
	trips.GET("/:id/availability", h.Trip.Availability)

	reservations := v1.Group("/reservations")
	reservations.POST("", h.Reservation.Create)
	reservations.GET("", h.Reservation.GetUserReservations)
	reservations.GET("/:id", h.Reservation.GetByID)
	reservations.POST("/:id/cancel", h.Reservation.Cancel)
}
