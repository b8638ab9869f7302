package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/application"
)

const dateLayout = "2006-01-02"

type TripHandler struct {
	trips  TripServiceInterface
	engine BookingEngineInterface
}

func NewTripHandler(trips TripServiceInterface, engine BookingEngineInterface) *TripHandler {
	return &TripHandler{trips: trips, engine: engine}
}

type TripResponse struct {
	ID             int64  `json:"id" example:"1"`
	BusNumber      string `json:"bus_number" example:"KA-101"`
	Capacity       int    `json:"capacity" example:"50"`
	PriceCents     int64  `json:"price_cents" example:"350000"`
	Departure      string `json:"departure" example:"Tokyo"`
	Arrival        string `json:"arrival" example:"Osaka"`
	Date           string `json:"date" example:"2026-04-01"`
	Time           string `json:"time" example:"08:30:00"`
	AvailableSeats int    `json:"available_seats" example:"12"`
}

type AvailabilityResponse struct {
	TripID         int64 `json:"trip_id" example:"1"`
	AvailableSeats int   `json:"available_seats" example:"12"`
}

func toTripResponse(a *application.TripAvailability) TripResponse {
	t := a.Trip
	return TripResponse{
		ID: t.ID, BusNumber: t.BusNumber, Capacity: t.Capacity, PriceCents: t.PriceCents,
		Departure: t.Departure, Arrival: t.Arrival,
		Date: t.Date.Format(dateLayout), Time: t.Time,
		AvailableSeats: a.AvailableSeats,
	}
}

// List godoc
// @Summary 便一覧を取得
// @Description 出発日時順の便一覧を返します。空席数は目安で、予約時に再判定されます
// @Tags trips
// @Produce json
// @Success 200 {array} TripResponse
// @Router /trips [get]
func (h *TripHandler) List(c echo.Context) error {
	list, err := h.trips.ListTrips(c.Request().Context())
	if err != nil {
		return toHTTPError(c, err)
	}
	resp := make([]TripResponse, len(list))
	for i, a := range list {
		resp[i] = toTripResponse(a)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetByID godoc
// @Summary 便を取得
// @Description 指定IDの便と現在の空席数を返します
// @Tags trips
// @Produce json
// @Param id path int true "便ID"
// @Success 200 {object} TripResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /trips/{id} [get]
func (h *TripHandler) GetByID(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.trips.GetTrip(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, toTripResponse(a))
}

// Availability godoc
// @Summary 空席数を取得
// @Description 便の現在の空席数（定員 - 有効な予約の座席数合計）を返します
// @Tags trips
// @Produce json
// @Param id path int true "便ID"
// @Success 200 {object} AvailabilityResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /trips/{id}/availability [get]
func (h *TripHandler) Availability(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	available, err := h.engine.AvailableSeats(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, AvailabilityResponse{TripID: id, AvailableSeats: available})
}
