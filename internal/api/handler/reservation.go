package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/application"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/reservation"
)

type ReservationHandler struct {
	engine BookingEngineInterface
}

func NewReservationHandler(engine BookingEngineInterface) *ReservationHandler {
	return &ReservationHandler{engine: engine}
}

// CreateReservationRequest は予約作成リクエスト
// 座席数の検証はエンジン側で行う
type CreateReservationRequest struct {
	TripID int64 `json:"trip_id" validate:"required" example:"1"`
	Seats  int   `json:"seats" example:"2"`
}

type ReservationResponse struct {
	ID        int64     `json:"id" example:"10"`
	TripID    int64     `json:"trip_id" example:"1"`
	UserID    int64     `json:"user_id" example:"42"`
	Seats     int       `json:"seats" example:"2"`
	Status    string    `json:"status" example:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ReservationDetailResponse struct {
	ReservationResponse
	Departure  string `json:"departure" example:"Tokyo"`
	Arrival    string `json:"arrival" example:"Osaka"`
	Date       string `json:"date" example:"2026-04-01"`
	Time       string `json:"time" example:"08:30:00"`
	BusNumber  string `json:"bus_number" example:"KA-101"`
	PriceCents int64  `json:"price_cents" example:"350000"`
	TotalCents int64  `json:"total_cents" example:"700000"`
}

func toReservationResponse(r *reservation.Reservation) ReservationResponse {
	return ReservationResponse{
		ID: r.ID, TripID: r.TripID, UserID: r.UserID,
		Seats: r.SeatCount, Status: string(r.Status),
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func toReservationDetailResponse(d *reservation.Detail) ReservationDetailResponse {
	return ReservationDetailResponse{
		ReservationResponse: toReservationResponse(&d.Reservation),
		Departure:           d.Departure,
		Arrival:             d.Arrival,
		Date:                d.Date.Format(dateLayout),
		Time:                d.Time,
		BusNumber:           d.BusNumber,
		PriceCents:          d.PriceCents,
		TotalCents:          d.TotalCents(),
	}
}

// Create godoc
// @Summary 予約を作成
// @Description 便の座席を指定数だけ予約します。空席が足りない場合は現在の空席数とともに 409 を返します
// @Tags reservations
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param request body CreateReservationRequest true "予約情報"
// @Success 201 {object} ReservationResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 401 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "空席不足"
// @Failure 503 {object} api.ErrorResponse "混雑中（Retry-After 付き）"
// @Router /reservations [post]
func (h *ReservationHandler) Create(c echo.Context) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	var req CreateReservationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	r, err := h.engine.Reserve(c.Request().Context(), application.ReserveInput{
		TripID: req.TripID, UserID: caller.UserID, Seats: req.Seats,
	})
	if err != nil {
		return toHTTPError(c, err)
	}
	return c.JSON(http.StatusCreated, toReservationResponse(r))
}

// GetByID godoc
// @Summary 予約を取得
// @Description 指定IDの予約を取得します（予約者本人または管理者のみ）
// @Tags reservations
// @Produce json
// @Param id path int true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /reservations/{id} [get]
func (h *ReservationHandler) GetByID(c echo.Context) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	r, err := h.engine.GetReservation(c.Request().Context(), id, caller)
	if err != nil {
		return toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// GetUserReservations godoc
// @Summary ユーザーの予約一覧を取得
// @Description 呼び出し元ユーザーの予約一覧を便の情報付きで新しい順に返します
// @Tags reservations
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} ReservationDetailResponse
// @Failure 401 {object} api.ErrorResponse
// @Router /reservations [get]
func (h *ReservationHandler) GetUserReservations(c echo.Context) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	details, err := h.engine.ListUserReservations(c.Request().Context(), caller.UserID, limit, offset)
	if err != nil {
		return toHTTPError(c, err)
	}
	resp := make([]ReservationDetailResponse, len(details))
	for i, d := range details {
		resp[i] = toReservationDetailResponse(d)
	}
	return c.JSON(http.StatusOK, resp)
}

// Cancel godoc
// @Summary 予約をキャンセル
// @Description 予約をキャンセルし座席を解放します。キャンセル済みの予約に対しても成功を返します
// @Tags reservations
// @Param id path int true "予約ID"
// @Success 204
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 503 {object} api.ErrorResponse "混雑中（Retry-After 付き）"
// @Router /reservations/{id}/cancel [post]
func (h *ReservationHandler) Cancel(c echo.Context) error {
	caller, err := requireCaller(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.engine.Cancel(c.Request().Context(), id, caller); err != nil {
		return toHTTPError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
