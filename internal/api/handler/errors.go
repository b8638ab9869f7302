package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/api"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/api/middleware"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/application"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/trip"
)

// retryAfterSeconds は Busy 応答で返す Retry-After の秒数
const retryAfterSeconds = 1

var errUnauthorized = echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")

// toHTTPError はドメインエラーをHTTPエラーに変換する
func toHTTPError(c echo.Context, err error) error {
	var capErr *reservation.InsufficientCapacityError
	switch {
	case errors.As(err, &capErr):
		available := capErr.Available
		return echo.NewHTTPError(http.StatusConflict, api.ErrorResponse{
			Error:     reservation.ErrInsufficientCapacity.Error(),
			Details:   err.Error(),
			Available: &available,
		})
	case errors.Is(err, reservation.ErrInsufficientCapacity):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, trip.ErrTripNotFound), errors.Is(err, reservation.ErrReservationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case reservation.IsInvalidRequest(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, reservation.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, reservation.ErrBusy):
		c.Response().Header().Set(echo.HeaderRetryAfter, strconv.Itoa(retryAfterSeconds))
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "内部サーバーエラー").SetInternal(err)
	}
}

// pathID はパスパラメータの数値IDを取り出す
func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "IDが不正です")
	}
	return id, nil
}

// requireCaller は識別済みの呼び出し元を返す
func requireCaller(c echo.Context) (application.Caller, error) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		return application.Caller{}, errUnauthorized
	}
	return caller, nil
}
