package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/application"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/trip"
)

var testUser = &application.Caller{UserID: 42}

func newReservation(id int64, status reservation.Status) *reservation.Reservation {
	now := time.Now()
	return &reservation.Reservation{
		ID:        id,
		TripID:    1,
		UserID:    42,
		SeatCount: 2,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func postReservation(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestReservationHandler_Create(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に予約を作成できる", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		mockEngine.On("Reserve", mock.Anything, application.ReserveInput{TripID: 1, UserID: 42, Seats: 2}).
			Return(newReservation(10, reservation.StatusActive), nil)

		handler := NewReservationHandler(mockEngine)
		c, rec := newContext(e, postReservation(`{"trip_id": 1, "seats": 2}`), testUser)

		err := handler.Create(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp ReservationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(10), resp.ID)
		assert.Equal(t, 2, resp.Seats)
		assert.Equal(t, "active", resp.Status)

		mockEngine.AssertExpectations(t)
	})

	t.Run("空席不足は409で空席数を返す", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		mockEngine.On("Reserve", mock.Anything, mock.AnythingOfType("application.ReserveInput")).
			Return(nil, &reservation.InsufficientCapacityError{Available: 2, Requested: 6})

		handler := NewReservationHandler(mockEngine)
		c, _ := newContext(e, postReservation(`{"trip_id": 1, "seats": 6}`), testUser)

		err := handler.Create(c)

		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, httpCode(err))

		// エラーハンドラーを通したレスポンスに空席数が含まれる
		rec := httptest.NewRecorder()
		e.HTTPErrorHandler(err, e.NewContext(postReservation(""), rec))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), `"available":2`)
	})

	t.Run("座席数0はエンジンが判定して400", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		mockEngine.On("Reserve", mock.Anything, application.ReserveInput{TripID: 1, UserID: 42, Seats: 0}).
			Return(nil, reservation.ErrInvalidSeatCount)

		handler := NewReservationHandler(mockEngine)
		c, _ := newContext(e, postReservation(`{"trip_id": 1, "seats": 0}`), testUser)

		err := handler.Create(c)

		assert.Equal(t, http.StatusBadRequest, httpCode(err))
		mockEngine.AssertExpectations(t)
	})

	t.Run("存在しない便は404", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		mockEngine.On("Reserve", mock.Anything, mock.Anything).Return(nil, trip.ErrTripNotFound)

		handler := NewReservationHandler(mockEngine)
		c, _ := newContext(e, postReservation(`{"trip_id": 99, "seats": 1}`), testUser)

		assert.Equal(t, http.StatusNotFound, httpCode(handler.Create(c)))
	})

	t.Run("混雑時は503とRetry-After", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		mockEngine.On("Reserve", mock.Anything, mock.Anything).Return(nil, reservation.ErrBusy)

		handler := NewReservationHandler(mockEngine)
		c, rec := newContext(e, postReservation(`{"trip_id": 1, "seats": 1}`), testUser)

		err := handler.Create(c)

		assert.Equal(t, http.StatusServiceUnavailable, httpCode(err))
		assert.Equal(t, "1", rec.Header().Get(echo.HeaderRetryAfter))
	})

	t.Run("ユーザーIDがない場合401", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		handler := NewReservationHandler(mockEngine)
		c, _ := newContext(e, postReservation(`{"trip_id": 1, "seats": 1}`), nil)

		assert.Equal(t, http.StatusUnauthorized, httpCode(handler.Create(c)))
		mockEngine.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything)
	})

	t.Run("不正なリクエストでエラー", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		handler := NewReservationHandler(mockEngine)
		c, _ := newContext(e, postReservation("invalid"), testUser)

		assert.Equal(t, http.StatusBadRequest, httpCode(handler.Create(c)))
	})

	t.Run("trip_idがない場合400", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		handler := NewReservationHandler(mockEngine)
		c, _ := newContext(e, postReservation(`{"seats": 1}`), testUser)

		assert.Equal(t, http.StatusBadRequest, httpCode(handler.Create(c)))
		mockEngine.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything)
	})
}

func TestReservationHandler_GetByID(t *testing.T) {
	e := NewTestEcho()

	get := func(id string, caller *application.Caller) (echo.Context, *httptest.ResponseRecorder) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations/"+id, nil)
		c, rec := newContext(e, req, caller)
		c.SetParamNames("id")
		c.SetParamValues(id)
		return c, rec
	}

	t.Run("正常に予約を取得できる", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		mockEngine.On("GetReservation", mock.Anything, int64(10), *testUser).
			Return(newReservation(10, reservation.StatusActive), nil)

		handler := NewReservationHandler(mockEngine)
		c, rec := get("10", testUser)

		require.NoError(t, handler.GetByID(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp ReservationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(10), resp.ID)
		mockEngine.AssertExpectations(t)
	})

	t.Run("他人の予約は403", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		mockEngine.On("GetReservation", mock.Anything, int64(10), mock.Anything).Return(nil, reservation.ErrForbidden)

		handler := NewReservationHandler(mockEngine)
		c, _ := get("10", &application.Caller{UserID: 7})

		assert.Equal(t, http.StatusForbidden, httpCode(handler.GetByID(c)))
	})

	t.Run("予約が見つからない場合404", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		mockEngine.On("GetReservation", mock.Anything, int64(999), mock.Anything).Return(nil, reservation.ErrReservationNotFound)

		handler := NewReservationHandler(mockEngine)
		c, _ := get("999", testUser)

		assert.Equal(t, http.StatusNotFound, httpCode(handler.GetByID(c)))
	})

	t.Run("数値でないIDは400", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		handler := NewReservationHandler(mockEngine)
		c, _ := get("abc", testUser)

		assert.Equal(t, http.StatusBadRequest, httpCode(handler.GetByID(c)))
	})
}

func TestReservationHandler_GetUserReservations(t *testing.T) {
	e := NewTestEcho()

	t.Run("便の情報付きで一覧を返す", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		details := []*reservation.Detail{
			{
				Reservation: *newReservation(10, reservation.StatusActive),
				Departure:   "Tokyo",
				Arrival:     "Osaka",
				Date:        time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
				Time:        "08:30:00",
				BusNumber:   "KA-101",
				PriceCents:  350000,
			},
		}
		mockEngine.On("ListUserReservations", mock.Anything, int64(42), 5, 10).Return(details, nil)

		handler := NewReservationHandler(mockEngine)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations?limit=5&offset=10", nil)
		c, rec := newContext(e, req, testUser)

		require.NoError(t, handler.GetUserReservations(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp []ReservationDetailResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp, 1)
		assert.Equal(t, "2026-04-01", resp[0].Date)
		assert.Equal(t, int64(700000), resp[0].TotalCents)
		assert.Equal(t, int64(10), resp[0].ID)
		mockEngine.AssertExpectations(t)
	})

	t.Run("ページング指定なしは0を渡す", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		mockEngine.On("ListUserReservations", mock.Anything, int64(42), 0, 0).Return([]*reservation.Detail{}, nil)

		handler := NewReservationHandler(mockEngine)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations", nil)
		c, rec := newContext(e, req, testUser)

		require.NoError(t, handler.GetUserReservations(c))
		assert.Equal(t, "[]\n", rec.Body.String())
	})

	t.Run("ユーザーIDがない場合401", func(t *testing.T) {
		handler := NewReservationHandler(new(MockBookingEngine))
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations", nil)
		c, _ := newContext(e, req, nil)

		assert.Equal(t, http.StatusUnauthorized, httpCode(handler.GetUserReservations(c)))
	})

	t.Run("ストアのエラーは500", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		mockEngine.On("ListUserReservations", mock.Anything, int64(42), 0, 0).Return(nil, errors.New("db down"))

		handler := NewReservationHandler(mockEngine)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations", nil)
		c, _ := newContext(e, req, testUser)

		assert.Equal(t, http.StatusInternalServerError, httpCode(handler.GetUserReservations(c)))
	})
}

func TestReservationHandler_Cancel(t *testing.T) {
	e := NewTestEcho()

	cancel := func(id string, caller *application.Caller) (echo.Context, *httptest.ResponseRecorder) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations/"+id+"/cancel", nil)
		c, rec := newContext(e, req, caller)
		c.SetParamNames("id")
		c.SetParamValues(id)
		return c, rec
	}

	t.Run("正常に予約をキャンセルできる", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		mockEngine.On("Cancel", mock.Anything, int64(10), *testUser).Return(nil)

		handler := NewReservationHandler(mockEngine)
		c, rec := cancel("10", testUser)

		require.NoError(t, handler.Cancel(c))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		mockEngine.AssertExpectations(t)
	})

	t.Run("管理者は他人の予約をキャンセルできる", func(t *testing.T) {
		admin := application.Caller{UserID: 1, IsAdmin: true}
		mockEngine := new(MockBookingEngine)
		mockEngine.On("Cancel", mock.Anything, int64(10), admin).Return(nil)

		handler := NewReservationHandler(mockEngine)
		c, rec := cancel("10", &admin)

		require.NoError(t, handler.Cancel(c))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("予約が見つからない場合404", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		mockEngine.On("Cancel", mock.Anything, int64(999), mock.Anything).Return(reservation.ErrReservationNotFound)

		handler := NewReservationHandler(mockEngine)
		c, _ := cancel("999", testUser)

		assert.Equal(t, http.StatusNotFound, httpCode(handler.Cancel(c)))
	})

	t.Run("他人の予約は403", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		mockEngine.On("Cancel", mock.Anything, int64(10), mock.Anything).Return(reservation.ErrForbidden)

		handler := NewReservationHandler(mockEngine)
		c, _ := cancel("10", &application.Caller{UserID: 7})

		assert.Equal(t, http.StatusForbidden, httpCode(handler.Cancel(c)))
	})
}
