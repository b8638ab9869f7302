package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/application"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/trip"
)

func newTripAvailability(id int64, available int) *application.TripAvailability {
	return &application.TripAvailability{
		Trip: &trip.Trip{
			ID:         id,
			BusID:      1,
			BusNumber:  "KA-101",
			Capacity:   50,
			PriceCents: 350000,
			Departure:  "Tokyo",
			Arrival:    "Osaka",
			Date:       time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
			Time:       "08:30:00",
		},
		AvailableSeats: available,
	}
}

func TestTripHandler_List(t *testing.T) {
	e := NewTestEcho()

	t.Run("空席数付きの便一覧を返す", func(t *testing.T) {
		mockTrips := new(MockTripService)
		mockTrips.On("ListTrips", mock.Anything).Return([]*application.TripAvailability{
			newTripAvailability(1, 12),
			newTripAvailability(2, 0),
		}, nil)

		handler := NewTripHandler(mockTrips, new(MockBookingEngine))
		c, rec := newContext(e, httptest.NewRequest(http.MethodGet, "/api/v1/trips", nil), nil)

		require.NoError(t, handler.List(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp []TripResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp, 2)
		assert.Equal(t, 12, resp[0].AvailableSeats)
		assert.Equal(t, "2026-04-01", resp[0].Date)
		assert.Equal(t, "KA-101", resp[0].BusNumber)
		assert.Equal(t, 0, resp[1].AvailableSeats)
		mockTrips.AssertExpectations(t)
	})

	t.Run("取得失敗は500", func(t *testing.T) {
		mockTrips := new(MockTripService)
		mockTrips.On("ListTrips", mock.Anything).Return(nil, errors.New("db down"))

		handler := NewTripHandler(mockTrips, new(MockBookingEngine))
		c, _ := newContext(e, httptest.NewRequest(http.MethodGet, "/api/v1/trips", nil), nil)

		assert.Equal(t, http.StatusInternalServerError, httpCode(handler.List(c)))
	})
}

func TestTripHandler_GetByID(t *testing.T) {
	e := NewTestEcho()

	get := func(id string) (echo.Context, *httptest.ResponseRecorder) {
		c, rec := newContext(e, httptest.NewRequest(http.MethodGet, "/api/v1/trips/"+id, nil), nil)
		c.SetParamNames("id")
		c.SetParamValues(id)
		return c, rec
	}

	t.Run("便と正確な空席数を返す", func(t *testing.T) {
		mockTrips := new(MockTripService)
		mockTrips.On("GetTrip", mock.Anything, int64(1)).Return(newTripAvailability(1, 8), nil)

		handler := NewTripHandler(mockTrips, new(MockBookingEngine))
		c, rec := get("1")

		require.NoError(t, handler.GetByID(c))
		var resp TripResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(1), resp.ID)
		assert.Equal(t, 8, resp.AvailableSeats)
	})

	t.Run("存在しない便は404", func(t *testing.T) {
		mockTrips := new(MockTripService)
		mockTrips.On("GetTrip", mock.Anything, int64(99)).Return(nil, trip.ErrTripNotFound)

		handler := NewTripHandler(mockTrips, new(MockBookingEngine))
		c, _ := get("99")

		assert.Equal(t, http.StatusNotFound, httpCode(handler.GetByID(c)))
	})

	t.Run("不正なIDは400", func(t *testing.T) {
		handler := NewTripHandler(new(MockTripService), new(MockBookingEngine))
		c, _ := get("-1")

		assert.Equal(t, http.StatusBadRequest, httpCode(handler.GetByID(c)))
	})
}

func TestTripHandler_Availability(t *testing.T) {
	e := NewTestEcho()

	get := func(id string) (echo.Context, *httptest.ResponseRecorder) {
		c, rec := newContext(e, httptest.NewRequest(http.MethodGet, "/api/v1/trips/"+id+"/availability", nil), nil)
		c.SetParamNames("id")
		c.SetParamValues(id)
		return c, rec
	}

	t.Run("空席数を返す", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		mockEngine.On("AvailableSeats", mock.Anything, int64(3)).Return(17, nil)

		handler := NewTripHandler(new(MockTripService), mockEngine)
		c, rec := get("3")

		require.NoError(t, handler.Availability(c))
		var resp AvailabilityResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, AvailabilityResponse{TripID: 3, AvailableSeats: 17}, resp)
	})

	t.Run("存在しない便は404", func(t *testing.T) {
		mockEngine := new(MockBookingEngine)
		mockEngine.On("AvailableSeats", mock.Anything, int64(99)).Return(0, trip.ErrTripNotFound)

		handler := NewTripHandler(new(MockTripService), mockEngine)
		c, _ := get("99")

		assert.Equal(t, http.StatusNotFound, httpCode(handler.Availability(c)))
	})
}
