//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/api/middleware"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/trip"
)

// TestServer はE2Eテスト用のサーバー
type TestServer struct {
	Echo *echo.Echo
}

// Request はHTTPリクエストを実行
func (s *TestServer) Request(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody []byte
	if body != nil {
		reqBody, _ = json.Marshal(body)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func asUser(id int64) map[string]string {
	return map[string]string{middleware.HeaderUserID: fmt.Sprint(id)}
}

func asAdmin(id int64) map[string]string {
	return map[string]string{middleware.HeaderUserID: fmt.Sprint(id), middleware.HeaderUserRole: adminRole}
}

// createTrip は指定定員のバスと便を登録し、便IDを返す
func createTrip(t *testing.T, number string, capacity int) int64 {
	t.Helper()
	ctx := context.Background()
	bus := trip.NewBus(number, capacity, 350000)
	require.NoError(t, tripRepo.CreateBus(ctx, bus))
	tr := trip.NewTrip(bus, "Tokyo", "Osaka", time.Now().UTC().AddDate(0, 0, 7).Truncate(24*time.Hour), "08:30:00")
	require.NoError(t, tripRepo.CreateTrip(ctx, tr))
	return tr.ID
}

func availableSeats(t *testing.T, server *TestServer, tripID int64) int {
	t.Helper()
	rec := server.Request("GET", fmt.Sprintf("/api/v1/trips/%d/availability", tripID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return int(resp["available_seats"].(float64))
}

func reserve(server *TestServer, userID, tripID int64, seats int) *httptest.ResponseRecorder {
	body := map[string]interface{}{"trip_id": tripID, "seats": seats}
	return server.Request("POST", "/api/v1/reservations", body, asUser(userID))
}

// TestE2E_HealthCheck はヘルスチェックをテスト
func TestE2E_HealthCheck(t *testing.T) {
	server := getTestServer(t)

	rec := server.Request("GET", "/health", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

// TestE2E_CompleteReservationJourney は予約からキャンセルまでの流れをテスト
func TestE2E_CompleteReservationJourney(t *testing.T) {
	server := getTestServer(t)

	const userID int64 = 1001
	tripID := createTrip(t, "E2E-001", 10)
	var reservationID int64

	// 1. 便一覧
	t.Run("便一覧", func(t *testing.T) {
		rec := server.Request("GET", "/api/v1/trips", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp []map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp, 1)
		assert.Equal(t, float64(10), resp[0]["available_seats"])
		assert.Equal(t, "E2E-001", resp[0]["bus_number"])
	})

	// 2. 予約作成
	t.Run("予約作成", func(t *testing.T) {
		rec := reserve(server, userID, tripID, 4)
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		reservationID = int64(resp["id"].(float64))
		assert.Equal(t, "active", resp["status"])
		assert.Equal(t, float64(4), resp["seats"])
	})

	// 3. 空席数が減っていることを確認
	t.Run("空席数減少確認", func(t *testing.T) {
		assert.Equal(t, 6, availableSeats(t, server, tripID))

		// 一覧のキャッシュも予約後に無効化されている
		rec := server.Request("GET", "/api/v1/trips", nil, nil)
		var resp []map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, float64(6), resp[0]["available_seats"])
	})

	// 4. 予約一覧と詳細
	t.Run("予約一覧", func(t *testing.T) {
		rec := server.Request("GET", "/api/v1/reservations", nil, asUser(userID))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp []map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp, 1)
		assert.Equal(t, "Tokyo", resp[0]["departure"])
		assert.Equal(t, float64(4*350000), resp[0]["total_cents"])
	})

	t.Run("他のユーザーは参照もキャンセルもできない", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/reservations/%d", reservationID)
		rec := server.Request("GET", path, nil, asUser(2002))
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = server.Request("POST", path+"/cancel", nil, asUser(2002))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, 6, availableSeats(t, server, tripID))
	})

	// 5. キャンセル（2回目も成功し、座席は1回分だけ戻る）
	t.Run("キャンセル", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/reservations/%d/cancel", reservationID)
		rec := server.Request("POST", path, nil, asUser(userID))
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, 10, availableSeats(t, server, tripID))

		rec = server.Request("POST", path, nil, asUser(userID))
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, 10, availableSeats(t, server, tripID))
	})

	t.Run("キャンセル済みの予約を取得", func(t *testing.T) {
		rec := server.Request("GET", fmt.Sprintf("/api/v1/reservations/%d", reservationID), nil, asUser(userID))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "cancelled", resp["status"])
	})
}

// TestE2E_InsufficientCapacity は空席不足をテスト
func TestE2E_InsufficientCapacity(t *testing.T) {
	server := getTestServer(t)
	tripID := createTrip(t, "E2E-002", 5)

	require.Equal(t, http.StatusCreated, reserve(server, 1, tripID, 3).Code)

	rec := reserve(server, 2, tripID, 3)
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp["available"])

	// 残りちょうどの座席数は予約できる
	require.Equal(t, http.StatusCreated, reserve(server, 2, tripID, 2).Code)
	assert.Equal(t, 0, availableSeats(t, server, tripID))
}

// TestE2E_InvalidRequests は不正なリクエストをテスト
func TestE2E_InvalidRequests(t *testing.T) {
	server := getTestServer(t)
	tripID := createTrip(t, "E2E-003", 5)

	assert.Equal(t, http.StatusBadRequest, reserve(server, 1, tripID, 0).Code)
	assert.Equal(t, http.StatusBadRequest, reserve(server, 1, tripID, -2).Code)
	assert.Equal(t, http.StatusNotFound, reserve(server, 1, 99999, 1).Code)
	assert.Equal(t, http.StatusNotFound, server.Request("GET", "/api/v1/trips/99999/availability", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, server.Request("POST", "/api/v1/reservations/99999/cancel", nil, asUser(1)).Code)
	assert.Equal(t, http.StatusUnauthorized, server.Request("POST", "/api/v1/reservations", map[string]interface{}{"trip_id": tripID, "seats": 1}, nil).Code)
	assert.Equal(t, 5, availableSeats(t, server, tripID))
}

// TestE2E_AdminCancel は管理者による代理キャンセルをテスト
func TestE2E_AdminCancel(t *testing.T) {
	server := getTestServer(t)
	tripID := createTrip(t, "E2E-004", 5)

	rec := reserve(server, 1, tripID, 5)
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	id := int64(resp["id"].(float64))

	rec = server.Request("POST", fmt.Sprintf("/api/v1/reservations/%d/cancel", id), nil, asAdmin(9000))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 5, availableSeats(t, server, tripID))
}

// TestE2E_ConcurrentReservations は同時予約で定員を超えないことをテスト
// 定員50の便に6席ずつ10件の同時予約を行うと8件だけ成立する
func TestE2E_ConcurrentReservations(t *testing.T) {
	server := getTestServer(t)
	tripID := createTrip(t, "E2E-005", 50)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			rec := reserve(server, userID, tripID, 6)
			mu.Lock()
			statuses[rec.Code]++
			mu.Unlock()
		}(int64(100 + i))
	}
	wg.Wait()

	assert.Equal(t, 8, statuses[http.StatusCreated], "statuses: %v", statuses)
	assert.Equal(t, 2, statuses[http.StatusConflict], "statuses: %v", statuses)
	assert.Equal(t, 2, availableSeats(t, server, tripID))
}
