package postgres

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/reservation"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantBusy bool
	}{
		{"ロック取得タイムアウト", &pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"}, true},
		{"直列化失敗", &pq.Error{Code: "40001", Message: "could not serialize access"}, true},
		{"デッドロック", &pq.Error{Code: "40P01", Message: "deadlock detected"}, true},
		{"一意制約違反", &pq.Error{Code: "23505", Message: "duplicate key"}, false},
		{"その他のエラー", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError("テスト", tt.err)
			assert.Equal(t, tt.wantBusy, errors.Is(err, reservation.ErrBusy))
			assert.ErrorContains(t, err, "テスト")
		})
	}
}
