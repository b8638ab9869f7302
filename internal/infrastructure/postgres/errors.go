package postgres

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/reservation"
)

// 再試行すれば成功しうるエラーコード
const (
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// mapError はドライバのエラーをドメインのエラーに変換する
func mapError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%s: %w: %s", op, reservation.ErrBusy, pqErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
