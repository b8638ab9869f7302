package mysql

import (
	"errors"
	"fmt"

	driver "github.com/go-sql-driver/mysql"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/reservation"
)

// 再試行すれば成功しうるエラー番号
const (
	errLockWaitTimeout uint16 = 1205
	errDeadlock        uint16 = 1213
	errLockNowait      uint16 = 3572
)

// mapError はドライバのエラーをドメインのエラーに変換する
func mapError(op string, err error) error {
	var myErr *driver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errLockWaitTimeout, errDeadlock, errLockNowait:
			return fmt.Errorf("%s: %w: %s", op, reservation.ErrBusy, myErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
