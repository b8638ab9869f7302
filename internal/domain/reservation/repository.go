package reservation

import (
	"context"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/transaction"
)

// Repository は予約台帳のインターフェース
// 台帳自体は行をまたぐ不変条件（定員超過の防止）を強制しない。
// 容量チェックと書き込みを1つのトランザクションにまとめるのは BookingEngine の責務
type Repository interface {
	// SumActiveSeats は便の有効な予約の座席数合計を返す（トランザクション必須）
	SumActiveSeats(ctx context.Context, tx transaction.Tx, tripID int64) (int, error)

	// Insert は新しい予約を作成し、IDを設定する（トランザクション必須）
	Insert(ctx context.Context, tx transaction.Tx, r *Reservation) error

	// GetByID はIDから予約を取得する
	// tx が nil の場合はトランザクション外で読み取る
	GetByID(ctx context.Context, tx transaction.Tx, id int64) (*Reservation, error)

	// SetStatus は予約の状態を更新する（トランザクション必須）
	SetStatus(ctx context.Context, tx transaction.Tx, id int64, status Status) error

	// ListByUser はユーザーの予約一覧を便情報付きで新しい順に取得する
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*Detail, error)
}
