package trip

import (
	"context"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/transaction"
)

// Repository は便（在庫）リポジトリのインターフェース
type Repository interface {
	// GetByID はIDから便を取得する
	GetByID(ctx context.Context, id int64) (*Trip, error)

	// List は便一覧を出発日時順に取得する
	List(ctx context.Context) ([]*Trip, error)

	// GetCapacity はトランザクション内で便の定員を読み取る（ロックしない）
	GetCapacity(ctx context.Context, tx transaction.Tx, tripID int64) (int, error)

	// LockCapacity は便の行をロックして定員を返す
	// 同じ便への書き込みはこのロックで直列化され、他の便はブロックされない
	LockCapacity(ctx context.Context, tx transaction.Tx, tripID int64) (int, error)
}
