package sqltx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/domain/transaction"
)

var ErrForeignTx = errors.New("sqlx のトランザクションではありません")

// SetupFunc はトランザクション開始直後に実行される初期化処理
// ロック待ちのタイムアウト設定などに使う
type SetupFunc func(ctx context.Context, tx *sqlx.Tx) error

// TxWrapper は sqlx.Tx を transaction.Tx インターフェースでラップする
type TxWrapper struct {
	*sqlx.Tx
	committed bool
}

// Commit はトランザクションをコミットする
func (t *TxWrapper) Commit() error {
	if err := t.Tx.Commit(); err != nil {
		return err
	}
	t.committed = true
	return nil
}

// Rollback はトランザクションをロールバックする。コミット済みの場合は何もしない
func (t *TxWrapper) Rollback() error {
	if t.committed {
		return nil
	}
	err := t.Tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// TxManager は sqlx.DB を使用したトランザクションマネージャー
type TxManager struct {
	db    *sqlx.DB
	setup []SetupFunc
}

// NewTxManager は新しい TxManager を作成する
func NewTxManager(db *sqlx.DB, setup ...SetupFunc) *TxManager {
	return &TxManager{db: db, setup: setup}
}

// Begin は新しいトランザクションを開始する
// ReadOnly の場合は REPEATABLE READ の読み取り専用トランザクションにして、
// 複数の SELECT が同じスナップショットを参照するようにする
func (m *TxManager) Begin(ctx context.Context, opts transaction.Options) (transaction.Tx, error) {
	var txOpts *sql.TxOptions
	if opts.ReadOnly {
		txOpts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	tx, err := m.db.BeginTxx(ctx, txOpts)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	if !opts.ReadOnly {
		for _, fn := range m.setup {
			if err := fn(ctx, tx); err != nil {
				_ = tx.Rollback()
				return nil, fmt.Errorf("トランザクション初期化に失敗: %w", err)
			}
		}
	}
	return &TxWrapper{Tx: tx}, nil
}

// UnwrapTx は transaction.Tx から sqlx.Tx を取り出す
// リポジトリ実装で使用する
func UnwrapTx(tx transaction.Tx) (*sqlx.Tx, error) {
	if wrapper, ok := tx.(*TxWrapper); ok && wrapper.Tx != nil {
		return wrapper.Tx, nil
	}
	return nil, ErrForeignTx
}

// Queryer は tx があればそれを、なければ db を返す
func Queryer(db *sqlx.DB, tx transaction.Tx) (sqlx.ExtContext, error) {
	if tx == nil {
		return db, nil
	}
	return UnwrapTx(tx)
}

var _ transaction.Manager = (*TxManager)(nil)
