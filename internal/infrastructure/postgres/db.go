package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/config"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/infrastructure/sqltx"
)

// NewConnection はPostgreSQLへの接続を作成する
func NewConnection(cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	// 接続プール設定
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	return db, nil
}

// Ping はデータベース接続を確認する
func Ping(ctx context.Context, db *sqlx.DB) error {
	return db.PingContext(ctx)
}

// LockTimeout はトランザクション内の行ロック待ちを d に制限する
// 超過すると 55P03 が返り、ErrBusy に変換される
func LockTimeout(d time.Duration) sqltx.SetupFunc {
	return func(ctx context.Context, tx *sqlx.Tx) error {
		if d <= 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds()))
		return err
	}
}

// NewTxManager はロック待ち上限付きのトランザクションマネージャーを作成する
func NewTxManager(db *sqlx.DB, lockTimeout time.Duration) *sqltx.TxManager {
	return sqltx.NewTxManager(db, LockTimeout(lockTimeout))
}
