package mysql

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/config"
	"github.com/sanosuguru/go-bus-trip-reservation/internal/infrastructure/sqltx"
)

// NewConnection はMySQLへの接続を作成する
func NewConnection(cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	// 接続プール設定
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Ping はデータベース接続を確認する
func Ping(ctx context.Context, db *sqlx.DB) error {
	return db.PingContext(ctx)
}

// LockWaitTimeout は行ロック待ちを d に制限する（InnoDB は秒単位、最小1秒）
// 超過すると 1205 が返り、ErrBusy に変換される
func LockWaitTimeout(d time.Duration) sqltx.SetupFunc {
	return func(ctx context.Context, tx *sqlx.Tx) error {
		if d <= 0 {
			return nil
		}
		seconds := int(d.Round(time.Second) / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", seconds))
		return err
	}
}

// NewTxManager はロック待ち上限付きのトランザクションマネージャーを作成する
func NewTxManager(db *sqlx.DB, lockTimeout time.Duration) *sqltx.TxManager {
	return sqltx.NewTxManager(db, LockWaitTimeout(lockTimeout))
}
