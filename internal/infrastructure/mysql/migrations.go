package mysql

import (
	"database/sql"
	"fmt"

	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/infrastructure/migration"
)

// RunMigrations は便・予約スキーマを最新にし、適用後のスキーマバージョンを返す
// 複数文を含むファイルのため、DSN に multiStatements=true が必要
func RunMigrations(db *sql.DB, migrationsPath string) (uint, error) {
	driver, err := migratemysql.WithInstance(db, &migratemysql.Config{})
	if err != nil {
		return 0, fmt.Errorf("マイグレーションドライバー作成エラー: %w", err)
	}
	return migration.Up(migrationsPath, "mysql", driver)
}
