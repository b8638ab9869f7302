package postgres

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/infrastructure/migration"
)

// RunMigrations は便・予約スキーマを最新にし、適用後のスキーマバージョンを返す
func RunMigrations(db *sql.DB, migrationsPath string) (uint, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return 0, fmt.Errorf("マイグレーションドライバー作成エラー: %w", err)
	}
	return migration.Up(migrationsPath, "postgres", driver)
}
