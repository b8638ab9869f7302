package migration

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

var (
	ErrPathRequired = errors.New("マイグレーションのパスが未指定です")
	// ErrDirty は前回のマイグレーションが途中で失敗したままであることを示す
	ErrDirty = errors.New("スキーマが dirty 状態です。手動で修復してください")
)

// SourceURL はマイグレーションディレクトリを file:// 形式の絶対URLにする
func SourceURL(path string) (string, error) {
	if path == "" {
		return "", ErrPathRequired
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("マイグレーションのパスを解決できません: %w", err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}

// Up は path のマイグレーションを driver に適用し、適用後のスキーマバージョンを返す
// dirty 状態のスキーマには何も適用しない。未適用のものがなければ現在のバージョンを返す
func Up(path, dbName string, driver database.Driver) (uint, error) {
	src, err := SourceURL(path)
	if err != nil {
		return 0, err
	}
	m, err := migrate.NewWithDatabaseInstance(src, dbName, driver)
	if err != nil {
		return 0, fmt.Errorf("マイグレーションインスタンス作成エラー: %w", err)
	}

	if v, dirty, err := m.Version(); err == nil && dirty {
		return v, fmt.Errorf("%w: version=%d", ErrDirty, v)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("マイグレーション実行エラー: %w", err)
	}

	v, _, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("スキーマバージョン取得エラー: %w", err)
	}
	return v, nil
}
