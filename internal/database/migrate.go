// Package database はPostgreSQL接続プール、トランザクション、スキーマ移行を扱う。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var catalogMigrations embed.FS

// MigrationResult はRunMigrations後のスキーマ状態。
type MigrationResult struct {
	Version uint // 適用済みの最新バージョン
	Changed bool // 今回新たに適用したものがあるか
}

// NewMigrator は埋め込みのカタログスキーマを元にmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(catalogMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations はカタログスキーマを最新まで上げる。
// 前回の移行が途中で失敗しdirtyのままの場合は何もせずエラーを返す。
func RunMigrations(databaseURL string) (*MigrationResult, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	if _, dirty, err := m.Version(); err == nil && dirty {
		return nil, errors.New("schema is dirty; fix it manually and force the version before migrating")
	}

	changed := true
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		changed = false
	}

	version, _, err := m.Version()
	if err != nil {
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}
	return &MigrationResult{Version: version, Changed: changed}, nil
}
