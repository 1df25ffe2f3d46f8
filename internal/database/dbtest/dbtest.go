// Package dbtest はPostgreSQLを使うテストのためのヘルパーを提供する。
//
// testcontainersでPostgreSQLコンテナを1つ起動し、同一パッケージのテスト実行全体で共有する。
// Dockerが利用できない環境ではテストをスキップする。
// TEST_DATABASE_URLはマイグレーションテストがテーブルを作り直すため共有しない。
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hitoshi/itemcatalog/internal/database"
)

var (
	once      sync.Once
	sharedDSN string
	initErr   error
)

// Open はマイグレーション適用済みのDBに接続し、全テーブルを空にして返す。
// 接続はt.Cleanupで閉じられる。
func Open(t *testing.T) *sql.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("-short 指定のためDB統合テストをスキップ")
	}

	once.Do(func() {
		sharedDSN, initErr = prepare()
	})
	if initErr != nil {
		t.Skipf("テスト用データベースを用意できません（スキップ）: %v", initErr)
	}

	db, err := database.Open(sharedDSN, database.PoolConfig{MaxOpenConns: 5})
	if err != nil {
		t.Fatalf("dbtest: failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`TRUNCATE sessions, items, categories, users`); err != nil {
		t.Fatalf("dbtest: failed to truncate tables: %v", err)
	}
	return db
}

func prepare() (string, error) {
	dsn, err := startContainer()
	if err != nil {
		return "", err
	}

	if _, err := database.RunMigrations(dsn); err != nil {
		return "", err
	}
	return dsn, nil
}

func startContainer() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "catalog",
			"POSTGRES_PASSWORD": "catalog",
			"POSTGRES_DB":       "itemcatalog_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", fmt.Errorf("get mapped port: %w", err)
	}

	return fmt.Sprintf("postgres://catalog:catalog@%s:%s/itemcatalog_test?sslmode=disable", host, port.Port()), nil
}
