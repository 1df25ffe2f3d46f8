package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Querier は*sql.DBと*sql.Txの共通インターフェース。
// リポジトリはこのインターフェース経由でクエリを発行する。
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txCtxKey struct{}

func withTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txCtxKey{}, tx)
}

// QuerierFromContext はコンテキストにトランザクションがあればそれを、なければdbを返す。
func QuerierFromContext(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := ctx.Value(txCtxKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// TxManager はコンテキストにトランザクションを載せて処理を実行する。
// RunInTxの入れ子はサポートしない。内側の呼び出しは外側のトランザクションをそのまま使う。
type TxManager struct {
	db *sql.DB
}

// NewTxManager はTxManagerを生成する。
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// RunInTx はfnを1つのトランザクション内で実行する。
// fnがエラーを返すかpanicした場合はロールバックし、成功時はコミットする。
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txCtxKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(withTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
