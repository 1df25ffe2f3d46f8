package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/itemcatalog/internal/database"
	"github.com/hitoshi/itemcatalog/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
// セッションの値はsessions.dataにJSONBとして保存する。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session.Data)
	if err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}

	_, err = database.QuerierFromContext(ctx, r.db).ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, data, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		session.ID, sessionUserID(session), data, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	var data []byte
	err := database.QuerierFromContext(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, data, expires_at, created_at, updated_at
		 FROM sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &data, &session.ExpiresAt, &session.CreatedAt, &session.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	if err := json.Unmarshal(data, &session.Data); err != nil {
		return nil, fmt.Errorf("failed to decode session data: %w", err)
	}
	return session, nil
}

// Update はセッションのデータ、ユーザーID、有効期限を更新する。
func (r *PostgresSessionRepo) Update(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session.Data)
	if err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}

	_, err = database.QuerierFromContext(ctx, r.db).ExecContext(ctx,
		`UPDATE sessions SET user_id = $2, data = $3, expires_at = $4, updated_at = $5
		 WHERE id = $1`,
		session.ID, sessionUserID(session), data, session.ExpiresAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := database.QuerierFromContext(ctx, r.db).ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired はbefore時点で期限切れのセッションを削除し、削除件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := database.QuerierFromContext(ctx, r.db).ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// sessionUserID は未ログインのセッションではNULLを返す。
func sessionUserID(session *model.Session) sql.NullString {
	return sql.NullString{String: session.Data.UserID, Valid: session.Data.UserID != ""}
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
