package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/hitoshi/itemcatalog/internal/database"
	"github.com/hitoshi/itemcatalog/internal/model"
)

var userColumns = []string{"id", "name", "email", "picture", "created_at"}

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if !validID(id) {
		return nil, nil
	}
	return r.findOne(ctx, squirrel.Eq{"id": id})
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, squirrel.Eq{"email": email})
}

// FindOrCreateByEmail はINSERT ... ON CONFLICT (email) DO NOTHINGで行を確保した後、
// メールアドレスで読み直して返す。
func (r *PostgresUserRepo) FindOrCreateByEmail(ctx context.Context, user *model.User) (*model.User, error) {
	id := user.ID
	if id == "" {
		id = uuid.NewString()
	}

	query, args, err := psql.Insert("users").
		Columns("id", "name", "email", "picture").
		Values(id, user.Name, user.Email, user.Picture).
		Suffix("ON CONFLICT (email) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build user insert: %w", err)
	}

	if _, err := database.QuerierFromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	found, err := r.FindByEmail(ctx, user.Email)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("user %s vanished after upsert", user.Email)
	}
	return found, nil
}

func (r *PostgresUserRepo) findOne(ctx context.Context, where squirrel.Eq) (*model.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build user query: %w", err)
	}

	user := &model.User{}
	err = database.QuerierFromContext(ctx, r.db).QueryRowContext(ctx, query, args...).
		Scan(&user.ID, &user.Name, &user.Email, &user.Picture, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
