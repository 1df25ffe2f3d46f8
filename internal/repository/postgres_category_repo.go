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

// PostgresCategoryRepo はPostgreSQLを使用したカテゴリリポジトリ。
type PostgresCategoryRepo struct {
	db *sql.DB
}

// NewPostgresCategoryRepo はPostgresCategoryRepoを生成する。
func NewPostgresCategoryRepo(db *sql.DB) *PostgresCategoryRepo {
	return &PostgresCategoryRepo{db: db}
}

// List は全カテゴリを名前順で返す。
func (r *PostgresCategoryRepo) List(ctx context.Context) ([]*model.Category, error) {
	query, args, err := psql.Select("id", "name").From("categories").OrderBy("name ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build category query: %w", err)
	}

	rows, err := database.QuerierFromContext(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*model.Category
	for rows.Next() {
		c := &model.Category{}
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

// FindByID は指定IDのカテゴリを取得する。見つからない場合はnilを返す。
func (r *PostgresCategoryRepo) FindByID(ctx context.Context, id string) (*model.Category, error) {
	if !validID(id) {
		return nil, nil
	}
	return r.findOne(ctx, squirrel.Eq{"id": id})
}

// FindByName はカテゴリ名で検索する。見つからない場合はnilを返す。
func (r *PostgresCategoryRepo) FindByName(ctx context.Context, name string) (*model.Category, error) {
	return r.findOne(ctx, squirrel.Eq{"name": name})
}

// CreateIfAbsent は同名のカテゴリがなければ作成し、既存または作成したカテゴリを返す。
func (r *PostgresCategoryRepo) CreateIfAbsent(ctx context.Context, name string) (*model.Category, error) {
	query, args, err := psql.Insert("categories").
		Columns("id", "name").
		Values(uuid.NewString(), name).
		Suffix("ON CONFLICT (name) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build category insert: %w", err)
	}
	if _, err := database.QuerierFromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to insert category: %w", err)
	}

	category, err := r.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, fmt.Errorf("category %q vanished after insert", name)
	}
	return category, nil
}

func (r *PostgresCategoryRepo) findOne(ctx context.Context, where squirrel.Eq) (*model.Category, error) {
	query, args, err := psql.Select("id", "name").From("categories").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build category query: %w", err)
	}

	c := &model.Category{}
	err = database.QuerierFromContext(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find category: %w", err)
	}
	return c, nil
}

// compile-time interface check
var _ CategoryRepository = (*PostgresCategoryRepo)(nil)
