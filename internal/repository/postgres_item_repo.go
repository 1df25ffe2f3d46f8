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

var itemColumns = []string{"id", "name", "description", "category_id", "user_id", "created_at"}

// PostgresItemRepo はPostgreSQLを使用したアイテムリポジトリ。
type PostgresItemRepo struct {
	db *sql.DB
}

// NewPostgresItemRepo はPostgresItemRepoを生成する。
func NewPostgresItemRepo(db *sql.DB) *PostgresItemRepo {
	return &PostgresItemRepo{db: db}
}

func (r *PostgresItemRepo) q(ctx context.Context) database.Querier {
	return database.QuerierFromContext(ctx, r.db)
}

// ListByCategory はカテゴリに属するアイテムを名前順で返す。
func (r *PostgresItemRepo) ListByCategory(ctx context.Context, categoryID string) ([]*model.Item, error) {
	if !validID(categoryID) {
		return nil, nil
	}

	query, args, err := psql.Select(itemColumns...).
		From("items").
		Where(squirrel.Eq{"category_id": categoryID}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("アイテム一覧クエリの構築に失敗しました: %w", err)
	}

	rows, err := r.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("アイテム一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []*model.Item
	for rows.Next() {
		item := &model.Item{}
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.CategoryID, &item.UserID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("アイテムのスキャンに失敗しました: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アイテム一覧のイテレーションに失敗しました: %w", err)
	}
	return items, nil
}

// ListLatest は作成日時の新しい順にlimit件のアイテムをカテゴリ名付きで返す。
func (r *PostgresItemRepo) ListLatest(ctx context.Context, limit int) ([]model.ItemWithCategory, error) {
	query, args, err := psql.Select(
		"i.id", "i.name", "i.description", "i.category_id", "i.user_id", "i.created_at", "c.name",
	).
		From("items i").
		Join("categories c ON c.id = i.category_id").
		OrderBy("i.created_at DESC", "i.name ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("最新アイテムクエリの構築に失敗しました: %w", err)
	}

	rows, err := r.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("最新アイテムの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []model.ItemWithCategory
	for rows.Next() {
		var iwc model.ItemWithCategory
		if err := rows.Scan(
			&iwc.ID, &iwc.Name, &iwc.Description, &iwc.CategoryID, &iwc.UserID, &iwc.CreatedAt, &iwc.CategoryName,
		); err != nil {
			return nil, fmt.Errorf("アイテムのスキャンに失敗しました: %w", err)
		}
		items = append(items, iwc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("最新アイテムのイテレーションに失敗しました: %w", err)
	}
	return items, nil
}

// FindByID は指定IDのアイテムを取得する。見つからない場合はnilを返す。
func (r *PostgresItemRepo) FindByID(ctx context.Context, id string) (*model.Item, error) {
	if !validID(id) {
		return nil, nil
	}

	query, args, err := psql.Select(itemColumns...).From("items").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("アイテムクエリの構築に失敗しました: %w", err)
	}

	item := &model.Item{}
	err = r.q(ctx).QueryRowContext(ctx, query, args...).
		Scan(&item.ID, &item.Name, &item.Description, &item.CategoryID, &item.UserID, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}
	return item, nil
}

// Create はアイテムを作成する。IDが空なら採番し、created_atはDBの現在時刻で設定される。
// どちらもitemに書き戻される。
func (r *PostgresItemRepo) Create(ctx context.Context, item *model.Item) error {
	id := item.ID
	if id == "" {
		id = uuid.NewString()
	}

	query, args, err := psql.Insert("items").
		Columns("id", "name", "description", "category_id", "user_id").
		Values(id, item.Name, item.Description, item.CategoryID, item.UserID).
		Suffix("RETURNING created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("アイテム作成クエリの構築に失敗しました: %w", err)
	}

	if err := r.q(ctx).QueryRowContext(ctx, query, args...).Scan(&item.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("アイテムの作成に失敗しました: %w", err)
	}
	item.ID = id
	return nil
}

// Update は名前・説明・カテゴリのみを更新する。
func (r *PostgresItemRepo) Update(ctx context.Context, item *model.Item) error {
	query, args, err := psql.Update("items").
		Set("name", item.Name).
		Set("description", item.Description).
		Set("category_id", item.CategoryID).
		Where(squirrel.Eq{"id": item.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("アイテム更新クエリの構築に失敗しました: %w", err)
	}

	if _, err := r.q(ctx).ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("アイテムの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDのアイテムを削除し、削除したかどうかを返す。
func (r *PostgresItemRepo) Delete(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}

	query, args, err := psql.Delete("items").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return false, fmt.Errorf("アイテム削除クエリの構築に失敗しました: %w", err)
	}

	result, err := r.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("アイテムの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// CreateIfAbsent は同名のアイテムがなければ作成し、作成したかどうかを返す。
// 作成した場合のみitem.IDを書き戻す。
func (r *PostgresItemRepo) CreateIfAbsent(ctx context.Context, item *model.Item) (bool, error) {
	id := item.ID
	if id == "" {
		id = uuid.NewString()
	}

	query, args, err := psql.Insert("items").
		Columns("id", "name", "description", "category_id", "user_id").
		Values(id, item.Name, item.Description, item.CategoryID, item.UserID).
		Suffix("ON CONFLICT (name) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("アイテム作成クエリの構築に失敗しました: %w", err)
	}

	result, err := r.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("アイテムの作成に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	item.ID = id
	return true, nil
}

// compile-time interface check
var _ ItemRepository = (*PostgresItemRepo)(nil)
