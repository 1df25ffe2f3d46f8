// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/itemcatalog/internal/model"
)

// ErrDuplicate は一意制約違反を表す。
var ErrDuplicate = errors.New("duplicate key")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindOrCreateByEmail はメールアドレスが一致するユーザーを返し、存在しなければ作成する。
	// 同時実行されても同じメールアドレスのユーザーは1件しか作られない。
	FindOrCreateByEmail(ctx context.Context, user *model.User) (*model.User, error)
}

// CategoryRepository はカテゴリデータの永続化インターフェース。
type CategoryRepository interface {
	// List は全カテゴリを名前順で返す。
	List(ctx context.Context) ([]*model.Category, error)

	// FindByID は指定IDのカテゴリを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Category, error)

	// FindByName はカテゴリ名で検索する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Category, error)

	// CreateIfAbsent は同名のカテゴリがなければ作成し、既存または作成したカテゴリを返す。
	CreateIfAbsent(ctx context.Context, name string) (*model.Category, error)
}

// ItemRepository はアイテムデータの永続化インターフェース。
type ItemRepository interface {
	// ListByCategory はカテゴリに属するアイテムを名前順で返す。
	ListByCategory(ctx context.Context, categoryID string) ([]*model.Item, error)

	// ListLatest は作成日時の新しい順にlimit件のアイテムをカテゴリ名付きで返す。
	ListLatest(ctx context.Context, limit int) ([]model.ItemWithCategory, error)

	// FindByID は指定IDのアイテムを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Item, error)

	// Create はアイテムを作成する。created_atはDBの現在時刻で設定される。
	// 同名のアイテムが存在する場合はErrDuplicateを返す。
	Create(ctx context.Context, item *model.Item) error

	// Update は名前・説明・カテゴリのみを更新する。作成日時と所有者は変更しない。
	Update(ctx context.Context, item *model.Item) error

	// Delete は指定IDのアイテムを削除し、削除したかどうかを返す。
	Delete(ctx context.Context, id string) (bool, error)

	// CreateIfAbsent は同名のアイテムがなければ作成し、作成したかどうかを返す。
	CreateIfAbsent(ctx context.Context, item *model.Item) (bool, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// Update はセッションのデータと有効期限を更新する。
	Update(ctx context.Context, session *model.Session) error

	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error

	// DeleteExpired はbefore時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
