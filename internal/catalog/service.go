// Package catalog はカテゴリとアイテムの閲覧・編集のビジネスロジックを提供する。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/itemcatalog/internal/model"
	"github.com/hitoshi/itemcatalog/internal/repository"
	"github.com/hitoshi/itemcatalog/internal/security"
)

// LatestItemsLimit はトップページに表示する最新アイテムの件数。
const LatestItemsLimit = 10

const (
	maxNameLength        = 80
	maxDescriptionLength = 250
)

// OwnershipPolicy はアイテムの編集・削除を誰に許可するかを表す。
type OwnershipPolicy int

const (
	// OwnershipEnforced は作成者本人にのみ編集・削除を許可する。
	OwnershipEnforced OwnershipPolicy = iota
	// OwnershipPermissive はログイン済みの全ユーザーに編集・削除を許可する。
	OwnershipPermissive
)

// TxRunner はトランザクション境界を提供するインターフェース。
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// HomePage はトップページの表示内容。
type HomePage struct {
	Categories []*model.Category
	Latest     []model.ItemWithCategory
}

// CategoryPage はカテゴリ別アイテム一覧の表示内容。
type CategoryPage struct {
	Categories []*model.Category
	Category   *model.Category
	Items      []*model.Item
}

// Service はカタログのサービス層。
type Service struct {
	categoryRepo repository.CategoryRepository
	itemRepo     repository.ItemRepository
	tx           TxRunner
	sanitizer    security.TextSanitizer
	policy       OwnershipPolicy
}

// NewService はServiceを生成する。
func NewService(
	categoryRepo repository.CategoryRepository,
	itemRepo repository.ItemRepository,
	tx TxRunner,
	sanitizer security.TextSanitizer,
	policy OwnershipPolicy,
) *Service {
	return &Service{
		categoryRepo: categoryRepo,
		itemRepo:     itemRepo,
		tx:           tx,
		sanitizer:    sanitizer,
		policy:       policy,
	}
}

// Home は全カテゴリと最新のアイテムを返す。
func (s *Service) Home(ctx context.Context) (*HomePage, error) {
	categories, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	latest, err := s.itemRepo.ListLatest(ctx, LatestItemsLimit)
	if err != nil {
		return nil, err
	}
	return &HomePage{Categories: categories, Latest: latest}, nil
}

// ListCategories は全カテゴリを名前順で返す。
func (s *Service) ListCategories(ctx context.Context) ([]*model.Category, error) {
	categories, err := s.categoryRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の取得に失敗しました: %w", err)
	}
	return categories, nil
}

// GetCategory は指定IDのカテゴリを返す。
func (s *Service) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	category, err := s.categoryRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("カテゴリの取得に失敗しました: %w", err)
	}
	if category == nil {
		return nil, model.NewNotFoundError("category", id)
	}
	return category, nil
}

// ItemsInCategory はカテゴリIDで指定したカテゴリのアイテム一覧を返す。
func (s *Service) ItemsInCategory(ctx context.Context, categoryID string) (*CategoryPage, error) {
	category, err := s.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	return s.categoryPage(ctx, category)
}

// ItemsInCategoryNamed はカテゴリ名で指定したカテゴリのアイテム一覧を返す。
func (s *Service) ItemsInCategoryNamed(ctx context.Context, name string) (*CategoryPage, error) {
	category, err := s.categoryRepo.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("カテゴリの取得に失敗しました: %w", err)
	}
	if category == nil {
		return nil, model.NewNotFoundError("category", name)
	}
	return s.categoryPage(ctx, category)
}

func (s *Service) categoryPage(ctx context.Context, category *model.Category) (*CategoryPage, error) {
	categories, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.itemRepo.ListByCategory(ctx, category.ID)
	if err != nil {
		return nil, err
	}
	return &CategoryPage{Categories: categories, Category: category, Items: items}, nil
}

// GetItem はカテゴリに属するアイテムを返す。
// アイテムが存在しない、または別のカテゴリに属する場合はNOT_FOUNDを返す。
func (s *Service) GetItem(ctx context.Context, categoryID, itemID string) (*model.Item, error) {
	item, err := s.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.CategoryID != categoryID {
		return nil, model.NewNotFoundError("item", itemID)
	}
	return item, nil
}

// CreateItem はログインユーザーを所有者としてアイテムを作成する。
// カテゴリ名が解決できない場合はUNKNOWN_CATEGORY、同名のアイテムがある場合はCONFLICTを返す。
func (s *Service) CreateItem(ctx context.Context, userID string, input model.ItemInput) (*model.Item, error) {
	if userID == "" {
		return nil, model.NewNotConnectedError()
	}
	name, description, err := s.normalize(input)
	if err != nil {
		return nil, err
	}

	item := &model.Item{
		Name:        name,
		Description: description,
		UserID:      userID,
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		category, err := s.resolveCategory(ctx, input.CategoryName)
		if err != nil {
			return err
		}
		item.CategoryID = category.ID

		if err := s.itemRepo.Create(ctx, item); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return model.NewConflictError("Item", name)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("item created",
		slog.String("item_id", item.ID),
		slog.String("user_id", userID),
	)
	return item, nil
}

// EditItem はアイテムの名前・説明・カテゴリを上書きする。
// ID、作成日時、所有者は変更しない。
func (s *Service) EditItem(ctx context.Context, userID, itemID string, input model.ItemInput) (*model.Item, error) {
	name, description, err := s.normalize(input)
	if err != nil {
		return nil, err
	}

	var item *model.Item
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		item, err = s.ownedItem(ctx, userID, itemID)
		if err != nil {
			return err
		}

		category, err := s.resolveCategory(ctx, input.CategoryName)
		if err != nil {
			return err
		}

		item.Name = name
		item.Description = description
		item.CategoryID = category.ID
		if err := s.itemRepo.Update(ctx, item); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return model.NewConflictError("Item", name)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("item updated",
		slog.String("item_id", item.ID),
		slog.String("user_id", userID),
	)
	return item, nil
}

// DeleteItem はアイテムを削除し、削除したアイテムを返す。
func (s *Service) DeleteItem(ctx context.Context, userID, itemID string) (*model.Item, error) {
	var item *model.Item
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		item, err = s.ownedItem(ctx, userID, itemID)
		if err != nil {
			return err
		}

		deleted, err := s.itemRepo.Delete(ctx, itemID)
		if err != nil {
			return err
		}
		if !deleted {
			return model.NewNotFoundError("item", itemID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("item deleted",
		slog.String("item_id", itemID),
		slog.String("user_id", userID),
	)
	return item, nil
}

// CanModify はユーザーがアイテムを編集・削除できるかを返す。
func (s *Service) CanModify(userID string, item *model.Item) bool {
	if userID == "" {
		return false
	}
	return s.policy == OwnershipPermissive || item.UserID == userID
}

// ownedItem は変更対象のアイテムを取得し、所有者ポリシーを適用する。
func (s *Service) ownedItem(ctx context.Context, userID, itemID string) (*model.Item, error) {
	if userID == "" {
		return nil, model.NewNotConnectedError()
	}
	item, err := s.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, model.NewNotFoundError("item", itemID)
	}
	if !s.CanModify(userID, item) {
		slog.Warn("item modification rejected",
			slog.String("item_id", itemID),
			slog.String("user_id", userID),
		)
		return nil, model.NewForbiddenError()
	}
	return item, nil
}

func (s *Service) resolveCategory(ctx context.Context, name string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	category, err := s.categoryRepo.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("カテゴリの取得に失敗しました: %w", err)
	}
	if category == nil {
		return nil, model.NewUnknownCategoryError(name)
	}
	return category, nil
}

// normalize は入力をプレーンテキスト化し、長さを検証する。
func (s *Service) normalize(input model.ItemInput) (name, description string, err error) {
	name = s.sanitizer.Sanitize(input.Name)
	description = s.sanitizer.Sanitize(input.Description)

	if name == "" {
		return "", "", model.NewValidationError("Item name is required.")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", "", model.NewValidationError(fmt.Sprintf("Item name must be at most %d characters.", maxNameLength))
	}
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return "", "", model.NewValidationError(fmt.Sprintf("Description must be at most %d characters.", maxDescriptionLength))
	}
	return name, description, nil
}
