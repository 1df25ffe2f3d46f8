// Package seed はカタログの初期データ（カテゴリとサンプルアイテム）を投入する。
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/itemcatalog/internal/model"
	"github.com/hitoshi/itemcatalog/internal/repository"
)

// TxRunner はトランザクション境界を提供するインターフェース。
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// sampleItem は投入するサンプルアイテム。
type sampleItem struct {
	Name        string
	Description string
}

// placeholderUser はサンプルアイテムの所有者。
var placeholderUser = model.User{
	Name:    "Dummy",
	Email:   "dummy@gmail.com",
	Picture: "https://img.icons8.com/windows/32/000000/contacts.png",
}

// Categories は投入するカテゴリ名（表示順）。
var Categories = []string{
	"Soccer", "Basketball", "Baseball", "Frisbee", "Snow Climbing",
	"Rock Climbing", "Foosball", "Skating", "Hockey",
}

var sampleItems = map[string][]sampleItem{
	"Soccer": {
		{"Football", "The ball used in the sport of association football. A black-and-white patterned truncated icosahedron design, brought to prominence by the Adidas Telstar, has become an icon of the sport."},
		{"Cleats", "Cleats or studs are protrusions on the sole of a shoe, or on an external attachment to a shoe, that provide additional traction on a soft or slippery surface."},
	},
	"Basketball": {
		{"Basketball", "A basketball is a spherical ball used in basketball games. The ball must be very durable and easy to hold on to."},
		{"Breakaway rim", "A breakaway rim is a basketball rim that contains a hinge and a spring at the point where it attaches to the backboard so that it can bend downward when a player dunks a basketball."},
	},
	"Baseball": {
		{"Bat", "A rounded, solid wooden or hollow aluminum bat. Wooden bats are traditionally made from ash wood, though maple and bamboo is also sometimes used."},
		{"Catcher's mitt", "Leather mitt worn by catchers. It is much wider than a normal fielder's glove and the four fingers are connected."},
	},
	"Frisbee": {
		{"Flying disc", "A gliding toy or sporting item that is generally plastic and roughly 8 to 10 inches (20 to 25 cm) in diameter with a pronounced lip."},
	},
}

// Result は投入結果の件数。
type Result struct {
	Categories   int // 存在を保証したカテゴリ数
	ItemsCreated int // 新規に作成したアイテム数
}

// Seeder は初期データを投入する。
// 既存のデータは変更しないため、何度実行しても結果は同じになる。
type Seeder struct {
	users      repository.UserRepository
	categories repository.CategoryRepository
	items      repository.ItemRepository
	tx         TxRunner
	logger     *slog.Logger
}

// NewSeeder はSeederを生成する。
func NewSeeder(
	users repository.UserRepository,
	categories repository.CategoryRepository,
	items repository.ItemRepository,
	tx TxRunner,
	logger *slog.Logger,
) *Seeder {
	return &Seeder{
		users:      users,
		categories: categories,
		items:      items,
		tx:         tx,
		logger:     logger,
	}
}

// Run は1トランザクションでカテゴリ、所有者ユーザー、サンプルアイテムを投入する。
func (s *Seeder) Run(ctx context.Context) (*Result, error) {
	result := &Result{}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		owner := placeholderUser
		user, err := s.users.FindOrCreateByEmail(ctx, &owner)
		if err != nil {
			return fmt.Errorf("所有者ユーザーの作成に失敗: %w", err)
		}

		for _, name := range Categories {
			category, err := s.categories.CreateIfAbsent(ctx, name)
			if err != nil {
				return fmt.Errorf("カテゴリ %s の作成に失敗: %w", name, err)
			}
			result.Categories++

			for _, sample := range sampleItems[name] {
				created, err := s.items.CreateIfAbsent(ctx, &model.Item{
					Name:        sample.Name,
					Description: sample.Description,
					CategoryID:  category.ID,
					UserID:      user.ID,
				})
				if err != nil {
					return fmt.Errorf("アイテム %s の作成に失敗: %w", sample.Name, err)
				}
				if created {
					result.ItemsCreated++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("catalog seeded",
		slog.Int("categories", result.Categories),
		slog.Int("items_created", result.ItemsCreated),
	)
	return result, nil
}
