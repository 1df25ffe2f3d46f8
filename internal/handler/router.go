package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/itemcatalog/internal/metrics"
	"github.com/hitoshi/itemcatalog/internal/middleware"
)

// loginPath はログインが必要なページからのリダイレクト先。
const loginPath = "/catalog/login"

// itemRoutePattern はアイテム詳細ページのパターン。編集・削除はこの下に続く。
const itemRoutePattern = "/catalog/category/{category}/item/{item}"

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// セッション
	SessionLoader middleware.SessionLoader
	SessionSaver  SessionSaver

	// サービス
	AuthService    AuthServiceInterface
	AuthConfig     AuthHandlerConfig
	CatalogService CatalogServiceInterface

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない
	Metrics        metrics.MetricsCollector
	Logger         *slog.Logger
	HTTPSOnly      bool
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → Metrics → Session → Logging
//
// /health と /metrics はセッションを読み込まない。
// 作成・編集・削除のルートはGET・POSTともにLoginRequiredを通す。
func NewRouter(deps *RouterDeps) (http.Handler, error) {
	pages, err := NewPages(deps.SessionSaver)
	if err != nil {
		return nil, err
	}

	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.SessionSaver, pages, deps.AuthConfig)
	catalogHandler := NewCatalogHandler(deps.CatalogService, pages)
	itemHandler := NewItemHandler(deps.CatalogService, deps.SessionSaver, pages)

	r := chi.NewRouter()
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HTTPSOnly))
	r.Use(middleware.NewMetricsMiddleware(collector))

	// --- 運用エンドポイント ---
	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- セッションを使うルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionLoader))
		r.Use(middleware.NewLoggingMiddleware(logger))

		// 認証
		r.Get("/catalog/login", authHandler.ShowLogin)
		r.Post("/gconnect", authHandler.GConnect)
		r.Get("/gdisconnect", authHandler.GDisconnect)

		// 閲覧
		r.Get("/", catalogHandler.Home)
		r.Get("/catalog", catalogHandler.Home)
		r.Get("/catalog/", catalogHandler.Home)
		r.Get("/catalog/about", catalogHandler.About)
		r.Get("/catalog/category/{category}/items", catalogHandler.ShowItems)
		r.Get(itemRoutePattern, catalogHandler.ShowItem)

		// JSONエクスポート
		r.Get("/catalog/categoryList", catalogHandler.CategoryList)
		r.Get("/catalog/category/{category}/itemsList", catalogHandler.ItemsList)

		// 作成・編集・削除（ログイン必須）
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewLoginRequiredMiddleware(loginPath))

			r.Get("/catalog/item/new", itemHandler.NewItemForm)
			r.Post("/catalog/item/new", itemHandler.CreateItem)

			// 詳細ページ自体は公開のまま、編集・削除だけをこのグループに置く
			r.Get(itemRoutePattern+"/edit", itemHandler.EditItemForm)
			r.Post(itemRoutePattern+"/edit", itemHandler.UpdateItem)
			r.Get(itemRoutePattern+"/delete", itemHandler.DeleteItemForm)
			r.Post(itemRoutePattern+"/delete", itemHandler.DeleteItem)
		})
	})

	return r, nil
}
