package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/itemcatalog/internal/catalog"
	"github.com/hitoshi/itemcatalog/internal/middleware"
	"github.com/hitoshi/itemcatalog/internal/model"
)

// CatalogServiceInterface はカタログハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	Home(ctx context.Context) (*catalog.HomePage, error)
	ListCategories(ctx context.Context) ([]*model.Category, error)
	ItemsInCategory(ctx context.Context, categoryID string) (*catalog.CategoryPage, error)
	ItemsInCategoryNamed(ctx context.Context, name string) (*catalog.CategoryPage, error)
	GetItem(ctx context.Context, categoryID, itemID string) (*model.Item, error)
	CreateItem(ctx context.Context, userID string, input model.ItemInput) (*model.Item, error)
	EditItem(ctx context.Context, userID, itemID string, input model.ItemInput) (*model.Item, error)
	DeleteItem(ctx context.Context, userID, itemID string) (*model.Item, error)
	CanModify(userID string, item *model.Item) bool
}

// CatalogHandler はカタログ閲覧ページとJSONエクスポートのHTTPハンドラー。
type CatalogHandler struct {
	service CatalogServiceInterface
	pages   *Pages
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogServiceInterface, pages *Pages) *CatalogHandler {
	return &CatalogHandler{service: service, pages: pages}
}

// Home はカテゴリ一覧と最新アイテムを表示する。
// GET / , GET /catalog/
func (h *CatalogHandler) Home(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.Home(r.Context())
	if err != nil {
		h.pages.RenderError(w, r, err)
		return
	}
	h.pages.Render(w, r, http.StatusOK, pageHome, page)
}

// About はアプリケーションの説明ページを表示する。
// GET /catalog/about
func (h *CatalogHandler) About(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, http.StatusOK, pageAbout, nil)
}

// ShowItems はカテゴリに属するアイテム一覧を表示する。
// GET /catalog/category/{category}/items
func (h *CatalogHandler) ShowItems(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ItemsInCategory(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		h.pages.RenderError(w, r, err)
		return
	}
	h.pages.Render(w, r, http.StatusOK, pageItems, page)
}

// itemView はitem.htmlとdeleteitem.htmlに渡す値。
type itemView struct {
	Item      *model.Item
	CanModify bool
}

// ShowItem はアイテムの詳細を表示する。
// GET /catalog/category/{category}/item/{item}
func (h *CatalogHandler) ShowItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItem(r.Context(), chi.URLParam(r, "category"), chi.URLParam(r, "item"))
	if err != nil {
		h.pages.RenderError(w, r, err)
		return
	}
	h.pages.Render(w, r, http.StatusOK, pageItem, itemView{
		Item:      item,
		CanModify: h.service.CanModify(middleware.UserIDFromContext(r.Context()), item),
	})
}

// --- JSONエクスポート ---

type categoryJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type itemJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CategoryID  string `json:"category_id"`
}

type categoryListResponse struct {
	Category []categoryJSON `json:"Category"`
}

type itemsListResponse struct {
	Category string     `json:"Category"`
	Item     []itemJSON `json:"item"`
}

// CategoryList は全カテゴリをJSONで返す。
// GET /catalog/categoryList
func (h *CatalogHandler) CategoryList(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	resp := categoryListResponse{Category: make([]categoryJSON, 0, len(categories))}
	for _, c := range categories {
		resp.Category = append(resp.Category, categoryJSON{ID: c.ID, Name: c.Name})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ItemsList はカテゴリ名で指定したカテゴリのアイテムをJSONで返す。
// GET /catalog/category/{category}/itemsList
func (h *CatalogHandler) ItemsList(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ItemsInCategoryNamed(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	resp := itemsListResponse{
		Category: page.Category.Name,
		Item:     make([]itemJSON, 0, len(page.Items)),
	}
	for _, it := range page.Items {
		resp.Item = append(resp.Item, itemJSON{
			ID:          it.ID,
			Name:        it.Name,
			Description: it.Description,
			CategoryID:  it.CategoryID,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
