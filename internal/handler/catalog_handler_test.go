package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/itemcatalog/internal/catalog"
	"github.com/hitoshi/itemcatalog/internal/model"
)

// --- モック定義 ---

type mockCatalogService struct {
	homeFn                 func(ctx context.Context) (*catalog.HomePage, error)
	listCategoriesFn       func(ctx context.Context) ([]*model.Category, error)
	itemsInCategoryFn      func(ctx context.Context, categoryID string) (*catalog.CategoryPage, error)
	itemsInCategoryNamedFn func(ctx context.Context, name string) (*catalog.CategoryPage, error)
	getItemFn              func(ctx context.Context, categoryID, itemID string) (*model.Item, error)
	createItemFn           func(ctx context.Context, userID string, input model.ItemInput) (*model.Item, error)
	editItemFn             func(ctx context.Context, userID, itemID string, input model.ItemInput) (*model.Item, error)
	deleteItemFn           func(ctx context.Context, userID, itemID string) (*model.Item, error)
	canModifyFn            func(userID string, item *model.Item) bool
}

func (m *mockCatalogService) Home(ctx context.Context) (*catalog.HomePage, error) {
	if m.homeFn != nil {
		return m.homeFn(ctx)
	}
	return &catalog.HomePage{}, nil
}

func (m *mockCatalogService) ListCategories(ctx context.Context) ([]*model.Category, error) {
	if m.listCategoriesFn != nil {
		return m.listCategoriesFn(ctx)
	}
	return testCategories(), nil
}

func (m *mockCatalogService) ItemsInCategory(ctx context.Context, categoryID string) (*catalog.CategoryPage, error) {
	if m.itemsInCategoryFn != nil {
		return m.itemsInCategoryFn(ctx, categoryID)
	}
	return nil, model.NewNotFoundError("category", categoryID)
}

func (m *mockCatalogService) ItemsInCategoryNamed(ctx context.Context, name string) (*catalog.CategoryPage, error) {
	if m.itemsInCategoryNamedFn != nil {
		return m.itemsInCategoryNamedFn(ctx, name)
	}
	return nil, model.NewNotFoundError("category", name)
}

func (m *mockCatalogService) GetItem(ctx context.Context, categoryID, itemID string) (*model.Item, error) {
	if m.getItemFn != nil {
		return m.getItemFn(ctx, categoryID, itemID)
	}
	return nil, model.NewNotFoundError("item", itemID)
}

func (m *mockCatalogService) CreateItem(ctx context.Context, userID string, input model.ItemInput) (*model.Item, error) {
	if m.createItemFn != nil {
		return m.createItemFn(ctx, userID, input)
	}
	return nil, errors.New("not implemented")
}

func (m *mockCatalogService) EditItem(ctx context.Context, userID, itemID string, input model.ItemInput) (*model.Item, error) {
	if m.editItemFn != nil {
		return m.editItemFn(ctx, userID, itemID, input)
	}
	return nil, errors.New("not implemented")
}

func (m *mockCatalogService) DeleteItem(ctx context.Context, userID, itemID string) (*model.Item, error) {
	if m.deleteItemFn != nil {
		return m.deleteItemFn(ctx, userID, itemID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockCatalogService) CanModify(userID string, item *model.Item) bool {
	if m.canModifyFn != nil {
		return m.canModifyFn(userID, item)
	}
	return userID != "" && item.UserID == userID
}

var _ CatalogServiceInterface = (*mockCatalogService)(nil)
var _ CatalogServiceInterface = (*catalog.Service)(nil)

// --- テストデータ ---

func testCategories() []*model.Category {
	return []*model.Category{
		{ID: "cat-soccer", Name: "Soccer"},
		{ID: "cat-baseball", Name: "Baseball"},
	}
}

func testItem() *model.Item {
	return &model.Item{
		ID:          "item-1",
		Name:        "Bat",
		Description: "Wooden bat",
		CategoryID:  "cat-baseball",
		UserID:      "user-1",
		CreatedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// serveCatalog はchiのURLパラメータを解決するためにルーター経由でハンドラーを呼び出す。
func serveCatalog(t *testing.T, svc CatalogServiceInterface, sess *model.Session, method, pattern, target string, fn func(h *CatalogHandler) http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	saver := &mockSessionSaver{}
	h := NewCatalogHandler(svc, newTestPages(t, saver))

	r := chi.NewRouter()
	r.Method(method, pattern, fn(h))

	if sess == nil {
		sess = &model.Session{}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, withSession(httptest.NewRequest(method, target, nil), sess))
	return w
}

// --- HTMLページ ---

func TestCatalogHandler_Home_ListsCategoriesAndLatest(t *testing.T) {
	svc := &mockCatalogService{
		homeFn: func(context.Context) (*catalog.HomePage, error) {
			item := testItem()
			return &catalog.HomePage{
				Categories: testCategories(),
				Latest:     []model.ItemWithCategory{{Item: *item, CategoryName: "Baseball"}},
			}, nil
		},
	}

	w := serveCatalog(t, svc, nil, http.MethodGet, "/catalog/", "/catalog/", func(h *CatalogHandler) http.HandlerFunc { return h.Home })

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, want := range []string{"Soccer", "Baseball", "Bat", "/catalog/category/cat-baseball/item/item-1", "Mar 1, 2024"} {
		if !strings.Contains(body, want) {
			t.Errorf("body does not contain %q", want)
		}
	}
	if strings.Contains(body, "/catalog/item/new") {
		t.Error("anonymous visitor should not see the add item link")
	}
	if !strings.Contains(body, "/catalog/login") {
		t.Error("anonymous visitor should see the login link")
	}
}

func TestCatalogHandler_Home_ShowsUserAndFlashesOnce(t *testing.T) {
	sess := connectedSession("user-1")
	sess.AddFlash("Item Bat is successfully added.")

	saver := &mockSessionSaver{}
	h := NewCatalogHandler(&mockCatalogService{}, newTestPages(t, saver))

	w := httptest.NewRecorder()
	h.Home(w, withSession(httptest.NewRequest(http.MethodGet, "/catalog/", nil), sess))

	body := w.Body.String()
	if !strings.Contains(body, "Item Bat is successfully added.") {
		t.Error("flash message not rendered")
	}
	if !strings.Contains(body, "Alice") || !strings.Contains(body, "/gdisconnect") {
		t.Error("logged-in header not rendered")
	}
	if !strings.Contains(body, "/catalog/item/new") {
		t.Error("logged-in user should see the add item link")
	}
	if len(sess.Data.Flashes) != 0 {
		t.Errorf("flashes should be consumed, got %v", sess.Data.Flashes)
	}
	if saved := saver.last(); saved == nil || len(saved.Data.Flashes) != 0 {
		t.Error("session without flashes should be saved after rendering")
	}

	w = httptest.NewRecorder()
	h.Home(w, withSession(httptest.NewRequest(http.MethodGet, "/catalog/", nil), sess))
	if strings.Contains(w.Body.String(), "successfully added") {
		t.Error("flash message rendered twice")
	}
}

func TestCatalogHandler_Home_ServiceErrorRendersErrorPage(t *testing.T) {
	svc := &mockCatalogService{
		homeFn: func(context.Context) (*catalog.HomePage, error) {
			return nil, errors.New("pq: connection refused")
		},
	}
	w := serveCatalog(t, svc, nil, http.MethodGet, "/", "/", func(h *CatalogHandler) http.HandlerFunc { return h.Home })

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if strings.Contains(w.Body.String(), "pq:") {
		t.Error("internal error detail leaked into the page")
	}
	if !strings.Contains(w.Body.String(), "An internal error occurred.") {
		t.Error("error page should show the generic message")
	}
}

func TestCatalogHandler_About(t *testing.T) {
	w := serveCatalog(t, &mockCatalogService{}, nil, http.MethodGet, "/catalog/about", "/catalog/about", func(h *CatalogHandler) http.HandlerFunc { return h.About })

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
}

func TestCatalogHandler_ShowItems(t *testing.T) {
	var gotID string
	svc := &mockCatalogService{
		itemsInCategoryFn: func(_ context.Context, id string) (*catalog.CategoryPage, error) {
			gotID = id
			return &catalog.CategoryPage{
				Categories: testCategories(),
				Category:   testCategories()[1],
				Items:      []*model.Item{testItem()},
			}, nil
		},
	}
	w := serveCatalog(t, svc, nil, http.MethodGet, "/catalog/category/{category}/items", "/catalog/category/cat-baseball/items",
		func(h *CatalogHandler) http.HandlerFunc { return h.ShowItems })

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotID != "cat-baseball" {
		t.Errorf("category id = %q, want cat-baseball", gotID)
	}
	if body := w.Body.String(); !strings.Contains(body, "Baseball Items (1 item)") {
		t.Errorf("item count heading missing: %s", body)
	}
}

func TestCatalogHandler_ShowItems_UnknownCategoryIs404(t *testing.T) {
	w := serveCatalog(t, &mockCatalogService{}, nil, http.MethodGet, "/catalog/category/{category}/items", "/catalog/category/nope/items",
		func(h *CatalogHandler) http.HandlerFunc { return h.ShowItems })

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestCatalogHandler_ShowItem_ModifyLinksOnlyForOwner(t *testing.T) {
	svc := &mockCatalogService{
		getItemFn: func(_ context.Context, categoryID, itemID string) (*model.Item, error) {
			if categoryID != "cat-baseball" || itemID != "item-1" {
				t.Errorf("GetItem(%q, %q)", categoryID, itemID)
			}
			return testItem(), nil
		},
	}
	tests := []struct {
		name      string
		sess      *model.Session
		wantLinks bool
	}{
		{"anonymous", &model.Session{}, false},
		{"other user", connectedSession("user-2"), false},
		{"owner", connectedSession("user-1"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveCatalog(t, svc, tt.sess, http.MethodGet, "/catalog/category/{category}/item/{item}", "/catalog/category/cat-baseball/item/item-1",
				func(h *CatalogHandler) http.HandlerFunc { return h.ShowItem })

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			body := w.Body.String()
			if !strings.Contains(body, "Wooden bat") {
				t.Error("description not rendered")
			}
			if got := strings.Contains(body, "/item/item-1/edit"); got != tt.wantLinks {
				t.Errorf("edit link shown = %v, want %v", got, tt.wantLinks)
			}
		})
	}
}

func TestCatalogHandler_ShowItem_EmptyDescriptionPlaceholder(t *testing.T) {
	svc := &mockCatalogService{
		getItemFn: func(context.Context, string, string) (*model.Item, error) {
			item := testItem()
			item.Description = ""
			return item, nil
		},
	}
	w := serveCatalog(t, svc, nil, http.MethodGet, "/catalog/category/{category}/item/{item}", "/catalog/category/cat-baseball/item/item-1",
		func(h *CatalogHandler) http.HandlerFunc { return h.ShowItem })

	if !strings.Contains(w.Body.String(), "No description.") {
		t.Error("placeholder not rendered for empty description")
	}
}

func TestCatalogHandler_ShowItem_EscapesMarkup(t *testing.T) {
	svc := &mockCatalogService{
		getItemFn: func(context.Context, string, string) (*model.Item, error) {
			item := testItem()
			item.Description = "a < b & c"
			return item, nil
		},
	}
	w := serveCatalog(t, svc, nil, http.MethodGet, "/catalog/category/{category}/item/{item}", "/catalog/category/cat-baseball/item/item-1",
		func(h *CatalogHandler) http.HandlerFunc { return h.ShowItem })

	if !strings.Contains(w.Body.String(), "a &lt; b &amp; c") {
		t.Error("description should be HTML-escaped on render")
	}
}

// --- JSONエクスポート ---

func TestCatalogHandler_CategoryList(t *testing.T) {
	w := serveCatalog(t, &mockCatalogService{}, nil, http.MethodGet, "/catalog/categoryList", "/catalog/categoryList",
		func(h *CatalogHandler) http.HandlerFunc { return h.CategoryList })

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var raw map[string][]map[string]string
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	got := raw["Category"]
	if len(got) != 2 {
		t.Fatalf("len(Category) = %d, want 2", len(got))
	}
	if got[0]["id"] != "cat-soccer" || got[0]["name"] != "Soccer" {
		t.Errorf("Category[0] = %v", got[0])
	}
}

func TestCatalogHandler_CategoryList_EmptyIsArray(t *testing.T) {
	svc := &mockCatalogService{
		listCategoriesFn: func(context.Context) ([]*model.Category, error) { return nil, nil },
	}
	w := serveCatalog(t, svc, nil, http.MethodGet, "/catalog/categoryList", "/catalog/categoryList",
		func(h *CatalogHandler) http.HandlerFunc { return h.CategoryList })

	if body := strings.TrimSpace(w.Body.String()); body != `{"Category":[]}` {
		t.Errorf("body = %s, want empty array", body)
	}
}

func TestCatalogHandler_ItemsList(t *testing.T) {
	var gotName string
	svc := &mockCatalogService{
		itemsInCategoryNamedFn: func(_ context.Context, name string) (*catalog.CategoryPage, error) {
			gotName = name
			return &catalog.CategoryPage{
				Category: testCategories()[1],
				Items:    []*model.Item{testItem()},
			}, nil
		},
	}
	w := serveCatalog(t, svc, nil, http.MethodGet, "/catalog/category/{category}/itemsList", "/catalog/category/Baseball/itemsList",
		func(h *CatalogHandler) http.HandlerFunc { return h.ItemsList })

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotName != "Baseball" {
		t.Errorf("name = %q, want Baseball", gotName)
	}

	var resp struct {
		Category string `json:"Category"`
		Item     []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Description string `json:"description"`
			CategoryID  string `json:"category_id"`
		} `json:"item"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Category != "Baseball" {
		t.Errorf("Category = %q, want Baseball", resp.Category)
	}
	if len(resp.Item) != 1 || resp.Item[0].Name != "Bat" || resp.Item[0].CategoryID != "cat-baseball" {
		t.Errorf("item = %+v", resp.Item)
	}
}

func TestCatalogHandler_ItemsList_UnknownNameIs404JSON(t *testing.T) {
	w := serveCatalog(t, &mockCatalogService{}, nil, http.MethodGet, "/catalog/category/{category}/itemsList", "/catalog/category/Curling/itemsList",
		func(h *CatalogHandler) http.HandlerFunc { return h.ItemsList })

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if body := decodeError(t, w); body.Code != model.ErrCodeNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeNotFound)
	}
}
