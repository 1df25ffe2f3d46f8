package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/itemcatalog/internal/model"
)

// --- ヘルパー ---

type itemTestEnv struct {
	handler *ItemHandler
	saver   *mockSessionSaver
	router  chi.Router
}

func newItemTestEnv(t *testing.T, svc CatalogServiceInterface) *itemTestEnv {
	t.Helper()
	saver := &mockSessionSaver{}
	h := NewItemHandler(svc, saver, newTestPages(t, saver))

	r := chi.NewRouter()
	r.Get("/catalog/item/new", h.NewItemForm)
	r.Post("/catalog/item/new", h.CreateItem)
	r.Get(itemRoutePattern+"/edit", h.EditItemForm)
	r.Post(itemRoutePattern+"/edit", h.UpdateItem)
	r.Get(itemRoutePattern+"/delete", h.DeleteItemForm)
	r.Post(itemRoutePattern+"/delete", h.DeleteItem)
	return &itemTestEnv{handler: h, saver: saver, router: r}
}

func (e *itemTestEnv) do(sess *model.Session, method, target string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, withSession(req, sess))
	return w
}

func itemForm(name, description, category string) url.Values {
	return url.Values{
		"name":        {name},
		"description": {description},
		"category":    {category},
	}
}

func ownedItemService() *mockCatalogService {
	return &mockCatalogService{
		getItemFn: func(_ context.Context, categoryID, itemID string) (*model.Item, error) {
			item := testItem()
			if categoryID != item.CategoryID || itemID != item.ID {
				return nil, model.NewNotFoundError("item", itemID)
			}
			return item, nil
		},
	}
}

// --- 作成 ---

func TestItemHandler_NewItemForm_PreselectsFirstCategory(t *testing.T) {
	env := newItemTestEnv(t, &mockCatalogService{})

	w := env.do(connectedSession("user-1"), http.MethodGet, "/catalog/item/new", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `<option value="Soccer" selected>`) {
		t.Errorf("first category should be selected: %s", body)
	}
	if !strings.Contains(body, `action="/catalog/item/new"`) {
		t.Error("form action missing")
	}
}

func TestItemHandler_CreateItem_RedirectsToItemCategory(t *testing.T) {
	var gotUser string
	var gotInput model.ItemInput
	svc := &mockCatalogService{
		createItemFn: func(_ context.Context, userID string, input model.ItemInput) (*model.Item, error) {
			gotUser, gotInput = userID, input
			return &model.Item{ID: "item-9", Name: input.Name, CategoryID: "cat-baseball", UserID: userID}, nil
		},
	}
	env := newItemTestEnv(t, svc)

	w := env.do(connectedSession("user-1"), http.MethodPost, "/catalog/item/new", itemForm("Glove", "Leather", "Baseball"))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusFound, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/catalog/category/cat-baseball/items" {
		t.Errorf("Location = %q", loc)
	}
	if gotUser != "user-1" {
		t.Errorf("userID = %q, want user-1", gotUser)
	}
	want := model.ItemInput{Name: "Glove", Description: "Leather", CategoryName: "Baseball"}
	if gotInput != want {
		t.Errorf("input = %+v, want %+v", gotInput, want)
	}
	saved := env.saver.last()
	if saved == nil || len(saved.Data.Flashes) != 1 || saved.Data.Flashes[0] != "Item Glove is successfully added." {
		t.Errorf("flash not saved: %+v", saved)
	}
}

func TestItemHandler_CreateItem_InputErrorsRerenderForm(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", model.NewValidationError("Name is required."), http.StatusBadRequest, "Name is required."},
		{"unknown category", model.NewUnknownCategoryError("Curling"), http.StatusBadRequest, "Unknown category: Curling"},
		{"conflict", model.NewConflictError("Item", "Bat"), http.StatusConflict, "already exists."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCatalogService{
				createItemFn: func(context.Context, string, model.ItemInput) (*model.Item, error) {
					return nil, tt.err
				},
			}
			env := newItemTestEnv(t, svc)

			w := env.do(connectedSession("user-1"), http.MethodPost, "/catalog/item/new", itemForm("Bat", "kept text", "Baseball"))

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			body := w.Body.String()
			if !strings.Contains(body, tt.msg) && !strings.Contains(body, strings.ReplaceAll(tt.msg, `"`, "&#34;")) {
				t.Errorf("error message %q not shown", tt.msg)
			}
			if !strings.Contains(body, "kept text") {
				t.Error("submitted values should be kept in the form")
			}
			if !strings.Contains(body, `<option value="Baseball" selected>`) {
				t.Error("submitted category should stay selected")
			}
			if len(env.saver.saved) != 0 {
				t.Error("session should not be saved")
			}
		})
	}
}

func TestItemHandler_CreateItem_OtherErrorsRenderErrorPage(t *testing.T) {
	svc := &mockCatalogService{
		createItemFn: func(context.Context, string, model.ItemInput) (*model.Item, error) {
			return nil, errors.New("insert failed")
		},
	}
	env := newItemTestEnv(t, svc)

	w := env.do(connectedSession("user-1"), http.MethodPost, "/catalog/item/new", itemForm("Bat", "", "Baseball"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if strings.Contains(w.Body.String(), "insert failed") {
		t.Error("internal error detail leaked")
	}
}

// --- 編集 ---

func TestItemHandler_EditItemForm_OwnerSeesCurrentValues(t *testing.T) {
	env := newItemTestEnv(t, ownedItemService())

	w := env.do(connectedSession("user-1"), http.MethodGet, "/catalog/category/cat-baseball/item/item-1/edit", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `value="Bat"`) || !strings.Contains(body, "Wooden bat") {
		t.Error("current values not pre-filled")
	}
	if !strings.Contains(body, `<option value="Baseball" selected>`) {
		t.Error("current category should be selected")
	}
	if !strings.Contains(body, `action="/catalog/category/cat-baseball/item/item-1/edit"`) {
		t.Error("form action missing")
	}
}

func TestItemHandler_EditItemForm_NonOwnerForbidden(t *testing.T) {
	env := newItemTestEnv(t, ownedItemService())

	w := env.do(connectedSession("user-2"), http.MethodGet, "/catalog/category/cat-baseball/item/item-1/edit", nil)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestItemHandler_EditItemForm_WrongCategoryIs404(t *testing.T) {
	env := newItemTestEnv(t, ownedItemService())

	w := env.do(connectedSession("user-1"), http.MethodGet, "/catalog/category/cat-soccer/item/item-1/edit", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestItemHandler_UpdateItem_RedirectsToPathCategory(t *testing.T) {
	svc := ownedItemService()
	var gotItemID string
	svc.editItemFn = func(_ context.Context, userID, itemID string, input model.ItemInput) (*model.Item, error) {
		gotItemID = itemID
		return &model.Item{ID: itemID, Name: input.Name, CategoryID: "cat-soccer", UserID: userID}, nil
	}
	env := newItemTestEnv(t, svc)

	w := env.do(connectedSession("user-1"), http.MethodPost, "/catalog/category/cat-baseball/item/item-1/edit", itemForm("Ball", "", "Soccer"))

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusFound, w.Body.String())
	}
	if gotItemID != "item-1" {
		t.Errorf("itemID = %q, want item-1", gotItemID)
	}
	if loc := w.Header().Get("Location"); loc != "/catalog/category/cat-baseball/items" {
		t.Errorf("Location = %q, want the category from the path", loc)
	}
	saved := env.saver.last()
	if saved == nil || saved.Data.Flashes[0] != "Item Ball is successfully updated." {
		t.Errorf("flash not saved: %+v", saved)
	}
}

func TestItemHandler_UpdateItem_ForbiddenRendersErrorPage(t *testing.T) {
	svc := ownedItemService()
	svc.editItemFn = func(context.Context, string, string, model.ItemInput) (*model.Item, error) {
		return nil, model.NewForbiddenError()
	}
	env := newItemTestEnv(t, svc)

	w := env.do(connectedSession("user-2"), http.MethodPost, "/catalog/category/cat-baseball/item/item-1/edit", itemForm("Ball", "", "Soccer"))

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if strings.Contains(w.Body.String(), `<form method="post"`) {
		t.Error("forbidden edit should not re-render the form")
	}
}

func TestItemHandler_UpdateItem_ValidationRerendersEditForm(t *testing.T) {
	svc := ownedItemService()
	svc.editItemFn = func(context.Context, string, string, model.ItemInput) (*model.Item, error) {
		return nil, model.NewValidationError("Name is required.")
	}
	env := newItemTestEnv(t, svc)

	w := env.do(connectedSession("user-1"), http.MethodPost, "/catalog/category/cat-baseball/item/item-1/edit", itemForm("", "new text", "Baseball"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Name is required.") || !strings.Contains(body, "new text") {
		t.Error("edit form should be re-rendered with the message and input")
	}
}

func TestItemHandler_UpdateItem_MissingItemIs404WithoutEdit(t *testing.T) {
	svc := ownedItemService()
	svc.editItemFn = func(context.Context, string, string, model.ItemInput) (*model.Item, error) {
		t.Fatal("EditItem should not be called")
		return nil, nil
	}
	env := newItemTestEnv(t, svc)

	w := env.do(connectedSession("user-1"), http.MethodPost, "/catalog/category/cat-baseball/item/missing/edit", itemForm("x", "", "Baseball"))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// --- 削除 ---

func TestItemHandler_DeleteItemForm(t *testing.T) {
	env := newItemTestEnv(t, ownedItemService())

	w := env.do(connectedSession("user-1"), http.MethodGet, "/catalog/category/cat-baseball/item/item-1/delete", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "Delete Bat?") {
		t.Error("confirmation not rendered")
	}

	w = env.do(connectedSession("user-2"), http.MethodGet, "/catalog/category/cat-baseball/item/item-1/delete", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("non-owner status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestItemHandler_DeleteItem_RedirectsWithFlash(t *testing.T) {
	svc := ownedItemService()
	var gotUser, gotItem string
	svc.deleteItemFn = func(_ context.Context, userID, itemID string) (*model.Item, error) {
		gotUser, gotItem = userID, itemID
		return testItem(), nil
	}
	env := newItemTestEnv(t, svc)

	w := env.do(connectedSession("user-1"), http.MethodPost, "/catalog/category/cat-baseball/item/item-1/delete", url.Values{})

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if gotUser != "user-1" || gotItem != "item-1" {
		t.Errorf("DeleteItem(%q, %q)", gotUser, gotItem)
	}
	if loc := w.Header().Get("Location"); loc != "/catalog/category/cat-baseball/items" {
		t.Errorf("Location = %q", loc)
	}
	saved := env.saver.last()
	if saved == nil || saved.Data.Flashes[0] != "Item Bat is successfully deleted." {
		t.Errorf("flash not saved: %+v", saved)
	}
}

func TestItemHandler_DeleteItem_ForbiddenDoesNotRedirect(t *testing.T) {
	svc := ownedItemService()
	svc.deleteItemFn = func(context.Context, string, string) (*model.Item, error) {
		return nil, model.NewForbiddenError()
	}
	env := newItemTestEnv(t, svc)

	w := env.do(connectedSession("user-2"), http.MethodPost, "/catalog/category/cat-baseball/item/item-1/delete", url.Values{})

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if len(env.saver.saved) != 0 {
		t.Error("session should not be saved")
	}
}

func TestItemHandler_SaveErrorRendersErrorPage(t *testing.T) {
	svc := ownedItemService()
	svc.deleteItemFn = func(context.Context, string, string) (*model.Item, error) {
		return testItem(), nil
	}
	saver := &mockSessionSaver{
		saveFn: func(context.Context, http.ResponseWriter, *model.Session) error {
			return errors.New("db down")
		},
	}
	h := NewItemHandler(svc, saver, newTestPages(t, saver))
	r := chi.NewRouter()
	r.Post("/catalog/category/{category}/item/{item}/delete", h.DeleteItem)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/catalog/category/cat-baseball/item/item-1/delete", nil)
	r.ServeHTTP(w, withSession(req, connectedSession("user-1")))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestParseItemForm_OversizedBodyIsValidationError(t *testing.T) {
	body := "name=" + strings.Repeat("a", maxFormBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/catalog/item/new", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, err := parseItemForm(httptest.NewRecorder(), req)
	if !model.HasCode(err, model.ErrCodeValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}
