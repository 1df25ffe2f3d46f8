package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/itemcatalog/internal/middleware"
	"github.com/hitoshi/itemcatalog/internal/model"
	"github.com/hitoshi/itemcatalog/internal/session"
)

// maxFormBytes はアイテムフォームのリクエストボディの上限。
const maxFormBytes = 16 << 10

// ItemHandler はアイテムの作成・編集・削除のHTTPハンドラー。
// ルーターでログイン必須ミドルウェアの内側に置く。
type ItemHandler struct {
	service  CatalogServiceInterface
	sessions SessionSaver
	pages    *Pages
}

// NewItemHandler はItemHandlerを生成する。
func NewItemHandler(service CatalogServiceInterface, sessions SessionSaver, pages *Pages) *ItemHandler {
	return &ItemHandler{service: service, sessions: sessions, pages: pages}
}

// itemFormView はitemform.htmlに渡す値。
type itemFormView struct {
	Item       *model.Item // 編集時のみ
	Categories []*model.Category
	Input      model.ItemInput
	Action     string
	Cancel     string
	Error      *model.APIError
}

// NewItemForm はアイテム作成フォームを表示する。
// GET /catalog/item/new
func (h *ItemHandler) NewItemForm(w http.ResponseWriter, r *http.Request) {
	view, err := h.newItemView(r, model.ItemInput{})
	if err != nil {
		h.pages.RenderError(w, r, err)
		return
	}
	h.pages.Render(w, r, http.StatusOK, pageItemForm, view)
}

// CreateItem はアイテムを作成し、所属カテゴリのアイテム一覧へリダイレクトする。
// POST /catalog/item/new
func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	input, err := parseItemForm(w, r)
	if err != nil {
		h.pages.RenderError(w, r, err)
		return
	}

	item, err := h.service.CreateItem(r.Context(), middleware.UserIDFromContext(r.Context()), input)
	if err != nil {
		view, viewErr := h.newItemView(r, input)
		if viewErr != nil {
			h.pages.RenderError(w, r, viewErr)
			return
		}
		h.renderFormError(w, r, view, err)
		return
	}

	h.redirectWithFlash(w, r,
		fmt.Sprintf("Item %s is successfully added.", item.Name),
		categoryItemsPath(item.CategoryID),
	)
}

// EditItemForm はアイテム編集フォームを表示する。
// GET /catalog/category/{category}/item/{item}/edit
func (h *ItemHandler) EditItemForm(w http.ResponseWriter, r *http.Request) {
	item, err := h.modifiableItem(r)
	if err != nil {
		h.pages.RenderError(w, r, err)
		return
	}

	view, err := h.editItemView(r, item, model.ItemInput{
		Name:        item.Name,
		Description: item.Description,
	})
	if err != nil {
		h.pages.RenderError(w, r, err)
		return
	}
	h.pages.Render(w, r, http.StatusOK, pageItemForm, view)
}

// UpdateItem はアイテムを更新し、元のカテゴリのアイテム一覧へリダイレクトする。
// POST /catalog/category/{category}/item/{item}/edit
func (h *ItemHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	categoryID := chi.URLParam(r, "category")
	current, err := h.service.GetItem(r.Context(), categoryID, chi.URLParam(r, "item"))
	if err != nil {
		h.pages.RenderError(w, r, err)
		return
	}

	input, err := parseItemForm(w, r)
	if err != nil {
		h.pages.RenderError(w, r, err)
		return
	}

	item, err := h.service.EditItem(r.Context(), middleware.UserIDFromContext(r.Context()), current.ID, input)
	if err != nil {
		view, viewErr := h.editItemView(r, current, input)
		if viewErr != nil {
			h.pages.RenderError(w, r, viewErr)
			return
		}
		h.renderFormError(w, r, view, err)
		return
	}

	h.redirectWithFlash(w, r,
		fmt.Sprintf("Item %s is successfully updated.", item.Name),
		categoryItemsPath(categoryID),
	)
}

// DeleteItemForm は削除確認ページを表示する。
// GET /catalog/category/{category}/item/{item}/delete
func (h *ItemHandler) DeleteItemForm(w http.ResponseWriter, r *http.Request) {
	item, err := h.modifiableItem(r)
	if err != nil {
		h.pages.RenderError(w, r, err)
		return
	}
	h.pages.Render(w, r, http.StatusOK, pageDeleteItem, itemView{Item: item, CanModify: true})
}

// DeleteItem はアイテムを削除し、カテゴリのアイテム一覧へリダイレクトする。
// POST /catalog/category/{category}/item/{item}/delete
func (h *ItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	categoryID := chi.URLParam(r, "category")
	current, err := h.service.GetItem(r.Context(), categoryID, chi.URLParam(r, "item"))
	if err != nil {
		h.pages.RenderError(w, r, err)
		return
	}

	item, err := h.service.DeleteItem(r.Context(), middleware.UserIDFromContext(r.Context()), current.ID)
	if err != nil {
		h.pages.RenderError(w, r, err)
		return
	}

	h.redirectWithFlash(w, r,
		fmt.Sprintf("Item %s is successfully deleted.", item.Name),
		categoryItemsPath(categoryID),
	)
}

// --- ヘルパー ---

// modifiableItem はURLのアイテムを取得し、ログインユーザーが変更できない場合はFORBIDDENを返す。
func (h *ItemHandler) modifiableItem(r *http.Request) (*model.Item, error) {
	item, err := h.service.GetItem(r.Context(), chi.URLParam(r, "category"), chi.URLParam(r, "item"))
	if err != nil {
		return nil, err
	}
	if !h.service.CanModify(middleware.UserIDFromContext(r.Context()), item) {
		return nil, model.NewForbiddenError()
	}
	return item, nil
}

func (h *ItemHandler) newItemView(r *http.Request, input model.ItemInput) (*itemFormView, error) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		return nil, err
	}
	if input.CategoryName == "" && len(categories) > 0 {
		input.CategoryName = categories[0].Name
	}
	return &itemFormView{
		Categories: categories,
		Input:      input,
		Action:     "/catalog/item/new",
		Cancel:     "/catalog/",
	}, nil
}

func (h *ItemHandler) editItemView(r *http.Request, item *model.Item, input model.ItemInput) (*itemFormView, error) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		return nil, err
	}
	if input.CategoryName == "" {
		for _, c := range categories {
			if c.ID == item.CategoryID {
				input.CategoryName = c.Name
				break
			}
		}
	}
	return &itemFormView{
		Item:       item,
		Categories: categories,
		Input:      input,
		Action:     itemPath(item) + "/edit",
		Cancel:     itemPath(item),
	}, nil
}

// renderFormError は入力起因のエラーならフォームを再表示し、それ以外はエラーページを表示する。
func (h *ItemHandler) renderFormError(w http.ResponseWriter, r *http.Request, view *itemFormView, err error) {
	switch {
	case model.HasCode(err, model.ErrCodeValidation),
		model.HasCode(err, model.ErrCodeUnknownCategory),
		model.HasCode(err, model.ErrCodeConflict):
		errors.As(err, &view.Error)
		h.pages.Render(w, r, model.HTTPStatus(err), pageItemForm, view)
	default:
		h.pages.RenderError(w, r, err)
	}
}

// redirectWithFlash はフラッシュメッセージをセッションに保存してリダイレクトする。
func (h *ItemHandler) redirectWithFlash(w http.ResponseWriter, r *http.Request, msg, location string) {
	sess := session.FromContext(r.Context())
	sess.AddFlash(msg)
	if err := h.sessions.Save(r.Context(), w, sess); err != nil {
		h.pages.RenderError(w, r, fmt.Errorf("failed to save session: %w", err))
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}

// parseItemForm はフォームの値を読み取る。
func parseItemForm(w http.ResponseWriter, r *http.Request) (model.ItemInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return model.ItemInput{}, model.NewValidationError("The form could not be read.")
	}
	return model.ItemInput{
		Name:         r.PostForm.Get("name"),
		Description:  r.PostForm.Get("description"),
		CategoryName: r.PostForm.Get("category"),
	}, nil
}

func categoryItemsPath(categoryID string) string {
	return "/catalog/category/" + categoryID + "/items"
}

func itemPath(item *model.Item) string {
	return "/catalog/category/" + item.CategoryID + "/item/" + item.ID
}
