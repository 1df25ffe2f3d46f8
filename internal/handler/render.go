package handler

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/Masterminds/sprig/v3"

	"github.com/hitoshi/itemcatalog/internal/middleware"
	"github.com/hitoshi/itemcatalog/internal/model"
	"github.com/hitoshi/itemcatalog/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// ページ名。templates/<name>.html をlayout.htmlと組み合わせて使う。
const (
	pageHome       = "home"
	pageAbout      = "about"
	pageItems      = "items"
	pageItem       = "item"
	pageItemForm   = "itemform"
	pageDeleteItem = "deleteitem"
	pageLogin      = "login"
	pageError      = "error"
)

var pageNames = []string{
	pageHome, pageAbout, pageItems, pageItem, pageItemForm, pageDeleteItem, pageLogin, pageError,
}

// SessionSaver はセッションを保存するインターフェース。session.Storeが実装する。
type SessionSaver interface {
	Save(ctx context.Context, w http.ResponseWriter, sess *model.Session) error
}

// Pages はHTMLページの描画を担当する。
// 描画時にセッションのフラッシュメッセージを取り出し、セッションを保存する。
type Pages struct {
	templates map[string]*template.Template
	welcome   *template.Template
	sessions  SessionSaver
}

// viewer はページヘッダーに表示するログインユーザー。
type viewer struct {
	Name    string
	Picture string
}

// pageView はlayout.htmlに渡す値。
type pageView struct {
	User    *viewer
	Flashes []string
	Data    any
}

// errorView はerror.htmlに渡す値。
type errorView struct {
	Status     int
	StatusText string
	Error      *model.APIError
}

// NewPages は埋め込みテンプレートを解析してPagesを生成する。
// テンプレート関数にはsprigの関数群を使う。
func NewPages(sessions SessionSaver) (*Pages, error) {
	funcs := sprig.FuncMap()

	templates := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		templates[name] = t
	}

	welcome, err := template.New("welcome.html").Funcs(funcs).ParseFS(templateFS, "templates/welcome.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse template welcome: %w", err)
	}

	return &Pages{templates: templates, welcome: welcome, sessions: sessions}, nil
}

// Render はページを描画する。
// 表示したフラッシュメッセージはセッションから消去される。
func (p *Pages) Render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	t, ok := p.templates[name]
	if !ok {
		slog.Error("unknown page template", slog.String("page", name))
		middleware.WriteInternalServerError(w)
		return
	}

	view := pageView{Data: data}
	sess := session.FromContext(r.Context())
	if sess.IsAuthenticated() {
		view.User = &viewer{Name: sess.Data.Username, Picture: sess.Data.Picture}
	}
	if sess != nil {
		view.Flashes = sess.PopFlashes()
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", view); err != nil {
		slog.Error("failed to render page",
			slog.String("page", name),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	if len(view.Flashes) > 0 {
		if err := p.sessions.Save(r.Context(), w, sess); err != nil {
			slog.Error("failed to save session", slog.String("error", err.Error()))
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// RenderError はエラーに対応するステータスでエラーページを描画する。
// APIError以外のエラーはログに記録し、内部エラーとして表示する。
func (p *Pages) RenderError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.Error("request failed",
			slog.String("error", err.Error()),
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		apiErr = model.NewInternalError()
	}
	status := model.HTTPStatus(apiErr)
	p.Render(w, r, status, pageError, errorView{
		Status:     status,
		StatusText: http.StatusText(status),
		Error:      apiErr,
	})
}

// renderWelcome はログイン成功時に返すHTML断片を描画する。
func (p *Pages) renderWelcome(w http.ResponseWriter, identity viewer) {
	var buf bytes.Buffer
	if err := p.welcome.ExecuteTemplate(&buf, "welcome", identity); err != nil {
		slog.Error("failed to render welcome", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
