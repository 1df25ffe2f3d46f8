// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/itemcatalog/internal/auth"
	"github.com/hitoshi/itemcatalog/internal/middleware"
	"github.com/hitoshi/itemcatalog/internal/model"
	"github.com/hitoshi/itemcatalog/internal/session"
)

// maxAuthCodeBytes は/gconnectのリクエストボディ（認可コード）の上限。
const maxAuthCodeBytes = 4096

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Connect(ctx context.Context, sess *model.Session, state, code string) (*auth.ConnectResult, error)
	Disconnect(ctx context.Context, sess *model.Session) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	ClientID string // ログインページに埋め込むOAuthクライアントID
}

// AuthHandler はログイン・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	sessions SessionSaver
	pages    *Pages
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, sessions SessionSaver, pages *Pages, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		sessions: sessions,
		pages:    pages,
		config:   config,
	}
}

// loginView はlogin.htmlに渡す値。
type loginView struct {
	State    string
	ClientID string
}

// ShowLogin は偽造防止トークンを発行してセッションに保存し、ログインページを表示する。
// GET /catalog/login
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	state, err := auth.NewStateToken()
	if err != nil {
		h.pages.RenderError(w, r, err)
		return
	}

	sess := session.FromContext(r.Context())
	sess.Data.State = state
	if err := h.sessions.Save(r.Context(), w, sess); err != nil {
		h.pages.RenderError(w, r, fmt.Errorf("failed to save session: %w", err))
		return
	}

	h.pages.Render(w, r, http.StatusOK, pageLogin, loginView{
		State:    state,
		ClientID: h.config.ClientID,
	})
}

// GConnect は認可コードを検証済みのIDに交換してログインさせる。
// stateはクエリパラメータ、認可コードはリクエストボディで受け取る。
// 成功時はウェルカムメッセージのHTML断片、失敗時はJSONエラーを返す。
// POST /gconnect?state=xxx
func (h *AuthHandler) GConnect(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code, err := io.ReadAll(io.LimitReader(r.Body, maxAuthCodeBytes))
	if err != nil {
		middleware.WriteError(w, r, model.NewCodeExchangeError())
		return
	}

	sess := session.FromContext(r.Context())
	result, err := h.service.Connect(r.Context(), sess, state, string(code))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	if result.AlreadyConnected {
		writeJSON(w, http.StatusOK, "Current user is already connected.")
		return
	}

	sess.AddFlash(fmt.Sprintf("you are now logged in as %s", sess.Data.Username))
	if err := h.sessions.Save(r.Context(), w, sess); err != nil {
		middleware.WriteError(w, r, fmt.Errorf("failed to save session: %w", err))
		return
	}

	h.pages.renderWelcome(w, viewer{Name: sess.Data.Username, Picture: sess.Data.Picture})
}

// GDisconnect はIdPでトークンを失効させてログアウトし、トップページへリダイレクトする。
// 失効に失敗した場合はセッションを変更せずJSONエラーを返す。
// GET /gdisconnect
func (h *AuthHandler) GDisconnect(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if err := h.service.Disconnect(r.Context(), sess); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	sess.AddFlash("You were successfully logged out.")
	if err := h.sessions.Save(r.Context(), w, sess); err != nil {
		middleware.WriteError(w, r, fmt.Errorf("failed to save session: %w", err))
		return
	}

	http.Redirect(w, r, "/catalog/", http.StatusFound)
}

// writeJSON は値をJSONとして書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
