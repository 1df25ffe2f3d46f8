// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/itemcatalog/internal/model"
	"github.com/hitoshi/itemcatalog/internal/session"
)

// SessionLoader はリクエストからセッションを読み込むインターフェース。
// session.Storeが実装する。
type SessionLoader interface {
	Load(ctx context.Context, r *http.Request) (*model.Session, error)
}

// NewSessionMiddleware はCookieのセッションを読み込み、リクエストコンテキストに格納するミドルウェアを返す。
// セッションがない場合も未保存の新しいセッションを格納するため、後続のハンドラーは常にセッションを参照できる。
func NewSessionMiddleware(loader SessionLoader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := loader.Load(r.Context(), r)
			if err != nil {
				slog.Error("failed to load session",
					slog.String("error", err.Error()),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				WriteInternalServerError(w)
				return
			}

			ctx := session.WithSession(r.Context(), sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewLoginRequiredMiddleware は未ログインのリクエストをloginPathへリダイレクトするミドルウェアを返す。
// 後続のハンドラーは呼ばれないため、永続化された状態は変更されない。
func NewLoginRequiredMiddleware(loginPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !session.FromContext(r.Context()).IsAuthenticated() {
				slog.Info("login required",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext はセッションに設定されたローカルユーザーIDを返す。
// 未ログインの場合は空文字列を返す。
func UserIDFromContext(ctx context.Context) string {
	sess := session.FromContext(ctx)
	if !sess.IsAuthenticated() {
		return ""
	}
	return sess.Data.UserID
}
