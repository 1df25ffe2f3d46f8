// Package session はCookieで識別するサーバー側セッションを提供する。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/itemcatalog/internal/model"
	"github.com/hitoshi/itemcatalog/internal/repository"
)

// CookieName はセッションIDを保持するCookieの名前。
const CookieName = "session_id"

// Config はセッションストアの設定。
type Config struct {
	MaxAge       time.Duration // セッションとCookieの有効期間
	CookieSecure bool
	CookieDomain string
}

// Store はsessionsテーブルを使うセッションストア。
type Store struct {
	repo   repository.SessionRepository
	config Config
	now    func() time.Time
}

// NewStore はStoreを生成する。
func NewStore(repo repository.SessionRepository, config Config) *Store {
	return &Store{
		repo:   repo,
		config: config,
		now:    time.Now,
	}
}

// Load はCookieのセッションIDに対応するセッションを返す。
// Cookieがない、または期限切れの場合は未保存の新しいセッションを返す。
func (s *Store) Load(ctx context.Context, r *http.Request) (*model.Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return &model.Session{}, nil
	}

	sess, err := s.repo.FindByID(ctx, cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		return &model.Session{}, nil
	}
	return sess, nil
}

// Save はセッションを保存し、有効期限を延長してCookieを書き込む。
// 未保存のセッションには新しいIDを割り当てる。
func (s *Store) Save(ctx context.Context, w http.ResponseWriter, sess *model.Session) error {
	now := s.now()
	sess.ExpiresAt = now.Add(s.config.MaxAge)
	sess.UpdatedAt = now

	if sess.IsNew() {
		id, err := newSessionID()
		if err != nil {
			return err
		}
		sess.ID = id
		sess.CreatedAt = now
		if err := s.repo.Create(ctx, sess); err != nil {
			sess.ID = ""
			return err
		}
	} else if err := s.repo.Update(ctx, sess); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     "/",
		Domain:   s.config.CookieDomain,
		MaxAge:   int(s.config.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// newSessionID は32バイトの乱数を16進文字列にしたセッションIDを生成する。
func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

type contextKey struct{}

// WithSession はコンテキストにセッションを格納する。
func WithSession(ctx context.Context, sess *model.Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext はコンテキストのセッションを返す。格納されていない場合はnilを返す。
func FromContext(ctx context.Context) *model.Session {
	sess, _ := ctx.Value(contextKey{}).(*model.Session)
	return sess
}
