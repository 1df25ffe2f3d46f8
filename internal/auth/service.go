// Package auth はIdentity Exchange（OAuth認可コードの交換と検証）とログアウトを提供する。
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/hitoshi/itemcatalog/internal/metrics"
	"github.com/hitoshi/itemcatalog/internal/model"
	"github.com/hitoshi/itemcatalog/internal/repository"
)

const (
	stateTokenLength   = 32
	stateTokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// TxRunner はトランザクション境界を提供するインターフェース。
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	ClientID string // 自アプリのOAuthクライアントID
}

// ConnectResult はConnectの結果。
type ConnectResult struct {
	// AlreadyConnected は同じsubjectで接続済みだったためプロフィールを再取得しなかったことを表す。
	AlreadyConnected bool
	User             *model.User
}

// Service はログインとログアウトのビジネスロジックを提供する。
type Service struct {
	provider Provider
	userRepo repository.UserRepository
	tx       TxRunner
	config   ServiceConfig
	metrics  metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(
	provider Provider,
	userRepo repository.UserRepository,
	tx TxRunner,
	config ServiceConfig,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		provider: provider,
		userRepo: userRepo,
		tx:       tx,
		config:   config,
		metrics:  collector,
	}
}

// Connect は認可コードを検証済みのIDに交換し、セッションに設定する。
// 各ステップは順に評価され、失敗した時点でAPIErrorを返す。
// セッションはメモリ上で更新されるだけなので、呼び出し側で保存すること。
func (s *Service) Connect(ctx context.Context, sess *model.Session, state, code string) (*ConnectResult, error) {
	result, err := s.connect(ctx, sess, state, code)
	switch {
	case err != nil:
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			s.metrics.RecordLogin(strings.ToLower(apiErr.Code))
		} else {
			s.metrics.RecordLogin("internal_error")
		}
	case result.AlreadyConnected:
		s.metrics.RecordLogin("already_connected")
	default:
		s.metrics.RecordLogin("success")
	}
	return result, err
}

func (s *Service) connect(ctx context.Context, sess *model.Session, state, code string) (*ConnectResult, error) {
	// 1. 偽造防止トークン
	if !stateMatches(sess.Data.State, state) {
		slog.Warn("login rejected", slog.String("gate", "state"))
		return nil, model.NewInvalidStateError()
	}

	// 2. 認可コードの交換
	cred, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, asAPIError(err, model.NewCodeExchangeError())
	}

	// 3. イントロスペクション
	info, err := s.provider.Introspect(ctx, cred.AccessToken)
	if err != nil {
		return nil, asAPIError(err, model.NewTokenValidationError("token info request failed"))
	}
	if info.Error != "" {
		slog.Error("login rejected", slog.String("gate", "introspect"), slog.String("provider_error", info.Error))
		return nil, model.NewTokenValidationError(info.Error)
	}

	// 4. subjectの一致
	if info.UserID != cred.Subject {
		slog.Warn("login rejected", slog.String("gate", "subject"))
		return nil, model.NewSubjectMismatchError()
	}

	// 5. 発行先クライアントIDの一致
	if info.IssuedTo != s.config.ClientID {
		slog.Warn("login rejected", slog.String("gate", "audience"))
		return nil, model.NewAudienceMismatchError()
	}

	// 6. 同じsubjectで接続済みなら何もしない
	if sess.Data.AccessToken != "" && sess.Data.ProviderSubject == cred.Subject {
		slog.Info("user already connected", slog.String("user_id", sess.Data.UserID))
		return &ConnectResult{AlreadyConnected: true}, nil
	}

	// 7. プロフィール取得
	profile, err := s.provider.UserInfo(ctx, cred.AccessToken)
	if err != nil {
		return nil, asAPIError(err, model.NewTokenValidationError("user info request failed"))
	}
	if profile.Email == "" {
		slog.Error("login rejected", slog.String("gate", "userinfo"), slog.String("reason", "empty email"))
		return nil, model.NewTokenValidationError("provider returned no email address")
	}

	// 8. メールアドレスでユーザーを検索し、なければ作成
	var user *model.User
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.userRepo.FindOrCreateByEmail(ctx, &model.User{
			Name:    profile.Name,
			Email:   profile.Email,
			Picture: profile.Picture,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve local user: %w", err)
	}

	// 9. セッションのID項目をまとめて設定
	sess.SetIdentity(&model.Identity{
		AccessToken:     cred.AccessToken,
		ProviderSubject: cred.Subject,
		Name:            profile.Name,
		Email:           profile.Email,
		Picture:         profile.Picture,
	}, user.ID)

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return &ConnectResult{User: user}, nil
}

// Disconnect はIdPでアクセストークンを失効させ、成功した場合のみセッションのID項目を消去する。
func (s *Service) Disconnect(ctx context.Context, sess *model.Session) error {
	if sess.Data.AccessToken == "" {
		return model.NewNotConnectedError()
	}

	status, err := s.provider.Revoke(ctx, sess.Data.AccessToken)
	if err != nil {
		return asAPIError(err, model.NewRevocationError())
	}
	if status != http.StatusOK {
		slog.Warn("token revocation failed", slog.Int("status", status), slog.String("user_id", sess.Data.UserID))
		return model.NewRevocationError()
	}

	userID := sess.Data.UserID
	sess.ClearIdentity()
	slog.Info("user logged out", slog.String("user_id", userID))
	return nil
}

// NewStateToken は英大文字と数字からなる32文字の偽造防止トークンを生成する。
func NewStateToken() (string, error) {
	limit := big.NewInt(int64(len(stateTokenAlphabet)))
	b := make([]byte, stateTokenLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate state token: %w", err)
		}
		b[i] = stateTokenAlphabet[n.Int64()]
	}
	return string(b), nil
}

// stateMatches はセッションに保存したトークンとリクエストのトークンを定数時間で比較する。
func stateMatches(stored, supplied string) bool {
	if stored == "" || supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}

// asAPIError はAPIErrorならそのまま、それ以外はfallbackを返す。
func asAPIError(err error, fallback *model.APIError) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	slog.Error("identity provider call failed", slog.String("error", err.Error()))
	return fallback
}
