package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/hitoshi/itemcatalog/internal/metrics"
	"github.com/hitoshi/itemcatalog/internal/model"
)

const (
	defaultGoogleAuthURL      = "https://accounts.google.com/o/oauth2/auth"
	defaultGoogleTokenURL     = "https://oauth2.googleapis.com/token"
	defaultGoogleTokenInfoURL = "https://www.googleapis.com/oauth2/v1/tokeninfo"
	defaultGoogleUserInfoURL  = "https://www.googleapis.com/oauth2/v1/userinfo"
	defaultGoogleRevokeURL    = "https://oauth2.googleapis.com/revoke"

	defaultProviderTimeout = 5 * time.Second
)

// IdP呼び出し種別。メトリクスのラベルとエラーメッセージに使用する。
const (
	callExchange   = "exchange"
	callIntrospect = "introspect"
	callUserInfo   = "userinfo"
	callRevoke     = "revoke"
)

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // ワンタイムコードフローでは "postmessage"

	Timeout      time.Duration // 1回の呼び出しあたりのタイムアウト
	MaxRetries   int
	RetryBackoff time.Duration

	// テスト用にオーバーライド可能なURL
	AuthURL      string
	TokenURL     string
	TokenInfoURL string
	UserInfoURL  string
	RevokeURL    string

	HTTPClient *http.Client
}

// GoogleProvider はGoogle OAuth 2.0のエンドポイントを呼び出すProvider実装。
type GoogleProvider struct {
	config  GoogleOAuthConfig
	oauth   *oauth2.Config
	client  *http.Client
	policy  retryPolicy
	metrics metrics.MetricsCollector
}

// NewGoogleProvider はGoogleProviderを生成する。
func NewGoogleProvider(config GoogleOAuthConfig, collector metrics.MetricsCollector) *GoogleProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGoogleAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGoogleTokenURL
	}
	if config.TokenInfoURL == "" {
		config.TokenInfoURL = defaultGoogleTokenInfoURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultGoogleUserInfoURL
	}
	if config.RevokeURL == "" {
		config.RevokeURL = defaultGoogleRevokeURL
	}
	if config.RedirectURL == "" {
		config.RedirectURL = "postmessage"
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultProviderTimeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if collector == nil {
		collector = metrics.Nop{}
	}

	return &GoogleProvider{
		config: config,
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  config.AuthURL,
				TokenURL: config.TokenURL,
				// 自動判定はリクエストを2回送るため、ワンタイムの認可コードでは使えない
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: client,
		policy: retryPolicy{
			timeout:    config.Timeout,
			maxRetries: config.MaxRetries,
			backoff:    config.RetryBackoff,
		},
		metrics: collector,
	}
}

// Exchange は認可コードをアクセストークンに交換し、ID tokenからsubjectを取り出す。
// 認可コードは1回しか使えないため再試行しない。
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Credential, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.policy.timeout)
	defer cancel()
	attemptCtx = context.WithValue(attemptCtx, oauth2.HTTPClient, p.client)

	token, err := p.oauth.Exchange(attemptCtx, strings.TrimSpace(code))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		switch {
		case errors.As(err, &retrieveErr) && retrieveErr.Response != nil && retrieveErr.Response.StatusCode < 500:
			p.metrics.RecordProviderCall(callExchange, "error")
			slog.Warn("authorization code rejected",
				slog.String("call", callExchange),
				slog.Int("status", retrieveErr.Response.StatusCode),
				slog.String("error_code", retrieveErr.ErrorCode),
			)
			return nil, model.NewCodeExchangeError()
		case isTimeout(err) || attemptCtx.Err() != nil:
			return nil, p.unavailable(callExchange, "timeout", err)
		default:
			return nil, p.unavailable(callExchange, "error", err)
		}
	}

	rawIDToken, _ := token.Extra("id_token").(string)
	subject, err := subjectFromIDToken(rawIDToken)
	if err != nil {
		p.metrics.RecordProviderCall(callExchange, "error")
		slog.Warn("id_token missing or malformed", slog.String("error", err.Error()))
		return nil, model.NewCodeExchangeError()
	}

	p.metrics.RecordProviderCall(callExchange, "ok")
	return &Credential{AccessToken: token.AccessToken, Subject: subject}, nil
}

// subjectFromIDToken はID tokenのsubクレームを取り出す。
// 署名は検証しない。トークンの真正性はイントロスペクションの結果との照合で確認する。
func subjectFromIDToken(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("id_token is empty")
	}
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("failed to parse id_token: %w", err)
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("failed to read sub claim: %w", err)
	}
	if sub == "" {
		return "", errors.New("id_token has no sub claim")
	}
	return sub, nil
}

// Introspect はtokeninfoエンドポイントでアクセストークンを検証する。
// エラーステータスでもボディにerrorフィールドが含まれるため、ステータスに関わらずボディを解釈する。
func (p *GoogleProvider) Introspect(ctx context.Context, accessToken string) (*TokenInfo, error) {
	resp, err := p.get(ctx, callIntrospect, p.config.TokenInfoURL, url.Values{"access_token": {accessToken}})
	if err != nil {
		return nil, err
	}
	if resp.status >= 500 {
		return nil, p.unavailable(callIntrospect, "error", fmt.Errorf("status %d", resp.status))
	}

	var info TokenInfo
	if err := json.Unmarshal(resp.body, &info); err != nil {
		p.metrics.RecordProviderCall(callIntrospect, "error")
		return nil, model.NewTokenValidationError("malformed token info response")
	}
	p.metrics.RecordProviderCall(callIntrospect, "ok")
	return &info, nil
}

// UserInfo はuserinfoエンドポイントからプロフィールを取得する。
func (p *GoogleProvider) UserInfo(ctx context.Context, accessToken string) (*Profile, error) {
	resp, err := p.get(ctx, callUserInfo, p.config.UserInfoURL, url.Values{
		"access_token": {accessToken},
		"alt":          {"json"},
	})
	if err != nil {
		return nil, err
	}
	if resp.status >= 500 {
		return nil, p.unavailable(callUserInfo, "error", fmt.Errorf("status %d", resp.status))
	}
	if resp.status != http.StatusOK {
		p.metrics.RecordProviderCall(callUserInfo, "error")
		return nil, model.NewTokenValidationError(fmt.Sprintf("user info request failed with status %d", resp.status))
	}

	var profile Profile
	if err := json.Unmarshal(resp.body, &profile); err != nil {
		p.metrics.RecordProviderCall(callUserInfo, "error")
		return nil, model.NewTokenValidationError("malformed user info response")
	}
	p.metrics.RecordProviderCall(callUserInfo, "ok")
	return &profile, nil
}

// Revoke はアクセストークンを失効させ、プロバイダーが返したHTTPステータスを返す。
func (p *GoogleProvider) Revoke(ctx context.Context, accessToken string) (int, error) {
	form := url.Values{"token": {accessToken}}.Encode()
	resp, err := doWithRetry(ctx, p.client, p.policy, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.RevokeURL, strings.NewReader(form))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return 0, p.transportError(callRevoke, err)
	}

	outcome := "ok"
	if resp.status != http.StatusOK {
		outcome = "error"
	}
	p.metrics.RecordProviderCall(callRevoke, outcome)
	return resp.status, nil
}

func (p *GoogleProvider) get(ctx context.Context, call, endpoint string, query url.Values) (*rawResponse, error) {
	target := endpoint + "?" + query.Encode()
	resp, err := doWithRetry(ctx, p.client, p.policy, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	})
	if err != nil {
		return nil, p.transportError(call, err)
	}
	return resp, nil
}

func (p *GoogleProvider) transportError(call string, err error) error {
	if isTimeout(err) {
		return p.unavailable(call, "timeout", err)
	}
	return p.unavailable(call, "error", err)
}

// unavailable はIdP到達不能を記録し、PROVIDER_UNAVAILABLEエラーを返す。
// 元のエラーにはトークンを含むURLが入りうるため、ログには出さない。
func (p *GoogleProvider) unavailable(call, outcome string, err error) error {
	p.metrics.RecordProviderCall(call, outcome)
	slog.Error("identity provider call failed",
		slog.String("call", call),
		slog.String("outcome", outcome),
		slog.Bool("timeout", isTimeout(err)),
	)
	return model.NewProviderUnavailableError(call)
}

// compile-time interface check
var _ Provider = (*GoogleProvider)(nil)
