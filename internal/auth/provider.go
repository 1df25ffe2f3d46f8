package auth

import "context"

// Credential は認可コード交換で得たプロバイダー資格情報。
type Credential struct {
	AccessToken string
	// Subject はID tokenに埋め込まれたsubject識別子。
	Subject string
}

// TokenInfo はトークンイントロスペクションの結果。
// Errorが空でない場合、プロバイダーはトークンを無効と判定している。
type TokenInfo struct {
	UserID   string `json:"user_id"`
	IssuedTo string `json:"issued_to"`
	Error    string `json:"error"`
}

// Profile はユーザー情報エンドポイントから取得したプロフィール。
type Profile struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// Provider はIdentity Exchangeが利用する外部IdPのインターフェース。
// 呼び出しがタイムアウトした場合や到達できない場合はPROVIDER_UNAVAILABLEのAPIErrorを返す。
type Provider interface {
	// Exchange は認可コードをアクセストークンとID tokenのsubjectに交換する。
	Exchange(ctx context.Context, code string) (*Credential, error)
	// Introspect はアクセストークンを検証し、発行先とsubjectを返す。
	Introspect(ctx context.Context, accessToken string) (*TokenInfo, error)
	// UserInfo はアクセストークンでプロフィールを取得する。
	UserInfo(ctx context.Context, accessToken string) (*Profile, error)
	// Revoke はアクセストークンを失効させ、プロバイダーのHTTPステータスを返す。
	Revoke(ctx context.Context, accessToken string) (int, error)
}
