// Package model はドメインモデルを定義する。
package model

import "time"

// Session はCookieで識別されるサーバー側セッションを表す。
// IDが空のセッションはまだ永続化されていない。
type Session struct {
	ID        string
	Data      SessionData
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionData はセッションに保持する値。sessions.dataにJSONで保存される。
type SessionData struct {
	// State はログイン試行ごとに発行される偽造防止トークン。
	State string `json:"state,omitempty"`

	AccessToken     string `json:"access_token,omitempty"`
	ProviderSubject string `json:"provider_subject,omitempty"`
	Username        string `json:"username,omitempty"`
	Email           string `json:"email,omitempty"`
	Picture         string `json:"picture,omitempty"`
	UserID          string `json:"user_id,omitempty"`

	Flashes []string `json:"flashes,omitempty"`
}

// IsNew はセッションが未保存かどうかを返す。
func (s *Session) IsNew() bool {
	return s.ID == ""
}

// IsAuthenticated は表示名が設定されている場合にのみtrueを返す。
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.Data.Username != ""
}

// SetIdentity は検証済みIDとローカルユーザーIDをまとめて設定する。
func (s *Session) SetIdentity(identity *Identity, userID string) {
	s.Data.AccessToken = identity.AccessToken
	s.Data.ProviderSubject = identity.ProviderSubject
	s.Data.Username = identity.Name
	s.Data.Email = identity.Email
	s.Data.Picture = identity.Picture
	s.Data.UserID = userID
}

// ClearIdentity は認証済みID項目を1つのグループとしてすべて消去する。
// Stateとフラッシュメッセージは保持する。
func (s *Session) ClearIdentity() {
	s.Data.AccessToken = ""
	s.Data.ProviderSubject = ""
	s.Data.Username = ""
	s.Data.Email = ""
	s.Data.Picture = ""
	s.Data.UserID = ""
}

// AddFlash は次に表示するページ向けのメッセージを追加する。
func (s *Session) AddFlash(msg string) {
	s.Data.Flashes = append(s.Data.Flashes, msg)
}

// PopFlashes は保留中のメッセージを取り出して消去する。
func (s *Session) PopFlashes() []string {
	flashes := s.Data.Flashes
	s.Data.Flashes = nil
	return flashes
}
