// Package model はドメインモデルを定義する。
package model

import "time"

// User はカタログを利用するユーザーを表す。
// メールアドレスを外部キーとして初回ログイン時に1度だけ作成される。
type User struct {
	ID        string
	Name      string
	Email     string
	Picture   string
	CreatedAt time.Time
}

// Identity はIdPで検証済みのユーザー情報を表す。
// ID Exchangeの全ゲートを通過した後にのみ生成される。
type Identity struct {
	AccessToken     string
	ProviderSubject string
	Name            string
	Email           string
	Picture         string
}
