// Package model はドメインモデルを定義する。
package model

import "time"

// Category はカタログのカテゴリを表す。事前投入される参照データ。
type Category struct {
	ID   string
	Name string
}

// Item はカテゴリに属するアイテムを表す。
// CreatedAtは作成時にサーバー側で設定され、以降変更されない。
type Item struct {
	ID          string
	Name        string
	Description string
	CategoryID  string
	UserID      string
	CreatedAt   time.Time
}

// ItemWithCategory はアイテムと所属カテゴリ名を結合したモデル。
// トップページの最新アイテム一覧で使用する。
type ItemWithCategory struct {
	Item
	CategoryName string
}

// ItemInput はアイテムの作成・編集フォームの入力値を表す。
type ItemInput struct {
	Name         string
	Description  string
	CategoryName string
}
