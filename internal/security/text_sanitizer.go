// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はユーザーが入力したアイテムの説明文からHTMLを取り除き、
// プレーンテキストとして保存できる形にする。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト化のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize はすべてのタグを除去したテキストを返す。
	// script, styleなどの要素は中身ごと除去する。
	// 前後の空白は取り除く。同一入力に対して常に同一出力を返す。
	Sanitize(input string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなので共有してよい。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyを使うTextSanitizerを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去したテキストを返す。
// bluemondayがエスケープした文字実体はテンプレート側で再エスケープされるため元に戻す。
func (s *textSanitizer) Sanitize(input string) string {
	if input == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(input)))
}
