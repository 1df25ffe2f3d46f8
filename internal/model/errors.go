// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, catalog, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodeCodeExchange        = "CODE_EXCHANGE_FAILED"
	ErrCodeTokenValidation     = "TOKEN_VALIDATION_FAILED"
	ErrCodeSubjectMismatch     = "SUBJECT_MISMATCH"
	ErrCodeAudienceMismatch    = "AUDIENCE_MISMATCH"
	ErrCodeRevocation          = "REVOCATION_FAILED"
	ErrCodeNotConnected        = "NOT_CONNECTED"
	ErrCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	ErrCodeUnknownCategory     = "UNKNOWN_CATEGORY"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeValidation          = "VALIDATION_FAILED"
)

// statusByCode はエラーコードとHTTPステータスの対応表。
var statusByCode = map[string]int{
	ErrCodeInvalidState:        http.StatusUnauthorized,
	ErrCodeCodeExchange:        http.StatusUnauthorized,
	ErrCodeTokenValidation:     http.StatusInternalServerError,
	ErrCodeSubjectMismatch:     http.StatusUnauthorized,
	ErrCodeAudienceMismatch:    http.StatusUnauthorized,
	ErrCodeRevocation:          http.StatusBadRequest,
	ErrCodeNotConnected:        http.StatusUnauthorized,
	ErrCodeProviderUnavailable: http.StatusServiceUnavailable,
	ErrCodeUnknownCategory:     http.StatusBadRequest,
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeForbidden:           http.StatusForbidden,
	ErrCodeValidation:          http.StatusBadRequest,
}

// HTTPStatus はエラーに対応するHTTPステータスコードを返す。
// APIError以外のエラーは500として扱う。
func HTTPStatus(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if status, ok := statusByCode[apiErr.Code]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// HasCode はエラーチェーンに指定コードのAPIErrorが含まれるかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// NewInvalidStateError は偽造防止トークン不一致エラーを生成する。
func NewInvalidStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  "Invalid state parameter.",
		Category: "auth",
		Action:   "Reload the login page and sign in again.",
	}
}

// NewCodeExchangeError は認可コードの交換失敗エラーを生成する。
func NewCodeExchangeError() *APIError {
	return &APIError{
		Code:     ErrCodeCodeExchange,
		Message:  "Failed to upgrade the authorization code.",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewTokenValidationError はIdPがアクセストークンを無効と判定した場合のエラーを生成する。
func NewTokenValidationError(providerError string) *APIError {
	return &APIError{
		Code:     ErrCodeTokenValidation,
		Message:  providerError,
		Category: "auth",
		Action:   "Sign in again later.",
	}
}

// NewSubjectMismatchError はID tokenとintrospectionのsubject不一致エラーを生成する。
func NewSubjectMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeSubjectMismatch,
		Message:  "Token's user ID doesn't match given user ID.",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewAudienceMismatchError はトークンの発行先クライアントIDが自アプリと異なる場合のエラーを生成する。
func NewAudienceMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeAudienceMismatch,
		Message:  "Token's client ID does not match app's.",
		Category: "auth",
		Action:   "Sign in from this application's login page.",
	}
}

// NewRevocationError はIdPでのトークン失効に失敗した場合のエラーを生成する。
func NewRevocationError() *APIError {
	return &APIError{
		Code:     ErrCodeRevocation,
		Message:  "Failed to revoke token for given user.",
		Category: "auth",
		Action:   "Try logging out again.",
	}
}

// NewNotConnectedError は未ログイン状態でログアウトを要求された場合のエラーを生成する。
func NewNotConnectedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotConnected,
		Message:  "Current user not connected.",
		Category: "auth",
		Action:   "Sign in first.",
	}
}

// NewProviderUnavailableError はIdPへの呼び出しがタイムアウトまたは失敗した場合のエラーを生成する。
func NewProviderUnavailableError(call string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderUnavailable,
		Message:  fmt.Sprintf("Identity provider is unavailable (%s).", call),
		Category: "system",
		Action:   "Wait a moment and try again.",
	}
}

// NewUnknownCategoryError は指定カテゴリ名が存在しない場合のエラーを生成する。
func NewUnknownCategoryError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownCategory,
		Message:  fmt.Sprintf("Unknown category: %s", name),
		Category: "validation",
		Action:   "Choose one of the listed categories.",
	}
}

// NewNotFoundError はリソースが見つからない場合のエラーを生成する。
func NewNotFoundError(resource, key string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%s not found: %s", resource, key),
		Category: "catalog",
		Action:   "Go back to the catalog and pick another entry.",
	}
}

// NewConflictError は一意制約に違反した場合のエラーを生成する。
func NewConflictError(resource, name string) *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  fmt.Sprintf("%s %q already exists.", resource, name),
		Category: "catalog",
		Action:   "Use a different name.",
	}
}

// NewForbiddenError は所有者以外がアイテムを変更しようとした場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Only the owner of this item can change it.",
		Category: "auth",
		Action:   "Sign in as the user who created the item.",
	}
}

// NewValidationError は入力値が不正な場合のエラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  reason,
		Category: "validation",
		Action:   "Fix the form and submit again.",
	}
}

// NewInternalError は内部エラーを利用者向けに表すエラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Wait a moment and try again.",
	}
}
