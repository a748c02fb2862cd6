// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, alert, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidEmail      = "INVALID_EMAIL"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeTokenNotFound     = "TOKEN_NOT_FOUND"
	ErrCodeSignupRateLimited = "SIGNUP_RATE_LIMITED"
	ErrCodeInvalidPreference = "INVALID_PREFERENCE"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeDispatchFailed    = "DISPATCH_FAILED"
)

// NewInvalidEmailError は無効なメールアドレスエラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "無効なメールアドレスです。",
		Category: "validation",
		Action:   "正しい形式のメールアドレスを入力してください。",
	}
}

// NewInvalidRequestError はリクエスト解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewTokenNotFoundError はトークンに対応する購読者が見つからないエラーを生成する。
func NewTokenNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenNotFound,
		Message:  "無効または期限切れのトークンです。",
		Category: "validation",
		Action:   "メール内のリンクを再度確認してください。",
	}
}

// NewSignupRateLimitedError は登録レート制限エラーを生成する。
// reasonには評価器が返した制限理由（ip_daily等）を指定する。
func NewSignupRateLimitedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeSignupRateLimited,
		Message:  fmt.Sprintf("登録リクエストが制限されています: %s", reason),
		Category: "validation",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidPreferenceError は配信設定の検証エラーを生成する。
func NewInvalidPreferenceError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPreference,
		Message:  fmt.Sprintf("無効な配信設定です: %s", field),
		Category: "validation",
		Action:   "時刻は0〜23、曜日は0〜6の範囲で指定してください。",
	}
}

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証に失敗しました。",
		Category: "auth",
		Action:   "正しい認証情報を指定してください。",
	}
}
