// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, oauth, payment, validation, system
	Action   string // ユーザー向け対処方法
	// Provider は対象のIdP（oauthカテゴリのエラーのみ）。
	// フロントエンドが再連携ボタンを出し分けるために返す。
	Provider Provider
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized           = "UNAUTHORIZED"
	ErrCodeSessionInvalid         = "SESSION_INVALID"
	ErrCodeForbidden              = "FORBIDDEN"
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeEmailAlreadyRegistered = "EMAIL_ALREADY_REGISTERED"
	ErrCodeValidation             = "VALIDATION_ERROR"
	ErrCodeUnsupportedProvider    = "UNSUPPORTED_PROVIDER"
	ErrCodeStateMismatch          = "OAUTH_STATE_MISMATCH"
	ErrCodeAuthorizationDenied    = "OAUTH_AUTHORIZATION_DENIED"
	ErrCodeTokenExchangeFailed    = "TOKEN_EXCHANGE_FAILED"
	ErrCodeProfileFetchFailed     = "PROFILE_FETCH_FAILED"
	ErrCodeNoRefreshToken         = "NO_REFRESH_TOKEN"
	ErrCodeIdentityBoundToAnother = "IDENTITY_BOUND_TO_ANOTHER_USER"
	ErrCodeProviderNotLinked      = "PROVIDER_NOT_LINKED"
	ErrCodeNotEntitled            = "NOT_ENTITLED"
	ErrCodePaymentVerification    = "PAYMENT_VERIFICATION_FAILED"
	ErrCodeOrderNotFound          = "ORDER_NOT_FOUND"
	ErrCodeUserNotFound           = "USER_NOT_FOUND"
	ErrCodeTicketNotFound         = "TICKET_NOT_FOUND"
	ErrCodeUploadTooLarge         = "UPLOAD_TOO_LARGE"
	ErrCodeCSRFInvalid            = "CSRF_TOKEN_INVALID"
	ErrCodeUpstreamFailed         = "UPSTREAM_FAILED"
	ErrCodeRateLimited            = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal               = "INTERNAL_ERROR"
)

// NewUnauthorizedError はセッション未提示・期限切れの認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewSessionInvalidError は改ざん・不正形式のセッションエラーを生成する。
func NewSessionInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionInvalid,
		Message:  "セッションが無効です。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワード不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewEmailAlreadyRegisteredError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyRegistered,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスを使用してください。",
	}
}

// NewValidationError は入力値の検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUnsupportedProviderError は未対応IdPエラーを生成する。
func NewUnsupportedProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedProvider,
		Message:  fmt.Sprintf("未対応のログインプロバイダーです: %s", provider),
		Category: "oauth",
		Action:   "google、youtube、facebook、twitch のいずれかを指定してください。",
		Provider: Provider(provider),
	}
}

// NewStateMismatchError はOAuth state不一致（CSRF検出）エラーを生成する。
func NewStateMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeStateMismatch,
		Message:  "認証リクエストの検証に失敗しました。",
		Category: "oauth",
		Action:   "最初からログインをやり直してください。",
	}
}

// NewAuthorizationDeniedError はIdP側で認可が拒否・中断された場合のエラーを生成する。
func NewAuthorizationDeniedError(provider Provider) *APIError {
	return &APIError{
		Code:     ErrCodeAuthorizationDenied,
		Message:  fmt.Sprintf("%s での認可がキャンセルされました。", provider),
		Category: "oauth",
		Action:   "再度ログインし、アクセスを許可してください。",
		Provider: provider,
	}
}

// NewTokenExchangeFailedError はIdPトークン交換失敗エラーを生成する。
func NewTokenExchangeFailedError(provider Provider) *APIError {
	return &APIError{
		Code:     ErrCodeTokenExchangeFailed,
		Message:  fmt.Sprintf("%s との認証に失敗しました。", provider),
		Category: "oauth",
		Action:   "しばらく待ってから再度ログインしてください。",
		Provider: provider,
	}
}

// NewProfileFetchFailedError はIdPプロフィール取得失敗エラーを生成する。
func NewProfileFetchFailedError(provider Provider) *APIError {
	return &APIError{
		Code:     ErrCodeProfileFetchFailed,
		Message:  fmt.Sprintf("%s からプロフィールを取得できませんでした。", provider),
		Category: "oauth",
		Action:   "しばらく待ってから再度ログインしてください。",
		Provider: provider,
	}
}

// NewNoRefreshTokenError はリフレッシュトークン未発行エラーを生成する。
func NewNoRefreshTokenError(provider Provider) *APIError {
	return &APIError{
		Code:     ErrCodeNoRefreshToken,
		Message:  fmt.Sprintf("%s のリフレッシュトークンが発行されていません。", provider),
		Category: "oauth",
		Action:   "アカウント連携を解除してから再度連携してください。",
		Provider: provider,
	}
}

// NewProviderNotLinkedError はIdP未連携エラーを生成する。
func NewProviderNotLinkedError(provider Provider) *APIError {
	return &APIError{
		Code:     ErrCodeProviderNotLinked,
		Message:  fmt.Sprintf("%s アカウントが連携されていません。", provider),
		Category: "oauth",
		Action:   "設定画面からアカウントを連携してください。",
		Provider: provider,
	}
}

// NewIdentityBoundToAnotherUserError は外部アカウントが別ユーザーに連携済みのエラーを生成する。
func NewIdentityBoundToAnotherUserError(provider Provider) *APIError {
	return &APIError{
		Code:     ErrCodeIdentityBoundToAnother,
		Message:  fmt.Sprintf("この %s アカウントは既に別のユーザーに連携されています。", provider),
		Category: "oauth",
		Action:   "連携済みのユーザーでログインしてください。",
		Provider: provider,
	}
}

// NewNotEntitledError はサブスクリプション未加入エラーを生成する。
func NewNotEntitledError() *APIError {
	return &APIError{
		Code:     ErrCodeNotEntitled,
		Message:  "この機能を利用するにはサブスクリプションが必要です。",
		Category: "payment",
		Action:   "サブスクリプションを購入してください。",
	}
}

// NewPaymentVerificationError は決済署名検証失敗エラーを生成する。
func NewPaymentVerificationError() *APIError {
	return &APIError{
		Code:     ErrCodePaymentVerification,
		Message:  "決済の検証に失敗しました。",
		Category: "payment",
		Action:   "決済が完了しているか確認し、サポートにお問い合わせください。",
	}
}

// NewOrderNotFoundError は注文未検出エラーを生成する。
func NewOrderNotFoundError(orderID string) *APIError {
	return &APIError{
		Code:     ErrCodeOrderNotFound,
		Message:  fmt.Sprintf("指定された注文が見つかりません: %s", orderID),
		Category: "payment",
		Action:   "注文を作成し直してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewTicketNotFoundError はチケット未検出エラーを生成する。
func NewTicketNotFoundError(ticketID string) *APIError {
	return &APIError{
		Code:     ErrCodeTicketNotFound,
		Message:  fmt.Sprintf("指定されたチケットが見つかりません: %s", ticketID),
		Category: "validation",
		Action:   "チケットIDを確認してください。",
	}
}

// NewUploadTooLargeError はアップロードサイズ超過エラーを生成する。
func NewUploadTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeUploadTooLarge,
		Message:  fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています。", maxBytes),
		Category: "validation",
		Action:   "ファイルサイズを小さくして再度アップロードしてください。",
	}
}

// NewUpstreamFailedError は外部サービス呼び出し失敗エラーを生成する。
func NewUpstreamFailedError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  fmt.Sprintf("%s の呼び出しに失敗しました。", service),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCSRFInvalidError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "リクエストの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
