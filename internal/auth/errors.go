// Package auth はローカル認証と外部アカウント連携（Identity Linker）を提供する。
package auth

import "errors"

var (
	// ErrIdentityBoundToAnotherUser は外部アカウントが既に別ユーザーに連携済みであることを表す。
	ErrIdentityBoundToAnotherUser = errors.New("identity is bound to another user")

	// ErrUserNotFound は連携先・ログイン対象のユーザーが存在しないことを表す。
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredentials はメールアドレスまたはパスワードの不一致を表す。
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailTaken はローカルアカウントのメールアドレス重複を表す。
	ErrEmailTaken = errors.New("email already registered")

	// ErrNotAdmin は管理者ログインで一般ユーザーの資格情報が使われたことを表す。
	ErrNotAdmin = errors.New("user is not an admin")
)

// ValidationError は入力値の検証エラー。
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}
