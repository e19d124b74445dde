package session

import (
	"errors"
	"fmt"
)

// Kind はセッション検証失敗の種別。
type Kind int

const (
	// KindMissing はCookieが提示されていない。
	KindMissing Kind = iota + 1
	// KindMalformed はトークン形式またはクレームが不正。
	KindMalformed
	// KindExpired は有効期限切れ。
	KindExpired
	// KindSignatureInvalid は署名不一致（改ざん）。
	KindSignatureInvalid
	// KindRevoked はログアウト等で失効済み。
	KindRevoked
)

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindMalformed:
		return "malformed"
	case KindExpired:
		return "expired"
	case KindSignatureInvalid:
		return "signature_invalid"
	case KindRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Error はセッション検証エラー。
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session %s: %v", e.Kind, e.Err)
	}
	return "session " + e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf はerrがセッションエラーであればその種別を返す。
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// IsAnonymous は未ログイン扱いにできるエラー（未提示・期限切れ）かどうかを返す。
// 改ざん・不正形式・失効は明示的に拒否する。
func IsAnonymous(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == KindMissing || kind == KindExpired)
}
