package oauth

import (
	"errors"
	"fmt"

	"github.com/hitoshi/livenex/internal/model"
)

// ProviderErrorの種別。errors.Isで判定する。
var (
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrStateMismatch       = errors.New("oauth state mismatch")
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	ErrProfileFetchFailed  = errors.New("profile fetch failed")
	ErrNoRefreshToken      = errors.New("no refresh token")
)

// ProviderError はIdPとのやり取りで発生したエラー。
// Kindは上記の種別、Errは原因。
type ProviderError struct {
	Provider model.Provider
	Kind     error
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newProviderError(p model.Provider, kind, err error) *ProviderError {
	return &ProviderError{Provider: p, Kind: kind, Err: err}
}

// Reason はリダイレクト先に渡す短い理由文字列を返す。
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrStateMismatch):
		return "state_mismatch"
	case errors.Is(err, ErrAuthorizationDenied):
		return "access_denied"
	case errors.Is(err, ErrTokenExchangeFailed):
		return "token_exchange_failed"
	case errors.Is(err, ErrProfileFetchFailed):
		return "profile_fetch_failed"
	case errors.Is(err, ErrNoRefreshToken):
		return "no_refresh_token"
	case errors.Is(err, ErrUnsupportedProvider):
		return "unsupported_provider"
	default:
		return "unknown"
	}
}
