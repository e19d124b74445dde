// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
	"time"
)

// Role はユーザーの権限種別を表す。
type Role string

const (
	// RoleStandard は一般ユーザー。
	RoleStandard Role = "standard"
	// RoleAdmin は管理者。/admin/* の操作が可能。
	RoleAdmin Role = "admin"
)

// Provider は外部IdPの種別を表す。
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderYouTube  Provider = "youtube"
	ProviderFacebook Provider = "facebook"
	ProviderTwitch   Provider = "twitch"
)

// Providers はサポートする全IdPを返す。
func Providers() []Provider {
	return []Provider{ProviderGoogle, ProviderYouTube, ProviderFacebook, ProviderTwitch}
}

// ParseProvider は文字列をProviderに変換する。
// 未対応のIdPの場合はエラーを返す。
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Providers() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unsupported provider: %q", s)
}

// User はサービス利用ユーザーを表す。
// PasswordHashが空の場合はIdP経由でのみログイン可能なアカウント。
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin は管理者ユーザーかどうかを返す。
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasPassword はローカル認証情報を持つかどうかを返す。
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Identity は外部IdPとの紐付け情報を表す。
// (provider, provider_user_id) はシステム全体で一意、
// (user_id, provider) はユーザーごとに一意（再連携は上書き）。
type Identity struct {
	ID             string
	UserID         string
	Provider       Provider
	ProviderUserID string
	AccessToken    string
	RefreshToken   string
	TokenExpiry    *time.Time
	DisplayName    string
	AvatarURL      string
	Email          string
	LinkedAt       time.Time
}

// HasRefreshToken はリフレッシュトークンが発行済みかどうかを返す。
func (i *Identity) HasRefreshToken() bool {
	return i.RefreshToken != ""
}
