// Package session はステートレスな署名付きセッショントークンの発行と検証を提供する。
package session

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/livenex/internal/model"
)

const defaultIssuer = "livenex"

// RevocationStore は失効済みjtiの保存先。
// repository.RevocationRepositoryの部分集合として定義する。
type RevocationStore interface {
	Revoke(ctx context.Context, jti, userID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Claims はセッショントークンのペイロード。
// sub=ユーザーID、jti=失効管理用のトークンID。
type Claims struct {
	jwt.RegisteredClaims
	Role model.Role `json:"role"`
}

// UserID はトークンの主体（ユーザーID）を返す。
func (c *Claims) UserID() string {
	return c.Subject
}

// Token は発行済みセッショントークン。
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// Codec はHS256でセッショントークンを発行・検証する。
// トークンは発行後に変更されず、再発行で置き換える。
type Codec struct {
	secret      []byte
	ttl         time.Duration
	issuer      string
	revocations RevocationStore
	now         func() time.Time
}

// Option はCodecの任意設定。
type Option func(*Codec)

// WithRevocationStore は失効リストを設定する。未設定の場合は有効期限のみで失効する。
func WithRevocationStore(store RevocationStore) Option {
	return func(c *Codec) { c.revocations = store }
}

// WithClock は現在時刻の取得関数を差し替える（テスト用）。
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec はCodecを生成する。
func NewCodec(secret string, ttl time.Duration, opts ...Option) *Codec {
	c := &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: defaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL はトークンの有効期間を返す。
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue はユーザーIDとロールを含むトークンを発行する。
func (c *Codec) Issue(userID string, role model.Role) (Token, error) {
	if userID == "" {
		return Token{}, fmt.Errorf("failed to issue session: empty user ID")
	}

	now := c.now()
	exp := now.Add(c.ttl)
	jti := uuid.NewString()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return Token{}, fmt.Errorf("failed to sign session: %w", err)
	}

	return Token{Value: signed, ID: jti, ExpiresAt: exp}, nil
}

// Verify はトークンを検証しクレームを返す。
// 検証失敗は*Errorで返す。失効リストの参照失敗はそれ以外のエラーとして返す。
func (c *Codec) Verify(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, &Error{Kind: KindMissing}
	}

	if !signatureWellFormed(raw) {
		return nil, &Error{Kind: KindSignatureInvalid, Err: jwt.ErrTokenSignatureInvalid}
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	if claims.Subject == "" || claims.ID == "" {
		return nil, &Error{Kind: KindMalformed, Err: errors.New("missing sub or jti")}
	}

	if c.revocations != nil {
		revoked, err := c.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check session revocation: %w", err)
		}
		if revoked {
			return nil, &Error{Kind: KindRevoked}
		}
	}

	return claims, nil
}

// Revoke はトークンを失効させる。失効リスト未設定の場合は何もしない。
func (c *Codec) Revoke(ctx context.Context, claims *Claims) error {
	if c.revocations == nil || claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	if err := c.revocations.Revoke(ctx, claims.ID, claims.Subject, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// signatureWellFormed はヘッダーとペイロードが復号できるトークンについて、
// 署名部がHS256の長さちょうどに厳密復号できるかを返す。
// 末尾文字のパディングビットや区切り文字の混入も署名の改ざんとして扱う。
func signatureWellFormed(raw string) bool {
	parts := strings.SplitN(raw, ".", 3)
	if len(parts) != 3 {
		return true
	}
	enc := base64.RawURLEncoding.Strict()
	for _, seg := range parts[:2] {
		if _, err := enc.DecodeString(seg); err != nil {
			return true
		}
	}
	if strings.ContainsAny(parts[2], "\r\n") {
		return false
	}
	sig, err := enc.DecodeString(parts[2])
	return err == nil && len(sig) == sha256.Size
}

// classify はjwtライブラリのエラーをセッションエラー種別に変換する。
func classify(err error) *Error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &Error{Kind: KindExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &Error{Kind: KindSignatureInvalid, Err: err}
	default:
		return &Error{Kind: KindMalformed, Err: err}
	}
}
