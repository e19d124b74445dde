// Package oauth は外部IdPとの認可コードフロー（state発行、コード交換、プロフィール取得）を提供する。
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/hitoshi/livenex/internal/model"
)

const (
	tracerName      = "github.com/hitoshi/livenex/internal/oauth"
	maxProfileBytes = 1 << 20
)

// ExternalIdentity はIdPから取得したユーザー情報とトークン。
type ExternalIdentity struct {
	Provider       model.Provider
	ProviderUserID string
	Email          string
	DisplayName    string
	AvatarURL      string
	AccessToken    string
	RefreshToken   string
	Expiry         *time.Time
}

// HasRefreshToken はリフレッシュトークンを受け取ったかを返す。
func (e *ExternalIdentity) HasRefreshToken() bool {
	return e.RefreshToken != ""
}

// RequireRefreshToken はリフレッシュトークンが無い場合にErrNoRefreshTokenを返す。
func (e *ExternalIdentity) RequireRefreshToken() error {
	if e.HasRefreshToken() {
		return nil
	}
	return newProviderError(e.Provider, ErrNoRefreshToken, nil)
}

// ToIdentity は永続化用のmodel.Identityに変換する。
func (e *ExternalIdentity) ToIdentity(id, userID string, linkedAt time.Time) *model.Identity {
	return &model.Identity{
		ID:             id,
		UserID:         userID,
		Provider:       e.Provider,
		ProviderUserID: e.ProviderUserID,
		AccessToken:    e.AccessToken,
		RefreshToken:   e.RefreshToken,
		TokenExpiry:    e.Expiry,
		DisplayName:    e.DisplayName,
		AvatarURL:      e.AvatarURL,
		Email:          e.Email,
		LinkedAt:       linkedAt,
	}
}

// Adapter は1つのIdPに対する認可コードフローの実装。
type Adapter interface {
	Provider() model.Provider
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*ExternalIdentity, error)
}

// ClientConfig はアダプター共通の設定。
// エンドポイントURLはテスト用にオーバーライドできる。
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL    string
	TokenURL   string
	ProfileURL string

	// HTTPClient はトークン交換とプロフィール取得に使用する。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client
}

// profile はIdP固有のプロフィールレスポンスを正規化したもの。
type profile struct {
	ID          string
	Email       string
	DisplayName string
	AvatarURL   string
}

// profileFetcher はアクセストークンでプロフィールを取得する。
type profileFetcher func(ctx context.Context, client *http.Client, token *oauth2.Token) (*profile, error)

// codeFlowAdapter は4つのIdPで共通のAdapter実装。
// IdPごとの差分はエンドポイント、スコープ、追加パラメータ、プロフィール取得のみ。
type codeFlowAdapter struct {
	provider       model.Provider
	cfg            *oauth2.Config
	client         *http.Client
	authOpts       []oauth2.AuthCodeOption
	requireRefresh bool
	fetch          profileFetcher
}

func newCodeFlowAdapter(p model.Provider, cc ClientConfig, endpoint oauth2.Endpoint, scopes []string, fetch profileFetcher) *codeFlowAdapter {
	if cc.AuthURL != "" {
		endpoint.AuthURL = cc.AuthURL
	}
	if cc.TokenURL != "" {
		endpoint.TokenURL = cc.TokenURL
	}
	client := cc.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &codeFlowAdapter{
		provider: p,
		cfg: &oauth2.Config{
			ClientID:     cc.ClientID,
			ClientSecret: cc.ClientSecret,
			RedirectURL:  cc.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		client: client,
		fetch:  fetch,
	}
}

func (a *codeFlowAdapter) Provider() model.Provider {
	return a.provider
}

func (a *codeFlowAdapter) AuthCodeURL(state string) string {
	return a.cfg.AuthCodeURL(state, a.authOpts...)
}

// Exchange は認可コードをトークンに交換し、プロフィールを取得する。
// どちらかが失敗した場合は副作用なしでProviderErrorを返す。
func (a *codeFlowAdapter) Exchange(ctx context.Context, code string) (*ExternalIdentity, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "oauth.exchange",
		trace.WithAttributes(attribute.String("oauth.provider", string(a.provider))),
	)
	defer span.End()

	// 1. 認可コードをトークンに交換
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	tok, err := a.cfg.Exchange(ctx, code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token exchange failed")
		return nil, newProviderError(a.provider, ErrTokenExchangeFailed, describeRetrieveError(err))
	}

	// 2. プロフィールを取得
	_, profileSpan := tracer.Start(ctx, "oauth.profile")
	prof, err := a.fetch(ctx, a.client, tok)
	profileSpan.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile fetch failed")
		return nil, newProviderError(a.provider, ErrProfileFetchFailed, err)
	}
	if prof.ID == "" {
		span.SetStatus(codes.Error, "empty subject")
		return nil, newProviderError(a.provider, ErrProfileFetchFailed, errors.New("empty user id in profile"))
	}

	ext := &ExternalIdentity{
		Provider:       a.provider,
		ProviderUserID: prof.ID,
		Email:          prof.Email,
		DisplayName:    prof.DisplayName,
		AvatarURL:      prof.AvatarURL,
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		ext.Expiry = &exp
	}

	// 3. オフラインアクセスが必要なIdPはリフレッシュトークンを必須とする
	if a.requireRefresh {
		if err := ext.RequireRefreshToken(); err != nil {
			span.SetStatus(codes.Error, "no refresh token")
			return nil, err
		}
	}

	return ext, nil
}

// describeRetrieveError はトークンエンドポイントのエラーレスポンスを要約する。
func describeRetrieveError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		status := 0
		if rerr.Response != nil {
			status = rerr.Response.StatusCode
		}
		return fmt.Errorf("token endpoint returned %d (%s): %w", status, rerr.ErrorCode, err)
	}
	return err
}

// getJSON はBearerトークン付きでGETし、JSONレスポンスをoutにデコードする。
func getJSON(ctx context.Context, client *http.Client, url, accessToken string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return fmt.Errorf("failed to read profile response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("profile fetch failed with status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse profile response: %w", err)
	}
	return nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
