package oauth

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/hitoshi/livenex/internal/model"
)

const (
	defaultYouTubeChannelsURL = "https://www.googleapis.com/youtube/v3/channels?part=snippet&mine=true"
	youtubeScope              = "https://www.googleapis.com/auth/youtube.force-ssl"
)

type youtubeChannelList struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title      string `json:"title"`
			Thumbnails struct {
				Default struct {
					URL string `json:"url"`
				} `json:"default"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

// NewYouTube はYouTubeチャンネル連携用のAdapterを生成する。
// ライブ配信APIをサーバー側から呼ぶため、オフラインアクセスを要求し
// リフレッシュトークンが返らない場合はエラーとする。
func NewYouTube(cc ClientConfig) Adapter {
	profileURL := orDefault(cc.ProfileURL, defaultYouTubeChannelsURL)
	fetch := func(ctx context.Context, client *http.Client, tok *oauth2.Token) (*profile, error) {
		var list youtubeChannelList
		if err := getJSON(ctx, client, profileURL, tok.AccessToken, nil, &list); err != nil {
			return nil, err
		}
		if len(list.Items) == 0 {
			return nil, errors.New("account has no youtube channel")
		}
		ch := list.Items[0]
		return &profile{
			ID:          ch.ID,
			DisplayName: ch.Snippet.Title,
			AvatarURL:   ch.Snippet.Thumbnails.Default.URL,
		}, nil
	}
	a := newCodeFlowAdapter(model.ProviderYouTube, cc, endpoints.Google, []string{youtubeScope}, fetch)
	a.authOpts = []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")}
	a.requireRefresh = true
	return a
}

// YouTubeTokenSource は保存済みトークンから自動更新されるTokenSourceを返す。
// YouTube Data APIの呼び出しに使用する。
func YouTubeTokenSource(ctx context.Context, cc ClientConfig, identity *model.Identity) oauth2.TokenSource {
	endpoint := endpoints.Google
	if cc.TokenURL != "" {
		endpoint.TokenURL = cc.TokenURL
	}
	cfg := &oauth2.Config{
		ClientID:     cc.ClientID,
		ClientSecret: cc.ClientSecret,
		RedirectURL:  cc.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       []string{youtubeScope},
	}
	tok := &oauth2.Token{
		AccessToken:  identity.AccessToken,
		RefreshToken: identity.RefreshToken,
		TokenType:    "Bearer",
	}
	if identity.TokenExpiry != nil {
		tok.Expiry = *identity.TokenExpiry
	}
	if cc.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cc.HTTPClient)
	}
	return cfg.TokenSource(ctx, tok)
}
