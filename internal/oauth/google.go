package oauth

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/hitoshi/livenex/internal/model"
)

const defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// googleUserInfo はGoogle UserInfo APIのレスポンス。
type googleUserInfo struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// NewGoogle はGoogleログイン用のAdapterを生成する。
func NewGoogle(cc ClientConfig) Adapter {
	profileURL := orDefault(cc.ProfileURL, defaultGoogleUserInfoURL)
	fetch := func(ctx context.Context, client *http.Client, tok *oauth2.Token) (*profile, error) {
		var info googleUserInfo
		if err := getJSON(ctx, client, profileURL, tok.AccessToken, nil, &info); err != nil {
			return nil, err
		}
		return &profile{ID: info.Sub, Email: info.Email, DisplayName: info.Name, AvatarURL: info.Picture}, nil
	}
	return newCodeFlowAdapter(model.ProviderGoogle, cc, endpoints.Google,
		[]string{"openid", "email", "profile"}, fetch)
}
