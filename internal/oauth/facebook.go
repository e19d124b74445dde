package oauth

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/hitoshi/livenex/internal/model"
)

const defaultFacebookMeURL = "https://graph.facebook.com/v19.0/me?fields=id,name,email,picture"

type facebookMe struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

// NewFacebook はFacebookログイン用のAdapterを生成する。
func NewFacebook(cc ClientConfig) Adapter {
	profileURL := orDefault(cc.ProfileURL, defaultFacebookMeURL)
	fetch := func(ctx context.Context, client *http.Client, tok *oauth2.Token) (*profile, error) {
		var me facebookMe
		if err := getJSON(ctx, client, profileURL, tok.AccessToken, nil, &me); err != nil {
			return nil, err
		}
		return &profile{ID: me.ID, Email: me.Email, DisplayName: me.Name, AvatarURL: me.Picture.Data.URL}, nil
	}
	return newCodeFlowAdapter(model.ProviderFacebook, cc, endpoints.Facebook,
		[]string{"email", "public_profile"}, fetch)
}
