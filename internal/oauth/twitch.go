package oauth

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/hitoshi/livenex/internal/model"
)

const defaultTwitchUsersURL = "https://api.twitch.tv/helix/users"

type twitchUsers struct {
	Data []struct {
		ID              string `json:"id"`
		Login           string `json:"login"`
		DisplayName     string `json:"display_name"`
		Email           string `json:"email"`
		ProfileImageURL string `json:"profile_image_url"`
	} `json:"data"`
}

// NewTwitch はTwitchログイン用のAdapterを生成する。
// Helix APIはBearerトークンに加えてClient-Idヘッダーを要求する。
func NewTwitch(cc ClientConfig) Adapter {
	profileURL := orDefault(cc.ProfileURL, defaultTwitchUsersURL)
	clientID := cc.ClientID
	fetch := func(ctx context.Context, client *http.Client, tok *oauth2.Token) (*profile, error) {
		var users twitchUsers
		header := http.Header{"Client-Id": []string{clientID}}
		if err := getJSON(ctx, client, profileURL, tok.AccessToken, header, &users); err != nil {
			return nil, err
		}
		if len(users.Data) == 0 {
			return nil, errors.New("helix returned no user")
		}
		u := users.Data[0]
		name := u.DisplayName
		if name == "" {
			name = u.Login
		}
		return &profile{ID: u.ID, Email: u.Email, DisplayName: name, AvatarURL: u.ProfileImageURL}, nil
	}
	return newCodeFlowAdapter(model.ProviderTwitch, cc, endpoints.Twitch,
		[]string{"user:read:email"}, fetch)
}
