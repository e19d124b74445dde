// Package youtube は連携済みYouTubeチャンネルに対するライブ配信・コメント操作を提供する。
package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/hitoshi/livenex/internal/model"
)

const (
	defaultBaseURL  = "https://www.googleapis.com/youtube/v3"
	maxResponseSize = 2 << 20
	maxUpcoming     = 25
)

// Client はYouTube Data API v3のクライアント。
// 呼び出しごとにユーザーのTokenSourceを受け取り、期限切れのアクセストークンは自動更新される。
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient はClientを生成する。httpClientはトークン更新とAPI呼び出しの下位トランスポートに使う。
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, baseURL: defaultBaseURL}
}

type broadcastSnippet struct {
	Title              string `json:"title"`
	Description        string `json:"description"`
	ScheduledStartTime string `json:"scheduledStartTime,omitempty"`
	Thumbnails         struct {
		High struct {
			URL string `json:"url"`
		} `json:"high"`
	} `json:"thumbnails"`
}

type broadcast struct {
	ID      string           `json:"id"`
	Snippet broadcastSnippet `json:"snippet"`
}

// broadcastUpdate はliveBroadcasts.updateのリクエスト。サムネイル等の読み取り専用項目は含めない。
type broadcastUpdate struct {
	ID      string `json:"id"`
	Snippet struct {
		Title              string `json:"title"`
		Description        string `json:"description"`
		ScheduledStartTime string `json:"scheduledStartTime"`
	} `json:"snippet"`
}

// UpcomingLives は予約済み（upcoming）のライブ配信一覧を返す。
func (c *Client) UpcomingLives(ctx context.Context, ts oauth2.TokenSource) ([]model.UpcomingLive, error) {
	q := url.Values{
		"part":            {"snippet"},
		"broadcastStatus": {"upcoming"},
		"broadcastType":   {"all"},
		"maxResults":      {fmt.Sprint(maxUpcoming)},
	}
	var resp struct {
		Items []broadcast `json:"items"`
	}
	if err := c.do(ctx, ts, http.MethodGet, "/liveBroadcasts?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	lives := make([]model.UpcomingLive, 0, len(resp.Items))
	for _, b := range resp.Items {
		live := model.UpcomingLive{
			BroadcastID:  b.ID,
			Title:        b.Snippet.Title,
			Description:  b.Snippet.Description,
			ThumbnailURL: b.Snippet.Thumbnails.High.URL,
		}
		if t, err := time.Parse(time.RFC3339, b.Snippet.ScheduledStartTime); err == nil {
			live.ScheduledStartTime = &t
		}
		lives = append(lives, live)
	}
	return lives, nil
}

// ScheduleUpdate はライブ配信の更新内容。
type ScheduleUpdate struct {
	BroadcastID        string
	Title              string
	Description        string
	ScheduledStartTime time.Time
}

// UpdateSchedule はライブ配信のタイトル・説明・開始予定時刻を更新する。
func (c *Client) UpdateSchedule(ctx context.Context, ts oauth2.TokenSource, u ScheduleUpdate) error {
	var body broadcastUpdate
	body.ID = u.BroadcastID
	body.Snippet.Title = u.Title
	body.Snippet.Description = u.Description
	body.Snippet.ScheduledStartTime = u.ScheduledStartTime.UTC().Format(time.RFC3339)
	return c.do(ctx, ts, http.MethodPut, "/liveBroadcasts?part=snippet", body, nil)
}

// ReplyToComment はコメントスレッドに返信を投稿し、作成されたコメントIDを返す。
func (c *Client) ReplyToComment(ctx context.Context, ts oauth2.TokenSource, parentID, text string) (string, error) {
	body := map[string]any{
		"snippet": map[string]string{
			"parentId":     parentID,
			"textOriginal": text,
		},
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, ts, http.MethodPost, "/comments?part=snippet", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// APIError はYouTube APIのエラーレスポンス。
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("youtube api returned %d: %s", e.StatusCode, e.Body)
}

func (c *Client) do(ctx context.Context, ts oauth2.TokenSource, method, pathAndQuery string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+pathAndQuery, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// トークン更新にも同じ下位クライアントを使う
	authCtx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	resp, err := oauth2.NewClient(authCtx, ts).Do(req)
	if err != nil {
		return fmt.Errorf("youtube request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read youtube response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse youtube response: %w", err)
	}
	return nil
}
