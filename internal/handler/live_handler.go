package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/livenex/internal/live"
	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/youtube"
)

// LiveServiceInterface はライブ配信メタデータのサービスインターフェース。
type LiveServiceInterface interface {
	Set(ctx context.Context, userID string, in live.Input) (*model.LiveStream, error)
	Past(ctx context.Context, userID string) ([]*model.LiveStream, error)
}

// LiveHandler はライブ配信メタデータのHTTPハンドラー。
type LiveHandler struct {
	service LiveServiceInterface
}

// NewLiveHandler はLiveHandlerを生成する。
func NewLiveHandler(service LiveServiceInterface) *LiveHandler {
	return &LiveHandler{service: service}
}

type setLiveRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Platform    string `json:"platform"`
	StreamURL   string `json:"stream_url"`
	ScheduledAt string `json:"scheduled_at"`
}

type liveResponse struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Platform    model.Provider `json:"platform"`
	StreamURL   string         `json:"stream_url,omitempty"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	CreatedAt   time.Time      `json:"created_at"`
}

func toLiveResponse(l *model.LiveStream) liveResponse {
	return liveResponse{
		ID:          l.ID,
		Title:       l.Title,
		Description: l.Description,
		Platform:    l.Platform,
		StreamURL:   l.StreamURL,
		ScheduledAt: l.ScheduledAt,
		CreatedAt:   l.CreatedAt,
	}
}

// Set はライブ配信を登録する。
// POST /api/user/setlivedata
func (h *LiveHandler) Set(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req setLiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := live.Input{
		Title:       req.Title,
		Description: req.Description,
		Platform:    req.Platform,
		StreamURL:   req.StreamURL,
	}
	if req.ScheduledAt != "" {
		scheduledAt, err := youtube.ParseScheduledTime(req.ScheduledAt)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		in.ScheduledAt = scheduledAt
	}

	l, err := h.service.Set(r.Context(), u.ID, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLiveResponse(l))
}

// Past は開始予定時刻を過ぎたライブ配信を返す。
// GET /api/user/getpastlives
func (h *LiveHandler) Past(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	lives, err := h.service.Past(r.Context(), u.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out := make([]liveResponse, 0, len(lives))
	for _, l := range lives {
		out = append(out, toLiveResponse(l))
	}
	writeJSON(w, http.StatusOK, out)
}
