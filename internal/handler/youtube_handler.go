package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/livenex/internal/middleware"
	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/youtube"
)

// YouTubeServiceInterface は連携済みYouTubeチャンネル操作のサービスインターフェース。
type YouTubeServiceInterface interface {
	UpcomingLives(ctx context.Context, userID string) ([]model.UpcomingLive, error)
	UpdateSchedule(ctx context.Context, userID string, u youtube.ScheduleUpdate) error
	ReplyToComment(ctx context.Context, userID, parentID, text string) (string, error)
}

// YouTubeHandler はYouTubeライブ配信・コメントのHTTPハンドラー。
type YouTubeHandler struct {
	service YouTubeServiceInterface
}

// NewYouTubeHandler はYouTubeHandlerを生成する。
func NewYouTubeHandler(service YouTubeServiceInterface) *YouTubeHandler {
	return &YouTubeHandler{service: service}
}

type scheduleUpdateRequest struct {
	BroadcastID        string `json:"broadcast_id"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	ScheduledStartTime string `json:"scheduled_start_time"`
}

type commentReplyRequest struct {
	CommentID string `json:"comment_id"`
	Text      string `json:"text"`
}

type upcomingLiveResponse struct {
	BroadcastID        string     `json:"broadcast_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	ScheduledStartTime *time.Time `json:"scheduled_start_time,omitempty"`
	ThumbnailURL       string     `json:"thumbnail_url,omitempty"`
}

// UpcomingLives は予約済みのライブ配信を返す。
// GET /api/user/getUpcomingLives
func (h *YouTubeHandler) UpcomingLives(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	lives, err := h.service.UpcomingLives(r.Context(), u.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out := make([]upcomingLiveResponse, 0, len(lives))
	for _, l := range lives {
		out = append(out, upcomingLiveResponse{
			BroadcastID:        l.BroadcastID,
			Title:              l.Title,
			Description:        l.Description,
			ScheduledStartTime: l.ScheduledStartTime,
			ThumbnailURL:       l.ThumbnailURL,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// UpdateSchedule はライブ配信のタイトル・説明・開始予定時刻を更新する。
// POST /api/user/scheduleinfoupdate
func (h *YouTubeHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req scheduleUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ScheduledStartTime == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("scheduled_start_timeは必須です"))
		return
	}
	start, err := youtube.ParseScheduledTime(req.ScheduledStartTime)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	err = h.service.UpdateSchedule(r.Context(), u.ID, youtube.ScheduleUpdate{
		BroadcastID:        req.BroadcastID,
		Title:              req.Title,
		Description:        req.Description,
		ScheduledStartTime: start,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Reply はコメントに返信する。
// POST /api/user/reply
func (h *YouTubeHandler) Reply(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req commentReplyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := h.service.ReplyToComment(r.Context(), u.ID, req.CommentID, req.Text)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}
