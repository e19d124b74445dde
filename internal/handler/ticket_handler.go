package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/livenex/internal/middleware"
	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/ticket"
)

// TicketServiceInterface はチケットハンドラーが必要とするサービスインターフェース。
type TicketServiceInterface interface {
	Create(ctx context.Context, userID, subject, body string) (*model.Ticket, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Ticket, error)
	Get(ctx context.Context, viewer *model.User, ticketID string) (*model.Ticket, error)
	ListAll(ctx context.Context) ([]*model.Ticket, error)
	Reply(ctx context.Context, ticketID, reply string) (*model.Ticket, error)
}

// TicketHandler はサポートチケットのHTTPハンドラー。
type TicketHandler struct {
	service TicketServiceInterface
}

// NewTicketHandler はTicketHandlerを生成する。
func NewTicketHandler(service TicketServiceInterface) *TicketHandler {
	return &TicketHandler{service: service}
}

type ticketResponse struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Subject   string             `json:"subject"`
	Body      string             `json:"body"`
	Status    model.TicketStatus `json:"status"`
	Reply     string             `json:"reply,omitempty"`
	RepliedAt *time.Time         `json:"replied_at,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func toTicketResponse(t *model.Ticket) ticketResponse {
	return ticketResponse{
		ID:        t.ID,
		UserID:    t.UserID,
		Subject:   t.Subject,
		Body:      t.Body,
		Status:    t.Status,
		Reply:     t.Reply,
		RepliedAt: t.RepliedAt,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func toTicketResponses(tickets []*model.Ticket) []ticketResponse {
	out := make([]ticketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, toTicketResponse(t))
	}
	return out
}

// Create はチケットを起票する。
// GET /api/user/createticket?subject=xxx&body=yyy
func (h *TicketHandler) Create(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	t, err := h.service.Create(r.Context(), u.ID, q.Get("subject"), q.Get("body"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTicketResponse(t))
}

// List はログインユーザーのチケット一覧を返す。
// GET /api/user/gettickets
func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	tickets, err := h.service.ListByUser(r.Context(), u.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTicketResponses(tickets))
}

// Get はチケットを1件返す。本人または管理者のみ参照できる。
// GET /api/user/tickets/{id}
func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	ticketID := chi.URLParam(r, "id")
	t, err := h.service.Get(r.Context(), u, ticketID)
	if errors.Is(err, ticket.ErrNotFound) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewTicketNotFoundError(ticketID))
		return
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTicketResponse(t))
}
