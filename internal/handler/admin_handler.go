package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/livenex/internal/middleware"
	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/ticket"
)

// UserServiceInterface は管理者向けユーザー操作のサービスインターフェース。
type UserServiceInterface interface {
	List(ctx context.Context) ([]*model.User, error)
	Delete(ctx context.Context, actor *model.User, userID string) error
}

// AdminHandler は管理者専用のHTTPハンドラー。
// ルーティング側でGate.RequireAdminを通過していることを前提とする。
type AdminHandler struct {
	users   UserServiceInterface
	tickets TicketServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(users UserServiceInterface, tickets TicketServiceInterface) *AdminHandler {
	return &AdminHandler{
		users:   users,
		tickets: tickets,
	}
}

type ticketReplyRequest struct {
	TicketID string `json:"ticket_id"`
	Reply    string `json:"reply"`
}

// ListUsers は全ユーザーを返す。
// GET /api/user/admin/getusers
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteUser はユーザーを削除する。連携情報・チケット・決済も併せて削除される。
// GET /api/user/admin/deleteuser?id=xxx
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.users.Delete(r.Context(), actor, r.URL.Query().Get("id")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListTickets は全ユーザーのチケットを返す。
// GET /api/user/admin/getalltickets
func (h *AdminHandler) ListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.tickets.ListAll(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTicketResponses(tickets))
}

// ReplyTicket はチケットに回答する。
// POST /api/user/admin/sentticketreply
func (h *AdminHandler) ReplyTicket(w http.ResponseWriter, r *http.Request) {
	var req ticketReplyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TicketID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("ticket_idは必須です"))
		return
	}

	t, err := h.tickets.Reply(r.Context(), req.TicketID, req.Reply)
	if errors.Is(err, ticket.ErrNotFound) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewTicketNotFoundError(req.TicketID))
		return
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTicketResponse(t))
}
