package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/livenex/internal/model"
)

type mockEntitlementChecker struct {
	entitled map[string]bool
	err      error
}

func (m *mockEntitlementChecker) IsEntitled(_ context.Context, userID string) (bool, error) {
	return m.entitled[userID], m.err
}

func TestRequireEntitlement(t *testing.T) {
	tests := []struct {
		name       string
		user       *model.User
		checker    *mockEntitlementChecker
		wantStatus int
	}{
		{"entitled", &model.User{ID: "paid"}, &mockEntitlementChecker{entitled: map[string]bool{"paid": true}}, http.StatusOK},
		{"not entitled", &model.User{ID: "free"}, &mockEntitlementChecker{}, http.StatusPaymentRequired},
		{"no user in context", nil, &mockEntitlementChecker{}, http.StatusUnauthorized},
		{"checker error", &model.User{ID: "paid"}, &mockEntitlementChecker{err: errors.New("db down")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/user/uploadvideo", nil)
			if tt.user != nil {
				req = req.WithContext(ContextWithUser(req.Context(), tt.user))
			}
			w := httptest.NewRecorder()
			RequireEntitlement(tt.checker)(okHandler()).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusPaymentRequired {
				if body := decodeErrorBody(t, w); body.Code != model.ErrCodeNotEntitled {
					t.Errorf("code = %q", body.Code)
				}
			}
		})
	}
}
