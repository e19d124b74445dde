package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/livenex/internal/model"
)

// EntitlementChecker は利用権限を判定する。entitlement.Checkerが実装する。
type EntitlementChecker interface {
	IsEntitled(ctx context.Context, userID string) (bool, error)
}

// RequireEntitlement は有効なサブスクリプションを持つユーザーのみ通過させる。
// Gate.Requireの内側に配置する。
func RequireEntitlement(checker EntitlementChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			entitled, err := checker.IsEntitled(r.Context(), user.ID)
			if err != nil {
				slog.ErrorContext(r.Context(), "failed to check entitlement",
					slog.String("user_id", user.ID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if !entitled {
				WriteErrorResponse(w, http.StatusPaymentRequired, model.NewNotEntitledError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
