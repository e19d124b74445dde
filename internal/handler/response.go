// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/livenex/internal/auth"
	"github.com/hitoshi/livenex/internal/live"
	"github.com/hitoshi/livenex/internal/middleware"
	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/payment"
	"github.com/hitoshi/livenex/internal/storage"
	"github.com/hitoshi/livenex/internal/ticket"
	"github.com/hitoshi/livenex/internal/user"
	"github.com/hitoshi/livenex/internal/youtube"
)

// maxJSONBodyBytes はJSONリクエストボディの上限。
const maxJSONBodyBytes = 1 << 20

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをJSONとして読み込む。
// 失敗した場合は400レスポンスを書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディの解析に失敗しました"))
		return false
	}
	return true
}

// currentUser はGateを通過したユーザーを返す。
// ルーティングの誤りでGateを経由していない場合は401を書き込む。
func currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil, false
	}
	return u, true
}

// handleServiceError はサービス層から返されたエラーを統一エラーレスポンスに変換する。
// 5xxはログに記録し、レスポンスには詳細を含めない。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode, apiErr := classifyError(err)
	if statusCode >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", statusCode),
			slog.String("error", err.Error()),
		)
	}
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// classifyError はドメインエラーをHTTPステータスとAPIErrorに対応付ける。
func classifyError(err error) (int, *model.APIError) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return mapAPIErrorToHTTPStatus(apiErr), apiErr
	}

	var validationErr *auth.ValidationError
	var youtubeErr *youtube.APIError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, model.NewValidationError(validationErr.Reason)
	case errors.Is(err, ticket.ErrInvalidInput):
		return http.StatusBadRequest, model.NewValidationError(reasonOf(err, ticket.ErrInvalidInput))
	case errors.Is(err, live.ErrInvalidInput):
		return http.StatusBadRequest, model.NewValidationError(reasonOf(err, live.ErrInvalidInput))
	case errors.Is(err, youtube.ErrInvalidInput):
		return http.StatusBadRequest, model.NewValidationError(reasonOf(err, youtube.ErrInvalidInput))
	case errors.Is(err, storage.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, model.NewValidationError("動画ファイル（video/*）のみアップロードできます")
	case errors.Is(err, user.ErrSelfDeletion):
		return http.StatusBadRequest, model.NewValidationError("自分自身は削除できません")

	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, model.NewInvalidCredentialsError()
	case errors.Is(err, auth.ErrNotAdmin):
		return http.StatusForbidden, model.NewForbiddenError()
	case errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict, model.NewEmailAlreadyRegisteredError()
	case errors.Is(err, auth.ErrIdentityBoundToAnotherUser):
		return http.StatusConflict, model.NewIdentityBoundToAnotherUserError("")
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound, model.NewUserNotFoundError()

	case errors.Is(err, youtube.ErrNotLinked):
		return http.StatusConflict, model.NewProviderNotLinkedError(model.ProviderYouTube)
	case errors.Is(err, youtube.ErrNoRefreshToken):
		return http.StatusBadGateway, model.NewNoRefreshTokenError(model.ProviderYouTube)
	case errors.As(err, &youtubeErr):
		return http.StatusBadGateway, model.NewUpstreamFailedError("YouTube")

	case errors.Is(err, payment.ErrSignatureMismatch):
		return http.StatusBadRequest, model.NewPaymentVerificationError()
	case errors.Is(err, payment.ErrGatewayFailed):
		return http.StatusBadGateway, model.NewUpstreamFailedError("Razorpay")
	}

	return http.StatusInternalServerError, model.NewInternalError()
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeSessionInvalid, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeCSRFInvalid:
		return http.StatusForbidden
	case model.ErrCodeValidation, model.ErrCodeUnsupportedProvider, model.ErrCodeStateMismatch,
		model.ErrCodeAuthorizationDenied, model.ErrCodePaymentVerification:
		return http.StatusBadRequest
	case model.ErrCodeNotEntitled:
		return http.StatusPaymentRequired
	case model.ErrCodeUserNotFound, model.ErrCodeTicketNotFound, model.ErrCodeOrderNotFound:
		return http.StatusNotFound
	case model.ErrCodeEmailAlreadyRegistered, model.ErrCodeIdentityBoundToAnother, model.ErrCodeProviderNotLinked:
		return http.StatusConflict
	case model.ErrCodeUploadTooLarge:
		return http.StatusRequestEntityTooLarge
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeTokenExchangeFailed, model.ErrCodeProfileFetchFailed, model.ErrCodeNoRefreshToken,
		model.ErrCodeUpstreamFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// reasonOf は "invalid input: 理由" 形式のエラーから理由部分を取り出す。
func reasonOf(err, sentinel error) string {
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()+": "); i >= 0 {
		return msg[i+len(sentinel.Error())+2:]
	}
	return msg
}
