package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/livenex/internal/middleware"
	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/storage"
)

const (
	uploadFormField = "file"
	// multipartOverhead は境界やヘッダー分としてファイル上限に上乗せする。
	multipartOverhead = 1 << 20
	// multipartMemory を超えた分は一時ファイルに退避される。
	multipartMemory = 32 << 20
)

// VideoUploader は動画ファイルをオブジェクトストレージに保存する。
type VideoUploader interface {
	Upload(ctx context.Context, in storage.UploadInput) (*storage.Object, error)
	MaxBytes() int64
}

// UploadHandler は動画アップロードのHTTPハンドラー。
// ルーティング側でエンタイトルメントを確認済みであることを前提とする。
type UploadHandler struct {
	uploader VideoUploader
}

// NewUploadHandler はUploadHandlerを生成する。
func NewUploadHandler(uploader VideoUploader) *UploadHandler {
	return &UploadHandler{uploader: uploader}
}

type uploadResponse struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Upload はmultipartの "file" フィールドを保存する。
// POST /api/user/uploadvideo
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	maxBytes := h.uploader.MaxBytes()
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewUploadTooLargeError(maxBytes))
			return
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("multipart/form-dataの解析に失敗しました"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("fileフィールドは必須です"))
		return
	}
	defer file.Close()

	obj, err := h.uploader.Upload(r.Context(), storage.UploadInput{
		UserID:      u.ID,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if errors.Is(err, storage.ErrTooLarge) {
		middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewUploadTooLargeError(maxBytes))
		return
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		Key:         obj.Key,
		URL:         obj.URL,
		Size:        obj.Size,
		ContentType: obj.ContentType,
	})
}
