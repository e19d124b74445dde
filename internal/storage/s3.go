// Package storage はアップロードされた動画のオブジェクトストレージ保存を提供する。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrTooLarge はサイズ上限超過を表す。
var ErrTooLarge = errors.New("upload too large")

// ErrUnsupportedType は動画以外のContent-Typeを表す。
var ErrUnsupportedType = errors.New("unsupported content type")

// ObjectPutter はS3のPutObjectを抽象化する（テストで差し替える）。
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config はS3クライアントの設定。
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // S3互換ストレージ（MinIO等）の場合に指定
	AccessKeyID     string
	SecretAccessKey string
	HTTPClient      *http.Client
}

// NewS3Client はS3Configからクライアントを生成する。
// 資格情報が未指定の場合はAWS_ACCESS_KEY_ID等の環境変数を参照する。
func NewS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region: cfg.Region,
	}
	if cfg.AccessKeyID != "" {
		creds := aws.Credentials{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Source:          "livenex-config",
		}
		opts.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) { return creds, nil },
		))
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	if cfg.HTTPClient != nil {
		opts.HTTPClient = cfg.HTTPClient
	}
	return s3.New(opts)
}

// Object はアップロード済みオブジェクト。
type Object struct {
	Key         string
	URL         string
	Size        int64
	ContentType string
}

// UploadInput はアップロードの入力。Bodyはio.ReadSeekerが望ましい（SigV4のペイロード署名のため）。
type UploadInput struct {
	UserID      string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploader は動画をユーザーごとのプレフィックス配下に保存する。
type Uploader struct {
	client   ObjectPutter
	bucket   string
	baseURL  string
	maxBytes int64
	now      func() time.Time
}

// NewUploader はUploaderを生成する。
func NewUploader(client ObjectPutter, cfg S3Config, maxBytes int64) *Uploader {
	return &Uploader{
		client:   client,
		bucket:   cfg.Bucket,
		baseURL:  objectBaseURL(cfg),
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// MaxBytes はアップロードサイズの上限を返す。
func (u *Uploader) MaxBytes() int64 {
	return u.maxBytes
}

// Upload はオブジェクトを保存し、キーと公開URLを返す。
func (u *Uploader) Upload(ctx context.Context, in UploadInput) (*Object, error) {
	if u.maxBytes > 0 && in.Size > u.maxBytes {
		return nil, ErrTooLarge
	}
	contentType := strings.ToLower(strings.TrimSpace(in.ContentType))
	if !strings.HasPrefix(contentType, "video/") {
		return nil, ErrUnsupportedType
	}

	key := u.keyFor(in.UserID, in.Filename)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        in.Body,
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"original-filename": sanitizeFilename(in.Filename),
			"user-id":           in.UserID,
			"upload-time":       u.now().UTC().Format(time.RFC3339),
		},
	}
	if in.Size > 0 {
		input.ContentLength = aws.Int64(in.Size)
	}

	if _, err := u.client.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("s3 upload failed: %w", err)
	}

	return &Object{
		Key:         key,
		URL:         u.baseURL + "/" + key,
		Size:        in.Size,
		ContentType: contentType,
	}, nil
}

func (u *Uploader) keyFor(userID, filename string) string {
	ext := strings.ToLower(path.Ext(sanitizeFilename(filename)))
	if len(ext) > 10 {
		ext = ""
	}
	return fmt.Sprintf("videos/%s/%s%s", userID, uuid.New().String(), ext)
}

// sanitizeFilename はメタデータに入れるファイル名からパスと制御文字を除く。
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r > 0x7e {
			return '_'
		}
		return r
	}, name)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func objectBaseURL(cfg S3Config) string {
	if cfg.Endpoint != "" {
		return strings.TrimSuffix(cfg.Endpoint, "/") + "/" + url.PathEscape(cfg.Bucket)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
}
