package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type mockPutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (m *mockPutter) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.input = params
	if params.Body != nil {
		m.body, _ = io.ReadAll(params.Body)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestUpload_StoresUnderUserPrefix(t *testing.T) {
	putter := &mockPutter{}
	u := NewUploader(putter, S3Config{Bucket: "livenex-videos", Region: "eu-north-1"}, 1024)

	obj, err := u.Upload(context.Background(), UploadInput{
		UserID:      "user-1",
		Filename:    "My Stream.MP4",
		ContentType: "video/mp4",
		Size:        5,
		Body:        bytes.NewReader([]byte("hello")),
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if !strings.HasPrefix(obj.Key, "videos/user-1/") || !strings.HasSuffix(obj.Key, ".mp4") {
		t.Errorf("Key = %q", obj.Key)
	}
	if obj.URL != "https://livenex-videos.s3.eu-north-1.amazonaws.com/"+obj.Key {
		t.Errorf("URL = %q", obj.URL)
	}
	if *putter.input.Bucket != "livenex-videos" || *putter.input.ContentLength != 5 {
		t.Errorf("unexpected input: bucket=%q len=%d", *putter.input.Bucket, *putter.input.ContentLength)
	}
	if string(putter.body) != "hello" {
		t.Errorf("body = %q", putter.body)
	}
	if putter.input.Metadata["original-filename"] != "My Stream.MP4" {
		t.Errorf("metadata = %v", putter.input.Metadata)
	}
}

func TestUpload_TooLarge_NoUpload(t *testing.T) {
	putter := &mockPutter{}
	u := NewUploader(putter, S3Config{Bucket: "b"}, 10)

	_, err := u.Upload(context.Background(), UploadInput{UserID: "u", ContentType: "video/mp4", Size: 11, Body: strings.NewReader("")})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if putter.input != nil {
		t.Error("PutObject must not be called")
	}
}

func TestUpload_NonVideo_Rejected(t *testing.T) {
	u := NewUploader(&mockPutter{}, S3Config{Bucket: "b"}, 0)

	_, err := u.Upload(context.Background(), UploadInput{UserID: "u", ContentType: "text/html", Body: strings.NewReader("<script>")})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestUpload_PutError_Wrapped(t *testing.T) {
	putErr := errors.New("access denied")
	u := NewUploader(&mockPutter{err: putErr}, S3Config{Bucket: "b"}, 0)

	_, err := u.Upload(context.Background(), UploadInput{UserID: "u", ContentType: "video/webm", Body: strings.NewReader("x")})
	if !errors.Is(err, putErr) {
		t.Fatalf("expected wrapped put error, got %v", err)
	}
}

func TestObjectBaseURL_CustomEndpoint(t *testing.T) {
	got := objectBaseURL(S3Config{Bucket: "videos", Endpoint: "http://localhost:9000/"})
	if got != "http://localhost:9000/videos" {
		t.Errorf("objectBaseURL() = %q", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"../../etc/passwd":    "passwd",
		`C:\Users\a\clip.mp4`: "clip.mp4",
		"line\nbreak.mp4":     "line_break.mp4",
		"動画.mp4":              "__.mp4",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewS3Client_ReturnsClient(t *testing.T) {
	c := NewS3Client(S3Config{Region: "eu-north-1", AccessKeyID: "AKIA", SecretAccessKey: "secret", Endpoint: "http://localhost:9000"})
	if c == nil {
		t.Fatal("expected client")
	}
	if !c.Options().UsePathStyle {
		t.Error("custom endpoint should use path-style addressing")
	}
}
