package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

// Uploader writes a generated object to durable storage and returns its
// stable public URL.
type Uploader interface {
	Upload(ctx context.Context, objectPath string, contentType string, data []byte) (string, error)
}

// ObjectUploader writes objects directly to a Cloud Storage bucket. This is
// the preferred destination when storage credentials are configured.
type ObjectUploader struct {
	client *gcs.Client
	bucket string
}

// NewObjectUploader constructs an ObjectUploader for the given bucket.
func NewObjectUploader(client *gcs.Client, bucket string) (*ObjectUploader, error) {
	if client == nil {
		return nil, errors.New("storage uploader: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage uploader: bucket name is required")
	}
	return &ObjectUploader{client: client, bucket: bucket}, nil
}

// Upload writes the object and returns its public URL.
func (u *ObjectUploader) Upload(ctx context.Context, objectPath string, contentType string, data []byte) (string, error) {
	objectPath = strings.TrimLeft(strings.TrimSpace(objectPath), "/")
	if objectPath == "" {
		return "", errors.New("storage uploader: object path is required")
	}

	w := u.client.Bucket(u.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000, immutable"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage uploader: write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage uploader: finalize object: %w", err)
	}

	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, objectPath), nil
}

// ProxyUploader posts objects to an HTTP upload proxy. It is the fallback
// destination when no storage credentials are configured.
type ProxyUploader struct {
	endpoint   string
	httpClient *http.Client
}

// NewProxyUploader constructs a ProxyUploader against the given endpoint.
func NewProxyUploader(endpoint string, httpClient *http.Client) (*ProxyUploader, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("storage uploader: proxy endpoint is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ProxyUploader{endpoint: endpoint, httpClient: httpClient}, nil
}

// Upload posts the object as multipart form data. The proxy responds with a
// JSON body carrying the public URL of the stored object.
func (u *ProxyUploader) Upload(ctx context.Context, objectPath string, contentType string, data []byte) (string, error) {
	objectPath = strings.TrimLeft(strings.TrimSpace(objectPath), "/")
	if objectPath == "" {
		return "", errors.New("storage uploader: object path is required")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("path", objectPath); err != nil {
		return "", fmt.Errorf("storage uploader: build form: %w", err)
	}
	part, err := writer.CreateFormFile("file", objectPath[strings.LastIndex(objectPath, "/")+1:])
	if err != nil {
		return "", fmt.Errorf("storage uploader: build form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("storage uploader: build form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage uploader: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("storage uploader: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage uploader: proxy upload: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("storage uploader: proxy returned %d: %s", resp.StatusCode, snippet(respBody))
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return "", fmt.Errorf("storage uploader: decode proxy response: %w", err)
	}
	if strings.TrimSpace(payload.URL) == "" {
		return "", errors.New("storage uploader: proxy response missing url")
	}
	return payload.URL, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
