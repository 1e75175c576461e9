package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is the capability boundary to the binary attachment store.
type Client interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// StorageError reports an upload the object store rejected or could not
// complete.
type StorageError struct {
	StatusCode int
	Message    string
}

func (e *StorageError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("object store upload failed (status %d): %s", e.StatusCode, e.Message)
	}
	return "object store upload failed: " + e.Message
}

// HTTPClient uploads objects to a bucket over the store's REST API.
type HTTPClient struct {
	baseURL string
	bucket  string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, bucket, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		bucket:  bucket,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Upload stores the object under key and returns its public URL.
func (c *HTTPClient) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	objectURL := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.bucket), url.PathEscape(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, objectURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &StorageError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StorageError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
	}

	return objectURL, nil
}
