package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"courier/internal/errors"
)

const defaultMaxFetchBytes = 100 << 20 // 100 MB

// Fetcher resolves a message's media URL into bytes plus the content's
// mime type, so the dispatch worker can wrap them for the channel.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

type httpFetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(timeout time.Duration) Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: defaultMaxFetchBytes,
	}
}

func (f *httpFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create media request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", errors.WrapRetryable(err, errors.ErrCodeMediaFetch, "failed to fetch media")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.WrapRetryable(
			fmt.Errorf("unexpected status %d", resp.StatusCode),
			errors.ErrCodeMediaFetch, "failed to fetch media")
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", errors.WrapRetryable(err, errors.ErrCodeMediaFetch, "failed to read media body")
	}
	if int64(len(data)) > f.maxBytes {
		return nil, "", errors.New(errors.ErrCodeMediaFetch,
			fmt.Sprintf("media exceeds %d byte limit", f.maxBytes))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return data, contentType, nil
}
