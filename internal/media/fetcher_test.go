package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"courier/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xFF, 0xD8, 0xFF})
	}))
	defer server.Close()

	fetcher := NewFetcher(5 * time.Second)

	data, contentType, err := fetcher.Fetch(context.Background(), server.URL+"/photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, data)
	assert.Equal(t, "image/jpeg", contentType)
}

func TestFetchDetectsContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		w.Write([]byte("%PDF-1.4 content"))
	}))
	defer server.Close()

	fetcher := NewFetcher(5 * time.Second)

	_, contentType, err := fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
}

func TestFetchNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	fetcher := NewFetcher(5 * time.Second)

	_, _, err := fetcher.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeMediaFetch, errors.GetCode(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestFetchTransportError(t *testing.T) {
	fetcher := NewFetcher(time.Second)

	_, _, err := fetcher.Fetch(context.Background(), "http://127.0.0.1:1/gone")
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestFetchSizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 1024))
	}))
	defer server.Close()

	fetcher := &httpFetcher{
		client:   &http.Client{Timeout: 5 * time.Second},
		maxBytes: 512,
	}

	_, _, err := fetcher.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeMediaFetch, errors.GetCode(err))
	assert.False(t, errors.IsRetryable(err))
}
