package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/media/incoming%2Fmsg-1", r.URL.EscapedPath())
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, data)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "media", "secret", 5*time.Second)

	url, err := client.Upload(context.Background(), "incoming/msg-1", []byte{1, 2, 3}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/media/incoming%2Fmsg-1", url)
}

func TestUploadRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bucket quota exceeded", http.StatusInsufficientStorage)
	}))
	defer server.Close()

	client := NewClient(server.URL, "media", "", 5*time.Second)

	_, err := client.Upload(context.Background(), "key", []byte{1}, "application/octet-stream")
	require.Error(t, err)

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, http.StatusInsufficientStorage, storageErr.StatusCode)
	assert.Contains(t, storageErr.Message, "bucket quota exceeded")
}

func TestUploadTransportError(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "media", "", time.Second)

	_, err := client.Upload(context.Background(), "key", []byte{1}, "application/octet-stream")
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Zero(t, storageErr.StatusCode)
}
