package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"
)

// HTTPClient talks to the channel gateway's REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Send delivers one message and returns the gateway-assigned remote
// message ID.
func (c *HTTPClient) Send(ctx context.Context, destination string, content Content) (string, error) {
	if content.Media != nil {
		return c.sendMedia(ctx, destination, content)
	}
	return c.sendText(ctx, destination, content.Text)
}

func (c *HTTPClient) sendText(ctx context.Context, destination, text string) (string, error) {
	payload := map[string]interface{}{
		"destination": destination,
		"text":        text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal send payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/sendText", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *HTTPClient) sendMedia(ctx context.Context, destination string, content Content) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	filename := content.Media.Filename
	if filename == "" {
		filename = "attachment"
	}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", content.Media.ContentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(content.Media.Data)); err != nil {
		return "", fmt.Errorf("failed to copy media content: %w", err)
	}

	if err := writer.WriteField("destination", destination); err != nil {
		return "", fmt.Errorf("failed to write destination field: %w", err)
	}
	if content.Text != "" {
		if err := writer.WriteField("caption", content.Text); err != nil {
			return "", fmt.Errorf("failed to write caption field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/sendMedia", body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) (string, error) {
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &SendError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &SendError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
	}

	var result sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != "" {
		return "", &SendError{StatusCode: resp.StatusCode, Message: result.Error}
	}
	if result.MessageID == "" {
		return "", &SendError{StatusCode: resp.StatusCode, Message: "gateway returned no message ID"}
	}

	return result.MessageID, nil
}
