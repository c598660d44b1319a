package assist

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Client talks to the remote agriculture analysis service. Both endpoints
// share the same response shape; any non-2xx status or unparsable body is an
// error. The client never retries - a failed call is surfaced and the session
// stays usable for another attempt.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
}

type analyzeRequest struct {
	Image    string `json:"image"`
	Language string `json:"language"`
}

type askRequest struct {
	Question string `json:"question"`
}

type assistResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func NewClient(baseURL string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		BaseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// AnalyzeImage submits a base64 image data URI and the session language,
// returning the assistant's initial assessment text.
func (c *Client) AnalyzeImage(ctx context.Context, imageDataURI, language string) (string, error) {
	return c.post(ctx, "/process-image", analyzeRequest{Image: imageDataURI, Language: language})
}

// Ask submits a follow-up question for the active remote session.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	return c.post(ctx, "/ask", askRequest{Question: question})
}

func (c *Client) post(ctx context.Context, path string, body any) (string, error) {
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("assist %s: status=%d body=%s", path, resp.StatusCode, string(b))
	}
	var ar assistResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", fmt.Errorf("assist %s: decode: %w", path, err)
	}
	if ar.Response == "" {
		return "", fmt.Errorf("assist %s: empty response", path)
	}
	return strings.TrimSpace(ar.Response), nil
}

// ImageDataURI reads an image file and encodes it as a base64 data URI, the
// form the analysis endpoint expects.
func ImageDataURI(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "", fmt.Errorf("image %s: empty file", path)
	}
	mime := http.DetectContentType(b)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("image %s: unsupported content type %s", path, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}
