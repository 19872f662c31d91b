// Package insight is the resilient client for the remote insight engine: a
// slow, rate-limited HTTP backend that performs entity extraction and
// long-running report jobs. It normalizes transport outcomes, classifies
// failures, and retries with exponential backoff and timeout escalation.
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Request describes one call to the insight engine.
type Request struct {
	Method string
	Path   string
	Body   any               // JSON-encoded when non-nil
	Header map[string]string // extra headers, merged over defaults
}

// Response is the normalized outcome of a transport call, independent of the
// concrete transport. Text always holds the raw body; JSON is non-nil only
// when the body decoded as a JSON object.
type Response struct {
	Status int
	Text   string
	JSON   map[string]any
}

// Transport issues a single HTTP call to the engine. Implementations must
// honor context cancellation and deadlines.
type Transport interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// HTTPTransport implements Transport over net/http. Per-attempt timeouts are
// imposed by the caller through the context, not by the client.
type HTTPTransport struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPTransport creates a transport for the engine at baseURL. apiKey may
// be empty for unauthenticated engines.
func NewHTTPTransport(baseURL, apiKey string) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{},
	}
}

func (t *HTTPTransport) Do(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, t.baseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if t.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return Normalize(resp.StatusCode, raw), nil
}

// Normalize builds a Response from a raw status and body, decoding the body
// as a JSON object when possible.
func Normalize(status int, body []byte) *Response {
	resp := &Response{Status: status, Text: string(body)}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj map[string]any
		if err := json.Unmarshal(trimmed, &obj); err == nil {
			resp.JSON = obj
		}
	}
	return resp
}

// Compile-time check that HTTPTransport implements Transport.
var _ Transport = (*HTTPTransport)(nil)
