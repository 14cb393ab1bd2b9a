package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultHTTPTimeout = 10 * time.Second

// maxResponseBody caps how much of a gateway reply is buffered.
const maxResponseBody = 1 << 20

// HTTPClient is a small JSON client used by the outbound gateway adapters.
// Headers set with WithHeader are sent on every request.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	headers http.Header
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		headers: http.Header{},
	}
}

func (c *HTTPClient) WithHeader(key, value string) *HTTPClient {
	c.headers.Set(key, value)
	return c
}

// WithBearer authenticates every request with token. An empty token is
// ignored.
func (c *HTTPClient) WithBearer(token string) *HTTPClient {
	if token == "" {
		return c
	}
	return c.WithHeader("Authorization", "Bearer "+token)
}

// Response is a fully read reply. Transport failures are returned as errors,
// any HTTP status is a Response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) DecodeJSON(target any) error {
	return json.Unmarshal(r.Body, target)
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (c *HTTPClient) PostJSON(ctx context.Context, path string, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req)
}

func (c *HTTPClient) send(req *http.Request) (*Response, error) {
	for key, values := range c.headers {
		req.Header[key] = values
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// ErrorMessage extracts a human readable message from a JSON error body,
// falling back to the status code.
func ErrorMessage(resp *Response) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Code    string `json:"code"`
	}
	if resp.DecodeJSON(&body) == nil {
		for _, candidate := range []string{body.Message, body.Error, body.Code} {
			if candidate != "" {
				return candidate
			}
		}
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}
