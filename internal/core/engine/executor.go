package engine

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// Outcome is everything the scheduler learns from one attempt.
type Outcome struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Info       RateLimitInfo

	// Err is set for transport failures; no response was received.
	Err error
}

// Executor performs the network call for one request.
type Executor interface {
	Execute(ctx context.Context, req *Request) Outcome
}

// HTTPExecutor executes requests with an http.Client.
type HTTPExecutor struct {
	Client *http.Client
	Clock  func() time.Time
}

// Execute performs the call and parses rate limit metadata from every
// response regardless of status.
func (x *HTTPExecutor) Execute(ctx context.Context, req *Request) Outcome {
	if ctx == nil {
		ctx = context.Background()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return Outcome{Err: &TransportError{Err: err}}
	}
	for name, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(name, value)
		}
	}

	resp, err := x.client().Do(httpReq)
	if err != nil {
		return Outcome{Err: &TransportError{Err: err}}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{Err: &TransportError{Err: err}}
	}

	info := ParseRateLimit(resp.Header, x.now())
	if resp.StatusCode == http.StatusTooManyRequests {
		applyRateLimitBody(&info, payload)
	}

	return Outcome{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       payload,
		Info:       info,
	}
}

func (x *HTTPExecutor) client() *http.Client {
	if x != nil && x.Client != nil {
		return x.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (x *HTTPExecutor) now() time.Time {
	if x != nil && x.Clock != nil {
		return x.Clock()
	}
	return time.Now().UTC()
}
