package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/namelens/guildrest/internal/core/route"
)

const (
	// DefaultBaseURL is the versioned REST root requests are sent to.
	DefaultBaseURL = "https://discord.com/api/v10"

	// DefaultUserAgent identifies the client to the API.
	DefaultUserAgent = "DiscordBot (https://github.com/namelens/guildrest, 0.1.0)"

	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerUserAgent     = "User-Agent"
	headerAuditReason   = "X-Audit-Log-Reason"
)

// Config holds the per-client request settings.
type Config struct {
	BaseURL string
	// Token is sent as "Bot <token>" unless it already carries a scheme.
	Token     string
	UserAgent string
	// Header is added to every request.
	Header http.Header
	// Timeout bounds calls that carry no deadline of their own. Zero means
	// no bound.
	Timeout time.Duration
}

// Call describes one API call handed to the Dispatcher.
type Call struct {
	Key route.Key
	// Method defaults to Key.Method.
	Method string
	// Path is relative to the base URL unless it is absolute.
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
	// ContentType defaults to application/json when Body is set.
	ContentType string
	// Reason is recorded in the guild audit log.
	Reason   string
	Deadline time.Time
}

// CallFor builds a Call for a catalog route.
func CallFor(r route.Route, params route.Params) (Call, error) {
	key, err := r.Key(params)
	if err != nil {
		return Call{}, err
	}
	path, err := r.Path(params)
	if err != nil {
		return Call{}, err
	}
	return Call{Key: key, Method: r.Method, Path: path}, nil
}

// Dispatcher is the entry point for issuing rate limited calls.
type Dispatcher struct {
	scheduler *Scheduler
	baseURL   string
	auth      string
	userAgent string
	header    http.Header
	timeout   time.Duration
}

// NewDispatcher builds a Dispatcher over a fresh Scheduler.
func NewDispatcher(cfg Config, opts Options) (*Dispatcher, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}

	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Dispatcher{
		scheduler: NewScheduler(opts),
		baseURL:   base,
		auth:      authorization(cfg.Token),
		userAgent: userAgent,
		header:    cfg.Header.Clone(),
		timeout:   cfg.Timeout,
	}, nil
}

func authorization(token string) string {
	token = strings.TrimSpace(token)
	if token == "" || strings.Contains(token, " ") {
		return token
	}
	return "Bot " + token
}

// Scheduler exposes the underlying scheduler for inspection.
func (d *Dispatcher) Scheduler() *Scheduler {
	return d.scheduler
}

// Submit queues call and returns at once. callback receives exactly one
// Result.
func (d *Dispatcher) Submit(ctx context.Context, call Call, callback func(Result)) *Ticket {
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := d.build(call)
	if err != nil {
		if callback != nil {
			go callback(Result{Err: err})
		}
		return &Ticket{id: uuid.NewString()}
	}

	deadline := call.Deadline
	if deadline.IsZero() && d.timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			deadline = time.Now().Add(d.timeout)
		}
	}

	return d.scheduler.Submit(ctx, req, deadline, callback)
}

// Do submits call and waits for its result. The returned error equals
// Result.Err.
func (d *Dispatcher) Do(ctx context.Context, call Call) (Result, error) {
	done := make(chan Result, 1)
	d.Submit(ctx, call, func(res Result) { done <- res })
	res := <-done
	return res, res.Err
}

// Close cancels queued calls and refuses new ones.
func (d *Dispatcher) Close() {
	d.scheduler.Close()
}

func (d *Dispatcher) build(call Call) (*Request, error) {
	if call.Key.Method == "" || call.Key.Template == "" {
		return nil, fmt.Errorf("%w: route key is required", ErrInvalidCall)
	}

	method := strings.ToUpper(strings.TrimSpace(call.Method))
	if method == "" {
		method = call.Key.Method
	}

	target, err := d.resolveURL(call.Path, call.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCall, err)
	}

	header := make(http.Header, len(d.header)+len(call.Header)+4)
	for name, values := range d.header {
		header[name] = append([]string(nil), values...)
	}
	for name, values := range call.Header {
		header[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	if d.auth != "" && header.Get(headerAuthorization) == "" {
		header.Set(headerAuthorization, d.auth)
	}
	if header.Get(headerUserAgent) == "" {
		header.Set(headerUserAgent, d.userAgent)
	}
	if len(call.Body) > 0 && header.Get(headerContentType) == "" {
		contentType := call.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		header.Set(headerContentType, contentType)
	}
	if reason := strings.TrimSpace(call.Reason); reason != "" {
		header.Set(headerAuditReason, url.PathEscape(reason))
	}

	return &Request{
		ID:         uuid.NewString(),
		Key:        call.Key,
		Method:     method,
		URL:        target,
		Header:     header,
		Body:       call.Body,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

func (d *Dispatcher) resolveURL(path string, query url.Values) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("path is required")
	}

	var target string
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		target = path
	} else {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		target = d.baseURL + path
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if len(query) > 0 {
		q := u.Query()
		for name, values := range query {
			for _, value := range values {
				q.Add(name, value)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
