// Package marketapi is the storefront's client for the marketplace REST API.
// Every call carries the browser's session cookies plus the mirrored bearer
// token, and the response is interpreted in a fixed order: 401 clears the
// session, 403 on admin routes bounces to home, other failures become an
// APIError with a normalized message, and empty bodies read as null.
package marketapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"example.com/farmstand/internal/logging"
	"example.com/farmstand/internal/metrics"
)

const (
	adminPrefix     = "/admin"
	maxErrorBody    = 64 << 10
	maxResponseBody = 8 << 20
)

// TokenSource is the persistent bearer-token mirror.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}

// Hooks receive the side effects the client must apply to keep every open
// view consistent with the server's idea of the session.
type Hooks interface {
	// SessionExpired runs on any intercepted 401. silent is true for the
	// startup session probe, which must not alarm the user.
	SessionExpired(ctx context.Context, silent bool)
	// AccessDenied runs on a 403 from an admin route.
	AccessDenied(ctx context.Context)
	// Unreachable runs when no response arrived at all.
	Unreachable(ctx context.Context, err error)
}

// NopHooks ignores every event.
type NopHooks struct{}

func (NopHooks) SessionExpired(context.Context, bool) {}
func (NopHooks) AccessDenied(context.Context)         {}
func (NopHooks) Unreachable(context.Context, error)   {}

// Options configures a Client.
type Options struct {
	BaseURL string
	// HTTPClient supplies the transport and timeout; the client always gets
	// its own cookie jar. Zero timeout means calls never time out.
	HTTPClient *http.Client
	Tokens     TokenSource
	Hooks      Hooks
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Client is bound to a single browser session.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	hooks      Hooks
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New builds a client with a private cookie jar.
func New(opts Options) *Client {
	base := opts.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	jar, _ := cookiejar.New(nil)
	hooks := opts.Hooks
	if hooks == nil {
		hooks = NopHooks{}
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = &MemoryTokens{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{
			Transport:     base.Transport,
			Timeout:       base.Timeout,
			CheckRedirect: base.CheckRedirect,
			Jar:           jar,
		},
		tokens:  tokens,
		hooks:   hooks,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// SetHooks replaces the hooks; used when the hook owner is built after the client.
func (c *Client) SetHooks(h Hooks) {
	if h == nil {
		h = NopHooks{}
	}
	c.hooks = h
}

// Multipart is a pre-built form payload; it is sent as-is, never JSON encoded.
type Multipart struct {
	Fields []Field
	File   *FilePart
}

// Field is one ordered form value.
type Field struct {
	Name  string
	Value string
}

// FilePart is an optional uploaded file.
type FilePart struct {
	FieldName   string
	FileName    string
	ContentType string
	Data        []byte
}

// RequestOptions tunes one call. The zero value is a GET without body.
type RequestOptions struct {
	Method    string
	Body      any
	Multipart *Multipart
	Header    http.Header
	// Silent marks the startup session probe: a 401 clears the session
	// without a toast.
	Silent bool
	// NoIntercept treats 401/403 as ordinary errors; the login and register
	// forms need the server's message instead of a session reset.
	NoIntercept bool
}

type outcome struct {
	status int
	body   json.RawMessage
}

// Request performs one call. It returns (nil, nil) when there is nothing to
// parse: intercepted 401/403, 204, or an empty body.
func (c *Client) Request(ctx context.Context, endpoint string, opts *RequestOptions) (json.RawMessage, error) {
	out, err := c.send(ctx, endpoint, opts)
	if err != nil {
		return nil, err
	}
	return out.body, nil
}

// mutate is Request for state-changing calls: an intercepted 401/403 comes
// back as an error so the caller never reports a false success.
func (c *Client) mutate(ctx context.Context, endpoint string, opts *RequestOptions) (json.RawMessage, error) {
	out, err := c.send(ctx, endpoint, opts)
	if err != nil {
		return nil, err
	}
	switch out.status {
	case http.StatusUnauthorized:
		return nil, ErrSessionExpired
	case http.StatusForbidden:
		return nil, ErrForbidden
	}
	return out.body, nil
}

func (c *Client) send(ctx context.Context, endpoint string, opts *RequestOptions) (outcome, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := c.newRequest(ctx, method, endpoint, opts)
	if err != nil {
		return outcome{}, err
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	label := routeLabel(endpoint)
	if err != nil {
		c.metrics.ObserveAPI(method, label, 0, time.Since(started))
		if ctx.Err() != nil {
			return outcome{}, ctx.Err()
		}
		c.logger.Warn("marketplace api unreachable", "method", method, "endpoint", endpoint, "error", err)
		wrapped := fmt.Errorf("%w: %s %s: %v", ErrUnreachable, method, endpoint, err)
		c.hooks.Unreachable(ctx, wrapped)
		return outcome{}, wrapped
	}
	defer resp.Body.Close()
	c.metrics.ObserveAPI(method, label, resp.StatusCode, time.Since(started))
	c.logger.Debug("marketplace api call", "method", method, "endpoint", endpoint, "status", resp.StatusCode, "elapsed", time.Since(started))

	return c.interpret(ctx, method, endpoint, resp, opts)
}

func (c *Client) interpret(ctx context.Context, method, endpoint string, resp *http.Response, opts *RequestOptions) (outcome, error) {
	status := resp.StatusCode

	if !opts.NoIntercept {
		if status == http.StatusUnauthorized {
			if err := c.tokens.ClearToken(ctx); err != nil {
				c.logger.Warn("clear token mirror failed", "error", err)
			}
			c.logger.Info("session rejected by marketplace", "endpoint", endpoint, "silent", opts.Silent)
			c.hooks.SessionExpired(ctx, opts.Silent)
			return outcome{status: status}, nil
		}
		if status == http.StatusForbidden && isAdminEndpoint(endpoint) {
			c.logger.Warn("admin access denied", "endpoint", endpoint)
			c.hooks.AccessDenied(ctx)
			return outcome{status: status}, nil
		}
	}

	if status < 200 || status > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := NormalizeDetail(body, statusFallback(status))
		c.logger.Warn("marketplace api error", "method", method, "endpoint", endpoint, "status", status, "message", msg)
		return outcome{status: status}, &APIError{Status: status, Endpoint: endpoint, Message: msg}
	}

	if status == http.StatusNoContent || resp.ContentLength == 0 {
		return outcome{status: status}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return outcome{status: status}, fmt.Errorf("read %s %s: %w", method, endpoint, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return outcome{status: status}, nil
	}
	if !json.Valid(body) {
		return outcome{status: status}, &APIError{
			Status:   status,
			Endpoint: endpoint,
			Message:  fmt.Sprintf("%s: %s", ErrMalformed, endpoint),
		}
	}
	return outcome{status: status, body: json.RawMessage(body)}, nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, opts *RequestOptions) (*http.Request, error) {
	var (
		body        io.Reader
		contentType string
	)
	switch {
	case opts.Multipart != nil:
		buf, ct, err := encodeMultipart(opts.Multipart)
		if err != nil {
			return nil, err
		}
		body, contentType = buf, ct
	case opts.Body != nil:
		raw, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body, contentType = bytes.NewReader(raw), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.logger.Warn("read token mirror failed", "error", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, values := range opts.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return req, nil
}

func encodeMultipart(m *Multipart) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for _, f := range m.Fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", f.Name, err)
		}
	}
	if m.File != nil && len(m.File.Data) > 0 {
		header := make(textproto.MIMEHeader)
		field := m.File.FieldName
		if field == "" {
			field = "image"
		}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, m.File.FileName))
		ct := m.File.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		header.Set("Content-Type", ct)
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("create file part: %w", err)
		}
		if _, err := part.Write(m.File.Data); err != nil {
			return nil, "", fmt.Errorf("write file part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

// Decode unmarshals raw into T. A null result decodes to the zero value.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if raw == nil {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}

func isAdminEndpoint(endpoint string) bool {
	path := endpoint
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path == adminPrefix || strings.HasPrefix(path, adminPrefix+"/")
}

// routeLabel collapses ids and query strings so metrics stay low-cardinality.
func routeLabel(endpoint string) string {
	path := endpoint
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg != "" && strings.Trim(seg, "0123456789") == "" {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

// MemoryTokens is an in-process TokenSource.
type MemoryTokens struct {
	mu    sync.Mutex
	token string
}

func (m *MemoryTokens) Token(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *MemoryTokens) SetToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryTokens) ClearToken(context.Context) error {
	return m.SetToken(context.Background(), "")
}

var _ TokenSource = (*MemoryTokens)(nil)

// IsNotFound reports a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
