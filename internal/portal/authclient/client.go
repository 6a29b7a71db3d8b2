package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultEndpoint is the login endpoint of a locally running auth service.
	DefaultEndpoint = "http://localhost:5000/api/auth/login"

	defaultTimeout    = 10 * time.Second
	maxResponseBytes  = 1 << 20
	maxMessageLength  = 512
	instrumentationID = "github.com/Santhosh-1218/VIADOCS/internal/portal/authclient"
)

// Credentials is the email/password pair posted to the auth service.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is the successful outcome of a login call.
type Session struct {
	Token string
}

// Client posts credentials to the remote auth service.
type Client struct {
	endpoint string
	http     *http.Client
	policy   *bluemonday.Policy
	tracer   trace.Tracer
}

// Option customises the client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient     *http.Client
	timeout        time.Duration
	tracerProvider trace.TracerProvider
}

// WithHTTPClient replaces the underlying HTTP client. Its transport is wrapped
// for tracing; its timeout is kept unless WithTimeout is also supplied.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = client
	}
}

// WithTimeout bounds a single login request.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = timeout
	}
}

// WithTracerProvider sets the provider used for client spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *clientOptions) {
		o.tracerProvider = tp
	}
}

// NewClient constructs a client for the given absolute http(s) endpoint.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("authclient: parse endpoint: %w", err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("authclient: endpoint must be an absolute http(s) URL, got %q", endpoint)
	}

	options := clientOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	tp := options.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	httpClient := &http.Client{Timeout: defaultTimeout}
	if options.httpClient != nil {
		copied := *options.httpClient
		httpClient = &copied
	}
	if options.timeout > 0 {
		httpClient.Timeout = options.timeout
	}
	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient.Transport = otelhttp.NewTransport(base, otelhttp.WithTracerProvider(tp))

	return &Client{
		endpoint: parsed.String(),
		http:     httpClient,
		policy:   bluemonday.StrictPolicy(),
		tracer:   tp.Tracer(instrumentationID),
	}, nil
}

// Endpoint reports the configured login endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Login sends exactly one POST with the credentials and classifies the reply.
// Errors are *TransportError, *RejectedError or wrap ErrMalformedResponse.
func (c *Client) Login(ctx context.Context, creds Credentials) (Session, error) {
	ctx, span := c.tracer.Start(ctx, "authclient.Login", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	session, status, err := c.login(ctx, creds)
	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	span.SetAttributes(attribute.String("login.outcome", outcomeLabel(err)))
	if err != nil {
		span.SetStatus(codes.Error, outcomeLabel(err))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return session, err
}

func (c *Client) login(ctx context.Context, creds Credentials) (Session, int, error) {
	payload, err := json.Marshal(creds)
	if err != nil {
		return Session{}, 0, fmt.Errorf("authclient: encode credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Session{}, 0, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Session{}, 0, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Session{}, resp.StatusCode, &TransportError{Err: fmt.Errorf("read response: %w", err)}
	}

	parsed, ok := decodeResponse(body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rejected := &RejectedError{Status: resp.StatusCode, Malformed: !ok}
		if ok {
			rejected.Message = c.sanitize(parsed.Message)
		}
		return Session{}, resp.StatusCode, rejected
	}

	if !ok {
		return Session{}, resp.StatusCode, fmt.Errorf("%w: status %d with non-JSON body", ErrMalformedResponse, resp.StatusCode)
	}
	token := strings.TrimSpace(parsed.Token)
	if token == "" {
		return Session{}, resp.StatusCode, fmt.Errorf("%w: status %d without token", ErrMalformedResponse, resp.StatusCode)
	}
	return Session{Token: token}, resp.StatusCode, nil
}

type responsePayload struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

// decodeResponse reports false for anything other than a JSON object whose
// token and message fields, when present, are strings.
func decodeResponse(body []byte) (responsePayload, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return responsePayload{}, false
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return responsePayload{}, false
	}
	var out responsePayload
	if v, ok := raw["token"]; ok {
		if err := json.Unmarshal(v, &out.Token); err != nil {
			out.Token = ""
		}
	}
	if v, ok := raw["message"]; ok {
		if err := json.Unmarshal(v, &out.Message); err != nil {
			out.Message = ""
		}
	}
	return out, true
}

// sanitize strips markup from a server-provided message and returns plain
// text. Spacing is left as the server sent it.
func (c *Client) sanitize(message string) string {
	cleaned := html.UnescapeString(c.policy.Sanitize(message))
	if runes := []rune(cleaned); len(runes) > maxMessageLength {
		cleaned = string(runes[:maxMessageLength])
	}
	return cleaned
}
