package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
)

// Client sends authenticated requests to the DigiSign API and maps every
// HTTP status onto the error taxonomy in errors.go.
//
// The client never retries on its own; see Retrier for an opt-in policy.
type Client struct {
	baseURL string
	http    HTTPDoer
	opts    *Options
	logger  glog.Logger
}

// Request describes a single API call. The zero ExpectedStatus means the
// default success set for the operation ({200, 201} for Send, {200} for SendBinary).
type Request struct {
	Method string
	Path   string
	// Body is serialized as JSON when non-nil.
	Body any
	// Query values are appended verbatim; nil values are skipped.
	Query          map[string]any
	ExpectedStatus []int
	AcceptLanguage string
}

var (
	defaultSuccess       = []int{http.StatusOK, http.StatusCreated}
	defaultBinarySuccess = []int{http.StatusOK}
)

type rawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// New creates a new DigiSign API client. Trailing slashes on baseURL are dropped.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("baseURL cannot be empty")
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if options.timeout <= 0 {
		return nil, errors.New("timeout must be positive")
	}

	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: options.timeout}
	}

	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		opts:    options,
		logger:  options.logger,
	}, nil
}

// BaseURL returns the API root the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Send performs req with a bearer token and returns the decoded JSON payload.
//
// A 204 response, or a success response whose body is empty or not JSON,
// yields an empty map. Failures are one of the taxonomy errors, or an
// unclassified go-errors envelope for transport problems.
func (c *Client) Send(ctx context.Context, req Request, token string) (any, error) {
	var body io.Reader
	headers := c.authHeaders(token, req.AcceptLanguage)

	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, unclassifiedError(err, goerrors.CategoryBadInput, "digisign: encode request body",
				TextCodeRequest, http.StatusBadRequest, map[string]any{"path": req.Path})
		}
		body = bytes.NewReader(payload)
		headers["Content-Type"] = "application/json"
	}

	resp, err := c.roundTrip(ctx, req.Method, req.Path, req.Query, body, headers)
	if err != nil {
		return nil, err
	}
	return c.interpret(req, resp, successSet(req.ExpectedStatus, defaultSuccess))
}

// SendBinary performs req without a body and returns the raw response payload.
func (c *Client) SendBinary(ctx context.Context, req Request, token string) ([]byte, error) {
	resp, err := c.roundTrip(ctx, req.Method, req.Path, req.Query, nil, c.authHeaders(token, req.AcceptLanguage))
	if err != nil {
		return nil, err
	}

	if slices.Contains(successSet(req.ExpectedStatus, defaultBinarySuccess), resp.StatusCode) {
		return resp.Body, nil
	}
	return nil, c.fail(req, statusError(resp))
}

func (c *Client) interpret(req Request, resp *rawResponse, expected []int) (any, error) {
	if resp.StatusCode == http.StatusNoContent {
		return emptyResult(), nil
	}
	if slices.Contains(expected, resp.StatusCode) {
		if data, ok := decodeJSON(resp.Body); ok {
			return data, nil
		}
		return emptyResult(), nil
	}
	return nil, c.fail(req, statusError(resp))
}

func (c *Client) fail(req Request, err error) error {
	c.logger.Warn("digisign request failed", "method", req.Method, "path", req.Path, "kind", string(KindOf(err)), "error", err.Error())
	return err
}

// statusError maps a non-success response to exactly one taxonomy error.
func statusError(resp *rawResponse) error {
	raw, parsed := decodeJSON(resp.Body)
	if !parsed {
		raw = emptyResult()
	}
	fields, _ := raw.(map[string]any)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return &ValidationError{
			StatusCode: resp.StatusCode,
			Message:    stringField(fields, "detail", "Bad request"),
			Violations: violations(fields),
		}
	case http.StatusUnprocessableEntity:
		return &ValidationError{
			StatusCode: resp.StatusCode,
			Message:    stringField(fields, "detail", "Validation failed"),
			Violations: violations(fields),
		}
	case http.StatusUnauthorized:
		return &AuthError{
			Code:    ErrCodeUnauthorized,
			Message: stringField(fields, "detail", "Authentication failed"),
		}
	case http.StatusForbidden:
		return &ForbiddenError{Message: stringField(fields, "detail", "Operation forbidden")}
	case http.StatusNotFound:
		return &NotFoundError{Message: stringField(fields, "detail", "Resource not found")}
	case http.StatusTooManyRequests:
		retryAfter, ok := parseRetryAfter(resp.Header.Get("Retry-After"))
		return &RateLimitError{
			Message:       "Rate limit exceeded",
			RetryAfter:    retryAfter,
			HasRetryAfter: ok,
		}
	default:
		return &APIError{StatusCode: resp.StatusCode, Body: raw}
	}
}

func (c *Client) authHeaders(token, acceptLanguage string) map[string]string {
	headers := map[string]string{
		"Authorization": "Bearer " + token,
	}
	if acceptLanguage != "" {
		headers["Accept-Language"] = acceptLanguage
	}
	return headers
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query map[string]any, body io.Reader, headers map[string]string) (*rawResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if method == "" {
		method = http.MethodGet
	}

	target := buildURL(c.baseURL, path, query)
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, unclassifiedError(err, goerrors.CategoryBadInput, "digisign: create http request",
			TextCodeRequest, http.StatusBadRequest, map[string]any{"method": method, "url": target})
	}
	if c.opts.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.opts.userAgent)
	}
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	startedAt := time.Now()
	httpRes, err := c.http.Do(httpReq)
	if err != nil {
		return nil, unclassifiedError(err, goerrors.CategoryExternal, "digisign: execute http request",
			TextCodeTransport, http.StatusBadGateway, map[string]any{"method": method, "url": target})
	}
	defer httpRes.Body.Close()

	payload, err := io.ReadAll(httpRes.Body)
	if err != nil {
		return nil, unclassifiedError(err, goerrors.CategoryExternal, "digisign: read response body",
			TextCodeTransport, http.StatusBadGateway, map[string]any{"method": method, "url": target, "status_code": httpRes.StatusCode})
	}

	c.logger.Debug("digisign request",
		"method", method,
		"path", path,
		"status", httpRes.StatusCode,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)

	return &rawResponse{
		StatusCode: httpRes.StatusCode,
		Header:     httpRes.Header,
		Body:       payload,
	}, nil
}

// buildURL joins base and path and appends the non-nil query values in key
// order. Values are not escaped.
func buildURL(base, path string, query map[string]any) string {
	target := base + path
	if q := encodeQuery(query); q != "" {
		target += "?" + q
	}
	return target
}

func encodeQuery(query map[string]any) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for key, value := range query {
		if value == nil {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+fmt.Sprint(query[key]))
	}
	return strings.Join(parts, "&")
}

func successSet(declared, fallback []int) []int {
	if len(declared) == 0 {
		return fallback
	}
	return declared
}

func emptyResult() map[string]any {
	return map[string]any{}
}

func decodeJSON(body []byte) (any, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, false
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, false
	}
	return data, true
}

func stringField(fields map[string]any, key, fallback string) string {
	if value, ok := fields[key].(string); ok && value != "" {
		return value
	}
	return fallback
}

func violations(fields map[string]any) []any {
	if list, ok := fields["violations"].([]any); ok {
		return list
	}
	return []any{}
}

// parseRetryAfter reads a delta-seconds Retry-After value. HTTP dates are
// not supported and report false.
func parseRetryAfter(header string) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}
