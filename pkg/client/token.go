package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/kjanat/digisign-cli/pkg/credential"
)

// TokenPath is the credential exchange endpoint.
const TokenPath = "/api/auth-token"

// ExchangeToken trades an access/secret key pair for a bearer token.
//
// Any non-2xx response becomes an *AuthError carrying the server's detail
// message when the body is JSON, or the status code otherwise.
func (c *Client) ExchangeToken(ctx context.Context, accessKey, secretKey string) (*credential.Record, error) {
	payload, err := json.Marshal(map[string]string{
		"accessKey": accessKey,
		"secretKey": secretKey,
	})
	if err != nil {
		return nil, unclassifiedError(err, goerrors.CategoryBadInput, "digisign: encode token request",
			TextCodeRequest, http.StatusBadRequest, nil)
	}

	resp, err := c.roundTrip(ctx, http.MethodPost, TokenPath, nil, bytes.NewReader(payload),
		map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, exchangeError(resp)
	}

	var rec credential.Record
	if err := json.Unmarshal(resp.Body, &rec); err != nil {
		return nil, unclassifiedError(err, goerrors.CategoryExternal, "digisign: decode token response",
			TextCodeDecode, http.StatusBadGateway, map[string]any{"status_code": resp.StatusCode})
	}
	if err := rec.Validate(); err != nil {
		return nil, unclassifiedError(err, goerrors.CategoryExternal, "digisign: token response",
			TextCodeDecode, http.StatusBadGateway, map[string]any{"status_code": resp.StatusCode})
	}
	return &rec, nil
}

func exchangeError(resp *rawResponse) error {
	message := fmt.Sprintf("Authentication failed: %d", resp.StatusCode)
	if data, ok := decodeJSON(resp.Body); ok {
		if fields, isObject := data.(map[string]any); isObject {
			message = stringField(fields, "detail", message)
		}
	}
	return &AuthError{Code: ErrCodeExchangeFailed, Message: message}
}

// TokenProvider decides which bearer token a call should use.
type TokenProvider struct {
	config      Config
	store       *credential.FileStore
	client      *Client
	autoRefresh bool
	now         func() time.Time
}

// TokenOption configures a TokenProvider.
type TokenOption func(*TokenProvider)

// WithStore overrides the credential store derived from Config.TokenFile.
func WithStore(store *credential.FileStore) TokenOption {
	return func(p *TokenProvider) {
		p.store = store
	}
}

// WithAutoRefresh lets Resolve exchange the configured key pair when the
// cached token is missing or stale, instead of failing.
func WithAutoRefresh() TokenOption {
	return func(p *TokenProvider) {
		p.autoRefresh = true
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TokenOption {
	return func(p *TokenProvider) {
		p.now = now
	}
}

// NewTokenProvider creates a provider. The client is used only for exchanges
// and may be nil when the provider is used to read cached tokens.
func NewTokenProvider(cfg Config, c *Client, opts ...TokenOption) *TokenProvider {
	p := &TokenProvider{
		config: cfg,
		store:  credential.NewFileStore(cfg.TokenFile),
		client: c,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Store returns the credential store in use.
func (p *TokenProvider) Store() *credential.FileStore {
	return p.store
}

// Resolve returns the token to use, in order of precedence:
// the configured access token (unchecked), then the cached record if it is
// not stale. Missing and expired records both fail with *AuthError; the Code
// tells them apart.
func (p *TokenProvider) Resolve(ctx context.Context) (string, error) {
	if p.config.AccessToken != "" {
		return p.config.AccessToken, nil
	}

	rec, err := p.store.Load()
	if err != nil {
		if p.canRefresh() {
			return p.refreshToken(ctx)
		}
		return "", &AuthError{
			Code:    ErrCodeTokenMissing,
			Message: "no access token available; run 'digisign auth get-token --save' first",
		}
	}

	if rec.Stale(p.now()) {
		if p.canRefresh() {
			return p.refreshToken(ctx)
		}
		return "", &AuthError{
			Code:    ErrCodeTokenExpired,
			Message: "token expired; run 'digisign auth get-token --save' to get a new one",
		}
	}

	return rec.Token, nil
}

// Exchange trades the configured key pair for a new record without saving it.
func (p *TokenProvider) Exchange(ctx context.Context) (*credential.Record, error) {
	if !p.config.HasKeys() {
		return nil, &AuthError{
			Code:    ErrCodeExchangeFailed,
			Message: EnvAccessKey + " and " + EnvSecretKey + " must be set",
		}
	}
	if p.client == nil {
		return nil, errors.New("token provider has no client for credential exchange")
	}
	return p.client.ExchangeToken(ctx, p.config.AccessKey, p.config.SecretKey)
}

// Refresh exchanges the configured key pair and replaces the cached record.
func (p *TokenProvider) Refresh(ctx context.Context) (*credential.Record, error) {
	rec, err := p.Exchange(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.store.Save(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Clear removes the cached record.
func (p *TokenProvider) Clear() error {
	return p.store.Clear()
}

// TokenStatus describes the cached record.
type TokenStatus struct {
	TokenFile        string     `json:"token_file"`
	Exists           bool       `json:"exists"`
	HasToken         bool       `json:"has_token"`
	IssuedAt         *time.Time `json:"issued_at,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	ExpiresInSeconds int64      `json:"expires_in_seconds"`
	Expired          bool       `json:"expired"`
	APIURL           string     `json:"api_url"`
}

// Status reports on the cached record. A missing record is not an error;
// an unreadable one is.
func (p *TokenProvider) Status() (*TokenStatus, error) {
	status := &TokenStatus{
		TokenFile: p.store.Path,
		APIURL:    p.config.BaseURL,
	}

	rec, err := p.store.Load()
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return status, nil
		}
		return nil, err
	}

	now := p.now()
	issued := rec.IssuedTime()
	expires := rec.ExpiryTime()
	status.Exists = true
	status.HasToken = rec.Token != ""
	status.IssuedAt = &issued
	status.ExpiresAt = &expires
	status.ExpiresInSeconds = int64(rec.ExpiresIn(now) / time.Second)
	status.Expired = !now.Before(expires)
	return status, nil
}

func (p *TokenProvider) canRefresh() bool {
	return p.autoRefresh && p.client != nil && p.config.HasKeys()
}

func (p *TokenProvider) refreshToken(ctx context.Context) (string, error) {
	rec, err := p.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return rec.Token, nil
}
