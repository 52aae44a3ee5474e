package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kjanat/digisign-cli/pkg/credential"
)

var testNow = time.Unix(1700000000, 0)

func fixedClock() time.Time { return testNow }

func tempConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		BaseURL:   "http://unused",
		TokenFile: filepath.Join(t.TempDir(), "token.json"),
	}
}

func saveRecord(t *testing.T, path string, rec *credential.Record) {
	t.Helper()
	if err := credential.NewFileStore(path).Save(rec); err != nil {
		t.Fatalf("save record: %v", err)
	}
}

// TestTokenProviderResolve tests token precedence and staleness handling
func TestTokenProviderResolve(t *testing.T) {
	tests := []struct {
		name        string
		directToken string
		record      *credential.Record
		wantToken   string
		wantCode    string
	}{
		{
			name:        "direct token wins over cache",
			directToken: "env-token",
			record:      &credential.Record{Token: "cached", IssuedAt: testNow.Unix() - 10, ExpiresAt: testNow.Unix() + 3600},
			wantToken:   "env-token",
		},
		{
			name:        "direct token is not checked",
			directToken: "anything",
			wantToken:   "anything",
		},
		{
			name:      "fresh cached token",
			record:    &credential.Record{Token: "cached", IssuedAt: testNow.Unix() - 10, ExpiresAt: testNow.Unix() + 61},
			wantToken: "cached",
		},
		{
			name:     "cached token inside safety margin",
			record:   &credential.Record{Token: "cached", IssuedAt: testNow.Unix() - 10, ExpiresAt: testNow.Unix() + 30},
			wantCode: ErrCodeTokenExpired,
		},
		{
			name:     "no cached token",
			wantCode: ErrCodeTokenMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tempConfig(t)
			cfg.AccessToken = tt.directToken
			if tt.record != nil {
				saveRecord(t, cfg.TokenFile, tt.record)
			}

			p := NewTokenProvider(cfg, nil, WithClock(fixedClock))
			got, err := p.Resolve(context.Background())

			if tt.wantCode != "" {
				var ae *AuthError
				if !errors.As(err, &ae) {
					t.Fatalf("expected AuthError, got %v", err)
				}
				if ae.Code != tt.wantCode {
					t.Errorf("expected code %q, got %q", tt.wantCode, ae.Code)
				}
				if KindOf(err) != KindAuthentication {
					t.Errorf("expected authentication kind, got %q", KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.wantToken {
				t.Errorf("expected token %q, got %q", tt.wantToken, got)
			}
		})
	}
}

func TestTokenProviderExpiredAndMissingMessagesDiffer(t *testing.T) {
	cfg := tempConfig(t)
	p := NewTokenProvider(cfg, nil, WithClock(fixedClock))

	_, missingErr := p.Resolve(context.Background())

	saveRecord(t, cfg.TokenFile, &credential.Record{Token: "old", IssuedAt: 1, ExpiresAt: testNow.Unix() - 1})
	_, expiredErr := p.Resolve(context.Background())

	if missingErr == nil || expiredErr == nil {
		t.Fatalf("expected both to fail, got %v / %v", missingErr, expiredErr)
	}
	if missingErr.Error() == expiredErr.Error() {
		t.Errorf("expected distinct messages, both were %q", missingErr.Error())
	}
	if !IsTokenExpired(expiredErr) || IsTokenExpired(missingErr) {
		t.Error("IsTokenExpired must only match the stale record")
	}
}

func TestTokenProviderUnreadableCache(t *testing.T) {
	cfg := tempConfig(t)
	if err := os.WriteFile(cfg.TokenFile, []byte("{broken"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := NewTokenProvider(cfg, nil).Resolve(context.Background())
	var ae *AuthError
	if !errors.As(err, &ae) || ae.Code != ErrCodeTokenMissing {
		t.Fatalf("expected missing-token AuthError, got %v", err)
	}
}

func tokenServer(t *testing.T, status int, body string) (*Client, *map[string]string) {
	t.Helper()
	var got map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != TokenPath || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("token exchange must not send Authorization, got %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
	return c, &got
}

// TestExchangeToken tests the access/secret key exchange
func TestExchangeToken(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		want        *credential.Record
		wantMessage string
		wantKind    ErrorKind
	}{
		{
			name:   "success",
			status: 200,
			body:   `{"token":"jwt","iat":1700000000,"exp":1700003600}`,
			want:   &credential.Record{Token: "jwt", IssuedAt: 1700000000, ExpiresAt: 1700003600},
		},
		{
			name:        "error with detail",
			status:      401,
			body:        `{"detail":"Invalid credentials"}`,
			wantMessage: "Invalid credentials",
			wantKind:    KindAuthentication,
		},
		{
			name:        "error JSON without detail",
			status:      400,
			body:        `{"title":"bad"}`,
			wantMessage: "Authentication failed: 400",
			wantKind:    KindAuthentication,
		},
		{
			name:        "error without JSON",
			status:      502,
			body:        `<html>bad gateway</html>`,
			wantMessage: "Authentication failed: 502",
			wantKind:    KindAuthentication,
		},
		{
			name:     "success with garbage body",
			status:   200,
			body:     `nope`,
			wantKind: KindUnclassified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, sent := tokenServer(t, tt.status, tt.body)

			rec, err := c.ExchangeToken(context.Background(), "ak", "sk")

			if (*sent)["accessKey"] != "ak" || (*sent)["secretKey"] != "sk" {
				t.Errorf("unexpected request body %v", *sent)
			}
			if tt.want != nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if *rec != *tt.want {
					t.Errorf("expected %+v, got %+v", *tt.want, *rec)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if KindOf(err) != tt.wantKind {
				t.Errorf("expected kind %q, got %q", tt.wantKind, KindOf(err))
			}
			var ae *AuthError
			if tt.wantMessage != "" {
				if !errors.As(err, &ae) {
					t.Fatalf("expected AuthError, got %T", err)
				}
				if ae.Message != tt.wantMessage || ae.Code != ErrCodeExchangeFailed {
					t.Errorf("unexpected auth error %+v", ae)
				}
			}
		})
	}
}

func TestTokenProviderRefresh(t *testing.T) {
	c, _ := tokenServer(t, 200, `{"token":"fresh","iat":1700000000,"exp":1700003600}`)
	cfg := tempConfig(t)
	cfg.AccessKey = "ak"
	cfg.SecretKey = "sk"

	p := NewTokenProvider(cfg, c, WithClock(fixedClock))
	rec, err := p.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rec.Token != "fresh" {
		t.Errorf("expected fresh token, got %q", rec.Token)
	}

	token, err := p.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve after refresh: %v", err)
	}
	if token != "fresh" {
		t.Errorf("expected cached fresh token, got %q", token)
	}
}

func TestTokenProviderRefreshWithoutKeys(t *testing.T) {
	p := NewTokenProvider(tempConfig(t), nil)
	_, err := p.Refresh(context.Background())
	if !IsAuthError(err) {
		t.Fatalf("expected auth error without keys, got %v", err)
	}
}

func TestTokenProviderAutoRefresh(t *testing.T) {
	c, _ := tokenServer(t, 200, `{"token":"renewed","iat":1700000000,"exp":1700003600}`)
	cfg := tempConfig(t)
	cfg.AccessKey = "ak"
	cfg.SecretKey = "sk"
	saveRecord(t, cfg.TokenFile, &credential.Record{Token: "old", IssuedAt: 1, ExpiresAt: testNow.Unix() + 5})

	p := NewTokenProvider(cfg, c, WithClock(fixedClock), WithAutoRefresh())
	token, err := p.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if token != "renewed" {
		t.Errorf("expected renewed token, got %q", token)
	}

	saved, err := p.Store().Load()
	if err != nil || saved.Token != "renewed" {
		t.Errorf("expected renewed token to be saved, got %+v (%v)", saved, err)
	}
}

func TestTokenProviderStatus(t *testing.T) {
	cfg := tempConfig(t)
	p := NewTokenProvider(cfg, nil, WithClock(fixedClock))

	status, err := p.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Exists || status.HasToken {
		t.Errorf("expected empty status, got %+v", status)
	}
	if status.TokenFile != cfg.TokenFile || status.APIURL != cfg.BaseURL {
		t.Errorf("unexpected paths in status %+v", status)
	}

	saveRecord(t, cfg.TokenFile, &credential.Record{Token: "t", IssuedAt: testNow.Unix() - 100, ExpiresAt: testNow.Unix() + 120})
	status, err = p.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Exists || !status.HasToken || status.Expired {
		t.Errorf("unexpected status %+v", status)
	}
	if status.ExpiresInSeconds != 120 {
		t.Errorf("expected 120 seconds left, got %d", status.ExpiresInSeconds)
	}

	if err := p.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := p.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}
