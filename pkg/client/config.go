package client

import (
	"os"
	"path/filepath"
	"strings"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvAccessKey   = "DIGISIGN_ACCESS_KEY"
	EnvSecretKey   = "DIGISIGN_SECRET_KEY"
	EnvAccessToken = "DIGISIGN_ACCESS_TOKEN"
	EnvAPIURL      = "DIGISIGN_API_URL"
	EnvTokenFile   = "DIGISIGN_TOKEN_FILE"
)

// DefaultBaseURL is the production API host.
const DefaultBaseURL = "https://api.digisign.org"

// Config is the environment-derived client configuration. Empty fields mean
// the value was not supplied; consumers decide whether that is an error.
type Config struct {
	AccessKey   string
	SecretKey   string
	AccessToken string
	BaseURL     string
	TokenFile   string
}

// HasKeys reports whether an access/secret key pair is configured.
func (c Config) HasKeys() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}

// ConfigFromEnv reads Config from the process environment.
func ConfigFromEnv() Config {
	return LoadConfig(os.Getenv)
}

// LoadConfig builds a Config from getenv. It never fails.
func LoadConfig(getenv func(string) string) Config {
	baseURL := getenv(EnvAPIURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	tokenFile := getenv(EnvTokenFile)
	if tokenFile == "" {
		tokenFile = DefaultTokenFile()
	}

	return Config{
		AccessKey:   getenv(EnvAccessKey),
		SecretKey:   getenv(EnvSecretKey),
		AccessToken: getenv(EnvAccessToken),
		BaseURL:     strings.TrimRight(baseURL, "/"),
		TokenFile:   tokenFile,
	}
}

// DefaultTokenFile returns ~/.digisign/token.json, falling back to a path
// relative to the working directory when the home directory is unknown.
func DefaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".digisign", "token.json")
	}
	return filepath.Join(home, ".digisign", "token.json")
}
