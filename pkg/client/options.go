package client

import (
	"net/http"
	"time"

	"github.com/goliatone/go-logger/glog"
)

// HTTPDoer executes HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures the client behavior.
type Options struct {
	timeout    time.Duration
	httpClient HTTPDoer
	logger     glog.Logger
	userAgent  string
}

func defaultOptions() *Options {
	return &Options{
		timeout:   30 * time.Second,
		logger:    glog.Nop(),
		userAgent: "digisign-go",
	}
}

// Option configures the client.
type Option func(*Options)

// WithTimeout sets the HTTP request timeout.
// It is ignored when a custom HTTP client is supplied.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.timeout = d
	}
}

// WithHTTPClient replaces the HTTP client used for every request.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(o *Options) {
		o.httpClient = doer
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger glog.Logger) Option {
	return func(o *Options) {
		if logger == nil {
			logger = glog.Nop()
		}
		o.logger = logger
	}
}

// WithUserAgent sets the User-Agent header sent with each request.
func WithUserAgent(ua string) Option {
	return func(o *Options) {
		o.userAgent = ua
	}
}
