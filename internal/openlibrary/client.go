// Package openlibrary provides a client for the OpenLibrary works, editions
// and search APIs.
package openlibrary

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/lepinkainen/recto/internal/ratelimit"
)

const (
	// SourceName identifies OpenLibrary in errors and logs.
	SourceName = "OpenLibrary"

	defaultBaseURL         = "https://openlibrary.org"
	defaultUserAgent       = "Recto/1.0 (recto.help@gmail.com)"
	defaultWorkTimeout     = 3 * time.Second
	defaultEditionsTimeout = 5 * time.Second
	defaultSearchTimeout   = 10 * time.Second
	defaultRatePerSecond   = 5
	defaultMaxConnsPerHost = 50
	maxRedirectHops        = 2
)

// HTTPDoer is an interface for making HTTP requests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client is an OpenLibrary API client. It is safe for concurrent use.
type Client struct {
	baseURL         string
	userAgent       string
	httpClient      HTTPDoer
	rateLimiter     *ratelimit.Limiter
	workTimeout     time.Duration
	editionsTimeout time.Duration
	searchTimeout   time.Duration
}

// NewHTTPClient builds the pooled HTTP client shared by all OpenLibrary
// calls. Per-call deadlines come from the request context, so the client
// itself only carries a generous safety timeout.
func NewHTTPClient(maxConnsPerHost int) *http.Client {
	if maxConnsPerHost <= 0 {
		maxConnsPerHost = defaultMaxConnsPerHost
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          maxConnsPerHost,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       60 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 30 * time.Second}
}

// NewClient creates a new OpenLibrary API client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:         defaultBaseURL,
		userAgent:       defaultUserAgent,
		httpClient:      NewHTTPClient(defaultMaxConnsPerHost),
		rateLimiter:     ratelimit.New(SourceName, defaultRatePerSecond),
		workTimeout:     defaultWorkTimeout,
		editionsTimeout: defaultEditionsTimeout,
		searchTimeout:   defaultSearchTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c HTTPDoer) Option {
	return func(client *Client) {
		if c != nil {
			client.httpClient = c
		}
	}
}

// WithBaseURL sets a custom base URL for the OpenLibrary API.
func WithBaseURL(base string) Option {
	return func(client *Client) {
		if base != "" {
			client.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithUserAgent sets the User-Agent sent with every request.
func WithUserAgent(ua string) Option {
	return func(client *Client) {
		if ua != "" {
			client.userAgent = ua
		}
	}
}

// WithRateLimiter sets a custom rate limiter. Passing nil disables throttling.
func WithRateLimiter(limiter *ratelimit.Limiter) Option {
	return func(client *Client) {
		client.rateLimiter = limiter
	}
}

// WithTimeouts overrides the per-endpoint deadlines. Zero values keep the default.
func WithTimeouts(work, editions, search time.Duration) Option {
	return func(client *Client) {
		if work > 0 {
			client.workTimeout = work
		}
		if editions > 0 {
			client.editionsTimeout = editions
		}
		if search > 0 {
			client.searchTimeout = search
		}
	}
}
