package inference

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultBaseURL     = "https://generativelanguage.googleapis.com"
	defaultModel       = "gemini-2.0-flash"
	defaultHTTPTimeout = 30 * time.Second
	defaultCacheSize   = 16
)

// Config captures the runtime settings required to talk to the inference
// backend.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
	CacheSize      int
}

// Client wraps the file upload and content generation endpoints of the
// inference backend.
type Client struct {
	cfg        Config
	httpClient *http.Client
	genConfigs *lru.Cache[genConfigKey, []byte]
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs an inference client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[genConfigKey, []byte](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("inference client: build config cache: %w", err)
	}

	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
			CacheSize:      cacheSize,
		},
		httpClient: &http.Client{Timeout: timeout},
		genConfigs: cache,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.cfg.Model == "" {
		client.cfg.Model = defaultModel
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.cfg.Model
}

func (c *Client) endpoint(parts ...string) string {
	return c.cfg.BaseURL + "/" + strings.Join(parts, "/")
}
