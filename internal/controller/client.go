// Package controller talks to UniFi network controllers over their REST API.
package controller

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/loryanstrant/unifi-documenter/internal/config"
	"github.com/loryanstrant/unifi-documenter/internal/model"
)

// DefaultMaxResponseBytes caps a single controller reply.
const DefaultMaxResponseBytes = 32 * 1024 * 1024

// Client is an authenticated session against one controller.
type Client interface {
	Authenticate(ctx context.Context) error
	SystemInfo(ctx context.Context) (model.Record, error)
	ListSites(ctx context.Context) ([]model.Record, error)
	Fetch(ctx context.Context, kind model.ResourceKind, siteID string) ([]model.Record, error)
	Disconnect(ctx context.Context) error
	APIVersion() string
}

// Factory builds a Client for a controller.
type Factory func(cfg config.ControllerConfig, logger *zap.SugaredLogger) (Client, error)

// Options tunes the REST transport.
type Options struct {
	Timeout   time.Duration
	Retries   int
	RetryWait time.Duration
	RateLimit float64

	// MaxResponseBytes caps each reply body; 0 means DefaultMaxResponseBytes.
	MaxResponseBytes int64
}

// OptionsFromConfig converts the http config section.
func OptionsFromConfig(cfg config.HTTPConfig) Options {
	return Options{
		Timeout:   cfg.Timeout,
		Retries:   cfg.Retries,
		RetryWait: cfg.RetryWait,
		RateLimit: cfg.RateLimit,
	}
}

// NewFactory returns a Factory producing REST clients with opts.
func NewFactory(opts Options) Factory {
	return func(cfg config.ControllerConfig, logger *zap.SugaredLogger) (Client, error) {
		return New(cfg, opts, logger)
	}
}

// RESTClient implements Client with resty.
type RESTClient struct {
	cfg     config.ControllerConfig
	http    *resty.Client
	limiter *rate.Limiter
	logger  *zap.SugaredLogger

	mu            sync.RWMutex
	version       apiVersion
	authenticated bool
}

// New creates a REST client for cfg. No request is made until Authenticate.
func New(cfg config.ControllerConfig, opts Options, logger *zap.SugaredLogger) (*RESTClient, error) {
	baseURL, err := cfg.BaseURL()
	if err != nil {
		return nil, &config.ConfigError{Controller: cfg.Name, Field: "host", Msg: err.Error()}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = time.Second
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = DefaultMaxResponseBytes
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	c := &RESTClient{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With("controller", cfg.Name),
	}

	r := resty.New()
	r.SetBaseURL(baseURL)
	r.SetTimeout(opts.Timeout)
	r.SetHeader("Accept", "application/json")
	r.SetHeader("Content-Type", "application/json")
	r.SetTLSClientConfig(&tls.Config{
		InsecureSkipVerify: !cfg.VerifyTLS(), //nolint:gosec
		MinVersion:         tls.VersionTLS12,
	})
	transport, err := r.Transport()
	if err != nil {
		return nil, fmt.Errorf("failed to configure transport: %w", err)
	}
	r.SetTransport(&limitedTransport{base: transport, limit: opts.MaxResponseBytes})
	r.SetRetryCount(opts.Retries)
	r.SetRetryWaitTime(opts.RetryWait)
	r.SetRetryMaxWaitTime(opts.RetryWait * 8)
	r.AddRetryCondition(retryableGET)
	r.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return c.limiter.Wait(req.Context())
	})
	if cfg.UsesAPIKey() {
		r.SetAuthToken(cfg.APIKey)
	}
	c.http = r

	return c, nil
}

// retryableGET retries idempotent reads on transport failure, 429 and 5xx.
// Login and logout are never replayed.
func retryableGET(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
		return false
	}
	if errors.Is(err, ErrResponseTooLarge) {
		return false
	}
	return err != nil ||
		resp.StatusCode() == http.StatusTooManyRequests ||
		resp.StatusCode() >= http.StatusInternalServerError
}

// APIVersion returns the version chosen by Authenticate, or "" before it.
func (c *RESTClient) APIVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.authenticated {
		return ""
	}
	return c.version.name
}

// Authenticate establishes a session, trying API versions in preference order.
func (c *RESTClient) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		attempted []string
		reached   bool
		lastErr   error
	)
	for _, v := range candidates(c.cfg.APIVersion) {
		attempted = append(attempted, v.name)

		err := c.tryVersion(ctx, v)
		if err == nil {
			c.version = v
			c.authenticated = true
			c.logger.Infow("Authenticated to controller",
				"api_version", v.name,
				"auth", authMethod(c.cfg),
			)
			return nil
		}

		if !IsTransport(err) {
			reached = true
		}
		lastErr = err
		c.logger.Debugw("API version rejected", "api_version", v.name, "error", err)
	}

	if reached {
		return &AuthenticationError{Controller: c.cfg.Name, Versions: attempted, Err: lastErr}
	}
	return &ConnectionError{Controller: c.cfg.Name, Err: lastErr}
}

func (c *RESTClient) tryVersion(ctx context.Context, v apiVersion) error {
	c.http.Header.Del("X-CSRF-Token")

	if !c.cfg.UsesAPIKey() {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(map[string]any{
				"username": c.cfg.Username,
				"password": c.cfg.Password,
				"remember": true,
			}).
			Post(v.loginPath)
		if err != nil {
			return &transportError{err: err}
		}
		if resp.IsError() {
			return &StatusError{Code: resp.StatusCode(), Body: truncate(resp.Body(), 200)}
		}
		if token := resp.Header().Get("X-CSRF-Token"); token != "" {
			c.http.SetHeader("X-CSRF-Token", token)
		}
	}

	// A version is only accepted once its site list decodes.
	_, err := c.getList(ctx, v.prefix+pathSites)
	return err
}

func authMethod(cfg config.ControllerConfig) string {
	if cfg.UsesAPIKey() {
		return "api_key"
	}
	return "credentials"
}

func (c *RESTClient) session() (apiVersion, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.authenticated {
		return apiVersion{}, ErrNotAuthenticated
	}
	return c.version, nil
}

// SystemInfo returns controller-level information. The sysinfo statistic is
// preferred; the bare system endpoint is used when it is unavailable.
func (c *RESTClient) SystemInfo(ctx context.Context) (model.Record, error) {
	v, err := c.session()
	if err != nil {
		return nil, err
	}

	records, err := c.getList(ctx, v.prefix+pathSysinfo)
	if err == nil && len(records) > 0 {
		return records[0], nil
	}

	body, ferr := c.get(ctx, pathSystem)
	if ferr != nil {
		if err == nil {
			err = ferr
		}
		return nil, &ResourceFetchError{Resource: "system info", Err: err}
	}
	var info model.Record
	if derr := decode(body, &info); derr != nil {
		return nil, &ResourceFetchError{Resource: "system info", Err: derr}
	}
	return info, nil
}

// ListSites returns every site the session can see.
func (c *RESTClient) ListSites(ctx context.Context) ([]model.Record, error) {
	v, err := c.session()
	if err != nil {
		return nil, err
	}
	sites, err := c.getList(ctx, v.prefix+pathSites)
	if err != nil {
		return nil, &ResourceFetchError{Resource: "sites", Err: err}
	}
	return sites, nil
}

// Fetch returns one resource collection for a site.
func (c *RESTClient) Fetch(ctx context.Context, kind model.ResourceKind, siteID string) ([]model.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown resource kind %d", int(kind))
	}
	v, err := c.session()
	if err != nil {
		return nil, err
	}
	records, err := c.getList(ctx, v.sitePath(siteID, kind))
	if err != nil {
		return nil, &ResourceFetchError{Resource: kind.String(), Site: siteID, Err: err}
	}
	return records, nil
}

// Disconnect ends a credential session. Logout failures are ignored.
func (c *RESTClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.authenticated && !c.cfg.UsesAPIKey() {
		resp, err := c.http.R().SetContext(ctx).Post(c.version.logoutPath)
		if err != nil || resp.IsError() {
			c.logger.Debugw("Logout failed", "error", err)
		}
	}
	c.authenticated = false
	c.logger.Infow("Disconnected from controller")
	return nil
}

// get performs a GET and returns the capped body of a 2xx reply.
func (c *RESTClient) get(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(path)
	if errors.Is(err, ErrResponseTooLarge) {
		return nil, err
	}
	if err != nil {
		return nil, &transportError{err: err}
	}

	body := resp.Body()
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &StatusError{Code: resp.StatusCode(), Body: truncate(body, 200)}
	}
	return body, nil
}

// envelope is the controller's standard reply wrapper.
type envelope struct {
	Meta struct {
		RC  string `json:"rc"`
		Msg string `json:"msg"`
	} `json:"meta"`
	Data json.RawMessage `json:"data"`
}

// getList fetches path and returns the records under "data". A reply without
// data is an empty collection.
func (c *RESTClient) getList(ctx context.Context, path string) ([]model.Record, error) {
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if env.Meta.RC == "error" {
		return nil, &StatusError{Code: http.StatusOK, Body: env.Meta.Msg}
	}

	data := bytes.TrimSpace(env.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return []model.Record{}, nil
	case data[0] == '{':
		var one model.Record
		if err := decode(data, &one); err != nil {
			return nil, err
		}
		return []model.Record{one}, nil
	default:
		var records []model.Record
		if err := decode(data, &records); err != nil {
			return nil, err
		}
		if records == nil {
			records = []model.Record{}
		}
		return records, nil
	}
}

// decode unmarshals keeping numbers as json.Number.
func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
