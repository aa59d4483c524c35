// Package umapi fetches vehicle positions from the Warsaw city API.
package umapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/frost-warsaw/frost/internal/model"
)

// Config holds everything the client needs to reach the API.
type Config struct {
	BaseURL        string
	ResourceID     string
	APIKey         string
	RequestTimeout time.Duration
	RetryBackoff   time.Duration
	ErrorMarker    string

	// HTTPClient overrides the default client built from RequestTimeout.
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client fetches one vehicle class at a time and retries until it gets a
// usable answer.
type Client struct {
	cfg    Config
	base   *url.URL
	http   *http.Client
	logger *log.Logger
}

// NewClient validates cfg and fills in defaults.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("umapi: api key is required")
	}
	if cfg.ResourceID == "" {
		return nil, errors.New("umapi: resource id is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("umapi: invalid base url %q", cfg.BaseURL)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = model.DefaultRequestTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = model.DefaultRetryBackoff
	}
	if cfg.ErrorMarker == "" {
		cfg.ErrorMarker = model.DefaultErrorMarker
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Client{cfg: cfg, base: base, http: httpClient, logger: logger}, nil
}

// Endpoint returns the request URL for one vehicle class.
func (c *Client) Endpoint(class model.VehicleClass) (string, error) {
	if !class.Valid() {
		return "", fmt.Errorf("umapi: unknown vehicle class %d", int(class))
	}
	u := *c.base
	q := u.Query()
	q.Set("resource_id", c.cfg.ResourceID)
	q.Set("apikey", c.cfg.APIKey)
	q.Set("type", strconv.Itoa(int(class)))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch returns the payload for class. Transport failures and upstream error
// answers are logged and retried after a fixed backoff with no attempt limit;
// Fetch only gives up when ctx is done, returning ctx's error.
func (c *Client) Fetch(ctx context.Context, class model.VehicleClass) (*Payload, error) {
	endpoint, err := c.Endpoint(class)
	if err != nil {
		return nil, err
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(c.cfg.RetryBackoff), ctx)
	return backoff.RetryNotifyWithData(
		func() (*Payload, error) {
			return Classify(c.get(ctx, endpoint), c.cfg.ErrorMarker)
		},
		b,
		func(err error, d time.Duration) {
			c.logger.Printf("umapi: WARN %s fetch failed, retrying in %s: %v", class, d, err)
		},
	)
}

// get performs one GET. The endpoint carries the API key, so URL errors are
// unwrapped before they can reach a log line.
func (c *Client) get(ctx context.Context, endpoint string) RawResponse {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return RawResponse{Err: fmt.Errorf("build request: %w", stripURL(err))}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return RawResponse{Err: stripURL(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return RawResponse{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	return RawResponse{StatusCode: resp.StatusCode, Body: body}
}

func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
