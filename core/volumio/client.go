package volumio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/shouni/go-http-kit/pkg/httpkit"
	"golang.org/x/time/rate"
)

const (
	getStateEndpoint  = "/api/v1/getState"
	pushURLsEndpoint  = "/api/v1/pushNotificationUrls"
	defaultAPITimeout = 10 * time.Second
)

// Client calls the Volumio REST API. Requests are retried by httpkit.
type Client struct {
	client *httpkit.Client
	apiURL string
	logger *slog.Logger
}

// NewClient returns a Client for the player at apiURL, e.g.
// "http://volumio.local:3000". A zero timeout selects a default.
func NewClient(apiURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client: httpkit.New(timeout),
		apiURL: apiURL,
		logger: logger,
	}
}

// buildURL joins endpoint onto the API base URL.
func (c *Client) buildURL(endpoint string) (string, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return "", &NetworkError{Endpoint: endpoint, WrappedErr: fmt.Errorf("parse API URL: %w", err)}
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return "", &NetworkError{Endpoint: endpoint, WrappedErr: fmt.Errorf("join endpoint: %w", err)}
	}
	return u.String(), nil
}

// GetState fetches the current player state.
func (c *Client) GetState(ctx context.Context) (State, error) {
	u, err := c.buildURL(getStateEndpoint)
	if err != nil {
		return State{}, err
	}
	body, err := c.client.FetchBytes(ctx, u)
	if err != nil {
		return State{}, &NetworkError{Endpoint: getStateEndpoint, WrappedErr: err}
	}
	return ParseState(body)
}

// RegisterPushURL asks Volumio to POST every state change to callback.
func (c *Client) RegisterPushURL(ctx context.Context, callback string) error {
	u, err := c.buildURL(pushURLsEndpoint)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]string{"url": callback})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return &NetworkError{Endpoint: pushURLsEndpoint, WrappedErr: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if _, err := c.client.DoRequest(req); err != nil {
		return &NetworkError{Endpoint: pushURLsEndpoint, WrappedErr: err}
	}
	c.logger.InfoContext(ctx, "registered push notification URL", "url", callback)
	return nil
}

// Watch polls the player state every interval and calls fn with each state
// that differs from the previous one. Failed polls are logged and skipped.
// Watch returns when ctx is done.
func (c *Client) Watch(ctx context.Context, interval time.Duration, fn func(context.Context, State)) error {
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	var (
		last    State
		hasLast bool
	)
	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		s, err := c.GetState(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.WarnContext(ctx, "poll volumio state", "error", err)
			continue
		}
		if hasLast && s == last {
			continue
		}
		last, hasLast = s, true
		fn(ctx, s)
	}
}
