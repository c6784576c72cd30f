package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/Evanition/gettingtwitch-ids/pkg/logger"
	"github.com/Evanition/gettingtwitch-ids/pkg/metrics"
	"github.com/Evanition/gettingtwitch-ids/pkg/retry"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// MatchPlayer is one participant of a match. EloRate is nil when the API
// reports no rating for the player.
type MatchPlayer struct {
	UUID     string `json:"uuid"`
	Nickname string `json:"nickname"`
	EloRate  *int   `json:"eloRate"`
}

// Match is one entry of the paginated match list
type Match struct {
	ID      int64         `json:"id"`
	Type    int           `json:"type"`
	Players []MatchPlayer `json:"players"`
}

// TwitchConnection is the linked Twitch account of a profile
type TwitchConnection struct {
	Name string `json:"name"`
}

// Connections holds the external account linkage of a profile
type Connections struct {
	Twitch *TwitchConnection `json:"twitch"`
}

// Profile is the full user payload of the profile endpoint
type Profile struct {
	UUID        string      `json:"uuid"`
	Nickname    string      `json:"nickname"`
	EloRate     *int        `json:"eloRate"`
	Connections Connections `json:"connections"`
}

// MatchQuery bounds one page of the match list. Zero-valued fields are
// omitted from the request.
type MatchQuery struct {
	Count  int
	Before int64
	After  int64
	Type   int
}

// Config holds the client settings
type Config struct {
	BaseURL       string
	UserAgent     string
	Timeout       time.Duration
	MatchesDelay  time.Duration
	ProfileDelay  time.Duration
	MaxRetries    int
	RateLimitWait time.Duration
	TimeoutWait   time.Duration
}

// Client performs GET requests against the ranked ladder API with bounded
// retry on rate limits and timeouts.
type Client struct {
	http   *resty.Client
	logger *logger.Logger
	cfg    Config
}

// New creates a new API client
func New(cfg Config, l *logger.Logger) *Client {
	hc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent)

	return &Client{
		http:   hc,
		logger: l,
		cfg:    cfg,
	}
}

// FetchMatches returns one page of the match list, newest first
func (c *Client) FetchMatches(ctx context.Context, q MatchQuery) ([]Match, error) {
	if err := politeWait(ctx, c.cfg.MatchesDelay); err != nil {
		return nil, err
	}

	params := map[string]string{"count": strconv.Itoa(q.Count)}
	if q.Before > 0 {
		params["before"] = strconv.FormatInt(q.Before, 10)
	}
	if q.After > 0 {
		params["after"] = strconv.FormatInt(q.After, 10)
	}
	if q.Type > 0 {
		params["type"] = strconv.Itoa(q.Type)
	}

	payload, err := c.getJSON(ctx, "/matches", params)
	if err != nil {
		return nil, err
	}

	var matches []Match
	if err := json.Unmarshal(payload, &matches); err != nil {
		return nil, &Error{Kind: KindInvalidResponse, URL: c.url("/matches"), Message: "match list decode failed: " + err.Error()}
	}
	return matches, nil
}

// FetchProfile returns the full profile of one user. Unknown uuids surface
// as a NotFound error.
func (c *Client) FetchProfile(ctx context.Context, uuid string) (*Profile, error) {
	if err := politeWait(ctx, c.cfg.ProfileDelay); err != nil {
		return nil, err
	}

	path := "/users/" + uuid
	payload, err := c.getJSON(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	var profile Profile
	if err := json.Unmarshal(payload, &profile); err != nil {
		return nil, &Error{Kind: KindInvalidResponse, URL: c.url(path), Message: "profile decode failed: " + err.Error()}
	}
	return &profile, nil
}

// getJSON is the retrying GET primitive all endpoint calls funnel through.
// Rate limits wait out the cool-down, timeouts wait the short delay; both up
// to MaxRetries total attempts. Everything else fails on the first attempt.
func (c *Client) getJSON(ctx context.Context, path string, params map[string]string) (json.RawMessage, error) {
	var payload json.RawMessage

	opts := retry.RetryOptions{
		MaxAttempts:     c.cfg.MaxRetries,
		InitialInterval: c.cfg.TimeoutWait,
		MaxInterval:     c.cfg.RateLimitWait,
		Multiplier:      1.0,
		Classifier: func(err error) bool {
			k := KindOf(err)
			return k == KindRateLimited || k == KindTimeout
		},
		Interval: func(err error, attempt int) time.Duration {
			if KindOf(err) == KindRateLimited {
				return c.cfg.RateLimitWait
			}
			return c.cfg.TimeoutWait
		},
	}

	err := retry.Do(ctx, func() error {
		p, err := c.getOnce(ctx, path, params)
		if err != nil {
			return err
		}
		payload = p
		return nil
	}, opts)

	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) {
			switch apiErr.Kind {
			case KindRateLimited:
				err = &Error{Kind: KindRateLimitExhausted, URL: apiErr.URL, Status: apiErr.Status, Message: fmt.Sprintf("gave up after %d attempts", c.cfg.MaxRetries)}
			case KindTimeout:
				err = &Error{Kind: KindTimeoutExhausted, URL: apiErr.URL, Message: fmt.Sprintf("gave up after %d attempts", c.cfg.MaxRetries)}
			}
		}
		return nil, err
	}
	return payload, nil
}

func (c *Client) getOnce(ctx context.Context, path string, params map[string]string) (json.RawMessage, error) {
	url := c.url(path)

	req := c.http.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParams(params)
	}

	resp, err := req.Get(path)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if isTimeout(err) {
			c.logger.Warn("request timed out", zap.String("url", url))
			return nil, &Error{Kind: KindTimeout, URL: url, Message: err.Error()}
		}
		return nil, &Error{Kind: KindNetwork, URL: url, Message: err.Error()}
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return parsePayload(url, resp.Body())
	case http.StatusNotFound:
		return nil, &Error{Kind: KindNotFound, URL: url, Status: http.StatusNotFound}
	case http.StatusTooManyRequests:
		metrics.RateLimitHitsTotal.Inc()
		c.logger.Warn("rate limit hit", zap.String("url", url), zap.Duration("cooldown", c.cfg.RateLimitWait))
		return nil, &Error{Kind: KindRateLimited, URL: url, Status: http.StatusTooManyRequests}
	case http.StatusBadRequest:
		msg := extractErrorMessage(resp.Body())
		if msg == "" {
			msg = "bad request"
		}
		return nil, &Error{Kind: KindBadRequest, URL: url, Status: http.StatusBadRequest, Message: msg}
	default:
		return nil, &Error{Kind: KindHTTPStatus, URL: url, Status: resp.StatusCode()}
	}
}

// parsePayload unwraps the two shapes the API serves on 200: an object
// envelope {status, data} for single resources, a bare array for lists.
func parsePayload(url string, body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.RawMessage(trimmed), nil
	}

	var envelope struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &Error{Kind: KindInvalidResponse, URL: url, Message: "invalid JSON: " + err.Error()}
	}
	if envelope.Status != "success" {
		return nil, &Error{Kind: KindInvalidResponse, URL: url, Message: fmt.Sprintf("unexpected response status %q", envelope.Status)}
	}
	return envelope.Data, nil
}

// extractErrorMessage pulls the structured message out of a 400 body, if any
func extractErrorMessage(body []byte) string {
	var envelope struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Status != "error" {
		return ""
	}
	var msg string
	if err := json.Unmarshal(envelope.Data, &msg); err == nil {
		return msg
	}
	return string(envelope.Data)
}

func (c *Client) url(path string) string {
	return c.cfg.BaseURL + path
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// politeWait spaces out calls to the same endpoint family, independent of
// the retry delays.
func politeWait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
