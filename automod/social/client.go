// Client for the social network's HTTP API: channel cast moderation, channel invites, and follow lookups.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/castmod/castmod/automod/actions"
	"github.com/castmod/castmod/util"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/time/rate"
)

// Non-2xx response from the API
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("social API %s %s failed statusCode=%d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

type Client struct {
	Client http.Client
	Host   string
	APIKey string
	// throttles all outbound requests; nil means unlimited
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

var _ actions.Moderator = (*Client)(nil)

func NewClient(host, apiKey string, requestsPerSecond float64) *Client {
	var lim *rate.Limiter
	if requestsPerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &Client{
		Client:  *util.RobustHTTPClient(),
		Host:    host,
		APIKey:  apiKey,
		Limiter: lim,
		Logger:  slog.Default().With("system", "social"),
	}
}

type moderateCastRequest struct {
	CastHash string `json:"castHash"`
	Action   string `json:"action"`
}

type channelInviteRequest struct {
	ChannelID string `json:"channelId"`
	InviteFid int64  `json:"inviteFid"`
	Role      string `json:"role"`
}

type errorResponse struct {
	Message string `json:"message"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type followResponse struct {
	Following bool `json:"following"`
}

func (c *Client) HideCast(ctx context.Context, hash string) error {
	return c.do(ctx, "POST", "/fc/moderated-casts", nil, moderateCastRequest{CastHash: hash, Action: "hide"}, nil)
}

func (c *Client) UnhideCast(ctx context.Context, hash string) error {
	return c.do(ctx, "POST", "/fc/moderated-casts", nil, moderateCastRequest{CastHash: hash, Action: "unhide"}, nil)
}

func (c *Client) InviteMember(ctx context.Context, channelID string, fid int64) error {
	return c.do(ctx, "POST", "/fc/channel-invites", nil, channelInviteRequest{ChannelID: channelID, InviteFid: fid, Role: "member"}, nil)
}

// Reports whether `fid` follows `targetFid`
func (c *Client) IsFollowing(ctx context.Context, fid, targetFid int64) (bool, error) {
	q := url.Values{}
	q.Set("fid", strconv.FormatInt(fid, 10))
	q.Set("targetFid", strconv.FormatInt(targetFid, 10))
	var out followResponse
	if err := c.do(ctx, "GET", "/fc/following", q, nil, &out); err != nil {
		return false, err
	}
	return out.Following, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}
	u := c.Host + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "castmod/"+versioninfo.Short())
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	start := time.Now()
	defer func() {
		socialAPIDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}()

	resp, err := c.Client.Do(req)
	if err != nil {
		socialAPICount.WithLabelValues(path, "error").Inc()
		return fmt.Errorf("social API request failed: %w", err)
	}
	defer resp.Body.Close()
	socialAPICount.WithLabelValues(path, fmt.Sprint(resp.StatusCode)).Inc()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read social API response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode}
		var e errorResponse
		if json.Unmarshal(respBytes, &e) == nil {
			apiErr.Message = e.Message
			if apiErr.Message == "" && len(e.Errors) > 0 {
				apiErr.Message = e.Errors[0].Message
			}
		}
		c.logger().Warn("social API error", "method", method, "path", path, "status", resp.StatusCode, "message", apiErr.Message)
		return apiErr
	}
	if out == nil {
		return nil
	}
	// the API wraps payloads in a "result" envelope
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(respBytes, &envelope); err != nil {
		return fmt.Errorf("failed to parse social API response JSON: %w", err)
	}
	if len(envelope.Result) == 0 {
		return fmt.Errorf("social API response missing result")
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("failed to parse social API result: %w", err)
	}
	return nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
