package feedsim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/okian/zen/internal/domain/model"
)

// Result classifies the service's answer to one submitted event.
type Result string

const (
	ResultAccepted  Result = "accepted"
	ResultDuplicate Result = "duplicate"
	ResultThrottled Result = "throttled"
	ResultFailed    Result = "failed"
)

var errThrottled = errors.New("service is applying backpressure")

// Leaderboard mirrors the service's leaderboard response.
type Leaderboard struct {
	ServerID string                   `json:"server_id"`
	Ledger   string                   `json:"ledger"`
	Entries  []model.LeaderboardEntry `json:"entries"`
}

// Profile mirrors the service's profile response.
type Profile struct {
	ServerID   string `json:"server_id"`
	UserID     string `json:"user_id"`
	Reputation struct {
		Score int64 `json:"score"`
		Rank  int   `json:"rank"`
	} `json:"reputation"`
	Experience struct {
		XP       int64 `json:"xp"`
		Level    int   `json:"level"`
		Messages int64 `json:"messages"`
		Rank     int   `json:"rank"`
	} `json:"experience"`
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Client talks to the service HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	retries uint64
	backoff time.Duration
}

// NewClient creates a client. Throttled submissions are retried up to
// retries times with exponential backoff starting at backoff.
func NewClient(baseURL string, timeout time.Duration, retries uint64, backoff time.Duration) *Client {
	if backoff <= 0 {
		backoff = 20 * time.Millisecond
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		retries: retries,
		backoff: backoff,
	}
}

// Health checks that the service answers its liveness probe.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.get(ctx, "/healthz")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Submit posts one event and classifies the answer.
func (c *Client) Submit(ctx context.Context, ev *model.Event) (Result, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return ResultFailed, fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}

	var result Result
	backoff := retry.WithMaxRetries(c.retries, retry.NewExponential(c.backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := c.post(ctx, body)
		if errors.Is(err, errThrottled) {
			result = ResultThrottled
			return retry.RetryableError(err)
		}
		result = r
		return err
	})
	if err != nil && result == "" {
		result = ResultFailed
	}
	return result, err
}

func (c *Client) post(ctx context.Context, body []byte) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return ResultFailed, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return ResultFailed, fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return ResultAccepted, nil
	case http.StatusOK:
		var ack ackResponse
		if err := json.NewDecoder(resp.Body).Decode(&ack); err == nil && !ack.Duplicate {
			return ResultAccepted, nil
		}
		return ResultDuplicate, nil
	case http.StatusTooManyRequests:
		return ResultThrottled, errThrottled
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ResultFailed, fmt.Errorf("post event: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
}

// Leaderboard fetches the top limit entries of ledger ("rep" or "xp") on server.
func (c *Client) Leaderboard(ctx context.Context, server, ledger string, limit int) (*Leaderboard, error) {
	var out Leaderboard
	if err := c.getJSON(ctx, fmt.Sprintf("/leaderboard/%s/%s?limit=%d", server, ledger, limit), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile fetches the standing of user on server.
func (c *Client) Profile(ctx context.Context, server, user string) (*Profile, error) {
	var out Profile
	if err := c.getJSON(ctx, fmt.Sprintf("/profile/%s/%s", server, user), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats fetches the service counters.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	if err := c.getJSON(ctx, "/stats", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
