// ABOUTME: Bot-control HTTP client
// ABOUTME: Creates meeting bots, polls their status and builds stream URLs
package botctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harperreed/streamtap/internal/version"
)

// Status is a bot lifecycle event
type Status string

const (
	StatusInWaitingRoom              Status = "in_waiting_room"
	StatusInCallNotRecording         Status = "in_call_not_recording"
	StatusRecordingPermissionAllowed Status = "recording_permission_allowed"
	StatusRecordingPermissionDenied  Status = "recording_permission_denied"
	StatusInCallRecording            Status = "in_call_recording"
	StatusCallEnded                  Status = "call_ended"
	StatusDone                       Status = "done"
	StatusFatal                      Status = "fatal"
)

// Known reports whether s is one of the documented statuses
func (s Status) Known() bool {
	switch s {
	case StatusInWaitingRoom, StatusInCallNotRecording, StatusRecordingPermissionAllowed,
		StatusRecordingPermissionDenied, StatusInCallRecording, StatusCallEnded,
		StatusDone, StatusFatal:
		return true
	}
	return false
}

// Terminal reports whether the bot has left the call for good
func (s Status) Terminal() bool {
	return s == StatusCallEnded || s == StatusDone || s == StatusFatal
}

// Bot identifies a created bot
type Bot struct {
	BotID string `json:"botId"`
	ID    string `json:"id,omitempty"`
}

// BotStatus is the latest status report
type BotStatus struct {
	Status    Status `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

type envelope[T any] struct {
	Data T `json:"data"`
}

// Client talks to the bot-control service
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for baseURL, e.g. http://localhost:8080
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// BaseURL returns the service base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health checks the service is up
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/telehealth/health", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// CreateBot asks the service to send a bot into the meeting
func (c *Client) CreateBot(ctx context.Context, meetingURL, botName string) (Bot, error) {
	body, err := json.Marshal(map[string]string{
		"meetingUrl": meetingURL,
		"botName":    botName,
	})
	if err != nil {
		return Bot{}, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/telehealth/bot", body)
	if err != nil {
		return Bot{}, err
	}
	defer resp.Body.Close()

	var out envelope[Bot]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Bot{}, fmt.Errorf("failed to parse bot response: %w", err)
	}
	if out.Data.BotID == "" {
		return Bot{}, fmt.Errorf("bot response missing botId")
	}
	return out.Data, nil
}

// Status fetches the bot's latest status
func (c *Client) Status(ctx context.Context, botID string) (BotStatus, error) {
	resp, err := c.do(ctx, http.MethodGet, "/telehealth/bot/"+url.PathEscape(botID), nil)
	if err != nil {
		return BotStatus{}, err
	}
	defer resp.Body.Close()

	var out envelope[BotStatus]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return BotStatus{}, fmt.Errorf("failed to parse status response: %w", err)
	}
	return out.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s failed: HTTP %d", method, path, resp.StatusCode)
	}
	return resp, nil
}

// StreamURL builds the websocket URL for a bot's audio stream. wsBase may be
// empty, in which case it is derived from the client's base URL.
func (c *Client) StreamURL(wsBase, botID string) (string, error) {
	if wsBase == "" {
		wsBase = c.baseURL
	}
	return StreamURL(wsBase, botID)
}

// StreamURL builds base + /stream?botId=<escaped>, mapping http(s) to ws(s)
func StreamURL(base, botID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid stream base %q: %w", base, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported stream scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/stream"
	u.RawQuery = url.Values{"botId": {botID}}.Encode()
	return u.String(), nil
}

// WaitFor polls Status every interval until pred returns true, the status
// becomes terminal, or ctx ends
func (c *Client) WaitFor(ctx context.Context, botID string, interval time.Duration, pred func(Status) bool) (BotStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := c.Status(ctx, botID)
		if err == nil {
			if pred(st.Status) {
				return st, nil
			}
			if st.Status.Terminal() {
				return st, fmt.Errorf("bot %s ended with status %s", botID, st.Status)
			}
		}

		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}
