package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/HMasataka/meeting/pkg/meeting"
	"github.com/HMasataka/meeting/pkg/retry"
	"github.com/samber/lo"
)

const maxErrorBody = 4096

var (
	// ErrInvalidBaseURL the backend base URL is empty or malformed
	ErrInvalidBaseURL = errors.New("invalid signaling base url")
	// ErrInvalidResponse the backend returned a body that could not be decoded
	ErrInvalidResponse = errors.New("invalid signaling response")
)

// HTTPError はバックエンドが2xx以外を返したことを表します。
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Temporary はサーバ側の一時的な失敗かどうかを返します。
func (e *HTTPError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// Client は会議の名簿取得と退出・終了の通知を行うHTTPクライアントです。
type Client struct {
	cfg     Config
	baseURL *url.URL
	http    *http.Client
}

var _ meeting.Signaling = (*Client)(nil)

// NewClient は Client を作成します。httpClient が nil なら Config.Timeout を持つクライアントを使います。
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, cfg.BaseURL)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.timeout()}
	}

	return &Client{cfg: cfg, baseURL: base, http: httpClient}, nil
}

type rosterResponse struct {
	Participants []participant `json:"participants"`
}

type participant struct {
	UID       flexibleUID `json:"uid"`
	Name      string      `json:"name"`
	Role      string      `json:"role"`
	IsTeacher bool        `json:"isTeacher"`
}

// flexibleUID は数値と文字列のどちらで届いたUIDも文字列として扱います。
type flexibleUID string

func (u *flexibleUID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*u = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*u = flexibleUID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("uid must be a string or number: %w", err)
	}
	*u = flexibleUID(n.String())
	return nil
}

func (c *Client) Roster(ctx context.Context, meetingID string) ([]meeting.RosterEntry, error) {
	var res rosterResponse
	if err := c.do(ctx, http.MethodGet, c.meetingPath(meetingID, "participants"), &res); err != nil {
		return nil, err
	}

	return lo.Map(res.Participants, func(p participant, _ int) meeting.RosterEntry {
		return meeting.RosterEntry{
			UID:       string(p.UID),
			Name:      p.Name,
			Role:      p.Role,
			IsTeacher: p.IsTeacher,
		}
	}), nil
}

func (c *Client) Leave(ctx context.Context, meetingID string) error {
	return c.do(ctx, http.MethodPost, c.meetingPath(meetingID, "leave"), nil)
}

func (c *Client) End(ctx context.Context, meetingID string) error {
	return c.do(ctx, http.MethodPost, c.meetingPath(meetingID, "end"), nil)
}

func (c *Client) meetingPath(meetingID, action string) string {
	return c.baseURL.JoinPath("meetings", url.PathEscape(meetingID), action).String()
}

// do はリクエストを送り、一時的な失敗はリトライします。out が nil ならボディは読み捨てます。
func (c *Client) do(ctx context.Context, method, endpoint string, out any) error {
	return retry.Do(ctx, c.cfg.retry(), func(ctx context.Context) error {
		err := c.send(ctx, method, endpoint, out)
		if err == nil {
			return nil
		}

		var httpErr *HTTPError
		if errors.As(err, &httpErr) && !httpErr.Temporary() {
			return retry.Permanent(err)
		}
		if errors.Is(err, ErrInvalidResponse) {
			return retry.Permanent(err)
		}

		slog.Debug("signaling request failed", "method", method, "url", endpoint, "error", err)
		return err
	})
}

func (c *Client) send(ctx context.Context, method, endpoint string, out any) error {
	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewReader([]byte("{}"))
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &HTTPError{
			Method:     method,
			URL:        endpoint,
			StatusCode: res.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return nil
}
