package client

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

	"github.com/eleven-am/spark-backend/internal/call"
	"github.com/eleven-am/spark-backend/internal/dto"
	"github.com/gorilla/websocket"
)

const defaultTimeout = 15 * time.Second

// Error is a non-2xx response from the API.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *Error) Temporary() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	dialer  *websocket.Dialer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// New returns a client for the API rooted at baseURL (for example
// http://localhost:8080/v1) acting as the bearer of token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		dialer:  websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Pools(ctx context.Context) ([]dto.PoolResponse, error) {
	var resp dto.PoolListResponse
	if err := c.do(ctx, http.MethodGet, "/pools", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Pools, nil
}

func (c *Client) Admit(ctx context.Context, poolID string) (*dto.AdmitResponse, error) {
	var resp dto.AdmitResponse
	if err := c.do(ctx, http.MethodPost, "/pools/"+url.PathEscape(poolID)+"/admit", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Pair(ctx context.Context, poolID string) (*dto.PairResponse, error) {
	var resp dto.PairResponse
	if err := c.do(ctx, http.MethodPost, "/pools/"+url.PathEscape(poolID)+"/pair", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) QueueStatus(ctx context.Context, poolID string) (*dto.QueueStatusResponse, error) {
	var resp dto.QueueStatusResponse
	if err := c.do(ctx, http.MethodGet, "/pools/"+url.PathEscape(poolID)+"/queue", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) LeaveQueue(ctx context.Context, poolID string) error {
	return c.do(ctx, http.MethodDelete, "/pools/"+url.PathEscape(poolID)+"/queue", nil, nil)
}

func (c *Client) CallState(ctx context.Context, callID string) (*call.View, error) {
	var v call.View
	if err := c.do(ctx, http.MethodGet, "/calls/"+url.PathEscape(callID), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) SubmitDecision(ctx context.Context, callID string, d call.Decision) error {
	body := dto.DecisionRequest{Decision: string(d)}
	return c.do(ctx, http.MethodPost, "/calls/"+url.PathEscape(callID)+"/decision", body, nil)
}

func (c *Client) ExitCall(ctx context.Context, callID string) error {
	return c.do(ctx, http.MethodPost, "/calls/"+url.PathEscape(callID)+"/exit", nil, nil)
}

func (c *Client) Report(ctx context.Context, callID, reason string) error {
	body := dto.ReportRequest{Reason: reason}
	return c.do(ctx, http.MethodPost, "/calls/"+url.PathEscape(callID)+"/report", body, nil)
}

func (c *Client) Join(ctx context.Context, callID string) (*dto.JoinResponse, error) {
	var resp dto.JoinResponse
	if err := c.do(ctx, http.MethodGet, "/calls/"+url.PathEscape(callID)+"/join", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Connections(ctx context.Context) ([]dto.ConnectionResponse, error) {
	var resp dto.ConnectionListResponse
	if err := c.do(ctx, http.MethodGet, "/connections", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Connections, nil
}

func (c *Client) Block(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/blocks", dto.BlockRequest{UserID: userID}, nil)
}

func (c *Client) Unblock(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/blocks/"+url.PathEscape(userID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body dto.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
