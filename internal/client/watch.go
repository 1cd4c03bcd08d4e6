package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// WatchCall opens the call's event stream. The returned channel receives a
// signal for every pushed snapshot and is closed when the stream ends.
// Snapshots are not decoded: callers re-read state on each signal.
func (c *Client) WatchCall(ctx context.Context, callID string) (<-chan struct{}, error) {
	return c.watch(ctx, "/calls/"+url.PathEscape(callID)+"/events")
}

// WatchQueue opens the caller's queue event stream for a pool.
func (c *Client) WatchQueue(ctx context.Context, poolID string) (<-chan struct{}, error) {
	return c.watch(ctx, "/pools/"+url.PathEscape(poolID)+"/queue/events")
}

func (c *Client) watch(ctx context.Context, path string) (<-chan struct{}, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL(c.baseURL+path), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
		return nil, err
	}

	signals := make(chan struct{}, 1)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(signals)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			select {
			case signals <- struct{}{}:
			default:
			}
		}
	}()
	return signals, nil
}

func wsURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	}
	return httpURL
}
