package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = pongWait / 3
	DefaultKeepAlive  = 15 * time.Second
	maxClientReadSize = 1024
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StateFunc reads the current state to push to the client.
type StateFunc func(ctx context.Context) (any, error)

// Streamer pushes fresh state to a client whenever one of its topics is
// notified. Every push is a full re-read; notifications only trigger it.
type Streamer struct {
	notifier  Notifier
	logger    *slog.Logger
	keepAlive time.Duration
}

func NewStreamer(notifier Notifier, logger *slog.Logger, keepAlive time.Duration) *Streamer {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &Streamer{
		notifier:  notifier,
		logger:    logger.With("component", "streamer"),
		keepAlive: keepAlive,
	}
}

// Serve picks SSE when the client asks for text/event-stream and WebSocket
// otherwise.
func (s *Streamer) Serve(c echo.Context, state StateFunc, topics ...Topic) error {
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// subscribe before the first read so no change slips in between
	sub, err := s.notifier.Subscribe(ctx, topics...)
	if err != nil {
		s.logger.Error("subscribe failed", "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "temporarily unavailable")
	}
	defer sub.Close()

	if strings.Contains(c.Request().Header.Get("Accept"), "text/event-stream") {
		return s.serveSSE(ctx, c, sub, state)
	}
	return s.serveWebSocket(ctx, cancel, c, sub, state)
}

func (s *Streamer) serveSSE(ctx context.Context, c echo.Context, sub *Subscription, state StateFunc) error {
	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	write := func(v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return err
		}
		w.Flush()
		return nil
	}

	return s.loop(ctx, sub, state, write)
}

func (s *Streamer) serveWebSocket(ctx context.Context, cancel context.CancelFunc, c echo.Context, sub *Subscription, state StateFunc) error {
	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return nil
	}
	defer ws.Close()

	// drain client frames so control messages are processed and a closed
	// socket ends the stream
	ws.SetReadLimit(maxClientReadSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	lastPing := time.Now()
	write := func(v any) error {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if time.Since(lastPing) > pingPeriod {
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
			lastPing = time.Now()
		}
		return ws.WriteJSON(v)
	}

	err = s.loop(ctx, sub, state, write)
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return err
}

func (s *Streamer) loop(ctx context.Context, sub *Subscription, state StateFunc, write func(any) error) error {
	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	push := func() error {
		v, err := state(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("state read failed", "error", err)
			return write(map[string]string{"error": "temporarily_unavailable"})
		}
		return write(v)
	}

	if err := push(); err != nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.Done():
			return nil
		case <-sub.C():
		case <-ticker.C:
		}
		if err := push(); err != nil {
			s.logger.Debug("stream closed", "error", err)
			return nil
		}
	}
}
