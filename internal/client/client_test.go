package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eleven-am/spark-backend/internal/call"
	"github.com/eleven-am/spark-backend/internal/callsession"
	"github.com/eleven-am/spark-backend/internal/dto"
	"github.com/eleven-am/spark-backend/internal/notify"
	"github.com/eleven-am/spark-backend/internal/shared"
	"github.com/labstack/echo/v4"
)

var (
	_ callsession.API     = (*Client)(nil)
	_ callsession.Watcher = (*Client)(nil)
)

func newTestServer(t *testing.T, register func(e *echo.Echo)) *Client {
	t.Helper()
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "Bearer tok" {
				return shared.Unauthorized("unauthorized", "authorization required")
			}
			return next(c)
		}
	})
	register(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/v1", "tok")
}

func TestClient_Pair(t *testing.T) {
	c := newTestServer(t, func(e *echo.Echo) {
		e.POST("/v1/pools/:id/pair", func(ctx echo.Context) error {
			return ctx.JSON(http.StatusOK, dto.PairResponse{Status: "matched", CallID: "call_1", ChannelToken: "room_" + ctx.Param("id")})
		})
	})

	resp, err := c.Pair(context.Background(), "pool_1")
	if err != nil {
		t.Fatalf("Pair() error = %v", err)
	}
	if resp.Status != "matched" || resp.CallID != "call_1" || resp.ChannelToken != "room_pool_1" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestClient_SubmitDecision(t *testing.T) {
	var got dto.DecisionRequest
	c := newTestServer(t, func(e *echo.Echo) {
		e.POST("/v1/calls/:id/decision", func(ctx echo.Context) error {
			if err := ctx.Bind(&got); err != nil {
				return err
			}
			return ctx.JSON(http.StatusOK, dto.SuccessResponse{Success: true})
		})
	})

	if err := c.SubmitDecision(context.Background(), "call_1", call.DecisionSpark); err != nil {
		t.Fatalf("SubmitDecision() error = %v", err)
	}
	if got.Decision != "spark" {
		t.Errorf("expected spark, got %q", got.Decision)
	}
}

func TestClient_Errors(t *testing.T) {
	c := newTestServer(t, func(e *echo.Echo) {
		e.POST("/v1/pools/:id/admit", func(echo.Context) error {
			return shared.Conflict("pool_not_open", "pool is not admitting users right now")
		})
		e.POST("/v1/pools/:id/pair", func(echo.Context) error {
			return shared.Unavailable("temporarily_unavailable", "try again shortly")
		})
		e.GET("/v1/calls/:id", func(echo.Context) error {
			return echo.NewHTTPError(http.StatusForbidden, "forbidden")
		})
	})
	ctx := context.Background()

	tests := []struct {
		name      string
		do        func() error
		status    int
		code      string
		temporary bool
	}{
		{"pool not open", func() error { _, err := c.Admit(ctx, "p"); return err }, http.StatusConflict, "pool_not_open", false},
		{"unavailable", func() error { _, err := c.Pair(ctx, "p"); return err }, http.StatusServiceUnavailable, "temporarily_unavailable", true},
		{"plain echo error", func() error { _, err := c.CallState(ctx, "x"); return err }, http.StatusForbidden, "", false},
		{"no route", func() error { return c.Block(ctx, "u") }, http.StatusNotFound, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var apiErr *Error
			if err := tt.do(); !errors.As(err, &apiErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if apiErr.Status != tt.status || apiErr.Code != tt.code {
				t.Errorf("expected %d %q, got %d %q", tt.status, tt.code, apiErr.Status, apiErr.Code)
			}
			if apiErr.Temporary() != tt.temporary {
				t.Errorf("expected temporary=%v", tt.temporary)
			}
			if apiErr.Message == "" {
				t.Error("expected a message")
			}
		})
	}
}

func TestClient_Unauthorized(t *testing.T) {
	c := newTestServer(t, func(e *echo.Echo) {})
	c.token = "wrong"

	_, err := c.Connections(context.Background())
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestClient_WatchCall(t *testing.T) {
	hub := notify.NewHub()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	streamer := notify.NewStreamer(hub, logger, time.Hour)

	c := newTestServer(t, func(e *echo.Echo) {
		e.GET("/v1/calls/:id/events", func(ctx echo.Context) error {
			id := ctx.Param("id")
			return streamer.Serve(ctx, func(context.Context) (any, error) {
				return map[string]string{"call_id": id}, nil
			}, notify.CallTopic(id))
		})
	})

	ctx, cancel := context.WithCancel(context.Background())
	signals, err := c.WatchCall(ctx, "call_1")
	if err != nil {
		t.Fatalf("WatchCall() error = %v", err)
	}

	// initial snapshot
	waitSignal(t, signals)

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := hub.Publish(context.Background(), notify.CallTopic("call_1")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	waitSignal(t, signals)

	cancel()
	select {
	case _, ok := <-signals:
		for ok {
			_, ok = <-signals
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected signals to close after cancel")
	}
}

func waitSignal(t *testing.T, signals <-chan struct{}) {
	t.Helper()
	select {
	case _, ok := <-signals:
		if !ok {
			t.Fatal("signals closed early")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
}

func TestWSURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:8080/v1/x": "ws://localhost:8080/v1/x",
		"https://api.example.com/v1": "wss://api.example.com/v1",
		"ws://already":               "ws://already",
	}
	for in, want := range tests {
		if got := wsURL(in); got != want {
			t.Errorf("wsURL(%q) = %q, want %q", in, got, want)
		}
	}
}
