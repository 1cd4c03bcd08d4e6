package bootstrap

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/eleven-am/spark-backend/internal/health"
	"github.com/eleven-am/spark-backend/internal/shared"
	"github.com/labstack/echo/v4"
)

func newTestServer() *echo.Echo {
	cfg := &Config{CORSAllowOrigins: []string{"*"}, BodyLimit: "1K"}
	return NewEchoServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestErrorHandler(t *testing.T) {
	e := newTestServer()
	e.GET("/api", func(echo.Context) error { return shared.Conflict("pool_not_open", "pool is closed") })
	e.GET("/plain", func(echo.Context) error { return echo.NewHTTPError(http.StatusForbidden, "nope") })
	e.GET("/boom", func(echo.Context) error { return errors.New("db exploded") })
	e.POST("/big", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		status  int
		code    string
		message string
	}{
		{"api error passes through", http.MethodGet, "/api", "", http.StatusConflict, "pool_not_open", "pool is closed"},
		{"plain echo error gets a code", http.MethodGet, "/plain", "", http.StatusForbidden, "forbidden", "nope"},
		{"unknown error is hidden", http.MethodGet, "/boom", "", http.StatusInternalServerError, "internal_error", "something went wrong"},
		{"no route", http.MethodGet, "/missing", "", http.StatusNotFound, "not_found", ""},
		{"body limit", http.MethodPost, "/big", strings.Repeat("x", 2048), http.StatusRequestEntityTooLarge, "request_too_large", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}
			var body shared.APIError
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode body %q: %v", rec.Body.String(), err)
			}
			if body.Code != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, body.Code)
			}
			if tt.message != "" && body.Message != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, body.Message)
			}
			if strings.Contains(rec.Body.String(), "exploded") {
				t.Error("internal error leaked to the client")
			}
		})
	}
}

func TestNewEchoServer_RequestID(t *testing.T) {
	e := newTestServer()
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("expected a request id header")
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("CORS_ALLOW_ORIGINS", " https://a.example , ,https://b.example")
	got := getEnvList("CORS_ALLOW_ORIGINS", []string{"*"})
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("unexpected origins: %v", got)
	}

	t.Setenv("CORS_ALLOW_ORIGINS", " , ")
	if got := getEnvList("CORS_ALLOW_ORIGINS", []string{"*"}); len(got) != 1 || got[0] != "*" {
		t.Errorf("expected default, got %v", got)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	e := newTestServer()
	h := health.NewHandler(health.Deps{})
	RegisterHealthRoutes(e, h)
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e.GET("/fail", func(echo.Context) error { return shared.Unavailable("temporarily_unavailable", "later") })

	for _, path := range []string{"/ok", "/fail", "/health"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if path == "/fail" && rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503 from /fail, got %d", rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var resp health.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode readiness: %v", err)
	}
	if resp.Stats.Requests.TotalRequests != 2 || resp.Stats.Requests.FailedRequests != 1 {
		t.Errorf("unexpected request stats: %+v", resp.Stats.Requests)
	}
}
