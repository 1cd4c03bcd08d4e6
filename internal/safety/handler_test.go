package safety

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/eleven-am/spark-backend/internal/auth"
	"github.com/labstack/echo/v4"
)

func newTestHandler(t *testing.T) (*Handler, *Store) {
	store := NewStore(setupTestDB(t))
	if err := store.Migrate(); err != nil {
		t.Fatal(err)
	}
	return NewHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func TestHandler_Block(t *testing.T) {
	h, store := newTestHandler(t)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/blocks", strings.NewReader(`{"user_id":"user_b"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	auth.SetClaimsForTest(c, &auth.Claims{UserID: "user_a"})

	if err := h.Block(c); err != nil {
		t.Fatalf("Block() error = %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}

	blocked, _ := store.IsBlocked(context.Background(), "user_b", "user_a")
	if !blocked {
		t.Error("expected block to apply in both directions")
	}
}

func TestHandler_Block_Validation(t *testing.T) {
	h, _ := newTestHandler(t)
	e := echo.New()

	for _, body := range []string{`{}`, `{"user_id":"user_a"}`} {
		req := httptest.NewRequest(http.MethodPost, "/blocks", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c := e.NewContext(req, httptest.NewRecorder())
		auth.SetClaimsForTest(c, &auth.Claims{UserID: "user_a"})

		err := h.Block(c)
		httpErr, ok := err.(*echo.HTTPError)
		if !ok || httpErr.Code != http.StatusBadRequest {
			t.Errorf("Block(%s) error = %v, want 400", body, err)
		}
	}
}

func TestHandler_Unblock(t *testing.T) {
	h, store := newTestHandler(t)
	e := echo.New()
	_ = store.Block(context.Background(), "user_a", "user_b")

	newCtx := func() echo.Context {
		c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/blocks/user_b", nil), httptest.NewRecorder())
		c.SetParamNames("user_id")
		c.SetParamValues("user_b")
		auth.SetClaimsForTest(c, &auth.Claims{UserID: "user_a"})
		return c
	}

	if err := h.Unblock(newCtx()); err != nil {
		t.Fatalf("Unblock() error = %v", err)
	}

	err := h.Unblock(newCtx())
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("second Unblock() error = %v, want 404", err)
	}
}
