package decision

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eleven-am/spark-backend/internal/auth"
	"github.com/eleven-am/spark-backend/internal/call"
	"github.com/eleven-am/spark-backend/internal/dto"
	"github.com/eleven-am/spark-backend/internal/notify"
	"github.com/labstack/echo/v4"
)

func newTestHandler(f *fixture) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(f.agg, notify.NewStreamer(f.hub, logger, time.Hour), logger)
}

func newCallContext(method, target, body, userID, callID string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(callID)
	if userID != "" {
		auth.SetClaimsForTest(c, &auth.Claims{UserID: userID})
	}
	return c, rec
}

func TestHandler_Submit(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(f)

	c, rec := newCallContext(http.MethodPost, "/calls/x/decision", `{"decision":"spark"}`, "user_a", f.call.ID)
	if err := h.Submit(c); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	var resp dto.SuccessResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success {
		t.Error("expected success")
	}
}

func TestHandler_Submit_Errors(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(f)

	tests := []struct {
		name     string
		body     string
		user     string
		callID   string
		wantCode int
	}{
		{"unauthenticated", `{"decision":"spark"}`, "", f.call.ID, http.StatusUnauthorized},
		{"invalid decision", `{"decision":"maybe"}`, "user_a", f.call.ID, http.StatusBadRequest},
		{"outsider", `{"decision":"spark"}`, "user_c", f.call.ID, http.StatusForbidden},
		{"missing call", `{"decision":"spark"}`, "user_a", "call_missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newCallContext(http.MethodPost, "/calls/x/decision", tt.body, tt.user, tt.callID)
			err := h.Submit(c)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok || httpErr.Code != tt.wantCode {
				t.Errorf("Submit() error = %v, want %d", err, tt.wantCode)
			}
		})
	}
}

func TestHandler_StateDoesNotRevealDecision(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(f)

	c, _ := newCallContext(http.MethodPost, "/calls/x/decision", `{"decision":"pass"}`, "user_a", f.call.ID)
	if err := h.Submit(c); err != nil {
		t.Fatal(err)
	}

	c, rec := newCallContext(http.MethodGet, "/calls/x", "", "user_b", f.call.ID)
	if err := h.State(c); err != nil {
		t.Fatalf("State() error = %v", err)
	}
	body := rec.Body.String()
	if strings.Contains(body, "pass") {
		t.Errorf("state reveals the partner's decision: %s", body)
	}

	var v call.View
	_ = json.Unmarshal(rec.Body.Bytes(), &v)
	if !v.PartnerDecisionSet || v.YourDecisionSet || v.IsMutual != nil {
		t.Errorf("view = %+v", v)
	}
}

func TestHandler_ExitAndJoin(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(f)

	c, rec := newCallContext(http.MethodGet, "/calls/x/join", "", "user_a", f.call.ID)
	if err := h.Join(c); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	var join dto.JoinResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &join)
	if join.Token == "" || join.URL != "wss://media.test" || join.Identity != f.call.ID+":a" {
		t.Errorf("join = %+v", join)
	}

	c, _ = newCallContext(http.MethodPost, "/calls/x/exit", "", "user_a", f.call.ID)
	if err := h.Exit(c); err != nil {
		t.Fatalf("Exit() error = %v", err)
	}

	c, _ = newCallContext(http.MethodGet, "/calls/x/join", "", "user_b", f.call.ID)
	err := h.Join(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Errorf("Join() after exit error = %v, want 409", err)
	}
}

func TestHandler_Connections(t *testing.T) {
	f := newFixture(t)
	h := newTestHandler(f)

	for _, u := range []string{"user_a", "user_b"} {
		c, _ := newCallContext(http.MethodPost, "/calls/x/decision", `{"decision":"spark"}`, u, f.call.ID)
		if err := h.Submit(c); err != nil {
			t.Fatal(err)
		}
	}

	c, rec := newCallContext(http.MethodGet, "/connections", "", "user_b", "")
	if err := h.Connections(c); err != nil {
		t.Fatalf("Connections() error = %v", err)
	}
	var resp dto.ConnectionListResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Connections) != 1 || resp.Connections[0].PeerID != "user_a" {
		t.Errorf("connections = %+v", resp.Connections)
	}
}
