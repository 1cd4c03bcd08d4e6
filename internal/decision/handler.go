package decision

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/eleven-am/spark-backend/internal/auth"
	"github.com/eleven-am/spark-backend/internal/call"
	"github.com/eleven-am/spark-backend/internal/dto"
	"github.com/eleven-am/spark-backend/internal/notify"
	"github.com/eleven-am/spark-backend/internal/shared"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	aggregator *Aggregator
	streamer   *notify.Streamer
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator, streamer *notify.Streamer, logger *slog.Logger) *Handler {
	return &Handler{
		aggregator: aggregator,
		streamer:   streamer,
		logger:     logger.With("handler", "decision"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/:id", h.State)
	g.POST("/:id/decision", h.Submit)
	g.POST("/:id/exit", h.Exit)
	g.POST("/:id/report", h.Report)
	g.GET("/:id/join", h.Join)
	g.GET("/:id/events", h.Events)
}

func (h *Handler) RegisterConnectionRoutes(g *echo.Group) {
	g.GET("", h.Connections)
}

// State godoc
// @Summary Read call state
// @Description Returns whether each decision slot is set and, once both are, whether the outcome is mutual. Decision values are never returned.
// @Tags calls
// @Produce json
// @Param id path string true "Call ID"
// @Success 200 {object} call.View
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /calls/{id} [get]
func (h *Handler) State(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}
	callID := c.Param("id")

	v, err := h.aggregator.State(c.Request().Context(), callID, userID)
	if err != nil {
		return h.mapError(err, callID)
	}
	return c.JSON(http.StatusOK, v)
}

// Submit godoc
// @Summary Submit a decision
// @Description Records spark or pass once. Repeating the request is a no-op that still succeeds.
// @Tags calls
// @Accept json
// @Produce json
// @Param id path string true "Call ID"
// @Param request body dto.DecisionRequest true "Decision"
// @Success 200 {object} dto.SuccessResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /calls/{id}/decision [post]
func (h *Handler) Submit(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}
	callID := c.Param("id")

	var req dto.DecisionRequest
	if err := shared.BindAndValidate(c, &req); err != nil {
		return err
	}

	if _, err := h.aggregator.Submit(c.Request().Context(), callID, userID, call.Decision(req.Decision)); err != nil {
		return h.mapError(err, callID)
	}
	return c.JSON(http.StatusOK, dto.SuccessResponse{Success: true})
}

// Exit godoc
// @Summary Leave the call
// @Description Ends the call for both sides. The other participant is not told who left.
// @Tags calls
// @Produce json
// @Param id path string true "Call ID"
// @Success 200 {object} dto.SuccessResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /calls/{id}/exit [post]
func (h *Handler) Exit(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}
	callID := c.Param("id")

	if _, err := h.aggregator.Exit(c.Request().Context(), callID, userID); err != nil {
		return h.mapError(err, callID)
	}
	return c.JSON(http.StatusOK, dto.SuccessResponse{Success: true})
}

// Report godoc
// @Summary Report and leave the call
// @Tags calls
// @Accept json
// @Produce json
// @Param id path string true "Call ID"
// @Param request body dto.ReportRequest false "Reason"
// @Success 200 {object} dto.SuccessResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /calls/{id}/report [post]
func (h *Handler) Report(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}
	callID := c.Param("id")

	var req dto.ReportRequest
	if err := shared.BindAndValidate(c, &req); err != nil {
		return err
	}

	if _, err := h.aggregator.Report(c.Request().Context(), callID, userID, req.Reason); err != nil {
		return h.mapError(err, callID)
	}
	return c.JSON(http.StatusOK, dto.SuccessResponse{Success: true})
}

// Join godoc
// @Summary Get a media token for the call
// @Tags calls
// @Produce json
// @Param id path string true "Call ID"
// @Success 200 {object} dto.JoinResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /calls/{id}/join [get]
func (h *Handler) Join(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}
	callID := c.Param("id")

	grant, err := h.aggregator.Join(c.Request().Context(), callID, userID)
	if err != nil {
		return h.mapError(err, callID)
	}
	return c.JSON(http.StatusOK, dto.JoinResponse{
		Token:    grant.Token,
		URL:      grant.URL,
		Room:     grant.Room,
		Identity: grant.Identity,
	})
}

// Events godoc
// @Summary Stream call state
// @Description WebSocket by default, Server-Sent Events with Accept: text/event-stream. Each message is a full call.View.
// @Tags calls
// @Param id path string true "Call ID"
// @Success 200 {object} call.View
// @Security BearerAuth
// @Router /calls/{id}/events [get]
func (h *Handler) Events(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}
	callID := c.Param("id")

	if _, err := h.aggregator.State(c.Request().Context(), callID, userID); err != nil {
		return h.mapError(err, callID)
	}

	return h.streamer.Serve(c, func(ctx context.Context) (any, error) {
		return h.aggregator.State(ctx, callID, userID)
	}, notify.CallTopic(callID))
}

// Connections godoc
// @Summary List connections
// @Description Lists the people the caller has had a mutual spark with.
// @Tags calls
// @Produce json
// @Success 200 {object} dto.ConnectionListResponse
// @Failure 401 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /connections [get]
func (h *Handler) Connections(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	conns, err := h.aggregator.Connections(c.Request().Context(), userID)
	if err != nil {
		return h.mapError(err, "")
	}

	resp := dto.ConnectionListResponse{Connections: make([]dto.ConnectionResponse, 0, len(conns))}
	for _, conn := range conns {
		resp.Connections = append(resp.Connections, dto.ConnectionResponse{
			ID:        conn.ID,
			CallID:    conn.CallID,
			PeerID:    conn.Peer(userID),
			CreatedAt: conn.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

var callErrors = []shared.Mapping{
	{Target: shared.ErrNotFound, Status: http.StatusNotFound, Code: "call_not_found", Message: "call not found"},
	{Target: shared.ErrNotAParticipant, Status: http.StatusForbidden, Code: "forbidden", Message: "you are not part of this call"},
	{Target: ErrInvalidDecision, Status: http.StatusBadRequest, Code: "invalid_decision", Message: "decision must be spark or pass"},
	{Target: ErrCallEnded, Status: http.StatusConflict, Code: "call_ended", Message: "this call has ended"},
}

func (h *Handler) mapError(err error, callID string) error {
	if httpErr, ok := shared.MapError(err, callErrors...); ok {
		return httpErr
	}
	h.logger.Error("call request failed", "error", err, "call_id", callID)
	return shared.Unavailable("temporarily_unavailable", "please try again in a moment")
}
