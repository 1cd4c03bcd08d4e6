package pairing

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/eleven-am/spark-backend/internal/auth"
	"github.com/eleven-am/spark-backend/internal/dto"
	"github.com/eleven-am/spark-backend/internal/notify"
	"github.com/eleven-am/spark-backend/internal/queue"
	"github.com/eleven-am/spark-backend/internal/shared"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	claimer  *Claimer
	streamer *notify.Streamer
	limiter  echo.MiddlewareFunc
	logger   *slog.Logger
}

func NewHandler(claimer *Claimer, streamer *notify.Streamer, limits RateLimiterConfig, logger *slog.Logger) *Handler {
	return &Handler{
		claimer:  claimer,
		streamer: streamer,
		limiter:  RateLimiter(limits),
		logger:   logger.With("handler", "pairing"),
	}
}

// RegisterRoutes expects a group rooted at a single pool, e.g. /pools/:id.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/admit", h.Admit, h.limiter)
	g.POST("/pair", h.Pair, h.limiter)
	g.GET("/queue", h.Status)
	g.DELETE("/queue", h.Leave)
	g.GET("/queue/events", h.Events)
}

// Admit godoc
// @Summary Join a pool's queue
// @Description Adds the caller to the pool's admission queue. Re-admitting is idempotent and keeps the original place in line.
// @Tags pairing
// @Produce json
// @Param id path string true "Pool ID"
// @Success 200 {object} dto.AdmitResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /pools/{id}/admit [post]
func (h *Handler) Admit(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}
	poolID := c.Param("id")

	entry, err := h.claimer.Admit(c.Request().Context(), userID, poolID)
	if err != nil {
		return h.mapError(err, poolID)
	}

	return c.JSON(http.StatusOK, dto.AdmitResponse{
		PoolID:   entry.PoolID,
		Status:   string(entry.Status),
		JoinedAt: entry.JoinedAt,
	})
}

// Pair godoc
// @Summary Try to pair
// @Description Admits the caller and makes one pairing attempt. Returns matched with the call, or queued when no partner was available.
// @Tags pairing
// @Produce json
// @Param id path string true "Pool ID"
// @Success 200 {object} dto.PairResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /pools/{id}/pair [post]
func (h *Handler) Pair(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}
	poolID := c.Param("id")

	res, err := h.claimer.TryPair(c.Request().Context(), userID, poolID)
	if err != nil {
		return h.mapError(err, poolID)
	}

	return c.JSON(http.StatusOK, dto.PairResponse{
		Status:       string(res.Outcome),
		CallID:       res.CallID,
		ChannelToken: res.ChannelToken,
	})
}

// Status godoc
// @Summary Queue status
// @Tags pairing
// @Produce json
// @Param id path string true "Pool ID"
// @Success 200 {object} dto.QueueStatusResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /pools/{id}/queue [get]
func (h *Handler) Status(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}
	poolID := c.Param("id")

	st, err := h.claimer.Status(c.Request().Context(), userID, poolID)
	if err != nil {
		return h.mapError(err, poolID)
	}
	return c.JSON(http.StatusOK, toQueueStatus(st))
}

// Leave godoc
// @Summary Leave the queue
// @Tags pairing
// @Param id path string true "Pool ID"
// @Success 204
// @Failure 401 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /pools/{id}/queue [delete]
func (h *Handler) Leave(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}
	poolID := c.Param("id")

	if err := h.claimer.Leave(c.Request().Context(), userID, poolID); err != nil {
		return h.mapError(err, poolID)
	}
	return c.NoContent(http.StatusNoContent)
}

// Events godoc
// @Summary Stream queue status
// @Description WebSocket by default, Server-Sent Events with Accept: text/event-stream. Each message is a full QueueStatusResponse.
// @Tags pairing
// @Param id path string true "Pool ID"
// @Success 200 {object} dto.QueueStatusResponse
// @Security BearerAuth
// @Router /pools/{id}/queue/events [get]
func (h *Handler) Events(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}
	poolID := c.Param("id")
	ctx := c.Request().Context()

	if _, err := h.claimer.Status(ctx, userID, poolID); err != nil {
		return h.mapError(err, poolID)
	}

	return h.streamer.Serve(c, func(ctx context.Context) (any, error) {
		st, err := h.claimer.Status(ctx, userID, poolID)
		if err != nil {
			return nil, err
		}
		return toQueueStatus(st), nil
	}, notify.EntryTopic(poolID, userID))
}

func toQueueStatus(st *QueueStatus) dto.QueueStatusResponse {
	return dto.QueueStatusResponse{
		PoolID:   st.Entry.PoolID,
		Status:   string(st.Entry.Status),
		JoinedAt: st.Entry.JoinedAt,
		CallID:   matchedCallID(st.Entry),
		Waiting:  st.Waiting,
	}
}

func matchedCallID(e *queue.Entry) string {
	if e.Status == queue.StatusMatched {
		return e.CallID
	}
	return ""
}

var pairingErrors = []shared.Mapping{
	{Target: shared.ErrPoolNotOpen, Status: http.StatusConflict, Code: "pool_not_open", Message: "this pool is not open right now, please try again later"},
	{Target: shared.ErrNotEligible, Status: http.StatusForbidden, Code: "not_eligible", Message: "you cannot join this pool right now"},
	{Target: shared.ErrNotFound, Status: http.StatusNotFound, Code: "not_queued", Message: "you are not in this pool's queue"},
}

func (h *Handler) mapError(err error, poolID string) error {
	if httpErr, ok := shared.MapError(err, pairingErrors...); ok {
		return httpErr
	}
	h.logger.Error("pairing request failed", "error", err, "pool_id", poolID)
	return shared.Unavailable("temporarily_unavailable", "please try again in a moment")
}
