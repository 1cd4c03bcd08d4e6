package pool

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/eleven-am/spark-backend/internal/dto"
	"github.com/eleven-am/spark-backend/internal/shared"
	"github.com/labstack/echo/v4"
)

const listLimit = 50

type Handler struct {
	store  *Store
	grace  time.Duration
	clock  shared.Clock
	logger *slog.Logger
}

func NewHandler(store *Store, grace time.Duration, clock shared.Clock, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		grace:  grace,
		clock:  clock,
		logger: logger.With("handler", "pool"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
}

// List godoc
// @Summary List upcoming pools
// @Description Lists pools that have not ended yet, soonest first, with whether each currently admits users.
// @Tags pools
// @Produce json
// @Success 200 {object} dto.PoolListResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /pools [get]
func (h *Handler) List(c echo.Context) error {
	now := h.clock.Now()
	pools, err := h.store.ListUpcoming(c.Request().Context(), now, listLimit)
	if err != nil {
		h.logger.Error("list pools failed", "error", err)
		return shared.Unavailable("temporarily_unavailable", "please try again in a moment")
	}

	resp := dto.PoolListResponse{Pools: make([]dto.PoolResponse, 0, len(pools))}
	for _, p := range pools {
		resp.Pools = append(resp.Pools, dto.PoolResponse{
			ID:       p.ID,
			Name:     p.Name,
			Status:   string(p.Status),
			StartsAt: p.StartsAt,
			EndsAt:   p.EndsAt,
			Open:     p.IsOpen(now, h.grace),
		})
	}
	return c.JSON(http.StatusOK, resp)
}
