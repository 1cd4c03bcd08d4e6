package safety

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/eleven-am/spark-backend/internal/auth"
	"github.com/eleven-am/spark-backend/internal/dto"
	"github.com/eleven-am/spark-backend/internal/shared"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger.With("handler", "safety"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Block)
	g.DELETE("/:user_id", h.Unblock)
}

// Block godoc
// @Summary Block a user
// @Description The two users will never be paired again, in either direction.
// @Tags safety
// @Accept json
// @Param request body dto.BlockRequest true "User to block"
// @Success 204
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /blocks [post]
func (h *Handler) Block(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	var req dto.BlockRequest
	if err := shared.BindAndValidate(c, &req); err != nil {
		return err
	}
	if req.UserID == userID {
		return shared.BadRequest("invalid_request", "cannot block yourself")
	}

	if err := h.store.Block(c.Request().Context(), userID, req.UserID); err != nil {
		h.logger.Error("block failed", "error", err, "user_id", userID)
		return shared.Unavailable("temporarily_unavailable", "please try again in a moment")
	}
	return c.NoContent(http.StatusNoContent)
}

// Unblock godoc
// @Summary Remove a block
// @Tags safety
// @Param user_id path string true "Blocked user ID"
// @Success 204
// @Failure 401 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Security BearerAuth
// @Router /blocks/{user_id} [delete]
func (h *Handler) Unblock(c echo.Context) error {
	userID, err := auth.RequireAuth(c)
	if err != nil {
		return err
	}

	err = h.store.Unblock(c.Request().Context(), userID, c.Param("user_id"))
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("not_found", "block not found")
	}
	if err != nil {
		h.logger.Error("unblock failed", "error", err, "user_id", userID)
		return shared.Unavailable("temporarily_unavailable", "please try again in a moment")
	}
	return c.NoContent(http.StatusNoContent)
}
