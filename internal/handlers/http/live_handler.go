package http

import (
	"net/http"

	"novaled/internal/core/ports"
	"novaled/internal/core/services"
	"novaled/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
)

// LiveHandler serves the roster to clients that are not holding a
// WebSocket, e.g. on first page load.
type LiveHandler struct {
	lives ports.LiveRepository
}

func NewLiveHandler(lives ports.LiveRepository) *LiveHandler {
	return &LiveHandler{lives: lives}
}

func (h *LiveHandler) RegisterRoutes(active *gin.RouterGroup) {
	active.GET("/lives", h.Roster)
}

func (h *LiveHandler) Roster(c *gin.Context) {
	sessions, err := h.lives.ListLive(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	userID, _ := middleware.UserID(c)
	c.JSON(http.StatusOK, gin.H{"lives": services.RosterFromSessions(sessions, userID)})
}
