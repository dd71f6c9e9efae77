package http

import (
	"net/http"

	"novaled/internal/core/domain"
	"novaled/internal/core/services"
	"novaled/internal/infrastructure/middleware"
	"novaled/pkg/errors"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves owner-only endpoints.
type AdminHandler struct {
	admin  *services.AdminService
	popups *services.PopupService
}

func NewAdminHandler(admin *services.AdminService, popups *services.PopupService) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		popups: popups,
	}
}

// RegisterRoutes mounts the owner console under active. The services check
// the owner role again on every call.
func (h *AdminHandler) RegisterRoutes(active *gin.RouterGroup) {
	admin := active.Group("/admin", middleware.OwnerOnlyMiddleware())
	{
		admin.GET("/stats", h.Stats)
		admin.GET("/users", h.Users)
		admin.GET("/bans", h.BanList)
		admin.PUT("/bans/:uid", h.SetBanned)
		admin.POST("/popup", h.SendPopup)
	}
}

type SetBannedRequest struct {
	Banned *bool `json:"banned" binding:"required"`
}

type PopupRequest struct {
	Message string `json:"message" binding:"required"`
}

func (h *AdminHandler) Stats(c *gin.Context) {
	caller, _ := middleware.UserID(c)
	stats, err := h.admin.Stats(c.Request.Context(), caller)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *AdminHandler) Users(c *gin.Context) {
	caller, _ := middleware.UserID(c)
	users, err := h.admin.ListUsers(c.Request.Context(), caller, c.Query("search"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": newUserResponses(users, true)})
}

func (h *AdminHandler) BanList(c *gin.Context) {
	filter := domain.BanFilter(c.DefaultQuery("filter", string(domain.BanFilterAll)))
	switch filter {
	case domain.BanFilterAll, domain.BanFilterBanned, domain.BanFilterActive:
	default:
		_ = c.Error(errors.NewInvalidInputError("filter must be all, banned or active"))
		return
	}

	caller, _ := middleware.UserID(c)
	users, err := h.admin.BanList(c.Request.Context(), caller, filter, c.Query("search"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": newUserResponses(users, true)})
}

func (h *AdminHandler) SetBanned(c *gin.Context) {
	var req SetBannedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	caller, _ := middleware.UserID(c)
	target := domain.UserID(c.Param("uid"))
	if err := h.admin.SetBanned(c.Request.Context(), caller, target, *req.Banned); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) SendPopup(c *gin.Context) {
	var req PopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	caller, _ := middleware.UserID(c)
	popup, err := h.popups.Send(c.Request.Context(), caller, req.Message)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, popup)
}
