package http

import (
	"net/http"

	"novaled/internal/core/services"
	"novaled/internal/infrastructure/middleware"
	"novaled/pkg/errors"

	"github.com/gin-gonic/gin"
)

type ProfileHandler struct {
	accounts *services.AccountService
	feed     *services.FeedService
}

func NewProfileHandler(accounts *services.AccountService, feed *services.FeedService) *ProfileHandler {
	return &ProfileHandler{
		accounts: accounts,
		feed:     feed,
	}
}

// RegisterRoutes expects active to run AuthMiddleware and ActiveUserMiddleware.
func (h *ProfileHandler) RegisterRoutes(active *gin.RouterGroup) {
	profile := active.Group("/profile")
	{
		profile.GET("", h.Get)
		profile.PUT("/username", h.UpdateUsername)
		profile.PUT("/avatar", h.UpdateAvatar)
		profile.PUT("/password", h.ChangePassword)
		profile.GET("/posts", h.Posts)
	}
}

type UpdateUsernameRequest struct {
	Username string `json:"username" binding:"required,max=50"`
}

type UpdateAvatarRequest struct {
	Avatar string `json:"avatar" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required,max=128"`
	NewPassword     string `json:"new_password" binding:"required,max=128"`
	ConfirmPassword string `json:"confirm_password" binding:"required,max=128"`
}

func (h *ProfileHandler) Get(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	fresh, err := h.accounts.Profile(c.Request.Context(), user.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, NewUserResponse(fresh, true))
}

func (h *ProfileHandler) UpdateUsername(c *gin.Context) {
	var req UpdateUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	userID, _ := middleware.UserID(c)
	user, err := h.accounts.UpdateUsername(c.Request.Context(), userID, req.Username)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, NewUserResponse(user, true))
}

func (h *ProfileHandler) UpdateAvatar(c *gin.Context) {
	var req UpdateAvatarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	userID, _ := middleware.UserID(c)
	user, err := h.accounts.UpdateAvatar(c.Request.Context(), userID, req.Avatar)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, NewUserResponse(user, true))
}

func (h *ProfileHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	userID, _ := middleware.UserID(c)
	if err := h.accounts.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProfileHandler) Posts(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	posts, err := h.feed.ListUserPosts(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}
