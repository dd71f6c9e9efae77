package http

import (
	"net/http"

	"novaled/internal/core/domain"
	"novaled/internal/core/services"
	"novaled/internal/infrastructure/middleware"
	"novaled/pkg/errors"

	"github.com/gin-gonic/gin"
)

// PostHandler serves the feed.
type PostHandler struct {
	feed *services.FeedService
}

func NewPostHandler(feed *services.FeedService) *PostHandler {
	return &PostHandler{feed: feed}
}

func (h *PostHandler) RegisterRoutes(active *gin.RouterGroup) {
	active.GET("/posts", h.List)
	active.POST("/posts", h.Create)
}

type CreatePostRequest struct {
	Caption string           `json:"caption" binding:"max=2200"`
	Type    domain.MediaType `json:"type" binding:"required,oneof=image video"`
	Media   string           `json:"media" binding:"required"`
}

// List returns the feed, newest first.
func (h *PostHandler) List(c *gin.Context) {
	posts, err := h.feed.ListFeed(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (h *PostHandler) Create(c *gin.Context) {
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	userID, _ := middleware.UserID(c)
	post, err := h.feed.CreatePost(c.Request.Context(), userID, req.Caption, req.Type, req.Media)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, post)
}
