package http

import (
	"net/http"
	"time"

	"novaled/internal/core/ports"
	"novaled/internal/core/services"
	"novaled/internal/infrastructure/middleware"
	"novaled/internal/infrastructure/monitoring"
	"novaled/pkg/config"
	"novaled/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// userCacheTTL bounds how long a ban can lag behind on REST calls.
const userCacheTTL = 5 * time.Second

// RouterDeps are the services the HTTP router needs.
type RouterDeps struct {
	Config   *config.Config
	Clock    clockwork.Clock
	Logger   *zap.SugaredLogger
	Auth     services.AuthService
	Users    ports.UserRepository
	Lives    ports.LiveRepository
	Accounts *services.AccountService
	Feed     *services.FeedService
	Admin    *services.AdminService
	Popups   *services.PopupService
	Health   *monitoring.HealthChecker
	// Gatherer backs /metrics when monitoring is enabled. Nil uses the
	// default registry.
	Gatherer prometheus.Gatherer
}

// NewRouter builds the REST API. Extra routes such as the WebSocket
// endpoint can be added to the returned engine.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(deps.Logger),
		middleware.RequestLoggerMiddleware(logger.NewContextLogger(deps.Logger), deps.Clock),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(deps.Logger),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": deps.Clock.Now().Unix(),
		})
	})
	router.GET("/ready", func(c *gin.Context) {
		status := deps.Health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})
	if deps.Config.Monitoring.PrometheusEnabled {
		gatherer := deps.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1", middleware.NewHTTPRateLimitMiddleware(deps.Config))
	authed := api.Group("", middleware.AuthMiddleware(deps.Auth))
	active := authed.Group("", middleware.ActiveUserMiddleware(deps.Users, userCacheTTL, deps.Clock))

	NewAuthHandler(deps.Accounts).RegisterRoutes(api, authed)
	NewProfileHandler(deps.Accounts, deps.Feed).RegisterRoutes(active)
	NewPostHandler(deps.Feed).RegisterRoutes(active)
	NewLiveHandler(deps.Lives).RegisterRoutes(active)
	NewAdminHandler(deps.Admin, deps.Popups).RegisterRoutes(active)

	return router
}
