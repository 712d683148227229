package handlers

import (
	"time"

	"Guardline/internal/dispatch"
	"Guardline/pkg/cache"
	"Guardline/pkg/config"
	"Guardline/pkg/i18n"
	"Guardline/pkg/metrics"
	"Guardline/pkg/middleware"
	"Guardline/pkg/realtime"
	"Guardline/pkg/search"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Deps struct {
	DB       *gorm.DB
	Engine   *dispatch.Engine
	Assigner *dispatch.Assigner
	Hub      *realtime.Hub
	// Index may be nil when search is disabled.
	Index   search.Engine
	Metrics *metrics.Metrics
	// Cache holds idempotency keys.
	Cache   cache.Cache
	Limiter *middleware.RateLimiter
	// Translator may be nil; requests then carry no language.
	Translator *i18n.Translator
}

type Handlers struct {
	db       *gorm.DB
	engine   *dispatch.Engine
	assigner *dispatch.Assigner
	hub      *realtime.Hub
	index    search.Engine
	metrics  *metrics.Metrics
	cache    cache.Cache
	limiter  *middleware.RateLimiter
	tr       *i18n.Translator
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		db:       d.DB,
		engine:   d.Engine,
		assigner: d.Assigner,
		hub:      d.Hub,
		index:    d.Index,
		metrics:  d.Metrics,
		cache:    d.Cache,
		limiter:  d.Limiter,
		tr:       d.Translator,
	}
}

func (h *Handlers) Register(engine *gin.Engine) {
	engine.Use(middleware.AccessLog())
	if h.metrics != nil {
		engine.Use(h.metrics.Middleware())
		engine.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	prefix := "/api/v1"
	if config.GlobalConfig != nil && config.GlobalConfig.APIPrefix != "" {
		prefix = config.GlobalConfig.APIPrefix
	}
	r := engine.Group(prefix)
	if h.limiter != nil {
		r.Use(h.limiter.Middleware())
	}
	if h.tr != nil {
		r.Use(middleware.Language(h.tr))
	}

	// Register System Module Routes
	h.registerSystemRoutes(r)

	// Register Business Module Routes
	h.registerEmergencyRoutes(r)
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("system")
	{
		system.GET("/health", h.HealthCheck)
	}
}

func (h *Handlers) registerEmergencyRoutes(r *gin.RouterGroup) {
	emergency := r.Group("emergency")

	requests := emergency.Group("requests")
	{
		requests.POST("", middleware.IdempotencyMiddleware(h.cache, middleware.IdempotencyConfig{
			TTL:    10 * time.Minute,
			Prefix: "idem:emergency:",
		}), h.handleSubmit)

		requests.GET("", h.handleListRequests)

		requests.GET("/search", h.handleSearchRequests)

		requests.GET("/:id", h.handleGetRequest)

		requests.GET("/:id/history", h.handleRequestHistory)

		requests.PUT("/:id/status", h.handleUpdateStatus)

		// allocation
		requests.POST("/:id/allocate/team", h.handleAllocateTeam)

		requests.POST("/:id/allocate/provider", h.handleAllocateProvider)

		requests.POST("/:id/assign-nearest", h.handleAssignNearest)

		requests.POST("/:id/handle-call", h.handleCallService)

		requests.POST("/:id/reassign", h.handleReassign)

		// field agents
		requests.POST("/:id/accept", h.handleAccept)

		requests.POST("/:id/reject", h.handleReject)

		requests.POST("/:id/location", h.handleAgentLocation)

		requests.POST("/:id/arrived", h.handleArrived)

		requests.POST("/:id/complete", h.handleComplete)

		// realtime
		requests.GET("/:id/stream", h.handleRequestStream)

		requests.GET("/:id/ws", h.handleRequestWS)
	}

	emergency.GET("/teams/nearest", h.handleNearestTeam)

	emergency.GET("/dashboard/stream", h.handleDashboardStream)
}
