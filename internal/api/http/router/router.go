package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dtroode/audience-server/internal/api/http/handler"
	"github.com/dtroode/audience-server/internal/api/http/middleware"
	"github.com/dtroode/audience-server/internal/logger"
	"github.com/dtroode/audience-server/internal/model"
)

// Router wires the audience HTTP API onto a gin engine.
type Router struct {
	handler        *handler.Handler
	tokenManager   model.TokenManager
	contextManager model.ContextManager
	logger         *logger.Logger
	authEnabled    bool
}

// New creates a Router. When authEnabled is false every route is public
// and tokenManager may be nil.
func New(
	handler *handler.Handler,
	tokenManager model.TokenManager,
	contextManager model.ContextManager,
	logger *logger.Logger,
	authEnabled bool,
) *Router {
	return &Router{
		handler:        handler,
		tokenManager:   tokenManager,
		contextManager: contextManager,
		logger:         logger,
		authEnabled:    authEnabled,
	}
}

// Register builds the engine with logging, metrics and recovery middleware.
// Health, readiness and metrics stay public when authentication is on.
func (r *Router) Register() *gin.Engine {
	logging := middleware.NewLogging(r.logger)

	engine := gin.New()
	engine.Use(gin.Recovery(), logging.HandleHTTP, middleware.Metrics)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	api.GET("/health", r.handler.Health)
	api.GET("/ready", r.handler.Ready)

	protected := api.Group("")
	if r.authEnabled {
		authenticate := middleware.NewAuthenticate(r.tokenManager, r.contextManager, r.logger)
		protected.Use(authenticate.HandleHTTP)
	}
	protected.POST("/ingest", r.handler.Ingest)
	protected.POST("/upload", r.handler.Upload)
	protected.GET("/user", r.handler.GetUser)
	protected.GET("/cohort/user", r.handler.QueryCohorts)

	return engine
}
