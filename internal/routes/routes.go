// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"device-dispatch/internal/clock"
	"device-dispatch/internal/config"
	"device-dispatch/internal/discovery"
	"device-dispatch/internal/dispatcher"
	"device-dispatch/internal/handler"
	"device-dispatch/internal/history"
	"device-dispatch/internal/middleware"
	"device-dispatch/internal/queue"
	"device-dispatch/internal/serializer"
	"device-dispatch/internal/transport"
	"device-dispatch/internal/utils"
)

// Dependencies are the components the HTTP layer serves
type Dependencies struct {
	Dispatcher *dispatcher.Dispatcher
	Queue      *queue.Queue
	Serializer *serializer.Serializer
	History    *history.History
	Transports *transport.Registry
	Scanners   *discovery.ScannerManager
	Clock      clock.Clock
	Health     *handler.HealthHandler
	WebSocket  *handler.WebSocketHandler
}

// Router holds all dependencies for routing
type Router struct {
	config *config.Config
	logger *zap.Logger
	deps   Dependencies
}

// NewRouter creates a new router instance
func NewRouter(config *config.Config, logger *zap.Logger, deps Dependencies) *Router {
	return &Router{
		config: config,
		logger: logger,
		deps:   deps,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	// Set Gin mode
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	commandHandler := handler.NewCommandHandler(
		r.deps.Dispatcher,
		r.deps.Queue,
		r.deps.Serializer,
		r.deps.Transports,
		r.deps.Clock,
		r.logger,
	)
	historyHandler := handler.NewHistoryHandler(r.deps.History, r.logger)
	familyHandler := handler.NewFamilyHandler(r.deps.Serializer, r.logger)
	deviceHandler := handler.NewDeviceHandler(r.deps.Transports, r.logger)
	discoveryHandler := handler.NewDiscoveryHandler(r.deps.Scanners, r.logger)

	// Health check routes
	r.deps.Health.RegisterRoutes(router)

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	commandHandler.RegisterRoutes(apiV1)
	historyHandler.RegisterRoutes(apiV1)
	familyHandler.RegisterRoutes(apiV1)
	deviceHandler.RegisterRoutes(apiV1)
	discoveryHandler.RegisterRoutes(apiV1)

	// WebSocket routes
	r.deps.WebSocket.RegisterRoutes(router.Group("/ws"))

	// Prometheus scrape endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.logger.Info("All routes configured successfully")
}
