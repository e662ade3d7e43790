// Package api serves the HTTP control surface of the session engine.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"focusgate/internal/api/handlers"
	"focusgate/internal/api/middleware"
	"focusgate/internal/core"
)

// RouterConfig holds dependencies for the API router
type RouterConfig struct {
	Engine     core.SessionEngineInterface
	Profiles   handlers.ProfileService
	History    handlers.SessionHistory
	Quota      handlers.Quota
	Reconciler handlers.Reconciler
	Metrics    http.Handler // optional, served at /metrics without auth
	APIKey     string
	Version    string
	Logger     *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(config.Logger))
	router.Use(middleware.Logging(config.Logger))
	router.Use(middleware.NoiseFilter())
	router.Use(middleware.ContentType())

	healthHandler := handlers.NewHealthHandler(config.Version)
	router.GET("/health", healthHandler.GetHealth)
	if config.Metrics != nil {
		router.GET("/metrics", gin.WrapH(config.Metrics))
	}

	v1 := router.Group("/v1")
	v1.Use(middleware.APIKey(config.APIKey))
	{
		profilesHandler := handlers.NewProfilesHandler(config.Profiles, config.History, config.Logger)
		v1.GET("/profiles", profilesHandler.ListProfiles)
		v1.POST("/profiles", profilesHandler.CreateProfile)
		v1.GET("/profiles/:id", profilesHandler.GetProfile)
		v1.PATCH("/profiles/:id", profilesHandler.UpdateProfile)
		v1.DELETE("/profiles/:id", profilesHandler.DeleteProfile)
		v1.GET("/profiles/:id/sessions", profilesHandler.ListProfileSessions)

		sessionHandler := handlers.NewSessionHandler(config.Engine, config.Quota, config.Logger)
		v1.GET("/session", sessionHandler.GetStatus)
		v1.POST("/session/start", sessionHandler.StartSession)
		v1.POST("/session/stop", sessionHandler.StopSession)
		v1.POST("/session/break", sessionHandler.ToggleBreak)
		v1.POST("/session/emergency-unblock", sessionHandler.EmergencyUnblock)
		v1.GET("/quota", sessionHandler.GetQuota)

		if config.Reconciler != nil {
			reconcileHandler := handlers.NewReconcileHandler(config.Reconciler)
			v1.POST("/reconcile", reconcileHandler.Reconcile)
		}
	}

	return router
}
