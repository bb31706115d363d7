package app

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/fintly/advisor-backend/internal/handlers"
)

func wireRouter(cfg Config, h Handlers, mw Middleware) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware("advisor-backend"))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	api.Use(mw.Auth.RequireAuth())
	{
		// Sessions
		api.POST("/sessions", h.Session.CreateSession)
		api.GET("/sessions", h.Session.ListSessions)
		api.PATCH("/sessions/:id", h.Session.RenameSession)
		api.DELETE("/sessions/:id", h.Session.DeleteSession)
		api.POST("/sessions/:id/open", h.Session.OpenSession)

		// Chat
		api.POST("/sessions/:id/messages", h.Chat.SendMessage)
		api.GET("/sessions/:id/messages", h.Chat.ListMessages)
		api.POST("/sessions/:id/confirmations/:messageId", h.Chat.ResolveConfirmation)

		// Profile and usage
		api.GET("/profile", h.Profile.GetProfile)
		api.GET("/usage", h.Usage.GetUsage)

		// SSE
		api.GET("/sse/stream", h.SSE.Stream)
	}

	return router
}
