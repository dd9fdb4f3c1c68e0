package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/solvegraph/solvegraph-backend/internal/http/handlers"
	httpMW "github.com/solvegraph/solvegraph-backend/internal/http/middleware"
)

type RouterConfig struct {
	ServiceName string

	AuthMiddleware *httpMW.AuthMiddleware

	AnalyzeHandler *httpH.AnalyzeHandler
	ChatHandler    *httpH.ChatHandler
	ChatsHandler   *httpH.ChatsHandler
	JobsHandler    *httpH.JobsHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "solvegraph-backend"
	}
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Queue consumers authenticate via request signature, not a session.
		if cfg.JobsHandler != nil {
			api.POST("/queue/record-writer", cfg.JobsHandler.WriteRecord)
			api.POST("/queue/graph-writer", cfg.JobsHandler.WriteGraph)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.AnalyzeHandler != nil {
			protected.POST("/analyze", cfg.AnalyzeHandler.Analyze)
		}

		if cfg.ChatHandler != nil {
			protected.POST("/chatbot", cfg.ChatHandler.Respond)
		}

		if cfg.ChatsHandler != nil {
			protected.GET("/chats", cfg.ChatsHandler.ListSessions)
			protected.GET("/chats/:chatId", cfg.ChatsHandler.SessionMessages)
			protected.DELETE("/chats/:chatId", cfg.ChatsHandler.DeleteSession)
		}
	}

	return r
}
