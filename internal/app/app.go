package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/solvegraph/solvegraph-backend/internal/clients/gemini"
	"github.com/solvegraph/solvegraph-backend/internal/clients/hf"
	"github.com/solvegraph/solvegraph-backend/internal/clients/queue"
	redisclients "github.com/solvegraph/solvegraph-backend/internal/clients/redis"
	"github.com/solvegraph/solvegraph-backend/internal/data/db"
	"github.com/solvegraph/solvegraph-backend/internal/data/graph"
	serverhttp "github.com/solvegraph/solvegraph-backend/internal/http"
	httpH "github.com/solvegraph/solvegraph-backend/internal/http/handlers"
	httpMW "github.com/solvegraph/solvegraph-backend/internal/http/middleware"
	"github.com/solvegraph/solvegraph-backend/internal/observability"
	"github.com/solvegraph/solvegraph-backend/internal/platform/logger"
	"github.com/solvegraph/solvegraph-backend/internal/platform/neo4jdb"
	"github.com/solvegraph/solvegraph-backend/internal/repos"
	"github.com/solvegraph/solvegraph-backend/internal/services"
)

type App struct {
	Log    *logger.Logger
	Cfg    Config
	DB     *gorm.DB
	Server *serverhttp.Server

	graphClient  *neo4jdb.Client
	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg := LoadConfig()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	thePG := pg.DB()

	graphClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init neo4j: %w", err)
	}
	knowledgeStore := graph.NewKnowledgeStore(graphClient, log)
	knowledgeStore.EnsureSchema(ctx, cfg.EmbeddingDimensions)
	chatStore := graph.NewChatStore(graphClient, log)

	conversationCache, err := redisclients.NewConversationCache(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	model, err := gemini.NewClient(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init generative client: %w", err)
	}
	embedder, err := hf.NewEmbedder(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	publisher, err := queue.NewPublisherFromEnv(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init queue publisher: %w", err)
	}
	receiver, err := queue.NewReceiverFromEnv()
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init queue receiver: %w", err)
	}

	userRepo := repos.NewUserRepo(thePG, log)
	problemRepo := repos.NewProblemRepo(thePG, log)

	recordWriter := services.NewRecordWriter(thePG, log, userRepo, problemRepo)
	graphProjector := services.NewGraphProjector(log, embedder, knowledgeStore)
	retriever := services.NewRetrievalService(log, embedder, knowledgeStore)
	analysisService := services.NewAnalysisService(log, model, recordWriter, publisher)
	chatService := services.NewChatService(log, model, conversationCache, chatStore, retriever, cfg.ChatHistoryLength)

	authMiddleware := httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey)

	server := serverhttp.NewServer(serverhttp.RouterConfig{
		ServiceName:    cfg.ServiceName,
		AuthMiddleware: authMiddleware,
		AnalyzeHandler: httpH.NewAnalyzeHandler(analysisService),
		ChatHandler:    httpH.NewChatHandler(chatService),
		ChatsHandler:   httpH.NewChatsHandler(chatService),
		JobsHandler:    httpH.NewJobsHandler(log, receiver, recordWriter, graphProjector),
		HealthHandler:  httpH.NewHealthHandler(),
	})

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           thePG,
		Server:       server,
		graphClient:  graphClient,
		otelShutdown: otelShutdown,
	}, nil
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Server listening", "port", a.Cfg.Port)
	return a.Server.Run(":" + a.Cfg.Port)
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.graphClient != nil {
		if err := a.graphClient.Close(ctx); err != nil {
			a.Log.Warn("Neo4j close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("Otel shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
