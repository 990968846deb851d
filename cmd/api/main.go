package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/docchat/backend/internal/api/handlers"
	"github.com/docchat/backend/internal/cache/redis"
	"github.com/docchat/backend/internal/chat"
	"github.com/docchat/backend/internal/docloader"
	"github.com/docchat/backend/internal/documents"
	"github.com/docchat/backend/internal/events"
	"github.com/docchat/backend/internal/ingestion"
	"github.com/docchat/backend/internal/llm"
	"github.com/docchat/backend/internal/metrics"
	"github.com/docchat/backend/internal/middleware/auth"
	"github.com/docchat/backend/internal/middleware/ratelimit"
	"github.com/docchat/backend/internal/middleware/security"
	"github.com/docchat/backend/internal/objectstore"
	"github.com/docchat/backend/internal/quota"
	"github.com/docchat/backend/internal/storage/sqlite"
	"github.com/docchat/backend/internal/vector/milvus"
	"github.com/docchat/backend/pkg/config"
	appLogger "github.com/docchat/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting DocChat API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	milvusClient, err := milvus.NewClient(
		context.Background(),
		cfg.Milvus.Endpoint,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	err = milvusClient.EnsureCollection(context.Background())
	if err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	// The embedding cache is optional; the engine embeds every query fresh
	// when it is absent.
	var embeddingCache chat.EmbeddingCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, continuing without embedding cache", zap.Error(err))
		} else {
			defer redisClient.Close()
			embeddingCache = redisClient
		}
	}

	llmClient := llm.NewClient(
		cfg.LLM.BaseURL,
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	objects, err := objectstore.NewDiskStore(cfg.Storage.ObjectDir)
	if err != nil {
		appLogger.Fatal("Failed to initialize object storage", zap.Error(err))
	}

	hub := events.NewHub()
	chunker := ingestion.NewChunker(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)
	loader := docloader.New()

	pipeline := ingestion.NewPipeline(sqliteClient, objects, loader, llmClient, milvusClient, chunker, hub)

	quotaManager := quota.NewManager(sqliteClient, quota.Limits{
		FreeQuestionLimit: cfg.Quota.FreeQuestionLimit,
		ProQuestionLimit:  cfg.Quota.ProQuestionLimit,
		FreeDocumentLimit: cfg.Quota.FreeDocumentLimit,
		ProDocumentLimit:  cfg.Quota.ProDocumentLimit,
	})

	engine := chat.NewEngine(sqliteClient, quotaManager, pipeline, milvusClient, llmClient, llmClient, embeddingCache, chat.Config{
		TopK:              cfg.Chat.TopK,
		ContextChars:      cfg.Chat.ContextChars,
		HistoryLoad:       cfg.Chat.HistoryLoad,
		HistoryKeep:       cfg.Chat.HistoryKeep,
		GenerationTimeout: time.Duration(cfg.Chat.GenerationTimeout) * time.Second,
	})

	documentService := documents.NewService(sqliteClient, objects, milvusClient, quotaManager, hub)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Server.Environment == "development",
	}))

	chatHandler := handlers.NewChatHandler(engine)
	documentHandler := handlers.NewDocumentHandler(documentService, pipeline)
	webhookHandler := handlers.NewWebhookHandler(sqliteClient, hub, cfg.Billing.WebhookSecret)
	wsHandler := handlers.NewWebSocketHandler(hub)

	app.Get("/metrics", metrics.Handler())

	app.Post("/webhooks/billing", webhookHandler.HandleBillingEvent)

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute)
	api.Use(auth.Middleware())
	api.Use(limiter.Middleware())

	api.Post("/documents", documentHandler.UploadDocument)
	api.Get("/documents", documentHandler.ListDocuments)
	api.Delete("/documents/:id", documentHandler.DeleteDocument)
	api.Post("/documents/:id/index", documentHandler.IndexDocument)
	api.Post("/documents/:id/ask", chatHandler.AskQuestion)
	api.Get("/documents/:id/messages", chatHandler.GetMessages)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", auth.Middleware(), websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
