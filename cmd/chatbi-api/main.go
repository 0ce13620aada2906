package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"

	"github.com/chatbi/chatbi/internal/api"
	"github.com/chatbi/chatbi/internal/auth"
	"github.com/chatbi/chatbi/internal/catalog"
	"github.com/chatbi/chatbi/internal/config"
	"github.com/chatbi/chatbi/internal/conversation"
	"github.com/chatbi/chatbi/internal/export"
	"github.com/chatbi/chatbi/internal/intent"
	"github.com/chatbi/chatbi/internal/mql"
	"github.com/chatbi/chatbi/internal/observability"
	"github.com/chatbi/chatbi/internal/recall"
	"github.com/chatbi/chatbi/internal/warehouse"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("chatbi-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	registry, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		logger.Error("failed to load metric catalog", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := openWarehouse(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to open warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	store, err := conversationStore(cfg)
	if err != nil {
		logger.Error("failed to initialize conversation store", slog.Any("error", err))
		os.Exit(1)
	}
	conversations := conversation.NewManager(store, cfg.Conversation.MaxTurns)

	recaller, err := buildRecaller(context.Background(), cfg, db, logger)
	if err != nil {
		logger.Error("failed to initialize recall", slog.Any("error", err))
		os.Exit(1)
	}

	var llm intent.LLMRecognizer
	if cfg.LLM.Enabled {
		chatLLM, err := intent.NewChatLLMRecognizer(intent.LLMConfig{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, registry)
		if err != nil {
			logger.Error("failed to initialize llm recognizer", slog.Any("error", err))
			os.Exit(1)
		}
		llm = chatLLM
	}

	pipeline := intent.NewPipeline(intent.NewRecognizer(registry), recaller, llm, intent.PipelineConfig{
		RuleThreshold:     cfg.Intent.RuleThreshold,
		SemanticThreshold: cfg.Intent.SemanticThreshold,
	}, logger)

	deps := api.Dependencies{
		Logger:        logger,
		Registry:      registry,
		Pipeline:      pipeline,
		Conversations: conversations,
		Engine:        mql.NewEngine(db, mql.NewSQLGenerator(registry), logger),
		RecallTopK:    cfg.Intent.RecallTopK,
		Readiness:     api.CheckWarehouse(db.PingContext),
	}
	if cfg.Export.Enabled {
		objectStore, err := export.NewS3Store(context.Background(), export.S3Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Exporter = export.NewExporter(objectStore)
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("profile", string(cfg.Profile)),
			slog.String("warehouse", cfg.Warehouse.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

// openWarehouse connects to the configured backend. The duckdb driver runs
// an in-process demo warehouse seeded with sample facts.
func openWarehouse(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if cfg.Warehouse.Driver == "duckdb" {
		return warehouse.OpenDemo(ctx, warehouse.SeedConfig{Days: 90})
	}
	return warehouse.Open(ctx, warehouse.DBConfig{
		DSN:             cfg.Warehouse.DSN,
		MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
		MaxIdleConns:    cfg.Warehouse.MaxIdleConns,
		ConnMaxIdleTime: cfg.Warehouse.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
	})
}

func conversationStore(cfg config.Config) (conversation.Store, error) {
	if cfg.Conversation.Store == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return conversation.NewRedisStore(client, cfg.Conversation.TTL), nil
	}
	return conversation.NewMemoryStore(cfg.Conversation.TTL), nil
}

// buildRecaller assembles the L2 semantic layer: qdrant vector search fused
// with the postgres metric graph. Either path may be absent; nil means the
// layer is skipped entirely.
func buildRecaller(ctx context.Context, cfg config.Config, db *sql.DB, logger *slog.Logger) (recall.Recaller, error) {
	var vector recall.Recaller
	if cfg.Qdrant.Enabled {
		client, err := qdrant.NewClient(&qdrant.Config{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: cfg.Qdrant.APIKey,
			UseTLS: cfg.Qdrant.UseTLS,
		})
		if err != nil {
			return nil, err
		}
		embedder, err := buildEmbedder(ctx, cfg)
		if err != nil {
			return nil, err
		}
		vector = recall.NewQdrantRecaller(client, cfg.Qdrant.Collection, embedder)
	}

	var graph recall.Recaller
	if cfg.Warehouse.Driver == "postgres" {
		graph = recall.NewGraphRecaller(db)
	}

	if vector == nil && graph == nil {
		return nil, nil
	}
	return recall.NewDualRecaller(vector, graph, cfg.Intent.RecallTimeout, logger), nil
}

func buildEmbedder(ctx context.Context, cfg config.Config) (recall.Embedder, error) {
	if cfg.Embedder.Provider == "genai" {
		return recall.NewGenAIEmbedder(ctx, cfg.Embedder.Project, cfg.Embedder.Location, cfg.Embedder.Model)
	}
	return recall.NewHashEmbedder(cfg.Qdrant.VectorDim), nil
}
