package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/answer"
	"github.com/xxxsen/docqa/internal/chunker"
	"github.com/xxxsen/docqa/internal/config"
	"github.com/xxxsen/docqa/internal/db"
	"github.com/xxxsen/docqa/internal/embedcache"
	"github.com/xxxsen/docqa/internal/handler"
	"github.com/xxxsen/docqa/internal/ingest"
	"github.com/xxxsen/docqa/internal/job"
	"github.com/xxxsen/docqa/internal/middleware"
	"github.com/xxxsen/docqa/internal/query"
	"github.com/xxxsen/docqa/internal/schedule"
	"github.com/xxxsen/docqa/internal/service"
	"github.com/xxxsen/docqa/internal/vectorindex"
)

const (
	snapshotCronSpec = "*/10 * * * *"
	cleanupCronSpec  = "0 * * * *"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "docqa",
		Short: "docqa document question answering server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run docqa server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
			return runServer(cfg)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func buildIndex(ctx context.Context, cfg *config.Config, dim int) (vectorindex.Index, error) {
	switch cfg.VectorStore.Type {
	case "memory":
		return vectorindex.NewMemoryIndex(ctx, dim, cfg.VectorStore.Path)
	case "pgvector":
		conn, err := db.Open(cfg.VectorStore.Database)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.ApplyMigrations(conn); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return vectorindex.NewPgIndex(conn, dim)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown vector store type: %s", cfg.VectorStore.Type)
	}
}

func runServer(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logutil.GetLogger(ctx).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("vector_store", cfg.VectorStore.Type),
	)

	mgr, err := ai.NewManager(ai.ManagerConfig{
		Provider:        cfg.AI.Provider,
		Model:           cfg.AI.Model,
		EmbedModel:      cfg.AI.EmbedModel,
		Args:            cfg.AI.Data,
		Timeout:         cfg.AI.TimeoutSeconds,
		MaxContextChars: cfg.AI.MaxContextChars,
		EmbedderWrap: func(e ai.IEmbedder) ai.IEmbedder {
			return embedcache.WrapLruCacheToEmbedder(e, cfg.AI.CacheSize,
				time.Duration(cfg.AI.CacheTTLSeconds)*time.Second)
		},
	})
	if err != nil {
		return fmt.Errorf("init ai manager: %w", err)
	}
	logutil.GetLogger(ctx).Info("ai backends ready",
		zap.Bool("remote", mgr.RemoteBacked()),
		zap.String("embed_model", mgr.EmbeddingModelName()),
		zap.Int("embed_dimension", mgr.EmbedDimension()))

	dim := cfg.VectorStore.Dimension
	if dim == 0 {
		dim = mgr.EmbedDimension()
	}
	index, err := buildIndex(ctx, cfg, dim)
	if err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}

	downloader := ingest.NewDownloader(ingest.DownloaderConfig{
		MaxSizeBytes: int64(cfg.Ingest.MaxDocumentSizeMB) << 20,
		Timeout:      time.Duration(cfg.Ingest.TimeoutSeconds) * time.Second,
		TempDir:      cfg.Ingest.TempDir,
	})
	chk := chunker.New(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	processor := ingest.NewProcessor(downloader, chk)
	generator := answer.NewGenerator(mgr)
	analyzer := query.NewProcessor(generator)
	pipeline := service.NewPipeline(processor, mgr, index, generator, analyzer, service.PipelineConfig{
		MaxConcurrent: cfg.Ingest.MaxConcurrent,
		TopK:          cfg.VectorStore.TopK,
	})

	deps := handler.RouterDeps{
		Pipeline:    handler.NewPipelineHandler(pipeline, cfg.Ingest.TempDir),
		BearerToken: cfg.BearerToken,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	scheduler := schedule.NewCronScheduler()
	if index != nil {
		if err := scheduler.AddJob(job.NewIndexSnapshotJob(index), snapshotCronSpec); err != nil {
			return err
		}
	}
	if err := scheduler.AddJob(job.NewTempCleanupJob(cfg.Ingest.TempDir, 0), cleanupCronSpec); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
