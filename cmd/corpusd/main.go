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

	"github.com/corpusd/corpusd/internal/ai"
	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/db"
	"github.com/corpusd/corpusd/internal/embedcache"
	"github.com/corpusd/corpusd/internal/filestore"
	"github.com/corpusd/corpusd/internal/handler"
	"github.com/corpusd/corpusd/internal/job"
	"github.com/corpusd/corpusd/internal/middleware"
	"github.com/corpusd/corpusd/internal/model"
	"github.com/corpusd/corpusd/internal/pkg/secretbox"
	"github.com/corpusd/corpusd/internal/repo"
	"github.com/corpusd/corpusd/internal/schedule"
	"github.com/corpusd/corpusd/internal/service"
)

const vaultKeyEnv = "CORPUSD_VAULT_KEY"

func main() {
	var configPath string
	var dryRun bool
	var batchSize int

	rootCmd := &cobra.Command{
		Use:   "corpusd",
		Short: "document storage and hybrid retrieval server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run corpusd server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate <source>",
		Short: "import a legacy dump (legacy_vectors or legacy_catalog)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runMigrate(cfg, args[0], dryRun, batchSize)
		},
	}
	migrateCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	migrateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "count pending records without importing")
	migrateCmd.Flags().IntVar(&batchSize, "batch-size", 0, "records per checkpoint batch")
	rootCmd.AddCommand(migrateCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
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
	return cfg, nil
}

// openStorage brings the database to a usable state: schema migrations,
// config singletons, the dimension-sized vector column and the lexical probe.
func openStorage(ctx context.Context, cfg *config.Config) (*db.Pool, *service.ConfigService, bool, error) {
	pool, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, false, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(pool.Handle()); err != nil {
		pool.Close()
		return nil, nil, false, fmt.Errorf("migrations: %w", err)
	}
	configService := service.NewConfigService(repo.NewConfigRepo(pool))
	static, err := configService.LoadStatic(ctx, cfg.Deployment)
	if err != nil {
		pool.Close()
		return nil, nil, false, err
	}
	if err := db.EnsureVectorSchema(pool.Handle(), static.EmbeddingDim); err != nil {
		pool.Close()
		return nil, nil, false, fmt.Errorf("vector schema: %w", err)
	}
	lexical := db.ProbeLexical(ctx, pool.Handle())
	if !lexical {
		logutil.GetLogger(ctx).Warn("full-text search unavailable, retrieval degrades to semantic-only")
	}
	return pool, configService, lexical, nil
}

func buildEmbedder(cfg *config.Config, modelName string, cacheRepo *repo.EmbeddingCacheRepo) (ai.IEmbedder, error) {
	provider, err := ai.NewProvider(cfg.Embedder.Provider, cfg.Embedder.Data)
	if err != nil {
		return nil, fmt.Errorf("init embedding provider: %w", err)
	}
	embedder := ai.NewEmbedder(provider, modelName)
	if cfg.Embedder.UseDBCache {
		embedder = embedcache.WrapDB(embedder, cacheRepo)
	}
	embedder = embedcache.WrapLRU(embedder, cfg.Embedder.CacheSize, cacheTTL(cfg))
	return embedder, nil
}

func runServer(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, configService, lexical, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	static := configService.Static()

	userRepo := repo.NewUserRepo(pool)
	docRepo := repo.NewDocumentRepo(pool)
	chunkRepo := repo.NewChunkRepo(pool, lexical, static.EmbeddingDim)
	selectionRepo := repo.NewSelectionRepo(pool)
	credentialRepo := repo.NewCredentialRepo(pool)
	checkpointRepo := repo.NewCheckpointRepo(pool)
	cacheRepo := repo.NewEmbeddingCacheRepo(pool)

	store, err := filestore.New(cfg.LegacyStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	embedder, err := buildEmbedder(cfg, static.EmbeddingModel, cacheRepo)
	if err != nil {
		return err
	}

	vaultKey, err := secretbox.ParseKey(os.Getenv(vaultKeyEnv))
	if err != nil {
		return fmt.Errorf("parse %s: %w", vaultKeyEnv, err)
	}
	vaultService := service.NewVaultService(credentialRepo, userRepo, vaultKey, cfg.ProviderKeys)
	if err := vaultService.CheckStartup(ctx); err != nil {
		return err
	}

	chunker := ai.NewChunker(static.ChunkSize, static.ChunkOverlap)
	indexService := service.NewIndexService(docRepo, chunkRepo, store, chunker, embedder, static.EmbeddingDim)
	catalogService := service.NewCatalogService(docRepo, store, indexService)
	selectionService := service.NewSelectionService(selectionRepo, userRepo, docRepo)
	searchService := service.NewSearchService(chunkRepo, selectionService, configService, embedder)

	deps := handler.RouterDeps{
		Auth:        handler.NewAuthHandler(cfg.Auth),
		Config:      handler.NewConfigHandler(configService),
		Catalog:     handler.NewCatalogHandler(catalogService),
		Selections:  handler.NewSelectionHandler(selectionService),
		Credentials: handler.NewCredentialHandler(vaultService),
		Search:      handler.NewSearchHandler(searchService),
		Users:       handler.NewUserHandler(userRepo),
		Migrations:  handler.NewMigrationHandler(checkpointRepo),
		JWTSecret:   []byte(cfg.Auth.JWTSecret),
		AuthEnabled: static.AuthEnabled,
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	scheduler := schedule.NewCronScheduler()
	cleanupSpec := cfg.Jobs.CacheCleanupSpec
	if cleanupSpec == "" {
		cleanupSpec = "30 3 * * *"
	}
	if err := scheduler.AddJob(job.NewCacheCleanupJob(cacheRepo, cfg.Embedder.CacheTTLDays), cleanupSpec); err != nil {
		return err
	}
	reindexSpec := cfg.Jobs.ReindexSpec
	if reindexSpec == "" {
		reindexSpec = "*/10 * * * *"
	}
	if err := scheduler.AddJob(job.NewReindexJob(indexService, cfg.Jobs.ReindexBatch), reindexSpec); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("http server listening",
		zap.String("addr", addr),
		zap.String("deployment", static.DeploymentName),
		zap.Bool("lexical", lexical))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

func runMigrate(cfg *config.Config, source string, dryRun bool, batchSize int) error {
	if !model.ValidMigrationSource(source) {
		return fmt.Errorf("unknown migration source %q", source)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, configService, _, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := filestore.New(cfg.LegacyStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	docRepo := repo.NewDocumentRepo(pool)
	chunkRepo := repo.NewChunkRepo(pool, false, configService.Static().EmbeddingDim)
	migrateService := service.NewMigrateService(
		repo.NewCheckpointRepo(pool), docRepo, chunkRepo, store,
		configService.Static().EmbeddingDim, batchSize)

	if dryRun {
		report, err := migrateService.Analyze(ctx, source)
		if err != nil {
			return err
		}
		fmt.Printf("source=%s status=%s total=%d processed=%d remaining=%d (dry run)\n",
			report.Source, report.Status, report.Total, report.Processed, report.Remaining)
		return nil
	}

	report, err := migrateService.Run(ctx, source)
	if err != nil {
		return err
	}
	fmt.Printf("source=%s status=%s total=%d processed=%d\n",
		report.Source, report.Status, report.Total, report.Processed)
	return nil
}

func cacheTTL(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Embedder.CacheTTLMin) * time.Minute
}
