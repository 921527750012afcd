package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/knowbase/internal/api/handlers"
	"github.com/cloo-solutions/knowbase/internal/config"
	"github.com/cloo-solutions/knowbase/internal/jobs"
	"github.com/cloo-solutions/knowbase/internal/openai"
	"github.com/cloo-solutions/knowbase/internal/repository"
	"github.com/cloo-solutions/knowbase/internal/server"
	"github.com/cloo-solutions/knowbase/internal/service"
	"github.com/cloo-solutions/knowbase/internal/storage"
	"github.com/cloo-solutions/knowbase/internal/synthesis"
	"github.com/cloo-solutions/knowbase/internal/telemetry"
	"github.com/cloo-solutions/knowbase/internal/tokens"
	"github.com/cloo-solutions/knowbase/internal/vectorindex"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	extopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the knowbase API server and the index worker",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-worker", false, "Do not start the index worker")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !cfg.HasOpenAI() {
		return fmt.Errorf("KNOWBASE_OPENAI_API_KEY is required: synthesis and retrieval call OpenAI")
	}

	if cfg.HasSentry() {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	itemRepo := repository.NewItemRepository(pool)
	indexJobRepo := repository.NewIndexJobRepository(pool)
	ingestionRepo := repository.NewIngestionRepository(pool)
	tenantRepo := repository.NewTenantRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	queryLogRepo := repository.NewQueryLogRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	oai := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		EmbeddingModel:      extopenai.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		ChatModel:           cfg.ChatModel,
	})

	qdrantClient, err := vectorindex.NewClient(cfg.QdrantHost, cfg.QdrantPort)
	if err != nil {
		return fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	router := vectorindex.NewRouter(qdrantClient, cfg.EmbeddingDimensions)
	log.Printf("qdrant ready at %s:%d", cfg.QdrantHost, cfg.QdrantPort)

	var archiver service.SourceArchiver
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready, archiving sources", cfg.S3Bucket)
		archiver = s3Client
	}

	var counter tokens.Counter
	counter, err = tokens.NewTiktoken()
	if err != nil {
		log.Printf("tiktoken unavailable, falling back to estimator: %v", err)
		counter = tokens.Estimator{}
	}

	storeSvc := service.NewStoreService(itemRepo)
	tenantSvc := service.NewTenantService(tenantRepo)
	authSvc := service.NewAuthService(apiKeyRepo, &service.DefaultUUIDGenerator{})
	reviewSvc := service.NewReviewService(itemRepo, ingestionRepo, txRunner)
	ingestSvc := service.NewIngestService(service.IngestServiceConfig{
		IngestionRepo: ingestionRepo,
		Store:         storeSvc,
		Pipeline:      synthesis.NewPipeline(oai),
		Tenants:       tenantSvc,
		Archive:       archiver,
	})
	retrievalSvc := service.NewRetrievalService(service.RetrievalServiceConfig{
		Embedder:    oai,
		Searcher:    router,
		Generator:   oai,
		ItemRepo:    itemRepo,
		QueryLog:    queryLogRepo,
		Counter:     counter,
		TokenBudget: cfg.ContextTokenBudget,
	})

	var indexWorker *jobs.Worker
	noWorker, _ := cmd.Flags().GetBool("no-worker")
	if !noWorker {
		processor := jobs.NewIndexWorker(indexJobRepo, itemRepo, oai, router)
		indexWorker = jobs.NewWorker(processor, cfg.WorkerPollInterval)
		go indexWorker.Start(ctx)
		log.Println("index worker started")
	}

	routerCfg := server.RouterConfig{
		AuthValidator: authSvc,
		IngestHandler: handlers.NewIngestHandler(ingestSvc, reviewSvc),
		ItemsHandler:  handlers.NewItemsHandler(storeSvc, reviewSvc),
		AskHandler:    handlers.NewAskHandler(retrievalSvc),
		TenantHandler: handlers.NewTenantHandler(tenantSvc),
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.NewRouter(routerCfg),
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if indexWorker != nil {
		indexWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
