package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/adpulse/configs"
	"github.com/maheshrc27/adpulse/internal/api"
	"github.com/maheshrc27/adpulse/internal/api/handlers"
	"github.com/maheshrc27/adpulse/internal/api/middleware"
	job "github.com/maheshrc27/adpulse/internal/jobs"
	"github.com/maheshrc27/adpulse/internal/queue"
	"github.com/maheshrc27/adpulse/internal/repository"
	"github.com/maheshrc27/adpulse/internal/repository/memstore"
	"github.com/maheshrc27/adpulse/internal/service"
	"github.com/robfig/cron"
)

type repositories struct {
	accounts  repository.AccountRepository
	creatives repository.CreativeRepository
	daily     repository.DailyMetricRepository
	syncLogs  repository.SyncLogRepository
	mediaLogs repository.MediaRefreshLogRepository
	mappings  repository.NameMappingRepository
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	ctx := context.Background()
	if err := cfg.R2.Validate(); err != nil {
		log.Fatalf("Invalid object storage settings: %v", err)
	}

	var (
		db    *sql.DB
		repos repositories
		ping  func(ctx context.Context) error
	)
	switch cfg.Store {
	case config.StoreMemory:
		store := memstore.New(cfg.R2.PublicURL)
		repos = repositories{
			accounts:  store.Accounts(),
			creatives: store.Creatives(),
			daily:     store.DailyMetrics(),
			syncLogs:  store.SyncLogs(),
			mediaLogs: store.MediaRefreshLogs(),
			mappings:  store.NameMappings(),
		}
		slog.Warn("using in-memory store, data is lost on restart")
	case config.StorePostgres:
		var err error
		db, err = sql.Open("postgres", cfg.PostgresURI)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("Database is unreachable: %v", err)
		}
		if err := repository.Migrate(ctx, db); err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
		repos = repositories{
			accounts:  repository.NewAccountRepository(db),
			creatives: repository.NewCreativeRepository(db, cfg.R2.PublicURL),
			daily:     repository.NewDailyMetricRepository(db),
			syncLogs:  repository.NewSyncLogRepository(db),
			mediaLogs: repository.NewMediaRefreshLogRepository(db),
			mappings:  repository.NewNameMappingRepository(db),
		}
		ping = db.PingContext
	default:
		log.Fatalf("Unknown STORE %q", cfg.Store)
	}

	var storage service.ObjectStorage
	if cfg.R2.BucketName != "" {
		r2Service, err := service.NewR2Service(ctx, cfg.R2)
		if err != nil {
			log.Fatalf("Failed to configure object storage: %v", err)
		}
		storage = r2Service
	} else {
		slog.Warn("R2_BUCKET_NAME is empty, media caching is disabled")
	}

	var (
		dispatcher service.Dispatcher
		inline     *queue.InlineDispatcher
		client     *asynq.Client
		redisConn  asynq.RedisClientOpt
	)
	if cfg.RedisURI != "" {
		redisConn = asynq.RedisClientOpt{Addr: cfg.RedisURI}
		client = asynq.NewClient(redisConn)
		defer client.Close()
		dispatcher = queue.NewAsynqDispatcher(client)
	} else {
		inline = &queue.InlineDispatcher{}
		dispatcher = inline
		slog.Warn("REDIS_URI is empty, syncs run in-process")
	}

	adsClient := service.NewMetaAdsClient(cfg.Meta)
	tagService := service.NewTagService(repos.accounts, repos.creatives, repos.mappings)
	syncService := service.NewSyncService(cfg.Sync, adsClient, repos.accounts, repos.creatives, repos.daily, repos.syncLogs, tagService, dispatcher)
	if inline != nil {
		inline.Run = syncService.Execute
	}
	mappingService := service.NewMappingService(repos.accounts, repos.mappings, tagService)
	mediaService := service.NewMediaCacheService(cfg.Media, repos.creatives, repos.mediaLogs, storage, adsClient)
	creativeService := service.NewCreativeService(repos.accounts, repos.creatives)
	accountService := service.NewAccountService(repos.accounts, repos.creatives, repos.daily)

	app := api.NewApp(cfg.FrontendURL)
	authMiddleware := middleware.NewAuthMiddleware(*cfg)
	api.Register(app, api.Handlers{
		Sync:     handlers.NewSyncHandler(syncService),
		Media:    handlers.NewMediaHandler(mediaService),
		Creative: handlers.NewCreativeHandler(creativeService),
		Account:  handlers.NewAccountHandler(accountService, tagService),
		Mapping:  handlers.NewMappingHandler(mappingService),
		Health:   handlers.NewHealthHandler(ping),
	}, authMiddleware.AuthMiddleware())

	// cron jobs
	reaper := job.NewStuckJobReaper(repos.syncLogs, repos.mediaLogs, syncService, *cfg)
	scheduled := job.NewScheduledSyncJob(repos.accounts, repos.syncLogs, syncService, cfg.Sync.ScheduleSpec)

	c := cron.New()
	if err := c.AddFunc(fmt.Sprintf("@every %s", cfg.ReaperInterval), reaper.ReapStuckJobs); err != nil {
		log.Fatalf("Invalid REAPER_INTERVAL: %v", err)
	}
	if err := c.AddFunc("@every 1m", scheduled.RunScheduledSyncs); err != nil {
		log.Fatalf("Failed to schedule syncs: %v", err)
	}
	c.Start()
	defer c.Stop()

	var server *asynq.Server
	if client != nil {
		queueW := queue.NewQueue(syncService)
		server = asynq.NewServer(redisConn, asynq.Config{
			Concurrency: cfg.Sync.Concurrency,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypeSyncRun, queueW.HandleSyncRunTask)

		go func() {
			log.Println("Starting the Asynq server...")
			if err := server.Run(mux); err != nil {
				log.Fatalf("Could not start Asynq server: %v", err)
			}
		}()
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on http://localhost:%s", cfg.Port)

	gracefulShutdown(app, server, inline, db)
}

func closeDB(db *sql.DB) {
	if db == nil {
		return
	}
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, server *asynq.Server, inline *queue.InlineDispatcher, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}
	if server != nil {
		server.Shutdown()
	}
	if inline != nil {
		inline.Wait()
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
