package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"path/filepath"

	"promptx/internal/api"
	"promptx/internal/config"
	"promptx/internal/core"
	"promptx/internal/database"
	"promptx/internal/messaging"
	"promptx/internal/storage"
	"promptx/internal/templates"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Config struct {
	Root string `env:"ROOT" envDefault:"./promptx"`
	Port int    `env:"PORT" envDefault:"3001"`

	Research config.ResearchConfig
}

const workspaceBucket = "workspaces"

func createDatabase(root string) *gorm.DB {
	path := filepath.Join(root, "db", "promptx.db")
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.GetMigrator(db).Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	return db
}

// createQueue re-publishes any jobs that were still queued when the process
// last exited, since the in memory queue does not survive restarts.
func createQueue(db *gorm.DB) *messaging.InMemoryQueue {
	var buildJobs []database.BuildJob
	if err := db.Where("status = ?", database.JobQueued).Find(&buildJobs).Error; err != nil {
		log.Fatalf("Failed to fetch tasks from database: %v", err)
	}

	var researchJobs []database.ResearchJob
	if err := db.Where("status = ?", database.JobQueued).Find(&researchJobs).Error; err != nil {
		log.Fatalf("Failed to fetch tasks from database: %v", err)
	}

	queue := messaging.NewInMemoryQueue()

	for _, job := range buildJobs {
		if err := queue.PublishBuildTask(context.Background(), messaging.BuildTaskPayload{
			JobId:       job.Id,
			WorkspaceId: job.WorkspaceId,
		}); err != nil {
			log.Fatalf("Failed to publish build task: %v", err)
		}
	}

	for _, job := range researchJobs {
		if err := queue.PublishResearchTask(context.Background(), messaging.ResearchTaskPayload{
			JobId:       job.Id,
			WorkspaceId: job.WorkspaceId,
			Query:       job.Query,
			MaxResults:  job.MaxResults,
			FetchPages:  job.FetchPages,
		}); err != nil {
			log.Fatalf("Failed to publish research task: %v", err)
		}
	}

	return queue
}

func createServer(db *gorm.DB, store storage.Provider, queue messaging.Publisher, builder *core.PayloadBuilder, registry *templates.Registry, port int) *http.Server {
	r := chi.NewRouter()

	// Middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},                                       // Allow all origins (TODO: make this an env var)
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}, // Allow all HTTP methods
		AllowedHeaders:   []string{"*"},                                       // Allow all headers
		ExposedHeaders:   []string{"*"},                                       // Expose all headers
		AllowCredentials: true,                                                // Allow cookies/auth headers
		MaxAge:           300,                                                 // Cache preflight response for 5 minutes
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)                    // Log requests
	r.Use(middleware.Recoverer)                 // Recover from panics
	r.Use(middleware.Timeout(60 * time.Second)) // Set request timeout

	apiHandler := api.NewBackendService(db, store, queue, builder, registry, workspaceBucket)

	r.Route("/api/v1", func(r chi.Router) {
		apiHandler.AddRoutes(r)
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(cfg.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating directory for log file: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(cfg.Root, "backend.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	log.SetOutput(io.MultiWriter(f, os.Stderr))

	slog.Info("starting backend", "root", cfg.Root, "port", cfg.Port)

	db := createDatabase(cfg.Root)

	store, err := storage.NewLocalProvider(filepath.Join(cfg.Root, "storage"))
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}

	if err := store.CreateBucket(context.Background(), workspaceBucket); err != nil {
		log.Fatalf("Failed to create workspace bucket: %v", err)
	}

	queue := createQueue(db)

	builder, err := core.NewPayloadBuilder(core.BuilderConfig{})
	if err != nil {
		log.Fatalf("Failed to create payload builder: %v", err)
	}

	registry, err := templates.LoadRegistry()
	if err != nil {
		log.Fatalf("Failed to load meta prompt templates: %v", err)
	}

	worker := core.NewTaskProcessor(db, store, queue, builder, cfg.Research.NewSearcher(), cfg.Research.NewPageFetcher(), workspaceBucket)

	server := createServer(db, store, queue, builder, registry, cfg.Port)

	slog.Info("starting worker")
	go worker.Start()

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		slog.Info("shutting down worker")
		worker.Stop()
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}
