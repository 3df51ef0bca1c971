package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/urfave/negroni"

	"github.com/serisow/ingestor/config"
	"github.com/serisow/ingestor/db"
	"github.com/serisow/ingestor/handlers"
	"github.com/serisow/ingestor/logging"
	"github.com/serisow/ingestor/server"
	"github.com/serisow/ingestor/services/llm_service"
	"github.com/serisow/ingestor/services/rag_service"
	"github.com/serisow/ingestor/store"
	"github.com/serisow/ingestor/worker"
)

const reindexInterval = 6 * time.Hour

func main() {
	cfg := config.Load()

	logger := setupLogger(cfg)

	pool, err := db.Connect()
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(context.Background(), pool, cfg.EmbeddingDimensions, cfg.SparseDimensions); err != nil {
		log.Fatalf("Schema setup failed: %v", err)
	}

	documents := store.NewDocumentStore(pool, logger)
	jobs := store.NewJobStore(pool, logger)
	settings := store.NewSettingsStore(pool, logger)

	llm := llm_service.NewOpenAIService(logger)
	resources := rag_service.NewResources(cfg, pool, llm, logger)

	reporter := worker.NewReporter(documents, jobs, cfg.ProgressEndpoint, logger)
	cleaner := worker.NewCleaner(resources.Processor(), resources.VectorStore(), logger)
	runner := worker.NewRunner(resources, settings, documents, reporter, logger)
	wake := worker.NewListenWakeSource(os.Getenv("DATABASE_URL"), logger)

	w := worker.New(documents, jobs, runner, reporter, cleaner, wake, logger, &worker.Options{
		WaitTimeout: cfg.PollInterval,
		Backoff:     cfg.ListenBackoff,
	})
	go w.Start()

	indexManager := rag_service.NewIndexManager(pool, logger)
	go maintainIndex(indexManager, logger)

	uploadHandler := handlers.NewUploadHandler(documents, cfg.UploadDir, logger)
	statusHandler := handlers.NewJobStatusHandler(jobs, logger)
	searchHandler := handlers.NewDocumentSearchHandler(resources.Embedder(), resources.VectorStore(), logger)

	r := server.SetupRoutes(uploadHandler, statusHandler, searchHandler)
	n := setupNegroni(r)

	go handleSignals(w, logger)

	if cfg.Environment == "production" {
		server.ServeProduction(n, cfg.Domains, cfg.CertCacheDir)
	} else {
		srv := &http.Server{
			Addr:         ":" + cfg.HTTPPort,
			Handler:      n,
			IdleTimeout:  time.Minute,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		server.ServeDevelopment(srv)
	}
}

func setupLogger(cfg config.Config) *slog.Logger {
	fileHandler, err := logging.NewDailyFileHandler(cfg.LogDir, &slog.HandlerOptions{Level: slog.LevelInfo})
	if err != nil {
		log.Printf("Warning: could not set up file logging, using stdout only: %v", err)
		return slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	return slog.New(fileHandler)
}

func setupNegroni(r *mux.Router) *negroni.Negroni {
	n := negroni.New()

	n.Use(negroni.NewRecovery())
	n.Use(negroni.NewLogger())

	n.UseHandler(r)
	return n
}

func maintainIndex(indexManager *rag_service.IndexManager, logger *slog.Logger) {
	ticker := time.NewTicker(reindexInterval)
	defer ticker.Stop()

	for range ticker.C {
		if err := indexManager.ReindexIfNeeded(context.Background()); err != nil {
			logger.Error("Vector index maintenance failed",
				slog.String("error", err.Error()))
		}
	}
}

func handleSignals(w *worker.Worker, logger *slog.Logger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs

	logger.Info("Shutdown signal received",
		slog.String("signal", sig.String()))
	w.Shutdown()
}
