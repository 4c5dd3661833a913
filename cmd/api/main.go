package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/api/handlers"
	"github.com/dvloznov/receipt-tracker/internal/api/middleware"
	infraBQ "github.com/dvloznov/receipt-tracker/internal/infra/bigquery"
	"github.com/dvloznov/receipt-tracker/internal/ingest"
	"github.com/dvloznov/receipt-tracker/internal/jobs"
	"github.com/dvloznov/receipt-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/scanner"
	"github.com/dvloznov/receipt-tracker/internal/storage"
)

func main() {
	var (
		port   = flag.String("port", "8080", "HTTP server port")
		bucket = flag.String("bucket", os.Getenv("RECEIPTS_BUCKET"), "GCS bucket for receipt files (or set RECEIPTS_BUCKET env)")
		model  = flag.String("model", "", "Gemini model for receipt scanning (defaults to RECEIPT_MODEL env)")
	)
	flag.Parse()

	log := logger.New()

	if *bucket == "" {
		log.Fatal().Msg("No GCS bucket configured - set -bucket or RECEIPTS_BUCKET")
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	receiptRepo, err := infraBQ.NewReceiptRepository(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create receipt repository")
	}
	defer receiptRepo.Close()

	productRepo, err := infraBQ.NewProductRepository(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create product repository")
	}
	defer productRepo.Close()

	itemRepo, err := infraBQ.NewReceiptItemRepository(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create receipt item repository")
	}
	defer itemRepo.Close()

	files := storage.NewGCSFileStorage(*bucket)
	scan := scanner.NewGeminiScanner(*model)

	pipeline := ingest.NewPipeline(files, scan, receiptRepo, productRepo, itemRepo)
	reprocessor := ingest.NewReprocessor(files, scan, receiptRepo, productRepo, itemRepo)

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 2, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		reprocessJob, ok := job.(*jobs.ReprocessReceiptJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", reprocessJob.JobID).
			Str("receipt_id", reprocessJob.ReceiptID).
			Msg("Processing reprocess job")

		if _, err := reprocessor.Execute(logger.WithContext(ctx, log), reprocessJob.ReceiptID); err != nil {
			log.Error().
				Err(err).
				Str("job_id", reprocessJob.JobID).
				Str("receipt_id", reprocessJob.ReceiptID).
				Msg("Reprocessing failed")
			return err
		}

		return nil
	}

	go func() {
		log.Info().Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	receiptsHandler := handlers.NewReceiptsHandler(pipeline, receiptRepo, jobQueue, log)
	productsHandler := handlers.NewProductsHandler(productRepo, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/receipts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			receiptsHandler.List(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/receipts/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			receiptsHandler.Upload(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/receipts/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/receipts/")
		if rest == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Receipt ID is required")
			return
		}

		if id, ok := strings.CutSuffix(rest, "/reprocess"); ok {
			if r.Method != http.MethodPost {
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			receiptsHandler.Reprocess(w, r, id)
			return
		}

		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		receiptsHandler.Get(w, r, rest)
	})

	mux.HandleFunc("/api/products/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/products/")
		id, ok := strings.CutSuffix(rest, "/alias")
		if !ok || id == "" {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		if r.Method != http.MethodPost {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		productsHandler.CreateAlias(w, r, id)
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.List(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		jobsHandler.Get(w, r, jobID)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
