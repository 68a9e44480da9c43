package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ocreceipt/ocreceipt/internal/async"
	"github.com/ocreceipt/ocreceipt/internal/common"
	"github.com/ocreceipt/ocreceipt/internal/diag"
	"github.com/ocreceipt/ocreceipt/internal/export"
	"github.com/ocreceipt/ocreceipt/internal/ocr"
	"github.com/ocreceipt/ocreceipt/internal/pipeline"
	"github.com/ocreceipt/ocreceipt/internal/repository"
	"github.com/ocreceipt/ocreceipt/internal/server"
	"github.com/ocreceipt/ocreceipt/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, closeDB, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer closeDB()

	if err := repository.Migrate(ctx, db); err != nil {
		logger.Error("run migrations", "error", err)
		os.Exit(1)
	}
	if err := repository.HealthCheck(ctx, db); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database ready", "driver", cfg.Database.Driver)

	jobs := repository.NewJobRepository(db, logger)
	receipts := repository.NewReceiptRepository(db, logger)
	merchants := repository.NewMerchantRepository(db, logger)

	blobs, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		logger.Error("init blob store", "error", err)
		os.Exit(1)
	}

	var engine ocr.Engine = ocr.NewTesseractEngine(ocr.Config{
		Tesseract:   cfg.OCR.Tesseract,
		Pdftoppm:    cfg.OCR.Pdftoppm,
		Lang:        cfg.OCR.TesseractLang,
		TessdataDir: cfg.OCR.TessdataDir,
		DPI:         cfg.OCR.DPI,
		MaxPages:    cfg.OCR.MaxPages,
		FastMaxSide: cfg.OCR.FastMaxSide,
	}, logger)
	if cfg.OCR.BreakerEnabled {
		engine = ocr.NewBreakerEngine(engine, logger)
	}

	var diagWriter *diag.Writer
	if cfg.Pipeline.DiagnosticsEnabled {
		diagWriter = diag.NewWriter(cfg.Pipeline.DiagnosticsDir, logger)
	}

	policy := pipeline.RetryPolicy{
		Enabled:   cfg.Pipeline.RetryEnabled,
		Threshold: cfg.Pipeline.ConfidenceThreshold,
	}
	proc := pipeline.NewProcessor(jobs, receipts, merchants, blobs, engine, policy, diagWriter, logger)

	var queue async.Queue
	if cfg.Queue.RedisAddr != "" {
		queue = async.NewRedisQueue(cfg.Queue, cfg.Pipeline.Workers, cfg.Pipeline.ProcessTimeout, proc.ProcessJob, logger)
		logger.Info("dispatching via redis", "addr", cfg.Queue.RedisAddr, "key", cfg.Queue.RedisKey)
	} else {
		queue = async.NewWorkerQueue(proc.ProcessJob, logger,
			async.WithWorkers(cfg.Pipeline.Workers),
			async.WithQueueSize(cfg.Pipeline.QueueSize),
			async.WithProcessTimeout(cfg.Pipeline.ProcessTimeout),
		)
	}

	// Jobs stranded by a previous crash go back to the queue before we
	// start accepting new uploads. The staleness horizon keeps episodes
	// running live on other replicas out of it.
	requeued, err := jobs.RequeueIncomplete(ctx, cfg.Pipeline.RequeueStaleAfter)
	if err != nil {
		logger.Error("requeue incomplete jobs", "error", err)
		os.Exit(1)
	}
	for _, id := range requeued {
		if err := queue.Enqueue(ctx, id); err != nil {
			logger.Warn("failed to re-enqueue job", "job_id", id, "error", err)
		}
	}
	if len(requeued) > 0 {
		logger.Info("requeued incomplete jobs", "count", len(requeued))
	}

	exporter := export.NewService(receipts, logger)
	srv := server.New(cfg.Server, jobs, receipts, merchants, blobs, queue, exporter, db, logger)

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: srv.Router(),
	}
	go func() {
		logger.Info("http serving", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
