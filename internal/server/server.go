// Package server exposes the HTTP surface: upload intake, job polling,
// receipt listing and correction, export, health, and metrics.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ocreceipt/ocreceipt/internal/async"
	"github.com/ocreceipt/ocreceipt/internal/common"
	"github.com/ocreceipt/ocreceipt/internal/export"
	"github.com/ocreceipt/ocreceipt/internal/repository"
	"github.com/ocreceipt/ocreceipt/internal/storage"
	"github.com/ocreceipt/ocreceipt/internal/telemetry"
)

type Server struct {
	cfg       common.ServerConfig
	jobs      repository.JobRepository
	receipts  repository.ReceiptRepository
	merchants repository.MerchantRepository
	blobs     storage.BlobStore
	queue     async.Queue
	exporter  *export.Service
	db        *sql.DB
	logger    *slog.Logger
}

func New(
	cfg common.ServerConfig,
	jobs repository.JobRepository,
	receipts repository.ReceiptRepository,
	merchants repository.MerchantRepository,
	blobs storage.BlobStore,
	queue async.Queue,
	exporter *export.Service,
	db *sql.DB,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		jobs:      jobs,
		receipts:  receipts,
		merchants: merchants,
		blobs:     blobs,
		queue:     queue,
		exporter:  exporter,
		db:        db,
		logger:    logger,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Mount("/metrics", telemetry.Handler())

	r.Post("/receipts/upload", s.handleUpload)
	r.Get("/upload-jobs/{id}", s.handleGetJob)

	r.Get("/receipts", s.handleListReceipts)
	r.Get("/receipts/export", s.handleExport)
	r.Get("/receipts/{id}", s.handleGetReceipt)
	r.Patch("/receipts/{id}", s.handlePatchReceipt)
	r.Patch("/receipts/{id}/review", s.handleReviewFlag)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := repository.HealthCheck(ctx, s.db); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeRepoError maps repository sentinels onto HTTP statuses.
func writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, common.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid input")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
