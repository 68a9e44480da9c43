package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ocreceipt/ocreceipt/constants"
	"github.com/ocreceipt/ocreceipt/internal/entity"
	"github.com/ocreceipt/ocreceipt/internal/telemetry"
)

// handleUpload accepts one multipart file. Unsupported kinds are rejected
// here, synchronously, before any job exists; everything after the 202 is
// the worker's problem.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer func() { _ = file.Close() }()

	contentType := header.Header.Get("Content-Type")
	if !constants.IsSupportedUpload(contentType, header.Filename) {
		telemetry.UploadsRejected.Inc()
		writeError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("unsupported file kind: %s (%s)", header.Filename, contentType))
		return
	}

	body, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	jobID := uuid.New()
	body, storedExt, storedType := normalizeUpload(body, contentType, header.Filename)
	storedKey := fmt.Sprintf("jobs/%s/source%s", jobID, storedExt)

	if err := s.blobs.Save(r.Context(), storedKey, body, storedType); err != nil {
		s.logger.Error("failed to store upload", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	job := &entity.UploadJob{
		ID:               jobID,
		OriginalFilename: header.Filename,
		StoredKey:        storedKey,
		ContentType:      storedType,
	}
	if err := s.jobs.Create(r.Context(), job); err != nil {
		s.logger.Error("failed to create job", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	if err := s.queue.Enqueue(r.Context(), jobID); err != nil {
		s.logger.Error("failed to enqueue job", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	telemetry.UploadsAccepted.Inc()
	writeJSON(w, http.StatusAccepted, job)
}

// normalizeUpload re-encodes images upright as PNG so recognition never
// sees EXIF rotation. PDFs and undecodable images pass through unchanged.
func normalizeUpload(body []byte, contentType, filename string) ([]byte, string, string) {
	if constants.IsPDF(contentType, filename) {
		return body, ".pdf", "application/pdf"
	}

	img, err := imaging.Decode(bytes.NewReader(body), imaging.AutoOrientation(true))
	if err != nil {
		ext := strings.ToLower(filepath.Ext(filename))
		if ext == "" {
			ext = ".png"
		}
		return body, ext, contentType
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return body, strings.ToLower(filepath.Ext(filename)), contentType
	}
	return buf.Bytes(), ".png", "image/png"
}

type jobResponse struct {
	*entity.UploadJob
	Receipt *entity.Receipt `json:"receipt,omitempty"`
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := s.jobs.GetByID(r.Context(), id)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	resp := jobResponse{UploadJob: job}
	if job.Status == constants.JobStatusCompleted && job.ReceiptID != nil {
		if rec, err := s.receipts.GetByID(r.Context(), *job.ReceiptID); err == nil {
			resp.Receipt = rec
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
