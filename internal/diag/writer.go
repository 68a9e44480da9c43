// Package diag writes per-job diagnostic bundles for low-confidence reads:
// a report.json describing every recognition attempt plus a copy of the
// original upload, laid out so a human can rerun the case by hand.
package diag

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Attempt captures one tier's recognition outcome.
type Attempt struct {
	Tier             string  `json:"tier"`
	Method           string  `json:"method"`
	EngineConfidence float64 `json:"engine_confidence"`
	Confidence       float64 `json:"confidence"`
	TextLength       int     `json:"text_length"`
}

// ReportFields mirrors the extracted values as strings; nulls mean the
// field never resolved.
type ReportFields struct {
	Merchant       *string `json:"merchant"`
	PurchaseDate   *string `json:"purchase_date"`
	TotalAmount    *string `json:"total_amount"`
	SalesTaxAmount *string `json:"sales_tax_amount"`
}

type Report struct {
	JobID            string       `json:"job_id"`
	OriginalFilename string       `json:"original_filename"`
	ContentType      string       `json:"content_type"`
	GeneratedAt      time.Time    `json:"generated_at"`
	Threshold        float64      `json:"threshold"`
	FinalTier        string       `json:"final_tier"`
	FinalConfidence  float64      `json:"final_confidence"`
	Fields           ReportFields `json:"fields"`
	Attempts         []Attempt    `json:"attempts"`
	RawText          string       `json:"raw_text"`
}

// Writer materializes bundles under a base directory, one subdirectory per
// job. Callers treat write failures as non-fatal; a lost bundle must never
// fail the job that produced it.
type Writer struct {
	baseDir string
	logger  *slog.Logger
}

func NewWriter(baseDir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{baseDir: baseDir, logger: logger}
}

// Write validates the report against its schema, then lays down
// <base>/<job_id>/report.json and the stored upload alongside it. ext names
// the copy; intake may have re-encoded the upload, so the stored key's
// extension is authoritative, not the original filename's.
func (w *Writer) Write(report Report, original []byte, ext string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := validateReport(data); err != nil {
		return err
	}

	dir := filepath.Join(w.baseDir, report.JobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "report.json"), data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	name := "original" + ext
	if err := os.WriteFile(filepath.Join(dir, name), original, 0o644); err != nil {
		return fmt.Errorf("write original: %w", err)
	}

	w.logger.Info("wrote diagnostic bundle", "job_id", report.JobID, "dir", dir)
	return nil
}
