package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ocreceipt/ocreceipt/constants"
	"github.com/ocreceipt/ocreceipt/internal/diag"
	"github.com/ocreceipt/ocreceipt/internal/entity"
	"github.com/ocreceipt/ocreceipt/internal/extract"
	"github.com/ocreceipt/ocreceipt/internal/ocr"
	"github.com/ocreceipt/ocreceipt/internal/repository"
	"github.com/ocreceipt/ocreceipt/internal/storage"
	"github.com/ocreceipt/ocreceipt/internal/telemetry"
)

// Processor drives one job from claimed to terminal. It is stateless apart
// from its dependencies and safe for concurrent use.
type Processor struct {
	jobs      repository.JobRepository
	receipts  repository.ReceiptRepository
	merchants repository.MerchantRepository
	blobs     storage.BlobStore
	engine    ocr.Engine
	policy    RetryPolicy
	diag      *diag.Writer // nil disables bundles
	logger    *slog.Logger
}

func NewProcessor(
	jobs repository.JobRepository,
	receipts repository.ReceiptRepository,
	merchants repository.MerchantRepository,
	blobs storage.BlobStore,
	engine ocr.Engine,
	policy RetryPolicy,
	diagWriter *diag.Writer,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		jobs:      jobs,
		receipts:  receipts,
		merchants: merchants,
		blobs:     blobs,
		engine:    engine,
		policy:    policy,
		diag:      diagWriter,
		logger:    logger,
	}
}

// ProcessJob claims the job and runs it to completed or failed. A lost claim
// is not an error; some other worker owns the job.
func (p *Processor) ProcessJob(ctx context.Context, jobID uuid.UUID) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while processing job", "job_id", jobID, "panic", r)
			p.markFailed(jobID, fmt.Sprintf("panic: %v", r))
			err = fmt.Errorf("panic while processing job %s: %v", jobID, r)
		}
	}()

	claimed, err := p.jobs.Claim(ctx, jobID)
	if err != nil {
		return err
	}
	if !claimed {
		p.logger.Debug("job already claimed or terminal", "job_id", jobID)
		return nil
	}

	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return p.fail(jobID, "load job", err)
	}

	body, err := p.blobs.Load(ctx, job.StoredKey)
	if err != nil {
		return p.fail(jobID, "load source blob", err)
	}

	srcPath, cleanup, err := materialize(job.StoredKey, body)
	if err != nil {
		return p.fail(jobID, "materialize source", err)
	}
	defer cleanup()

	names, err := p.merchants.ListNames(ctx)
	if err != nil {
		// Matching degrades to heuristics only.
		p.logger.Warn("failed to load merchant names", "error", err)
	}
	ex := extract.New(names)

	fast, err := p.recognize(ctx, srcPath, constants.TierFast, ex)
	if err != nil {
		return p.fail(jobID, "fast recognition", err)
	}
	attempts := []ScoredResult{fast}
	final := fast

	if p.policy.ShouldEscalate(fast) {
		p.logger.Info("escalating to full tier", "job_id", jobID, "fast_confidence", fast.Confidence)
		telemetry.FullTierRuns.Inc()

		full, err := p.recognize(ctx, srcPath, constants.TierFull, ex)
		if err != nil {
			return p.fail(jobID, "full recognition", err)
		}
		attempts = append(attempts, full)
		final = p.policy.Best(fast, full)
	}

	needsReview := p.policy.NeedsReview(final)
	rec := &entity.Receipt{
		ID:             uuid.New(),
		Merchant:       final.Fields.Merchant,
		PurchaseDate:   final.Fields.PurchaseDate,
		TotalAmount:    final.Fields.Total,
		SalesTaxAmount: final.Fields.SalesTax,
		Confidence:     final.Confidence,
		NeedsReview:    needsReview,
		RawText:        final.RawText,
		StoredKey:      job.StoredKey,
	}
	if err := p.receipts.Create(ctx, rec); err != nil {
		return p.fail(jobID, "persist receipt", err)
	}
	if final.Fields.Merchant != nil {
		if err := p.merchants.Upsert(ctx, *final.Fields.Merchant); err != nil {
			p.logger.Warn("failed to record merchant", "merchant", *final.Fields.Merchant, "error", err)
		}
	}
	if err := p.jobs.MarkCompleted(ctx, jobID, rec.ID); err != nil {
		return err
	}

	telemetry.JobsCompleted.Inc()
	telemetry.Confidence.Observe(final.Confidence)
	telemetry.ProcessSeconds.Observe(time.Since(start).Seconds())
	if needsReview {
		telemetry.NeedsReview.Inc()
		p.writeBundle(job, attempts, final, body)
	}

	p.logger.Info("job completed",
		"job_id", jobID,
		"receipt_id", rec.ID,
		"tier", final.Tier,
		"confidence", final.Confidence,
		"needs_review", needsReview,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (p *Processor) recognize(ctx context.Context, path string, tier constants.Tier, ex *extract.Extractor) (ScoredResult, error) {
	res, err := p.engine.Recognize(ctx, path, tier)
	if err != nil {
		return ScoredResult{}, fmt.Errorf("%s tier: %w", tier, err)
	}
	fields := ex.Extract(res.Text)
	return ScoredResult{
		Tier:             tier,
		Method:           res.Method,
		RawText:          res.Text,
		EngineConfidence: res.EngineConfidence,
		Fields:           fields,
		Confidence:       extract.Score(res.EngineConfidence, p.policy.Threshold, fields),
	}, nil
}

// writeBundle emits a diagnostic bundle. Failures are logged and swallowed;
// a lost bundle never fails a completed job.
func (p *Processor) writeBundle(job *entity.UploadJob, attempts []ScoredResult, final ScoredResult, original []byte) {
	if p.diag == nil {
		return
	}
	report := diag.Report{
		JobID:            job.ID.String(),
		OriginalFilename: job.OriginalFilename,
		ContentType:      job.ContentType,
		GeneratedAt:      time.Now().UTC(),
		Threshold:        p.policy.Threshold,
		FinalTier:        string(final.Tier),
		FinalConfidence:  final.Confidence,
		Fields:           reportFields(final.Fields),
		RawText:          final.RawText,
	}
	for _, a := range attempts {
		report.Attempts = append(report.Attempts, diag.Attempt{
			Tier:             string(a.Tier),
			Method:           a.Method,
			EngineConfidence: a.EngineConfidence,
			Confidence:       a.Confidence,
			TextLength:       len(a.RawText),
		})
	}
	if err := p.diag.Write(report, original, filepath.Ext(job.StoredKey)); err != nil {
		p.logger.Error("failed to write diagnostic bundle", "job_id", job.ID, "error", err)
		return
	}
	telemetry.DiagBundles.Inc()
}

func reportFields(f extract.Fields) diag.ReportFields {
	out := diag.ReportFields{Merchant: f.Merchant}
	if f.PurchaseDate != nil {
		s := f.PurchaseDate.Format("2006-01-02")
		out.PurchaseDate = &s
	}
	if f.Total != nil {
		s := f.Total.String()
		out.TotalAmount = &s
	}
	if f.SalesTax != nil {
		s := f.SalesTax.String()
		out.SalesTaxAmount = &s
	}
	return out
}

func (p *Processor) fail(jobID uuid.UUID, stage string, cause error) error {
	p.markFailed(jobID, fmt.Sprintf("%s: %v", stage, cause))
	telemetry.JobsFailed.Inc()
	return fmt.Errorf("%s: %w", stage, cause)
}

// markFailed uses a fresh context: the job context may be the reason the
// job failed in the first place.
func (p *Processor) markFailed(jobID uuid.UUID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.jobs.MarkFailed(ctx, jobID, message); err != nil {
		p.logger.Error("failed to mark job failed", "job_id", jobID, "error", err)
	}
}

// materialize writes the blob to a temp file carrying the stored key's
// extension, which the engine uses to pick its strategy.
func materialize(storedKey string, body []byte) (string, func(), error) {
	dir, err := os.MkdirTemp("", "job-src-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	path := filepath.Join(dir, "source"+filepath.Ext(storedKey))
	if err := os.WriteFile(path, body, 0o600); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}
