package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/ocreceipt/ocreceipt/constants"
	"github.com/ocreceipt/ocreceipt/internal/diag"
	"github.com/ocreceipt/ocreceipt/internal/entity"
	"github.com/ocreceipt/ocreceipt/internal/ocr"
	"github.com/ocreceipt/ocreceipt/internal/repository"
	"github.com/ocreceipt/ocreceipt/internal/storage"
)

const goodText = "Acme Hardware\nDate: 03/14/2024\nSubtotal $10.00\nHST $1.30\nTotal $11.30"

type scriptedEngine struct {
	mu      sync.Mutex
	results map[constants.Tier]ocr.RecognitionResult
	errs    map[constants.Tier]error
	panics  map[constants.Tier]bool
	calls   []constants.Tier
}

func (e *scriptedEngine) Recognize(_ context.Context, _ string, tier constants.Tier) (ocr.RecognitionResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, tier)
	e.mu.Unlock()
	if e.panics[tier] {
		panic("engine blew up")
	}
	if err := e.errs[tier]; err != nil {
		return ocr.RecognitionResult{}, err
	}
	return e.results[tier], nil
}

func (e *scriptedEngine) tiers() []constants.Tier {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]constants.Tier(nil), e.calls...)
}

type fixture struct {
	proc     *Processor
	jobs     repository.JobRepository
	receipts repository.ReceiptRepository
	blobs    storage.BlobStore
	diagDir  string
}

func newFixture(t *testing.T, engine ocr.Engine, policy RetryPolicy) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.Migrate(context.Background(), db))

	logger := slog.Default()
	jobs := repository.NewJobRepository(db, logger)
	receipts := repository.NewReceiptRepository(db, logger)
	merchants := repository.NewMerchantRepository(db, logger)
	blobs := storage.NewLocalStore(t.TempDir())
	diagDir := t.TempDir()

	proc := NewProcessor(jobs, receipts, merchants, blobs, engine,
		policy, diag.NewWriter(diagDir, logger), logger)
	return &fixture{proc: proc, jobs: jobs, receipts: receipts, blobs: blobs, diagDir: diagDir}
}

func (f *fixture) seedJob(t *testing.T) *entity.UploadJob {
	t.Helper()
	job := &entity.UploadJob{
		ID:               uuid.New(),
		OriginalFilename: "receipt.png",
		StoredKey:        "jobs/" + uuid.NewString() + "/source.png",
		ContentType:      "image/png",
	}
	require.NoError(t, f.blobs.Save(context.Background(), job.StoredKey, []byte("png-bytes"), "image/png"))
	require.NoError(t, f.jobs.Create(context.Background(), job))
	return job
}

func defaultPolicy() RetryPolicy { return RetryPolicy{Enabled: true, Threshold: 60} }

func TestProcessJobFastTierSufficient(t *testing.T) {
	engine := &scriptedEngine{results: map[constants.Tier]ocr.RecognitionResult{
		constants.TierFast: {Text: goodText, EngineConfidence: 90, Pages: 1, Method: ocr.MethodImageOCR},
	}}
	f := newFixture(t, engine, defaultPolicy())
	job := f.seedJob(t)

	require.NoError(t, f.proc.ProcessJob(context.Background(), job.ID))
	assert.Equal(t, []constants.Tier{constants.TierFast}, engine.tiers())

	got, err := f.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, got.Status)
	require.NotNil(t, got.ReceiptID)

	rec, err := f.receipts.GetByID(context.Background(), *got.ReceiptID)
	require.NoError(t, err)
	assert.False(t, rec.NeedsReview)
	assert.Greater(t, rec.Confidence, 60.0)
	require.NotNil(t, rec.TotalAmount)
	assert.True(t, rec.TotalAmount.Equal(decimal.RequireFromString("11.30")))
	require.NotNil(t, rec.Merchant)
	assert.Equal(t, "Acme Hardware", *rec.Merchant)
}

func TestProcessJobEscalatesAndFullWins(t *testing.T) {
	engine := &scriptedEngine{results: map[constants.Tier]ocr.RecognitionResult{
		constants.TierFast: {Text: "@@ garbled @@", EngineConfidence: 25, Pages: 1, Method: ocr.MethodImageOCR},
		constants.TierFull: {Text: goodText, EngineConfidence: 88, Pages: 1, Method: ocr.MethodImageOCR},
	}}
	f := newFixture(t, engine, defaultPolicy())
	job := f.seedJob(t)

	require.NoError(t, f.proc.ProcessJob(context.Background(), job.ID))
	assert.Equal(t, []constants.Tier{constants.TierFast, constants.TierFull}, engine.tiers())

	got, err := f.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, got.Status)

	rec, err := f.receipts.GetByID(context.Background(), *got.ReceiptID)
	require.NoError(t, err)
	assert.False(t, rec.NeedsReview)
	assert.Equal(t, goodText, rec.RawText)
}

func TestProcessJobBothTiersWeakFlagsReview(t *testing.T) {
	engine := &scriptedEngine{results: map[constants.Tier]ocr.RecognitionResult{
		constants.TierFast: {Text: "", EngineConfidence: 20, Pages: 1, Method: ocr.MethodImageOCR},
		constants.TierFull: {Text: "Total $5.00", EngineConfidence: 35, Pages: 1, Method: ocr.MethodImageOCR},
	}}
	f := newFixture(t, engine, defaultPolicy())
	job := f.seedJob(t)

	require.NoError(t, f.proc.ProcessJob(context.Background(), job.ID))

	got, err := f.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, got.Status)

	rec, err := f.receipts.GetByID(context.Background(), *got.ReceiptID)
	require.NoError(t, err)
	assert.True(t, rec.NeedsReview)

	// A bundle landed for the flagged job.
	_, err = os.Stat(filepath.Join(f.diagDir, job.ID.String(), "report.json"))
	assert.NoError(t, err)
	original, err := os.ReadFile(filepath.Join(f.diagDir, job.ID.String(), "original.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), original)
}

func TestProcessJobTieKeepsFastTier(t *testing.T) {
	same := ocr.RecognitionResult{Text: "Total $5.00", EngineConfidence: 35, Pages: 1, Method: ocr.MethodImageOCR}
	engine := &scriptedEngine{results: map[constants.Tier]ocr.RecognitionResult{
		constants.TierFast: same,
		constants.TierFull: same,
	}}
	f := newFixture(t, engine, defaultPolicy())
	job := f.seedJob(t)

	require.NoError(t, f.proc.ProcessJob(context.Background(), job.ID))

	data, err := os.ReadFile(filepath.Join(f.diagDir, job.ID.String(), "report.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"final_tier": "fast"`)
}

func TestProcessJobEmptyExtractionFlaggedAtLowThreshold(t *testing.T) {
	// Engine certainty alone must not clear a receipt that yielded no
	// fields, even when the configured threshold sits below the engine
	// share of the composite.
	noise := "#### @@@@\n$$ 1234 $$"
	engine := &scriptedEngine{results: map[constants.Tier]ocr.RecognitionResult{
		constants.TierFast: {Text: noise, EngineConfidence: 100, Pages: 1, Method: ocr.MethodImageOCR},
		constants.TierFull: {Text: noise, EngineConfidence: 100, Pages: 1, Method: ocr.MethodImageOCR},
	}}
	f := newFixture(t, engine, RetryPolicy{Enabled: true, Threshold: 50})
	job := f.seedJob(t)

	require.NoError(t, f.proc.ProcessJob(context.Background(), job.ID))

	got, err := f.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, got.Status)

	rec, err := f.receipts.GetByID(context.Background(), *got.ReceiptID)
	require.NoError(t, err)
	assert.Nil(t, rec.TotalAmount)
	assert.Less(t, rec.Confidence, 50.0)
	assert.True(t, rec.NeedsReview)
}

func TestProcessJobRetryDisabled(t *testing.T) {
	engine := &scriptedEngine{results: map[constants.Tier]ocr.RecognitionResult{
		constants.TierFast: {Text: "", EngineConfidence: 10, Pages: 1, Method: ocr.MethodImageOCR},
	}}
	f := newFixture(t, engine, RetryPolicy{Enabled: false, Threshold: 60})
	job := f.seedJob(t)

	require.NoError(t, f.proc.ProcessJob(context.Background(), job.ID))
	assert.Equal(t, []constants.Tier{constants.TierFast}, engine.tiers())

	got, err := f.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, got.Status)

	rec, err := f.receipts.GetByID(context.Background(), *got.ReceiptID)
	require.NoError(t, err)
	assert.True(t, rec.NeedsReview)
}

func TestProcessJobFastRecognitionFailure(t *testing.T) {
	engine := &scriptedEngine{errs: map[constants.Tier]error{
		constants.TierFast: errors.New("binary not found"),
	}}
	f := newFixture(t, engine, defaultPolicy())
	job := f.seedJob(t)

	assert.Error(t, f.proc.ProcessJob(context.Background(), job.ID))

	got, err := f.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "fast recognition")
	assert.Nil(t, got.ReceiptID)
}

func TestProcessJobFullRecognitionFailure(t *testing.T) {
	engine := &scriptedEngine{
		results: map[constants.Tier]ocr.RecognitionResult{
			constants.TierFast: {Text: "", EngineConfidence: 10, Pages: 1, Method: ocr.MethodImageOCR},
		},
		errs: map[constants.Tier]error{
			constants.TierFull: errors.New("timeout"),
		},
	}
	f := newFixture(t, engine, defaultPolicy())
	job := f.seedJob(t)

	assert.Error(t, f.proc.ProcessJob(context.Background(), job.ID))

	got, err := f.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	assert.Contains(t, *got.ErrorMessage, "full recognition")
}

func TestProcessJobLostClaimIsNoop(t *testing.T) {
	engine := &scriptedEngine{}
	f := newFixture(t, engine, defaultPolicy())
	job := f.seedJob(t)

	claimed, err := f.jobs.Claim(context.Background(), job.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, f.proc.ProcessJob(context.Background(), job.ID))
	assert.Empty(t, engine.tiers())
}

func TestProcessJobMissingBlobFails(t *testing.T) {
	engine := &scriptedEngine{}
	f := newFixture(t, engine, defaultPolicy())

	job := &entity.UploadJob{
		ID:               uuid.New(),
		OriginalFilename: "receipt.png",
		StoredKey:        "jobs/missing/source.png",
		ContentType:      "image/png",
	}
	require.NoError(t, f.jobs.Create(context.Background(), job))

	assert.Error(t, f.proc.ProcessJob(context.Background(), job.ID))

	got, err := f.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	assert.Contains(t, *got.ErrorMessage, "load source blob")
}

func TestProcessJobRecoversFromPanic(t *testing.T) {
	engine := &scriptedEngine{panics: map[constants.Tier]bool{constants.TierFast: true}}
	f := newFixture(t, engine, defaultPolicy())
	job := f.seedJob(t)

	assert.Error(t, f.proc.ProcessJob(context.Background(), job.ID))

	got, err := f.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	assert.Contains(t, *got.ErrorMessage, "panic")
}

func TestProcessJobSurvivesBrokenDiagDir(t *testing.T) {
	engine := &scriptedEngine{results: map[constants.Tier]ocr.RecognitionResult{
		constants.TierFast: {Text: "", EngineConfidence: 10, Pages: 1, Method: ocr.MethodImageOCR},
		constants.TierFull: {Text: "", EngineConfidence: 12, Pages: 1, Method: ocr.MethodImageOCR},
	}}
	f := newFixture(t, engine, defaultPolicy())
	job := f.seedJob(t)

	// Replace the bundle dir with a file so every write fails.
	blocked := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))
	f.proc.diag = diag.NewWriter(blocked, slog.Default())

	require.NoError(t, f.proc.ProcessJob(context.Background(), job.ID))

	got, err := f.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, got.Status)
}
