package ocr

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ocreceipt/ocreceipt/constants"
)

// BreakerEngine stops hammering the external binaries once they fail
// consistently, e.g. when tesseract is missing or its language data is
// broken. While open, jobs fail fast instead of each one timing out.
type BreakerEngine struct {
	inner Engine
	cb    *gobreaker.CircuitBreaker[RecognitionResult]
}

func NewBreakerEngine(inner Engine, logger *slog.Logger) *BreakerEngine {
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker[RecognitionResult](gobreaker.Settings{
		Name:        "recognition-engine",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("engine breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return &BreakerEngine{inner: inner, cb: cb}
}

func (b *BreakerEngine) Recognize(ctx context.Context, path string, tier constants.Tier) (RecognitionResult, error) {
	return b.cb.Execute(func() (RecognitionResult, error) {
		return b.inner.Recognize(ctx, path, tier)
	})
}
