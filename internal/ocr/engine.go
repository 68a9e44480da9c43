// Package ocr wraps external text recognition behind a tiered Engine. The
// fast tier is one cheap pass over a downscaled rendition; the full tier
// tries several preprocessed renditions and keeps the best read.
package ocr

import (
	"context"

	"github.com/ocreceipt/ocreceipt/constants"
)

// Recognition methods reported in results and diagnostic bundles.
const (
	MethodImageOCR = "image-ocr"
	MethodPDFText  = "pdf-text"
	MethodPDFOCR   = "pdf-ocr"
)

// RecognitionResult is one tier's read of a source file.
type RecognitionResult struct {
	Text             string
	EngineConfidence float64 // mean word confidence, 0..100
	Pages            int
	Method           string
}

// Engine recognizes text from a stored source file at the requested tier.
// Implementations must be safe for concurrent use by multiple workers.
type Engine interface {
	Recognize(ctx context.Context, path string, tier constants.Tier) (RecognitionResult, error)
}
