// Package pipeline runs claimed jobs through recognition, extraction, and
// scoring, and persists the outcome.
package pipeline

import (
	"github.com/ocreceipt/ocreceipt/constants"
	"github.com/ocreceipt/ocreceipt/internal/extract"
)

// ScoredResult is one tier's recognition plus its extraction and composite
// confidence.
type ScoredResult struct {
	Tier             constants.Tier
	Method           string
	RawText          string
	EngineConfidence float64
	Fields           extract.Fields
	Confidence       float64
}

// RetryPolicy owns every decision made against the confidence threshold.
// The same threshold drives escalation to the full tier and the final
// needs_review flag.
type RetryPolicy struct {
	Enabled   bool
	Threshold float64
}

// ShouldEscalate reports whether the fast read is weak enough to warrant
// the full tier.
func (p RetryPolicy) ShouldEscalate(fast ScoredResult) bool {
	return p.Enabled && fast.Confidence < p.Threshold
}

// Best keeps the higher-confidence read. Ties keep the fast read, so the
// cheaper tier wins whenever the full pass bought nothing.
func (p RetryPolicy) Best(fast, full ScoredResult) ScoredResult {
	if full.Confidence > fast.Confidence {
		return full
	}
	return fast
}

// NeedsReview reports whether the final read still sits below the threshold.
func (p RetryPolicy) NeedsReview(final ScoredResult) bool {
	return final.Confidence < p.Threshold
}
