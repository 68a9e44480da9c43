package ocr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocreceipt/ocreceipt/constants"
)

type stubEngine struct {
	res   RecognitionResult
	err   error
	calls int
}

func (s *stubEngine) Recognize(context.Context, string, constants.Tier) (RecognitionResult, error) {
	s.calls++
	return s.res, s.err
}

func TestBreakerPassesThroughSuccess(t *testing.T) {
	inner := &stubEngine{res: RecognitionResult{Text: "ok", EngineConfidence: 88}}
	b := NewBreakerEngine(inner, nil)

	res, err := b.Recognize(context.Background(), "r.png", constants.TierFast)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, 1, inner.calls)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &stubEngine{err: errors.New("tesseract missing")}
	b := NewBreakerEngine(inner, nil)

	for i := 0; i < 5; i++ {
		_, err := b.Recognize(context.Background(), "r.png", constants.TierFast)
		assert.Error(t, err)
	}
	assert.Equal(t, 5, inner.calls)

	// Open circuit short-circuits without reaching the engine.
	_, err := b.Recognize(context.Background(), "r.png", constants.TierFast)
	assert.Error(t, err)
	assert.Equal(t, 5, inner.calls)
}
