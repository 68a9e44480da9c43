package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocreceipt/ocreceipt/constants"
)

// fakeRunner scripts the external binaries. TSV invocations are told apart
// by their trailing "tsv" argument.
type fakeRunner struct {
	text    string
	tsv     string
	err     error
	calls   int
	lastCmd string
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.calls++
	r.lastCmd = name
	if r.err != nil {
		return nil, []byte("boom"), r.err
	}
	if len(args) > 0 && args[len(args)-1] == "tsv" {
		return []byte(r.tsv), nil, nil
	}
	return []byte(r.text), nil, nil
}

func tsvFixture(confs ...int) string {
	var b strings.Builder
	b.WriteString("level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n")
	for i, c := range confs {
		fmt.Fprintf(&b, "5\t1\t1\t1\t1\t%d\t0\t0\t10\t10\t%d\tword%d\n", i+1, c, i)
	}
	return b.String()
}

func testImagePath(t *testing.T) string {
	t.Helper()
	img := imaging.New(64, 64, color.White)
	path := filepath.Join(t.TempDir(), "receipt.png")
	require.NoError(t, imaging.Save(img, path))
	return path
}

func newTestEngine(r Runner) *TesseractEngine {
	e := NewTesseractEngine(Config{FastMaxSide: 32, MaxPages: 2}, nil)
	e.runner = r
	return e
}

func TestRecognizeUnsupportedExtension(t *testing.T) {
	e := newTestEngine(&fakeRunner{})
	_, err := e.Recognize(context.Background(), "/tmp/receipt.docx", constants.TierFast)
	assert.Error(t, err)
}

func TestRecognizeFastImage(t *testing.T) {
	r := &fakeRunner{text: "TOTAL $12.34\n", tsv: tsvFixture(90, 80, 70)}
	e := newTestEngine(r)

	res, err := e.Recognize(context.Background(), testImagePath(t), constants.TierFast)
	require.NoError(t, err)

	assert.Equal(t, "TOTAL $12.34", res.Text)
	assert.InDelta(t, 80.0, res.EngineConfidence, 0.001)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, MethodImageOCR, res.Method)
	// one text pass plus one TSV pass
	assert.Equal(t, 2, r.calls)
}

func TestRecognizeFullImageTriesVariants(t *testing.T) {
	r := &fakeRunner{text: "TOTAL $12.34\n", tsv: tsvFixture(75)}
	e := newTestEngine(r)

	res, err := e.Recognize(context.Background(), testImagePath(t), constants.TierFull)
	require.NoError(t, err)

	assert.Equal(t, MethodImageOCR, res.Method)
	assert.InDelta(t, 75.0, res.EngineConfidence, 0.001)
	// two renditions times two segmentation modes, text and TSV each
	assert.Equal(t, 8, r.calls)
}

func TestRecognizeImageEngineFailure(t *testing.T) {
	r := &fakeRunner{err: errors.New("exit status 1")}
	e := newTestEngine(r)

	_, err := e.Recognize(context.Background(), testImagePath(t), constants.TierFast)
	assert.Error(t, err)
}

func TestTSVConfidenceSkipsUnscoredRows(t *testing.T) {
	tsv := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"2\t1\t1\t0\t0\t0\t0\t0\t10\t10\t-1\t\n" +
		"5\t1\t1\t1\t1\t1\t0\t0\t10\t10\t60\thello\n" +
		"5\t1\t1\t1\t1\t2\t0\t0\t10\t10\t100\tworld\n"
	r := &fakeRunner{tsv: tsv}
	e := newTestEngine(r)

	conf, err := e.tsvConfidence(context.Background(), "x.png", psmUniformBlock)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, conf, 0.001)
}

func TestTSVConfidenceEmptyOutput(t *testing.T) {
	r := &fakeRunner{tsv: "level\tpage_num\n"}
	e := newTestEngine(r)

	_, err := e.tsvConfidence(context.Background(), "x.png", psmUniformBlock)
	assert.Error(t, err)
}

func TestNormalizeCollapsesNoise(t *testing.T) {
	in := "ACME  HARDWARE\r\n-----\r\n\n\n\nTOTAL\t$12.34  \n"
	out := Normalize(in)
	assert.Equal(t, "ACME HARDWARE\n\nTOTAL $12.34", out)
}

func TestTextQualityOrdersReads(t *testing.T) {
	garbage := textQuality("@@##!!")
	receipt := textQuality("ACME HARDWARE\n03/14/2024\nTOTAL $1,234.56 usd paid by card, thank you for shopping with us today")
	assert.Greater(t, receipt, garbage)
	assert.LessOrEqual(t, receipt, 1.0)
}

func TestFastVariantDownscalesLargeImages(t *testing.T) {
	img := imaging.New(200, 100, color.White)

	small := fastVariant(img, 50)
	assert.Equal(t, 50, small.Bounds().Dx())

	same := fastVariant(img, 400)
	assert.Equal(t, image.Rect(0, 0, 200, 100), same.Bounds())
}
