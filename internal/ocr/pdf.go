package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/ocreceipt/ocreceipt/constants"
)

// Digital text needs no recognition; only the extraction step can lose
// confidence from here.
const embeddedTextConfidence = 95

// Anything shorter is treated as a scan with a stray text layer.
const minEmbeddedTextLen = 32

func (e *TesseractEngine) recognizePDF(ctx context.Context, path string, tier constants.Tier) (RecognitionResult, error) {
	if text, pages, ok := embeddedText(path, e.cfg.MaxPages); ok {
		e.logger.Debug("pdf carries embedded text", "path", path, "pages", pages)
		return RecognitionResult{
			Text:             Normalize(text),
			EngineConfidence: embeddedTextConfidence,
			Pages:            pages,
			Method:           MethodPDFText,
		}, nil
	}
	return e.rasterizeAndRecognize(ctx, path, tier)
}

// embeddedText pulls the digital text layer, if any. The reader panics on
// malformed cross-reference tables, so treat a panic as "no text layer".
func embeddedText(path string, maxPages int) (text string, pages int, ok bool) {
	defer func() {
		if recover() != nil {
			text, pages, ok = "", 0, false
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, false
	}
	defer func() { _ = f.Close() }()

	n := r.NumPage()
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}

	var b strings.Builder
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		s, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(s)
	}

	text = b.String()
	if len(strings.TrimSpace(text)) < minEmbeddedTextLen {
		return "", 0, false
	}
	return text, n, true
}

// rasterizeAndRecognize renders pages to PNG with pdftoppm and recognizes
// each one at the requested tier.
func (e *TesseractEngine) rasterizeAndRecognize(ctx context.Context, path string, tier constants.Tier) (RecognitionResult, error) {
	tmpDir, err := os.MkdirTemp("", "ocr-pdf-*")
	if err != nil {
		return RecognitionResult{}, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	prefix := filepath.Join(tmpDir, "page")
	if _, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, "-r", strconv.Itoa(e.cfg.DPI), "-png", path, prefix); err != nil {
		return RecognitionResult{}, fmt.Errorf("pdftoppm: %w: %s", err, truncateOutput(string(errb), 512))
	}

	renders, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(renders)
	if e.cfg.MaxPages > 0 && len(renders) > e.cfg.MaxPages {
		renders = renders[:e.cfg.MaxPages]
	}
	if len(renders) == 0 {
		return RecognitionResult{}, errors.New("pdftoppm produced no pages")
	}

	var b strings.Builder
	var confSum float64
	for _, render := range renders {
		var text string
		var conf float64
		if tier == constants.TierFull {
			img, err := loadOriented(render)
			if err != nil {
				return RecognitionResult{}, fmt.Errorf("decode rendered page: %w", err)
			}
			res, err := e.bestVariantRead(ctx, img)
			if err != nil {
				return RecognitionResult{}, err
			}
			text, conf = res.Text, res.EngineConfidence
		} else {
			var err error
			text, conf, err = e.recognizeFile(ctx, render, psmUniformBlock)
			if err != nil {
				return RecognitionResult{}, err
			}
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(text)
		confSum += conf
	}

	return RecognitionResult{
		Text:             b.String(),
		EngineConfidence: confSum / float64(len(renders)),
		Pages:            len(renders),
		Method:           MethodPDFOCR,
	}, nil
}
