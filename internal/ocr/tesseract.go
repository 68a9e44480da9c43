package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ocreceipt/ocreceipt/constants"
)

// Page segmentation modes the engine uses. 6 assumes one uniform block of
// text, 4 assumes a single column of variable sizes; receipts are usually
// one or the other.
const (
	psmColumns      = 4
	psmUniformBlock = 6
)

var fullPSMs = []int{psmUniformBlock, psmColumns}

type Config struct {
	Tesseract   string // binary name or absolute path; empty means "tesseract"
	Pdftoppm    string // empty means "pdftoppm"
	Lang        string // default "eng"
	TessdataDir string
	DPI         int // rasterization DPI for scanned PDFs, default 300
	MaxPages    int // page cap for PDFs, 0 = no limit
	FastMaxSide int // fast-tier downscale bound in pixels, 0 = no downscale
}

// TesseractEngine shells out to tesseract (and pdftoppm for scanned PDFs).
type TesseractEngine struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTesseractEngine(cfg Config, logger *slog.Logger) *TesseractEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &TesseractEngine{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// Recognize picks a strategy from the file extension.
func (e *TesseractEngine) Recognize(ctx context.Context, path string, tier constants.Tier) (RecognitionResult, error) {
	ext := constants.NormalizeExt(filepath.Ext(path))
	e.logger.Debug("starting recognition", "path", path, "tier", tier, "ext", ext)

	switch constants.MapExtToFormat(ext) {
	case constants.PDF:
		return e.recognizePDF(ctx, path, tier)
	case constants.IMAGE:
		return e.recognizeImage(ctx, path, tier)
	default:
		return RecognitionResult{}, fmt.Errorf("unsupported extension %q", ext)
	}
}

func (e *TesseractEngine) recognizeImage(ctx context.Context, path string, tier constants.Tier) (RecognitionResult, error) {
	img, err := loadOriented(path)
	if err != nil {
		return RecognitionResult{}, fmt.Errorf("decode image: %w", err)
	}

	if tier == constants.TierFull {
		res, err := e.bestVariantRead(ctx, img)
		if err != nil {
			return RecognitionResult{}, err
		}
		res.Pages = 1
		res.Method = MethodImageOCR
		return res, nil
	}

	tmpDir, err := os.MkdirTemp("", "ocr-fast-*")
	if err != nil {
		return RecognitionResult{}, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	rendition, err := writeTempPNG(tmpDir, "fast", fastVariant(img, e.cfg.FastMaxSide))
	if err != nil {
		return RecognitionResult{}, err
	}
	text, conf, err := e.recognizeFile(ctx, rendition, psmUniformBlock)
	if err != nil {
		return RecognitionResult{}, err
	}
	return RecognitionResult{Text: text, EngineConfidence: conf, Pages: 1, Method: MethodImageOCR}, nil
}

// bestVariantRead recognizes every rendition at every segmentation mode and
// keeps the read with the best blend of engine confidence and text quality.
func (e *TesseractEngine) bestVariantRead(ctx context.Context, img image.Image) (RecognitionResult, error) {
	tmpDir, err := os.MkdirTemp("", "ocr-full-*")
	if err != nil {
		return RecognitionResult{}, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	best := RecognitionResult{}
	bestScore := -1.0
	var lastErr error

	for _, v := range fullVariants(img) {
		rendition, err := writeTempPNG(tmpDir, v.name, v.img)
		if err != nil {
			lastErr = err
			continue
		}
		for _, psm := range fullPSMs {
			text, conf, err := e.recognizeFile(ctx, rendition, psm)
			if err != nil {
				lastErr = err
				continue
			}
			score := 0.6*conf + 40*textQuality(text)
			e.logger.Debug("variant read", "variant", v.name, "psm", psm, "confidence", conf, "score", score)
			if score > bestScore {
				bestScore = score
				best = RecognitionResult{Text: text, EngineConfidence: conf}
			}
		}
	}

	if bestScore < 0 {
		if lastErr == nil {
			lastErr = errors.New("no rendition produced a read")
		}
		return RecognitionResult{}, lastErr
	}
	return best, nil
}

// recognizeFile runs one text pass and one TSV pass over a rendition.
func (e *TesseractEngine) recognizeFile(ctx context.Context, path string, psm int) (string, float64, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, e.tesseractArgs(path, psm, false)...)
	if err != nil {
		return "", 0, fmt.Errorf("tesseract: %w: %s", err, truncateOutput(string(errb), 512))
	}
	text := Normalize(string(out))

	conf, err := e.tsvConfidence(ctx, path, psm)
	if err != nil {
		// A failed confidence pass downgrades to the text heuristic rather
		// than failing the read.
		e.logger.Warn("tsv confidence unavailable", "path", path, "error", err)
		conf = 100 * textQuality(text)
	}
	return text, conf, nil
}

func (e *TesseractEngine) tesseractArgs(path string, psm int, tsv bool) []string {
	args := []string{path, "stdout", "-l", e.cfg.Lang, "--psm", strconv.Itoa(psm)}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	if tsv {
		args = append(args, "tsv")
	}
	return args
}

// tsvConfidence reruns the rendition in TSV mode and averages the per-word
// conf column, yielding 0..100.
func (e *TesseractEngine) tsvConfidence(ctx context.Context, path string, psm int) (float64, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, e.tesseractArgs(path, psm, true)...)
	if err != nil {
		return 0, fmt.Errorf("tesseract tsv: %w: %s", err, truncateOutput(string(errb), 512))
	}

	var sum, n float64
	for i, line := range strings.Split(string(out), "\n") {
		if i == 0 || line == "" {
			continue // header
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 12 {
			continue
		}
		// level page block par line word left top width height conf text
		confStr := cols[10]
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, errors.New("tsv output held no scored words")
	}
	return sum / n, nil
}

var (
	reQualityDate     = regexp.MustCompile(`\b20\d{2}\b|\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)
	reQualityCurrency = regexp.MustCompile(`\b(usd|eur|gbp|cad|aud)\b|[$£€]`)
	reQualityAmount   = regexp.MustCompile(`\b\d{1,3}(,\d{3})*\.\d{2}\b`)
)

// textQuality estimates 0..1 how receipt-like a read is. Used to break ties
// between renditions and as a fallback when TSV confidence is unavailable.
func textQuality(txt string) float64 {
	low := strings.ToLower(txt)
	score := 0.2
	if reQualityDate.MatchString(low) {
		score += 0.2
	}
	if reQualityCurrency.MatchString(low) {
		score += 0.15
	}
	if reQualityAmount.MatchString(low) {
		score += 0.15
	}
	if len(txt) > 120 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
