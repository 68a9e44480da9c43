package constants

import (
	"path/filepath"
	"strings"
)

// FileTypes holds the source kinds a job can carry.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
)

// AllowedExtensions holds the default allowed file extensions for uploads.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat maps a normalized extension to a source kind ("" = unsupported).
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "jpg", "jpeg", "png", "gif":
		return IMAGE
	default:
		return ""
	}
}

// AllowedContentTypes holds the content types intake accepts. The set is
// deliberately no wider than AllowedExtensions: a kind the recognition path
// cannot decode (webp, heic) must be rejected here, synchronously, not fail
// a job later.
var AllowedContentTypes = map[string]struct{}{
	"application/pdf": {},
	"image/png":       {},
	"image/jpeg":      {},
	"image/jpg":       {},
	"image/gif":       {},
}

// IsSupportedUpload decides, by content type or filename, whether a file may
// enter the pipeline. This check runs synchronously at intake, before any job
// exists.
func IsSupportedUpload(contentType, filename string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if _, ok := AllowedContentTypes[ct]; ok {
		return true
	}
	return MapExtToFormat(filepath.Ext(filename)) != ""
}

// IsPDF reports whether the stored file should take the PDF path.
func IsPDF(contentType, filename string) bool {
	if strings.EqualFold(strings.TrimSpace(contentType), "application/pdf") {
		return true
	}
	return MapExtToFormat(filepath.Ext(filename)) == PDF
}
