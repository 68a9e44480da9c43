package ocr

import (
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// variant is one preprocessed rendition of the input image. The full tier
// tries several and keeps whichever recognizes best.
type variant struct {
	name string
	img  image.Image
}

// loadOriented decodes an image honoring its EXIF orientation, so rotated
// phone photos come out upright before recognition.
func loadOriented(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return imaging.Decode(f, imaging.AutoOrientation(true))
}

// fastVariant downscales large inputs so the quick pass stays quick. Smaller
// images pass through untouched.
func fastVariant(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return img
	}
	if w >= h {
		return imaging.Resize(img, maxSide, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxSide, imaging.Lanczos)
}

// fullVariants builds the renditions the thorough pass tries, in a fixed
// order so repeated runs recognize identically.
func fullVariants(img image.Image) []variant {
	gray := imaging.Grayscale(img)
	return []variant{
		{name: "original", img: img},
		{name: "gray-sharpened", img: imaging.Sharpen(gray, 1.0)},
	}
}

// writeTempPNG materializes a rendition for the external binary, which only
// reads files. Caller removes the directory.
func writeTempPNG(dir, name string, img image.Image) (string, error) {
	path := filepath.Join(dir, name+".png")
	if err := imaging.Save(img, path); err != nil {
		return "", err
	}
	return path, nil
}
