package report

import (
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// jpegQuality is used when writing resized JPEG derivatives.
const jpegQuality = 85

// ImageOutcome tells which path NormalizeImage took.
type ImageOutcome int

const (
	// ImageMissing means the source does not exist. Path is empty.
	ImageMissing ImageOutcome = iota
	// ImageUnchanged means the source is narrow enough and is used as is.
	ImageUnchanged
	// ImageResized means a smaller derivative was written next to the source.
	ImageResized
	// ImageFallback means resizing failed and the source is used as is.
	ImageFallback
)

func (o ImageOutcome) String() string {
	switch o {
	case ImageMissing:
		return "missing"
	case ImageUnchanged:
		return "unchanged"
	case ImageResized:
		return "resized"
	case ImageFallback:
		return "fallback"
	}
	return fmt.Sprintf("ImageOutcome(%d)", int(o))
}

// NormalizedImage is the result of NormalizeImage.
type NormalizedImage struct {
	Path    string
	Outcome ImageOutcome
	Err     error // set for ImageFallback
}

// OK reports whether there is an image to use.
func (n NormalizedImage) OK() bool { return n.Path != "" }

// NormalizeImage downscales the image at path when it is wider than
// MaxImagePixels. The derivative keeps the aspect ratio and is saved as
// <name>_resized<ext> beside the original. Failures are logged and never
// returned as errors: the original path is kept instead.
func NormalizeImage(logger *slog.Logger, path string) NormalizedImage {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return NormalizedImage{Outcome: ImageMissing}
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return NormalizedImage{Outcome: ImageMissing}
	}

	resized, err := resizeImage(path, MaxImagePixels)
	if err != nil {
		logger.Warn("Image resize failed, using original.", "path", path, "error", err)
		return NormalizedImage{Path: path, Outcome: ImageFallback, Err: err}
	}
	if resized == "" {
		return NormalizedImage{Path: path, Outcome: ImageUnchanged}
	}
	logger.Info("Image resized.", "path", path, "resizedPath", resized)
	return NormalizedImage{Path: resized, Outcome: ImageResized}
}

// resizeImage writes a derivative no wider than maxWidth and returns its
// path, or "" when the source is already small enough.
func resizeImage(path string, maxWidth int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("could not open image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return "", fmt.Errorf("could not read image header: %w", err)
	}
	if cfg.Width <= maxWidth {
		return "", nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	src, format, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("could not decode image: %w", err)
	}

	b := src.Bounds()
	ratio := float64(maxWidth) / float64(b.Dx())
	w, h := maxWidth, int(math.Round(float64(b.Dy())*ratio))
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	ext := filepath.Ext(path)
	out := strings.TrimSuffix(path, ext) + "_resized" + ext
	if err := writeImage(out, dst, format); err != nil {
		_ = os.Remove(out)
		return "", err
	}
	return out, nil
}

func writeImage(path string, img image.Image, format string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create derivative: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	switch format {
	case "jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality})
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(f, img)
	case "gif":
		err = gif.Encode(f, img, nil)
	default:
		err = fmt.Errorf("unsupported image format %q", format)
	}
	if err != nil {
		return fmt.Errorf("could not encode derivative: %w", err)
	}
	return nil
}
