// Package imagefile holds the file-level operations of a capture: creating
// the temporary file the camera writes into, decoding it at a resolution
// that fits the screen, and removing it when the capture is abandoned.
package imagefile

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	// Decoders for the formats a camera program may produce
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/cjeanneret/camplay/internal/debug"
)

// Errors returned by this package; callers match them with errors.Is.
var (
	ErrFileCreation = errors.New("temporary file creation failed")
	ErrDecode       = errors.New("image decode failed")
)

const (
	// timestampLayout is yyyyMMdd_HHmmss.
	timestampLayout = "20060102_150405"
	filePrefix      = "JPEG_"
	fileSuffix      = ".jpg"

	// DefaultQuality is used when Resample is given a quality outside 1-100.
	DefaultQuality = 85

	// MaxPixels caps the size of an image we agree to decode (about 134 MP).
	MaxPixels = 1 << 27
)

// now is swapped in tests.
var now = time.Now

// DecodeOptions is the state of one downsampled decode.
type DecodeOptions struct {
	OriginalWidth  int
	OriginalHeight int
	TargetWidth    int
	TargetHeight   int
	ScaleFactor    int
}

// Photo is a captured image reduced to fit a target screen.
type Photo struct {
	Path    string
	Image   image.Image
	JPEG    []byte
	Options DecodeOptions
}

// Width returns the decoded width in pixels.
func (p *Photo) Width() int { return p.Image.Bounds().Dx() }

// Height returns the decoded height in pixels.
func (p *Photo) Height() int { return p.Image.Bounds().Dy() }

// CreateTemporaryFile creates an empty, uniquely named JPEG file in baseDir
// and returns its absolute path. baseDir is created if missing.
func CreateTemporaryFile(baseDir string) (string, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileCreation, err)
	}

	pattern := filePrefix + now().Format(timestampLayout) + "_*" + fileSuffix
	f, err := os.CreateTemp(baseDir, pattern)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileCreation, err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("%w: %v", ErrFileCreation, err)
	}

	abs, err := filepath.Abs(name)
	if err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("%w: %v", ErrFileCreation, err)
	}
	debug.Verbose("Created temporary image file %s", abs)
	return abs, nil
}

// ComputeScaleFactor returns the integer divisor to apply when decoding an
// originalWidth x originalHeight image for a targetWidth x targetHeight
// screen: floor(min(W/Tw, H/Th)), never less than 1.
func ComputeScaleFactor(originalWidth, originalHeight, targetWidth, targetHeight int) int {
	if targetWidth <= 0 || targetHeight <= 0 {
		return 1
	}
	scale := min(originalWidth/targetWidth, originalHeight/targetHeight)
	if scale < 1 {
		return 1
	}
	return scale
}

// DecodeBounds reads only the image header at path and returns its size.
// Images larger than MaxPixels are rejected before any pixel is decoded.
func DecodeBounds(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("%w: %s: zero-dimension image", ErrDecode, path)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return 0, 0, fmt.Errorf("%w: %s: %dx%d exceeds %d pixels", ErrDecode, path, cfg.Width, cfg.Height, MaxPixels)
	}
	return cfg.Width, cfg.Height, nil
}

// DecodeDownsampled decodes the image at path and returns a copy reduced by
// scaleFactor in each dimension. Every destination pixel samples one source
// pixel, so the result matches a sample-size decode.
func DecodeDownsampled(path string, scaleFactor int) (image.Image, error) {
	if scaleFactor < 1 {
		scaleFactor = 1
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}
	if scaleFactor == 1 {
		return src, nil
	}

	b := src.Bounds()
	w := max(b.Dx()/scaleFactor, 1)
	h := max(b.Dy()/scaleFactor, 1)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Rect, src, b, draw.Src, nil)
	return dst, nil
}

// Resample decodes the photo at path so that it fits a targetWidth x
// targetHeight screen and encodes the result as JPEG with the given quality.
func Resample(path string, targetWidth, targetHeight, quality int) (*Photo, error) {
	w, h, err := DecodeBounds(path)
	if err != nil {
		return nil, err
	}

	opts := DecodeOptions{
		OriginalWidth:  w,
		OriginalHeight: h,
		TargetWidth:    targetWidth,
		TargetHeight:   targetHeight,
		ScaleFactor:    ComputeScaleFactor(w, h, targetWidth, targetHeight),
	}
	debug.PrintStruct("Decode options", opts)

	img, err := DecodeDownsampled(path, opts.ScaleFactor)
	if err != nil {
		return nil, err
	}

	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("%w: encode preview: %v", ErrDecode, err)
	}

	return &Photo{
		Path:    path,
		Image:   img,
		JPEG:    buf.Bytes(),
		Options: opts,
	}, nil
}

// DeleteFile removes the file at path and reports whether it was removed.
// A missing file reports false.
func DeleteFile(path string) bool {
	if path == "" {
		return false
	}
	if err := os.Remove(path); err != nil {
		debug.Verbose("Delete %s failed: %v", path, err)
		return false
	}
	debug.Verbose("Deleted %s", path)
	return true
}
