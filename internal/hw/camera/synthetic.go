package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"

	"github.com/cjeanneret/camplay/internal/debug"
)

// SyntheticCamera writes a generated test pattern instead of taking a photo.
// Used for development on a PC or for testing, like the mock GPIO driver.
type SyntheticCamera struct {
	Width  int
	Height int
	Cancel bool // report every capture as cancelled
}

// NewSyntheticCamera creates a synthetic camera producing width x height photos.
func NewSyntheticCamera(width, height int, cancel bool) *SyntheticCamera {
	return &SyntheticCamera{Width: width, Height: height, Cancel: cancel}
}

func (s *SyntheticCamera) Available() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: synthetic size %dx%d", ErrUnavailable, s.Width, s.Height)
	}
	return nil
}

// Capture encodes a gradient JPEG into dest.
func (s *SyntheticCamera) Capture(ctx context.Context, dest string) (Result, error) {
	if err := s.Available(); err != nil {
		return Result{}, err
	}
	if s.Cancel {
		debug.Live("Camera: synthetic capture cancelled")
		return Result{Status: Cancelled}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{Status: Cancelled}, nil
	}

	img := image.NewYCbCr(image.Rect(0, 0, s.Width, s.Height), image.YCbCrSubsampleRatio420)
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			yy, cb, cr := color.RGBToYCbCr(uint8(x*255/s.Width), uint8(y*255/s.Height), 96)
			img.Y[img.YOffset(x, y)] = yy
			off := img.COffset(x, y)
			img.Cb[off] = cb
			img.Cr[off] = cr
		}
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return Result{}, fmt.Errorf("open destination: %w", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		f.Close()
		return Result{}, fmt.Errorf("encode synthetic photo: %w", err)
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("close destination: %w", err)
	}

	debug.Live("Camera: synthetic %dx%d photo written to %s", s.Width, s.Height, dest)
	return Result{Status: Success, Path: dest}, nil
}
