package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/cjeanneret/camplay/internal/hw/camera"
	"github.com/cjeanneret/camplay/internal/imagefile"
	"github.com/cjeanneret/camplay/internal/logic/capture"
)

const spinnerTick = 100 * time.Millisecond

// spinnerCamera shows a spinner on a terminal while the wrapped camera works.
type spinnerCamera struct {
	camera.Camera
	w io.Writer
}

// withSpinner wraps cam with a spinner when f is a terminal.
func withSpinner(cam camera.Camera, f *os.File) camera.Camera {
	if !term.IsTerminal(int(f.Fd())) {
		return cam
	}
	return &spinnerCamera{Camera: cam, w: f}
}

func (s *spinnerCamera) Capture(ctx context.Context, dest string) (camera.Result, error) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(s.w),
		progressbar.OptionSetDescription("Waiting for the camera"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		t := time.NewTicker(spinnerTick)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				bar.Add(1)
			}
		}
	}()

	res, err := s.Camera.Capture(ctx, dest)
	close(done)
	<-stopped
	bar.Finish()
	return res, err
}

// stderrNotifier prints user notices on w.
func stderrNotifier(w io.Writer) capture.NotifierFunc {
	return func(msg string) {
		fmt.Fprintf(w, "camplay: %s\n", msg)
	}
}

// fileDisplayer "shows" a photo in the terminal: it reports the decoded size
// and optionally writes the resampled JPEG to out.
type fileDisplayer struct {
	out string
	w   io.Writer
}

func (d *fileDisplayer) Display(_ context.Context, photo *imagefile.Photo) error {
	if d.out != "" {
		if err := os.WriteFile(d.out, photo.JPEG, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", d.out, err)
		}
	}
	opts := photo.Options
	fmt.Fprintf(d.w, "Photo %dx%d (1/%d of %dx%d) from %s\n",
		photo.Width(), photo.Height(), opts.ScaleFactor, opts.OriginalWidth, opts.OriginalHeight, photo.Path)
	if d.out != "" {
		fmt.Fprintf(d.w, "Preview written to %s\n", d.out)
	}
	return nil
}
