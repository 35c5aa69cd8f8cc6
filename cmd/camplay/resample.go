package main

import (
	"github.com/spf13/cobra"

	"github.com/cjeanneret/camplay/internal/debug"
	"github.com/cjeanneret/camplay/internal/imagefile"
)

// newResampleCmd downsamples an existing image for the configured display,
// the same way a fresh capture is.
func newResampleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resample <image>",
		Short: "Downsample an existing image for the display",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			debug.Section("Resample")
			photo, err := imagefile.Resample(args[0], cfg.Display.WidthPx, cfg.Display.HeightPx, cfg.Display.JPEGQuality)
			if err != nil {
				return err
			}
			d := &fileDisplayer{out: opts.out, w: cmd.OutOrStdout()}
			return d.Display(cmd.Context(), photo)
		},
	}
}
