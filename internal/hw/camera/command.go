package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cjeanneret/camplay/internal/debug"
)

// OutputPlaceholder is replaced with the destination path in command arguments.
const OutputPlaceholder = "{output}"

const waitDelay = 500 * time.Millisecond

// CommandCamera delegates the shot to an external still-capture program
// (libcamera-still, fswebcam, raspistill, ...).
//
// Outcome rules:
// - program missing from PATH: ErrUnavailable
// - exit 0 and a non-empty file: Success
// - exit 0 and an empty file, CancelExitCode, or ctx cancelled: Cancelled
// - any other failure: error with the program's stderr
type CommandCamera struct {
	Command        string
	Args           []string
	CancelExitCode int           // 0 = none
	Timeout        time.Duration // 0 = no limit

	lookPath func(string) (string, error)
}

// NewCommandCamera creates a camera backed by an external program.
func NewCommandCamera(command string, args []string, cancelExitCode int, timeout time.Duration) *CommandCamera {
	return &CommandCamera{
		Command:        command,
		Args:           args,
		CancelExitCode: cancelExitCode,
		Timeout:        timeout,
		lookPath:       exec.LookPath,
	}
}

// Available checks that the capture program can be resolved.
func (c *CommandCamera) Available() error {
	lookPath := c.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if _, err := lookPath(c.Command); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, c.Command, err)
	}
	return nil
}

// expandArgs substitutes dest into the configured arguments.
func (c *CommandCamera) expandArgs(dest string) []string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = strings.ReplaceAll(a, OutputPlaceholder, dest)
	}
	return args
}

// Capture runs the capture program and waits for it to exit.
func (c *CommandCamera) Capture(ctx context.Context, dest string) (Result, error) {
	if err := c.Available(); err != nil {
		return Result{}, err
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := c.expandArgs(dest)
	debug.Live("Camera: running %s %s", c.Command, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, c.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// Children of the program may keep stderr open after it is killed.
	cmd.WaitDelay = waitDelay
	err := cmd.Run()

	if ctx.Err() != nil {
		debug.Live("Camera: capture cancelled (%v)", ctx.Err())
		return Result{Status: Cancelled}, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && c.CancelExitCode != 0 && exitErr.ExitCode() == c.CancelExitCode {
			debug.Live("Camera: program reported cancellation (exit %d)", exitErr.ExitCode())
			return Result{Status: Cancelled}, nil
		}
		return Result{}, fmt.Errorf("camera command %s failed: %w: %s", c.Command, err, strings.TrimSpace(stderr.String()))
	}

	info, err := os.Stat(dest)
	if err != nil || info.Size() == 0 {
		debug.Live("Camera: no photo written to %s", dest)
		return Result{Status: Cancelled}, nil
	}

	debug.Verbose("Camera: wrote %d bytes to %s", info.Size(), dest)
	return Result{Status: Success, Path: dest}, nil
}
