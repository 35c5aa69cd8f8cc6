package camera

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no program can service a capture request.
var ErrUnavailable = errors.New("no camera app available")

// Status is the outcome of a capture request.
type Status int

const (
	Success Status = iota
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is what the camera reports back once a capture finishes.
// Path is only set on Success.
type Result struct {
	Status Status
	Path   string
}

// Camera is the high-level interface used by the rest of the application.
// It represents an abstract still camera that saves a full-size photo
// into a file it is given, regardless of how it is driven.
type Camera interface {
	// Available reports whether a capture can be started at all.
	Available() error
	// Capture writes one photo to dest. A capture the user abandons is
	// reported as Cancelled with a nil error.
	Capture(ctx context.Context, dest string) (Result, error)
}
