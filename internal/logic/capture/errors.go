package capture

import (
	"errors"

	"github.com/cjeanneret/camplay/internal/hw/camera"
	"github.com/cjeanneret/camplay/internal/imagefile"
)

// Failures of a capture attempt. None of them is fatal: the orchestrator
// always returns to Idle and the next TakePicture starts fresh.
var (
	ErrFileCreation          = imagefile.ErrFileCreation
	ErrDecode                = imagefile.ErrDecode
	ErrCapabilityUnavailable = camera.ErrUnavailable
	ErrDeletion              = errors.New("temporary file deletion failed")
	ErrPermissionDenied      = errors.New("storage permission denied")
	ErrBusy                  = errors.New("capture already in progress")
	ErrCancelled             = errors.New("capture cancelled")
)

// User-visible notices (short, transient).
const (
	NoticePermissionDenied = "Permission denied"
	NoticeCameraNotFound   = "No camera app found"
	NoticeFileCreation     = "Could not create a file for the photo"
	NoticeFileDeletion     = "Error deleting the temporary photo file"
	NoticeDecode           = "Could not load the captured photo"
	NoticeCameraFailed     = "Camera failed"
)
