// Package permission models the host's storage-write permission: probing
// whether photos may be written, and asking the user when they may not.
package permission

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/cjeanneret/camplay/internal/debug"
)

// EnvStoragePermission overrides the storage probe ("granted", "denied", "prompt").
const EnvStoragePermission = "CAMPLAY_STORAGE_PERMISSION"

// Status enumerates coarse permission results.
type Status string

const (
	// StatusUnknown indicates no explicit signal about permission state.
	StatusUnknown Status = "unknown"
	// StatusGranted means photos can be written.
	StatusGranted Status = "granted"
	// StatusDenied indicates writing is refused and must not be retried silently.
	StatusDenied Status = "denied"
	// StatusPromptRequired means the user has to be asked first.
	StatusPromptRequired Status = "prompt"
	// StatusUnavailable reports that the storage location cannot be used at all.
	StatusUnavailable Status = "unavailable"
)

// ErrNoAnswer is returned by a Requester that gave up waiting for the user.
var ErrNoAnswer = errors.New("permission request was not answered")

// ProbeResult represents the coarse state for a permission surface.
type ProbeResult struct {
	Status  Status
	Message string
}

// Checker reports the current storage-write permission.
type Checker interface {
	Check() ProbeResult
}

// Requester asks the user for storage-write permission and reports the answer.
type Requester interface {
	Request(ctx context.Context, reason string) (bool, error)
}

// LookupEnvFunc exposes environment probing for testability.
type LookupEnvFunc func(string) (string, bool)

// StorageChecker probes write access to the pictures directory.
type StorageChecker struct {
	Dir    string
	Lookup LookupEnvFunc
}

// NewStorageChecker creates a checker for dir that honours EnvStoragePermission.
func NewStorageChecker(dir string) *StorageChecker {
	return &StorageChecker{Dir: dir, Lookup: os.LookupEnv}
}

// Check returns the storage permission for the pictures directory.
func (c *StorageChecker) Check() ProbeResult {
	lookup := c.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if value, ok := lookup(EnvStoragePermission); ok {
		return interpretPermissionFlag(value)
	}
	return probeDir(c.Dir)
}

func probeDir(dir string) ProbeResult {
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return ProbeResult{Status: StatusUnavailable, Message: dir + " is not a directory"}
	case err == nil:
		if writable(dir) {
			return ProbeResult{Status: StatusGranted, Message: "pictures directory is writable"}
		}
		return ProbeResult{Status: StatusDenied, Message: "pictures directory is not writable"}
	case errors.Is(err, os.ErrNotExist):
		// Creating the directory is the first write; ask before doing it.
		parent := nearestExisting(filepath.Dir(dir))
		if parent != "" && writable(parent) {
			return ProbeResult{Status: StatusPromptRequired, Message: "pictures directory will be created"}
		}
		return ProbeResult{Status: StatusDenied, Message: "pictures directory cannot be created"}
	default:
		return ProbeResult{Status: StatusUnknown, Message: err.Error()}
	}
}

func nearestExisting(dir string) string {
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func interpretPermissionFlag(value string) ProbeResult {
	normalised := strings.ToLower(strings.TrimSpace(value))
	switch normalised {
	case "granted", "allow", "allowed", "yes", "true":
		return ProbeResult{Status: StatusGranted, Message: "storage permission pre-authorised via env override"}
	case "denied", "no", "false", "blocked":
		return ProbeResult{Status: StatusDenied, Message: "storage permission denied via env override"}
	case "prompt", "ask":
		return ProbeResult{Status: StatusPromptRequired, Message: "storage permission will prompt"}
	case "unavailable", "unsupported":
		return ProbeResult{Status: StatusUnavailable, Message: "storage unavailable via env override"}
	default:
		return ProbeResult{Status: StatusUnknown, Message: "storage permission state unknown"}
	}
}

// Ensure returns true when writing is granted, asking requester when the
// checker cannot decide. Denied and unavailable states are final.
func Ensure(ctx context.Context, checker Checker, requester Requester) (bool, error) {
	res := checker.Check()
	debug.Verbose("Storage permission: %s (%s)", res.Status, res.Message)
	switch res.Status {
	case StatusGranted:
		return true, nil
	case StatusDenied, StatusUnavailable:
		return false, nil
	}
	if requester == nil {
		return false, nil
	}
	return requester.Request(ctx, res.Message)
}

// AutoRequester answers every request with a fixed value (e.g. --yes).
type AutoRequester bool

func (a AutoRequester) Request(context.Context, string) (bool, error) {
	return bool(a), nil
}
