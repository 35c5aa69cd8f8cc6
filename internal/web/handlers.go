package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cjeanneret/camplay/internal/display"
	"github.com/cjeanneret/camplay/internal/logic/capture"
	"github.com/cjeanneret/camplay/internal/permission"
)

const (
	maxBodyBytes    = 1 << 20
	maxScreenPx     = 16384
	captureCooldown = 5 * time.Second
)

// CaptureRequest is the body of POST /capture. A zero size means "use the
// configured display".
type CaptureRequest struct {
	ScreenWidth  int `json:"screen_width"`
	ScreenHeight int `json:"screen_height"`
}

// Target returns the requested screen metrics.
func (r CaptureRequest) Target() display.Metrics {
	return display.Metrics{WidthPx: r.ScreenWidth, HeightPx: r.ScreenHeight}
}

// PermissionAnswer is the body of POST /permission.
type PermissionAnswer struct {
	Granted bool `json:"granted"`
}

// CaptureFunc runs one capture for the given screen.
// It is called from the POST /capture handler in a goroutine.
type CaptureFunc func(ctx context.Context, target display.Metrics) error

// FormConfig holds the display defaults shown by the UI (from config).
type FormConfig struct {
	ScreenWidth  int `json:"screen_width"`
	ScreenHeight int `json:"screen_height"`
}

// Deps holds the collaborators of the HTTP handlers.
type Deps struct {
	Broadcaster  *StatusBroadcaster
	Capture      CaptureFunc
	Permission   *permission.AsyncRequester // nil: POST /permission returns 503
	Photos       *PhotoView
	State        func() string
	Busy         func() bool // a capture is in flight, e.g. waiting on a permission prompt
	FormDefaults FormConfig
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Deps
	runningMu sync.Mutex
	running   bool
	limiter   *rate.Limiter
	baseCtx   context.Context
	staticFS  fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If deps.Capture is nil, POST /capture will return 503 Service Unavailable.
func NewHandlers(deps Deps, staticFS fs.FS) *Handlers {
	if deps.Broadcaster == nil {
		deps.Broadcaster = NewStatusBroadcaster()
	}
	if deps.Photos == nil {
		deps.Photos = NewPhotoView(deps.Broadcaster)
	}
	return &Handlers{
		Deps:     deps,
		limiter:  rate.NewLimiter(rate.Every(captureCooldown), 1),
		baseCtx:  context.Background(),
		staticFS: staticFS,
	}
}

// ValidateCaptureRequest checks the requested screen size.
// Both zero means "use default"; otherwise both must be 1..16384.
func ValidateCaptureRequest(r CaptureRequest) error {
	if r.ScreenWidth == 0 && r.ScreenHeight == 0 {
		return nil
	}
	if r.ScreenWidth <= 0 || r.ScreenWidth > maxScreenPx {
		return fmt.Errorf("screen_width must be between 1 and %d", maxScreenPx)
	}
	if r.ScreenHeight <= 0 || r.ScreenHeight > maxScreenPx {
		return fmt.Errorf("screen_height must be between 1 and %d", maxScreenPx)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HandleConfig returns the display defaults (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.FormDefaults)
}

func (h *Handlers) busy() bool {
	return h.Busy != nil && h.Busy()
}

// HandleState returns the orchestrator state, whether a capture is in
// flight and the pending permission flag.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	state := "unknown"
	if h.State != nil {
		state = h.State()
	}
	pending := h.Permission != nil && h.Permission.Pending()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":              state,
		"busy":               h.busy(),
		"permission_pending": pending,
	})
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleCapture handles POST /capture to start a capture.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CaptureRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateCaptureRequest(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.Capture == nil {
		http.Error(w, "capture not configured", http.StatusServiceUnavailable)
		return
	}

	h.runningMu.Lock()
	if h.running || h.busy() {
		h.runningMu.Unlock()
		http.Error(w, "capture already in progress", http.StatusConflict)
		return
	}
	if !h.limiter.Allow() {
		h.runningMu.Unlock()
		w.Header().Set("Retry-After", strconv.Itoa(int(captureCooldown.Seconds())))
		http.Error(w, "too many captures, wait a moment", http.StatusTooManyRequests)
		return
	}
	h.running = true
	h.runningMu.Unlock()

	// Run in goroutine; clear running when done
	go func() {
		defer func() {
			h.runningMu.Lock()
			h.running = false
			h.runningMu.Unlock()
		}()

		err := h.Capture(h.baseCtx, req.Target())
		switch {
		case err == nil:
			h.Broadcaster.Broadcast(LevelInfo, "Photo ready")
		case errors.Is(err, capture.ErrCancelled):
			h.Broadcaster.Broadcast(LevelInfo, "Capture cancelled")
		default:
			h.Broadcaster.Broadcast(LevelError, "Capture failed: "+err.Error())
			log.Printf("capture failed: %v", err)
		}
		if h.State != nil {
			h.Broadcaster.Broadcast(LevelState, h.State())
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// HandlePermission handles POST /permission with the user's answer to a prompt.
func (h *Handlers) HandlePermission(w http.ResponseWriter, r *http.Request) {
	if h.Permission == nil {
		http.Error(w, "permission prompts not configured", http.StatusServiceUnavailable)
		return
	}
	var ans PermissionAnswer
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&ans); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := h.Permission.Answer(ans.Granted); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "answered"})
}

// HandlePhoto serves the photo currently displayed.
func (h *Handlers) HandlePhoto(w http.ResponseWriter, r *http.Request) {
	data, meta, ok := h.Photos.Latest()
	if !ok {
		http.Error(w, "no photo yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Photo-Version", strconv.Itoa(meta.Version))
	w.Header().Set("X-Scale-Factor", strconv.Itoa(meta.ScaleFactor))
	w.Write(data)
}

// HandlePhotoMeta returns metadata about the photo currently displayed.
func (h *Handlers) HandlePhotoMeta(w http.ResponseWriter, r *http.Request) {
	_, meta, ok := h.Photos.Latest()
	if !ok {
		http.Error(w, "no photo yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
