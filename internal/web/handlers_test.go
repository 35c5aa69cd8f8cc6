package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cjeanneret/camplay/internal/display"
	"github.com/cjeanneret/camplay/internal/logic/capture"
	"github.com/cjeanneret/camplay/internal/permission"
)

// ---------- ValidateCaptureRequest ----------

func TestValidateCaptureRequest_Valid(t *testing.T) {
	cases := []struct {
		name string
		r    CaptureRequest
	}{
		{"default", CaptureRequest{0, 0}},
		{"phone", CaptureRequest{1080, 1920}},
		{"min_boundary", CaptureRequest{1, 1}},
		{"max_boundary", CaptureRequest{16384, 16384}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateCaptureRequest(tc.r); err != nil {
				t.Errorf("expected valid, got: %v", err)
			}
		})
	}
}

func TestValidateCaptureRequest_Invalid(t *testing.T) {
	cases := []struct {
		name string
		r    CaptureRequest
	}{
		{"width_only", CaptureRequest{1080, 0}},
		{"height_only", CaptureRequest{0, 1920}},
		{"negative_width", CaptureRequest{-1, 1920}},
		{"negative_height", CaptureRequest{1080, -5}},
		{"too_wide", CaptureRequest{16385, 1920}},
		{"too_tall", CaptureRequest{1080, 16385}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateCaptureRequest(tc.r); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

// ---------- Handler helpers ----------

func newTestHandlers(captureFn CaptureFunc) *Handlers {
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>test</html>")},
	}
	return NewHandlers(Deps{
		Broadcaster:  NewStatusBroadcaster(),
		Capture:      captureFn,
		State:        func() string { return "idle" },
		FormDefaults: FormConfig{ScreenWidth: 1080, ScreenHeight: 1920},
	}, staticFS)
}

func noopCapture(_ context.Context, _ display.Metrics) error {
	return nil
}

func validRequestJSON() []byte {
	data, _ := json.Marshal(CaptureRequest{1080, 1920})
	return data
}

func postCapture(h *Handlers, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/capture", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleCapture(w, req)
	return w
}

// ---------- HandleCapture ----------

func TestHandleCapture_ValidPost(t *testing.T) {
	got := make(chan display.Metrics, 1)
	h := newTestHandlers(func(_ context.Context, m display.Metrics) error {
		got <- m
		return nil
	})
	w := postCapture(h, validRequestJSON())

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "started" {
		t.Errorf("response status = %q, want \"started\"", resp["status"])
	}

	select {
	case m := <-got:
		if m != (display.Metrics{WidthPx: 1080, HeightPx: 1920}) {
			t.Errorf("target = %v, want 1080x1920", m)
		}
	case <-time.After(time.Second):
		t.Fatal("capture was not started")
	}
}

func TestHandleCapture_GetMethodNotAllowed(t *testing.T) {
	h := newTestHandlers(noopCapture)
	req := httptest.NewRequest(http.MethodGet, "/capture", nil)
	w := httptest.NewRecorder()

	h.HandleCapture(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleCapture_InvalidJSON(t *testing.T) {
	h := newTestHandlers(noopCapture)
	if w := postCapture(h, []byte("not json")); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleCapture_InvalidRequest(t *testing.T) {
	h := newTestHandlers(noopCapture)
	data, _ := json.Marshal(CaptureRequest{1080, 0})
	if w := postCapture(h, data); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleCapture_OversizedBody(t *testing.T) {
	h := newTestHandlers(noopCapture)
	big := []byte(`{"screen_width":` + strings.Repeat(" ", 2<<20) + `1}`)
	if w := postCapture(h, big); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d (oversized body)", w.Code, http.StatusBadRequest)
	}
}

func TestHandleCapture_NilCapture(t *testing.T) {
	h := newTestHandlers(nil)
	if w := postCapture(h, validRequestJSON()); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleCapture_ConcurrentCapture(t *testing.T) {
	started := make(chan struct{})
	blocking := make(chan struct{})
	slowCapture := func(_ context.Context, _ display.Metrics) error {
		close(started)
		<-blocking
		return nil
	}
	h := newTestHandlers(slowCapture)

	if w := postCapture(h, validRequestJSON()); w.Code != http.StatusAccepted {
		t.Fatalf("first request: status = %d, want %d", w.Code, http.StatusAccepted)
	}
	<-started

	if w := postCapture(h, validRequestJSON()); w.Code != http.StatusConflict {
		t.Errorf("concurrent request: status = %d, want %d", w.Code, http.StatusConflict)
	}

	close(blocking)
	time.Sleep(100 * time.Millisecond)
}

func TestHandleCapture_RateLimiting(t *testing.T) {
	done := make(chan struct{}, 1)
	h := newTestHandlers(func(context.Context, display.Metrics) error {
		done <- struct{}{}
		return nil
	})

	if w := postCapture(h, validRequestJSON()); w.Code != http.StatusAccepted {
		t.Fatalf("first request: status = %d, want %d", w.Code, http.StatusAccepted)
	}
	<-done
	time.Sleep(50 * time.Millisecond) // let the running flag clear

	w := postCapture(h, validRequestJSON())
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("rate-limited request: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func subscribeLevels(t *testing.T, h *Handlers) <-chan StatusEvent {
	t.Helper()
	ch, unsub := h.Broadcaster.Subscribe()
	t.Cleanup(unsub)
	out := make(chan StatusEvent, 16)
	go func() {
		for msg := range ch {
			var evt StatusEvent
			if json.Unmarshal([]byte(msg), &evt) == nil {
				out <- evt
			}
		}
	}()
	return out
}

func waitForLevel(t *testing.T, events <-chan StatusEvent, level string) StatusEvent {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case evt := <-events:
			if evt.Level == level {
				return evt
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %q event", level)
		}
	}
}

func TestHandleCapture_BroadcastsOutcome(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		level string
		msg   string
	}{
		{"success", nil, LevelInfo, "Photo ready"},
		{"cancelled", capture.ErrCancelled, LevelInfo, "Capture cancelled"},
		{"failed", capture.ErrDecode, LevelError, "Capture failed: image decode failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandlers(func(context.Context, display.Metrics) error { return tc.err })
			events := subscribeLevels(t, h)

			if w := postCapture(h, validRequestJSON()); w.Code != http.StatusAccepted {
				t.Fatalf("status = %d", w.Code)
			}
			evt := waitForLevel(t, events, tc.level)
			if evt.Msg != tc.msg {
				t.Errorf("msg = %q, want %q", evt.Msg, tc.msg)
			}
			if st := waitForLevel(t, events, LevelState); st.Msg != "idle" {
				t.Errorf("state event = %q, want idle", st.Msg)
			}
		})
	}
}

// ---------- HandlePermission ----------

func postPermission(h *Handlers, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/permission", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.HandlePermission(w, req)
	return w
}

func TestHandlePermission_NotConfigured(t *testing.T) {
	h := newTestHandlers(noopCapture)
	if w := postPermission(h, `{"granted":true}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestHandlePermission_NoPendingRequest(t *testing.T) {
	h := newTestHandlers(noopCapture)
	h.Permission = permission.NewAsyncRequester(nil)
	if w := postPermission(h, `{"granted":true}`); w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestHandlePermission_InvalidJSON(t *testing.T) {
	h := newTestHandlers(noopCapture)
	h.Permission = permission.NewAsyncRequester(nil)
	if w := postPermission(h, `{`); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandlePermission_AnswersPendingRequest(t *testing.T) {
	h := newTestHandlers(noopCapture)
	prompted := make(chan struct{})
	h.Permission = permission.NewAsyncRequester(func(string) { close(prompted) })

	result := make(chan bool, 1)
	go func() {
		ok, _ := h.Permission.Request(context.Background(), "pictures directory will be created")
		result <- ok
	}()
	<-prompted

	if w := postPermission(h, `{"granted":true}`); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	select {
	case ok := <-result:
		if !ok {
			t.Error("expected grant")
		}
	case <-time.After(time.Second):
		t.Fatal("request not answered")
	}
}

// ---------- HandlePhoto ----------

func TestHandlePhoto_NotFound(t *testing.T) {
	h := newTestHandlers(noopCapture)
	for _, fn := range []http.HandlerFunc{h.HandlePhoto, h.HandlePhotoMeta} {
		w := httptest.NewRecorder()
		fn(w, httptest.NewRequest(http.MethodGet, "/photo", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	}
}

func TestHandlePhoto_ServesLatest(t *testing.T) {
	h := newTestHandlers(noopCapture)
	h.Photos.Display(context.Background(), testPhoto(100, 75, 4))

	w := httptest.NewRecorder()
	h.HandlePhoto(w, httptest.NewRequest(http.MethodGet, "/photo", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Header().Get("X-Scale-Factor") != "4" {
		t.Errorf("X-Scale-Factor = %q, want 4", w.Header().Get("X-Scale-Factor"))
	}
	if !bytes.Equal(w.Body.Bytes(), []byte{0xFF, 0xD8, 0xFF, 0xD9}) {
		t.Errorf("body = %x", w.Body.Bytes())
	}

	w = httptest.NewRecorder()
	h.HandlePhotoMeta(w, httptest.NewRequest(http.MethodGet, "/photo/meta", nil))
	var meta PhotoMeta
	if err := json.NewDecoder(w.Body).Decode(&meta); err != nil {
		t.Fatal(err)
	}
	if meta.Width != 100 || meta.ScaleFactor != 4 {
		t.Errorf("meta = %+v", meta)
	}
}

// ---------- HandleConfig / HandleState ----------

func TestHandleConfig(t *testing.T) {
	h := newTestHandlers(noopCapture)
	w := httptest.NewRecorder()
	h.HandleConfig(w, httptest.NewRequest(http.MethodGet, "/config", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var fc FormConfig
	if err := json.NewDecoder(w.Body).Decode(&fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fc.ScreenWidth != 1080 || fc.ScreenHeight != 1920 {
		t.Errorf("config = %+v, want 1080x1920", fc)
	}
}

func TestHandleState(t *testing.T) {
	h := newTestHandlers(noopCapture)
	w := httptest.NewRecorder()
	h.HandleState(w, httptest.NewRequest(http.MethodGet, "/state", nil))

	var resp struct {
		State             string `json:"state"`
		PermissionPending bool   `json:"permission_pending"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.State != "idle" || resp.PermissionPending {
		t.Errorf("state = %+v", resp)
	}
}

func TestHandleState_ReportsBusyCapture(t *testing.T) {
	h := newTestHandlers(noopCapture)
	h.Busy = func() bool { return true }
	h.Permission = permission.NewAsyncRequester(nil)

	w := httptest.NewRecorder()
	h.HandleState(w, httptest.NewRequest(http.MethodGet, "/state", nil))

	var resp struct {
		State string `json:"state"`
		Busy  bool   `json:"busy"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Busy {
		t.Errorf("state = %+v, want busy", resp)
	}
}

func TestHandleCapture_BusyOrchestrator(t *testing.T) {
	called := make(chan struct{}, 1)
	h := newTestHandlers(func(context.Context, display.Metrics) error {
		called <- struct{}{}
		return nil
	})
	h.Busy = func() bool { return true }

	if w := postCapture(h, validRequestJSON()); w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	select {
	case <-called:
		t.Error("capture should not start while busy")
	case <-time.After(50 * time.Millisecond):
	}
}

// ---------- ServeIndex ----------

func TestServeIndex(t *testing.T) {
	h := newTestHandlers(noopCapture)
	w := httptest.NewRecorder()
	h.ServeIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
	if !strings.Contains(w.Body.String(), "<html>") {
		t.Error("body should contain HTML content")
	}
}

func TestServeIndex_Missing(t *testing.T) {
	h := NewHandlers(Deps{}, fstest.MapFS{})
	w := httptest.NewRecorder()
	h.ServeIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ---------- Server routes ----------

func TestServer_MuxRoutes(t *testing.T) {
	srv := NewServer(":0", Deps{Capture: noopCapture, State: func() string { return "idle" }})
	mux := srv.Mux()

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/static/app.js", http.StatusOK},
		{http.MethodGet, "/config", http.StatusOK},
		{http.MethodGet, "/state", http.StatusOK},
		{http.MethodGet, "/photo", http.StatusNotFound},
		{http.MethodGet, "/capture", http.StatusMethodNotAllowed},
		{http.MethodPost, "/permission", http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != tc.want {
			t.Errorf("%s %s: status = %d, want %d", tc.method, tc.path, w.Code, tc.want)
		}
	}
}
