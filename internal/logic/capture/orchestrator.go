package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/camplay/internal/debug"
	"github.com/cjeanneret/camplay/internal/display"
	"github.com/cjeanneret/camplay/internal/hw/camera"
	"github.com/cjeanneret/camplay/internal/imagefile"
	"github.com/cjeanneret/camplay/internal/permission"
)

// State is the orchestrator's position in the capture flow.
type State int

const (
	Idle State = iota
	AwaitingCapture
	Displaying
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingCapture:
		return "awaiting_capture"
	case Displaying:
		return "displaying"
	default:
		return "unknown"
	}
}

// Notifier shows a short transient message to the user.
type Notifier interface {
	Notify(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

func (f NotifierFunc) Notify(msg string) { f(msg) }

// Displayer renders a resampled photo.
type Displayer interface {
	Display(ctx context.Context, photo *imagefile.Photo) error
}

// DisplayerFunc adapts a function to Displayer.
type DisplayerFunc func(ctx context.Context, photo *imagefile.Photo) error

func (f DisplayerFunc) Display(ctx context.Context, photo *imagefile.Photo) error { return f(ctx, photo) }

// Session is the context of one in-flight capture. It owns the temporary
// file until the capture is displayed or abandoned.
type Session struct {
	ID        string
	Path      string
	Target    display.Metrics
	StartedAt time.Time
}

// Deps holds the collaborators of an Orchestrator.
type Deps struct {
	Camera      camera.Camera
	Checker     permission.Checker
	Requester   permission.Requester
	Metrics     display.Provider
	Notifier    Notifier
	Displayer   Displayer
	PicturesDir string
	Quality     int // JPEG quality of the displayed photo
}

// Orchestrator drives the capture flow:
// Idle -> AwaitingCapture -> Displaying on success,
// AwaitingCapture -> Idle on cancellation or failure.
// Only one capture may be in flight.
type Orchestrator struct {
	deps Deps

	mu      sync.Mutex
	busy    bool
	state   State
	session *Session
	current *imagefile.Photo
}

// NewOrchestrator creates an orchestrator in the Idle state.
func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.Notifier == nil {
		deps.Notifier = NotifierFunc(debug.Notice)
	}
	if deps.Checker == nil {
		deps.Checker = permission.NewStorageChecker(deps.PicturesDir)
	}
	if deps.Metrics == nil {
		deps.Metrics = display.Static{}
	}
	return &Orchestrator{deps: deps}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Session returns a copy of the in-flight session, or nil.
func (o *Orchestrator) Session() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	s := *o.session
	return &s
}

// Current returns the photo being displayed, or nil.
func (o *Orchestrator) Current() *imagefile.Photo {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

type outcome struct {
	res camera.Result
	err error
}

// TakePicture runs one capture. target overrides the display metrics when
// valid (e.g. the browser's screen size).
//
// It returns the displayed photo, or ErrCancelled when the camera reports
// cancellation or ctx is done. Every error leaves the orchestrator in Idle.
// After a ctx cancellation the orchestrator stays busy until the camera
// returns.
func (o *Orchestrator) TakePicture(ctx context.Context, target display.Metrics) (*imagefile.Photo, error) {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	o.busy = true
	o.mu.Unlock()
	release := true
	defer func() {
		if release {
			o.release()
		}
	}()

	debug.Step(1, "Checking storage permission")
	granted, err := permission.Ensure(ctx, o.deps.Checker, o.deps.Requester)
	if err != nil {
		debug.Error(fmt.Errorf("permission request: %w", err))
	}
	if !granted {
		o.deps.Notifier.Notify(NoticePermissionDenied)
		o.transition(Idle, nil)
		return nil, ErrPermissionDenied
	}

	debug.Step(2, "Resolving camera")
	if err := o.deps.Camera.Available(); err != nil {
		o.deps.Notifier.Notify(NoticeCameraNotFound)
		o.transition(Idle, nil)
		return nil, err
	}

	debug.Step(3, "Creating temporary image file")
	path, err := imagefile.CreateTemporaryFile(o.deps.PicturesDir)
	if err != nil {
		debug.Error(err)
		o.deps.Notifier.Notify(NoticeFileCreation)
		o.transition(Idle, nil)
		return nil, err
	}

	session := &Session{
		ID:        uuid.NewString(),
		Path:      path,
		Target:    display.Resolve(o.deps.Metrics, target),
		StartedAt: time.Now(),
	}
	o.transition(AwaitingCapture, session)

	debug.Step(4, "Waiting for the camera")
	results := make(chan outcome, 1)
	go func() {
		res, err := o.deps.Camera.Capture(ctx, session.Path)
		results <- outcome{res: res, err: err}
	}()

	var out outcome
	select {
	case out = <-results:
	case <-ctx.Done():
		// The camera may still be writing into the file: keep the
		// orchestrator busy until it returns, then drop the file.
		debug.Live("Capture %s: cancelled, waiting for the camera to stop", session.ID)
		o.transition(Idle, nil)
		release = false
		go func() {
			<-results
			o.discard(session)
			o.release()
		}()
		return nil, ErrCancelled
	}

	switch {
	case out.err != nil:
		o.discard(session)
		o.deps.Notifier.Notify(NoticeCameraFailed)
		o.transition(Idle, nil)
		return nil, out.err
	case out.res.Status == camera.Cancelled || ctx.Err() != nil:
		o.discard(session)
		o.transition(Idle, nil)
		return nil, ErrCancelled
	}

	debug.Step(5, "Resampling photo for "+session.Target.String())
	photo, err := imagefile.Resample(session.Path, session.Target.WidthPx, session.Target.HeightPx, o.deps.Quality)
	if err != nil {
		debug.Error(err)
		o.deps.Notifier.Notify(NoticeDecode)
		o.discard(session)
		o.transition(Idle, nil)
		return nil, err
	}

	if o.deps.Displayer != nil {
		if err := o.deps.Displayer.Display(ctx, photo); err != nil {
			o.transition(Idle, nil)
			return nil, fmt.Errorf("display photo: %w", err)
		}
	}
	debug.Photo(photo.Path, photo.Width(), photo.Height(), photo.Options.ScaleFactor)

	o.mu.Lock()
	o.current = photo
	o.mu.Unlock()
	o.transition(Displaying, nil)
	return photo, nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.busy = false
	o.mu.Unlock()
}

// Busy reports whether a capture is in flight, including one waiting for
// the storage permission.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// discard deletes the session's temporary file. A failed deletion is
// reported to the user but does not stop the return to Idle.
func (o *Orchestrator) discard(s *Session) {
	if !imagefile.DeleteFile(s.Path) {
		debug.Error(fmt.Errorf("%w: %s", ErrDeletion, s.Path))
		o.deps.Notifier.Notify(NoticeFileDeletion)
	}
}

func (o *Orchestrator) transition(to State, s *Session) {
	o.mu.Lock()
	from := o.state
	id := ""
	if o.session != nil {
		id = o.session.ID
	}
	if s != nil {
		id = s.ID
	}
	o.state = to
	o.session = s
	o.mu.Unlock()
	debug.Transition(id, from.String(), to.String())
}
