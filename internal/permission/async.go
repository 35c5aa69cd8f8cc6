package permission

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cjeanneret/camplay/internal/debug"
)

// ErrNoPendingRequest is returned by Answer when nobody is waiting.
var ErrNoPendingRequest = errors.New("no permission request pending")

// AsyncRequester turns a request into a prompt event and waits for a
// separate Answer call, e.g. a browser dialog posting its result back.
type AsyncRequester struct {
	// OnPrompt is called when a request starts waiting.
	OnPrompt func(reason string)
	// Timeout bounds the wait for an answer; an unanswered prompt is denied.
	// 0 waits until ctx is done.
	Timeout time.Duration

	mu      sync.Mutex
	pending chan bool
}

// NewAsyncRequester creates a requester that notifies onPrompt.
func NewAsyncRequester(onPrompt func(reason string)) *AsyncRequester {
	return &AsyncRequester{OnPrompt: onPrompt}
}

func (a *AsyncRequester) Request(ctx context.Context, reason string) (bool, error) {
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	ch := make(chan bool, 1)
	a.mu.Lock()
	a.pending = ch
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		if a.pending == ch {
			a.pending = nil
		}
		a.mu.Unlock()
	}()

	if a.OnPrompt != nil {
		a.OnPrompt(reason)
	}

	select {
	case granted := <-ch:
		return granted, nil
	case <-ctx.Done():
		debug.Live("Permission prompt not answered: %v", ctx.Err())
		return false, ErrNoAnswer
	}
}

// Pending reports whether a request is waiting for an answer.
func (a *AsyncRequester) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending != nil
}

// Answer delivers the user's decision to the waiting request.
func (a *AsyncRequester) Answer(granted bool) error {
	a.mu.Lock()
	ch := a.pending
	a.pending = nil
	a.mu.Unlock()
	if ch == nil {
		return ErrNoPendingRequest
	}
	ch <- granted
	return nil
}
