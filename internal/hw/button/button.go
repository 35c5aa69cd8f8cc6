package button

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/camplay/internal/debug"
	"github.com/cjeanneret/camplay/internal/hw/gpio"
)

// Watcher turns a momentary push button into capture triggers.
// The button connects the pin to GND, so a press reads LOW
// (internal pull-up keeps it HIGH when released).
type Watcher struct {
	gpio     gpio.Driver
	pin      int
	poll     time.Duration
	debounce time.Duration
	now      func() time.Time
}

// NewWatcher configures pin as a pulled-up input.
// poll is the sampling interval; debounce is the minimum time between two presses.
func NewWatcher(g gpio.Driver, pin int, poll, debounce time.Duration) (*Watcher, error) {
	if err := g.SetupPin(pin, gpio.InputPullUp); err != nil {
		return nil, fmt.Errorf("setup button pin %d: %w", pin, err)
	}
	if poll <= 0 {
		poll = 20 * time.Millisecond
	}
	return &Watcher{
		gpio:     g,
		pin:      pin,
		poll:     poll,
		debounce: debounce,
		now:      time.Now,
	}, nil
}

// Run samples the pin until ctx is cancelled and calls onPress on each
// accepted press (HIGH -> LOW edge).
func (w *Watcher) Run(ctx context.Context, onPress func()) error {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	last := gpio.High
	var lastPress time.Time
	debug.Info("Button: watching pin %d", w.pin)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		level, err := w.gpio.ReadPin(w.pin)
		if err != nil {
			return fmt.Errorf("read button pin %d: %w", w.pin, err)
		}
		pressed := last == gpio.High && level == gpio.Low
		last = level
		if !pressed {
			continue
		}

		t := w.now()
		if !lastPress.IsZero() && t.Sub(lastPress) < w.debounce {
			debug.Trace("Button: bounce ignored on pin %d", w.pin)
			continue
		}
		lastPress = t
		debug.Live("Button: pressed (pin %d)", w.pin)
		onPress()
	}
}
