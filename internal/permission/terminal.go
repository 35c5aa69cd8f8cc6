package permission

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// TerminalRequester asks on a terminal with a y/N prompt.
// When In is not a terminal, requests are denied without prompting.
type TerminalRequester struct {
	In  io.Reader
	Out io.Writer

	isTerminal func() bool

	// One reader goroutine per requester; a cancelled prompt leaves it
	// waiting for the next line instead of leaking a reader per call.
	once  sync.Once
	lines chan string
}

// NewTerminalRequester prompts on stdin/stderr.
func NewTerminalRequester() *TerminalRequester {
	return &TerminalRequester{
		In:         os.Stdin,
		Out:        os.Stderr,
		isTerminal: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
	}
}

func (r *TerminalRequester) readLines() {
	sc := bufio.NewScanner(r.In)
	for sc.Scan() {
		r.lines <- sc.Text()
	}
	close(r.lines)
}

func (r *TerminalRequester) Request(ctx context.Context, reason string) (bool, error) {
	if r.isTerminal != nil && !r.isTerminal() {
		return false, nil
	}
	r.once.Do(func() {
		r.lines = make(chan string)
		go r.readLines()
	})

	fmt.Fprintf(r.Out, "Allow camplay to save photos? (%s) [y/N]: ", reason)

	select {
	case <-ctx.Done():
		fmt.Fprintln(r.Out)
		return false, ErrNoAnswer
	case line, ok := <-r.lines:
		if !ok {
			return false, nil
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
