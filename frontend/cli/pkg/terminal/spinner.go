package terminal

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

type Spinner struct {
	frames   []string
	interval time.Duration
	message  string
	writer   io.Writer
	animate  bool
	active   bool
	mu       sync.Mutex
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewSpinner only animates when writer is a terminal. Otherwise the message
// is printed once so redirected output stays readable.
func NewSpinner(writer io.Writer, message string) *Spinner {
	return &Spinner{
		frames:   []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"},
		interval: 120 * time.Millisecond,
		message:  message,
		writer:   writer,
		animate:  IsTerminal(writer),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (s *Spinner) Start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.mu.Unlock()

	if !s.animate {
		fmt.Fprintf(s.writer, "%s\n", s.message)
		close(s.doneCh)
		return
	}

	go s.spin()
}

func (s *Spinner) Stop(completionMessage string) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	if s.animate {
		fmt.Fprintf(s.writer, "\r\033[K")
	}
	if completionMessage != "" {
		fmt.Fprintf(s.writer, "%s\n", completionMessage)
	}
}

func (s *Spinner) spin() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	frameIndex := 0

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			frame := s.frames[frameIndex]
			message := s.message
			s.mu.Unlock()

			fmt.Fprintf(s.writer, "\r%s %s", frame, message)
			frameIndex = (frameIndex + 1) % len(s.frames)
		}
	}
}

type SpinnerOptions struct {
	SuccessMsg string
	ErrorMsg   string
}

type SpinnerOption func(*SpinnerOptions)

func WithSuccessMsg(msg string) SpinnerOption {
	return func(o *SpinnerOptions) {
		o.SuccessMsg = msg
	}
}

func WithErrorMsg(msg string) SpinnerOption {
	return func(o *SpinnerOptions) {
		o.ErrorMsg = msg
	}
}

// SpinnerFunc shows a spinner while fn runs. Empty success or error messages
// clear the spinner line without printing anything.
func SpinnerFunc[T any](ctx context.Context, writer io.Writer, message string, fn func(ctx context.Context) (T, error), options ...SpinnerOption) (T, error) {
	opts := &SpinnerOptions{}
	for _, option := range options {
		option(opts)
	}

	spinner := NewSpinner(writer, message)
	spinner.Start()

	result, err := fn(ctx)

	switch {
	case err != nil && opts.ErrorMsg != "":
		spinner.Stop(fmt.Sprintf("%s %s", ErrorSymbol, opts.ErrorMsg))
	case err == nil && opts.SuccessMsg != "":
		spinner.Stop(fmt.Sprintf("%s %s", SuccessSymbol, opts.SuccessMsg))
	default:
		spinner.Stop("")
	}

	return result, err
}
