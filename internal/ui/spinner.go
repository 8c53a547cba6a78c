// Package ui holds the terminal helpers of the cloudcheck CLI
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Spinner shows progress on a terminal while checks run. On anything that is
// not a terminal it stays silent so piped JSON output is not corrupted.
//
//	s := ui.NewSpinner(os.Stderr, "Checking compute...")
//	s.Start()
//	defer s.Stop()
type Spinner struct {
	mu       sync.Mutex
	msg      string
	frames   []string
	interval time.Duration
	out      io.Writer
	enabled  bool
	ansi     bool

	active bool
	stopCh chan struct{}
	doneCh chan struct{}
}

// SpinnerOption configures a Spinner
type SpinnerOption func(*Spinner)

// WithInterval sets the frame interval
func WithInterval(d time.Duration) SpinnerOption { return func(s *Spinner) { s.interval = d } }

// WithANSI forces escape sequences on or off
func WithANSI(enabled bool) SpinnerOption { return func(s *Spinner) { s.ansi = enabled } }

// WithEnabled overrides terminal detection
func WithEnabled(enabled bool) SpinnerOption { return func(s *Spinner) { s.enabled = enabled } }

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// NewSpinner returns a stopped spinner writing to out
func NewSpinner(out io.Writer, message string, opts ...SpinnerOption) *Spinner {
	tty := IsTerminal(out)
	s := &Spinner{
		msg:      message,
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		interval: 100 * time.Millisecond,
		out:      out,
		enabled:  tty,
		ansi:     tty,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !s.ansi {
		s.frames = []string{"-", "\\", "|", "/"}
	}
	return s
}

// Start begins animating. Calls on a running or disabled spinner do nothing.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active || !s.enabled {
		return
	}
	s.active = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	if s.ansi {
		fmt.Fprint(s.out, "\x1b[?25l")
	}
	go s.run(s.stopCh, s.doneCh)
}

func (s *Spinner) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	width := 0
	for i := 0; ; i++ {
		s.mu.Lock()
		line := s.frames[i%len(s.frames)] + " " + s.msg
		s.mu.Unlock()
		if s.ansi {
			fmt.Fprintf(s.out, "\r\x1b[2K\x1b[36m%s\x1b[0m", line)
		} else {
			fmt.Fprint(s.out, "\r"+line)
		}
		width = max(width, len(line))

		select {
		case <-stop:
			if s.ansi {
				fmt.Fprint(s.out, "\r\x1b[2K\x1b[?25h")
			} else {
				fmt.Fprint(s.out, "\r"+strings.Repeat(" ", width)+"\r")
			}
			return
		case <-ticker.C:
		}
	}
}

// Stop clears the spinner line and waits for the animation to end. It is
// safe to call on a stopped spinner and more than once.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()
	<-done
}

// SetMessage replaces the text shown next to the spinner
func (s *Spinner) SetMessage(m string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msg = m
}
