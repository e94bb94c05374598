package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// Spinner animates a one-line status on a terminal while something blocks.
type Spinner struct {
	out    io.Writer
	frames spinner.Spinner

	mu      sync.Mutex
	message string
	done    chan struct{}
	stopped sync.Once
}

// NewSpinner creates a spinner in the Globe style, for network waits.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		out:     os.Stdout,
		frames:  spinner.Globe,
		message: message,
		done:    make(chan struct{}),
	}
}

func (s *Spinner) Start() {
	go func() {
		ticker := time.NewTicker(s.frames.FPS)
		defer ticker.Stop()

		for i := 0; ; i++ {
			s.mu.Lock()
			select {
			case <-s.done:
				s.mu.Unlock()
				return
			default:
			}
			frame := SpinnerStyle.Render(s.frames.Frames[i%len(s.frames.Frames)])
			fmt.Fprintf(s.out, "\r%s %s", frame, s.message)
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// SetMessage replaces the text next to the spinner.
func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	s.stopped.Do(func() {
		close(s.done)
		s.mu.Lock()
		fmt.Fprint(s.out, "\r\033[K")
		s.mu.Unlock()
	})
}

func (s *Spinner) Success(message string) {
	s.Stop()
	fmt.Fprintf(s.out, "%s %s\n", SuccessStyle.Render(IconSuccess), message)
}

func (s *Spinner) Fail(message string) {
	s.Stop()
	fmt.Fprintf(s.out, "%s %s\n", ErrorStyle.Render(IconError), message)
}
