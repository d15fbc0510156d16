package view

import (
	"fmt"
	"io"
	"sync"
)

// Terminal prints the conversation as plain lines.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer
	// Interim transcripts are noisy; they are printed only when set.
	ShowInterim bool
}

func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

func (t *Terminal) Emit(e Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	switch e.Kind {
	case KindMessage:
		name := "dit"
		if e.Sender == User {
			name = "you"
		}
		_, err = fmt.Fprintf(t.out, "%s> %s\n", name, e.Content)
	case KindTyping:
		_, err = fmt.Fprintln(t.out, "dit> ...")
	case KindStatus:
		_, err = fmt.Fprintf(t.out, "[%s]\n", e.Content)
	case KindInterim:
		if t.ShowInterim && e.Content != "" {
			_, err = fmt.Fprintf(t.out, "   %s\n", e.Content)
		}
	}
	return err
}
