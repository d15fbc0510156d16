package notify

import (
	"fmt"
	log "log/slog"
	"os"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// Chime is a short mp3 played when the assistant wakes up. The file is
// decoded once and replayed from memory.
type Chime struct {
	buf *beep.Buffer
}

func NewChime(path string) (*Chime, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chime: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode chime: %w", err)
	}
	defer streamer.Close()

	buf := beep.NewBuffer(format)
	buf.Append(streamer)

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}

	return &Chime{buf: buf}, nil
}

// Play blocks until the chime finished.
func (c *Chime) Play() {
	if c == nil || c.buf.Len() == 0 {
		return
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(c.buf.Streamer(0, c.buf.Len()), beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn("Chime did not finish")
	}
}
