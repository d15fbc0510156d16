package audio

import (
	"context"
	"fmt"
	log "log/slog"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxVolume = 150

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

type sinkInput struct {
	ID      int
	Volume  int
	AppName string
}

type fadeStep struct {
	id   int
	from int
	to   int
}

// Pactl runs a pactl subcommand and returns its stdout.
type Pactl func(ctx context.Context, args ...string) ([]byte, error)

func execPactl(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "pactl", args...).Output()
}

type DuckOptions struct {
	// SelfNames are application.name values left untouched (our own player).
	SelfNames []string
	// Factor scales other streams while the assistant speaks.
	Factor float64
	// MinVolume is the floor, in percent, for ducked streams.
	MinVolume int
	Fade      time.Duration
	Pactl     Pactl
}

// Ducker fades other PulseAudio/PipeWire streams down while the assistant is
// speaking and restores them afterwards.
type Ducker struct {
	mu       sync.Mutex
	active   bool
	opt      DuckOptions
	original map[int]int
}

func NewDucker(opt DuckOptions) *Ducker {
	opt.MinVolume = min(max(opt.MinVolume, 0), maxVolume)
	if opt.Factor <= 0 || opt.Factor > 1 {
		opt.Factor = 0.3
	}
	if opt.Pactl == nil {
		opt.Pactl = execPactl
	}

	return &Ducker{
		opt:      opt,
		original: make(map[int]int),
	}
}

// Duck and Restore are shaped for speech.Options.BeforePlay/AfterPlay.
func (d *Ducker) Duck() {
	ctx, cancel := context.WithTimeout(context.Background(), d.opt.Fade+5*time.Second)
	defer cancel()
	if err := d.DuckOthers(ctx); err != nil {
		log.Warn("Failed to duck other streams", "err", err)
	}
}

func (d *Ducker) Restore() {
	ctx, cancel := context.WithTimeout(context.Background(), d.opt.Fade+5*time.Second)
	defer cancel()
	if err := d.UnduckOthers(ctx); err != nil {
		log.Warn("Failed to restore other streams", "err", err)
	}
}

func (d *Ducker) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *Ducker) DuckOthers(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := d.list(ctx)
	if err != nil {
		return err
	}

	d.original = make(map[int]int)

	var steps []fadeStep
	for _, s := range streams {
		if d.isSelf(s) {
			continue
		}

		to := math.Max(float64(s.Volume)*d.opt.Factor, float64(d.opt.MinVolume))
		to = math.Min(to, maxVolume)

		d.original[s.ID] = s.Volume
		steps = append(steps, fadeStep{id: s.ID, from: s.Volume, to: int(math.Round(to))})
	}

	if err := d.fade(ctx, steps); err != nil {
		return err
	}

	d.active = true
	return nil
}

func (d *Ducker) UnduckOthers(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	streams, err := d.list(ctx)
	if err != nil {
		return err
	}

	var steps []fadeStep
	for _, s := range streams {
		if d.isSelf(s) {
			continue
		}
		// streams that appeared after ducking keep their volume
		orig, ok := d.original[s.ID]
		if !ok {
			continue
		}
		steps = append(steps, fadeStep{id: s.ID, from: s.Volume, to: orig})
	}

	if err := d.fade(ctx, steps); err != nil {
		return err
	}

	d.original = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) isSelf(s sinkInput) bool {
	for _, name := range d.opt.SelfNames {
		if s.AppName == name {
			return true
		}
	}
	return false
}

func (d *Ducker) fade(ctx context.Context, steps []fadeStep) error {
	if len(steps) == 0 {
		return nil
	}

	if d.opt.Fade <= 0 {
		for _, s := range steps {
			if err := d.setVolume(ctx, s.id, s.to); err != nil {
				return err
			}
		}
		return nil
	}

	const minStep = 10 * time.Millisecond

	n := max(int(d.opt.Fade/minStep), 1)
	stepDur := d.opt.Fade / time.Duration(n)

	for i := 0; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frac := float64(i) / float64(n)
		for _, s := range steps {
			v := float64(s.from) + float64(s.to-s.from)*frac
			if err := d.setVolume(ctx, s.id, int(math.Round(v))); err != nil {
				return err
			}
		}

		if i < n {
			time.Sleep(stepDur)
		}
	}

	return nil
}

func (d *Ducker) list(ctx context.Context) ([]sinkInput, error) {
	out, err := d.opt.Pactl(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func (d *Ducker) setVolume(ctx context.Context, id, percent int) error {
	percent = min(max(percent, 0), maxVolume)
	_, err := d.opt.Pactl(ctx, "set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", percent))
	if err != nil {
		return fmt.Errorf("set volume id=%d: %w", id, err)
	}
	return nil
}

// parseSinkInputs reads the human readable `pactl list sink-inputs` output.
func parseSinkInputs(text string) []sinkInput {
	blocks := strings.Split(text, "Sink Input #")
	if len(blocks) <= 1 {
		return nil
	}

	var res []sinkInput
	for _, block := range blocks[1:] {
		head, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil {
			continue
		}

		s := sinkInput{ID: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && s.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					s.Volume, _ = strconv.Atoi(m[1])
				}
			}

			if rest, ok := strings.CutPrefix(line, "application.name = "); ok && s.AppName == "" {
				s.AppName = strings.Trim(rest, `"`)
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}

	return res
}
