package audio

import (
	"context"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

const SampleRate = 16000

type RecorderOptions struct {
	// FrameSize in samples; 320 is 20ms at 16kHz.
	FrameSize  int
	SilenceRMS float64
	// Silence after speech that ends an utterance.
	Silence time.Duration
	// MaxLength caps one recording, speech or not.
	MaxLength time.Duration
}

func (o *RecorderOptions) defaults() {
	if o.FrameSize <= 0 {
		o.FrameSize = 320
	}
	if o.SilenceRMS <= 0 {
		o.SilenceRMS = 0.015
	}
	if o.Silence <= 0 {
		o.Silence = 600 * time.Millisecond
	}
	if o.MaxLength <= 0 {
		o.MaxLength = 10 * time.Second
	}
}

type Recorder struct {
	opt RecorderOptions
}

func NewRecorder(opt RecorderOptions) *Recorder {
	opt.defaults()
	return &Recorder{opt: opt}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// Record captures one utterance from the default input device as mono 16kHz
// PCM. It returns once trailing silence follows speech, MaxLength elapses or
// ctx is done; in the last case whatever was captured is returned.
func (r *Recorder) Record(ctx context.Context) ([]float32, error) {
	buf := make([]float32, r.opt.FrameSize)
	out := make([]float32, 0, SampleRate*3)

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	var (
		speaking bool
		silent   int
		detector = NewSilenceDetector(r.opt)
	)

	maxFrames := int(r.opt.MaxLength.Seconds() * SampleRate / float64(r.opt.FrameSize))

	for i := 0; i < maxFrames; i++ {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, err
		}

		var done bool
		speaking, silent, done = detector.Step(FrameRMS(buf), speaking, silent)
		if speaking {
			out = append(out, buf...)
		}
		if done {
			break
		}
	}

	return out, nil
}

type SilenceDetector struct {
	threshold     float64
	silenceFrames int
}

func NewSilenceDetector(opt RecorderOptions) SilenceDetector {
	opt.defaults()
	frame := time.Duration(opt.FrameSize) * time.Second / SampleRate
	return SilenceDetector{
		threshold:     opt.SilenceRMS,
		silenceFrames: max(int(opt.Silence/frame), 1),
	}
}

// Step advances the detector by one frame. It reports whether speech has
// started, the count of quiet frames since the last loud one, and whether the
// utterance is over.
func (d SilenceDetector) Step(rms float64, speaking bool, silent int) (bool, int, bool) {
	if rms > d.threshold {
		return true, 0, false
	}
	if !speaking {
		return false, 0, false
	}
	silent++
	return true, silent, silent >= d.silenceFrames
}

func FrameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
