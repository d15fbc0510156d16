package speech

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeSynth plays utterances instantly unless gate is set, in which case
// every Speak waits for a value on gate or for cancellation.
type fakeSynth struct {
	mu      sync.Mutex
	spoken  []Utterance
	cancels int
	voices  []Voice
	gate    chan struct{}
	started chan string
}

func (f *fakeSynth) Speak(ctx context.Context, u Utterance) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, u)
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		started <- u.Text
	}
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeSynth) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

func (f *fakeSynth) Voices() []Voice {
	return f.voices
}

func (f *fakeSynth) Spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.spoken))
	for i, u := range f.spoken {
		out[i] = u.Text
	}
	return out
}

func waitDone(t *testing.T, s *Speaker) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("speaker did not finish")
	}
}

func TestSplit(t *testing.T) {
	require.Equal(t, []string{"Hello world.", "How are you?", "Fine!"}, Split("Hello world. How are you? Fine!"))
	require.Equal(t, []string{"Version 1.5 is out.", "Try it"}, Split("Version 1.5 is out.  Try it"))
	require.Equal(t, []string{"Wait...", "what?!"}, Split("Wait... what?!"))
	require.Equal(t, []string{"one line"}, Split("one line"))
	require.Empty(t, Split("   "))
}

func TestClean(t *testing.T) {
	in := "## Weather\n- Sunny\n* Warm\n1. Take a hat\n**Enjoy** `it`"
	require.Equal(t, "Weather\nSunny\nWarm\nTake a hat\nEnjoy it", Clean(in))
}

func TestSpeak_NoSynthesisForEmptyOrStop(t *testing.T) {
	synth := &fakeSynth{}
	s := NewSpeaker(synth, Options{})

	s.Speak("")
	s.Speak("   ")
	s.Speak("okay stop")
	s.Speak("Please wait while I check.")
	waitDone(t, s)

	require.Empty(t, synth.Spoken())
	require.Zero(t, synth.cancels)
}

func TestSpeak_FragmentsInOrder(t *testing.T) {
	synth := &fakeSynth{}
	idle := make(chan struct{}, 1)
	var fragments []string
	s := NewSpeaker(synth, Options{
		OnFragment: func(text string) { fragments = append(fragments, text) },
		OnIdle:     func() { idle <- struct{}{} },
	})

	s.Speak("Hello world. How are you? Fine!")
	waitDone(t, s)

	require.Equal(t, []string{"Hello world.", "How are you?", "Fine!"}, synth.Spoken())
	require.Equal(t, synth.Spoken(), fragments)
	select {
	case <-idle:
	default:
		t.Fatal("OnIdle not called")
	}
}

func TestInterrupt_SuppressesRemainingFragments(t *testing.T) {
	synth := &fakeSynth{
		gate:    make(chan struct{}),
		started: make(chan string, 3),
	}
	idleCalled := false
	s := NewSpeaker(synth, Options{OnIdle: func() { idleCalled = true }})

	s.Speak("Hello world. How are you? Fine!")
	require.Equal(t, "Hello world.", <-synth.started)

	s.Interrupt()
	waitDone(t, s)

	require.Equal(t, []string{"Hello world."}, synth.Spoken())
	require.True(t, s.Interrupted())
	require.False(t, idleCalled)
}

func TestSpeak_ResetsInterruption(t *testing.T) {
	synth := &fakeSynth{}
	s := NewSpeaker(synth, Options{})

	s.Interrupt()
	require.True(t, s.Interrupted())

	s.Speak("Yes, how can I help?")
	waitDone(t, s)

	require.False(t, s.Interrupted())
	require.Equal(t, []string{"Yes, how can I help?"}, synth.Spoken())
}

func TestSpeak_ReplacesCurrentQueue(t *testing.T) {
	synth := &fakeSynth{
		gate:    make(chan struct{}),
		started: make(chan string, 4),
	}
	s := NewSpeaker(synth, Options{})

	s.Speak("First one. First two.")
	require.Equal(t, "First one.", <-synth.started)

	s.Speak("Second.")
	require.Equal(t, "Second.", <-synth.started)
	close(synth.gate)
	waitDone(t, s)

	require.Equal(t, []string{"First one.", "Second."}, synth.Spoken())
}

func TestSpeak_VoiceAndLocale(t *testing.T) {
	synth := &fakeSynth{voices: []Voice{
		{Name: "Google US English", Lang: "en-US"},
		{Name: "Rishi", Lang: "en-IN"},
	}}
	s := NewSpeaker(synth, Options{Locale: func() string { return "hi-IN" }})

	s.Speak("Namaste.")
	waitDone(t, s)

	require.Len(t, synth.spoken, 1)
	require.Equal(t, &Voice{Name: "Rishi", Lang: "en-IN"}, synth.spoken[0].Voice)
	require.Equal(t, "hi-IN", synth.spoken[0].Lang)
}

func TestSpeak_NoPreferredVoiceFallsBackToLocale(t *testing.T) {
	synth := &fakeSynth{voices: []Voice{{Name: "Alex", Lang: "en-US"}}}
	s := NewSpeaker(synth, Options{})

	s.Speak("Hi.")
	waitDone(t, s)

	require.Nil(t, synth.spoken[0].Voice)
	require.Equal(t, DefaultLocale, synth.spoken[0].Lang)
}

func TestSpeak_PlayHooks(t *testing.T) {
	synth := &fakeSynth{}
	var calls []string
	s := NewSpeaker(synth, Options{
		BeforePlay: func() { calls = append(calls, "before") },
		AfterPlay:  func() { calls = append(calls, "after") },
	})

	s.Speak("One. Two.")
	waitDone(t, s)

	require.Equal(t, []string{"before", "after"}, calls)
}

func TestSpeak_ReplacementKeepsPlayHooksBalanced(t *testing.T) {
	synth := &fakeSynth{
		gate:    make(chan struct{}),
		started: make(chan string, 4),
	}

	var (
		ducked  atomic.Bool
		befores atomic.Int32
		afters  atomic.Int32
	)
	s := NewSpeaker(synth, Options{
		BeforePlay: func() { befores.Add(1); ducked.Store(true) },
		AfterPlay:  func() { afters.Add(1); ducked.Store(false) },
	})

	s.Speak("Yes, how can I help?")
	require.Equal(t, "Yes, how can I help?", <-synth.started)
	require.True(t, ducked.Load())

	s.Speak("Here is the answer.")
	require.Equal(t, "Here is the answer.", <-synth.started)
	require.True(t, ducked.Load(), "replacement keeps other streams ducked")
	require.EqualValues(t, 1, befores.Load())

	// the replaced queue has certainly unwound once its fragment was cancelled
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.active == 1
	}, time.Second, 5*time.Millisecond)
	require.True(t, ducked.Load())
	require.Zero(t, afters.Load())

	close(synth.gate)
	waitDone(t, s)

	require.Eventually(t, func() bool { return !ducked.Load() }, time.Second, 5*time.Millisecond)
	require.EqualValues(t, 1, befores.Load())
	require.EqualValues(t, 1, afters.Load())
}
