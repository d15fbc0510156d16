// Package speech turns response text into a queue of sentence fragments and
// plays them one at a time through a Synthesizer.
package speech

import (
	"context"
	"errors"
	log "log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"dit/internal/phrase"
)

const DefaultLocale = "en-IN"

type Voice struct {
	Name string
	Lang string
}

type Utterance struct {
	Text  string
	Voice *Voice
	Lang  string
}

type Synthesizer interface {
	// Speak blocks until the utterance finished playing or ctx is done.
	Speak(ctx context.Context, u Utterance) error
	// Cancel stops whatever is currently playing.
	Cancel()
	Voices() []Voice
}

type Options struct {
	// Speak ignores text that is itself a stop command.
	Classifier *phrase.Classifier

	PreferName *regexp.Regexp
	PreferLang *regexp.Regexp

	// Locale returns the currently selected UI locale.
	Locale func() string

	// OnFragment fires when a fragment starts playing, OnIdle when the
	// queue drained without interruption.
	OnFragment func(text string)
	OnIdle     func()

	// BeforePlay and AfterPlay bracket a playing period: a queue that
	// replaces a still-playing one does not call them again.
	BeforePlay func()
	AfterPlay  func()
}

var (
	defaultPreferName = regexp.MustCompile(`(?i)india|en-in|hindi`)
	defaultPreferLang = regexp.MustCompile(`(?i)en-?in`)

	boldRe    = regexp.MustCompile("\\*{2,}|_{2,}|`+")
	headerRe  = regexp.MustCompile(`#+\s*`)
	bulletRe  = regexp.MustCompile(`[-*]\s+`)
	orderedRe = regexp.MustCompile(`(?m)^\d+\.\s+`)
)

type Speaker struct {
	synth Synthesizer
	opt   Options

	mu          sync.Mutex
	interrupted bool
	cancel      context.CancelFunc
	done        chan struct{}

	// queues started and not yet finished, guarded by mu
	active int

	// one fragment reaches the synthesizer at a time
	playMu sync.Mutex

	hookMu sync.Mutex
	inPlay bool
}

func NewSpeaker(synth Synthesizer, opt Options) *Speaker {
	if opt.Classifier == nil {
		opt.Classifier = phrase.Default()
	}
	if opt.PreferName == nil {
		opt.PreferName = defaultPreferName
	}
	if opt.PreferLang == nil {
		opt.PreferLang = defaultPreferLang
	}

	done := make(chan struct{})
	close(done)

	return &Speaker{
		synth: synth,
		opt:   opt,
		done:  done,
	}
}

// Clean drops the markdown markers that a synthesizer would read aloud.
func Clean(text string) string {
	text = boldRe.ReplaceAllString(text, "")
	text = headerRe.ReplaceAllString(text, "")
	text = bulletRe.ReplaceAllString(text, "")
	text = orderedRe.ReplaceAllString(text, "")
	return text
}

// Split cuts text after sentence-terminal punctuation that is followed by
// whitespace. Empty fragments are dropped.
func Split(text string) []string {
	var (
		parts []string
		start int
	)

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) || i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}

		if p := strings.TrimSpace(string(runes[start : i+1])); p != "" {
			parts = append(parts, p)
		}

		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}

	if start < len(runes) {
		if p := strings.TrimSpace(string(runes[start:])); p != "" {
			parts = append(parts, p)
		}
	}

	return parts
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// Speak replaces whatever is playing with text. It returns immediately;
// fragments are played in order on a separate goroutine.
func (s *Speaker) Speak(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if s.opt.Classifier.ContainsStop(text) {
		log.Debug("Not speaking a stop phrase", "text", text)
		return
	}

	parts := Split(Clean(text))

	s.mu.Lock()
	s.stopLocked()
	s.interrupted = false

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.active++
	s.mu.Unlock()

	go s.play(ctx, parts, done)
}

// Interrupt abandons the rest of the queue.
func (s *Speaker) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.interrupted = true
	s.stopLocked()
}

func (s *Speaker) Interrupted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupted
}

// Done is closed when the current queue finished or was abandoned.
func (s *Speaker) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Speaker) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.synth.Cancel()
}

func (s *Speaker) play(ctx context.Context, parts []string, done chan struct{}) {
	defer close(done)

	s.syncHooks()
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
		s.syncHooks()
	}()

	for _, p := range parts {
		if !s.next(ctx, p) {
			return
		}
	}

	if ctx.Err() == nil && !s.Interrupted() && s.opt.OnIdle != nil {
		s.opt.OnIdle()
	}
}

// syncHooks runs BeforePlay or AfterPlay when the playing state changed
// since the last hook. Whoever calls it last leaves the hooks matching the
// current state.
func (s *Speaker) syncHooks() {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()

	s.mu.Lock()
	playing := s.active > 0
	s.mu.Unlock()

	if playing == s.inPlay {
		return
	}
	s.inPlay = playing

	if playing {
		if s.opt.BeforePlay != nil {
			s.opt.BeforePlay()
		}
		return
	}
	if s.opt.AfterPlay != nil {
		s.opt.AfterPlay()
	}
}

func (s *Speaker) next(ctx context.Context, text string) bool {
	s.playMu.Lock()
	defer s.playMu.Unlock()

	if ctx.Err() != nil || s.Interrupted() {
		return false
	}

	u := Utterance{
		Text:  text,
		Voice: s.preferredVoice(),
		Lang:  s.locale(),
	}

	if s.opt.OnFragment != nil {
		s.opt.OnFragment(text)
	}

	if err := s.synth.Speak(ctx, u); err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return false
		}
		log.Error("Failed to voice out", "err", err)
	}

	return ctx.Err() == nil && !s.Interrupted()
}

func (s *Speaker) preferredVoice() *Voice {
	for _, v := range s.synth.Voices() {
		if s.opt.PreferName.MatchString(v.Name) || s.opt.PreferLang.MatchString(v.Lang) {
			v := v
			return &v
		}
	}
	return nil
}

func (s *Speaker) locale() string {
	if s.opt.Locale != nil {
		if l := s.opt.Locale(); l != "" {
			return l
		}
	}
	return DefaultLocale
}

// Silent is a Synthesizer for running without audio output.
type Silent struct{}

func (Silent) Speak(ctx context.Context, _ Utterance) error { return ctx.Err() }
func (Silent) Cancel()                                      {}
func (Silent) Voices() []Voice                              { return nil }
