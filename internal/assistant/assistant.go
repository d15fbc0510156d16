// Package assistant runs the conversation: it classifies what was heard,
// moves between dormant and awake, forwards questions to the backend and
// shows and speaks the answers.
//
// All state is owned by the goroutine running Assistant.Run. Recognition
// callbacks, speaker hooks and query completions are posted to it as events,
// so handlers never run concurrently.
package assistant

import (
	"context"
	"errors"
	log "log/slog"
	"strings"
	"sync"

	"dit/internal/phrase"
	"dit/internal/query"
	"dit/internal/view"
)

const (
	DefaultGreeting = "Yes, how can I help?"
	DefaultLocale   = "en-IN"
)

const (
	StatusListening    = "Listening... Say 'hello' to wake."
	StatusAwake        = "Awake, ask your question..."
	StatusProcessing   = "Processing your question..."
	StatusStopped      = "Stopped. Waiting for 'hello'..."
	StatusMuted        = "Stopped."
	StatusSpeaking     = "Speaking... (still listening)"
	StatusIdle         = "Idle. Still listening..."
	StatusRecognition  = "Speech recognition error."
	StatusUnsupported  = "Speech recognition not supported."
	statusBackendError = "Error contacting backend: "
)

var ErrClosed = errors.New("assistant is not running")

type State struct {
	Awake         bool   `json:"awake"`
	StopRequested bool   `json:"stop_requested"`
	Listening     bool   `json:"listening"`
	Language      string `json:"language"`
}

type Querier interface {
	Send(ctx context.Context, q string) (query.Response, error)
}

type Translator interface {
	Translate(ctx context.Context, text, source string) (string, error)
}

type Speaker interface {
	Speak(text string)
	Interrupt()
}

type Listener interface {
	Start()
	Stop()
	SetLanguage(lang string)
}

type View interface {
	Append(text string, sender view.Sender) view.Message
	ShowTyping() *view.Typing
	SetStatus(text string)
	SetInterim(text string)
}

type Config struct {
	Classifier *phrase.Classifier
	Query      Querier
	View       View
	Speaker    Speaker
	// Listener is nil when no recognition engine is available; the
	// assistant then only takes typed input.
	Listener Listener
	// Translator, when set, renders non-English questions into English
	// before they are sent.
	Translator Translator
	// Chime is played on wake.
	Chime func()

	Greeting string
	Locale   string
}

type Assistant struct {
	cfg Config

	events chan func()
	quit   chan struct{}
	once   sync.Once
	ctx    context.Context

	state State
	// gen is bumped by every stop; a query settles only in the generation
	// it was dispatched in.
	gen uint64

	// lang mirrors state.Language for readers outside the event loop.
	langMu sync.RWMutex
	lang   string
}

func New(cfg Config) *Assistant {
	if cfg.Classifier == nil {
		cfg.Classifier = phrase.Default()
	}
	if cfg.Greeting == "" {
		cfg.Greeting = DefaultGreeting
	}
	if cfg.Locale == "" {
		cfg.Locale = DefaultLocale
	}

	return &Assistant{
		cfg:    cfg,
		events: make(chan func(), 64),
		quit:   make(chan struct{}),
		ctx:    context.Background(),
		state:  State{Language: cfg.Locale},
		lang:   cfg.Locale,
	}
}

// Run processes events until ctx is done.
func (a *Assistant) Run(ctx context.Context) error {
	a.ctx = ctx
	defer a.once.Do(func() { close(a.quit) })

	if a.cfg.Listener == nil {
		a.cfg.View.SetStatus(StatusUnsupported)
	}

	for {
		select {
		case <-ctx.Done():
			if a.cfg.Listener != nil {
				a.cfg.Listener.Stop()
			}
			a.cfg.Speaker.Interrupt()
			return ctx.Err()
		case fn := <-a.events:
			fn()
		}
	}
}

func (a *Assistant) post(fn func()) error {
	select {
	case a.events <- fn:
		return nil
	case <-a.quit:
		return ErrClosed
	}
}

// Snapshot returns the conversation state as seen by the event loop.
func (a *Assistant) Snapshot() (State, error) {
	out := make(chan State, 1)
	if err := a.post(func() { out <- a.state }); err != nil {
		return State{}, err
	}
	select {
	case s := <-out:
		return s, nil
	case <-a.quit:
		return State{}, ErrClosed
	}
}

// HandleFinal takes a finalized, lower-cased transcript.
func (a *Assistant) HandleFinal(text string) error {
	return a.post(func() { a.handleFinal(text) })
}

func (a *Assistant) HandleHeard(text string) error {
	return a.post(func() { a.cfg.View.SetInterim("Heard: " + text) })
}

func (a *Assistant) HandleInterim(text string) error {
	return a.post(func() { a.cfg.View.SetInterim("Listening: " + text) })
}

func (a *Assistant) HandleRecognitionStart(string) error {
	return a.post(func() { a.cfg.View.SetStatus(StatusListening) })
}

func (a *Assistant) HandleRecognitionError(err error) error {
	return a.post(func() {
		log.Warn("Recognition session failed", "err", err)
		a.cfg.View.SetStatus(StatusRecognition)
	})
}

// Submit sends typed text straight to the backend, bypassing wake and stop
// detection.
func (a *Assistant) Submit(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return a.post(func() {
		a.state.StopRequested = false
		a.ask(text)
	})
}

// Stop has the same effect as a spoken stop phrase.
func (a *Assistant) Stop() error {
	return a.post(a.stopSpeaking)
}

func (a *Assistant) SetListening(on bool) error {
	return a.post(func() { a.setListening(on) })
}

func (a *Assistant) ToggleListening() error {
	return a.post(func() { a.setListening(!a.state.Listening) })
}

// SetLanguage changes the locale used by future recognition sessions,
// translation and speech.
func (a *Assistant) SetLanguage(tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil
	}
	return a.post(func() {
		a.state.Language = tag
		a.langMu.Lock()
		a.lang = tag
		a.langMu.Unlock()
		if a.cfg.Listener != nil {
			a.cfg.Listener.SetLanguage(tag)
		}
		log.Info("Language changed", "lang", tag)
	})
}

// Language is the selected locale. It is safe to call from any goroutine.
func (a *Assistant) Language() string {
	a.langMu.RLock()
	defer a.langMu.RUnlock()
	return a.lang
}

// SpeechStarted and SpeechIdle are speaker hooks.
func (a *Assistant) SpeechStarted(string) {
	_ = a.post(func() { a.cfg.View.SetStatus(StatusSpeaking) })
}

func (a *Assistant) SpeechIdle() {
	_ = a.post(func() { a.cfg.View.SetStatus(StatusIdle) })
}

func (a *Assistant) handleFinal(text string) {
	c := a.cfg.Classifier

	if c.ContainsStop(text) {
		a.stopSpeaking()
		return
	}

	if !a.state.Awake {
		if c.ContainsWake(text) {
			a.wake()
		}
		return
	}

	a.ask(text)
	a.state.Awake = false
}

func (a *Assistant) stopSpeaking() {
	a.cfg.Speaker.Interrupt()
	a.gen++
	a.state.StopRequested = true
	a.state.Awake = false
	a.cfg.View.SetStatus(StatusStopped)
	log.Info("Stop requested")
}

func (a *Assistant) wake() {
	a.state.StopRequested = false
	a.state.Awake = true
	a.cfg.View.SetStatus(StatusAwake)

	if a.cfg.Chime != nil {
		go a.cfg.Chime()
	}

	a.cfg.View.Append(a.cfg.Greeting, view.Bot)
	a.cfg.Speaker.Speak(a.cfg.Greeting)
	log.Info("Awake")
}

func (a *Assistant) ask(text string) {
	a.cfg.View.SetStatus(StatusProcessing)
	a.cfg.View.Append(text, view.User)
	typing := a.cfg.View.ShowTyping()

	ctx, lang, gen := a.ctx, a.state.Language, a.gen
	log.Info("Question", "text", text, "lang", lang)

	go func() {
		q := text
		if a.cfg.Translator != nil {
			if out, err := a.cfg.Translator.Translate(ctx, text, lang); err == nil && out != "" {
				q = out
			}
		}

		resp, err := a.cfg.Query.Send(ctx, q)
		if perr := a.post(func() { a.settle(gen, typing, resp, err) }); perr != nil {
			typing.Remove()
		}
	}()
}

func (a *Assistant) settle(gen uint64, typing *view.Typing, resp query.Response, err error) {
	typing.Remove()

	if gen != a.gen {
		// a stop came in after dispatch, even if a wake or typed question
		// has cleared the flag since
		log.Info("Dropping response from before stop", "err", err)
		if a.state.StopRequested {
			a.cfg.View.SetStatus(StatusStopped)
		}
		return
	}

	if err != nil {
		if !a.state.StopRequested {
			log.Error("Query failed", "err", err)
			a.cfg.View.SetStatus(statusBackendError + err.Error())
		}
		return
	}

	if a.state.StopRequested {
		log.Info("Dropping response after stop")
		a.cfg.View.SetStatus(StatusStopped)
		return
	}

	a.cfg.View.Append(resp.Answer, view.Bot)
	a.cfg.Speaker.Speak(resp.Answer)
	a.cfg.View.SetStatus(StatusIdle)
}

func (a *Assistant) setListening(on bool) {
	a.state.Listening = on

	if a.cfg.Listener == nil {
		a.cfg.View.SetStatus(StatusUnsupported)
		return
	}

	if on {
		a.cfg.Listener.Start()
		log.Info("Listening started")
		return
	}

	a.cfg.Listener.Stop()
	a.cfg.View.SetStatus(StatusMuted)
	log.Info("Listening stopped")
}
