// Package listen keeps a recognition engine running while listening is on,
// restarting it every time a session ends.
package listen

import (
	"context"
	"errors"
	log "log/slog"
	"strings"
	"sync"
	"time"
)

type Result struct {
	Text  string
	Final bool
}

type Engine interface {
	// Recognize runs one recognition session in the given locale, sending
	// results in order until the engine ends the session or ctx is done.
	// It must not send on results after returning.
	Recognize(ctx context.Context, lang string, results chan<- Result) error
}

type Handlers struct {
	OnStart func(lang string)
	// OnHeard gets the final text as recognized, OnFinal the trimmed,
	// lower-cased form.
	OnHeard   func(text string)
	OnFinal   func(text string)
	OnInterim func(text string)
	OnError   func(err error)
}

type Options struct {
	Lang string
	// RestartDelay is waited after a failed session before the restart.
	RestartDelay time.Duration
}

type Listener struct {
	engine Engine
	h      Handlers
	delay  time.Duration

	mu        sync.Mutex
	listening bool
	lang      string
	cancel    context.CancelFunc

	wake chan struct{}
}

func New(engine Engine, h Handlers, opt Options) *Listener {
	if opt.Lang == "" {
		opt.Lang = "en-IN"
	}
	if opt.RestartDelay < 0 {
		opt.RestartDelay = 0
	}

	return &Listener{
		engine: engine,
		h:      h,
		delay:  opt.RestartDelay,
		lang:   opt.Lang,
		wake:   make(chan struct{}, 1),
	}
}

func (l *Listener) Start() {
	l.mu.Lock()
	l.listening = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Stop clears the listening flag and ends the running session.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.listening = false
	if l.cancel != nil {
		l.cancel()
	}
}

func (l *Listener) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listening
}

// SetLanguage applies from the next session on.
func (l *Listener) SetLanguage(lang string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lang = lang
}

func (l *Listener) Language() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lang
}

func (l *Listener) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}

		for ctx.Err() == nil {
			sctx, lang, ok := l.begin(ctx)
			if !ok {
				break
			}

			err := l.session(sctx, lang)
			l.end()

			if err != nil && l.delay > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(l.delay):
				}
			}
		}
	}
}

func (l *Listener) begin(ctx context.Context) (context.Context, string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.listening {
		return nil, "", false
	}

	sctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	return sctx, l.lang, true
}

func (l *Listener) end() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

func (l *Listener) session(ctx context.Context, lang string) error {
	log.Debug("Recognition started", "lang", lang)
	if l.h.OnStart != nil {
		l.h.OnStart(lang)
	}

	results := make(chan Result)
	errc := make(chan error, 1)
	go func() {
		defer close(results)
		errc <- l.engine.Recognize(ctx, lang, results)
	}()

	for r := range results {
		l.dispatch(r)
	}

	err := <-errc
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Speech recognition error", "err", err)
		if l.h.OnError != nil {
			l.h.OnError(err)
		}
		return err
	}

	log.Debug("Recognition ended", "lang", lang)
	return nil
}

func (l *Listener) dispatch(r Result) {
	if !r.Final {
		if l.h.OnInterim != nil {
			l.h.OnInterim(r.Text)
		}
		return
	}

	text := strings.TrimSpace(r.Text)
	if text == "" {
		return
	}
	if l.h.OnHeard != nil {
		l.h.OnHeard(text)
	}
	if l.h.OnFinal != nil {
		l.h.OnFinal(strings.ToLower(text))
	}
}
