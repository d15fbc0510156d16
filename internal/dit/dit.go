// Package dit assembles the assistant from configuration: recognition,
// translation, backend client, conversation view and speech output.
package dit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"regexp"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/errgroup"

	"dit/internal/assistant"
	"dit/internal/audio"
	"dit/internal/config"
	"dit/internal/ipc"
	"dit/internal/listen"
	"dit/internal/notify"
	"dit/internal/phrase"
	"dit/internal/proxy"
	"dit/internal/query"
	"dit/internal/speech"
	"dit/internal/translate"
	"dit/internal/view"
	"dit/pkg/stt"
)

type Options struct {
	// Mic records from the default input device.
	Mic bool
	// Files are transcribed instead of the microphone when set.
	Files []string
	// Synth voices the answers; nil runs silent.
	Synth speech.Synthesizer

	Terminal    io.Writer
	ShowInterim bool
}

type Dit struct {
	Assistant *assistant.Assistant
	Listener  *listen.Listener
	Speaker   *speech.Speaker
	View      *view.View

	closers []func()
}

const defaultRestartDelay = 500 * time.Millisecond

func New(cfg config.Config, opt Options) (*Dit, error) {
	d := &Dit{}

	httpClient, err := proxy.NewHTTPClient(cfg.Proxy, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("proxy %s: %w", cfg.Proxy, err)
	}

	classifier := phrase.New(cfg.Phrases.Wake, cfg.Phrases.Stop)

	var sinks []view.Sink
	if opt.Terminal != nil {
		term := view.NewTerminal(opt.Terminal)
		term.ShowInterim = opt.ShowInterim
		sinks = append(sinks, term)
	}
	if cfg.Bus.URL != "" {
		bus, err := view.NewBus(cfg.Bus.URL, cfg.Bus.From, cfg.Bus.To)
		if err != nil {
			log.Warn("Panel bus unavailable", "url", cfg.Bus.URL, "err", err)
		} else {
			sinks = append(sinks, bus)
			d.closers = append(d.closers, func() { bus.Close() })
		}
	}
	d.View = view.New(sinks...)

	synth := opt.Synth
	if synth == nil {
		synth = speech.Silent{}
	}

	// hooks need the assistant, which needs the speaker
	var a *assistant.Assistant

	sopt := speech.Options{
		Classifier: classifier,
		Locale:     func() string { return a.Language() },
		OnFragment: func(text string) { a.SpeechStarted(text) },
		OnIdle:     func() { a.SpeechIdle() },
	}
	if sopt.PreferName, err = compileOptional(cfg.Voice.PreferName); err != nil {
		d.Close()
		return nil, fmt.Errorf("voice.prefer_name: %w", err)
	}
	if sopt.PreferLang, err = compileOptional(cfg.Voice.PreferLang); err != nil {
		d.Close()
		return nil, fmt.Errorf("voice.prefer_lang: %w", err)
	}
	if cfg.Duck.Enabled {
		ducker := audio.NewDucker(audio.DuckOptions{
			SelfNames: cfg.Duck.SelfNames,
			Factor:    cfg.Duck.Factor,
			MinVolume: cfg.Duck.MinVolume,
			Fade:      cfg.Duck.Fade,
		})
		sopt.BeforePlay = ducker.Duck
		sopt.AfterPlay = ducker.Restore
	}
	d.Speaker = speech.NewSpeaker(synth, sopt)

	engine, err := d.engine(cfg, opt)
	if err != nil {
		d.Close()
		return nil, err
	}

	acfg := assistant.Config{
		Classifier: classifier,
		Query:      query.NewClient(cfg.APIBase, "", httpClient),
		View:       d.View,
		Speaker:    d.Speaker,
		Translator: newTranslator(cfg, httpClient),
		Chime:      d.chime(cfg.Chime),
		Greeting:   cfg.Greeting,
		Locale:     cfg.Locale,
	}

	if engine != nil {
		d.Listener = listen.New(engine, listen.Handlers{
			OnStart:   func(lang string) { _ = a.HandleRecognitionStart(lang) },
			OnHeard:   func(text string) { _ = a.HandleHeard(text) },
			OnFinal:   func(text string) { _ = a.HandleFinal(text) },
			OnInterim: func(text string) { _ = a.HandleInterim(text) },
			OnError:   func(err error) { _ = a.HandleRecognitionError(err) },
		}, listen.Options{Lang: cfg.Locale, RestartDelay: defaultRestartDelay})
		acfg.Listener = d.Listener
	}

	a = assistant.New(acfg)
	d.Assistant = a

	return d, nil
}

func (d *Dit) engine(cfg config.Config, opt Options) (listen.Engine, error) {
	if !opt.Mic && len(opt.Files) == 0 {
		return nil, nil
	}

	var tr stt.Transcriber
	if cfg.Whisper.CLI != "" {
		tr = stt.NewCLI(cfg.Whisper.CLI, cfg.Whisper.Model)
	} else {
		w, err := stt.NewWhisper(cfg.Whisper.Model)
		if err != nil {
			return nil, fmt.Errorf("init whisper: %w", err)
		}
		tr = w
	}
	d.closers = append(d.closers, func() { tr.Close() })

	sopt := stt.Options{Threads: cfg.Whisper.Threads}

	if len(opt.Files) > 0 {
		return &listen.FileEngine{Paths: opt.Files, Transcriber: tr, Options: sopt}, nil
	}

	rec := audio.NewRecorder(audio.RecorderOptions{
		SilenceRMS: cfg.Recorder.SilenceRMS,
		Silence:    cfg.Recorder.Silence,
		MaxLength:  cfg.Recorder.MaxLength,
	})
	if err := rec.Init(); err != nil {
		return nil, fmt.Errorf("init audio: %w", err)
	}
	d.closers = append(d.closers, rec.Close)

	return &listen.MicEngine{Recorder: rec, Transcriber: tr, Options: sopt}, nil
}

func (d *Dit) chime(path string) func() {
	if path == "" {
		return nil
	}
	c, err := notify.NewChime(path)
	if err != nil {
		log.Warn("Wake chime disabled", "err", err)
		return nil
	}
	return c.Play
}

func newTranslator(cfg config.Config, httpClient *http.Client) assistant.Translator {
	switch cfg.Translate.Provider {
	case config.TranslatorLibre:
		return translate.BestEffort(translate.NewLibre(cfg.Translate.URL, cfg.Translate.APIKey, httpClient))
	case config.TranslatorOpenAI:
		client := openai.NewClient(
			option.WithAPIKey(cfg.Translate.APIKey),
			option.WithHTTPClient(httpClient),
		)
		return translate.BestEffort(translate.NewOpenAI(client, cfg.Translate.Model))
	default:
		return nil
	}
}

func compileOptional(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	return regexp.Compile(expr)
}

// Run drives the assistant and, when there is one, the listener until ctx
// is done.
func (d *Dit) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.Assistant.Run(ctx) })
	if d.Listener != nil {
		g.Go(func() error { return d.Listener.Run(ctx) })
	}

	return g.Wait()
}

// Handle executes a control command from dit-ctl.
func (d *Dit) Handle(msg ipc.ControlMessage) (string, error) {
	a := d.Assistant

	switch msg.Cmd {
	case ipc.CmdListen:
		return "", a.SetListening(true)
	case ipc.CmdMute:
		return "", a.SetListening(false)
	case ipc.CmdToggle:
		return "", a.ToggleListening()
	case ipc.CmdAsk:
		if msg.Arg == "" {
			return "", fmt.Errorf("ask needs a question")
		}
		return "", a.Submit(msg.Arg)
	case ipc.CmdStop:
		return "", a.Stop()
	case ipc.CmdLang:
		if msg.Arg == "" {
			return "", fmt.Errorf("lang needs a locale tag")
		}
		return "", a.SetLanguage(msg.Arg)
	case ipc.CmdState:
		s, err := a.Snapshot()
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(s)
		return string(data), err
	default:
		return "", fmt.Errorf("unknown command %q", msg.Cmd)
	}
}

func (d *Dit) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
