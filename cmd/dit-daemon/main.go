package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/lmittmann/tint"
	log "log/slog"

	"dit/internal/config"
	"dit/internal/dit"
	"dit/internal/ipc"
	"dit/internal/speech"
	"dit/internal/tts"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	configPath := cli.StringP("config", "c", "", "YAML config file")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address, overrides config")
	mic := cli.Bool("mic", true, "Recognize speech from the microphone")
	files := cli.StringSliceP("file", "f", nil, "Transcribe audio files instead of the microphone")
	mute := cli.Bool("mute", false, "Do not speak answers")
	listen := cli.Bool("listen", false, "Start listening at boot")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	if err := godotenv.Load(*envFile); err != nil {
		log.Debug("No env file", "path", *envFile, "err", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	if *proxyAddr != "" {
		cfg.Proxy = *proxyAddr
	}

	log.Debug("Loaded config", "api", cfg.APIBase, "locale", cfg.Locale, "translator", cfg.Translate.Provider)

	opt := dit.Options{Mic: *mic, Files: *files}
	if !*mute {
		es, err := tts.NewEspeak()
		if err != nil {
			log.Error("Failed to init espeak", "err", err)
			os.Exit(1)
		}
		defer es.Close()
		opt.Synth = es
	} else {
		opt.Synth = speech.Silent{}
	}

	d, err := dit.New(cfg, opt)
	if err != nil {
		log.Error("Failed to assemble assistant", "err", err)
		os.Exit(1)
	}
	defer d.Close()

	srv, err := ipc.Listen(cfg.Socket, d.Handle)
	if err != nil {
		log.Error("Failed ipc server", "socket", cfg.Socket, "err", err)
		os.Exit(1)
	}
	defer srv.Close()

	log.Info("Boot up - successful", "socket", cfg.Socket)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(ctx) })
	g.Go(func() error { return srv.Serve(ctx) })

	if *listen {
		if err := d.Assistant.SetListening(true); err != nil {
			log.Warn("Failed to start listening", "err", err)
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Stopped", "err", err)
		os.Exit(1)
	}
	log.Info("Bye")
}
