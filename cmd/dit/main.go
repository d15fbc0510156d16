package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

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

const help = `Type a question and press enter. Commands:
  /listen /mute /toggle   control recognition
  /stop                   interrupt speech and drop the pending answer
  /lang <tag>             switch locale, e.g. /lang hi-IN
  /state                  print the conversation state
  /quit`

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	configPath := cli.StringP("config", "c", "", "YAML config file")
	logLevel := cli.StringP("log", "l", "warn", "Log level")
	mic := cli.Bool("mic", false, "Recognize speech from the microphone")
	files := cli.StringSliceP("file", "f", nil, "Transcribe audio files as spoken input")
	mute := cli.Bool("mute", false, "Do not speak answers")
	interim := cli.Bool("interim", false, "Print interim transcripts")
	cli.Parse()

	// logs go to stderr so the conversation stays readable
	log.SetDefault(log.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	_ = godotenv.Load(*envFile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}

	opt := dit.Options{
		Mic:         *mic,
		Files:       *files,
		Terminal:    os.Stdout,
		ShowInterim: *interim,
		Synth:       speech.Silent{},
	}
	if !*mute {
		es, err := tts.NewEspeak()
		if err != nil {
			log.Warn("Speech output disabled", "err", err)
		} else {
			defer es.Close()
			opt.Synth = es
		}
	}

	d, err := dit.New(cfg, opt)
	if err != nil {
		log.Error("Failed to assemble assistant", "err", err)
		os.Exit(1)
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	if d.Listener != nil {
		if err := d.Assistant.SetListening(true); err != nil {
			log.Warn("Failed to start listening", "err", err)
		}
	}

	fmt.Println(help)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			quit, err := handleLine(d, line)
			if err != nil {
				fmt.Println("error:", err)
			}
			if quit {
				break loop
			}
		}
	}

	stop()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Stopped", "err", err)
	}
}

// handleLine submits plain text and maps slash commands onto the daemon
// control commands.
func handleLine(d *dit.Dit, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, d.Assistant.Submit(line)
	}

	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	switch cmd {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Println(help)
		return false, nil
	}

	data, err := d.Handle(ipc.ControlMessage{Cmd: cmd, Arg: strings.TrimSpace(arg)})
	if data != "" {
		fmt.Println(data)
	}
	return false, err
}
