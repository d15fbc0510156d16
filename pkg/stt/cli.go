package stt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// CLI runs a whisper.cpp command line binary on a temporary wav file. It
// needs no cgo but pays for a process start per utterance.
type CLI struct {
	ExecPath  string
	ModelPath string
}

func NewCLI(execPath, modelPath string) *CLI {
	if execPath == "" {
		execPath = "whisper-cli"
	}
	return &CLI{ExecPath: execPath, ModelPath: modelPath}
}

func (c *CLI) Close() error { return nil }

func (c *CLI) TranscribePCM(ctx context.Context, pcm16k []float32, opt Options) (Result, error) {
	if len(pcm16k) == 0 {
		return Result{}, fmt.Errorf("no audio samples provided")
	}

	f, err := os.CreateTemp("", "dit-*.wav")
	if err != nil {
		return Result{}, fmt.Errorf("create temp wav: %w", err)
	}
	defer os.Remove(f.Name())

	if err := WriteWAV(f, pcm16k); err != nil {
		f.Close()
		return Result{}, err
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("close temp wav: %w", err)
	}

	lang := opt.Language
	if lang == "" {
		lang = "auto"
	}

	args := []string{"-f", f.Name(), "-l", lang, "-nt", "-np"}
	if c.ModelPath != "" {
		args = append(args, "-m", c.ModelPath)
	}
	if opt.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(opt.Threads))
	}
	if opt.TranslateToEn {
		args = append(args, "-tr")
	}
	if opt.InitialPrompt != "" {
		args = append(args, "--prompt", opt.InitialPrompt)
	}

	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.ExecPath, args...)
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("%s: %w (%s)", c.ExecPath, err, strings.TrimSpace(stderr.String()))
	}

	var segs []Segment
	for _, line := range strings.Split(out.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			segs = append(segs, Segment{Text: line})
		}
	}

	return Result{
		Text:     joinSegments(segs),
		Segments: segs,
		Language: lang,
	}, nil
}

// WriteWAV encodes mono 16kHz float PCM as 16-bit wav.
func WriteWAV(w io.WriteSeeker, pcm16k []float32) error {
	data := make([]int, len(pcm16k))
	for i, x := range pcm16k {
		v := math.Max(-1, math.Min(1, float64(x)))
		data[i] = int(math.Round(v * 32767))
	}

	enc := wav.NewEncoder(w, 16000, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish wav: %w", err)
	}
	return nil
}

var _ Transcriber = (*CLI)(nil)
