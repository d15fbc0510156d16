// Package stt transcribes 16kHz mono PCM with whisper.cpp.
package stt

import (
	"context"
	"strings"
)

type Options struct {
	Language      string // "auto", "en", "hi", ...
	TranslateToEn bool
	Threads       int // <=0 => NumCPU()
	InitialPrompt string
	BeamSize      int // 0 = greedy
}

type Segment struct {
	Text     string
	StartSec float64
	EndSec   float64
}

type Result struct {
	Text     string
	Segments []Segment
	Language string
}

// Transcriber is implemented by the in-process whisper bindings and by the
// whisper-cli wrapper.
type Transcriber interface {
	TranscribePCM(ctx context.Context, pcm16k []float32, opt Options) (Result, error)
	Close() error
}

func joinSegments(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
