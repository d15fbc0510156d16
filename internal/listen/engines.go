package listen

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"dit/pkg/audioconv"
	"dit/pkg/stt"
)

type Recorder interface {
	Record(ctx context.Context) ([]float32, error)
}

// MicEngine records one utterance per session and transcribes it. Each
// whisper segment is reported as interim text before the joined final.
type MicEngine struct {
	Recorder    Recorder
	Transcriber stt.Transcriber
	Options     stt.Options
}

func (m *MicEngine) Recognize(ctx context.Context, lang string, results chan<- Result) error {
	pcm, err := m.Recorder.Record(ctx)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}
	if len(pcm) == 0 {
		// nothing but silence; let the listener restart
		return nil
	}

	return transcribe(ctx, m.Transcriber, m.Options, pcm, lang, results)
}

// FileEngine recognizes prerecorded audio files, one per session. Once all
// files are consumed a session waits for ctx.
type FileEngine struct {
	Paths       []string
	Transcriber stt.Transcriber
	Options     stt.Options

	mu   sync.Mutex
	next int
}

func (f *FileEngine) Recognize(ctx context.Context, lang string, results chan<- Result) error {
	f.mu.Lock()
	if f.next >= len(f.Paths) {
		f.mu.Unlock()
		<-ctx.Done()
		return nil
	}
	path := f.Paths[f.next]
	f.next++
	f.mu.Unlock()

	pcm, err := audioconv.DecodeFile(path, audioconv.Options{})
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	return transcribe(ctx, f.Transcriber, f.Options, pcm, lang, results)
}

func transcribe(ctx context.Context, tr stt.Transcriber, opt stt.Options, pcm []float32, lang string, results chan<- Result) error {
	opt.Language = WhisperLanguage(lang)

	res, err := tr.TranscribePCM(ctx, pcm, opt)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("transcribe: %w", err)
	}

	var partial []string
	for _, s := range res.Segments {
		t := strings.TrimSpace(s.Text)
		if t == "" {
			continue
		}
		partial = append(partial, t)
		if !send(ctx, results, Result{Text: strings.Join(partial, " ")}) {
			return nil
		}
	}

	if strings.TrimSpace(res.Text) != "" {
		send(ctx, results, Result{Text: res.Text, Final: true})
	}
	return nil
}

func send(ctx context.Context, results chan<- Result, r Result) bool {
	select {
	case results <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// WhisperLanguage maps a locale tag like "en-IN" to whisper's "en".
func WhisperLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "auto"
	}
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
