package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
dit_init(void)
{
	return espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0 ? -1 : 0;
}

static int
dit_set_voice(const char *name, const char *lang)
{
	if (name && name[0] && espeak_SetVoiceByName(name) == EE_OK)
	{ return 0; }

	espeak_VOICE spec;
	memset(&spec, 0, sizeof(spec));
	spec.languages = lang;

	return espeak_SetVoiceByProperties(&spec) == EE_OK ? 0 : -1;
}

static int
dit_say(const char *text)
{
	if (!text)
	{ return -1; }

	if (espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL) != EE_OK)
	{ return -1; }

	espeak_Synchronize();
	return 0;
}

static void
dit_cancel(void)
{
	espeak_Cancel();
}

static int
dit_voice_count(void)
{
	const espeak_VOICE **v = espeak_ListVoices(NULL);
	int n = 0;
	while (v && v[n])
	{ n++; }
	return n;
}

static const char *
dit_voice_name(int i)
{
	return espeak_ListVoices(NULL)[i]->name;
}

static const char *
dit_voice_lang(int i)
{
	// first byte of languages is the priority
	return espeak_ListVoices(NULL)[i]->languages + 1;
}

static void
dit_terminate(void)
{
	espeak_Terminate();
}
*/
import "C"

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"dit/internal/speech"
)

// Espeak drives espeak-ng in synchronous playback mode.
type Espeak struct {
	mu sync.Mutex

	voicesOnce sync.Once
	voices     []speech.Voice
}

func NewEspeak() (*Espeak, error) {
	if rc := C.dit_init(); rc != 0 {
		return nil, fmt.Errorf("espeak_Initialize failed: %d", int(rc))
	}
	return &Espeak{}, nil
}

func (e *Espeak) Speak(ctx context.Context, u speech.Utterance) error {
	if u.Text == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var name string
	if u.Voice != nil {
		name = u.Voice.Name
	}

	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	clang := C.CString(strings.ToLower(u.Lang))
	defer C.free(unsafe.Pointer(clang))

	if rc := C.dit_set_voice(cname, clang); rc != 0 {
		return fmt.Errorf("espeak set voice %q/%q failed", name, u.Lang)
	}

	ctext := C.CString(u.Text)
	defer C.free(unsafe.Pointer(ctext))

	done := make(chan C.int, 1)
	go func() {
		done <- C.dit_say(ctext)
	}()

	select {
	case rc := <-done:
		if rc != 0 {
			return fmt.Errorf("espeak_say failed: %d", int(rc))
		}
		return nil
	case <-ctx.Done():
		C.dit_cancel()
		<-done
		return ctx.Err()
	}
}

func (e *Espeak) Cancel() {
	C.dit_cancel()
}

func (e *Espeak) Voices() []speech.Voice {
	e.voicesOnce.Do(func() {
		n := int(C.dit_voice_count())
		for i := 0; i < n; i++ {
			e.voices = append(e.voices, speech.Voice{
				Name: C.GoString(C.dit_voice_name(C.int(i))),
				Lang: C.GoString(C.dit_voice_lang(C.int(i))),
			})
		}
	})
	return e.voices
}

func (e *Espeak) Close() {
	C.dit_cancel()
	C.dit_terminate()
}

var _ speech.Synthesizer = (*Espeak)(nil)
