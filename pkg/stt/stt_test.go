package stt

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
)

func TestJoinSegments(t *testing.T) {
	got := joinSegments([]Segment{{Text: " hello "}, {Text: ""}, {Text: "world. "}})
	require.Equal(t, "hello world.", got)
	require.Equal(t, "", joinSegments(nil))
}

func TestWriteWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	require.NoError(t, WriteWAV(f, []float32{0, 0.5, -0.5, 2, -2}))
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)

	require.Equal(t, 16000, buf.Format.SampleRate)
	require.Equal(t, 1, buf.Format.NumChannels)
	require.Equal(t, []int{0, 16384, -16384, 32767, -32767}, buf.Data)
}

func fakeWhisperCLI(t *testing.T, stdout string) (exe, argsFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a posix shell")
	}

	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args")
	exe = filepath.Join(dir, "whisper-cli")

	script := "#!/bin/sh\necho \"$@\" > " + argsFile + "\nprintf '" + stdout + "'\n"
	require.NoError(t, os.WriteFile(exe, []byte(script), 0o755))
	return exe, argsFile
}

func TestCLI_TranscribePCM(t *testing.T) {
	exe, argsFile := fakeWhisperCLI(t, " hello there\\n\\n general kenobi \\n")

	c := NewCLI(exe, "/models/ggml-base.bin")
	res, err := c.TranscribePCM(context.Background(), make([]float32, 1600), Options{
		Language:      "hi",
		Threads:       2,
		TranslateToEn: true,
	})
	require.NoError(t, err)
	require.Equal(t, "hello there general kenobi", res.Text)
	require.Len(t, res.Segments, 2)
	require.Equal(t, "hi", res.Language)

	raw, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	args := strings.Fields(string(raw))
	require.Contains(t, args, "-nt")
	require.Contains(t, args, "-tr")
	require.Equal(t, "hi", args[indexOf(args, "-l")+1])
	require.Equal(t, "2", args[indexOf(args, "-t")+1])
	require.Equal(t, "/models/ggml-base.bin", args[indexOf(args, "-m")+1])
}

func TestCLI_Errors(t *testing.T) {
	c := NewCLI(filepath.Join(t.TempDir(), "missing"), "")

	_, err := c.TranscribePCM(context.Background(), nil, Options{})
	require.Error(t, err)

	_, err = c.TranscribePCM(context.Background(), []float32{0.1}, Options{})
	require.ErrorContains(t, err, "missing")
}

func indexOf(xs []string, s string) int {
	for i, x := range xs {
		if x == s {
			return i
		}
	}
	return -2
}
