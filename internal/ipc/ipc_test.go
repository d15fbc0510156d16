package ipc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func socketPath(t *testing.T) string {
	t.Helper()
	// unix socket paths are limited to ~100 bytes; t.TempDir can exceed it
	dir, err := os.MkdirTemp("", "dit")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func TestRoundTrip(t *testing.T) {
	path := socketPath(t)

	got := make(chan ControlMessage, 1)
	srv, err := Listen(path, func(m ControlMessage) (string, error) {
		got <- m
		if m.Cmd == CmdLang && m.Arg == "" {
			return "", errors.New("missing locale")
		}
		return "done", nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	r, err := SendCommand(path, CmdAsk, "what is the weather")
	require.NoError(t, err)
	require.Equal(t, Reply{OK: true, Data: "done"}, r)
	require.Equal(t, ControlMessage{Cmd: CmdAsk, Arg: "what is the weather"}, <-got)

	_, err = SendCommand(path, CmdLang, "")
	require.EqualError(t, err, "missing locale")
	<-got

	cancel()
	require.ErrorIs(t, <-served, context.Canceled)
}

func TestSendCommand_NoDaemon(t *testing.T) {
	_, err := SendCommand(socketPath(t), CmdToggle, "")
	require.Error(t, err)
}
