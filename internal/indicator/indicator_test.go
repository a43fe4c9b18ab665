package indicator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rbright/lectern/internal/config"
	"github.com/stretchr/testify/require"
)

func installBusctlStub(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	argsFile := filepath.Join(dir, "busctl-args.log")
	t.Setenv("BUSCTL_ARGS_FILE", argsFile)
	script := "#!/usr/bin/env bash\nset -euo pipefail\nprintf '%s\\n' \"$*\" >> \"${BUSCTL_ARGS_FILE}\"\n" + body + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "busctl"), []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
	return argsFile
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestNotifierReplacesAndDismissesDesktopNotification(t *testing.T) {
	argsFile := installBusctlStub(t, `
if [[ "$*" == *" Notify "* ]]; then
  echo 'u 42'
fi
`)

	cfg := config.Default().Indicator
	cfg.SoundEnable = false

	n := New(cfg, nil)
	n.ShowRecording(context.Background())
	n.ShowDraining(context.Background())
	n.ShowError(context.Background(), "")
	n.ShowSaved(context.Background(), "")

	lines := readLines(t, argsFile)
	require.Len(t, lines, 4)
	require.Contains(t, lines[0], "Notify susssasa{sv}i lectern 0 audio-input-microphone Recording lecture…")
	require.Contains(t, lines[1], "Notify susssasa{sv}i lectern 42 audio-input-microphone Finishing transcription…")
	require.Contains(t, lines[2], "Transcription error  0 0 1600")
	require.Contains(t, lines[3], "CloseNotification u 42")

	// Nothing left to dismiss.
	n.ShowSaved(context.Background(), "")
	require.Len(t, readLines(t, argsFile), 4)
}

func TestNotifierShowSavedNamesTranscript(t *testing.T) {
	argsFile := installBusctlStub(t, `echo 'u 9'`)

	cfg := config.Default().Indicator
	cfg.SoundEnable = false

	n := New(cfg, nil)
	n.ShowDraining(context.Background())
	n.ShowSaved(context.Background(), "/home/student/transcripts/session_20260301_090000.txt")

	lines := readLines(t, argsFile)
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "lectern 9 audio-input-microphone Transcript saved: session_20260301_090000.txt  0 0 3000")
}

func TestNotifierErrorTimeoutFallback(t *testing.T) {
	argsFile := installBusctlStub(t, `echo 'u 7'`)

	cfg := config.Default().Indicator
	cfg.SoundEnable = false
	cfg.ErrorTimeoutMS = 0

	New(cfg, nil).ShowError(context.Background(), "Session save failed")
	lines := readLines(t, argsFile)
	require.Len(t, lines, 1)
	require.True(t, strings.HasSuffix(lines[0], "Session save failed  0 0 1200"), lines[0])
}

func TestNotifierDisabledSkipsDispatch(t *testing.T) {
	argsFile := installBusctlStub(t, `echo 'u 1'`)

	cfg := config.Default().Indicator
	cfg.Enable = false
	cfg.SoundEnable = false

	n := New(cfg, nil)
	n.ShowRecording(context.Background())
	n.ShowDraining(context.Background())
	n.ShowError(context.Background(), "ignored")
	n.ShowSaved(context.Background(), "session.txt")

	_, err := os.Stat(argsFile)
	require.True(t, os.IsNotExist(err))
}

func TestDesktopNotifyRejectsBadResponse(t *testing.T) {
	installBusctlStub(t, `echo 'garbage'`)
	_, err := desktopNotify(context.Background(), "lectern", 0, "hi", 0)
	require.ErrorContains(t, err, "invalid response")

	installBusctlStub(t, `echo 'no bus' >&2; exit 1`)
	_, err = desktopNotify(context.Background(), "lectern", 0, "hi", 0)
	require.ErrorContains(t, err, "no bus")
}

func TestNotifierPlaysCuesWhenSoundEnabled(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.Enable = false
	cfg.SoundEnable = true

	var mu sync.Mutex
	var played []cueKind
	n := New(cfg, nil)
	n.play = func(kind cueKind, _ config.IndicatorConfig) error {
		mu.Lock()
		defer mu.Unlock()
		played = append(played, kind)
		if kind == cueError {
			return errors.New("no sink")
		}
		return nil
	}

	n.ShowRecording(context.Background())
	n.ShowDraining(context.Background())
	n.ShowSaved(context.Background(), "session.txt")
	n.ShowError(context.Background(), "x")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(played) == 4
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []cueKind{cueStart, cueDraining, cueSaved, cueError}, played)
}

func TestBeeepBackendSelection(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.Backend = "beeep"
	n := New(cfg, nil)

	b, ok := n.backend.(*beeepBackend)
	require.True(t, ok)
	require.Equal(t, "lectern", b.title)
	require.NoError(t, b.dismiss(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, b.notify(ctx, "x", 0), context.Canceled)
}
