package rag

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/lectern/internal/config"
	"github.com/rbright/lectern/internal/session"
)

func writeFile(t *testing.T, dir string, name string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func writeLibrary(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "session_20260301_090000.txt", "[Refined] Thermodynamics covers heat.\n")
	writeFile(t, dir, "session_20260302_090000.md", "# Lecture Transcript\n\nEntropy never decreases.\n")
	writeFile(t, dir, "session_20260302_090000.txt.partial", "ignored autosave")
	writeFile(t, dir, "notes.txt", "ignored notes")

	snap := session.Snapshot{
		ID:        "abc",
		StartedAt: time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
		Entries:   []session.Entry{{ID: 1, Text: "Carnot engines are ideal.", Status: session.StatusRefined}},
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	writeFile(t, dir, "session_20260303_090000.json", string(data))
	return dir
}

// writeEcho installs a fake AI command that prints its last argument and
// the LECTURE_TOKEN variable.
func writeEcho(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ai")
	script := `#!/usr/bin/env bash
set -euo pipefail
for last; do :; done
printf 'token=%s\n%s\n' "${LECTURE_TOKEN:-}" "$last"
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestLoadReadsSessionFilesInOrder(t *testing.T) {
	lib, err := Load(writeLibrary(t))
	require.NoError(t, err)
	require.Len(t, lib.Transcripts, 3)

	require.Equal(t, "20260301", lib.Transcripts[0].Date)
	require.Equal(t, "session_20260302_090000", lib.Transcripts[1].Stem)
	require.Contains(t, lib.Transcripts[2].Content, "[Refined] Carnot engines are ideal.")
	require.Contains(t, lib.Transcripts[2].Content, "Transcription Session - 2026-03-03 09:00:00")

	second, err := lib.Get(2)
	require.NoError(t, err)
	require.Contains(t, second.Content, "Entropy")

	_, err = lib.Get(0)
	require.EqualError(t, err, "invalid session index 0 (have 3 sessions)")
	_, err = lib.Get(4)
	require.Error(t, err)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(t.TempDir())
	require.ErrorIs(t, err, ErrNoTranscripts)

	dir := t.TempDir()
	writeFile(t, dir, "session_20260101_000000.json", "{not json")
	_, err = Load(dir)
	require.ErrorContains(t, err, "decode transcript")
}

func TestContextStopsAtCap(t *testing.T) {
	lib := &Library{Transcripts: []Transcript{
		{Date: "20260101", Content: strings.Repeat("a", 40)},
		{Date: "20260102", Content: strings.Repeat("b", 40)},
		{Date: "20260103", Content: "c"},
	}}

	ctx := lib.Context(50)
	require.Equal(t, "=== Session 20260101 ===\n"+strings.Repeat("a", 40)+"\n", ctx)

	all := lib.Context(0)
	require.Equal(t, 3, strings.Count(all, "=== Session"))
	require.Equal(t, 81, lib.TotalLength())
}

func TestPromptIncludesQuestionAndContext(t *testing.T) {
	prompt := Prompt("What is entropy?", "=== Session 20260101 ===\nstuff\n")
	require.True(t, strings.HasPrefix(prompt, "You are an AI assistant helping with lecture transcript analysis."))
	require.Contains(t, prompt, "CONTEXT (Lecture Transcripts):\n=== Session 20260101 ===\nstuff\n")
	require.Contains(t, prompt, "QUESTION: What is entropy?")
	require.Contains(t, prompt, "please say so clearly.")
}

func TestAskerPassesPromptAsLastArgWithEnvFile(t *testing.T) {
	lib, err := Load(writeLibrary(t))
	require.NoError(t, err)

	envFile := filepath.Join(t.TempDir(), ".env")
	writeFile(t, filepath.Dir(envFile), ".env", "LECTURE_TOKEN=s3cret\n")

	cfg := config.Default().Ask
	cfg.Command = config.CommandConfig{Argv: []string{writeEcho(t), "-p"}}
	cfg.EnvFile = envFile

	answer, err := NewAsker(lib, cfg, nil).Ask(context.Background(), "  What is entropy?  ")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(answer, "token=s3cret\n"))
	require.Contains(t, answer, "QUESTION: What is entropy?")
	require.Contains(t, answer, "=== Session 20260301 ===")
	require.Contains(t, answer, "=== Session 20260303 ===")

	_, err = NewAsker(lib, cfg, nil).Ask(context.Background(), " ")
	require.EqualError(t, err, "question is empty")
}

func TestAskerSummary(t *testing.T) {
	lib, err := Load(writeLibrary(t))
	require.NoError(t, err)

	cfg := config.Default().Ask
	cfg.Command = config.CommandConfig{Argv: []string{writeEcho(t)}}
	asker := NewAsker(lib, cfg, nil)

	one, err := asker.Summary(context.Background(), 2)
	require.NoError(t, err)
	require.Contains(t, one, "QUESTION: Provide a detailed summary of this lecture session from 20260302")
	require.Contains(t, one, "Entropy never decreases.")
	require.NotContains(t, one, "Thermodynamics")

	all, err := asker.Summary(context.Background(), 0)
	require.NoError(t, err)
	require.Contains(t, all, "highlighting key topics and themes")
	require.Contains(t, all, "Thermodynamics")

	_, err = asker.Summary(context.Background(), 9)
	require.Error(t, err)
}

func TestRunnerFailures(t *testing.T) {
	_, err := Runner{}.Run(context.Background(), "p")
	require.EqualError(t, err, "ask.command is empty")

	dir := t.TempDir()
	failing := filepath.Join(dir, "fail")
	require.NoError(t, os.WriteFile(failing, []byte("#!/usr/bin/env bash\necho 'quota exceeded' >&2\nexit 3\n"), 0o755))
	_, err = Runner{Argv: []string{failing}}.Run(context.Background(), "p")
	require.ErrorContains(t, err, "quota exceeded")

	slow := filepath.Join(dir, "slow")
	require.NoError(t, os.WriteFile(slow, []byte("#!/usr/bin/env bash\nexec sleep 5\n"), 0o755))
	_, err = Runner{Argv: []string{slow}, Timeout: 100 * time.Millisecond}.Run(context.Background(), "p")
	require.ErrorContains(t, err, "timed out after 100ms")

	_, err = Runner{Argv: []string{slow}, EnvFile: filepath.Join(dir, "nope.env")}.Run(context.Background(), "p")
	require.ErrorContains(t, err, "load ask env file")
	require.True(t, errors.Is(err, os.ErrNotExist))
}
