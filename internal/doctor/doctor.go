// Package doctor runs readiness diagnostics for config, tools, models,
// audio, recognizers, and the optional archive and event bus.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/lectern/internal/asr"
	"github.com/rbright/lectern/internal/audio"
	"github.com/rbright/lectern/internal/bus"
	"github.com/rbright/lectern/internal/config"
	"github.com/rbright/lectern/internal/logging"
	"github.com/rbright/lectern/internal/memory"
	"github.com/rbright/lectern/internal/models"
	"github.com/rbright/lectern/internal/store"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result. Optional checks never fail the report.
type Check struct {
	Name     string
	Pass     bool
	Optional bool
	Message  string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all required checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass && !check.Optional {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		switch {
		case !check.Pass && check.Optional:
			status = "WARN"
		case !check.Pass:
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	cfg := loaded.Config
	checks := []Check{}

	message := fmt.Sprintf("loaded %q", loaded.Path)
	if n := len(loaded.Warnings); n > 0 {
		message = fmt.Sprintf("%s with %d warning(s)", message, n)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: message})

	checks = append(checks, checkPass(ctx, cfg, "streaming", cfg.Streaming)...)
	checks = append(checks, checkPass(ctx, cfg, "refining", cfg.Refining)...)

	ffmpeg := checkCommand(cfg.Audio.FFmpeg.Argv, "audio.ffmpeg")
	ffmpeg.Optional = true
	if !ffmpeg.Pass {
		ffmpeg.Message += " (only needed for non-WAV file input)"
	}
	checks = append(checks, ffmpeg)

	checks = append(checks, checkAudioSelection(ctx, cfg))
	checks = append(checks, checkMemory(ctx))
	checks = append(checks, checkWritableDir("session.dir", cfg.Session.Dir))

	ask := checkCommand(cfg.Ask.Command.Argv, "ask.command")
	ask.Optional = true
	checks = append(checks, ask)

	clipboard := checkCommand(cfg.Clipboard.Argv, "clipboard_cmd")
	clipboard.Optional = !cfg.Ask.CopyAnswer
	checks = append(checks, clipboard)

	if cfg.Store.Enable {
		checks = append(checks, checkStore(ctx, cfg))
	}
	if cfg.Bus.Enable {
		checks = append(checks, checkBus(ctx, cfg.Bus))
	}

	return Report{Checks: checks}
}

// checkPass validates whatever the configured backend of one pass depends on.
func checkPass(ctx context.Context, cfg config.Config, name string, pass config.PassConfig) []Check {
	key := name + "." + pass.Backend
	switch strings.ToLower(strings.TrimSpace(pass.Backend)) {
	case "", "exec":
		return []Check{
			checkCommand(pass.Command.Argv, name+".command"),
			checkModel(name+".model", cfg.ModelPath(pass.Model), cfg.Models.AutoDownload),
		}
	case "grpc":
		status, err := asr.CheckHealth(ctx, pass.Address, probeTimeout)
		if err != nil {
			return []Check{{Name: key, Pass: false, Message: err.Error()}}
		}
		ok := status == "SERVING"
		return []Check{{Name: key, Pass: ok, Message: fmt.Sprintf("%s at %s", status, pass.Address)}}
	case "openai":
		if strings.TrimSpace(pass.APIKey) != "" || strings.TrimSpace(os.Getenv("OPENAI_API_KEY")) != "" {
			return []Check{{Name: key, Pass: true, Message: "api key configured"}}
		}
		return []Check{{Name: key, Pass: false, Message: "set api_key or OPENAI_API_KEY"}}
	default:
		return []Check{{Name: key, Pass: false, Message: fmt.Sprintf("unsupported backend %q", pass.Backend)}}
	}
}

// checkModel validates a local ggml model file.
func checkModel(name string, path string, autoDownload bool) Check {
	st := models.Check(path)
	if st.Valid {
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s (%.1f MB)", path, float64(st.Size)/(1024*1024))}
	}
	if !st.Present && autoDownload {
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s missing; will download on first use", path)}
	}
	return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s: %s (run `lectern models --download`)", path, st.Problem)}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	check := checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
	check.Name = name
	return check
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	devices, err := audio.ListDevices(ctx, cfg.Audio.Backend)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	selection, err := audio.SelectDevice(devices, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

func checkMemory(ctx context.Context) Check {
	sampler, err := memory.NewProcessSampler(ctx)
	if err != nil {
		return Check{Name: "memory", Pass: false, Optional: true, Message: err.Error()}
	}
	sample, err := sampler.Sample(ctx)
	if err != nil {
		return Check{Name: "memory", Pass: false, Optional: true, Message: err.Error()}
	}
	return memoryCheck(sample)
}

func memoryCheck(sample memory.Sample) Check {
	health, message := memory.Assess(sample)
	return Check{
		Name:     "memory",
		Pass:     health == memory.HealthOK,
		Optional: health == memory.HealthWarning,
		Message:  message,
	}
}

// checkWritableDir creates dir when needed and proves a file can be written.
func checkWritableDir(name string, dir string) Check {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("not writable: %v", err)}
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("writable %s", abs)}
}

func checkStore(ctx context.Context, cfg config.Config) Check {
	path, err := cfg.StorePath()
	if err != nil {
		return Check{Name: "store", Pass: false, Message: err.Error()}
	}
	st, err := store.Open(ctx, store.Options{Path: path, RetentionDays: cfg.Store.RetentionDays, Logger: logging.Discard()})
	if err != nil {
		return Check{Name: "store", Pass: false, Message: err.Error()}
	}
	defer st.Close()

	sessions, err := st.List(ctx)
	if err != nil {
		return Check{Name: "store", Pass: false, Message: err.Error()}
	}
	return Check{Name: "store", Pass: true, Message: fmt.Sprintf("%s (%d sessions)", path, len(sessions))}
}

func checkBus(ctx context.Context, cfg config.BusConfig) Check {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	pub, err := bus.Connect(probeCtx, cfg, logging.Discard())
	if err != nil {
		return Check{Name: "bus", Pass: false, Message: err.Error()}
	}
	defer pub.Close()
	if !pub.Healthy() {
		return Check{Name: "bus", Pass: false, Message: fmt.Sprintf("connection to %s not established", cfg.URL)}
	}
	return Check{Name: "bus", Pass: true, Message: fmt.Sprintf("connected to %s (subject %s)", cfg.URL, pub.Subject(bus.KindAdded))}
}
