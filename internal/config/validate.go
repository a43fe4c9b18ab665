package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	switch cfg.Audio.Backend {
	case "pulse", "malgo":
	default:
		return nil, fmt.Errorf("audio.backend must be one of: pulse, malgo")
	}
	if cfg.Audio.SampleRate <= 0 {
		return nil, fmt.Errorf("audio.sample_rate must be > 0")
	}
	if cfg.Audio.SampleRate != 16000 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("audio.sample_rate=%d; whisper models expect 16000", cfg.Audio.SampleRate)})
	}
	if cfg.Audio.ChunkSeconds <= 0 {
		return nil, fmt.Errorf("audio.chunk_seconds must be > 0")
	}
	if cfg.Audio.ChunkSeconds > 30 {
		warnings = append(warnings, Warning{Message: "audio.chunk_seconds above 30 exceeds the whisper context window"})
	}

	if cfg.Queue.AudioCapacity <= 0 {
		return nil, fmt.Errorf("queue.audio_capacity must be > 0")
	}
	if cfg.Queue.RefineCapacity <= 0 {
		return nil, fmt.Errorf("queue.refine_capacity must be > 0")
	}
	if cfg.Queue.RetryDelay < 0 {
		return nil, fmt.Errorf("queue.retry_ms must be >= 0")
	}

	if err := validatePass("asr.streaming", cfg.Streaming); err != nil {
		return nil, err
	}
	if err := validatePass("asr.refining", cfg.Refining); err != nil {
		return nil, err
	}

	if cfg.Sentence.MinChars < 0 {
		return nil, fmt.Errorf("sentence.min_chars must be >= 0")
	}
	if cfg.Sentence.MaxBufferChars <= cfg.Sentence.MinChars {
		return nil, fmt.Errorf("sentence.max_buffer_chars must be > sentence.min_chars")
	}

	if strings.TrimSpace(cfg.Session.Dir) == "" {
		return nil, fmt.Errorf("session.dir must not be empty")
	}
	if !IsSessionFormat(cfg.Session.Format) {
		return nil, fmt.Errorf("session.format must be one of: txt, md, json")
	}
	if cfg.Session.AutosaveInterval < 0 {
		return nil, fmt.Errorf("session.autosave_seconds must be >= 0")
	}
	if cfg.Session.DrainTimeout <= 0 {
		return nil, fmt.Errorf("session.drain_timeout_seconds must be > 0")
	}

	if cfg.Memory.Enable {
		if cfg.Memory.CheckInterval <= 0 {
			return nil, fmt.Errorf("memory.check_interval_seconds must be > 0")
		}
		if cfg.Memory.CleanupMB < cfg.Memory.WarnMB {
			return nil, fmt.Errorf("memory.cleanup_mb must be >= memory.warn_mb")
		}
	}

	if len(cfg.Ask.Command.Argv) == 0 {
		return nil, fmt.Errorf("ask.command must not be empty")
	}
	if cfg.Ask.Timeout <= 0 {
		return nil, fmt.Errorf("ask.timeout_seconds must be > 0")
	}
	if cfg.Ask.MaxContextChars <= 0 {
		return nil, fmt.Errorf("ask.max_context_chars must be > 0")
	}
	if cfg.Store.RetentionDays < 0 {
		return nil, fmt.Errorf("store.retention_days must be >= 0")
	}

	if cfg.Bus.Enable && strings.TrimSpace(cfg.Bus.URL) == "" {
		return nil, fmt.Errorf("bus.url must not be empty when bus.enable=true")
	}
	if cfg.LiveView.Enable && strings.TrimSpace(cfg.LiveView.Bind) == "" {
		return nil, fmt.Errorf("liveview.bind must not be empty when liveview.enable=true")
	}

	backend := cfg.Indicator.Backend
	if backend != "desktop" && backend != "beeep" {
		return nil, fmt.Errorf("indicator.backend must be one of: desktop, beeep")
	}
	if backend == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}
	if cfg.Ask.CopyAnswer && len(cfg.Clipboard.Argv) == 0 {
		return nil, fmt.Errorf("clipboard_cmd must not be empty when ask.copy_answer=true")
	}

	return warnings, nil
}

func validatePass(key string, pass PassConfig) error {
	switch pass.Backend {
	case "exec":
		if len(pass.Command.Argv) == 0 {
			return fmt.Errorf("%s.command must not be empty when backend=exec", key)
		}
		if strings.TrimSpace(pass.Model) == "" {
			return fmt.Errorf("%s.model must not be empty when backend=exec", key)
		}
	case "grpc":
		if strings.TrimSpace(pass.Address) == "" {
			return fmt.Errorf("%s.address must not be empty when backend=grpc", key)
		}
	case "openai":
	default:
		return fmt.Errorf("%s.backend must be one of: exec, grpc, openai", key)
	}
	if pass.Timeout <= 0 {
		return fmt.Errorf("%s.timeout_seconds must be > 0", key)
	}
	return nil
}

// IsSessionFormat reports whether format names a supported session file format.
func IsSessionFormat(format string) bool {
	switch format {
	case "txt", "md", "json":
		return true
	default:
		return false
	}
}
