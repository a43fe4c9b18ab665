package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// filePayload mirrors the on-disk shape shared by JSONC and YAML config files.
// Pointer fields distinguish "unset" from zero values.
type filePayload struct {
	Log       *logPayload       `json:"log" yaml:"log"`
	Audio     *audioPayload     `json:"audio" yaml:"audio"`
	Queue     *queuePayload     `json:"queue" yaml:"queue"`
	ASR       *asrPayload       `json:"asr" yaml:"asr"`
	Models    *modelsPayload    `json:"models" yaml:"models"`
	Sentence  *sentencePayload  `json:"sentence" yaml:"sentence"`
	Session   *sessionPayload   `json:"session" yaml:"session"`
	Memory    *memoryPayload    `json:"memory" yaml:"memory"`
	Ask       *askPayload       `json:"ask" yaml:"ask"`
	Store     *storePayload     `json:"store" yaml:"store"`
	Telemetry *telemetryPayload `json:"telemetry" yaml:"telemetry"`
	Bus       *busPayload       `json:"bus" yaml:"bus"`
	LiveView  *liveViewPayload  `json:"liveview" yaml:"liveview"`
	Indicator *indicatorPayload `json:"indicator" yaml:"indicator"`

	ClipboardCmd *string `json:"clipboard_cmd" yaml:"clipboard_cmd"`
}

type logPayload struct {
	Level *string `json:"level" yaml:"level"`
}

type audioPayload struct {
	Backend      *string  `json:"backend" yaml:"backend"`
	Input        *string  `json:"input" yaml:"input"`
	Fallback     *string  `json:"fallback" yaml:"fallback"`
	SampleRate   *int     `json:"sample_rate" yaml:"sample_rate"`
	ChunkSeconds *float64 `json:"chunk_seconds" yaml:"chunk_seconds"`
	FFmpegCmd    *string  `json:"ffmpeg_cmd" yaml:"ffmpeg_cmd"`
}

type queuePayload struct {
	AudioCapacity  *int `json:"audio_capacity" yaml:"audio_capacity"`
	RefineCapacity *int `json:"refine_capacity" yaml:"refine_capacity"`
	RetryMS        *int `json:"retry_ms" yaml:"retry_ms"`
}

type asrPayload struct {
	Streaming *passPayload `json:"streaming" yaml:"streaming"`
	Refining  *passPayload `json:"refining" yaml:"refining"`
}

type passPayload struct {
	Backend        *string     `json:"backend" yaml:"backend"`
	Command        *string     `json:"command" yaml:"command"`
	Model          *string     `json:"model" yaml:"model"`
	Args           *stringList `json:"args" yaml:"args"`
	Address        *string     `json:"address" yaml:"address"`
	BaseURL        *string     `json:"base_url" yaml:"base_url"`
	APIKey         *string     `json:"api_key" yaml:"api_key"`
	Language       *string     `json:"language" yaml:"language"`
	TimeoutSeconds *int        `json:"timeout_seconds" yaml:"timeout_seconds"`
}

type modelsPayload struct {
	Dir          *string `json:"dir" yaml:"dir"`
	AutoDownload *bool   `json:"auto_download" yaml:"auto_download"`
	BaseURL      *string `json:"base_url" yaml:"base_url"`
}

type sentencePayload struct {
	MinChars           *int `json:"min_chars" yaml:"min_chars"`
	MaxBufferChars     *int `json:"max_buffer_chars" yaml:"max_buffer_chars"`
	MinTranscriptChars *int `json:"min_transcript_chars" yaml:"min_transcript_chars"`
}

type sessionPayload struct {
	Dir                 *string `json:"dir" yaml:"dir"`
	Format              *string `json:"format" yaml:"format"`
	AutosaveSeconds     *int    `json:"autosave_seconds" yaml:"autosave_seconds"`
	DrainTimeoutSeconds *int    `json:"drain_timeout_seconds" yaml:"drain_timeout_seconds"`
}

type memoryPayload struct {
	Enable                 *bool   `json:"enable" yaml:"enable"`
	CheckIntervalSeconds   *int    `json:"check_interval_seconds" yaml:"check_interval_seconds"`
	CleanupIntervalSeconds *int    `json:"cleanup_interval_seconds" yaml:"cleanup_interval_seconds"`
	WarnMB                 *uint64 `json:"warn_mb" yaml:"warn_mb"`
	CleanupMB              *uint64 `json:"cleanup_mb" yaml:"cleanup_mb"`
}

type askPayload struct {
	Command         *string `json:"command" yaml:"command"`
	TimeoutSeconds  *int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxContextChars *int    `json:"max_context_chars" yaml:"max_context_chars"`
	EnvFile         *string `json:"env_file" yaml:"env_file"`
	CopyAnswer      *bool   `json:"copy_answer" yaml:"copy_answer"`
}

type storePayload struct {
	Enable        *bool   `json:"enable" yaml:"enable"`
	Path          *string `json:"path" yaml:"path"`
	RetentionDays *int    `json:"retention_days" yaml:"retention_days"`
}

type telemetryPayload struct {
	Enable       *bool   `json:"enable" yaml:"enable"`
	ServiceName  *string `json:"service_name" yaml:"service_name"`
	OTLPEndpoint *string `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	TraceStdout  *bool   `json:"trace_stdout" yaml:"trace_stdout"`
}

type busPayload struct {
	Enable        *bool   `json:"enable" yaml:"enable"`
	URL           *string `json:"url" yaml:"url"`
	SubjectPrefix *string `json:"subject_prefix" yaml:"subject_prefix"`
}

type liveViewPayload struct {
	Enable *bool   `json:"enable" yaml:"enable"`
	Bind   *string `json:"bind" yaml:"bind"`
}

type indicatorPayload struct {
	Enable            *bool   `json:"enable" yaml:"enable"`
	Backend           *string `json:"backend" yaml:"backend"`
	DesktopAppName    *string `json:"desktop_app_name" yaml:"desktop_app_name"`
	SoundEnable       *bool   `json:"sound_enable" yaml:"sound_enable"`
	SoundStartFile    *string `json:"sound_start_file" yaml:"sound_start_file"`
	SoundDrainingFile *string `json:"sound_draining_file" yaml:"sound_draining_file"`
	SoundSavedFile    *string `json:"sound_saved_file" yaml:"sound_saved_file"`
	SoundErrorFile    *string `json:"sound_error_file" yaml:"sound_error_file"`
	ErrorTimeoutMS    *int    `json:"error_timeout_ms" yaml:"error_timeout_ms"`
}

// stringList accepts either a list of strings or one whitespace-split string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = splitArgs(single)
		return nil
	}

	return fmt.Errorf("expected string array or space-delimited string")
}

func (l *stringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	case yaml.ScalarNode:
		*l = splitArgs(value.Value)
		return nil
	default:
		return fmt.Errorf("line %d: expected string array or space-delimited string", value.Line)
	}
}

func splitArgs(raw string) []string {
	if argv, err := parseArgv(raw); err == nil {
		return argv
	}
	return strings.Fields(raw)
}

func (payload filePayload) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if payload.Log != nil && payload.Log.Level != nil {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(*payload.Log.Level))
	}

	if a := payload.Audio; a != nil {
		setString(&cfg.Audio.Backend, a.Backend)
		setString(&cfg.Audio.Input, a.Input)
		setString(&cfg.Audio.Fallback, a.Fallback)
		if a.SampleRate != nil {
			cfg.Audio.SampleRate = *a.SampleRate
		}
		if a.ChunkSeconds != nil {
			cfg.Audio.ChunkSeconds = *a.ChunkSeconds
		}
		if a.FFmpegCmd != nil {
			cmd, err := ParseCommand(*a.FFmpegCmd)
			if err != nil {
				return nil, fmt.Errorf("invalid audio.ffmpeg_cmd: %w", err)
			}
			cfg.Audio.FFmpeg = cmd
		}
	}

	if q := payload.Queue; q != nil {
		if q.AudioCapacity != nil {
			cfg.Queue.AudioCapacity = *q.AudioCapacity
		}
		if q.RefineCapacity != nil {
			cfg.Queue.RefineCapacity = *q.RefineCapacity
		}
		if q.RetryMS != nil {
			cfg.Queue.RetryDelay = time.Duration(*q.RetryMS) * time.Millisecond
		}
	}

	if payload.ASR != nil {
		if err := payload.ASR.Streaming.applyTo(&cfg.Streaming, "asr.streaming"); err != nil {
			return nil, err
		}
		if err := payload.ASR.Refining.applyTo(&cfg.Refining, "asr.refining"); err != nil {
			return nil, err
		}
	}

	if m := payload.Models; m != nil {
		setString(&cfg.Models.Dir, m.Dir)
		setString(&cfg.Models.BaseURL, m.BaseURL)
		if m.AutoDownload != nil {
			cfg.Models.AutoDownload = *m.AutoDownload
		}
	}

	if s := payload.Sentence; s != nil {
		if s.MinChars != nil {
			cfg.Sentence.MinChars = *s.MinChars
		}
		if s.MaxBufferChars != nil {
			cfg.Sentence.MaxBufferChars = *s.MaxBufferChars
		}
		if s.MinTranscriptChars != nil {
			cfg.Sentence.MinTranscriptChars = *s.MinTranscriptChars
		}
	}

	if s := payload.Session; s != nil {
		setString(&cfg.Session.Dir, s.Dir)
		if s.Format != nil {
			cfg.Session.Format = strings.ToLower(strings.TrimSpace(*s.Format))
		}
		setSeconds(&cfg.Session.AutosaveInterval, s.AutosaveSeconds)
		setSeconds(&cfg.Session.DrainTimeout, s.DrainTimeoutSeconds)
	}

	if m := payload.Memory; m != nil {
		if m.Enable != nil {
			cfg.Memory.Enable = *m.Enable
		}
		setSeconds(&cfg.Memory.CheckInterval, m.CheckIntervalSeconds)
		setSeconds(&cfg.Memory.CleanupInterval, m.CleanupIntervalSeconds)
		if m.WarnMB != nil {
			cfg.Memory.WarnMB = *m.WarnMB
		}
		if m.CleanupMB != nil {
			cfg.Memory.CleanupMB = *m.CleanupMB
		}
	}

	if a := payload.Ask; a != nil {
		if a.Command != nil {
			cmd, err := ParseCommand(*a.Command)
			if err != nil {
				return nil, fmt.Errorf("invalid ask.command: %w", err)
			}
			cfg.Ask.Command = cmd
		}
		setSeconds(&cfg.Ask.Timeout, a.TimeoutSeconds)
		if a.MaxContextChars != nil {
			cfg.Ask.MaxContextChars = *a.MaxContextChars
		}
		setString(&cfg.Ask.EnvFile, a.EnvFile)
		if a.CopyAnswer != nil {
			cfg.Ask.CopyAnswer = *a.CopyAnswer
		}
	}

	if s := payload.Store; s != nil {
		if s.Enable != nil {
			cfg.Store.Enable = *s.Enable
		}
		setString(&cfg.Store.Path, s.Path)
		if s.RetentionDays != nil {
			cfg.Store.RetentionDays = *s.RetentionDays
		}
	}

	if t := payload.Telemetry; t != nil {
		if t.Enable != nil {
			cfg.Telemetry.Enable = *t.Enable
		}
		setString(&cfg.Telemetry.ServiceName, t.ServiceName)
		setString(&cfg.Telemetry.OTLPEndpoint, t.OTLPEndpoint)
		if t.TraceStdout != nil {
			cfg.Telemetry.TraceStdout = *t.TraceStdout
		}
	}

	if b := payload.Bus; b != nil {
		if b.Enable != nil {
			cfg.Bus.Enable = *b.Enable
		}
		setString(&cfg.Bus.URL, b.URL)
		setString(&cfg.Bus.SubjectPrefix, b.SubjectPrefix)
	}

	if l := payload.LiveView; l != nil {
		if l.Enable != nil {
			cfg.LiveView.Enable = *l.Enable
		}
		setString(&cfg.LiveView.Bind, l.Bind)
	}

	if i := payload.Indicator; i != nil {
		if i.Enable != nil {
			cfg.Indicator.Enable = *i.Enable
		}
		if i.Backend != nil {
			cfg.Indicator.Backend = strings.ToLower(strings.TrimSpace(*i.Backend))
		}
		setString(&cfg.Indicator.DesktopAppName, i.DesktopAppName)
		if i.SoundEnable != nil {
			cfg.Indicator.SoundEnable = *i.SoundEnable
		}
		setString(&cfg.Indicator.SoundStartFile, i.SoundStartFile)
		setString(&cfg.Indicator.SoundDrainingFile, i.SoundDrainingFile)
		setString(&cfg.Indicator.SoundSavedFile, i.SoundSavedFile)
		setString(&cfg.Indicator.SoundErrorFile, i.SoundErrorFile)
		if i.ErrorTimeoutMS != nil {
			cfg.Indicator.ErrorTimeoutMS = *i.ErrorTimeoutMS
		}
	}

	if payload.ClipboardCmd != nil {
		cmd, err := ParseCommand(*payload.ClipboardCmd)
		if err != nil {
			return nil, fmt.Errorf("invalid clipboard_cmd: %w", err)
		}
		cfg.Clipboard = cmd
	}

	if cfg.Streaming.Backend == "openai" && cfg.Streaming.APIKey != "" {
		warnings = append(warnings, Warning{Message: "asr.streaming.api_key is stored in plain text; prefer OPENAI_API_KEY"})
	}
	if cfg.Refining.Backend == "openai" && cfg.Refining.APIKey != "" {
		warnings = append(warnings, Warning{Message: "asr.refining.api_key is stored in plain text; prefer OPENAI_API_KEY"})
	}

	return warnings, nil
}

func (p *passPayload) applyTo(pass *PassConfig, key string) error {
	if p == nil {
		return nil
	}
	if p.Backend != nil {
		pass.Backend = strings.ToLower(strings.TrimSpace(*p.Backend))
	}
	if p.Command != nil {
		cmd, err := ParseCommand(*p.Command)
		if err != nil {
			return fmt.Errorf("invalid %s.command: %w", key, err)
		}
		pass.Command = cmd
	}
	setString(&pass.Model, p.Model)
	if p.Args != nil {
		pass.Args = append([]string(nil), (*p.Args)...)
	}
	setString(&pass.Address, p.Address)
	setString(&pass.BaseURL, p.BaseURL)
	setString(&pass.APIKey, p.APIKey)
	setString(&pass.Language, p.Language)
	setSeconds(&pass.Timeout, p.TimeoutSeconds)
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setSeconds(dst *time.Duration, src *int) {
	if src != nil {
		*dst = time.Duration(*src) * time.Second
	}
}
