package config

import "time"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"
	whisper := "whisper-cli"
	ask := "gemini -p"
	ffmpeg := "ffmpeg"

	return Config{
		Log: LogConfig{Level: "info"},
		Audio: AudioConfig{
			Backend:      "pulse",
			Input:        "default",
			Fallback:     "default",
			SampleRate:   16000,
			ChunkSeconds: 5,
			FFmpeg:       CommandConfig{Raw: ffmpeg, Argv: mustParseArgv(ffmpeg)},
		},
		Queue: QueueConfig{
			AudioCapacity:  8,
			RefineCapacity: 8,
			RetryDelay:     100 * time.Millisecond,
		},
		Streaming: PassConfig{
			Backend: "exec",
			Command: CommandConfig{Raw: whisper, Argv: mustParseArgv(whisper)},
			Model:   "ggml-tiny.en.bin",
			Args:    []string{"--no-timestamps", "--beam-size", "1", "--threads", "4"},
			Timeout: 30 * time.Second,
		},
		Refining: PassConfig{
			Backend: "exec",
			Command: CommandConfig{Raw: whisper, Argv: mustParseArgv(whisper)},
			Model:   "ggml-base.en.bin",
			Args: []string{
				"--beam-size", "5",
				"--threads", "8",
				"--word-thold", "0.01",
				"--entropy-thold", "2.4",
			},
			Timeout: 120 * time.Second,
		},
		Models: ModelsConfig{
			Dir:     "models",
			BaseURL: "https://huggingface.co/ggerganov/whisper.cpp/resolve/main",
		},
		Sentence: SentenceConfig{
			MinChars:           10,
			MaxBufferChars:     600,
			MinTranscriptChars: 3,
		},
		Session: SessionConfig{
			Dir:              "transcripts",
			Format:           "txt",
			AutosaveInterval: 30 * time.Second,
			DrainTimeout:     30 * time.Second,
		},
		Memory: MemoryConfig{
			Enable:          true,
			CheckInterval:   10 * time.Second,
			CleanupInterval: 60 * time.Second,
			WarnMB:          500,
			CleanupMB:       1000,
		},
		Ask: AskConfig{
			Command:         CommandConfig{Raw: ask, Argv: mustParseArgv(ask)},
			Timeout:         60 * time.Second,
			MaxContextChars: 50000,
		},
		Store: StoreConfig{
			Enable:        true,
			RetentionDays: 0,
		},
		Telemetry: TelemetryConfig{
			Enable:      true,
			ServiceName: "lectern",
		},
		Bus: BusConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "lectern.transcript",
		},
		LiveView: LiveViewConfig{
			Enable: true,
			Bind:   "127.0.0.1:8765",
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "desktop",
			DesktopAppName: "lectern",
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
		Clipboard: CommandConfig{Raw: clipboard, Argv: mustParseArgv(clipboard)},
	}
}
