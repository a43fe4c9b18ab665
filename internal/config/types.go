// Package config resolves, parses, validates, and defaults lectern configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by lectern.
type Config struct {
	Log       LogConfig
	Audio     AudioConfig
	Queue     QueueConfig
	Streaming PassConfig
	Refining  PassConfig
	Models    ModelsConfig
	Sentence  SentenceConfig
	Session   SessionConfig
	Memory    MemoryConfig
	Ask       AskConfig
	Store     StoreConfig
	Telemetry TelemetryConfig
	Bus       BusConfig
	LiveView  LiveViewConfig
	Indicator IndicatorConfig
	Clipboard CommandConfig
}

// LogConfig controls the JSONL logger level.
type LogConfig struct {
	Level string
}

// AudioConfig controls capture backend and input-source selection.
type AudioConfig struct {
	Backend      string
	Input        string
	Fallback     string
	SampleRate   int
	ChunkSeconds float64
	FFmpeg       CommandConfig
}

// ChunkBytes is the size of one s16le mono capture chunk.
func (a AudioConfig) ChunkBytes() int {
	return int(float64(a.SampleRate)*a.ChunkSeconds) * 2
}

// QueueConfig controls bounded queue sizing and the single put retry.
type QueueConfig struct {
	AudioCapacity  int
	RefineCapacity int
	RetryDelay     time.Duration
}

// PassConfig selects and tunes the recognizer for one transcription pass.
type PassConfig struct {
	Backend  string
	Command  CommandConfig
	Model    string
	Args     []string
	Address  string
	BaseURL  string
	APIKey   string
	Language string
	Timeout  time.Duration
}

// ModelsConfig controls local ggml model resolution and download.
type ModelsConfig struct {
	Dir          string
	AutoDownload bool
	BaseURL      string
}

// SentenceConfig controls sentence buffering on the streaming pass.
type SentenceConfig struct {
	MinChars           int
	MaxBufferChars     int
	MinTranscriptChars int
}

// SessionConfig controls transcript session persistence.
type SessionConfig struct {
	Dir              string
	Format           string
	AutosaveInterval time.Duration
	DrainTimeout     time.Duration
}

// MemoryConfig controls the resident-memory watchdog.
type MemoryConfig struct {
	Enable          bool
	CheckInterval   time.Duration
	CleanupInterval time.Duration
	WarnMB          uint64
	CleanupMB       uint64
}

// AskConfig controls the transcript question-answering command.
type AskConfig struct {
	Command         CommandConfig
	Timeout         time.Duration
	MaxContextChars int
	EnvFile         string
	CopyAnswer      bool
}

// StoreConfig controls the SQLite session archive.
type StoreConfig struct {
	Enable        bool
	Path          string
	RetentionDays int
}

// TelemetryConfig controls metrics and trace export.
type TelemetryConfig struct {
	Enable       bool
	ServiceName  string
	OTLPEndpoint string
	TraceStdout  bool
}

// BusConfig controls transcript event publishing over NATS.
type BusConfig struct {
	Enable        bool
	URL           string
	SubjectPrefix string
}

// LiveViewConfig controls the browser live view server.
type LiveViewConfig struct {
	Enable bool
	Bind   string
}

// IndicatorConfig controls desktop notification and audio cue behavior.
type IndicatorConfig struct {
	Enable            bool
	Backend           string
	DesktopAppName    string
	SoundEnable       bool
	SoundStartFile    string
	SoundDrainingFile string
	SoundSavedFile    string
	SoundErrorFile    string
	ErrorTimeoutMS    int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
