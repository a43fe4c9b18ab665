// Package cli parses lectern's command line into a typed invocation.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type Command string

const (
	CommandLive     Command = "live"
	CommandFile     Command = "file"
	CommandAsk      Command = "ask"
	CommandSessions Command = "sessions"
	CommandSummary  Command = "summary"
	CommandSearch   Command = "search"
	CommandStatus   Command = "status"
	CommandStop     Command = "stop"
	CommandDevices  Command = "devices"
	CommandDoctor   Command = "doctor"
	CommandModels   Command = "models"
	CommandASRServe Command = "asr-serve"
	CommandVersion  Command = "version"
	CommandHelp     Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandLive:     {},
	CommandFile:     {},
	CommandAsk:      {},
	CommandSessions: {},
	CommandSummary:  {},
	CommandSearch:   {},
	CommandStatus:   {},
	CommandStop:     {},
	CommandDevices:  {},
	CommandDoctor:   {},
	CommandModels:   {},
	CommandASRServe: {},
	CommandVersion:  {},
	CommandHelp:     {},
}

// LiveOptions are the flags of `lectern live`.
type LiveOptions struct {
	Session string
	NoWeb   bool
	Replay  string
}

// FileOptions are the flags of `lectern file`.
type FileOptions struct {
	Input          string
	Output         string
	Mode           string
	Partial        string
	StartSeconds   float64
	Format         string
	StreamingModel string
	RefiningModel  string
}

// ServeOptions are the flags of `lectern asr-serve`.
type ServeOptions struct {
	Listen string
	Pass   string
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool

	Live     LiveOptions
	File     FileOptions
	Serve    ServeOptions
	Question string
	Term     string
	Limit    int
	Index    int
	Download bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			if err := parseCommandArgs(&parsed, args[i+1:]); err != nil {
				return Parsed{}, err
			}
			return parsed, nil
		}
	}

	return parsed, nil
}

// parseCommandArgs applies per-command flags and positional arguments.
func parseCommandArgs(parsed *Parsed, rest []string) error {
	fs := flag.NewFlagSet(string(parsed.Command), flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	switch parsed.Command {
	case CommandLive:
		fs.StringVar(&parsed.Live.Session, "session", "", "")
		fs.BoolVar(&parsed.Live.NoWeb, "no-web", false, "")
		fs.StringVar(&parsed.Live.Replay, "replay", "", "")
	case CommandFile:
		fs.StringVar(&parsed.File.Input, "input", "", "")
		fs.StringVar(&parsed.File.Output, "output", "", "")
		fs.StringVar(&parsed.File.Mode, "mode", "two-pass", "")
		fs.StringVar(&parsed.File.Partial, "partial", "", "")
		fs.Float64Var(&parsed.File.StartSeconds, "start-time", 0, "")
		fs.StringVar(&parsed.File.Format, "format", "txt", "")
		fs.StringVar(&parsed.File.StreamingModel, "streaming-model", "", "")
		fs.StringVar(&parsed.File.RefiningModel, "refining-model", "", "")
	case CommandSearch:
		fs.IntVar(&parsed.Limit, "limit", 20, "")
	case CommandModels:
		fs.BoolVar(&parsed.Download, "download", false, "")
	case CommandASRServe:
		fs.StringVar(&parsed.Serve.Listen, "listen", "127.0.0.1:50051", "")
		fs.StringVar(&parsed.Serve.Pass, "pass", "refining", "")
	}

	if err := fs.Parse(rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			parsed.ShowHelp = true
			return nil
		}
		return fmt.Errorf("%s: %w", parsed.Command, err)
	}
	positional := fs.Args()

	switch parsed.Command {
	case CommandAsk:
		parsed.Question = strings.TrimSpace(strings.Join(positional, " "))
		if parsed.Question == "" {
			return errors.New("ask requires a question")
		}
		return nil
	case CommandSearch:
		parsed.Term = strings.TrimSpace(strings.Join(positional, " "))
		if parsed.Term == "" {
			return errors.New("search requires a term")
		}
		if parsed.Limit <= 0 {
			return errors.New("search --limit must be positive")
		}
		return nil
	case CommandSummary:
		if len(positional) > 1 {
			return fmt.Errorf("unexpected arguments after command %q", parsed.Command)
		}
		if len(positional) == 1 {
			index, err := strconv.Atoi(positional[0])
			if err != nil || index < 1 {
				return fmt.Errorf("summary index must be a positive integer, got %q", positional[0])
			}
			parsed.Index = index
		}
		return nil
	case CommandFile:
		if strings.TrimSpace(parsed.File.Input) == "" {
			return errors.New("file requires --input")
		}
		if parsed.File.StartSeconds < 0 {
			return errors.New("file --start-time must not be negative")
		}
	case CommandASRServe:
		if parsed.Serve.Pass != "streaming" && parsed.Serve.Pass != "refining" {
			return fmt.Errorf("asr-serve --pass must be streaming or refining, got %q", parsed.Serve.Pass)
		}
	}

	if len(positional) > 0 {
		return fmt.Errorf("unexpected arguments after command %q", parsed.Command)
	}
	return nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command> [flags]

Commands:
  live       Record and transcribe a lecture from the microphone
               --session NAME   continue a saved session
               --no-web         disable the browser live view
               --replay PATH    feed an audio file through the live pipeline
  file       Transcribe an audio file
               --input PATH --output PATH --format txt|md|json
               --mode two-pass|stream|refine|resume
               --partial PATH --start-time SECONDS (resume mode)
               --streaming-model PATH --refining-model PATH
  ask        Ask a question about saved transcripts
  sessions   List saved sessions
  summary    Summarize one session by index, or all sessions
  search     Search the session archive (--limit N)
  status     Print the active live session state
  stop       Stop the active live session and save it
  devices    List available input devices
  doctor     Run configuration and environment checks
  models     Check local models (--download fetches missing ones)
  asr-serve  Serve a configured recognizer over gRPC
               --listen ADDR --pass streaming|refining
  version    Print version information
  help       Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/lectern/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
