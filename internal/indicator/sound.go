package indicator

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strings"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/jfreymuth/pulse"
	"github.com/rbright/lectern/internal/config"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueDraining
	cueSaved
	cueError
)

const (
	cueSampleRate = 22050
	cueVolume     = 0.16
	cueFade       = 4 * time.Millisecond
)

// note is one step of a cue. A zero frequency is a rest.
type note struct {
	hz float64
	ms int
}

// cue pairs a built-in melody with the config field that overrides it.
type cue struct {
	name  string
	notes []note
	file  func(config.IndicatorConfig) string
}

var cues = map[cueKind]cue{
	cueStart: {
		name:  "start",
		notes: []note{{hz: 660, ms: 60}, {ms: 20}, {hz: 880, ms: 60}, {ms: 20}, {hz: 1320, ms: 90}},
		file:  func(c config.IndicatorConfig) string { return c.SoundStartFile },
	},
	cueDraining: {
		name:  "draining",
		notes: []note{{hz: 784, ms: 90}, {ms: 30}, {hz: 587, ms: 140}},
		file:  func(c config.IndicatorConfig) string { return c.SoundDrainingFile },
	},
	cueSaved: {
		name:  "saved",
		notes: []note{{hz: 523, ms: 70}, {ms: 20}, {hz: 659, ms: 70}, {ms: 20}, {hz: 784, ms: 160}},
		file:  func(c config.IndicatorConfig) string { return c.SoundSavedFile },
	},
	cueError: {
		name:  "error",
		notes: []note{{hz: 440, ms: 110}, {ms: 40}, {hz: 330, ms: 180}},
		file:  func(c config.IndicatorConfig) string { return c.SoundErrorFile },
	},
}

// emitCue plays the configured file for kind, then the built-in melody over
// PulseAudio, then a terminal beep.
func emitCue(kind cueKind, cfg config.IndicatorConfig) error {
	c, ok := cues[kind]
	if !ok {
		return nil
	}

	if path := strings.TrimSpace(c.file(cfg)); path != "" && playFile(path) == nil {
		return nil
	}

	playErr := playPCM(c.name, render(c.notes))
	if playErr == nil {
		return nil
	}
	hz, ms := c.beep()
	if err := beeep.Beep(hz, ms); err != nil {
		return fmt.Errorf("%s cue: %w; beep fallback: %v", c.name, playErr, err)
	}
	return nil
}

// beep reduces the melody to its highest note over its full length.
func (c cue) beep() (float64, int) {
	var hz float64
	ms := 0
	for _, n := range c.notes {
		hz = math.Max(hz, n.hz)
		ms += n.ms
	}
	return hz, ms
}

func playFile(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "pw-play", "--media-role", "Notification", path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("pw-play %q: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func playPCM(name string, samples []float32) error {
	if len(samples) == 0 {
		return nil
	}

	client, err := pulse.NewClient(pulse.ClientApplicationName("lectern"))
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	rest := samples
	stream, err := client.NewPlayback(
		pulse.Float32Reader(func(buf []float32) (int, error) {
			n := copy(buf, rest)
			rest = rest[n:]
			if len(rest) == 0 {
				return n, pulse.EndOfData
			}
			return n, nil
		}),
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("lectern "+name+" cue"),
	)
	if err != nil {
		return fmt.Errorf("open pulse playback: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	return stream.Error()
}

// render turns notes into mono float samples. Each tone fades in and out
// over cueFade so note edges do not click.
func render(notes []note) []float32 {
	total := 0
	for _, n := range notes {
		total += sampleCount(n.ms)
	}

	out := make([]float32, 0, total)
	fade := int(cueFade.Seconds() * cueSampleRate)
	for _, n := range notes {
		count := sampleCount(n.ms)
		if n.hz <= 0 {
			out = append(out, make([]float32, count)...)
			continue
		}
		edge := min(fade, count/2)
		step := 2 * math.Pi * n.hz / cueSampleRate
		for i := range count {
			gain := 1.0
			if d := min(i, count-1-i); d < edge {
				gain = 0.5 - 0.5*math.Cos(math.Pi*float64(d)/float64(edge))
			}
			out = append(out, float32(cueVolume*gain*math.Sin(step*float64(i))))
		}
	}
	return out
}

func sampleCount(ms int) int {
	if ms <= 0 {
		return 0
	}
	return ms * cueSampleRate / 1000
}
