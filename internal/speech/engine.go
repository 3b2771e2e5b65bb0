// Package speech drives the platform's own speech command (PowerShell
// System.Speech, macOS say or eSpeak) behind an SpVoice-like interface.
package speech

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/srmooon/vcnarrator/internal/protocol"
)

// ErrNoEngine is returned when no speech command is available.
var ErrNoEngine = errors.New("no speech engine found")

// Utterance is one thing to say with native rate and volume.
type Utterance struct {
	Text    string
	VoiceID string
	Rate    int // -10..10
	Volume  int // 0..100
}

// Invocation is a fully built command line.
type Invocation struct {
	Name  string
	Args  []string
	Stdin string
}

// Engine knows how to list voices and build a speak command for one speech
// program.
type Engine interface {
	// Name identifies the engine in logs and config.
	Name() string
	// ListVoices returns the command that prints the installed voices.
	ListVoices() Invocation
	// ParseVoices reads the output of the ListVoices command.
	ParseVoices(out []byte) []protocol.Voice
	// Speak returns the command that says u and exits when done.
	Speak(u Utterance) Invocation
}

// Select returns the engine called name. "auto" picks by operating system.
func Select(name string) (Engine, error) {
	if name == "auto" || name == "" {
		switch runtime.GOOS {
		case "windows":
			name = "powershell"
		case "darwin":
			name = "say"
		default:
			name = "espeak"
		}
	}

	switch name {
	case "powershell":
		return NewPowerShell(), nil
	case "say":
		if _, err := exec.LookPath("say"); err != nil {
			return nil, fmt.Errorf("%w: say: %v", ErrNoEngine, err)
		}
		return NewSay(), nil
	case "espeak":
		for _, bin := range []string{"espeak-ng", "espeak"} {
			if _, err := exec.LookPath(bin); err == nil {
				return NewESpeak(bin), nil
			}
		}
		return nil, fmt.Errorf("%w: espeak-ng or espeak not in PATH", ErrNoEngine)
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", ErrNoEngine, name)
	}
}

// wordsPerMinute maps a native rate onto a words-per-minute speed around
// the usual 175 wpm.
func wordsPerMinute(rate int) int {
	return 175 + protocol.ClampRate(rate)*15
}
