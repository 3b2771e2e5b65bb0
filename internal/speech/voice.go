package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/srmooon/vcnarrator/internal/protocol"
)

// CommandVoice behaves like an SpVoice built on top of a speech command.
// Utterances play one at a time in order; a purge drops the queue and kills
// the one playing.
type CommandVoice struct {
	engine Engine
	logger *log.Logger

	mu      sync.Mutex
	voiceID string
	rate    int
	volume  int
	queue   []*job
	current *exec.Cmd
	running bool
}

type job struct {
	inv  Invocation
	done chan error
}

// NewCommandVoice creates a voice for engine.
func NewCommandVoice(engine Engine, logger *log.Logger) *CommandVoice {
	if logger == nil {
		logger = log.Default()
	}
	return &CommandVoice{
		engine: engine,
		logger: logger,
		rate:   protocol.DefaultRate,
		volume: protocol.DefaultVolume,
	}
}

// Voices runs the engine's voice listing.
func (v *CommandVoice) Voices(ctx context.Context) ([]protocol.Voice, error) {
	inv := v.engine.ListVoices()
	cmd := exec.CommandContext(ctx, inv.Name, inv.Args...)
	hideWindow(cmd)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %s", v.engine.Name(), msg)
		}
		return nil, fmt.Errorf("%s: %w", v.engine.Name(), err)
	}
	return v.engine.ParseVoices(out), nil
}

// SetVoice selects the voice for later utterances.
func (v *CommandVoice) SetVoice(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.voiceID = id
	return nil
}

// SetRate sets the native rate, clamped to -10..10.
func (v *CommandVoice) SetRate(rate int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rate = protocol.ClampRate(rate)
}

// SetVolume sets the native volume, clamped to 0..100.
func (v *CommandVoice) SetVolume(volume int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.volume = protocol.ClampVolume(volume)
}

// Speak says text with the current voice settings.
func (v *CommandVoice) Speak(text string, flags protocol.SpeakFlags) error {
	v.mu.Lock()
	u := Utterance{Text: text, VoiceID: v.voiceID, Rate: v.rate, Volume: v.volume}
	v.mu.Unlock()
	return v.Enqueue(u, flags)
}

// Enqueue says u with its own settings. With SpeakPurge, anything queued or
// playing is dropped first; an empty text then only purges. Without
// SpeakAsync it waits for u to finish.
func (v *CommandVoice) Enqueue(u Utterance, flags protocol.SpeakFlags) error {
	v.mu.Lock()
	if flags.Has(protocol.SpeakPurge) {
		v.purgeLocked()
	}
	if strings.TrimSpace(u.Text) == "" {
		v.mu.Unlock()
		return nil
	}

	j := &job{inv: v.engine.Speak(u), done: make(chan error, 1)}
	v.queue = append(v.queue, j)
	if !v.running {
		v.running = true
		go v.drain()
	}
	v.mu.Unlock()

	if flags.Has(protocol.SpeakAsync) {
		return nil
	}
	return <-j.done
}

// Purge drops queued utterances and kills the one playing.
func (v *CommandVoice) Purge() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.purgeLocked()
}

// Speaking reports whether anything is playing or queued.
func (v *CommandVoice) Speaking() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current != nil || len(v.queue) > 0
}

func (v *CommandVoice) purgeLocked() {
	for _, j := range v.queue {
		j.done <- nil
	}
	v.queue = nil

	if v.current != nil {
		if err := v.current.Process.Kill(); err != nil {
			v.logger.Debug("Could not kill utterance", "error", err)
		}
		v.current = nil
	}
}

func (v *CommandVoice) drain() {
	for {
		v.mu.Lock()
		if len(v.queue) == 0 {
			v.running = false
			v.mu.Unlock()
			return
		}
		j := v.queue[0]
		v.queue = v.queue[1:]

		cmd := exec.Command(j.inv.Name, j.inv.Args...)
		hideWindow(cmd)
		if j.inv.Stdin != "" {
			cmd.Stdin = strings.NewReader(j.inv.Stdin)
		}
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Start(); err != nil {
			v.mu.Unlock()
			v.logger.Error("Speech command failed to start", "engine", v.engine.Name(), "error", err)
			j.done <- fmt.Errorf("%s: %w", v.engine.Name(), err)
			continue
		}
		v.current = cmd
		v.mu.Unlock()

		err := cmd.Wait()

		v.mu.Lock()
		purged := v.current != cmd
		if !purged {
			v.current = nil
		}
		v.mu.Unlock()

		switch {
		case purged:
			err = nil
		case err != nil:
			var exitErr *exec.ExitError
			if msg := strings.TrimSpace(stderr.String()); msg != "" && errors.As(err, &exitErr) {
				err = errors.New(msg)
			}
			v.logger.Warn("Speech command failed", "engine", v.engine.Name(), "error", err)
			err = fmt.Errorf("%s: %w", v.engine.Name(), err)
		}
		j.done <- err
	}
}
