package speech

import (
	"context"

	"github.com/srmooon/vcnarrator/internal/protocol"
)

// System is the always-available fallback voice. It takes settings in the
// multiplier form the narrator stores (rate 1 and volume 1 are normal) and
// queues utterances without interrupting one another.
type System struct {
	voice *CommandVoice
}

// NewSystem wraps voice.
func NewSystem(voice *CommandVoice) *System {
	return &System{voice: voice}
}

// Speak queues text and returns at once.
func (s *System) Speak(text, voiceID string, rate, volume float64) error {
	return s.voice.Enqueue(Utterance{
		Text:    text,
		VoiceID: voiceID,
		Rate:    protocol.RateFromMultiplier(rate),
		Volume:  protocol.VolumeFromFraction(volume),
	}, protocol.SpeakAsync)
}

// Stop cancels everything queued or playing.
func (s *System) Stop() {
	s.voice.Purge()
}

// Speaking reports whether the fallback voice is busy.
func (s *System) Speaking() bool {
	return s.voice.Speaking()
}

// Voices lists the engine's voices.
func (s *System) Voices(ctx context.Context) ([]protocol.Voice, error) {
	return s.voice.Voices(ctx)
}
