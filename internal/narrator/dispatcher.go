package narrator

import (
	"context"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/srmooon/vcnarrator/internal/protocol"
	"github.com/srmooon/vcnarrator/internal/readiness"
	"github.com/srmooon/vcnarrator/internal/settings"
)

// HelperClient is the protocol client as seen by the dispatcher.
type HelperClient interface {
	Speak(ctx context.Context, req protocol.PlaybackRequest) bool
	Stop(ctx context.Context)
}

// SystemSpeaker is the always-available fallback voice.
type SystemSpeaker interface {
	Speak(text, voiceID string, rate, volume float64) error
	Stop()
	Speaking() bool
}

// ReadinessSource reports the helper's readiness.
type ReadinessSource interface {
	Get() readiness.Snapshot
}

// Dispatcher routes text to the helper when it is selected and ready, and
// to the system voice otherwise.
type Dispatcher struct {
	prefs  SettingsSource
	helper HelperClient
	system SystemSpeaker
	ready  ReadinessSource
	logger *log.Logger

	speaking atomic.Bool
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(prefs SettingsSource, helper HelperClient, system SystemSpeaker, ready ReadinessSource, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		prefs:  prefs,
		helper: helper,
		system: system,
		ready:  ready,
		logger: logger,
	}
}

// Speak says text with the current preferences. A helper utterance that is
// refused is retried on the system voice.
func (d *Dispatcher) Speak(ctx context.Context, text string) {
	if text == "" {
		return
	}
	prefs := d.prefs.Get()

	if prefs.Provider == settings.ProviderSAPI5 && d.ready.Get().State == readiness.Ready {
		d.speaking.Store(true)
		req := protocol.PlaybackRequest{
			ID:      uuid.NewString(),
			Text:    text,
			VoiceID: prefs.SAPI5Voice,
			Rate:    protocol.RateFromMultiplier(prefs.Rate),
			Volume:  protocol.VolumeFromFraction(prefs.Volume),
		}
		ok := d.helper.Speak(ctx, req)
		d.speaking.Store(false)
		if ok {
			return
		}
		d.logger.Warn("Helper did not take the utterance, using system voice", "utterance", req.ID)
	}

	if err := d.system.Speak(text, prefs.SystemVoice, prefs.Rate, prefs.Volume); err != nil {
		d.logger.Error("System voice failed", "error", err)
	}
}

// Stop silences both backends.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.speaking.Store(false)
	d.helper.Stop(ctx)
	d.system.Stop()
}

// Speaking reports whether an utterance is believed to be in progress.
func (d *Dispatcher) Speaking() bool {
	return d.speaking.Load() || d.system.Speaking()
}

// Toggle stops speech if something is playing and says text otherwise.
func (d *Dispatcher) Toggle(ctx context.Context, text string) {
	if d.Speaking() {
		d.Stop(ctx)
		return
	}
	d.Speak(ctx, text)
}
