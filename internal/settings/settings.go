// Package settings persists the narrator's user preferences.
package settings

import (
	"fmt"
	"strings"
)

// Provider selects the speech backend.
type Provider string

const (
	// ProviderSystem is the always-available platform voice.
	ProviderSystem Provider = "system"
	// ProviderSAPI5 is the provisioned helper.
	ProviderSAPI5 Provider = "sapi5"
)

// ParseProvider accepts a provider name in any case.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderSystem, ProviderSAPI5:
		return p, nil
	default:
		return "", fmt.Errorf("invalid provider '%s': must be one of [system sapi5]", s)
	}
}

// Speed and volume bounds, in the units the settings are stored in.
const (
	MinRate   = 0.1
	MaxRate   = 10
	MinVolume = 0
	MaxVolume = 1
)

// Settings are the user's preferences. Volume is 0..1 and Rate is a speed
// multiplier; both are 1 by default.
type Settings struct {
	Provider    Provider `mapstructure:"provider"`
	SystemVoice string   `mapstructure:"system_voice"`
	SAPI5Voice  string   `mapstructure:"sapi5_voice"`
	Volume      float64  `mapstructure:"volume"`
	Rate        float64  `mapstructure:"rate"`
	SayOwnName  bool     `mapstructure:"say_own_name"`
	LatinOnly   bool     `mapstructure:"latin_only"`

	JoinMessage     string `mapstructure:"join_message"`
	LeaveMessage    string `mapstructure:"leave_message"`
	MoveMessage     string `mapstructure:"move_message"`
	MuteMessage     string `mapstructure:"mute_message"`
	UnmuteMessage   string `mapstructure:"unmute_message"`
	DeafenMessage   string `mapstructure:"deafen_message"`
	UndeafenMessage string `mapstructure:"undeafen_message"`
}

// Default returns the stock preferences.
func Default() Settings {
	return Settings{
		Provider:        ProviderSystem,
		Volume:          1,
		Rate:            1,
		JoinMessage:     "{nickname} entered the voice",
		LeaveMessage:    "{nickname} left the voice",
		MoveMessage:     "{nickname} moved to {channel}",
		MuteMessage:     "{nickname} muted",
		UnmuteMessage:   "{nickname} unmuted",
		DeafenMessage:   "{nickname} deafened",
		UndeafenMessage: "{nickname} undeafened",
	}
}

// Template returns the message template for an event kind: join, leave,
// move, mute, unmute, deafen or undeafen. Unknown kinds have none.
func (s Settings) Template(kind string) string {
	switch kind {
	case "join":
		return s.JoinMessage
	case "leave":
		return s.LeaveMessage
	case "move":
		return s.MoveMessage
	case "mute":
		return s.MuteMessage
	case "unmute":
		return s.UnmuteMessage
	case "deafen":
		return s.DeafenMessage
	case "undeafen":
		return s.UndeafenMessage
	default:
		return ""
	}
}

// normalize clamps the sliders and rejects an unknown provider.
func (s *Settings) normalize() error {
	p, err := ParseProvider(string(s.Provider))
	if err != nil {
		return err
	}
	s.Provider = p
	s.Volume = clamp(s.Volume, MinVolume, MaxVolume)
	s.Rate = clamp(s.Rate, MinRate, MaxRate)
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
