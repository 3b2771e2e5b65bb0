// Package protocol defines the loopback HTTP control protocol spoken between
// the narrator and its speech helper process.
package protocol

import (
	"fmt"
	"math"
	"strings"
)

// DefaultPort is the fixed loopback port the helper listens on.
const DefaultPort = 5550

// ServerName is reported by the helper on /ping.
const ServerName = "VcNarrator SAPI5 TTS"

// Endpoint paths.
const (
	PathPing     = "/ping"
	PathVoices   = "/voices"
	PathSpeak    = "/speak"
	PathStop     = "/stop"
	PathShutdown = "/shutdown"
)

// Speak query parameters.
const (
	ParamText   = "text"
	ParamVoice  = "voice"
	ParamRate   = "rate"
	ParamVolume = "volume"
)

// UtteranceHeader carries the utterance id of a speak request for log correlation.
const UtteranceHeader = "X-Utterance-Id"

// Native rate and volume ranges.
const (
	MinRate       = -10
	MaxRate       = 10
	DefaultRate   = 0
	MinVolume     = 0
	MaxVolume     = 100
	DefaultVolume = 100
)

// SpeakFlags mirror the SpVoice speak flags used by the helper.
type SpeakFlags int

const (
	// SpeakAsync returns immediately while the utterance plays.
	SpeakAsync SpeakFlags = 1
	// SpeakPurge drops any queued or playing utterance.
	SpeakPurge SpeakFlags = 2
)

// Has reports whether f includes flag.
func (f SpeakFlags) Has(flag SpeakFlags) bool {
	return f&flag != 0
}

// Response status strings.
const (
	StatusOK           = "ok"
	StatusSpeaking     = "speaking"
	StatusStopped      = "stopped"
	StatusShuttingDown = "shutting down"
)

// Error messages returned by the helper.
const (
	ErrMsgNoText        = "No text provided"
	ErrMsgInvalidRate   = "Invalid rate"
	ErrMsgInvalidVolume = "Invalid volume"
	ErrMsgNotFound      = "Not found"
)

// Voice describes one native voice installed on the machine.
type Voice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// String returns the display name of the voice.
func (v Voice) String() string {
	if v.Name == "" {
		return v.ID
	}
	return v.Name
}

// PingResponse is the body of GET /ping.
type PingResponse struct {
	Status string `json:"status"`
	Server string `json:"server"`
}

// VoicesResponse is the body of GET /voices.
type VoicesResponse struct {
	Voices []Voice `json:"voices"`
}

// StatusResponse is the body of successful /speak, /stop and /shutdown calls.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of any failed call.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PlaybackRequest is one utterance sent to the helper.
type PlaybackRequest struct {
	ID      string
	Text    string
	VoiceID string
	Rate    int
	Volume  int
}

// Blank reports whether the request has nothing to say.
func (r PlaybackRequest) Blank() bool {
	return strings.TrimSpace(r.Text) == ""
}

// BaseURL returns the loopback base URL for a helper on port.
func BaseURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// ListenAddr returns the loopback listen address for port.
func ListenAddr(port int) string {
	return fmt.Sprintf("127.0.0.1:%d", port)
}

// ClampRate limits rate to the native range.
func ClampRate(rate int) int {
	return clamp(rate, MinRate, MaxRate)
}

// ClampVolume limits volume to the native range.
func ClampVolume(volume int) int {
	return clamp(volume, MinVolume, MaxVolume)
}

// RateFromMultiplier converts a speed multiplier (1 is normal) to a native
// rate. Halves round up.
func RateFromMultiplier(m float64) int {
	return ClampRate(int(math.Floor((m-1)*5 + 0.5)))
}

// VolumeFromFraction converts a 0..1 volume to a native volume.
func VolumeFromFraction(f float64) int {
	return ClampVolume(int(math.Floor(f*100 + 0.5)))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
