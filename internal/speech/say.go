package speech

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/srmooon/vcnarrator/internal/protocol"
)

// Say drives the macOS say command.
type Say struct{}

// NewSay creates the say engine.
func NewSay() *Say { return &Say{} }

// Name implements Engine.
func (s *Say) Name() string { return "say" }

// ListVoices implements Engine.
func (s *Say) ListVoices() Invocation {
	return Invocation{Name: "say", Args: []string{"-v", "?"}}
}

// "Alex                en_US    # Most people recognize me by my voice."
var sayVoiceLine = regexp.MustCompile(`^(.+?)\s+([a-z]{2}[_-][A-Za-z0-9]+)\s+#`)

// ParseVoices implements Engine. Voices are addressed by name.
func (s *Say) ParseVoices(out []byte) []protocol.Voice {
	var voices []protocol.Voice

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		m := sayVoiceLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		voices = append(voices, protocol.Voice{
			ID:   name,
			Name: fmt.Sprintf("%s (%s)", name, m[2]),
		})
	}
	return voices
}

// Speak implements Engine. Volume is set with an embedded [[volm]] command.
func (s *Say) Speak(u Utterance) Invocation {
	var args []string
	if u.VoiceID != "" {
		args = append(args, "-v", u.VoiceID)
	}
	vol := float64(protocol.ClampVolume(u.Volume)) / 100
	args = append(args,
		"-r", strconv.Itoa(wordsPerMinute(u.Rate)),
		"--", fmt.Sprintf("[[volm %.2f]] %s", vol, u.Text))
	return Invocation{Name: "say", Args: args}
}
