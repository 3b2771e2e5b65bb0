package speech

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"github.com/srmooon/vcnarrator/internal/protocol"
)

// ESpeak drives espeak-ng or the older espeak.
type ESpeak struct {
	bin string
}

// NewESpeak creates an engine for the given binary.
func NewESpeak(bin string) *ESpeak {
	return &ESpeak{bin: bin}
}

// Name implements Engine.
func (e *ESpeak) Name() string { return e.bin }

// ListVoices implements Engine.
func (e *ESpeak) ListVoices() Invocation {
	return Invocation{Name: e.bin, Args: []string{"--voices"}}
}

// ParseVoices reads the --voices table:
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  af              --/M      Afrikaans          gmw/af
func (e *ESpeak) ParseVoices(out []byte) []protocol.Voice {
	var voices []protocol.Voice
	seen := map[string]bool{}

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		id := fields[1]
		if seen[id] {
			continue
		}
		seen[id] = true
		voices = append(voices, protocol.Voice{
			ID:   id,
			Name: strings.ReplaceAll(fields[3], "_", " "),
		})
	}
	return voices
}

// Speak implements Engine. Amplitude runs 0..200 with 100 as normal.
func (e *ESpeak) Speak(u Utterance) Invocation {
	var args []string
	if u.VoiceID != "" {
		args = append(args, "-v", u.VoiceID)
	}
	args = append(args,
		"-s", strconv.Itoa(wordsPerMinute(u.Rate)),
		"-a", strconv.Itoa(protocol.ClampVolume(u.Volume)*2),
		"--", u.Text)
	return Invocation{Name: e.bin, Args: args}
}
