package speech

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/srmooon/vcnarrator/internal/protocol"
)

// PowerShell drives System.Speech through powershell.exe. It reaches the same
// SAPI voices the Python helper does.
type PowerShell struct{}

// NewPowerShell creates the PowerShell engine.
func NewPowerShell() *PowerShell { return &PowerShell{} }

// Name implements Engine.
func (p *PowerShell) Name() string { return "powershell" }

const psPrelude = "Add-Type -AssemblyName System.Speech; " +
	"$s = New-Object System.Speech.Synthesis.SpeechSynthesizer; "

// ListVoices implements Engine.
func (p *PowerShell) ListVoices() Invocation {
	script := psPrelude +
		"$s.GetInstalledVoices() | Where-Object { $_.Enabled } | ForEach-Object { $_.VoiceInfo.Name }"
	return psInvocation(script, "")
}

// ParseVoices implements Engine. Voices are addressed by name.
func (p *PowerShell) ParseVoices(out []byte) []protocol.Voice {
	var voices []protocol.Voice

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name == "" {
			continue
		}
		voices = append(voices, protocol.Voice{ID: name, Name: name})
	}
	return voices
}

// Speak implements Engine. The text travels on stdin so it never needs
// quoting.
func (p *PowerShell) Speak(u Utterance) Invocation {
	var b strings.Builder
	b.WriteString("$t = [Console]::In.ReadToEnd(); ")
	b.WriteString(psPrelude)
	if u.VoiceID != "" {
		fmt.Fprintf(&b, "$s.SelectVoice('%s'); ", psQuote(u.VoiceID))
	}
	fmt.Fprintf(&b, "$s.Rate = %d; $s.Volume = %d; $s.Speak($t)",
		protocol.ClampRate(u.Rate), protocol.ClampVolume(u.Volume))
	return psInvocation(b.String(), u.Text)
}

func psInvocation(script, stdin string) Invocation {
	return Invocation{
		Name:  "powershell",
		Args:  []string{"-NoProfile", "-NonInteractive", "-Command", script},
		Stdin: stdin,
	}
}

// psQuote escapes s for a single-quoted PowerShell string.
func psQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
