package speech

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/srmooon/vcnarrator/internal/protocol"
)

func TestESpeakParseVoices(t *testing.T) {
	out := []byte(`Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  af              --/M      Afrikaans          gmw/af
 5  en-gb           --/M      English_(Great_Britain) gmw/en            (en 2)
 2  en-gb           --/M      English_(Duplicate) gmw/en-dup
 5  en-us           --/M      English_(America)  gmw/en-US            (en 3)
`)
	want := []protocol.Voice{
		{ID: "af", Name: "Afrikaans"},
		{ID: "en-gb", Name: "English (Great Britain)"},
		{ID: "en-us", Name: "English (America)"},
	}

	got := NewESpeak("espeak-ng").ParseVoices(out)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseVoices() = %+v, want %+v", got, want)
	}
}

func TestESpeakSpeak(t *testing.T) {
	tests := []struct {
		name string
		in   Utterance
		want []string
	}{
		{
			name: "defaults",
			in:   Utterance{Text: "hello", Volume: 100},
			want: []string{"-s", "175", "-a", "200", "--", "hello"},
		},
		{
			name: "voice and fast",
			in:   Utterance{Text: "hi", VoiceID: "en-us", Rate: 10, Volume: 50},
			want: []string{"-v", "en-us", "-s", "325", "-a", "100", "--", "hi"},
		},
		{
			name: "clamped",
			in:   Utterance{Text: "-x", Rate: -40, Volume: 900},
			want: []string{"-s", "25", "-a", "200", "--", "-x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := NewESpeak("espeak").Speak(tt.in)
			if inv.Name != "espeak" {
				t.Errorf("Name = %q, want espeak", inv.Name)
			}
			if !reflect.DeepEqual(inv.Args, tt.want) {
				t.Errorf("Args = %q, want %q", inv.Args, tt.want)
			}
		})
	}
}

func TestSayParseVoices(t *testing.T) {
	out := []byte(`Alex                en_US    # Most people recognize me by my voice.
Bad News            en_US    # The light you see at the end of the tunnel is the headlamp.
Amélie              fr_CA    # Bonjour, je m’appelle Amélie.
garbage line without locale
`)
	want := []protocol.Voice{
		{ID: "Alex", Name: "Alex (en_US)"},
		{ID: "Bad News", Name: "Bad News (en_US)"},
		{ID: "Amélie", Name: "Amélie (fr_CA)"},
	}

	got := NewSay().ParseVoices(out)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseVoices() = %+v, want %+v", got, want)
	}
}

func TestSaySpeak(t *testing.T) {
	inv := NewSay().Speak(Utterance{Text: "hello", VoiceID: "Alex", Rate: -2, Volume: 40})
	want := []string{"-v", "Alex", "-r", "145", "--", "[[volm 0.40]] hello"}
	if !reflect.DeepEqual(inv.Args, want) {
		t.Errorf("Args = %q, want %q", inv.Args, want)
	}
}

func TestPowerShellSpeak(t *testing.T) {
	inv := NewPowerShell().Speak(Utterance{Text: "it's me", VoiceID: "Microsoft O'Brien", Rate: 15, Volume: 70})

	if inv.Stdin != "it's me" {
		t.Errorf("Stdin = %q, want the text", inv.Stdin)
	}
	script := inv.Args[len(inv.Args)-1]
	for _, want := range []string{
		"SelectVoice('Microsoft O''Brien')",
		"$s.Rate = 10",
		"$s.Volume = 70",
		"[Console]::In.ReadToEnd()",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script %q does not contain %q", script, want)
		}
	}
	if strings.Contains(script, "it's me") {
		t.Error("text leaked into the script")
	}
}

func TestPowerShellParseVoices(t *testing.T) {
	out := []byte("Microsoft David Desktop\r\n\r\nMicrosoft Zira Desktop\r\n")
	want := []protocol.Voice{
		{ID: "Microsoft David Desktop", Name: "Microsoft David Desktop"},
		{ID: "Microsoft Zira Desktop", Name: "Microsoft Zira Desktop"},
	}
	if got := NewPowerShell().ParseVoices(out); !reflect.DeepEqual(got, want) {
		t.Errorf("ParseVoices() = %+v, want %+v", got, want)
	}
}

func TestSelectUnknown(t *testing.T) {
	if _, err := Select("festival"); err == nil {
		t.Error("Select(festival) should fail")
	}
	e, err := Select("powershell")
	if err != nil || e.Name() != "powershell" {
		t.Errorf("Select(powershell) = %v, %v", e, err)
	}
}

// shellEngine appends each utterance to a file, optionally sleeping first.
type shellEngine struct {
	out   string
	delay string
}

func (e shellEngine) Name() string { return "sh" }

func (e shellEngine) ListVoices() Invocation {
	return Invocation{Name: "sh", Args: []string{"-c", "printf 'one\\ntwo\\n'"}}
}

func (e shellEngine) ParseVoices(out []byte) []protocol.Voice {
	return NewPowerShell().ParseVoices(out)
}

func (e shellEngine) Speak(u Utterance) Invocation {
	script := `sleep "$1"; printf '%s %s %s\n' "$2" "$3" "$4" >> "$0"`
	return Invocation{Name: "sh", Args: []string{"-c", script, e.out, e.delay, u.Text, strconv.Itoa(u.Rate), strconv.Itoa(u.Volume)}}
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX commands")
	}
}

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	return string(b)
}

func TestCommandVoiceSyncSpeakInOrder(t *testing.T) {
	skipOnWindows(t)
	out := filepath.Join(t.TempDir(), "said")
	v := NewCommandVoice(shellEngine{out: out, delay: "0"}, log.New(os.Stderr))

	v.SetRate(3)
	v.SetVolume(5)
	if err := v.Speak("first", protocol.SpeakAsync); err != nil {
		t.Fatal(err)
	}
	if err := v.Speak("second", 0); err != nil {
		t.Fatal(err)
	}

	if got, want := read(t, out), "first 3 5\nsecond 3 5\n"; got != want {
		t.Errorf("said %q, want %q", got, want)
	}
	if v.Speaking() {
		t.Error("Speaking() = true after a synchronous speak returned")
	}
}

func TestCommandVoicePurge(t *testing.T) {
	skipOnWindows(t)
	out := filepath.Join(t.TempDir(), "said")
	v := NewCommandVoice(shellEngine{out: out, delay: "5"}, log.New(os.Stderr))

	_ = v.Speak("slow", protocol.SpeakAsync)
	_ = v.Speak("queued", protocol.SpeakAsync)
	if !v.Speaking() {
		t.Fatal("Speaking() = false with utterances queued")
	}

	start := time.Now()
	if err := v.Speak("", protocol.SpeakPurge); err != nil {
		t.Fatalf("purge = %v", err)
	}
	if v.Speaking() {
		t.Error("Speaking() = true after purge")
	}
	if time.Since(start) > time.Second {
		t.Error("purge waited for the utterance")
	}
	if got := read(t, out); got != "" {
		t.Errorf("purged utterances were said: %q", got)
	}
}

func TestCommandVoiceVoices(t *testing.T) {
	skipOnWindows(t)
	v := NewCommandVoice(shellEngine{}, nil)

	got, err := v.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices() = %v", err)
	}
	if len(got) != 2 || got[0].ID != "one" || got[1].ID != "two" {
		t.Errorf("Voices() = %+v", got)
	}
}

func TestCommandVoiceSpawnFailure(t *testing.T) {
	v := NewCommandVoice(NewESpeak(filepath.Join(t.TempDir(), "no-such-espeak")), nil)
	if err := v.Speak("hello", 0); err == nil {
		t.Error("Speak() with a missing binary should fail")
	}
}

func TestSystemMapsSettings(t *testing.T) {
	skipOnWindows(t)
	out := filepath.Join(t.TempDir(), "said")
	v := NewCommandVoice(shellEngine{out: out, delay: "0"}, nil)
	s := NewSystem(v)

	if err := s.Speak("hi", "", 1, 0.05); err != nil {
		t.Fatal(err)
	}
	// rate 1 -> 0, volume 0.05 -> 5
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && read(t, out) == "" {
		time.Sleep(20 * time.Millisecond)
	}
	if got, want := read(t, out), "hi 0 5\n"; got != want {
		t.Errorf("said %q, want %q", got, want)
	}
}

func TestSystemVoices(t *testing.T) {
	skipOnWindows(t)
	s := NewSystem(NewCommandVoice(shellEngine{}, nil))

	got, err := s.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices() = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Voices() = %+v, want 2 voices", got)
	}
}
