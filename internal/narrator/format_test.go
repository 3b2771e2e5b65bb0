package narrator

import (
	"testing"

	"github.com/srmooon/vcnarrator/internal/settings"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		latin bool
		want  string
	}{
		{"plain", "Alice", false, "Alice"},
		{"emoji stripped", "🔥Bob🔥", false, "Bob"},
		{"fullwidth normalized", "Ｃａｒｏｌ", false, "Carol"},
		{"underscores squeezed", "__dave___x__", false, "_dave_x_"},
		{"trimmed", "  eve  ", false, "eve"},
		{"punctuation kept", "o'neil-smith.", false, "o'neil-smith."},
		{"cyrillic kept", "Иван", false, "Иван"},
		{"cyrillic dropped", "Иван Ivan", true, "Ivan"},
		{"latin accents kept", "José", true, "José"},
		{"digits kept", "user123", true, "user123"},
		{"symbols only", "★☆♥", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in, tt.latin); got != tt.want {
				t.Errorf("Clean(%q, %v) = %q, want %q", tt.in, tt.latin, got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	data := FormatData{
		Username:    "alice",
		DisplayName: "Alice A",
		Nickname:    "Ali",
		Channel:     "General",
		Server:      "Home",
	}

	tests := []struct {
		template string
		data     FormatData
		want     string
	}{
		{"{nickname} entered the voice", data, "Ali entered the voice"},
		{"{username}/{display_name}/{nickname}", data, "alice/Alice A/Ali"},
		{"{nickname} moved to {channel} on {server}", data, "Ali moved to General on Home"},
		{"{nickname} left {channel} of {server}", FormatData{}, "Someone left channel of server"},
		{"{nickname} muted", FormatData{Nickname: "💀"}, "Someone muted"},
		{"{nickname} {nickname}", data, "Ali Ali"},
		{"no placeholders", data, "no placeholders"},
	}

	for _, tt := range tests {
		if got := Format(tt.template, tt.data, false); got != tt.want {
			t.Errorf("Format(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestTemplatesCoverEveryKind(t *testing.T) {
	tpl := Templates(settings.Default())
	for _, kind := range EventKinds {
		if tpl[kind] == "" {
			t.Errorf("no default template for %q", kind)
		}
	}
	if got, want := tpl[EventMove], "{nickname} moved to {channel}"; got != want {
		t.Errorf("move template = %q, want %q", got, want)
	}
}
