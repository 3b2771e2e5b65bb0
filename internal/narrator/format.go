package narrator

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/srmooon/vcnarrator/internal/settings"
)

// EventKind is a voice channel event that can be announced.
type EventKind string

const (
	EventJoin     EventKind = "join"
	EventLeave    EventKind = "leave"
	EventMove     EventKind = "move"
	EventMute     EventKind = "mute"
	EventUnmute   EventKind = "unmute"
	EventDeafen   EventKind = "deafen"
	EventUndeafen EventKind = "undeafen"
)

// EventKinds lists every kind in display order.
var EventKinds = []EventKind{
	EventJoin, EventLeave, EventMove, EventMute, EventUnmute, EventDeafen, EventUndeafen,
}

// Templates returns the message template for every event kind.
func Templates(s settings.Settings) map[EventKind]string {
	m := make(map[EventKind]string, len(EventKinds))
	for _, k := range EventKinds {
		m[k] = s.Template(string(k))
	}
	return m
}

var (
	// JavaScript's \s also matches Unicode spaces and the BOM.
	anyScript  = regexp.MustCompile(`[^\p{L}\p{N}\p{P}\s\v\p{Z}\x{FEFF}]`)
	latinOnly  = regexp.MustCompile(`[^\p{Latin}\p{N}\p{P}\s\v\p{Z}\x{FEFF}]`)
	underscore = regexp.MustCompile(`_{2,}`)
)

// Clean makes a display name speakable: NFKC-normalize it, drop everything
// that is not a letter, number, punctuation or space, squeeze runs of
// underscores and trim. With latin set only Latin letters survive.
func Clean(s string, latin bool) string {
	re := anyScript
	if latin {
		re = latinOnly
	}
	s = norm.NFKC.String(s)
	s = re.ReplaceAllString(s, "")
	s = underscore.ReplaceAllString(s, "_")
	return strings.TrimSpace(s)
}

// FormatData are the values a template can reference.
type FormatData struct {
	Username    string
	DisplayName string
	Nickname    string
	Channel     string
	Server      string
}

// Format fills the placeholders of template with cleaned values.
func Format(template string, d FormatData, latin bool) string {
	r := strings.NewReplacer(
		"{username}", orDefault(Clean(d.Username, latin), "Someone"),
		"{display_name}", orDefault(Clean(d.DisplayName, latin), "Someone"),
		"{nickname}", orDefault(Clean(d.Nickname, latin), "Someone"),
		"{channel}", orDefault(Clean(d.Channel, latin), "channel"),
		"{server}", orDefault(Clean(d.Server, latin), "server"),
	)
	return r.Replace(template)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
