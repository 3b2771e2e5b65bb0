// Package narrator turns voice channel activity into spoken announcements.
package narrator

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/srmooon/vcnarrator/internal/settings"
)

// ChannelTypeStage is the channel type of stage channels, which are never
// narrated.
const ChannelTypeStage = 13

// VoiceState is one entry of a voice state update.
type VoiceState struct {
	UserID       string `json:"userId"`
	ChannelID    string `json:"channelId,omitempty"`
	OldChannelID string `json:"oldChannelId,omitempty"`
	Mute         bool   `json:"mute,omitempty"`
	SelfMute     bool   `json:"selfMute,omitempty"`
	Deaf         bool   `json:"deaf,omitempty"`
	SelfDeaf     bool   `json:"selfDeaf,omitempty"`
}

func (s VoiceState) muted() bool    { return s.Mute || s.SelfMute }
func (s VoiceState) deafened() bool { return s.Deaf || s.SelfDeaf }

// User is a chat user.
type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"globalName,omitempty"`
}

// Channel is a guild channel.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type int    `json:"type"`
}

// Directory answers the read-only lookups the narrator needs.
type Directory interface {
	CurrentUserID() string
	SelectedGuildID() string
	SelectedVoiceChannelID() string
	User(id string) (User, bool)
	Nickname(guildID, userID string) (string, bool)
	Channel(id string) (Channel, bool)
	GuildName(id string) (string, bool)
	VoiceStates(channelID string) []VoiceState
}

// Speaker says a line of text.
type Speaker interface {
	Speak(ctx context.Context, text string)
}

// SettingsSource provides the current preferences.
type SettingsSource interface {
	Get() settings.Settings
}

type muteDeaf struct {
	mute bool
	deaf bool
}

// Narrator announces joins, leaves, moves and mute or deafen changes in the
// current user's voice channel.
type Narrator struct {
	dir     Directory
	prefs   SettingsSource
	speaker Speaker
	logger  *log.Logger

	mu            sync.Mutex
	states        map[string]muteDeaf
	lastChannelID string
}

// New creates a narrator.
func New(dir Directory, prefs SettingsSource, speaker Speaker, logger *log.Logger) *Narrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Narrator{
		dir:     dir,
		prefs:   prefs,
		speaker: speaker,
		logger:  logger,
		states:  map[string]muteDeaf{},
	}
}

// Seed records the current voice channel and the mute and deafen state of
// everyone already in it, so the next change is announced correctly.
func (n *Narrator) Seed() {
	n.mu.Lock()
	defer n.mu.Unlock()

	chanID := n.dir.SelectedVoiceChannelID()
	n.lastChannelID = chanID
	if chanID == "" {
		return
	}
	for _, st := range n.dir.VoiceStates(chanID) {
		n.states[st.UserID] = muteDeaf{mute: st.muted(), deaf: st.deafened()}
	}
	n.logger.Debug("Seeded voice states", "channel", chanID, "users", len(n.states))
}

// Reset forgets every tracked state.
func (n *Narrator) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = map[string]muteDeaf{}
}

// HandleVoiceStates announces whatever the batch means for the current
// voice channel.
func (n *Narrator) HandleVoiceStates(ctx context.Context, batch []VoiceState) {
	n.mu.Lock()
	lines := n.announcements(batch)
	n.mu.Unlock()

	for _, line := range lines {
		n.speaker.Speak(ctx, line)
	}
}

func (n *Narrator) announcements(batch []VoiceState) []string {
	guildID := n.dir.SelectedGuildID()
	myChanID := n.dir.SelectedVoiceChannelID()
	myID := n.dir.CurrentUserID()
	if myChanID == "" {
		return nil
	}
	if ch, ok := n.dir.Channel(myChanID); ok && ch.Type == ChannelTypeStage {
		return nil
	}

	prefs := n.prefs.Get()
	templates := Templates(prefs)
	server := "server"
	if name, ok := n.dir.GuildName(guildID); ok && name != "" {
		server = name
	}

	var lines []string
	for _, st := range batch {
		isMe := st.UserID == myID
		if !isMe && st.ChannelID != myChanID && st.OldChannelID != myChanID {
			continue
		}

		user, ok := n.dir.User(st.UserID)
		if !ok {
			continue
		}

		data := FormatData{Server: server}
		if !isMe || prefs.SayOwnName {
			data.Username = user.Username
			data.DisplayName = user.GlobalName
			if data.DisplayName == "" {
				data.DisplayName = user.Username
			}
			data.Nickname = data.DisplayName
			if nick, ok := n.dir.Nickname(guildID, st.UserID); ok {
				data.Nickname = nick
			}
		}

		if kind, chanID := n.transition(st, isMe); kind != "" {
			data.Channel = n.channelName(chanID)
			lines = append(lines, Format(templates[kind], data, prefs.LatinOnly))
			if kind == EventLeave {
				delete(n.states, st.UserID)
			}
			continue
		}

		if st.ChannelID != myChanID {
			continue
		}

		cur := muteDeaf{mute: st.muted(), deaf: st.deafened()}
		if prev, ok := n.states[st.UserID]; ok {
			var kind EventKind
			switch {
			case prev.mute != cur.mute:
				kind = EventUnmute
				if cur.mute {
					kind = EventMute
				}
			case prev.deaf != cur.deaf:
				kind = EventUndeafen
				if cur.deaf {
					kind = EventDeafen
				}
			}
			if kind != "" {
				data.Channel = n.channelName(myChanID)
				lines = append(lines, Format(templates[kind], data, prefs.LatinOnly))
			}
		}
		n.states[st.UserID] = cur
	}
	return lines
}

// transition classifies a state as a join, move or leave and returns the
// channel the event refers to. For the current user the previous channel is
// remembered across updates.
func (n *Narrator) transition(st VoiceState, isMe bool) (EventKind, string) {
	oldID := st.OldChannelID
	if isMe && st.ChannelID != n.lastChannelID {
		oldID = n.lastChannelID
		n.lastChannelID = st.ChannelID
	}

	if st.ChannelID != oldID {
		if st.ChannelID != "" {
			if oldID != "" {
				return EventMove, st.ChannelID
			}
			return EventJoin, st.ChannelID
		}
		if oldID != "" {
			return EventLeave, oldID
		}
	}
	return "", ""
}

func (n *Narrator) channelName(id string) string {
	if ch, ok := n.dir.Channel(id); ok && ch.Name != "" {
		return ch.Name
	}
	return "channel"
}
