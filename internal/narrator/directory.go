package narrator

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// StaticDirectory is a Directory loaded from a JSON snapshot. Voice state
// batches passed to Apply keep the current user's channel and the channel
// rosters up to date.
type StaticDirectory struct {
	mu   sync.RWMutex
	data directoryFile
}

type directoryFile struct {
	Me           string             `json:"me"`
	Guild        string             `json:"guild"`
	VoiceChannel string             `json:"voiceChannel"`
	Users        map[string]User    `json:"users"`
	Nicknames    map[string]string  `json:"nicknames"`
	Channels     map[string]Channel `json:"channels"`
	Guilds       map[string]string  `json:"guilds"`
	VoiceStates  []VoiceState       `json:"voiceStates"`
}

// LoadDirectory reads a directory snapshot from path.
func LoadDirectory(path string) (*StaticDirectory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read directory: %w", err)
	}
	var f directoryFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("unable to parse directory %s: %w", path, err)
	}
	if f.Me == "" {
		return nil, fmt.Errorf("directory %s does not name the current user", path)
	}
	return &StaticDirectory{data: f}, nil
}

// CurrentUserID implements Directory.
func (d *StaticDirectory) CurrentUserID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.data.Me
}

// SelectedGuildID implements Directory.
func (d *StaticDirectory) SelectedGuildID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.data.Guild
}

// SelectedVoiceChannelID implements Directory.
func (d *StaticDirectory) SelectedVoiceChannelID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.data.VoiceChannel
}

// User implements Directory.
func (d *StaticDirectory) User(id string) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.data.Users[id]
	if ok && u.ID == "" {
		u.ID = id
	}
	return u, ok
}

// Nickname implements Directory. Nicknames are for the snapshot's guild.
func (d *StaticDirectory) Nickname(guildID, userID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if guildID != d.data.Guild {
		return "", false
	}
	nick, ok := d.data.Nicknames[userID]
	return nick, ok
}

// Channel implements Directory.
func (d *StaticDirectory) Channel(id string) (Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.data.Channels[id]
	if ok && c.ID == "" {
		c.ID = id
	}
	return c, ok
}

// GuildName implements Directory.
func (d *StaticDirectory) GuildName(id string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.data.Guilds[id]
	return name, ok
}

// VoiceStates implements Directory.
func (d *StaticDirectory) VoiceStates(channelID string) []VoiceState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []VoiceState
	for _, st := range d.data.VoiceStates {
		if st.ChannelID == channelID {
			out = append(out, st)
		}
	}
	return out
}

// Apply folds a voice state batch into the snapshot.
func (d *StaticDirectory) Apply(batch []VoiceState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, st := range batch {
		if st.UserID == d.data.Me {
			d.data.VoiceChannel = st.ChannelID
		}
		replaced := false
		for i := range d.data.VoiceStates {
			if d.data.VoiceStates[i].UserID == st.UserID {
				d.data.VoiceStates[i] = st
				replaced = true
				break
			}
		}
		if !replaced {
			d.data.VoiceStates = append(d.data.VoiceStates, st)
		}
	}
}
