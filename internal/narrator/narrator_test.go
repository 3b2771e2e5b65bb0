package narrator

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/srmooon/vcnarrator/internal/settings"
)

type recorder struct {
	said []string
}

func (r *recorder) Speak(_ context.Context, text string) {
	r.said = append(r.said, text)
}

func (r *recorder) take() []string {
	out := r.said
	r.said = nil
	return out
}

type staticPrefs struct {
	s settings.Settings
}

func (p staticPrefs) Get() settings.Settings { return p.s }

const directoryJSON = `{
  "me": "me",
  "guild": "g1",
  "voiceChannel": "c1",
  "users": {
    "me": {"username": "myself", "globalName": "Me Myself"},
    "u1": {"username": "alice", "globalName": "Alice"},
    "u2": {"username": "bob"},
    "u3": {"username": "carol"}
  },
  "nicknames": {"u1": "Ali"},
  "channels": {
    "c1": {"name": "General", "type": 2},
    "c2": {"name": "Gaming", "type": 2},
    "stage": {"name": "Town Hall", "type": 13}
  },
  "guilds": {"g1": "Home"},
  "voiceStates": [
    {"userId": "me", "channelId": "c1"},
    {"userId": "u1", "channelId": "c1", "selfMute": true}
  ]
}`

func newTestNarrator(t *testing.T, mutate func(*settings.Settings)) (*Narrator, *StaticDirectory, *recorder) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directory.json")
	if err := os.WriteFile(path, []byte(directoryJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	dir, err := LoadDirectory(path)
	if err != nil {
		t.Fatalf("LoadDirectory() = %v", err)
	}

	s := settings.Default()
	if mutate != nil {
		mutate(&s)
	}
	rec := &recorder{}
	n := New(dir, staticPrefs{s}, rec, nil)
	n.Seed()
	return n, dir, rec
}

func TestHandleVoiceStates(t *testing.T) {
	tests := []struct {
		name  string
		batch []VoiceState
		want  []string
	}{
		{
			name:  "join",
			batch: []VoiceState{{UserID: "u2", ChannelID: "c1"}},
			want:  []string{"bob entered the voice"},
		},
		{
			name:  "leave",
			batch: []VoiceState{{UserID: "u1", OldChannelID: "c1"}},
			want:  []string{"Ali left the voice"},
		},
		{
			name:  "move out",
			batch: []VoiceState{{UserID: "u1", ChannelID: "c2", OldChannelID: "c1"}},
			want:  []string{"Ali moved to Gaming"},
		},
		{
			name:  "other channel ignored",
			batch: []VoiceState{{UserID: "u3", ChannelID: "c2"}},
			want:  nil,
		},
		{
			name:  "unknown user ignored",
			batch: []VoiceState{{UserID: "ghost", ChannelID: "c1"}},
			want:  nil,
		},
		{
			name:  "unmute of seeded user",
			batch: []VoiceState{{UserID: "u1", ChannelID: "c1", OldChannelID: "c1"}},
			want:  []string{"Ali unmuted"},
		},
		{
			name:  "deafen",
			batch: []VoiceState{{UserID: "u1", ChannelID: "c1", OldChannelID: "c1", SelfMute: true, Deaf: true}},
			want:  []string{"Ali deafened"},
		},
		{
			name:  "mute wins over deafen",
			batch: []VoiceState{{UserID: "u1", ChannelID: "c1", OldChannelID: "c1", SelfDeaf: true}},
			want:  []string{"Ali unmuted"},
		},
		{
			name:  "unseeded user only recorded",
			batch: []VoiceState{{UserID: "u3", ChannelID: "c1", OldChannelID: "c1", SelfMute: true}},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, _, rec := newTestNarrator(t, nil)
			n.HandleVoiceStates(context.Background(), tt.batch)
			if got := rec.take(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("said %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMuteSequence(t *testing.T) {
	n, _, rec := newTestNarrator(t, nil)
	ctx := context.Background()

	n.HandleVoiceStates(ctx, []VoiceState{{UserID: "u2", ChannelID: "c1"}})
	n.HandleVoiceStates(ctx, []VoiceState{{UserID: "u2", ChannelID: "c1", OldChannelID: "c1", SelfMute: true}})
	n.HandleVoiceStates(ctx, []VoiceState{{UserID: "u2", ChannelID: "c1", OldChannelID: "c1", SelfMute: true}})
	n.HandleVoiceStates(ctx, []VoiceState{{UserID: "u2", ChannelID: "c1", OldChannelID: "c1", SelfMute: true, SelfDeaf: true}})
	n.HandleVoiceStates(ctx, []VoiceState{{UserID: "u2", OldChannelID: "c1"}})
	n.HandleVoiceStates(ctx, []VoiceState{{UserID: "u2", ChannelID: "c1"}})
	n.HandleVoiceStates(ctx, []VoiceState{{UserID: "u2", ChannelID: "c1", OldChannelID: "c1", SelfMute: true}})

	want := []string{
		"bob entered the voice",
		// first state after a join is only recorded
		"bob deafened",
		"bob left the voice",
		"bob entered the voice",
	}
	if got := rec.take(); !reflect.DeepEqual(got, want) {
		t.Errorf("said %q, want %q", got, want)
	}
}

func TestOwnName(t *testing.T) {
	t.Run("hidden by default", func(t *testing.T) {
		n, dir, rec := newTestNarrator(t, nil)
		batch := []VoiceState{{UserID: "me", ChannelID: "c2", OldChannelID: "c1"}}
		dir.Apply(batch)
		n.HandleVoiceStates(context.Background(), batch)
		if got, want := rec.take(), []string{"Someone moved to Gaming"}; !reflect.DeepEqual(got, want) {
			t.Errorf("said %q, want %q", got, want)
		}
	})

	t.Run("said when enabled", func(t *testing.T) {
		n, dir, rec := newTestNarrator(t, func(s *settings.Settings) { s.SayOwnName = true })
		batch := []VoiceState{{UserID: "me", ChannelID: "c2", OldChannelID: "c1"}}
		dir.Apply(batch)
		n.HandleVoiceStates(context.Background(), batch)
		if got, want := rec.take(), []string{"Me Myself moved to Gaming"}; !reflect.DeepEqual(got, want) {
			t.Errorf("said %q, want %q", got, want)
		}
	})
}

func TestSelfMoveTracking(t *testing.T) {
	n, dir, rec := newTestNarrator(t, func(s *settings.Settings) { s.SayOwnName = true })
	ctx := context.Background()

	// the seeded channel stands in for a missing oldChannelId
	move := []VoiceState{{UserID: "me", ChannelID: "c2"}}
	dir.Apply(move)
	n.HandleVoiceStates(ctx, move)

	leave := []VoiceState{{UserID: "me"}}
	dir.Apply(leave)
	n.HandleVoiceStates(ctx, leave)

	want := []string{"Me Myself moved to Gaming"}
	if got := rec.take(); !reflect.DeepEqual(got, want) {
		t.Errorf("said %q, want %q", got, want)
	}
}

func TestNoChannelOrStage(t *testing.T) {
	n, dir, rec := newTestNarrator(t, nil)
	ctx := context.Background()

	dir.Apply([]VoiceState{{UserID: "me", ChannelID: "stage"}})
	n.HandleVoiceStates(ctx, []VoiceState{{UserID: "u2", ChannelID: "stage"}})

	dir.Apply([]VoiceState{{UserID: "me"}})
	n.HandleVoiceStates(ctx, []VoiceState{{UserID: "u2", ChannelID: "c1"}})

	if got := rec.take(); len(got) != 0 {
		t.Errorf("said %q, want nothing", got)
	}
}

func TestResetForgetsStates(t *testing.T) {
	n, _, rec := newTestNarrator(t, nil)
	n.Reset()
	n.HandleVoiceStates(context.Background(), []VoiceState{{UserID: "u1", ChannelID: "c1", OldChannelID: "c1"}})
	if got := rec.take(); len(got) != 0 {
		t.Errorf("said %q after Reset, want nothing", got)
	}
}

func TestLoadDirectoryErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadDirectory(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("missing file should fail")
	}

	noMe := filepath.Join(dir, "nome.json")
	if err := os.WriteFile(noMe, []byte(`{"guild":"g"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDirectory(noMe); err == nil {
		t.Error("directory without current user should fail")
	}
}
