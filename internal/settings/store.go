package settings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Store holds the current Settings, writes them to a YAML file on every
// change and tells subscribers about it. Writes are last-write-wins.
type Store struct {
	path   string
	logger *log.Logger

	mu      sync.RWMutex
	cur     Settings
	written []byte

	subMu  sync.Mutex
	subs   []subscriber
	nextID int
}

type subscriber struct {
	id int
	fn func(Settings)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open loads the settings at path. A missing file yields the defaults; the
// file is only created by the first Update.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, logger: log.Default()}
	for _, opt := range opts {
		opt(s)
	}

	b, err := s.readFile()
	if err != nil {
		return nil, err
	}
	cur, err := s.decode(b)
	if err != nil {
		return nil, err
	}
	s.cur = cur
	return s, nil
}

// Path returns the settings file.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Provider returns the selected backend.
func (s *Store) Provider() Provider {
	return s.Get().Provider
}

// Template returns the current message template for an event kind.
func (s *Store) Template(kind string) string {
	return s.Get().Template(kind)
}

// SetProvider selects a backend.
func (s *Store) SetProvider(p Provider) error {
	return s.Update(func(st *Settings) { st.Provider = p })
}

// Update applies fn to a copy of the settings, saves the result and notifies
// subscribers. Nothing changes if the result is invalid or cannot be saved.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	next := s.cur
	fn(&next)
	if err := next.normalize(); err != nil {
		s.mu.Unlock()
		return err
	}
	if next == s.cur {
		s.mu.Unlock()
		return nil
	}
	if err := s.write(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.cur = next
	s.mu.Unlock()

	s.notify(next)
	return nil
}

// Reload reads the file again and notifies subscribers if anything changed.
// Content the store wrote itself and empty files are ignored.
func (s *Store) Reload() error {
	s.mu.Lock()
	b, err := s.readFile()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if len(b) == 0 || bytes.Equal(b, s.written) {
		s.mu.Unlock()
		return nil
	}
	next, err := s.decode(b)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	changed := next != s.cur
	s.cur = next
	s.mu.Unlock()

	if changed {
		s.logger.Debug("Settings reloaded", "path", s.path)
		s.notify(next)
	}
	return nil
}

// Subscribe registers fn for every change. Call the returned function to
// unsubscribe.
func (s *Store) Subscribe(fn func(Settings)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Watch reloads the settings whenever the file is written by someone else,
// until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("unable to create %s: %w", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("unable to watch %s: %w", dir, err)
	}
	s.logger.Debug("Watching settings", "path", s.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Warn("Could not reload settings", "path", s.path, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Debug("Settings watcher error", "error", err)
		}
	}
}

func (s *Store) notify(st Settings) {
	s.subMu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(st)
	}
}

// readFile returns the raw settings file, or nil when it does not exist.
func (s *Store) readFile() ([]byte, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read settings: %w", err)
	}
	return b, nil
}

func (s *Store) decode(b []byte) (Settings, error) {
	v := newViper()
	if len(b) > 0 {
		if err := v.ReadConfig(bytes.NewReader(b)); err != nil {
			return Settings{}, fmt.Errorf("unable to read settings: %w", err)
		}
	}

	var st Settings
	if err := v.Unmarshal(&st); err != nil {
		return Settings{}, fmt.Errorf("unable to decode settings: %w", err)
	}
	if err := st.normalize(); err != nil {
		s.logger.Warn("Resetting provider", "error", err)
		st.Provider = ProviderSystem
		_ = st.normalize()
	}
	return st, nil
}

// write saves st to a temporary file next to the settings and renames it
// into place, so readers never see a partial file. The caller holds s.mu.
func (s *Store) write(st Settings) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("unable to create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yml")
	if err != nil {
		return fmt.Errorf("unable to save settings: %w", err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(name) //nolint:errcheck

	v := newViper()
	for key, value := range values(st) {
		v.Set(key, value)
	}
	if err := v.WriteConfigAs(name); err != nil {
		return fmt.Errorf("unable to save settings: %w", err)
	}
	b, err := os.ReadFile(name)
	if err != nil {
		return fmt.Errorf("unable to save settings: %w", err)
	}
	if err := os.Rename(name, s.path); err != nil {
		return fmt.Errorf("unable to save settings: %w", err)
	}
	s.written = b
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	for key, value := range values(Default()) {
		v.SetDefault(key, value)
	}
	return v
}

func values(st Settings) map[string]any {
	return map[string]any{
		"provider":         string(st.Provider),
		"system_voice":     st.SystemVoice,
		"sapi5_voice":      st.SAPI5Voice,
		"volume":           st.Volume,
		"rate":             st.Rate,
		"say_own_name":     st.SayOwnName,
		"latin_only":       st.LatinOnly,
		"join_message":     st.JoinMessage,
		"leave_message":    st.LeaveMessage,
		"move_message":     st.MoveMessage,
		"mute_message":     st.MuteMessage,
		"unmute_message":   st.UnmuteMessage,
		"deafen_message":   st.DeafenMessage,
		"undeafen_message": st.UndeafenMessage,
	}
}
