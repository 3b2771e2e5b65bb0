package narrator

import (
	"context"
	"testing"

	"github.com/srmooon/vcnarrator/internal/protocol"
	"github.com/srmooon/vcnarrator/internal/readiness"
	"github.com/srmooon/vcnarrator/internal/settings"
)

type fakeHelper struct {
	ok    bool
	reqs  []protocol.PlaybackRequest
	stops int
}

func (f *fakeHelper) Speak(_ context.Context, req protocol.PlaybackRequest) bool {
	f.reqs = append(f.reqs, req)
	return f.ok
}

func (f *fakeHelper) Stop(context.Context) { f.stops++ }

type systemCall struct {
	text   string
	voice  string
	rate   float64
	volume float64
}

type fakeSystem struct {
	calls    []systemCall
	stops    int
	speaking bool
}

func (f *fakeSystem) Speak(text, voiceID string, rate, volume float64) error {
	f.calls = append(f.calls, systemCall{text, voiceID, rate, volume})
	f.speaking = true
	return nil
}

func (f *fakeSystem) Stop() {
	f.stops++
	f.speaking = false
}

func (f *fakeSystem) Speaking() bool { return f.speaking }

func readySignal(state readiness.State) *readiness.Signal {
	s := readiness.NewSignal()
	s.Set(readiness.Snapshot{State: state})
	return s
}

func TestDispatcherRouting(t *testing.T) {
	tests := []struct {
		name       string
		provider   settings.Provider
		state      readiness.State
		helperOK   bool
		wantHelper int
		wantSystem int
	}{
		{"system provider", settings.ProviderSystem, readiness.Ready, true, 0, 1},
		{"sapi5 ready", settings.ProviderSAPI5, readiness.Ready, true, 1, 0},
		{"sapi5 not ready", settings.ProviderSAPI5, readiness.NotReady, true, 0, 1},
		{"sapi5 checking", settings.ProviderSAPI5, readiness.Checking, true, 0, 1},
		{"sapi5 refused", settings.ProviderSAPI5, readiness.Ready, false, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := settings.Default()
			s.Provider = tt.provider
			h := &fakeHelper{ok: tt.helperOK}
			sys := &fakeSystem{}
			d := NewDispatcher(staticPrefs{s}, h, sys, readySignal(tt.state), nil)

			d.Speak(context.Background(), "hello")

			if len(h.reqs) != tt.wantHelper {
				t.Errorf("helper calls = %d, want %d", len(h.reqs), tt.wantHelper)
			}
			if len(sys.calls) != tt.wantSystem {
				t.Errorf("system calls = %d, want %d", len(sys.calls), tt.wantSystem)
			}
		})
	}
}

func TestDispatcherMapsSettings(t *testing.T) {
	s := settings.Default()
	s.Provider = settings.ProviderSAPI5
	s.SAPI5Voice = "zira"
	s.SystemVoice = "Alex"
	s.Rate = 2
	s.Volume = 0.5

	h := &fakeHelper{ok: true}
	sys := &fakeSystem{}
	d := NewDispatcher(staticPrefs{s}, h, sys, readySignal(readiness.Ready), nil)
	d.Speak(context.Background(), "hi")

	if len(h.reqs) != 1 {
		t.Fatalf("helper calls = %d, want 1", len(h.reqs))
	}
	req := h.reqs[0]
	if req.Text != "hi" || req.VoiceID != "zira" || req.Rate != 5 || req.Volume != 50 {
		t.Errorf("request = %+v", req)
	}
	if req.ID == "" {
		t.Error("request has no utterance id")
	}

	s.Provider = settings.ProviderSystem
	d = NewDispatcher(staticPrefs{s}, h, sys, readySignal(readiness.Ready), nil)
	d.Speak(context.Background(), "hi")
	if got, want := sys.calls[0], (systemCall{"hi", "Alex", 2, 0.5}); got != want {
		t.Errorf("system call = %+v, want %+v", got, want)
	}
}

func TestDispatcherEmptyText(t *testing.T) {
	h := &fakeHelper{ok: true}
	sys := &fakeSystem{}
	d := NewDispatcher(staticPrefs{settings.Default()}, h, sys, readySignal(readiness.Ready), nil)

	d.Speak(context.Background(), "")
	if len(h.reqs)+len(sys.calls) != 0 {
		t.Error("empty text reached a backend")
	}
}

func TestDispatcherToggle(t *testing.T) {
	h := &fakeHelper{ok: true}
	sys := &fakeSystem{}
	d := NewDispatcher(staticPrefs{settings.Default()}, h, sys, readySignal(readiness.NotReady), nil)
	ctx := context.Background()

	d.Toggle(ctx, "first")
	if !d.Speaking() {
		t.Fatal("Speaking() = false after speaking on the system voice")
	}

	d.Toggle(ctx, "second")
	if d.Speaking() {
		t.Error("Speaking() = true after toggling off")
	}
	if sys.stops != 1 || h.stops != 1 {
		t.Errorf("stops = system %d, helper %d, want 1 each", sys.stops, h.stops)
	}
	if len(sys.calls) != 1 {
		t.Errorf("system calls = %d, want 1", len(sys.calls))
	}
}
