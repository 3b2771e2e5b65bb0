package ttsserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srmooon/vcnarrator/internal/protocol"
)

type spoken struct {
	Text  string
	Flags protocol.SpeakFlags
}

type fakeVoice struct {
	mu       sync.Mutex
	list     []protocol.Voice
	listErr  error
	speakErr error

	voice  string
	rate   int
	volume int
	said   []spoken
}

func (f *fakeVoice) Voices(context.Context) ([]protocol.Voice, error) {
	return f.list, f.listErr
}

func (f *fakeVoice) SetVoice(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voice = id
	return nil
}

func (f *fakeVoice) SetRate(rate int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = rate
}

func (f *fakeVoice) SetVolume(volume int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = volume
}

func (f *fakeVoice) Speak(text string, flags protocol.SpeakFlags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.speakErr != nil {
		return f.speakErr
	}
	f.said = append(f.said, spoken{Text: text, Flags: flags})
	return nil
}

type fakeState struct {
	voice  string
	rate   int
	volume int
	said   []spoken
}

func (f *fakeVoice) state() fakeState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeState{voice: f.voice, rate: f.rate, volume: f.volume, said: f.said}
}

func newFakeVoice() *fakeVoice {
	return &fakeVoice{
		list: []protocol.Voice{
			{ID: "v1", Name: "Voice One"},
			{ID: "v2", Name: "Voice Two"},
		},
		volume: 100,
	}
}

func newTestServer(t *testing.T, voice Voice, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(context.Background(), voice, opts...)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func get(t *testing.T, url string) (int, map[string]any, http.Header) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &out), "body %q", body)
	}
	return resp.StatusCode, out, resp.Header
}

func TestPing(t *testing.T) {
	_, ts := newTestServer(t, newFakeVoice())

	status, body, header := get(t, ts.URL+"/ping")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "VcNarrator SAPI5 TTS", body["server"])
	assert.Equal(t, "*", header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "application/json", header.Get("Content-Type"))
}

func TestVoices(t *testing.T) {
	_, ts := newTestServer(t, newFakeVoice())

	resp, err := http.Get(ts.URL + "/voices")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got protocol.VoicesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, []protocol.Voice{{ID: "v1", Name: "Voice One"}, {ID: "v2", Name: "Voice Two"}}, got.Voices)
}

func TestVoicesEmptyListIsArray(t *testing.T) {
	_, ts := newTestServer(t, &fakeVoice{})

	resp, err := http.Get(ts.URL + "/voices")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"voices":[]}`, string(body))
}

func TestNewEnumerationFailure(t *testing.T) {
	_, err := New(context.Background(), &fakeVoice{listErr: errors.New("no engine")})
	require.Error(t, err)
}

func TestSpeak(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantBody   map[string]any
		wantVoice  string
		wantRate   int
		wantVolume int
		wantSaid   []spoken
	}{
		{
			name:       "missing text",
			query:      "",
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"error": "No text provided"},
			wantVolume: 100,
		},
		{
			name:       "empty text",
			query:      "text=&rate=3",
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"error": "No text provided"},
			wantVolume: 100,
		},
		{
			name:       "defaults",
			query:      "text=hello",
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"status": "speaking"},
			wantRate:   0,
			wantVolume: 100,
			wantSaid:   []spoken{{Text: "hello", Flags: protocol.SpeakAsync}},
		},
		{
			name:       "clamped and known voice",
			query:      "text=hi+there&voice=v2&rate=50&volume=-5",
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"status": "speaking"},
			wantVoice:  "v2",
			wantRate:   10,
			wantVolume: 0,
			wantSaid:   []spoken{{Text: "hi there", Flags: protocol.SpeakAsync}},
		},
		{
			name:       "unknown voice ignored",
			query:      "text=x&voice=nope&rate=-3&volume=40",
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"status": "speaking"},
			wantRate:   -3,
			wantVolume: 40,
			wantSaid:   []spoken{{Text: "x", Flags: protocol.SpeakAsync}},
		},
		{
			name:       "bad rate",
			query:      "text=x&rate=fast",
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"error": "Invalid rate"},
			wantVolume: 100,
		},
		{
			name:       "bad volume",
			query:      "text=x&volume=1.5",
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"error": "Invalid volume"},
			wantVolume: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			voice := newFakeVoice()
			_, ts := newTestServer(t, voice)

			status, body, _ := get(t, ts.URL+"/speak?"+tt.query)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, body)
			got := voice.state()
			assert.Equal(t, tt.wantVoice, got.voice)
			assert.Equal(t, tt.wantRate, got.rate)
			assert.Equal(t, tt.wantVolume, got.volume)
			assert.Equal(t, tt.wantSaid, got.said)
		})
	}
}

func TestSpeakNativeFailure(t *testing.T) {
	voice := newFakeVoice()
	voice.speakErr = errors.New("audio device lost")
	metrics := NewMetrics("test")
	_, ts := newTestServer(t, voice, WithMetrics(metrics))

	status, body, _ := get(t, ts.URL+"/speak?text=hello")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "audio device lost", body["error"])

	status, _, _ = get(t, ts.URL+"/stop")
	assert.Equal(t, http.StatusInternalServerError, status)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	out := rec.Body.String()
	assert.Contains(t, out, `test_native_errors_total{op="speak"} 1`)
	assert.Contains(t, out, `test_native_errors_total{op="stop"} 1`)
	assert.Contains(t, out, `test_requests_total{path="/speak",status="500"} 1`)
}

func TestStop(t *testing.T) {
	voice := newFakeVoice()
	_, ts := newTestServer(t, voice)

	status, body, _ := get(t, ts.URL+"/stop")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "stopped", body["status"])
	assert.Equal(t, []spoken{{Text: "", Flags: protocol.SpeakPurge}}, voice.state().said)
}

func TestNotFound(t *testing.T) {
	_, ts := newTestServer(t, newFakeVoice())

	status, body, _ := get(t, ts.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Not found", body["error"])

	resp, err := http.Post(ts.URL+"/speak", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOptions(t *testing.T) {
	_, ts := newTestServer(t, newFakeVoice())

	for _, path := range []string{"/speak", "/anything"} {
		req, err := http.NewRequest(http.MethodOptions, ts.URL+path, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type", resp.Header.Get("Access-Control-Allow-Headers"))
	}
}

func TestShutdown(t *testing.T) {
	hooked := make(chan struct{})
	srv, err := New(context.Background(), newFakeVoice(), WithShutdownHook(func() { close(hooked) }))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(context.Background(), ln) }()

	status, body, _ := get(t, "http://"+ln.Addr().String()+"/shutdown")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "shutting down", body["status"])

	select {
	case <-hooked:
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown hook did not run")
	}
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after /shutdown")
	}
	<-srv.Done()
}

func TestServeStopsWithContext(t *testing.T) {
	srv, err := New(context.Background(), newFakeVoice())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	status, _, _ := get(t, "http://"+ln.Addr().String()+"/ping")
	require.Equal(t, http.StatusOK, status)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestMetricsListener(t *testing.T) {
	metrics := NewMetrics("vcn")
	metrics.Utterances.Inc()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- metrics.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "vcn_utterances_total 1")

	resp, err = http.Get("http://" + ln.Addr().String() + protocol.PathPing)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics Serve did not return after cancel")
	}
}
