// Package ttsserver serves the speech helper's loopback control protocol.
package ttsserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/srmooon/vcnarrator/internal/protocol"
)

// Voice is the native speech object the server drives. Implementations need
// not be safe for concurrent use; the server serializes every call.
type Voice interface {
	Voices(ctx context.Context) ([]protocol.Voice, error)
	SetVoice(id string) error
	SetRate(rate int)
	SetVolume(volume int)
	Speak(text string, flags protocol.SpeakFlags) error
}

// Server implements the control protocol on top of a Voice.
type Server struct {
	voice   Voice
	voices  []protocol.Voice
	logger  *log.Logger
	metrics *Metrics
	hook    func()

	mu       sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records request and engine metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithShutdownHook runs fn after a /shutdown response has been sent.
func WithShutdownHook(fn func()) Option {
	return func(s *Server) { s.hook = fn }
}

// New enumerates the voices once and returns a server for them.
func New(ctx context.Context, voice Voice, opts ...Option) (*Server, error) {
	s := &Server{
		voice:  voice,
		logger: log.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	voices, err := voice.Voices(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to enumerate voices: %w", err)
	}
	if voices == nil {
		voices = []protocol.Voice{}
	}
	s.voices = voices
	if s.metrics != nil {
		s.metrics.Voices.Set(float64(len(voices)))
	}
	s.logger.Info("Voices enumerated", "count", len(voices))
	return s, nil
}

// Done is closed once a /shutdown request has been answered.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Router returns the protocol handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.observe)
	r.Use(cors)

	r.Get(protocol.PathPing, s.handlePing)
	r.Get(protocol.PathVoices, s.handleVoices)
	r.Get(protocol.PathSpeak, s.handleSpeak)
	r.Get(protocol.PathStop, s.handleStop)
	r.Get(protocol.PathShutdown, s.handleShutdown)

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleNotFound)
	return r
}

// Serve answers requests on ln until ctx is done or a /shutdown request
// arrives, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("Helper listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	case <-s.done:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("unable to shut down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, protocol.PingResponse{
		Status: protocol.StatusOK,
		Server: protocol.ServerName,
	})
}

func (s *Server) handleVoices(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, protocol.VoicesResponse{Voices: s.voices})
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	text := q.Get(protocol.ParamText)
	if text == "" {
		respondError(w, http.StatusBadRequest, protocol.ErrMsgNoText)
		return
	}
	rate, err := intParam(q, protocol.ParamRate, protocol.DefaultRate)
	if err != nil {
		respondError(w, http.StatusBadRequest, protocol.ErrMsgInvalidRate)
		return
	}
	volume, err := intParam(q, protocol.ParamVolume, protocol.DefaultVolume)
	if err != nil {
		respondError(w, http.StatusBadRequest, protocol.ErrMsgInvalidVolume)
		return
	}

	id := r.Header.Get(protocol.UtteranceHeader)
	if id == "" {
		id = uuid.NewString()
	}
	voiceID := q.Get(protocol.ParamVoice)

	err = s.native("speak", func() error {
		if voiceID != "" && s.hasVoice(voiceID) {
			if err := s.voice.SetVoice(voiceID); err != nil {
				return err
			}
		}
		s.voice.SetRate(protocol.ClampRate(rate))
		s.voice.SetVolume(protocol.ClampVolume(volume))
		return s.voice.Speak(text, protocol.SpeakAsync)
	})
	if err != nil {
		s.logger.Error("Speak failed", "utterance", id, "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.metrics != nil {
		s.metrics.Utterances.Inc()
	}
	s.logger.Debug("Speaking", "utterance", id, "voice", voiceID, "rate", rate, "volume", volume, "chars", len(text))
	respondJSON(w, http.StatusOK, protocol.StatusResponse{Status: protocol.StatusSpeaking})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	err := s.native("stop", func() error {
		return s.voice.Speak("", protocol.SpeakPurge)
	})
	if err != nil {
		s.logger.Error("Stop failed", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, protocol.StatusResponse{Status: protocol.StatusStopped})
}

func (s *Server) handleShutdown(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, protocol.StatusResponse{Status: protocol.StatusShuttingDown})
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	go s.stopOnce.Do(func() {
		s.logger.Info("Shutdown requested")
		if s.hook != nil {
			s.hook()
		}
		close(s.done)
	})
}

func handleNotFound(w http.ResponseWriter, _ *http.Request) {
	respondError(w, http.StatusNotFound, protocol.ErrMsgNotFound)
}

// native runs fn under the voice lock and counts failures.
func (s *Server) native(op string, fn func() error) error {
	s.mu.Lock()
	err := fn()
	s.mu.Unlock()

	if err != nil && s.metrics != nil {
		s.metrics.NativeErrors.WithLabelValues(op).Inc()
	}
	return err
}

func (s *Server) hasVoice(id string) bool {
	for _, v := range s.voices {
		if v.ID == id {
			return true
		}
	}
	return false
}

// observe logs each request and records it in the metrics.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Debug("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", time.Since(start))

		if s.metrics != nil {
			s.metrics.Requests.WithLabelValues(pathLabel(r.URL.Path), strconv.Itoa(status)).Inc()
		}
	})
}

var knownPaths = map[string]bool{
	protocol.PathPing:     true,
	protocol.PathVoices:   true,
	protocol.PathSpeak:    true,
	protocol.PathStop:     true,
	protocol.PathShutdown: true,
}

func pathLabel(p string) string {
	if knownPaths[p] {
		return p
	}
	return "other"
}

// cors allows any origin and answers every preflight.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// intParam parses an optional integer query parameter.
func intParam(q url.Values, name string, def int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, protocol.ErrorResponse{Error: message})
}
