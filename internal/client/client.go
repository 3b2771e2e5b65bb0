// Package client talks to the speech helper over its loopback protocol.
// Every call degrades to "backend unavailable" instead of returning an error.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/srmooon/vcnarrator/internal/protocol"
)

// DefaultPingTimeout bounds a readiness probe.
const DefaultPingTimeout = time.Second

// Client is the host side of the protocol. It remembers whether the last
// probe succeeded and the last voice list it saw.
type Client struct {
	baseURL     string
	http        *http.Client
	pingTimeout time.Duration
	logger      *log.Logger

	ready atomic.Bool

	mu     sync.RWMutex
	voices []protocol.Voice
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithPingTimeout sets the probe timeout.
func WithPingTimeout(d time.Duration) Option {
	return func(c *Client) { c.pingTimeout = d }
}

// WithBaseURL points the client somewhere other than the loopback port.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// New creates a client for the helper on port.
func New(port int, opts ...Option) *Client {
	c := &Client{
		baseURL:     protocol.BaseURL(port),
		http:        &http.Client{Timeout: 10 * time.Second},
		pingTimeout: DefaultPingTimeout,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsServerRunning pings the helper and records the outcome.
func (c *Client) IsServerRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.pingTimeout)
	defer cancel()

	var ping protocol.PingResponse
	err := c.getJSON(ctx, protocol.PathPing, nil, &ping)
	ok := err == nil && ping.Status == protocol.StatusOK
	c.ready.Store(ok)
	if err != nil {
		c.logger.Debug("Helper ping failed", "error", err)
	}
	return ok
}

// GetVoices returns the helper's voices. On any failure it returns the last
// list it saw, which may be empty.
func (c *Client) GetVoices(ctx context.Context) []protocol.Voice {
	if !c.ready.Load() && !c.IsServerRunning(ctx) {
		return c.CachedVoices()
	}

	var resp protocol.VoicesResponse
	if err := c.getJSON(ctx, protocol.PathVoices, nil, &resp); err != nil {
		c.logger.Error("Failed to get voices", "error", err)
		return c.CachedVoices()
	}

	voices := resp.Voices
	if voices == nil {
		voices = []protocol.Voice{}
	}
	c.mu.Lock()
	c.voices = voices
	c.mu.Unlock()
	return c.CachedVoices()
}

// Speak asks the helper to say req. Blank text succeeds without a request.
func (c *Client) Speak(ctx context.Context, req protocol.PlaybackRequest) bool {
	if req.Blank() {
		return true
	}
	if !c.ready.Load() && !c.IsServerRunning(ctx) {
		c.logger.Warn("Helper not running")
		return false
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	q := url.Values{}
	q.Set(protocol.ParamText, req.Text)
	q.Set(protocol.ParamRate, strconv.Itoa(req.Rate))
	q.Set(protocol.ParamVolume, strconv.Itoa(req.Volume))
	if req.VoiceID != "" {
		q.Set(protocol.ParamVoice, req.VoiceID)
	}

	status, err := c.get(ctx, protocol.PathSpeak, q, req.ID)
	if err != nil {
		c.logger.Error("Failed to speak", "utterance", req.ID, "error", err)
		return false
	}
	if status != http.StatusOK {
		c.logger.Warn("Helper refused utterance", "utterance", req.ID, "status", status)
		return false
	}
	return true
}

// Stop silences the helper. It does nothing unless the helper is known to
// be up, and ignores failures.
func (c *Client) Stop(ctx context.Context) {
	if !c.ready.Load() {
		return
	}
	if _, err := c.get(ctx, protocol.PathStop, nil, ""); err != nil {
		c.logger.Debug("Stop failed", "error", err)
	}
}

// Shutdown asks the helper to exit and forgets that it was ready.
func (c *Client) Shutdown(ctx context.Context) {
	if _, err := c.get(ctx, protocol.PathShutdown, nil, ""); err != nil {
		c.logger.Debug("Shutdown failed", "error", err)
	}
	c.ready.Store(false)
}

// CachedVoices returns a copy of the last voice list.
func (c *Client) CachedVoices() []protocol.Voice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]protocol.Voice, len(c.voices))
	copy(out, c.voices)
	return out
}

// Ready reports the outcome of the last probe.
func (c *Client) Ready() bool {
	return c.ready.Load()
}

func (c *Client) get(ctx context.Context, path string, q url.Values, utterance string) (int, error) {
	resp, err := c.do(ctx, path, q, utterance)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	resp, err := c.do(ctx, path, q, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, q url.Values, utterance string) (*http.Response, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if utterance != "" {
		req.Header.Set(protocol.UtteranceHeader, utterance)
	}
	return c.http.Do(req)
}
