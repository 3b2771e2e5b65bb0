package readiness

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/srmooon/vcnarrator/internal/helper"
	"github.com/srmooon/vcnarrator/internal/protocol"
	"github.com/srmooon/vcnarrator/internal/settings"
)

var (
	// ErrBusy is returned when a check, install or uninstall is already running.
	ErrBusy = errors.New("another readiness operation is in progress")
	// ErrNotInstalled rejects selecting the helper backend before it exists.
	ErrNotInstalled = errors.New("Install SAPI5 first") //nolint:stylecheck
	// ErrNotResponding means the helper was started but never answered a ping.
	ErrNotResponding = errors.New("helper did not respond")
)

// Prober is the protocol client as seen by the reconciler.
type Prober interface {
	IsServerRunning(ctx context.Context) bool
	GetVoices(ctx context.Context) []protocol.Voice
	Shutdown(ctx context.Context)
}

// Launcher starts and removes the helper.
type Launcher interface {
	CheckSetupStatus() helper.InstallState
	Start() error
	Cleanup() error
}

// Installer provisions the helper environment.
type Installer interface {
	Provision(ctx context.Context) error
}

// Preferences holds the provider choice.
type Preferences interface {
	Provider() settings.Provider
	SetProvider(settings.Provider) error
}

// NoticeKind classifies a Notice.
type NoticeKind int

const (
	// NoticeFallback is sent when a failed check moved the provider to system.
	NoticeFallback NoticeKind = iota
	// NoticeInstalled is sent after a successful install.
	NoticeInstalled
	// NoticeRemoved is sent after uninstall.
	NoticeRemoved
)

// Notice is a one-off message for the user, the equivalent of a toast.
type Notice struct {
	Kind    NoticeKind
	Message string
}

// Reconciler drives the helper towards Ready and publishes what it finds on
// a Signal.
type Reconciler struct {
	client    Prober
	launcher  Launcher
	installer Installer
	prefs     Preferences
	signal    *Signal
	logger    *log.Logger
	notify    func(Notice)

	interval time.Duration
	attempts int

	busy atomic.Bool
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithNotifier receives user notices.
func WithNotifier(fn func(Notice)) Option {
	return func(r *Reconciler) { r.notify = fn }
}

// WithProbe sets the probe schedule after a start: attempt n waits
// n*interval before pinging.
func WithProbe(interval time.Duration, attempts int) Option {
	return func(r *Reconciler) {
		r.interval = interval
		r.attempts = attempts
	}
}

// New creates a reconciler publishing on signal.
func New(client Prober, launcher Launcher, installer Installer, prefs Preferences, signal *Signal, opts ...Option) *Reconciler {
	r := &Reconciler{
		client:    client,
		launcher:  launcher,
		installer: installer,
		prefs:     prefs,
		signal:    signal,
		logger:    log.Default(),
		notify:    func(Notice) {},
		interval:  300 * time.Millisecond,
		attempts:  5,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Signal returns the published state.
func (r *Reconciler) Signal() *Signal {
	return r.signal
}

// Check probes the helper and starts it when it is installed but silent.
// The outcome is published and returned; the error is only ErrBusy.
func (r *Reconciler) Check(ctx context.Context) (Snapshot, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return r.signal.Get(), ErrBusy
	}
	defer r.busy.Store(false)

	return r.check(ctx), nil
}

// Install provisions the helper, starts it and switches the provider to it.
func (r *Reconciler) Install(ctx context.Context) (Snapshot, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return r.signal.Get(), ErrBusy
	}
	defer r.busy.Store(false)

	r.publish(Snapshot{State: Checking, Status: StatusDownloading})
	if err := r.installer.Provision(ctx); err != nil {
		r.logger.Error("Setup failed", "error", err)
		snap := r.notReady("Failed: "+err.Error(), err)
		return snap, err
	}

	snap := r.startAndProbe(ctx, r.launcher.CheckSetupStatus())
	if snap.State != Ready {
		return snap, snap.Err
	}

	if err := r.prefs.SetProvider(settings.ProviderSAPI5); err != nil {
		r.logger.Warn("Could not switch provider", "error", err)
	}
	r.notify(Notice{Kind: NoticeInstalled, Message: "SAPI5 installed! Provider switched to SAPI5."})
	return snap, nil
}

// Uninstall shuts the helper down, removes its data and switches the
// provider back to system. It always succeeds; a failed removal is logged
// and kept in the snapshot's Err.
func (r *Reconciler) Uninstall(ctx context.Context) (Snapshot, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return r.signal.Get(), ErrBusy
	}
	defer r.busy.Store(false)

	r.client.Shutdown(ctx)
	err := r.launcher.Cleanup()
	if err != nil {
		r.logger.Error("Cleanup failed", "error", err)
	}

	snap := Snapshot{
		State:     NotReady,
		Status:    StatusNotInstalled,
		Installed: r.launcher.CheckSetupStatus(),
		Err:       err,
	}
	r.publish(snap)

	if perr := r.prefs.SetProvider(settings.ProviderSystem); perr != nil {
		r.logger.Warn("Could not switch provider", "error", perr)
	}
	r.notify(Notice{Kind: NoticeRemoved, Message: "SAPI5 removed. Provider switched to System."})
	return snap, nil
}

// SelectProvider changes the provider. The helper backend can only be chosen
// once it is installed or running.
func (r *Reconciler) SelectProvider(p settings.Provider) error {
	if p == settings.ProviderSAPI5 && !r.available() {
		return ErrNotInstalled
	}
	return r.prefs.SetProvider(p)
}

func (r *Reconciler) available() bool {
	return r.signal.Get().State == Ready || r.launcher.CheckSetupStatus().Ready()
}

func (r *Reconciler) check(ctx context.Context) Snapshot {
	r.publish(Snapshot{State: Checking, Status: StatusChecking})

	if r.client.IsServerRunning(ctx) {
		return r.ready(ctx, r.launcher.CheckSetupStatus())
	}

	installed := r.launcher.CheckSetupStatus()
	if !installed.Ready() {
		return r.notReadyWith(installed, StatusNotInstalled, nil)
	}
	return r.startAndProbe(ctx, installed)
}

// startAndProbe starts the helper and pings it on a linear backoff.
func (r *Reconciler) startAndProbe(ctx context.Context, installed helper.InstallState) Snapshot {
	r.publish(Snapshot{State: Checking, Status: StatusStarting, Installed: installed})

	if err := r.launcher.Start(); err != nil {
		r.logger.Error("Helper failed to start", "error", err)
		return r.notReadyWith(installed, StatusStartFailed, err)
	}

	for attempt := 1; attempt <= r.attempts; attempt++ {
		wait := time.Duration(attempt) * r.interval
		select {
		case <-ctx.Done():
			return r.notReadyWith(installed, StatusStartFailed, ctx.Err())
		case <-time.After(wait):
		}

		if r.client.IsServerRunning(ctx) {
			r.logger.Debug("Helper answered", "attempt", attempt)
			return r.ready(ctx, installed)
		}
		r.logger.Debug("Helper not answering yet", "attempt", attempt, "waited", wait)
	}

	err := fmt.Errorf("%w after %d attempts", ErrNotResponding, r.attempts)
	return r.notReadyWith(installed, StatusStartFailed, err)
}

func (r *Reconciler) ready(ctx context.Context, installed helper.InstallState) Snapshot {
	snap := Snapshot{
		State:     Ready,
		Status:    StatusRunning,
		Voices:    r.client.GetVoices(ctx),
		Installed: installed,
	}
	r.publish(snap)
	return snap
}

func (r *Reconciler) notReady(status string, err error) Snapshot {
	return r.notReadyWith(r.launcher.CheckSetupStatus(), status, err)
}

// notReadyWith publishes NotReady and moves a sapi5 preference back to
// system, once per call.
func (r *Reconciler) notReadyWith(installed helper.InstallState, status string, err error) Snapshot {
	snap := Snapshot{State: NotReady, Status: status, Installed: installed, Err: err}
	r.publish(snap)

	if r.prefs.Provider() == settings.ProviderSAPI5 {
		if perr := r.prefs.SetProvider(settings.ProviderSystem); perr != nil {
			r.logger.Warn("Could not switch provider", "error", perr)
		} else {
			r.logger.Info("Provider switched to system", "status", status)
			r.notify(Notice{Kind: NoticeFallback, Message: "SAPI5 unavailable. Provider switched to System."})
		}
	}
	return snap
}

func (r *Reconciler) publish(snap Snapshot) {
	r.logger.Debug("Readiness", "state", snap.State, "status", snap.Status)
	r.signal.Set(snap)
}
