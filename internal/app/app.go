// Package app wires the helper lifecycle components together from a Config.
package app

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/srmooon/vcnarrator/internal/client"
	"github.com/srmooon/vcnarrator/internal/config"
	"github.com/srmooon/vcnarrator/internal/helper"
	"github.com/srmooon/vcnarrator/internal/narrator"
	"github.com/srmooon/vcnarrator/internal/provision"
	"github.com/srmooon/vcnarrator/internal/readiness"
	"github.com/srmooon/vcnarrator/internal/settings"
	"github.com/srmooon/vcnarrator/internal/speech"
	"github.com/srmooon/vcnarrator/internal/supervisor"
)

// App holds one instance of every lifecycle component.
type App struct {
	Config      config.Config
	Logger      *log.Logger
	Layout      helper.Layout
	Supervisor  *supervisor.Supervisor
	Provisioner *provision.Provisioner
	Client      *client.Client
	Settings    *settings.Store
	Signal      *readiness.Signal
	Reconciler  *readiness.Reconciler

	system *speech.System
}

// Option configures an App.
type Option func(*options)

type options struct {
	logger   *log.Logger
	notifier func(readiness.Notice)
}

// WithLogger sets the logger handed to every component.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithNotifier receives the reconciler's user notices.
func WithNotifier(fn func(readiness.Notice)) Option {
	return func(o *options) { o.notifier = fn }
}

// New resolves the configured paths and builds the components. Nothing is
// started and the network is not touched.
func New(cfg config.Config, opts ...Option) (*App, error) {
	o := options{logger: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		return nil, err
	}
	settingsFile, err := cfg.ResolveSettingsFile()
	if err != nil {
		return nil, err
	}

	store, err := settings.Open(settingsFile, settings.WithLogger(o.logger))
	if err != nil {
		return nil, fmt.Errorf("unable to open settings: %w", err)
	}

	layout := helper.NewLayout(dataDir)
	sup := supervisor.New(layout, supervisor.WithLogger(o.logger))
	prov := provision.New(layout, cfg.Helper, cfg.Port, provision.WithLogger(o.logger))
	cl := client.New(cfg.Port,
		client.WithLogger(o.logger),
		client.WithPingTimeout(cfg.Readiness.PingTimeout),
	)
	signal := readiness.NewSignal()

	ropts := []readiness.Option{
		readiness.WithLogger(o.logger),
		readiness.WithProbe(cfg.Readiness.ProbeInterval, cfg.Readiness.ProbeAttempts),
	}
	if o.notifier != nil {
		ropts = append(ropts, readiness.WithNotifier(o.notifier))
	}

	return &App{
		Config:      cfg,
		Logger:      o.logger,
		Layout:      layout,
		Supervisor:  sup,
		Provisioner: prov,
		Client:      cl,
		Settings:    store,
		Signal:      signal,
		Reconciler:  readiness.New(cl, sup, prov, store, signal, ropts...),
	}, nil
}

// System returns the fallback voice built on the configured speech engine.
func (a *App) System() (*speech.System, error) {
	if a.system != nil {
		return a.system, nil
	}
	engine, err := speech.Select(a.Config.Serve.Engine)
	if err != nil {
		return nil, err
	}
	a.system = speech.NewSystem(speech.NewCommandVoice(engine, a.Logger))
	a.Logger.Debug("System voice ready", "engine", engine.Name())
	return a.system, nil
}

// Dispatcher returns a dispatcher routing between the helper and the
// system voice.
func (a *App) Dispatcher() (*narrator.Dispatcher, error) {
	sys, err := a.System()
	if err != nil {
		return nil, err
	}
	return narrator.NewDispatcher(a.Settings, a.Client, sys, a.Signal, a.Logger), nil
}
