// Package provision downloads and assembles the private speech helper
// environment: an embedded interpreter, its package manager, the speech
// bridge library and the control script.
package provision

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"

	"github.com/srmooon/vcnarrator/internal/config"
	"github.com/srmooon/vcnarrator/internal/helper"
)

// Fetcher downloads url into dest.
type Fetcher interface {
	Download(ctx context.Context, url, dest string) error
}

// Provisioner builds the helper environment described by a layout.
type Provisioner struct {
	layout  helper.Layout
	cfg     config.HelperConfig
	port    int
	fetcher Fetcher
	runner  Runner
	logger  *log.Logger
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithFetcher replaces the HTTP downloader.
func WithFetcher(f Fetcher) Option {
	return func(p *Provisioner) { p.fetcher = f }
}

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(p *Provisioner) { p.runner = r }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Provisioner) { p.logger = l }
}

// New creates a provisioner for layout. port is baked into the control script.
func New(layout helper.Layout, cfg config.HelperConfig, port int, opts ...Option) *Provisioner {
	p := &Provisioner{
		layout: layout,
		cfg:    cfg,
		port:   port,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.fetcher == nil {
		p.fetcher = NewDownloader(cfg.MaxRedirects, cfg.DownloadTimeout, p.logger)
	}
	if p.runner == nil {
		p.runner = NewExecRunner(cfg.CommandTimeout, p.logger)
	}
	return p
}

// Provision runs every step in order and stops at the first failure, which is
// returned as a *SetupError. Files written by earlier steps are left in place.
func (p *Provisioner) Provision(ctx context.Context) error {
	l := p.layout
	p.logger.Info("Provisioning speech helper", "path", l.DataDir)

	steps := []struct {
		step Step
		fn   func(context.Context) error
	}{
		{StepPrepare, func(context.Context) error {
			if err := os.MkdirAll(l.DataDir, 0o755); err != nil {
				return err
			}
			return os.MkdirAll(l.PythonPath(), 0o755)
		}},
		{StepDownload, func(ctx context.Context) error {
			return p.fetcher.Download(ctx, p.cfg.PythonURL, l.ArchivePath())
		}},
		{StepExtract, func(context.Context) error {
			return ExtractZip(l.ArchivePath(), l.PythonPath())
		}},
		{StepPatchPath, func(context.Context) error {
			changed, err := PatchPathConfig(l.PathConfig())
			if err == nil {
				p.logger.Debug("Patched path config", "path", l.PathConfig(), "changed", changed)
			}
			return err
		}},
		{StepBootstrapPip, func(ctx context.Context) error {
			if err := os.MkdirAll(l.SitePackages(), 0o755); err != nil {
				return err
			}
			if err := p.fetcher.Download(ctx, p.cfg.GetPipURL, l.GetPipPath()); err != nil {
				return err
			}
			return p.runner.Run(ctx, l.PythonPath(), l.PythonExe(), l.GetPipPath())
		}},
		{StepInstall, func(ctx context.Context) error {
			return p.runner.Run(ctx, l.PythonPath(), l.PythonExe(),
				"-m", "pip", "install", p.cfg.BridgePackage, "--target", l.SitePackages())
		}},
		{StepWriteScript, func(context.Context) error {
			return WriteServerScript(l.ServerScriptPath(), p.port)
		}},
	}

	for _, s := range steps {
		p.logger.Info("Setup step", "step", s.step)
		if err := s.fn(ctx); err != nil {
			p.logger.Error("Setup step failed", "step", s.step, "error", err)
			return &SetupError{Step: s.step, Err: err}
		}
	}

	p.removeLeftovers()
	p.logger.Info("Speech helper provisioned", "path", l.DataDir)
	return nil
}

// removeLeftovers deletes the downloaded archive and pip bootstrap script.
// Failures are only logged.
func (p *Provisioner) removeLeftovers() {
	for _, path := range []string{p.layout.ArchivePath(), p.layout.GetPipPath()} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("Could not remove setup leftover", "path", path, "error", err)
		}
	}
}
