package app

import (
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/srmooon/vcnarrator/internal/config"
	"github.com/srmooon/vcnarrator/internal/readiness"
	"github.com/srmooon/vcnarrator/internal/settings"
)

// closedPort returns a loopback port nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.SettingsFile = filepath.Join(dir, "settings.yml")
	cfg.Port = closedPort(t)
	return cfg
}

func TestNewResolvesPaths(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, WithLogger(log.New(io.Discard)))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}

	if a.Layout.DataDir != cfg.DataDir {
		t.Errorf("Layout.DataDir = %q, want %q", a.Layout.DataDir, cfg.DataDir)
	}
	if a.Settings.Path() != cfg.SettingsFile {
		t.Errorf("Settings.Path() = %q, want %q", a.Settings.Path(), cfg.SettingsFile)
	}
	if a.Reconciler.Signal() != a.Signal {
		t.Error("reconciler publishes on a different signal")
	}
}

func TestCheckWithoutInstall(t *testing.T) {
	var notices []readiness.Notice
	a, err := New(testConfig(t),
		WithLogger(log.New(io.Discard)),
		WithNotifier(func(n readiness.Notice) { notices = append(notices, n) }),
	)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}

	snap, err := a.Reconciler.Check(context.Background())
	if err != nil {
		t.Fatalf("Check() = %v", err)
	}
	if snap.State != readiness.NotReady || snap.Status != readiness.StatusNotInstalled {
		t.Errorf("Check() = %v %q, want not-ready %q", snap.State, snap.Status, readiness.StatusNotInstalled)
	}
	if got := a.Signal.Get().State; got != readiness.NotReady {
		t.Errorf("Signal state = %v, want not-ready", got)
	}
	if len(notices) != 0 {
		t.Errorf("notices = %v, want none for a system provider", notices)
	}
}

func TestSelectProviderRequiresInstall(t *testing.T) {
	a, err := New(testConfig(t), WithLogger(log.New(io.Discard)))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}

	if err := a.Reconciler.SelectProvider(settings.ProviderSAPI5); !errors.Is(err, readiness.ErrNotInstalled) {
		t.Errorf("SelectProvider(sapi5) = %v, want ErrNotInstalled", err)
	}
	if got := a.Settings.Provider(); got != settings.ProviderSystem {
		t.Errorf("Provider() = %q, want %q", got, settings.ProviderSystem)
	}
}
