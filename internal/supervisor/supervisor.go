// Package supervisor starts, stops and removes the singleton speech helper
// process.
package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/srmooon/vcnarrator/internal/helper"
)

// ErrNotInstalled is returned by Start when the interpreter or the control
// script is missing.
var ErrNotInstalled = errors.New("Python or server script not found") //nolint:stylecheck

// ProcessError wraps a failure to spawn the helper.
type ProcessError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ProcessError) Error() string {
	return fmt.Sprintf("unable to start %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Supervisor owns at most one helper process. The handle only reflects
// processes started by this Supervisor; a helper left running by an earlier
// host is invisible to it.
type Supervisor struct {
	layout helper.Layout
	logger *log.Logger

	// command builds the launch line; nil means interpreter + script.
	command func(helper.Layout) (string, []string)

	mu   sync.Mutex
	proc *os.Process
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithCommand replaces the interpreter launch line. The install check in
// Start still applies.
func WithCommand(name string, args ...string) Option {
	return func(s *Supervisor) {
		s.command = func(helper.Layout) (string, []string) { return name, args }
	}
}

// New creates a supervisor for layout.
func New(layout helper.Layout, opts ...Option) *Supervisor {
	s := &Supervisor{layout: layout, logger: log.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckSetupStatus inspects the install markers.
func (s *Supervisor) CheckSetupStatus() helper.InstallState {
	state := helper.CheckSetupStatus(s.layout)
	s.logger.Debug("Checked helper install state",
		"python", state.PythonInstalled,
		"bridge", state.BridgeInstalled,
		"script", state.ServerScriptExists,
		"path", state.DataPath)
	return state
}

// Start spawns the helper detached from this process and returns without
// waiting for it to serve. Starting while a process is tracked is a no-op.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc != nil {
		s.logger.Debug("Helper already running", "pid", s.proc.Pid)
		return nil
	}

	exe, script := s.layout.PythonExe(), s.layout.ServerScriptPath()
	if !exists(exe) || !exists(script) {
		return ErrNotInstalled
	}

	name, args := exe, []string{script}
	if s.command != nil {
		name, args = s.command(s.layout)
	}

	cmd := exec.Command(name, args...)
	// nil stdio is connected to the null device
	cmd.Dir = s.layout.DataDir
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return &ProcessError{Path: name, Err: err}
	}

	proc := cmd.Process
	s.proc = proc
	s.logger.Info("Helper started", "pid", proc.Pid, "command", name)

	go s.observe(cmd, proc)
	return nil
}

// observe clears the handle when the tracked process exits.
func (s *Supervisor) observe(cmd *exec.Cmd, proc *os.Process) {
	err := cmd.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == proc {
		s.proc = nil
	}
	s.logger.Debug("Helper exited", "pid", proc.Pid, "error", err)
}

// Stop kills the tracked process, if any, and forgets it. It never fails.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil {
		return nil
	}
	if err := s.proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("Could not kill helper", "pid", s.proc.Pid, "error", err)
	} else {
		s.logger.Info("Helper stopped", "pid", s.proc.Pid)
	}
	s.proc = nil
	return nil
}

// Cleanup stops the helper and deletes the data directory. Only a failed
// deletion is reported.
func (s *Supervisor) Cleanup() error {
	_ = s.Stop()

	if err := os.RemoveAll(s.layout.DataDir); err != nil {
		return fmt.Errorf("unable to remove %s: %w", s.layout.DataDir, err)
	}
	s.logger.Info("Helper data removed", "path", s.layout.DataDir)
	return nil
}

// Running reports whether a process is tracked.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc != nil
}

// PID returns the tracked process id, or 0.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return 0
	}
	return s.proc.Pid
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
