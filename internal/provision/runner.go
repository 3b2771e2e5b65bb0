package provision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Runner executes provisioning commands such as get-pip and pip install.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) error
}

// ExecRunner runs commands as hidden child processes with a timeout.
type ExecRunner struct {
	timeout time.Duration
	logger  *log.Logger
}

// NewExecRunner creates a runner. A non-positive timeout means five minutes.
func NewExecRunner(timeout time.Duration, logger *log.Logger) *ExecRunner {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ExecRunner{timeout: timeout, logger: logger}
}

// Run executes name with args in dir and waits for it. A failing command
// reports its stderr, or the exit error when stderr is empty.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	hideWindow(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	r.logger.Debug("Command finished",
		"command", name,
		"args", args,
		"duration", time.Since(start),
		"error", err)

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("command timed out after %v", r.timeout)
		}
		return fmt.Errorf("command cancelled: %w", ctx.Err())
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return errors.New(msg)
		}
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}
