package provision

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManyRedirects is returned when a download exceeds the redirect cap.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrBadStatus is returned when a download ends on a non-200 response.
	ErrBadStatus = errors.New("unexpected HTTP status")
	// ErrUnsafeArchive is returned for archive entries escaping the target dir.
	ErrUnsafeArchive = errors.New("archive entry escapes destination")
)

// Step names one provisioning step.
type Step string

// Provisioning steps, in execution order.
const (
	StepPrepare      Step = "prepare"
	StepDownload     Step = "download interpreter"
	StepExtract      Step = "extract interpreter"
	StepPatchPath    Step = "patch path config"
	StepBootstrapPip Step = "bootstrap pip"
	StepInstall      Step = "install bridge"
	StepWriteScript  Step = "write server script"
)

// SetupError wraps the failure of one provisioning step. Its message is
// shown to the user verbatim.
type SetupError struct {
	Step Step
	Err  error
}

// Error implements the error interface.
func (e *SetupError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed", e.Step)
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error.
func (e *SetupError) Unwrap() error {
	return e.Err
}
