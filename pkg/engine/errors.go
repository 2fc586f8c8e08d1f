package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for sandbox failure classification.
var (
	// ErrModuleNotAvailable indicates the code required a module other than telegraf.
	ErrModuleNotAvailable = errors.New("module not available")

	// ErrNoBotInstance indicates the code never constructed a Telegraf instance.
	ErrNoBotInstance = errors.New("no bot instance found")

	// ErrExecution indicates a compile error, runtime exception or timeout.
	ErrExecution = errors.New("execution failed")

	// ErrMultipleInstances indicates a second Telegraf construction under the
	// reject instance policy.
	ErrMultipleInstances = errors.New("multiple bot instances")
)

// SandboxError is returned by the JavaScript sandbox. Kind is one of the
// sentinel errors above so callers can use errors.Is.
type SandboxError struct {
	Kind    error
	Message string
	Err     error
}

func (e *SandboxError) Error() string {
	return e.Message
}

func (e *SandboxError) Unwrap() error {
	return e.Err
}

func (e *SandboxError) Is(target error) bool {
	return target == e.Kind
}

func newSandboxError(kind error, format string, args ...interface{}) *SandboxError {
	return &SandboxError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// executionError wraps a failure raised while running user code. A denied
// require takes precedence over the generic failure so that the caller sees
// which module was refused.
func executionError(detail string, cause error, denied *SandboxError) *SandboxError {
	if denied != nil {
		return &SandboxError{Kind: denied.Kind, Message: denied.Message, Err: cause}
	}
	return &SandboxError{Kind: ErrExecution, Message: "execution failed: " + detail, Err: cause}
}
