package orchestrator

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidExperiment is returned when the experiment timeline is inconsistent
	ErrInvalidExperiment = errors.New("invalid experiment")
	// ErrProvision is returned when the topology cannot be built
	ErrProvision = errors.New("provision error")
	// ErrPolicyApply is returned when the compiled policy cannot be applied
	ErrPolicyApply = errors.New("policy apply error")
	// ErrTaskLaunch is recorded against a task which failed to launch
	ErrTaskLaunch = errors.New("task launch error")
	// ErrMonitor is returned when the monitor never produced samples
	ErrMonitor = errors.New("monitor error")
)

// kindError marks err as being of kind, both match errors.Is
func kindError(kind, err error) error {
	return fmt.Errorf("%w: %w", kind, err)
}

func invalidf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidExperiment, format, args...)
}
