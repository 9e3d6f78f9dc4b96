package task

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/topology"
)

// Phase of the experiment a task belongs to
type Phase string

const (
	PhaseWarmup     Phase = "warmup"
	PhaseContention Phase = "contention"
)

// Spec is a traffic task: a command run on a node at an offset from the start of the experiment
type Spec struct {
	Name    string
	Node    string
	Command string
	// StartOffset is relative to t=0 of the experiment
	StartOffset time.Duration
	// BlockingDuration is the measurement window of the task, nil for background tasks
	BlockingDuration *time.Duration
	// OutputSink is the file receiving the task output, empty to discard it
	OutputSink string
	Phase      Phase
}

// End returns the offset at which the task window ends
func (s *Spec) End() time.Duration {
	if s.BlockingDuration == nil {
		return s.StartOffset
	}
	return s.StartOffset + *s.BlockingDuration
}

// Launcher launches traffic tasks
type Launcher interface {
	// Launch starts the task without waiting for it
	Launch(ctx context.Context, spec Spec) (*Handle, error)
}

// NewLauncherImpl creates a new LauncherImpl
func NewLauncherImpl(provider topology.Provider, clk clock.Clock, log klog.Logger) *LauncherImpl {
	return &LauncherImpl{provider: provider, clock: clk, log: log}
}

// LauncherImpl is an implementation of Launcher running tasks on a topology.Provider
type LauncherImpl struct {
	provider topology.Provider
	clock    clock.Clock
	log      klog.Logger
}

// Launch implements Launcher interface
func (l *LauncherImpl) Launch(ctx context.Context, spec Spec) (*Handle, error) {
	log := l.log.WithValues("task", spec.Name, "node", spec.Node)
	sink := OpenSink(spec.OutputSink, log)

	proc, err := l.provider.RunCommand(ctx, spec.Node, spec.Command, sink)
	if err != nil {
		_ = sink.Close()
		return nil, errors.Wrapf(err, "failed to launch task %s on %s", spec.Name, spec.Node)
	}
	log.V(2).Info("task launched", "cmd", spec.Command)

	h := &Handle{
		spec:      spec,
		proc:      proc,
		clock:     l.clock,
		startedAt: l.clock.Now(),
	}
	go func() {
		err := proc.Wait()
		if cerr := sink.Close(); cerr != nil {
			log.Error(cerr, "failed to close task output")
		}
		log.V(2).Info("task exited", "error", errString(err))
	}()
	return h, nil
}

// Handle supervises a launched task
type Handle struct {
	spec      Spec
	proc      topology.Process
	clock     clock.Clock
	startedAt time.Time

	termOnce sync.Once
	termErr  error
}

// Spec returns the spec the task was launched with
func (h *Handle) Spec() Spec {
	return h.spec
}

// StartedAt returns the launch time
func (h *Handle) StartedAt() time.Time {
	return h.startedAt
}

// Done is closed once the task process exited
func (h *Handle) Done() <-chan struct{} {
	return h.proc.Done()
}

// Running returns true while the task process has not exited
func (h *Handle) Running() bool {
	select {
	case <-h.proc.Done():
		return false
	default:
		return true
	}
}

// Wait blocks until the task exits or its blocking duration elapses, whichever comes first.
// background tasks are only waited for until exit. the exit error is returned if the task exited.
func (h *Handle) Wait(ctx context.Context) error {
	var elapsed <-chan time.Time
	if h.spec.BlockingDuration != nil {
		remaining := h.startedAt.Add(*h.spec.BlockingDuration).Sub(h.clock.Now())
		if remaining <= 0 {
			return nil
		}
		elapsed = h.clock.After(remaining)
	}

	select {
	case <-h.proc.Done():
		return h.proc.Wait()
	case <-elapsed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Terminate stops the task, terminating an exited task is a no-op
func (h *Handle) Terminate() error {
	if !h.Running() {
		return nil
	}
	h.termOnce.Do(func() {
		h.termErr = h.proc.Terminate()
	})
	return h.termErr
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
