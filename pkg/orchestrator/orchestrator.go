package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/metrics"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/monitor"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/generator"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/task"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/topology"
)

const (
	// DefaultDrainTimeout bounds how long draining waits for terminated tasks to exit
	DefaultDrainTimeout = 10 * time.Second
)

// ActuatorFactory returns the Actuator for iface on node
type ActuatorFactory func(node, iface string) (tc.Actuator, error)

// MonitorFactory returns the Monitor for spec
type MonitorFactory func(spec monitor.Spec) (monitor.Monitor, error)

// Dependencies of an Orchestrator
type Dependencies struct {
	Provider        topology.Provider
	Generator       generator.Generator
	ActuatorFactory ActuatorFactory
	Launcher        task.Launcher
	MonitorFactory  MonitorFactory
	Clock           clock.Clock
	// ResetExisting clears any queuing discipline already installed on the policy interface
	ResetExisting bool
	DrainTimeout  time.Duration
	// RunID identifies the run, generated when empty
	RunID string
}

// New creates a new Orchestrator for exp
func New(exp Experiment, deps Dependencies, log klog.Logger) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	if deps.DrainTimeout == 0 {
		deps.DrainTimeout = DefaultDrainTimeout
	}
	runID := deps.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	return &Orchestrator{
		exp:   exp,
		deps:  deps,
		runID: runID,
		log:   log.WithValues("experiment", exp.Name, "run", runID),
	}
}

// Orchestrator drives an Experiment through its phases:
// Building -> Provisioned -> PolicyApplied -> Running -> Draining -> TornDown.
// any fatal error or cancellation moves it directly to Draining.
type Orchestrator struct {
	exp   Experiment
	deps  Dependencies
	runID string
	log   klog.Logger

	mu     sync.Mutex
	phase  Phase
	report *Report
	ran    bool

	t0      time.Time
	mon     monitor.Monitor
	handles []*task.Handle
	built   bool
}

// RunID returns the unique id of this run
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Phase returns the current phase
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) transition(p Phase) {
	o.mu.Lock()
	from := o.phase
	o.phase = p
	o.report.Transitions = append(o.report.Transitions, Transition{Phase: p, At: o.deps.Clock.Now()})
	if p != PhaseDraining && p != PhaseTornDown {
		o.report.PhaseReached = p
	}
	o.mu.Unlock()

	metrics.RecordPhase(o.exp.Name, phaseNames(), string(p))
	o.log.Info("phase transition", "from", from, "to", p)
}

type eventKind int

// events at the same offset are dispatched in kind order
const (
	eventMonitorStart eventKind = iota
	eventTaskLaunch
	eventEnd
)

type event struct {
	offset time.Duration
	kind   eventKind
	task   int
}

// schedule returns the timeline events ordered by offset
func (o *Orchestrator) schedule() []event {
	events := []event{
		{offset: o.exp.Monitor.StartOffset, kind: eventMonitorStart},
		{offset: o.exp.TotalDuration, kind: eventEnd},
	}
	for i, t := range o.exp.Tasks {
		events = append(events, event{offset: t.StartOffset, kind: eventTaskLaunch, task: i})
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].offset != events[j].offset {
			return events[i].offset < events[j].offset
		}
		return events[i].kind < events[j].kind
	})
	return events
}

// Run runs the experiment to completion. the report is nil only when the orchestrator already ran,
// the returned error is the fatal error of the run, if any.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	o.mu.Lock()
	if o.ran {
		o.mu.Unlock()
		return nil, fmt.Errorf("experiment %s already ran", o.exp.Name)
	}
	o.ran = true
	o.report = newReport(o.runID, o.exp)
	o.mu.Unlock()

	err := o.run(ctx)
	if err != nil {
		o.log.Error(err, "experiment failed")
	}
	o.report.Err = err
	o.drain()
	return o.report, o.report.Err
}

func (o *Orchestrator) run(ctx context.Context) error {
	o.transition(PhaseBuilding)

	if err := o.exp.Validate(); err != nil {
		return err
	}
	plan, err := o.deps.Generator.Compile(o.exp.Policy)
	if err != nil {
		return errors.Wrap(err, "failed to compile policy")
	}
	if o.deps.ResetExisting {
		plan = generator.WithReset(plan)
	}

	o.built = true
	if _, err := topology.Build(ctx, o.deps.Provider, o.exp.Topology); err != nil {
		return kindError(ErrProvision, err)
	}
	o.transition(PhaseProvisioned)

	actuator, err := o.deps.ActuatorFactory(o.exp.PolicyNode, plan.Interface)
	if err != nil {
		return kindError(ErrPolicyApply, err)
	}
	if err := actuator.Actuate(plan); err != nil {
		return kindError(ErrPolicyApply, err)
	}
	o.transition(PhasePolicyApplied)

	o.t0 = o.deps.Clock.Now()
	o.transition(PhaseRunning)
	return o.runTimeline(ctx)
}

func (o *Orchestrator) runTimeline(ctx context.Context) error {
	for _, ev := range o.schedule() {
		if err := o.waitUntil(ctx, ev.offset); err != nil {
			o.report.Cancelled = true
			return errors.Wrap(err, "experiment cancelled")
		}
		o.log.V(4).Info("dispatching", "offset", ev.offset, "kind", ev.kind, "task", ev.task)

		switch ev.kind {
		case eventMonitorStart:
			if err := o.startMonitor(ctx); err != nil {
				return kindError(ErrMonitor, err)
			}
		case eventTaskLaunch:
			o.launch(ctx, ev.task)
		case eventEnd:
			return nil
		}
	}
	return nil
}

// waitUntil blocks until the timeline reaches offset
func (o *Orchestrator) waitUntil(ctx context.Context, offset time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := o.t0.Add(offset).Sub(o.deps.Clock.Now())
	if d <= 0 {
		return nil
	}
	select {
	case <-o.deps.Clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) offset() time.Duration {
	return o.deps.Clock.Now().Sub(o.t0)
}

func (o *Orchestrator) startMonitor(ctx context.Context) error {
	mon, err := o.deps.MonitorFactory(o.exp.Monitor)
	if err != nil {
		return err
	}
	if err := mon.Start(ctx); err != nil {
		return err
	}
	o.mon = mon
	started := o.offset()
	o.report.MonitorStartedAt = &started
	return nil
}

func (o *Orchestrator) launch(ctx context.Context, idx int) {
	spec := o.exp.Tasks[idx]
	rec := &o.report.Tasks[idx]

	h, err := o.deps.Launcher.Launch(ctx, spec)
	if err != nil {
		rec.Err = kindError(ErrTaskLaunch, err)
		metrics.RecordTaskLaunchFailure(o.exp.Name, spec.Name)
		o.log.Error(err, "task failed to launch, continuing", "task", spec.Name)
		return
	}
	started := o.offset()
	rec.StartedAt = &started
	o.handles = append(o.handles, h)
}

// drain stops the monitor, terminates live tasks and releases the topology
func (o *Orchestrator) drain() {
	o.transition(PhaseDraining)
	var errs []error
	deadline := o.deps.Clock.After(o.deps.DrainTimeout)

	var monitorStopped chan error
	if o.mon != nil {
		monitorStopped = make(chan error, 1)
		go func(mon monitor.Monitor) {
			monitorStopped <- mon.Stop()
		}(o.mon)
	}

	for _, h := range o.handles {
		if h.Running() {
			o.report.taskRecord(h.Spec().Name).Terminated = true
		}
		if err := h.Terminate(); err != nil {
			errs = append(errs, errors.Wrapf(err, "failed to terminate task %s", h.Spec().Name))
		}
	}

	timedOut := false
	if monitorStopped != nil {
		select {
		case err := <-monitorStopped:
			if err != nil {
				if o.mon.Samples() == 0 && o.report.Err == nil {
					o.report.Err = kindError(ErrMonitor, err)
				} else {
					o.report.MonitorErr = err
				}
			}
		case <-deadline:
			timedOut = true
			err := fmt.Errorf("monitor did not stop within %s", o.deps.DrainTimeout)
			o.report.MonitorErr = err
			errs = append(errs, err)
		}
	}

	if !timedOut {
	waitLoop:
		for _, h := range o.handles {
			select {
			case <-h.Done():
			case <-deadline:
				errs = append(errs, fmt.Errorf("tasks did not exit within %s", o.deps.DrainTimeout))
				break waitLoop
			}
		}
	}

	if o.built {
		if err := o.deps.Provider.Stop(context.Background()); err != nil {
			errs = append(errs, errors.Wrap(err, "failed to release topology"))
		}
	}

	o.report.TeardownErr = utilerrors.NewAggregate(errs)
	o.transition(PhaseTornDown)
}
