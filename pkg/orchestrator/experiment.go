package orchestrator

import (
	"time"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/monitor"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/policy"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/task"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/topology"
)

// Experiment is a single contention experiment run
type Experiment struct {
	Name     string
	Topology topology.Spec
	Policy   *policy.QoSPolicy
	// PolicyNode is the node owning the policy interface
	PolicyNode    string
	Tasks         []task.Spec
	Monitor       monitor.Spec
	TotalDuration time.Duration
}

// Validate checks the experiment timeline
func (e *Experiment) Validate() error {
	if e.Name == "" {
		return invalidf("empty experiment name")
	}
	if e.Policy == nil {
		return invalidf("no policy")
	}
	if e.TotalDuration <= 0 {
		return invalidf("total duration must be positive, got %s", e.TotalDuration)
	}
	if e.Monitor.Node == "" || e.Monitor.Interface == "" {
		return invalidf("monitor node and interface are required")
	}
	if e.Monitor.StartOffset < 0 || e.Monitor.StartOffset >= e.TotalDuration {
		return invalidf("monitor start offset %s outside of [0, %s)", e.Monitor.StartOffset, e.TotalDuration)
	}

	names := make(map[string]struct{}, len(e.Tasks))
	for _, t := range e.Tasks {
		if t.Name == "" {
			return invalidf("task with empty name")
		}
		if _, ok := names[t.Name]; ok {
			return invalidf("duplicate task %s", t.Name)
		}
		names[t.Name] = struct{}{}

		if t.Node == "" || t.Command == "" {
			return invalidf("task %s: node and command are required", t.Name)
		}
		if t.StartOffset < 0 {
			return invalidf("task %s: negative start offset", t.Name)
		}
		if t.BlockingDuration != nil && *t.BlockingDuration <= 0 {
			return invalidf("task %s: blocking duration must be positive", t.Name)
		}
		if t.End() > e.TotalDuration {
			return invalidf("task %s: window ends at %s after total duration %s", t.Name, t.End(), e.TotalDuration)
		}
		switch t.Phase {
		case task.PhaseWarmup, "":
		case task.PhaseContention:
			if e.Monitor.StartOffset >= t.StartOffset {
				return invalidf("task %s: contention starts at %s before the monitor at %s",
					t.Name, t.StartOffset, e.Monitor.StartOffset)
			}
		default:
			return invalidf("task %s: unknown phase %q", t.Name, t.Phase)
		}
	}
	return nil
}
