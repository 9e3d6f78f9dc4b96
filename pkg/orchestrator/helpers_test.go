package orchestrator_test

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/monitor"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/orchestrator"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/policy"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/task"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/topology"
)

// fakeProcess is a topology.Process which runs until terminated
type fakeProcess struct {
	done chan struct{}
	once sync.Once

	mu         sync.Mutex
	terminated int
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{done: make(chan struct{})}
}

func (p *fakeProcess) Wait() error {
	<-p.done
	return nil
}

func (p *fakeProcess) Done() <-chan struct{} {
	return p.done
}

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	p.terminated++
	p.mu.Unlock()
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *fakeProcess) Terminated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

// stepClock advances fakeClock by a second whenever something waits on it, until stop is closed
func stepClock(fakeClock *testingclock.FakeClock, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if fakeClock.HasWaiters() {
			fakeClock.Step(time.Second)
			continue
		}
		time.Sleep(time.Millisecond)
	}
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}

func videoBulkPolicy() *policy.QoSPolicy {
	return &policy.QoSPolicy{
		Interface:    "s1-eth3",
		RootCapacity: 10 * policy.Mbit,
		Classes: []policy.BandwidthClass{
			{ID: "video", Guaranteed: 6 * policy.Mbit, Ceiling: 10 * policy.Mbit, Priority: 0},
			{ID: "bulk", Guaranteed: 2 * policy.Mbit, Ceiling: 4 * policy.Mbit, Priority: 1},
		},
		Rules: []policy.ClassifierRule{
			{Name: "rtp-video", Match: policy.MatchPredicate{DstPort: 5004}, TargetClassID: "video", Order: 1},
			{Name: "best-effort", TargetClassID: "bulk", Default: true},
		},
	}
}

// contentionExperiment is a stream at 0s, the monitor at 4s and three bulk tasks at 14s blocking 20s
func contentionExperiment() orchestrator.Experiment {
	exp := orchestrator.Experiment{
		Name: "contention",
		Topology: topology.Spec{
			Switches: []string{"s1", "s2"},
			Hosts: []topology.HostSpec{
				{Name: "h1", IP: "10.0.0.1/8"},
				{Name: "h3", IP: "10.0.0.3/8"},
			},
			Links: []topology.LinkSpec{
				{A: "h1", B: "s1", Capacity: 10000000},
				{A: "h3", B: "s1", Capacity: 10000000},
				{A: "s1", B: "s2", Capacity: 10000000},
			},
		},
		Policy:     videoBulkPolicy(),
		PolicyNode: "s1",
		Tasks: []task.Spec{
			{Name: "stream", Node: "h1", Command: "ffmpeg -re -i video.mp4 -f rtp rtp://10.0.0.2:5004",
				Phase: task.PhaseWarmup},
		},
		Monitor: monitor.Spec{
			Node: "s1", Interface: "s1-eth3", Interval: 500 * time.Millisecond, StartOffset: 4 * time.Second,
		},
		TotalDuration: 60 * time.Second,
	}
	for _, name := range []string{"bulk-1", "bulk-2", "bulk-3"} {
		exp.Tasks = append(exp.Tasks, task.Spec{
			Name:             name,
			Node:             "h3",
			Command:          "iperf -c 10.0.0.4 -u -b 3M -t 20 # " + name,
			StartOffset:      14 * time.Second,
			BlockingDuration: durationPtr(20 * time.Second),
			Phase:            task.PhaseContention,
		})
	}
	return exp
}

var errTest = errors.New("test error")
