package monitor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/metrics"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/task"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/topology"
)

// NewCommandMonitor creates a new CommandMonitor
func NewCommandMonitor(provider topology.Provider, spec Spec, log klog.Logger) *CommandMonitor {
	return &CommandMonitor{provider: provider, spec: spec, log: log.WithValues("interface", spec.Interface)}
}

// CommandMonitor is a Monitor running ifstat on the node owning the interface.
// its raw output goes to the sink, lines with an in and out rate in KB/s are counted as samples.
type CommandMonitor struct {
	provider topology.Provider
	spec     Spec
	log      klog.Logger

	mu      sync.Mutex
	proc    topology.Process
	sink    io.WriteCloser
	samples int
	partial []byte
	stopped bool
}

// Command returns the sampler command line
func (m *CommandMonitor) Command() string {
	if m.spec.Command != "" {
		return m.spec.Command
	}
	return fmt.Sprintf("ifstat -i %s %s", m.spec.Interface,
		strconv.FormatFloat(m.spec.Interval.Seconds(), 'f', -1, 64))
}

// Start implements Monitor interface
func (m *CommandMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.proc != nil {
		return fmt.Errorf("monitor already started")
	}
	m.sink = task.OpenSink(m.spec.Output, m.log)
	proc, err := m.provider.RunCommand(ctx, m.spec.Node, m.Command(), m)
	if err != nil {
		_ = m.sink.Close()
		return errors.Wrapf(err, "failed to start sampler on %s", m.spec.Node)
	}
	m.proc = proc
	m.log.V(2).Info("monitor started", "cmd", m.Command())
	return nil
}

// Write receives the sampler output
func (m *CommandMonitor) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return len(p), nil
	}
	m.partial = append(m.partial, p...)
	for {
		idx := bytes.IndexByte(m.partial, '\n')
		if idx < 0 {
			break
		}
		m.parseLine(string(m.partial[:idx]))
		m.partial = m.partial[idx+1:]
	}
	if _, err := m.sink.Write(p); err != nil {
		m.log.Error(err, "failed to write samples")
	}
	return len(p), nil
}

// parseLine records a sample for lines of the form "<KB/s in> <KB/s out>"
func (m *CommandMonitor) parseLine(line string) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return
	}
	in, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return
	}
	out, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return
	}
	m.samples++
	metrics.RecordLinkThroughput(m.spec.Interface, out*8000, in*8000)
}

// Stop implements Monitor interface
func (m *CommandMonitor) Stop() error {
	m.mu.Lock()
	if m.stopped || m.proc == nil {
		m.mu.Unlock()
		return nil
	}
	proc := m.proc
	m.mu.Unlock()

	var exitErr error
	select {
	case <-proc.Done():
		// the sampler is not expected to exit on its own
		exitErr = proc.Wait()
		if exitErr == nil {
			exitErr = fmt.Errorf("sampler exited early")
		}
	default:
		if err := proc.Terminate(); err != nil {
			exitErr = errors.Wrap(err, "failed to terminate sampler")
		}
		<-proc.Done()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// the sampler may be killed mid line
	if len(m.partial) > 0 {
		m.parseLine(string(m.partial))
		m.partial = nil
	}
	m.stopped = true
	if err := m.sink.Close(); err != nil {
		m.log.Error(err, "failed to close samples output")
	}
	m.log.V(2).Info("monitor stopped", "samples", m.samples)
	if exitErr != nil {
		return errors.Wrapf(exitErr, "monitor on %s failed", m.spec.Interface)
	}
	return nil
}

// Samples implements Monitor interface
func (m *CommandMonitor) Samples() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.samples
}
