package monitor

import (
	"context"
	"time"
)

// Monitor samples the throughput of a link for as long as it runs
type Monitor interface {
	// Start attaches the sampler
	Start(ctx context.Context) error
	// Stop terminates sampling and flushes buffered samples. stopping a stopped monitor is a no-op
	Stop() error
	// Samples returns the number of samples taken so far
	Samples() int
}

// Spec describes what to monitor
type Spec struct {
	// Node owning Interface
	Node      string
	Interface string
	Interval  time.Duration
	// StartOffset is relative to t=0 of the experiment
	StartOffset time.Duration
	// Output is the file receiving samples, empty to discard them
	Output string
	// Command overrides the sampler command line of the command monitor
	Command string
}
