package monitor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/metrics"
	qosnet "github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/net"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/task"
)

// NewNetlinkMonitor creates a new NetlinkMonitor. the interface must be visible from the current namespace
func NewNetlinkMonitor(netlinkProvider qosnet.NetlinkProvider, clk clock.WithTicker, spec Spec,
	log klog.Logger) *NetlinkMonitor {
	return &NetlinkMonitor{
		netlinkProvider: netlinkProvider,
		clock:           clk,
		spec:            spec,
		log:             log.WithValues("interface", spec.Interface),
	}
}

// NetlinkMonitor is a Monitor sampling link byte counters. each sample is written as
// "<unix timestamp>,<tx bits/s>,<rx bits/s>"
type NetlinkMonitor struct {
	netlinkProvider qosnet.NetlinkProvider
	clock           clock.WithTicker
	spec            Spec
	log             klog.Logger

	mu      sync.Mutex
	samples int
	lastErr error
	started bool

	sink   io.WriteCloser
	w      *bufio.Writer
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

type counters struct {
	at time.Time
	tx uint64
	rx uint64
}

func (m *NetlinkMonitor) read() (counters, error) {
	link, err := m.netlinkProvider.LinkByName(m.spec.Interface)
	if err != nil {
		return counters{}, errors.Wrapf(err, "failed to get link %s", m.spec.Interface)
	}
	stats := link.Attrs().Statistics
	if stats == nil {
		return counters{}, fmt.Errorf("no statistics for link %s", m.spec.Interface)
	}
	return counters{at: m.clock.Now(), tx: stats.TxBytes, rx: stats.RxBytes}, nil
}

// Start implements Monitor interface
func (m *NetlinkMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("monitor already started")
	}
	if m.spec.Interval <= 0 {
		return fmt.Errorf("invalid sampling interval %s", m.spec.Interval)
	}
	prev, err := m.read()
	if err != nil {
		return err
	}

	m.started = true
	m.sink = task.OpenSink(m.spec.Output, m.log)
	m.w = bufio.NewWriter(m.sink)
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	ticker := m.clock.NewTicker(m.spec.Interval)

	go func() {
		defer close(m.doneCh)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				cur, err := m.read()
				if err != nil {
					m.recordErr(err)
					continue
				}
				m.record(prev, cur)
				prev = cur
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	m.log.V(2).Info("monitor started", "interval", m.spec.Interval)
	return nil
}

func (m *NetlinkMonitor) recordErr(err error) {
	m.log.Error(err, "failed to sample link")
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *NetlinkMonitor) record(prev, cur counters) {
	elapsed := cur.at.Sub(prev.at).Seconds()
	if elapsed <= 0 {
		return
	}
	// counters wrapping or being reset yield a zero sample
	var tx, rx float64
	if cur.tx >= prev.tx {
		tx = float64(cur.tx-prev.tx) * 8 / elapsed
	}
	if cur.rx >= prev.rx {
		rx = float64(cur.rx-prev.rx) * 8 / elapsed
	}
	metrics.RecordLinkThroughput(m.spec.Interface, tx, rx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples++
	if _, err := fmt.Fprintf(m.w, "%.3f,%.0f,%.0f\n",
		float64(cur.at.UnixNano())/float64(time.Second), tx, rx); err != nil {
		m.lastErr = errors.Wrap(err, "failed to write sample")
	}
}

// Stop implements Monitor interface
func (m *NetlinkMonitor) Stop() error {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return nil
	}

	var err error
	m.once.Do(func() {
		close(m.stopCh)
		<-m.doneCh

		m.mu.Lock()
		defer m.mu.Unlock()
		if ferr := m.w.Flush(); ferr != nil && m.lastErr == nil {
			m.lastErr = errors.Wrap(ferr, "failed to flush samples")
		}
		if cerr := m.sink.Close(); cerr != nil {
			m.log.Error(cerr, "failed to close samples output")
		}
		m.log.V(2).Info("monitor stopped", "samples", m.samples)
		if m.lastErr != nil {
			err = errors.Wrapf(m.lastErr, "monitor on %s failed", m.spec.Interface)
		}
	})
	return err
}

// Samples implements Monitor interface
func (m *NetlinkMonitor) Samples() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.samples
}
