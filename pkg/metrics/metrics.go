package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	Namespace = "qos_experiment"

	ExperimentKey = "experiment"
	PhaseKey      = "phase"
	TaskKey       = "task"
	InterfaceKey  = "interface"
	DirectionKey  = "direction"

	DirectionTX = "tx"
	DirectionRX = "rx"
)

var (
	ExperimentPhase = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "phase",
		Help:      "1 for the phase the experiment is currently in, 0 otherwise",
	}, []string{ExperimentKey, PhaseKey})

	TaskLaunchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "task_launch_failures_total",
		Help:      "Number of traffic tasks which failed to launch",
	}, []string{ExperimentKey, TaskKey})

	LinkThroughput = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "link_throughput_bits_per_second",
		Help:      "Last sampled throughput of the monitored link",
	}, []string{InterfaceKey, DirectionKey})

	MonitorSamples = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "monitor_samples_total",
		Help:      "Number of link samples taken by the monitor",
	}, []string{InterfaceKey})

	Collectors = []prometheus.Collector{
		ExperimentPhase,
		TaskLaunchFailures,
		LinkThroughput,
		MonitorSamples,
	}

	registerOnce sync.Once
)

// Register registers all collectors with registerer. subsequent calls are no-op
func Register(registerer prometheus.Registerer) {
	registerOnce.Do(func() {
		registerer.MustRegister(Collectors...)
	})
}

// Handler returns an http handler serving the default gatherer
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPhase marks phase as the current phase of experiment
func RecordPhase(experiment string, phases []string, phase string) {
	for _, p := range phases {
		v := 0.0
		if p == phase {
			v = 1
		}
		ExperimentPhase.With(prometheus.Labels{ExperimentKey: experiment, PhaseKey: p}).Set(v)
	}
}

func RecordTaskLaunchFailure(experiment, task string) {
	TaskLaunchFailures.With(prometheus.Labels{ExperimentKey: experiment, TaskKey: task}).Inc()
}

func RecordLinkThroughput(iface string, txBps, rxBps float64) {
	LinkThroughput.With(prometheus.Labels{InterfaceKey: iface, DirectionKey: DirectionTX}).Set(txBps)
	LinkThroughput.With(prometheus.Labels{InterfaceKey: iface, DirectionKey: DirectionRX}).Set(rxBps)
	MonitorSamples.With(prometheus.Labels{InterfaceKey: iface}).Inc()
}
