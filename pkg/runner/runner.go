package runner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/apimachinery/pkg/api/resource"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"
	"k8s.io/utils/exec"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/config"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/metrics"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/monitor"
	qosnet "github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/net"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/orchestrator"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/policy"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc"
	cmdlinedriver "github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/driver/cmdline"
	netlinkdriver "github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/driver/netlink"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/generator"
	tctypes "github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/types"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/task"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/topology"
)

const metricsShutdownTimeout = 5 * time.Second

// Runner wires the experiment building blocks together and exposes the operations of the command
type Runner struct {
	Options *Options

	netlinkProvider qosnet.NetlinkProvider
	executor        exec.Interface
	clock           clock.WithTicker
	renderer        policy.Renderer
	tcGenerator     generator.Generator
	newProvider     func(spec *config.TopologySpec) (topology.Provider, error)
	createActuator  func(node, iface string) (tc.Actuator, error)
}

// NewRunner creates a new *Runner instance
func NewRunner(o *Options) (*Runner, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	if o.netlinkProvider == nil {
		o.netlinkProvider = qosnet.NewNetlinkProviderImpl()
	}
	if o.executor == nil {
		o.executor = exec.New()
	}
	if o.clock == nil {
		o.clock = clock.RealClock{}
	}
	if o.renderer == nil {
		o.renderer = policy.NewRendererImpl(klog.NewKlogr().WithName("policy-renderer"))
	}
	if o.tcGenerator == nil {
		o.tcGenerator = generator.NewHTBGenerator()
	}

	r := &Runner{
		Options:         o,
		netlinkProvider: o.netlinkProvider,
		executor:        o.executor,
		clock:           o.clock,
		renderer:        o.renderer,
		tcGenerator:     o.tcGenerator,
		newProvider:     o.newProvider,
		createActuator:  o.createActuator,
	}
	if r.newProvider == nil {
		r.newProvider = r.newEmulatedProvider
	}
	if r.createActuator == nil {
		// use builtin method if unspecified
		r.createActuator = r.CreateActuator
	}
	return r, nil
}

// LoadExperiment loads the configured experiment file or the reference experiment if none is set
func (r *Runner) LoadExperiment() (*config.Experiment, error) {
	if r.Options.ConfigPath == "" {
		klog.Info("no experiment file specified, using the reference experiment")
		return config.Default(), nil
	}
	return config.Load(r.Options.ConfigPath)
}

// RenderPolicy renders and validates the policy of cfg
func (r *Runner) RenderPolicy(cfg *config.Experiment) (*policy.QoSPolicy, error) {
	p, err := r.renderer.Render(&cfg.Policy)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// BuildExperiment converts cfg into an orchestrator.Experiment. relative outputs are placed under
// <OutputDir>/<runID>.
func (r *Runner) BuildExperiment(cfg *config.Experiment, runID string) (orchestrator.Experiment, error) {
	exp := orchestrator.Experiment{
		Name:          cfg.Name,
		PolicyNode:    cfg.Policy.Node,
		TotalDuration: cfg.TotalDuration.Duration,
	}

	p, err := r.RenderPolicy(cfg)
	if err != nil {
		return exp, err
	}
	exp.Policy = p

	switches := make(map[string]struct{}, len(cfg.Topology.Switches))
	for _, s := range cfg.Topology.Switches {
		switches[s] = struct{}{}
	}
	// actuators and the netlink monitor operate in the namespace of the runner, which is the one of switches
	if _, ok := switches[cfg.Policy.Node]; !ok {
		return exp, errors.Wrapf(orchestrator.ErrInvalidExperiment, "policy node %q is not a switch", cfg.Policy.Node)
	}
	if _, ok := switches[cfg.Monitor.Node]; !ok && r.Options.MonitorKind == MonitorKindNetlink {
		return exp, errors.Wrapf(orchestrator.ErrInvalidExperiment,
			"netlink monitor requires a switch, %q is not", cfg.Monitor.Node)
	}

	exp.Topology = topology.Spec{Switches: cfg.Topology.Switches}
	for _, h := range cfg.Topology.Hosts {
		exp.Topology.Hosts = append(exp.Topology.Hosts, topology.HostSpec{Name: h.Name, IP: h.IP})
	}
	for _, l := range cfg.Topology.Links {
		capacity, err := bitsPerSecond(l.Capacity)
		if err != nil {
			return exp, errors.Wrapf(orchestrator.ErrInvalidExperiment, "link %s <-> %s: %v", l.A, l.B, err)
		}
		exp.Topology.Links = append(exp.Topology.Links, topology.LinkSpec{A: l.A, B: l.B, Capacity: capacity})
	}

	outDir := filepath.Join(r.Options.OutputDir, runID)
	for _, t := range cfg.Tasks {
		ts := task.Spec{
			Name:        t.Name,
			Node:        t.Node,
			Command:     t.Command,
			StartOffset: t.StartOffset.Duration,
			OutputSink:  outputPath(outDir, t.Output),
			Phase:       task.Phase(t.Phase),
		}
		if ts.Phase == "" {
			ts.Phase = task.PhaseWarmup
		}
		if t.BlockingDuration != nil {
			blocking := t.BlockingDuration.Duration
			ts.BlockingDuration = &blocking
		}
		exp.Tasks = append(exp.Tasks, ts)
	}

	exp.Monitor = monitor.Spec{
		Node:        cfg.Monitor.Node,
		Interface:   cfg.Monitor.Interface,
		Interval:    cfg.Monitor.Interval.Duration,
		StartOffset: cfg.Monitor.StartOffset.Duration,
		Output:      outputPath(outDir, cfg.Monitor.Output),
		Command:     cfg.Monitor.Command,
	}

	return exp, exp.Validate()
}

func bitsPerSecond(q resource.Quantity) (uint64, error) {
	v := q.Value()
	if v < 0 {
		return 0, fmt.Errorf("negative capacity %s", q.String())
	}
	return uint64(v), nil
}

func outputPath(dir, output string) string {
	if output == "" || filepath.IsAbs(output) {
		return output
	}
	return filepath.Join(dir, output)
}

func (r *Runner) newEmulatedProvider(spec *config.TopologySpec) (topology.Provider, error) {
	image, sharedDir := spec.Image, spec.SharedDir
	if r.Options.Image != "" {
		image = r.Options.Image
	}
	if r.Options.SharedDir != "" {
		sharedDir = r.Options.SharedDir
	}
	hosts, err := topology.NewDockerRuntime(image, sharedDir, klog.NewKlogr().WithName("docker-runtime"))
	if err != nil {
		return nil, err
	}
	return topology.NewEmulatedProvider(
		hosts,
		topology.NewOVSRuntime(klog.NewKlogr().WithName("ovs-runtime")),
		r.netlinkProvider,
		r.executor,
		klog.NewKlogr().WithName("emulated-topology")), nil
}

// createTC creates a new tc.TC for iface given the configured tc driver
func (r *Runner) createTC(iface string) (tc.TC, error) {
	switch r.Options.TCDriver {
	case TCDriverNetlink:
		lnk, err := r.netlinkProvider.LinkByName(iface)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get link: %s", iface)
		}
		return netlinkdriver.NewTcNetlinkImpl(
			lnk, klog.NewKlogr().WithName("tc-netlink-driver"), r.netlinkProvider), nil
	case TCDriverCmdLine:
		return cmdlinedriver.NewTcCmdLineImpl(
			iface, klog.NewKlogr().WithName("tc-cmdline-driver"), r.executor), nil
	default:
		return nil, fmt.Errorf("unknown TC driver: %s", r.Options.TCDriver)
	}
}

// CreateActuator creates a new tc.Actuator for iface of node. if PlanDump is set the plan is also
// saved to file.
func (r *Runner) CreateActuator(node, iface string) (tc.Actuator, error) {
	tcAPI, err := r.createTC(iface)
	if err != nil {
		return nil, err
	}
	klog.V(4).InfoS("creating actuator", "node", node, "interface", iface, "driver", r.Options.TCDriver)

	actuator := tc.Actuator(tc.NewActuatorTCImpl(tcAPI, klog.NewKlogr().WithName("tc-actuator")))
	if r.Options.PlanDump == "" {
		return actuator, nil
	}
	return multiActuator{
		actuator,
		tc.NewActuatorFileWriterImpl(r.Options.PlanDump, klog.NewKlogr().WithName("actuator-file-writer")),
	}, nil
}

// multiActuator applies a plan with each of its actuators in order, stopping at the first error
type multiActuator []tc.Actuator

// Actuate implements tc.Actuator interface
func (m multiActuator) Actuate(plan *generator.Plan) error {
	for _, a := range m {
		if err := a.Actuate(plan); err != nil {
			return err
		}
	}
	return nil
}

// CreateMonitor creates the configured monitor kind for spec
func (r *Runner) CreateMonitor(provider topology.Provider, spec monitor.Spec) (monitor.Monitor, error) {
	switch r.Options.MonitorKind {
	case MonitorKindCommand:
		return monitor.NewCommandMonitor(provider, spec, klog.NewKlogr().WithName("command-monitor")), nil
	case MonitorKindNetlink:
		return monitor.NewNetlinkMonitor(r.netlinkProvider, r.clock, spec,
			klog.NewKlogr().WithName("netlink-monitor")), nil
	default:
		return nil, fmt.Errorf("unknown monitor: %s", r.Options.MonitorKind)
	}
}

// Run runs the experiment and renders its report to out
func (r *Runner) Run(ctx context.Context, out io.Writer) (*orchestrator.Report, error) {
	cfg, err := r.LoadExperiment()
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	exp, err := r.BuildExperiment(cfg, runID)
	if err != nil {
		return nil, err
	}

	provider, err := r.newProvider(&cfg.Topology)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create topology provider")
	}

	stopMetrics := r.serveMetrics()
	defer stopMetrics()

	deps := orchestrator.Dependencies{
		Provider:        provider,
		Generator:       r.tcGenerator,
		ActuatorFactory: r.createActuator,
		Launcher:        task.NewLauncherImpl(provider, r.clock, klog.NewKlogr().WithName("task-launcher")),
		MonitorFactory: func(spec monitor.Spec) (monitor.Monitor, error) {
			return r.CreateMonitor(provider, spec)
		},
		Clock:         r.clock,
		ResetExisting: r.Options.ResetExisting,
		DrainTimeout:  r.Options.DrainTimeout,
		RunID:         runID,
	}

	klog.InfoS("running experiment", "name", exp.Name, "run", runID)
	report, err := orchestrator.New(exp, deps, klog.NewKlogr().WithName("orchestrator")).Run(ctx)
	if report != nil {
		report.Render(out)
	}
	return report, err
}

// serveMetrics serves prometheus metrics if MetricsBindAddress is set, the returned func stops serving
func (r *Runner) serveMetrics() func() {
	if r.Options.MetricsBindAddress == "" {
		return func() {}
	}
	metrics.Register(prometheus.DefaultRegisterer)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              r.Options.MetricsBindAddress,
		Handler:           mux,
		ReadHeaderTimeout: metricsShutdownTimeout,
	}
	go func() {
		klog.InfoS("serving metrics", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			klog.ErrorS(err, "metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			klog.Warningf("failed to shutdown metrics server. %v", err)
		}
	}
}

// Compile compiles the policy of the experiment and writes its tc command lines to out
func (r *Runner) Compile(out io.Writer) (*generator.Plan, error) {
	_, plan, err := r.compile()
	if err != nil {
		return nil, err
	}
	if r.Options.ResetExisting {
		plan = generator.WithReset(plan)
	}

	for _, line := range plan.CmdLines() {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return nil, err
		}
	}

	if r.Options.PlanDump != "" {
		fw := tc.NewActuatorFileWriterImpl(r.Options.PlanDump, klog.NewKlogr().WithName("actuator-file-writer"))
		if err := fw.Actuate(plan); err != nil {
			return nil, errors.Wrapf(err, "failed to save plan to %s", r.Options.PlanDump)
		}
	}
	return plan, nil
}

func (r *Runner) compile() (*config.Experiment, *generator.Plan, error) {
	cfg, err := r.LoadExperiment()
	if err != nil {
		return nil, nil, err
	}
	p, err := r.RenderPolicy(cfg)
	if err != nil {
		return nil, nil, err
	}
	plan, err := r.tcGenerator.Compile(p)
	if err != nil {
		return nil, nil, err
	}
	return cfg, plan, nil
}

// Apply compiles the policy of the experiment and applies it on the policy interface, clearing the
// existing configuration first if reset is set.
func (r *Runner) Apply(reset bool) error {
	cfg, plan, err := r.compile()
	if err != nil {
		return err
	}
	if reset {
		plan = generator.WithReset(plan)
	}

	actuator, err := r.createActuator(cfg.Policy.Node, plan.Interface)
	if err != nil {
		return err
	}
	return actuator.Actuate(plan)
}

// Reset removes the queuing configuration of the policy interface
func (r *Runner) Reset() error {
	cfg, err := r.LoadExperiment()
	if err != nil {
		return err
	}
	actuator, err := r.createActuator(cfg.Policy.Node, cfg.Policy.Interface)
	if err != nil {
		return err
	}
	return actuator.Actuate(generator.WithReset(&generator.Plan{Interface: cfg.Policy.Interface}))
}

// Show writes the queuing configuration currently installed on iface to out
func (r *Runner) Show(iface string, out io.Writer) error {
	if iface == "" {
		cfg, err := r.LoadExperiment()
		if err != nil {
			return err
		}
		iface = cfg.Policy.Interface
	}

	tcAPI, err := r.createTC(iface)
	if err != nil {
		return err
	}

	qdiscs, err := tcAPI.QDiscList()
	if err != nil {
		return errors.Wrapf(err, "failed to list qdiscs on %s", iface)
	}
	classes, err := tcAPI.ClassList()
	if err != nil {
		return errors.Wrapf(err, "failed to list classes on %s", iface)
	}

	rows := make([]prettytable.Row, 0, len(qdiscs)+len(classes))
	var errs []error
	for _, q := range qdiscs {
		rows = append(rows, prettytable.Row{"qdisc", strings.Join(q.GenCmdLineArgs(), " ")})
	}
	for _, c := range classes {
		rows = append(rows, prettytable.Row{"class", strings.Join(c.GenCmdLineArgs(), " ")})
	}
	for _, q := range qdiscs {
		if !q.Attrs().IsRoot() || q.Type() != tctypes.QDiscHTBType {
			continue
		}
		filters, err := tcAPI.FilterList(q)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "failed to list filters of qdisc %s", q.Type()))
			continue
		}
		for _, f := range filters {
			rows = append(rows, prettytable.Row{"filter", strings.Join(f.GenCmdLineArgs(), " ")})
		}
	}

	t := prettytable.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(fmt.Sprintf("tc configuration of %s", iface))
	t.AppendHeader(prettytable.Row{"Object", "Spec"})
	t.AppendRows(rows)
	t.Render()

	return utilerrors.NewAggregate(errs)
}
