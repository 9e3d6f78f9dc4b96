package runner

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"k8s.io/utils/clock"
	"k8s.io/utils/exec"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/config"
	qosnet "github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/net"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/orchestrator"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/policy"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/generator"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/topology"
)

const (
	TCDriverCmdLine = "cmdline"
	TCDriverNetlink = "netlink"

	MonitorKindCommand = "command"
	MonitorKindNetlink = "netlink"
)

// Options stores option for the command
type Options struct {
	// ConfigPath is the experiment file, the reference experiment is used when empty
	ConfigPath string
	// TCDriver is the tc driver used to apply the policy, cmdline or netlink
	TCDriver string
	// ResetExisting clears the queuing discipline installed on the policy interface before applying
	ResetExisting bool
	// OutputDir is the base directory of relative task and monitor outputs
	OutputDir string
	// PlanDump if non-empty, the compiled plan is also written to this file
	PlanDump string
	// MetricsBindAddress serves prometheus metrics when non-empty
	MetricsBindAddress string
	// MonitorKind selects the link monitor, command (ifstat) or netlink (kernel counters)
	MonitorKind  string
	DrainTimeout time.Duration
	// Image and SharedDir override the host image and shared directory of the experiment file
	Image     string
	SharedDir string

	// used in tests
	netlinkProvider qosnet.NetlinkProvider
	executor        exec.Interface
	clock           clock.WithTicker
	renderer        policy.Renderer
	tcGenerator     generator.Generator
	newProvider     func(spec *config.TopologySpec) (topology.Provider, error)
	createActuator  func(node, iface string) (tc.Actuator, error)
}

// AddFlags adds command line flags into command
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.SortFlags = false
	fs.StringVarP(&o.ConfigPath, "config", "c", o.ConfigPath, "Path to the experiment file. the reference experiment is used if unset.")
	fs.StringVar(&o.TCDriver, "tc-driver", o.TCDriver, "TC driver used to apply the policy, one of: cmdline, netlink.")
	fs.BoolVar(&o.ResetExisting, "reset-existing", o.ResetExisting, "Remove the queuing discipline already installed on the policy interface before applying the policy.")
	fs.StringVar(&o.OutputDir, "output-dir", o.OutputDir, "Base directory for relative task and monitor outputs, each run gets its own subdirectory.")
	fs.StringVar(&o.PlanDump, "plan-dump", o.PlanDump, "If non-empty, the compiled tc plan is also saved to this file.")
	fs.StringVar(&o.MetricsBindAddress, "metrics-bind-address", o.MetricsBindAddress, "If non-empty, serve prometheus metrics on this address.")
	fs.StringVar(&o.MonitorKind, "monitor", o.MonitorKind, "Link monitor, one of: command, netlink.")
	fs.DurationVar(&o.DrainTimeout, "drain-timeout", o.DrainTimeout, "Maximum time to wait for terminated tasks to exit.")
	fs.StringVar(&o.Image, "image", o.Image, "If non-empty, overrides the container image of emulated hosts.")
	fs.StringVar(&o.SharedDir, "shared-dir", o.SharedDir, "If non-empty, overrides the directory shared by emulated hosts.")
}

// Validate checks option values
func (o *Options) Validate() error {
	switch o.TCDriver {
	case TCDriverCmdLine, TCDriverNetlink:
	default:
		return fmt.Errorf("unknown TC driver: %s", o.TCDriver)
	}
	switch o.MonitorKind {
	case MonitorKindCommand, MonitorKindNetlink:
	default:
		return fmt.Errorf("unknown monitor: %s", o.MonitorKind)
	}
	if o.DrainTimeout <= 0 {
		return fmt.Errorf("drain timeout must be positive, got %s", o.DrainTimeout)
	}
	return nil
}

// NewOptions initializes Options
func NewOptions() *Options {
	return &Options{
		TCDriver:      TCDriverCmdLine,
		ResetExisting: true,
		OutputDir:     "results",
		MonitorKind:   MonitorKindCommand,
		DrainTimeout:  orchestrator.DefaultDrainTimeout,
	}
}
