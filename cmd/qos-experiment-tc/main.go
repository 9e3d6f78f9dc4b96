package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/runner"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/utils"
)

const logFlushFreqFlagName = "log-flush-frequency"

var logFlushFreq = pflag.Duration(logFlushFreqFlagName, 5*time.Second, "Maximum number of seconds between log flushes")

// KlogWriter serves as a bridge between the standard log package and the glog package.
type KlogWriter struct{}

// Write implements the io.Writer interface.
func (writer KlogWriter) Write(data []byte) (n int, err error) {
	klog.InfoDepth(1, string(data))
	return len(data), nil
}

func initLogs(ctx context.Context) {
	log.SetOutput(KlogWriter{})
	log.SetFlags(0)
	go wait.Until(klog.Flush, *logFlushFreq, ctx.Done())
}

func newRunnerOrExit(opts *runner.Options) *runner.Runner {
	r, err := runner.NewRunner(opts)
	if err != nil {
		klog.Exit(err)
	}
	return r
}

func main() {
	ctx := utils.SetupSignalHandler()
	opts := runner.NewOptions()

	rootCmd := &cobra.Command{
		Use:   "qos-experiment-tc",
		Short: "Run QoS contention experiments over an emulated network",
		Long: `qos-experiment-tc compiles a QoS policy into an HTB class hierarchy, applies it on the shared
link of an emulated two switch network and runs a timed experiment where a video stream contends
with bulk iperf flows while the link throughput is sampled.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogs(ctx)
		},
	}
	klog.InitFlags(nil)
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	rootCmd.PersistentFlags().AddFlagSet(pflag.CommandLine)
	opts.AddFlags(rootCmd.PersistentFlags())

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the experiment and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := newRunnerOrExit(opts).Run(ctx, cmd.OutOrStdout())
			return err
		},
	}

	compileCmd := &cobra.Command{
		Use:   "compile",
		Short: "Print the tc commands realizing the policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := newRunnerOrExit(opts).Compile(cmd.OutOrStdout())
			return err
		},
	}

	var reset bool
	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the policy on the policy interface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newRunnerOrExit(opts).Apply(reset)
		},
	}
	applyCmd.Flags().BoolVar(&reset, "reset", false, "Remove the existing queuing discipline before applying.")

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove the queuing configuration of the policy interface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newRunnerOrExit(opts).Reset()
		},
	}

	var iface string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the queuing configuration installed on an interface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newRunnerOrExit(opts).Show(iface, cmd.OutOrStdout())
		},
	}
	showCmd.Flags().StringVarP(&iface, "interface", "i", "", "Interface to show, the policy interface if unset.")

	rootCmd.AddCommand(runCmd, compileCmd, applyCmd, resetCmd, showCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		klog.Flush()
		os.Exit(1)
	}
	klog.Flush()
}
