package monitor_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/mock"
	klog "k8s.io/klog/v2"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/metrics"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/monitor"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/topology/mocks"
)

// fakeProcess is a topology.Process whose exit is driven by the test
type fakeProcess struct {
	done       chan struct{}
	once       sync.Once
	err        error
	terminated int
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{done: make(chan struct{})}
}

func (p *fakeProcess) exit(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

func (p *fakeProcess) Wait() error {
	<-p.done
	return p.err
}

func (p *fakeProcess) Done() <-chan struct{} {
	return p.done
}

func (p *fakeProcess) Terminate() error {
	p.terminated++
	p.exit(errors.New("signal: terminated"))
	return nil
}

const ifstatOutput = `       s1-eth3
 KB/s in  KB/s out
  100.00    250.00
  120.50    248.`

var _ = Describe("CommandMonitor", func() {
	var provider *mocks.Provider
	var proc *fakeProcess
	var out io.Writer
	var log = klog.NewKlogr().WithName("monitor-test")
	var spec monitor.Spec

	BeforeEach(func() {
		provider = mocks.NewProvider(GinkgoT())
		proc = newFakeProcess()
		spec = monitor.Spec{
			Node:      "s1",
			Interface: "s1-eth3",
			Interval:  500 * time.Millisecond,
			Output:    filepath.Join(GinkgoT().TempDir(), "ifstat.log"),
		}
	})

	expectRun := func(cmd string) {
		provider.On("RunCommand", mock.Anything, "s1", cmd, mock.Anything).
			Run(func(args mock.Arguments) {
				out = args.Get(3).(io.Writer)
			}).Return(proc, nil).Once()
	}

	It("runs ifstat on the interface", func() {
		m := monitor.NewCommandMonitor(provider, spec, log)
		Expect(m.Command()).To(Equal("ifstat -i s1-eth3 0.5"))

		spec.Command = "ifstat -b -i s1-eth3 1"
		m = monitor.NewCommandMonitor(provider, spec, log)
		Expect(m.Command()).To(Equal("ifstat -b -i s1-eth3 1"))
	})

	It("counts samples, captures output and stops the sampler", func() {
		expectRun("ifstat -i s1-eth3 0.5")
		m := monitor.NewCommandMonitor(provider, spec, log)
		Expect(m.Start(context.Background())).To(Succeed())

		_, err := out.Write([]byte(ifstatOutput))
		Expect(err).ToNot(HaveOccurred())
		// the last line is incomplete
		Expect(m.Samples()).To(Equal(1))
		_, err = out.Write([]byte("50\n"))
		Expect(err).ToNot(HaveOccurred())
		Expect(m.Samples()).To(Equal(2))

		tx := metrics.LinkThroughput.With(prometheus.Labels{
			metrics.InterfaceKey: "s1-eth3", metrics.DirectionKey: metrics.DirectionTX})
		Expect(testutil.ToFloat64(tx)).To(BeNumerically("~", 248.5*8000))

		Expect(m.Stop()).To(Succeed())
		Expect(proc.terminated).To(Equal(1))
		// stop after stop is a no-op
		Expect(m.Stop()).To(Succeed())
		Expect(proc.terminated).To(Equal(1))

		data, err := os.ReadFile(spec.Output)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(HavePrefix(ifstatOutput))
	})

	It("counts a final sample cut short by the stop", func() {
		expectRun("ifstat -i s1-eth3 0.5")
		m := monitor.NewCommandMonitor(provider, spec, log)
		Expect(m.Start(context.Background())).To(Succeed())

		_, err := out.Write([]byte("  100.00    250.00\n    1.00      2.00"))
		Expect(err).ToNot(HaveOccurred())
		Expect(m.Samples()).To(Equal(1))

		Expect(m.Stop()).To(Succeed())
		Expect(m.Samples()).To(Equal(2))
	})

	It("reports a sampler which exited on its own", func() {
		expectRun("ifstat -i s1-eth3 0.5")
		m := monitor.NewCommandMonitor(provider, spec, log)
		Expect(m.Start(context.Background())).To(Succeed())
		proc.exit(errors.New("ifstat: no such interface"))

		Expect(m.Stop()).To(MatchError(ContainSubstring("no such interface")))
		Expect(m.Samples()).To(BeZero())
	})

	It("fails to start when the sampler cannot be launched", func() {
		provider.On("RunCommand", mock.Anything, "s1", mock.Anything, mock.Anything).
			Return(nil, errors.New("ifstat not found")).Once()
		m := monitor.NewCommandMonitor(provider, spec, log)

		Expect(m.Start(context.Background())).To(MatchError(ContainSubstring("ifstat not found")))
		Expect(m.Stop()).To(Succeed())
	})
})
