package monitor_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/vishvananda/netlink"
	klog "k8s.io/klog/v2"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/metrics"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/monitor"
	netmocks "github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/net/mocks"
)

func linkWithStats(tx, rx uint64) netlink.Link {
	return &netlink.Veth{LinkAttrs: netlink.LinkAttrs{
		Name:       "s1-eth3",
		Index:      4,
		Statistics: &netlink.LinkStatistics{TxBytes: tx, RxBytes: rx},
	}}
}

var _ = Describe("NetlinkMonitor", func() {
	var nlMock *netmocks.NetlinkProvider
	var fakeClock *testingclock.FakeClock
	var spec monitor.Spec
	var log = klog.NewKlogr().WithName("monitor-test")

	BeforeEach(func() {
		nlMock = netmocks.NewNetlinkProvider(GinkgoT())
		fakeClock = testingclock.NewFakeClock(time.Unix(1700000000, 0))
		spec = monitor.Spec{
			Node:      "s1",
			Interface: "s1-eth3",
			Interval:  time.Second,
			Output:    filepath.Join(GinkgoT().TempDir(), "samples.csv"),
		}
	})

	It("samples link counters every interval", func() {
		nlMock.On("LinkByName", "s1-eth3").Return(linkWithStats(1000, 2000), nil).Once()
		nlMock.On("LinkByName", "s1-eth3").Return(linkWithStats(1000+1250000, 2000+250000), nil).Once()

		m := monitor.NewNetlinkMonitor(nlMock, fakeClock, spec, log)
		Expect(m.Start(context.Background())).To(Succeed())

		Eventually(fakeClock.HasWaiters).Should(BeTrue())
		fakeClock.Step(time.Second)
		Eventually(m.Samples).Should(Equal(1))

		rx := metrics.LinkThroughput.With(prometheus.Labels{
			metrics.InterfaceKey: "s1-eth3", metrics.DirectionKey: metrics.DirectionRX})
		Expect(testutil.ToFloat64(rx)).To(BeNumerically("==", 2000000))

		Expect(m.Stop()).To(Succeed())
		Expect(m.Stop()).To(Succeed())

		data, err := os.ReadFile(spec.Output)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(Equal(fmt.Sprintf("%.3f,10000000,2000000\n", 1700000001.0)))
	})

	It("fails to start when the link cannot be read", func() {
		nlMock.On("LinkByName", "s1-eth3").Return(nil, errors.New("link not found")).Once()

		m := monitor.NewNetlinkMonitor(nlMock, fakeClock, spec, log)
		Expect(m.Start(context.Background())).To(MatchError(ContainSubstring("link not found")))
		Expect(m.Stop()).To(Succeed())
	})

	It("records sampling errors after samples were taken", func() {
		nlMock.On("LinkByName", "s1-eth3").Return(linkWithStats(0, 0), nil).Once()
		nlMock.On("LinkByName", "s1-eth3").Return(linkWithStats(125000, 125000), nil).Once()
		failed := make(chan struct{})
		nlMock.On("LinkByName", "s1-eth3").Run(func(mock.Arguments) {
			close(failed)
		}).Return(nil, errors.New("link gone")).Once()

		m := monitor.NewNetlinkMonitor(nlMock, fakeClock, spec, log)
		Expect(m.Start(context.Background())).To(Succeed())

		Eventually(fakeClock.HasWaiters).Should(BeTrue())
		fakeClock.Step(time.Second)
		Eventually(m.Samples).Should(Equal(1))
		fakeClock.Step(time.Second)
		Eventually(failed).Should(BeClosed())

		Expect(m.Stop()).To(MatchError(ContainSubstring("link gone")))
		Expect(m.Samples()).To(Equal(1))
	})

	It("rejects a zero interval", func() {
		spec.Interval = 0
		m := monitor.NewNetlinkMonitor(nlMock, fakeClock, spec, log)
		Expect(m.Start(context.Background())).ToNot(Succeed())
	})
})
