package netlink_test

import (
	"errors"
	"net"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/net/mocks"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc"
	netlinkdriver "github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/driver/netlink"
	tctypes "github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/types"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/utils"
)

type fakeLink struct {
	netlink.LinkAttrs
}

func (f *fakeLink) Attrs() *netlink.LinkAttrs {
	return &f.LinkAttrs
}

func (f *fakeLink) Type() string {
	return "fakeLink"
}

var _ = Describe("TC Netlink driver tests", func() {
	var fLink = &fakeLink{netlink.LinkAttrs{Name: "s1-eth3", Index: 1}}
	var tcNetlink tc.TC
	var log = klog.NewKlogr().WithName("tc-driver-netlink-test")
	var netlinkProviderMock *mocks.NetlinkProvider
	var testError = errors.New("test error!")
	ipToIpNet := func(ip string) *net.IPNet { ipn, _ := utils.IPToIPNet(ip); return ipn }

	htbQdisc := tctypes.NewHTBQDiscBuilder().
		WithHandle(tctypes.MakeHandle(1, 0)).
		WithDefaultClass(0x20).
		Build()
	nlHtbQdisc := func() *netlink.Htb {
		h := netlink.NewHtb(netlink.QdiscAttrs{
			LinkIndex: fLink.Attrs().Index,
			Handle:    netlink.MakeHandle(1, 0),
			Parent:    netlink.HANDLE_ROOT,
		})
		h.Defcls = 0x20
		return h
	}()

	tbfQdisc := tctypes.NewGenericQdisc(
		tctypes.NewQDiscAttrsBuilder().WithParent(tctypes.HandleRoot).WithHandle(tctypes.MakeHandle(5, 0)).Build(),
		tctypes.QDiscTBFType)
	nlTbfQdisc := &netlink.GenericQdisc{
		QdiscAttrs: netlink.QdiscAttrs{
			LinkIndex: fLink.Attrs().Index,
			Handle:    netlink.MakeHandle(5, 0),
			Parent:    netlink.HANDLE_ROOT,
		},
		QdiscType: "tbf",
	}

	videoClass := tctypes.NewHTBClassBuilder().
		WithParent(tctypes.MakeHandle(1, 0)).
		WithClassID(tctypes.MakeHandle(1, 0x10)).
		WithRate(6000000).
		WithCeil(10000000).
		WithPrio(0).
		Build()
	nlVideoClass := netlink.NewHtbClass(
		netlink.ClassAttrs{
			LinkIndex: fLink.Attrs().Index,
			Parent:    netlink.MakeHandle(1, 0),
			Handle:    netlink.MakeHandle(1, 0x10),
		},
		netlink.HtbClassAttrs{Rate: 6000000, Ceil: 10000000, Prio: 0})

	filter := tctypes.NewU32FilterBuilder().
		WithProtocol(tctypes.FilterProtocolIPv4).
		WithPriority(1).
		WithMatchIPProto(unix.IPPROTO_UDP).
		WithMatchDstIP(ipToIpNet("10.0.0.4")).
		WithMatchDstPort(5004).
		WithClassID(tctypes.MakeHandle(1, 0x10)).
		WithAction(tctypes.NewPoliceAction(4000000, 10000)).
		Build()

	BeforeEach(func() {
		netlinkProviderMock = mocks.NewNetlinkProvider(GinkgoT())
		tcNetlink = netlinkdriver.NewTcNetlinkImpl(fLink, log, netlinkProviderMock)
	})

	Context("Qdisc Add", func() {
		It("Fails when netlink call fails", func() {
			netlinkProviderMock.On("QdiscAdd", mock.Anything).Return(testError)
			err := tcNetlink.QDiscAdd(htbQdisc)
			Expect(err).To(HaveOccurred())
		})

		It("succeeds when netlink call succeeds", func() {
			netlinkProviderMock.On("QdiscAdd", nlHtbQdisc).Return(nil)
			err := tcNetlink.QDiscAdd(htbQdisc)
			Expect(err).ToNot(HaveOccurred())
		})

		It("Fails for non htb qdisc", func() {
			err := tcNetlink.QDiscAdd(tbfQdisc)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("Qdisc Del", func() {
		It("Fails when netlink call fails", func() {
			netlinkProviderMock.On("QdiscDel", mock.Anything).Return(testError)
			err := tcNetlink.QDiscDel(htbQdisc)
			Expect(err).To(HaveOccurred())
		})

		It("deletes htb qdisc", func() {
			netlinkProviderMock.On("QdiscDel", nlHtbQdisc).Return(nil)
			err := tcNetlink.QDiscDel(htbQdisc)
			Expect(err).ToNot(HaveOccurred())
		})

		It("deletes non htb qdisc", func() {
			netlinkProviderMock.On("QdiscDel", nlTbfQdisc).Return(nil)
			err := tcNetlink.QDiscDel(tbfQdisc)
			Expect(err).ToNot(HaveOccurred())
		})
	})

	Context("Qdisc List", func() {
		It("Fails when netlink call fails", func() {
			netlinkProviderMock.On("QdiscList", mock.Anything).Return(nil, testError)
			_, err := tcNetlink.QDiscList()
			Expect(err).To(HaveOccurred())
		})

		It("succeeds when netlink call succeeds", func() {
			nlIngress := &netlink.Ingress{QdiscAttrs: netlink.QdiscAttrs{
				LinkIndex: fLink.Attrs().Index, Parent: netlink.HANDLE_INGRESS, Handle: netlink.MakeHandle(0xffff, 0)}}
			netlinkProviderMock.On("QdiscList", fLink).Return([]netlink.Qdisc{nlHtbQdisc, nlTbfQdisc, nlIngress}, nil)
			qds, err := tcNetlink.QDiscList()
			Expect(err).ToNot(HaveOccurred())
			Expect(qds).To(HaveLen(2))

			Expect(qds[0].Type()).To(Equal(tctypes.QDiscHTBType))
			Expect(qds[0].Attrs().IsRoot()).To(BeTrue())
			Expect(*qds[0].Attrs().Handle).To(Equal(tctypes.MakeHandle(1, 0)))
			Expect(qds[0].(*tctypes.HTBQDisc).DefaultClass).To(Equal(uint16(0x20)))

			Expect(qds[1].Type()).To(Equal(tctypes.QDiscTBFType))
			Expect(*qds[1].Attrs().Handle).To(Equal(tctypes.MakeHandle(5, 0)))
		})
	})

	Context("Class Add", func() {
		It("Fails when netlink call fails", func() {
			netlinkProviderMock.On("ClassAdd", mock.Anything).Return(testError)
			err := tcNetlink.ClassAdd(videoClass)
			Expect(err).To(HaveOccurred())
		})

		It("succeeds when netlink call succeeds", func() {
			netlinkProviderMock.On("ClassAdd", nlVideoClass).Return(nil)
			err := tcNetlink.ClassAdd(videoClass)
			Expect(err).ToNot(HaveOccurred())
		})
	})

	Context("Class List", func() {
		It("Fails when netlink call fails", func() {
			netlinkProviderMock.On("ClassList", mock.Anything, mock.Anything).Return(nil, testError)
			_, err := tcNetlink.ClassList()
			Expect(err).To(HaveOccurred())
		})

		It("converts rates and root parent", func() {
			dumped := &netlink.HtbClass{
				ClassAttrs: netlink.ClassAttrs{
					LinkIndex: fLink.Attrs().Index,
					Parent:    netlink.HANDLE_ROOT,
					Handle:    netlink.MakeHandle(1, 0x10),
				},
				Rate: 750000,
				Ceil: 1250000,
				Prio: 0,
			}
			netlinkProviderMock.On("ClassList", fLink, uint32(netlink.HANDLE_NONE)).
				Return([]netlink.Class{dumped}, nil)
			classes, err := tcNetlink.ClassList()
			Expect(err).ToNot(HaveOccurred())
			Expect(classes).To(HaveLen(1))
			Expect(classes[0].Equals(videoClass)).To(BeTrue())
		})
	})

	Context("Filter Add", func() {
		It("Fails when netlink call fails", func() {
			netlinkProviderMock.On("FilterAdd", mock.Anything).Return(testError)
			err := tcNetlink.FilterAdd(htbQdisc, filter)
			Expect(err).To(HaveOccurred())
		})

		It("succeeds when netlink call succeeds", func() {
			netlinkProviderMock.On("FilterAdd", mock.MatchedBy(func(f netlink.Filter) bool {
				u32, ok := f.(*netlink.U32)
				if !ok {
					return false
				}
				if u32.Parent != netlink.MakeHandle(1, 0) || u32.Priority != 1 || u32.Protocol != unix.ETH_P_IP ||
					u32.ClassId != netlink.MakeHandle(1, 0x10) {
					return false
				}
				if u32.Sel == nil || u32.Sel.Flags != netlink.TC_U32_TERMINAL || u32.Sel.Nkeys != 3 {
					return false
				}
				expectedKeys := []netlink.TcU32Key{
					{Val: 0x00110000, Mask: 0x00ff0000, Off: 8},
					{Val: 0x0a000004, Mask: 0xffffffff, Off: 16},
					{Val: 5004, Mask: 0x0000ffff, Off: 20},
				}
				for i := range expectedKeys {
					if u32.Sel.Keys[i] != expectedKeys[i] {
						return false
					}
				}
				if len(u32.Actions) != 1 {
					return false
				}
				police, ok := u32.Actions[0].(*netlink.PoliceAction)
				return ok && police.Rate == 500000 && police.Burst == 10000 &&
					police.ExceedAction == netlink.TC_POLICE_SHOT && police.NotExceedAction == netlink.TC_POLICE_OK
			})).Return(nil)
			err := tcNetlink.FilterAdd(htbQdisc, filter)
			Expect(err).ToNot(HaveOccurred())
		})

		It("Fails for flower filters", func() {
			flower := tctypes.NewFlowerFilterBuilder().
				WithProtocol(tctypes.FilterProtocolIPv4).
				WithMatchKeyIPProto(tctypes.FlowerIPProtoUDP).
				WithMatchKeyDstPort(5004).
				WithClassID(tctypes.MakeHandle(1, 0x10)).
				Build()
			err := tcNetlink.FilterAdd(htbQdisc, flower)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("Filter List", func() {
		It("Fails when netlink call fails", func() {
			netlinkProviderMock.On("FilterList", mock.Anything, mock.Anything).
				Return(nil, testError)
			_, err := tcNetlink.FilterList(htbQdisc)
			Expect(err).To(HaveOccurred())
		})

		It("succeeds when netlink call succeeds", func() {
			police := netlink.NewPoliceAction()
			police.Rate = 500000
			police.Burst = 10000
			police.ExceedAction = netlink.TC_POLICE_SHOT
			police.NotExceedAction = netlink.TC_POLICE_OK
			dumped := &netlink.U32{
				FilterAttrs: netlink.FilterAttrs{
					LinkIndex: fLink.Attrs().Index,
					Parent:    netlink.MakeHandle(1, 0),
					Handle:    0x800800,
					Priority:  1,
					Protocol:  unix.ETH_P_IP,
				},
				ClassId: netlink.MakeHandle(1, 0x10),
				Sel: &netlink.TcU32Sel{
					Flags: netlink.TC_U32_TERMINAL,
					Nkeys: 3,
					Keys: []netlink.TcU32Key{
						{Val: 0x00110000, Mask: 0x00ff0000, Off: 8},
						{Val: 0x0a000004, Mask: 0xffffffff, Off: 16},
						{Val: 5004, Mask: 0x0000ffff, Off: 20},
					},
				},
				Actions: []netlink.Action{police},
			}
			hashTable := &netlink.U32{
				FilterAttrs: netlink.FilterAttrs{
					LinkIndex: fLink.Attrs().Index,
					Parent:    netlink.MakeHandle(1, 0),
					Handle:    0x800000,
					Priority:  1,
					Protocol:  unix.ETH_P_IP,
				},
				Divisor: 1,
			}
			netlinkProviderMock.On("FilterList", fLink, netlink.MakeHandle(1, 0)).
				Return([]netlink.Filter{hashTable, dumped}, nil)
			fl, err := tcNetlink.FilterList(htbQdisc)
			Expect(err).ToNot(HaveOccurred())
			Expect(fl).To(HaveLen(1))
			Expect(fl[0].Equals(filter)).To(BeTrue())
		})
	})
})
