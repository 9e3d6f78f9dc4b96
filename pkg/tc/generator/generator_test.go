package generator_test

import (
	"net"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/policy"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/generator"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/types"
)

func ipnetFromStr(ipCidr string) *net.IPNet {
	_, ipn, err := net.ParseCIDR(ipCidr)
	ExpectWithOffset(1, err).ToNot(HaveOccurred())
	ExpectWithOffset(1, ipn).ToNot(BeNil())
	return ipn
}

func opKinds(plan *generator.Plan) []generator.OpKind {
	kinds := make([]generator.OpKind, 0, len(plan.Ops))
	for _, op := range plan.Ops {
		kinds = append(kinds, op.Kind())
	}
	return kinds
}

// videoBulkPolicy is the two class policy of the reference experiment
func videoBulkPolicy() *policy.QoSPolicy {
	return &policy.QoSPolicy{
		Interface:    "s1-eth3",
		RootCapacity: 10 * policy.Mbit,
		Classes: []policy.BandwidthClass{
			{ID: "video", Guaranteed: 6 * policy.Mbit, Ceiling: 10 * policy.Mbit, Priority: 0},
			{ID: "bulk", Guaranteed: 2 * policy.Mbit, Ceiling: 4 * policy.Mbit, Priority: 1},
		},
		Rules: []policy.ClassifierRule{
			{Name: "rtp-video", Match: policy.MatchPredicate{DstPort: 5004}, TargetClassID: "video", Order: 1},
			{Name: "best-effort", TargetClassID: "bulk", Default: true},
		},
	}
}

var _ = Describe("filter priority tests", func() {
	It("uses the rule order as filter priority", func() {
		Expect(generator.PrioFromOrder(1)).To(BeEquivalentTo(1))
		Expect(generator.PrioFromOrder(200)).To(BeEquivalentTo(200))
	})

	It("allocates class minors in steps", func() {
		Expect(generator.ClassMinor(0)).To(BeEquivalentTo(0x10))
		Expect(generator.ClassMinor(1)).To(BeEquivalentTo(0x20))
		Expect(generator.RootHandle()).To(Equal(types.MakeHandle(1, 0)))
	})
})

var _ = Describe("HTBGenerator tests", func() {
	var generatorInst generator.Generator

	BeforeEach(func() {
		generatorInst = generator.NewHTBGenerator()
	})

	Context("Compile() video and bulk policy", func() {
		var plan *generator.Plan

		BeforeEach(func() {
			var err error
			plan, err = generatorInst.Compile(videoBulkPolicy())
			Expect(err).ToNot(HaveOccurred())
		})

		It("yields one root, two class and one filter operation in that order", func() {
			Expect(plan.Interface).To(Equal("s1-eth3"))
			Expect(opKinds(plan)).To(Equal([]generator.OpKind{
				generator.OpKindInstallRoot,
				generator.OpKindInstallClass,
				generator.OpKindInstallClass,
				generator.OpKindInstallFilter,
			}))
			Expect(plan.HasReset()).To(BeFalse())
		})

		It("points the root default class to the default rule target", func() {
			root := plan.Ops[0].(*generator.InstallRootOp)
			Expect(root.DefaultClassID).To(Equal("bulk"))
			Expect(root.QDisc.DefaultClass).To(BeEquivalentTo(0x20))
			Expect(*root.QDisc.Handle).To(Equal(generator.RootHandle()))
			Expect(plan.Root()).To(BeIdenticalTo(root.QDisc))
		})

		It("installs classes with their rates and priority", func() {
			video := plan.Ops[1].(*generator.InstallClassOp)
			Expect(video.ID).To(Equal("video"))
			Expect(video.Guaranteed).To(Equal(6 * policy.Mbit))
			Expect(video.Ceiling).To(Equal(10 * policy.Mbit))
			Expect(video.Priority).To(BeEquivalentTo(0))
			Expect(video.Class.ClassID).To(Equal(types.MakeHandle(1, 0x10)))
			Expect(video.Class.Parent).To(Equal(generator.RootHandle()))

			bulk := plan.Ops[2].(*generator.InstallClassOp)
			Expect(bulk.ID).To(Equal("bulk"))
			Expect(bulk.Class.ClassID).To(Equal(types.MakeHandle(1, 0x20)))
			Expect(bulk.Class.Prio).To(BeEquivalentTo(1))
		})

		It("installs the rule as a u32 filter steering to its class", func() {
			f := plan.Ops[3].(*generator.InstallFilterOp)
			Expect(f.TargetClassID).To(Equal("video"))
			Expect(f.Order).To(BeEquivalentTo(1))
			Expect(f.Match.DstPort).To(BeEquivalentTo(5004))
			Expect(f.Filter.Attrs().Kind).To(Equal(types.FilterKindU32))
			Expect(*f.Filter.Attrs().Priority).To(BeEquivalentTo(1))
			Expect(*f.Filter.Target()).To(Equal(types.MakeHandle(1, 0x10)))
		})

		It("renders tc command lines", func() {
			Expect(plan.CmdLines()).To(Equal([]string{
				"tc qdisc add dev s1-eth3 root handle 1: htb default 20",
				"tc class add dev s1-eth3 parent 1: classid 1:10 htb rate 6mbit ceil 10mbit prio 0",
				"tc class add dev s1-eth3 parent 1: classid 1:20 htb rate 2mbit ceil 4mbit prio 1",
				"tc filter add dev s1-eth3 parent 1: protocol ip pref 1 u32 match ip dport 5004 0xffff flowid 1:10",
			}))
		})

		It("is deterministic", func() {
			again, err := generatorInst.Compile(videoBulkPolicy())
			Expect(err).ToNot(HaveOccurred())
			Expect(again).To(Equal(plan))
		})
	})

	Context("Compile() ordering", func() {
		It("installs parents before children regardless of declaration order", func() {
			p := videoBulkPolicy()
			p.Classes = append([]policy.BandwidthClass{
				{ID: "bulk-b", ParentID: "bulk", Guaranteed: 1 * policy.Mbit, Ceiling: 4 * policy.Mbit},
			}, p.Classes...)
			p.Rules[1].TargetClassID = "bulk-b"

			plan, err := generatorInst.Compile(p)
			Expect(err).ToNot(HaveOccurred())
			ids := []string{}
			for _, op := range plan.Ops {
				if c, ok := op.(*generator.InstallClassOp); ok {
					ids = append(ids, c.ID)
				}
			}
			Expect(ids).To(Equal([]string{"video", "bulk", "bulk-b"}))

			child := plan.Ops[3].(*generator.InstallClassOp)
			Expect(child.Class.Parent).To(Equal(types.MakeHandle(1, 0x20)))
			Expect(child.Class.ClassID).To(Equal(types.MakeHandle(1, 0x30)))
			Expect(plan.Root().DefaultClass).To(BeEquivalentTo(0x30))
		})

		It("installs filters in ascending evaluation order", func() {
			p := videoBulkPolicy()
			p.Rules = append(p.Rules,
				policy.ClassifierRule{Name: "iperf", Match: policy.MatchPredicate{DstPort: 5001}, TargetClassID: "bulk",
					Order: 5},
				policy.ClassifierRule{Name: "rtcp", Match: policy.MatchPredicate{DstPort: 5005}, TargetClassID: "video",
					Order: 3})

			plan, err := generatorInst.Compile(p)
			Expect(err).ToNot(HaveOccurred())
			orders := []uint16{}
			for _, op := range plan.Ops {
				if f, ok := op.(*generator.InstallFilterOp); ok {
					orders = append(orders, f.Order)
				}
			}
			Expect(orders).To(Equal([]uint16{1, 3, 5}))
		})
	})

	Context("Compile() classifiers", func() {
		It("generates flower filters when requested", func() {
			p := videoBulkPolicy()
			p.Classifier = policy.ClassifierFlower
			p.Rules[0].Match = policy.MatchPredicate{Protocol: policy.ProtocolUDP, DstPort: 5004,
				DstIP: ipnetFromStr("10.0.0.2/32")}

			plan, err := generatorInst.Compile(p)
			Expect(err).ToNot(HaveOccurred())
			f := plan.Ops[3].(*generator.InstallFilterOp)
			flower, ok := f.Filter.(*types.FlowerFilter)
			Expect(ok).To(BeTrue())
			Expect(*flower.Flower.IPProto).To(Equal(types.FlowerIPProtoUDP))
			Expect(flower.Flower.DstIP.String()).To(Equal("10.0.0.2/32"))
			Expect(*flower.Flower.DstPort).To(BeEquivalentTo(5004))
			Expect(*flower.ClassID).To(Equal(types.MakeHandle(1, 0x10)))
		})

		It("generates u32 protocol and address keys and a police action", func() {
			p := videoBulkPolicy()
			p.Rules[0].Match = policy.MatchPredicate{Protocol: policy.ProtocolUDP, SrcIP: ipnetFromStr("10.0.0.1/32"),
				SrcPort: 5001}
			p.Rules[0].Police = &policy.Police{Rate: 4 * policy.Mbit, Burst: 10000}

			plan, err := generatorInst.Compile(p)
			Expect(err).ToNot(HaveOccurred())
			u32, ok := plan.Ops[3].(*generator.InstallFilterOp).Filter.(*types.U32Filter)
			Expect(ok).To(BeTrue())
			Expect(*u32.Match.IPProto).To(BeEquivalentTo(17))
			Expect(u32.Match.SrcIP.String()).To(Equal("10.0.0.1/32"))
			Expect(*u32.Match.SrcPort).To(BeEquivalentTo(5001))
			Expect(u32.Match.DstPort).To(BeNil())
			Expect(u32.Actions).To(Equal([]types.Action{types.NewPoliceAction(4000000, 10000)}))
		})
	})

	Context("Compile() invalid policies", func() {
		It("rejects a nil policy", func() {
			_, err := generatorInst.Compile(nil)
			Expect(err).To(MatchError(policy.ErrPolicyInvalid))
		})

		It("rejects an overcommitted policy", func() {
			p := videoBulkPolicy()
			p.Classes[1].Guaranteed = 5 * policy.Mbit
			p.Classes[1].Ceiling = 5 * policy.Mbit
			_, err := generatorInst.Compile(p)
			Expect(err).To(MatchError(policy.ErrPolicyInvalid))
		})

		It("rejects a policy with conflicting rule orders", func() {
			p := videoBulkPolicy()
			p.Rules = append(p.Rules, policy.ClassifierRule{Name: "dup", Match: policy.MatchPredicate{DstPort: 1},
				TargetClassID: "bulk", Order: 1})
			_, err := generatorInst.Compile(p)
			Expect(err).To(MatchError(policy.ErrRuleConflict))
		})
	})

	Context("WithReset()", func() {
		It("prepends a single reset operation", func() {
			plan, err := generatorInst.Compile(videoBulkPolicy())
			Expect(err).ToNot(HaveOccurred())

			withReset := generator.WithReset(plan)
			Expect(withReset.HasReset()).To(BeTrue())
			Expect(withReset.Ops).To(HaveLen(len(plan.Ops) + 1))
			Expect(withReset.Ops[1:]).To(Equal(plan.Ops))
			Expect(withReset.CmdLines()[0]).To(Equal("tc qdisc del dev s1-eth3 root"))
			Expect(plan.HasReset()).To(BeFalse())

			Expect(generator.WithReset(withReset)).To(BeIdenticalTo(withReset))
		})
	})
})
