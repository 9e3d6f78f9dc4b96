package policy_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/policy"
)

// videoBulkPolicy returns a valid two class policy with a single explicit rule
func videoBulkPolicy() *policy.QoSPolicy {
	return &policy.QoSPolicy{
		Interface:    "s1-eth3",
		RootCapacity: 10 * policy.Mbit,
		Classes: []policy.BandwidthClass{
			{ID: "video", Guaranteed: 6 * policy.Mbit, Ceiling: 10 * policy.Mbit, Priority: 0},
			{ID: "bulk", Guaranteed: 2 * policy.Mbit, Ceiling: 4 * policy.Mbit, Priority: 1},
		},
		Rules: []policy.ClassifierRule{
			{Name: "video", Match: policy.MatchPredicate{DstPort: 5004}, TargetClassID: "video", Order: 1},
			{Name: "default", TargetClassID: "bulk", Default: true},
		},
	}
}

var _ = Describe("QoSPolicy", func() {
	Context("Rate", func() {
		DescribeTable("String()",
			func(r policy.Rate, expected string) {
				Expect(r.String()).To(Equal(expected))
			},
			Entry("zero", policy.Rate(0), "0bit"),
			Entry("bits", policy.Rate(1500), "1500bit"),
			Entry("kbit", 128*policy.Kbit, "128Kbit"),
			Entry("mbit", 6*policy.Mbit, "6Mbit"),
			Entry("gbit", 1*policy.Gbit, "1Gbit"),
		)
	})

	Context("Validate()", func() {
		It("accepts a valid policy", func() {
			Expect(videoBulkPolicy().Validate()).To(Succeed())
		})

		It("accepts nested classes within their parent guarantee", func() {
			p := videoBulkPolicy()
			p.Classes = append(p.Classes,
				policy.BandwidthClass{ID: "bulk-a", ParentID: "bulk", Guaranteed: 1 * policy.Mbit, Ceiling: 4 * policy.Mbit},
				policy.BandwidthClass{ID: "bulk-b", ParentID: "bulk", Guaranteed: 1 * policy.Mbit, Ceiling: 4 * policy.Mbit})
			p.Rules[1].TargetClassID = "bulk-b"
			Expect(p.Validate()).To(Succeed())
		})

		DescribeTable("rejects malformed policies",
			func(mutate func(p *policy.QoSPolicy), expectedErr error) {
				p := videoBulkPolicy()
				mutate(p)
				err := p.Validate()
				Expect(err).To(HaveOccurred())
				Expect(errors.Is(err, expectedErr)).To(BeTrue(), "unexpected error: %v", err)
			},
			Entry("missing interface", func(p *policy.QoSPolicy) { p.Interface = "" }, policy.ErrPolicyInvalid),
			Entry("zero root capacity", func(p *policy.QoSPolicy) { p.RootCapacity = 0 }, policy.ErrPolicyInvalid),
			Entry("unknown classifier", func(p *policy.QoSPolicy) { p.Classifier = "bpf" }, policy.ErrPolicyInvalid),
			Entry("no classes", func(p *policy.QoSPolicy) { p.Classes = nil }, policy.ErrPolicyInvalid),
			Entry("duplicate class", func(p *policy.QoSPolicy) { p.Classes[1].ID = "video" }, policy.ErrPolicyInvalid),
			Entry("zero guaranteed rate", func(p *policy.QoSPolicy) { p.Classes[1].Guaranteed = 0 }, policy.ErrPolicyInvalid),
			Entry("guaranteed above ceiling", func(p *policy.QoSPolicy) {
				p.Classes[1].Guaranteed = 5 * policy.Mbit
			}, policy.ErrPolicyInvalid),
			Entry("priority out of range", func(p *policy.QoSPolicy) { p.Classes[0].Priority = 8 }, policy.ErrPolicyInvalid),
			Entry("orphaned class", func(p *policy.QoSPolicy) { p.Classes[1].ParentID = "nope" }, policy.ErrPolicyInvalid),
			Entry("self parent cycle", func(p *policy.QoSPolicy) { p.Classes[1].ParentID = "bulk" }, policy.ErrPolicyInvalid),
			Entry("two class cycle", func(p *policy.QoSPolicy) {
				p.Classes[0].ParentID = "bulk"
				p.Classes[1].ParentID = "video"
			}, policy.ErrPolicyInvalid),
			Entry("overcommitted root", func(p *policy.QoSPolicy) {
				p.Classes[1].Guaranteed = 4 * policy.Mbit
				p.Classes[1].Ceiling = 10 * policy.Mbit
				p.Classes = append(p.Classes, policy.BandwidthClass{ID: "x", Guaranteed: 1, Ceiling: 1})
			}, policy.ErrPolicyInvalid),
			Entry("overcommitted siblings", func(p *policy.QoSPolicy) {
				p.Classes = append(p.Classes,
					policy.BandwidthClass{ID: "a", ParentID: "bulk", Guaranteed: 2 * policy.Mbit, Ceiling: 4 * policy.Mbit},
					policy.BandwidthClass{ID: "b", ParentID: "bulk", Guaranteed: 1 * policy.Mbit, Ceiling: 4 * policy.Mbit})
				p.Rules[1].TargetClassID = "a"
			}, policy.ErrPolicyInvalid),
			Entry("no default rule", func(p *policy.QoSPolicy) { p.Rules = p.Rules[:1] }, policy.ErrPolicyInvalid),
			Entry("two default rules", func(p *policy.QoSPolicy) {
				p.Rules = append(p.Rules, policy.ClassifierRule{Name: "d2", TargetClassID: "video", Default: true})
			}, policy.ErrPolicyInvalid),
			Entry("unknown target class", func(p *policy.QoSPolicy) { p.Rules[0].TargetClassID = "nope" }, policy.ErrPolicyInvalid),
			Entry("default class is not a leaf", func(p *policy.QoSPolicy) {
				p.Classes = append(p.Classes,
					policy.BandwidthClass{ID: "a", ParentID: "bulk", Guaranteed: 1 * policy.Mbit, Ceiling: 4 * policy.Mbit})
			}, policy.ErrPolicyInvalid),
			Entry("zero evaluation order", func(p *policy.QoSPolicy) { p.Rules[0].Order = 0 }, policy.ErrPolicyInvalid),
			Entry("invalid police", func(p *policy.QoSPolicy) { p.Rules[0].Police = &policy.Police{Rate: 1} }, policy.ErrPolicyInvalid),
			Entry("flower port match without protocol", func(p *policy.QoSPolicy) {
				p.Classifier = policy.ClassifierFlower
			}, policy.ErrPolicyInvalid),
			Entry("duplicate evaluation order", func(p *policy.QoSPolicy) {
				p.Rules = append(p.Rules, policy.ClassifierRule{
					Name: "iperf", Match: policy.MatchPredicate{DstPort: 5001}, TargetClassID: "bulk", Order: 1})
			}, policy.ErrRuleConflict),
		)

		It("does not report a rule conflict for a default rule sharing an order", func() {
			p := videoBulkPolicy()
			p.Rules[1].Order = 1
			Expect(p.Validate()).To(Succeed())
		})
	})

	Context("TopologicalOrder()", func() {
		It("orders parents before children and keeps sibling declaration order", func() {
			p := videoBulkPolicy()
			// declare children before their parent
			p.Classes = append([]policy.BandwidthClass{
				{ID: "bulk-b", ParentID: "bulk", Guaranteed: 1, Ceiling: 1},
				{ID: "bulk-a", ParentID: "bulk", Guaranteed: 1, Ceiling: 1},
			}, p.Classes...)

			ids := []string{}
			for _, c := range p.TopologicalOrder() {
				ids = append(ids, c.ID)
			}
			Expect(ids).To(Equal([]string{"video", "bulk", "bulk-b", "bulk-a"}))
		})
	})

	Context("OrderedRules()", func() {
		It("returns non default rules sorted by evaluation order", func() {
			p := videoBulkPolicy()
			p.Rules = append(p.Rules, policy.ClassifierRule{Name: "first", TargetClassID: "bulk", Order: 0})
			p.Rules = append([]policy.ClassifierRule{
				{Name: "late", TargetClassID: "bulk", Order: 9},
			}, p.Rules...)

			names := []string{}
			for _, r := range p.OrderedRules() {
				names = append(names, r.Name)
			}
			Expect(names).To(Equal([]string{"first", "video", "late"}))
		})
	})

	Context("MatchPredicate", func() {
		It("is empty when no field is set", func() {
			Expect(policy.MatchPredicate{}.IsEmpty()).To(BeTrue())
			Expect(policy.MatchPredicate{}.String()).To(Equal("all"))
		})

		It("renders set fields", func() {
			m := policy.MatchPredicate{Protocol: policy.ProtocolUDP, DstPort: 5004}
			Expect(m.IsEmpty()).To(BeFalse())
			Expect(m.HasPorts()).To(BeTrue())
			Expect(m.String()).To(Equal("proto=udp,dport=5004"))
		})
	})
})
