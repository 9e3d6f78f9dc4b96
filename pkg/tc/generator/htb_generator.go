package generator

import (
	"github.com/pkg/errors"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/policy"
	tctypes "github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/types"
)

// NewHTBGenerator creates a new HTBGenerator instance
func NewHTBGenerator() *HTBGenerator {
	return &HTBGenerator{}
}

// HTBGenerator is an implementation of Generator interface using an HTB class hierarchy
type HTBGenerator struct{}

// Compile implements Generator interface
// It compiles the policy into the following operations:
//  1. InstallRoot: root HTB qdisc 1: whose default class is the target of the default rule
//  2. InstallClass per class in topological order, minors allocated as 0x10, 0x20, ...
//  3. InstallFilter per non default rule in ascending evaluation order, attached to 1: with pref = order
func (g *HTBGenerator) Compile(p *policy.QoSPolicy) (*Plan, error) {
	if p == nil {
		return nil, errors.Wrap(policy.ErrPolicyInvalid, "nil policy")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	classes := p.TopologicalOrder()
	if len(classes) > maxClasses {
		return nil, errors.Wrapf(policy.ErrPolicyInvalid, "too many classes (%d), at most %d supported",
			len(classes), maxClasses)
	}

	handles := make(map[string]uint32, len(classes))
	for i, c := range classes {
		handles[c.ID] = tctypes.MakeHandle(RootMajor, ClassMinor(i))
	}

	plan := &Plan{
		Interface: p.Interface,
		Ops:       make([]Op, 0, 1+len(classes)+len(p.Rules)),
	}

	// 1. root qdisc
	defaultRule := p.DefaultRule()
	root := tctypes.NewHTBQDiscBuilder().
		WithHandle(RootHandle()).
		WithDefaultClass(tctypes.HandleMinor(handles[defaultRule.TargetClassID])).
		Build()
	plan.Ops = append(plan.Ops, &InstallRootOp{
		Interface:      p.Interface,
		DefaultClassID: defaultRule.TargetClassID,
		QDisc:          root,
	})

	// 2. classes, parent before child
	for _, c := range classes {
		parent := RootHandle()
		if c.ParentID != "" {
			parent = handles[c.ParentID]
		}
		htbClass := tctypes.NewHTBClassBuilder().
			WithParent(parent).
			WithClassID(handles[c.ID]).
			WithRate(uint64(c.Guaranteed)).
			WithCeil(uint64(c.Ceiling)).
			WithPrio(uint32(c.Priority)).
			Build()
		plan.Ops = append(plan.Ops, &InstallClassOp{
			Interface:  p.Interface,
			ID:         c.ID,
			ParentID:   c.ParentID,
			Guaranteed: c.Guaranteed,
			Ceiling:    c.Ceiling,
			Priority:   c.Priority,
			Class:      htbClass,
		})
	}

	// 3. filters, the default rule is realized by the root default class
	for _, r := range p.OrderedRules() {
		var filter tctypes.Filter
		switch p.ClassifierOrDefault() {
		case policy.ClassifierFlower:
			filter = g.genFlowerFilter(r, handles[r.TargetClassID])
		default:
			filter = g.genU32Filter(r, handles[r.TargetClassID])
		}
		plan.Ops = append(plan.Ops, &InstallFilterOp{
			Interface:     p.Interface,
			Rule:          r.Name,
			Match:         r.Match,
			TargetClassID: r.TargetClassID,
			Order:         r.Order,
			Parent:        root,
			Filter:        filter,
		})
	}

	return plan, nil
}

func (g *HTBGenerator) genActions(r policy.ClassifierRule) []tctypes.Action {
	if r.Police == nil {
		return nil
	}
	return []tctypes.Action{tctypes.NewPoliceAction(uint64(r.Police.Rate), r.Police.Burst)}
}

// genU32Filter generates a u32 filter for the rule
func (g *HTBGenerator) genU32Filter(r policy.ClassifierRule, classID uint32) tctypes.Filter {
	fb := tctypes.NewU32FilterBuilder().
		WithProtocol(tctypes.FilterProtocolIPv4).
		WithPriority(PrioFromOrder(r.Order)).
		WithClassID(classID)

	m := r.Match
	if proto := tctypes.ProtocolToIPProtoNumber(m.Protocol); proto != 0 {
		fb.WithMatchIPProto(proto)
	}
	if m.SrcIP != nil {
		fb.WithMatchSrcIP(m.SrcIP)
	}
	if m.DstIP != nil {
		fb.WithMatchDstIP(m.DstIP)
	}
	if m.SrcPort != 0 {
		fb.WithMatchSrcPort(m.SrcPort)
	}
	if m.DstPort != 0 {
		fb.WithMatchDstPort(m.DstPort)
	}
	for _, a := range g.genActions(r) {
		fb.WithAction(a)
	}
	return fb.Build()
}

// genFlowerFilter generates a flower filter for the rule
func (g *HTBGenerator) genFlowerFilter(r policy.ClassifierRule, classID uint32) tctypes.Filter {
	fb := tctypes.NewFlowerFilterBuilder().
		WithProtocol(tctypes.FilterProtocolIPv4).
		WithPriority(PrioFromOrder(r.Order)).
		WithClassID(classID)

	m := r.Match
	if ipProto := tctypes.ProtocolToFlowerIPProto(m.Protocol); ipProto != "" {
		fb.WithMatchKeyIPProto(ipProto)
	}
	if m.SrcIP != nil {
		fb.WithMatchKeySrcIP(m.SrcIP)
	}
	if m.DstIP != nil {
		fb.WithMatchKeyDstIP(m.DstIP)
	}
	if m.SrcPort != 0 {
		fb.WithMatchKeySrcPort(m.SrcPort)
	}
	if m.DstPort != 0 {
		fb.WithMatchKeyDstPort(m.DstPort)
	}
	for _, a := range g.genActions(r) {
		fb.WithAction(a)
	}
	return fb.Build()
}
