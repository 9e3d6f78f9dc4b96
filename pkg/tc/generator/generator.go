package generator

import (
	"strings"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/policy"
	tctypes "github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/types"
)

// OpKind is the kind of a configuration operation
type OpKind string

const (
	OpKindReset         OpKind = "Reset"
	OpKindInstallRoot   OpKind = "InstallRoot"
	OpKindInstallClass  OpKind = "InstallClass"
	OpKindInstallFilter OpKind = "InstallFilter"
)

// Op is a single atomic configuration operation on an interface
type Op interface {
	// Kind returns the operation kind
	Kind() OpKind

	// GenCmdLineArgs returns the tc arguments performing the operation
	tctypes.CmdLineGenerator
}

// ResetOp removes any queuing configuration from the interface
type ResetOp struct {
	Interface string
	// QDisc is the root qdisc to remove
	QDisc tctypes.QDisc
}

// Kind implements Op interface
func (o *ResetOp) Kind() OpKind {
	return OpKindReset
}

// GenCmdLineArgs implements Op interface
func (o *ResetOp) GenCmdLineArgs() []string {
	return []string{"qdisc", "del", "dev", o.Interface, "root"}
}

// InstallRootOp installs the root queuing discipline pointing unclassified traffic to DefaultClassID
type InstallRootOp struct {
	Interface      string
	DefaultClassID string
	QDisc          *tctypes.HTBQDisc
}

// Kind implements Op interface
func (o *InstallRootOp) Kind() OpKind {
	return OpKindInstallRoot
}

// GenCmdLineArgs implements Op interface
func (o *InstallRootOp) GenCmdLineArgs() []string {
	return append([]string{"qdisc", "add", "dev", o.Interface}, o.QDisc.GenCmdLineArgs()...)
}

// InstallClassOp installs a bandwidth class under its parent
type InstallClassOp struct {
	Interface  string
	ID         string
	ParentID   string
	Guaranteed policy.Rate
	Ceiling    policy.Rate
	Priority   uint8
	Class      *tctypes.HTBClass
}

// Kind implements Op interface
func (o *InstallClassOp) Kind() OpKind {
	return OpKindInstallClass
}

// GenCmdLineArgs implements Op interface
func (o *InstallClassOp) GenCmdLineArgs() []string {
	return append([]string{"class", "add", "dev", o.Interface}, o.Class.GenCmdLineArgs()...)
}

// InstallFilterOp installs a classifier rule as a filter bound to the root qdisc
type InstallFilterOp struct {
	Interface     string
	Rule          string
	Match         policy.MatchPredicate
	TargetClassID string
	Order         uint16
	// Parent is the qdisc the filter is attached to
	Parent tctypes.QDisc
	Filter tctypes.Filter
}

// Kind implements Op interface
func (o *InstallFilterOp) Kind() OpKind {
	return OpKindInstallFilter
}

// GenCmdLineArgs implements Op interface
func (o *InstallFilterOp) GenCmdLineArgs() []string {
	args := []string{"filter", "add", "dev", o.Interface, "parent", tctypes.FormatHandle(*o.Parent.Attrs().Handle)}
	return append(args, o.Filter.GenCmdLineArgs()...)
}

// Plan is the ordered list of operations realizing a policy on an interface
type Plan struct {
	Interface string
	Ops       []Op
}

// HasReset returns true if the plan starts by clearing prior configuration
func (p *Plan) HasReset() bool {
	return len(p.Ops) > 0 && p.Ops[0].Kind() == OpKindReset
}

// Root returns the root qdisc installed by the plan, nil if none
func (p *Plan) Root() *tctypes.HTBQDisc {
	for _, op := range p.Ops {
		if r, ok := op.(*InstallRootOp); ok {
			return r.QDisc
		}
	}
	return nil
}

// CmdLines returns the plan as tc command lines
func (p *Plan) CmdLines() []string {
	lines := make([]string, 0, len(p.Ops))
	for _, op := range p.Ops {
		lines = append(lines, "tc "+strings.Join(op.GenCmdLineArgs(), " "))
	}
	return lines
}

// WithReset returns a copy of plan starting with a ResetOp, plan is returned as is if it already has one
func WithReset(plan *Plan) *Plan {
	if plan.HasReset() {
		return plan
	}
	ops := make([]Op, 0, len(plan.Ops)+1)
	ops = append(ops, &ResetOp{Interface: plan.Interface, QDisc: plan.Root()})
	ops = append(ops, plan.Ops...)
	return &Plan{Interface: plan.Interface, Ops: ops}
}

// Generator is an interface to compile a QoSPolicy into a Plan
type Generator interface {
	// Compile validates the policy and returns the operations realizing it. Compile has no side effects.
	Compile(p *policy.QoSPolicy) (*Plan, error)
}
