package tc

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/generator"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/types"
)

// NewActuatorTCImpl creates a new ActuatorTCImpl
func NewActuatorTCImpl(tcIfc TC, log klog.Logger) *ActuatorTCImpl {
	return &ActuatorTCImpl{tcAPI: tcIfc, log: log}
}

// ActuatorTCImpl is an implementation of Actuator interface using provided TC interface to apply a Plan
type ActuatorTCImpl struct {
	tcAPI TC
	log   klog.Logger
}

// Actuate is an implementation of Actuator interface.
// An interface with a root qdisc installed is considered configured, applying a plan on it requires the plan
// to start with a ResetOp otherwise ErrAlreadyConfigured is returned.
func (a *ActuatorTCImpl) Actuate(plan *generator.Plan) error {
	if plan == nil {
		return errors.New("plan cannot be nil")
	}

	currentQDiscs, err := a.tcAPI.QDiscList()
	if err != nil {
		return errors.Wrap(err, "failed to list qdiscs")
	}
	root := configuredRoot(currentQDiscs)

	if root != nil && !plan.HasReset() {
		return errors.Wrapf(ErrAlreadyConfigured, "%s has root qdisc %s %s", plan.Interface, root.Type(),
			types.FormatHandle(*root.Attrs().Handle))
	}

	for i, op := range plan.Ops {
		a.log.V(4).Info("applying operation", "interface", plan.Interface, "index", i, "kind", op.Kind())
		switch o := op.(type) {
		case *generator.ResetOp:
			if root == nil {
				a.log.V(4).Info("no root qdisc, nothing to reset", "interface", plan.Interface)
				continue
			}
			err = a.tcAPI.QDiscDel(root)
			root = nil
		case *generator.InstallRootOp:
			err = a.tcAPI.QDiscAdd(o.QDisc)
		case *generator.InstallClassOp:
			err = a.tcAPI.ClassAdd(o.Class)
		case *generator.InstallFilterOp:
			err = a.tcAPI.FilterAdd(o.Parent, o.Filter)
		default:
			err = errors.Errorf("unknown operation kind %s", op.Kind())
		}
		if err != nil {
			return errors.Wrapf(err, "failed to apply operation %d (%s) on %s", i, op.Kind(), plan.Interface)
		}
	}

	a.log.Info("plan applied", "interface", plan.Interface, "operations", len(plan.Ops))
	return nil
}

// configuredRoot returns the root qdisc if it was explicitly installed, default qdiscs the kernel
// attaches to a netdev have no handle
func configuredRoot(qdiscs []types.QDisc) types.QDisc {
	for _, q := range qdiscs {
		attrs := q.Attrs()
		if attrs.IsRoot() && attrs.Handle != nil && *attrs.Handle != types.HandleNone {
			return q
		}
	}
	return nil
}
