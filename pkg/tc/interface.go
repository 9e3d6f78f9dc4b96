package tc

import (
	tctypes "github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/types"
)

// TC defines an interface to interact with Linux Traffic Control subsystem
// an implementation should be associated with a specific network interface (netdev).
type TC interface {
	// QDiscAdd adds the specified Qdisc
	QDiscAdd(qdisc tctypes.QDisc) error
	// QDiscDel deletes the specified Qdisc
	QDiscDel(qdisc tctypes.QDisc) error
	// QDiscList lists QDiscs
	QDiscList() ([]tctypes.QDisc, error)

	// ClassAdd adds the specified class
	ClassAdd(class tctypes.Class) error
	// ClassList lists classes
	ClassList() ([]tctypes.Class, error)

	// FilterAdd adds filter to qdisc
	FilterAdd(qdisc tctypes.QDisc, filter tctypes.Filter) error
	// FilterList lists Filters on qdisc
	FilterList(qdisc tctypes.QDisc) ([]tctypes.Filter, error)
}
