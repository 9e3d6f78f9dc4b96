//nolint:prealloc
package netlink

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"
	klog "k8s.io/klog/v2"

	qosnet "github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/net"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/types"
)

// NewTcNetlinkImpl creates a new instance of TcNetlinkImpl
func NewTcNetlinkImpl(linkDev netlink.Link, log klog.Logger, netlinkIfc qosnet.NetlinkProvider) *TcNetlinkImpl {
	return &TcNetlinkImpl{
		link:       linkDev,
		netlinkIfc: netlinkIfc,
		log:        log,
	}
}

// TcNetlinkImpl is a concrete implementation of TC interface utilizing netlink lib
type TcNetlinkImpl struct {
	link       netlink.Link
	netlinkIfc qosnet.NetlinkProvider
	log        klog.Logger
}

// QDiscAdd implements TC interface
func (t *TcNetlinkImpl) QDiscAdd(qdisc types.QDisc) error {
	t.log.V(10).Info("QDiscAdd()", "qdisc", qdisc.Type())

	if qdisc.Type() != types.QDiscHTBType {
		return fmt.Errorf("unsupported qdisc type: %s", qdisc.Type())
	}

	return t.netlinkIfc.QdiscAdd(qdiscToNlQdisc(qdisc, t.link.Attrs().Index))
}

// QDiscDel implements TC interface
func (t *TcNetlinkImpl) QDiscDel(qdisc types.QDisc) error {
	t.log.V(10).Info("QDiscDel()", "qdisc", qdisc.Type())

	return t.netlinkIfc.QdiscDel(qdiscToNlQdisc(qdisc, t.link.Attrs().Index))
}

// QDiscList implements TC interface
func (t *TcNetlinkImpl) QDiscList() ([]types.QDisc, error) {
	t.log.V(10).Info("QDiscList()")

	nlQdiscs, err := t.netlinkIfc.QdiscList(t.link)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list qdiscs")
	}

	qdiscs := []types.QDisc{}
	for _, nlQdisc := range nlQdiscs {
		if nlQdisc.Attrs().Parent == netlink.HANDLE_INGRESS {
			// skip ingress/clsact qdiscs
			continue
		}
		qdiscs = append(qdiscs, nlQdiscToQdisc(nlQdisc))
	}
	return qdiscs, nil
}

// ClassAdd implements TC interface
func (t *TcNetlinkImpl) ClassAdd(class types.Class) error {
	t.log.V(10).Info("ClassAdd()", "classid", types.FormatHandle(class.Attrs().ClassID))

	htbClass, ok := class.(*types.HTBClass)
	if !ok {
		return fmt.Errorf("unsupported class type: %s", class.Type())
	}

	return t.netlinkIfc.ClassAdd(htbClassToNlHtbClass(htbClass, t.link.Attrs().Index))
}

// ClassList implements TC interface
func (t *TcNetlinkImpl) ClassList() ([]types.Class, error) {
	t.log.V(10).Info("ClassList()")

	nlClasses, err := t.netlinkIfc.ClassList(t.link, netlink.HANDLE_NONE)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list classes")
	}

	var classes []types.Class
	for _, nlClass := range nlClasses {
		nlHtbClass, ok := nlClass.(*netlink.HtbClass)
		if !ok {
			continue
		}
		classes = append(classes, nlHtbClassToHTBClass(nlHtbClass))
	}
	return classes, nil
}

// FilterAdd implements TC interface
func (t *TcNetlinkImpl) FilterAdd(qdisc types.QDisc, filter types.Filter) error {
	t.log.V(10).Info("FilterAdd()", "kind", filter.Attrs().Kind)

	if filter.Attrs().Kind != types.FilterKindU32 {
		return fmt.Errorf("unsupported filter kind: %s", filter.Attrs().Kind)
	}

	if qdisc.Type() != types.QDiscHTBType {
		return fmt.Errorf("unsupported qdisc type: %s", qdisc.Type())
	}

	u32Filter, ok := filter.(*types.U32Filter)
	if !ok {
		return fmt.Errorf("unexpected filter")
	}

	nlU32, err := u32FilterToNlU32Filter(
		u32Filter, u32ValFromPtr(qdisc.Attrs().Handle, 0), t.link.Attrs().Index)
	if err != nil {
		return errors.Wrap(err, "failed to convert filter")
	}

	return t.netlinkIfc.FilterAdd(nlU32)
}

// FilterList implements TC interface
func (t *TcNetlinkImpl) FilterList(qdisc types.QDisc) ([]types.Filter, error) {
	t.log.V(10).Info("FilterList()")

	if qdisc.Type() != types.QDiscHTBType {
		return nil, fmt.Errorf("unsupported qdisc type: %s", qdisc.Type())
	}

	nlFilters, err := t.netlinkIfc.FilterList(t.link, u32ValFromPtr(qdisc.Attrs().Handle, 0))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list filters")
	}

	var filters []types.Filter
	for _, nlFilter := range nlFilters {
		nlU32, ok := nlFilter.(*netlink.U32)
		if !ok {
			continue
		}
		if nlU32.ClassId == 0 {
			// hash table and divisor entries
			continue
		}

		u32Filter, err := nlU32FilterToU32Filter(nlU32)
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert u32 filter")
		}
		filters = append(filters, u32Filter)
	}
	return filters, nil
}
