package netlink

import (
	"fmt"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/types"
)

/*
Helpers (for converters below)
*/

// u32ValFromPtr returns defaultVal if p is nil, else returns the value of p
func u32ValFromPtr(p *uint32, defaultVal uint32) uint32 {
	var v = defaultVal

	if p != nil {
		v = *p
	}
	return v
}

// u16ValFromPtr returns defaultVal if p is nil, else returns the value of p
func u16ValFromPtr(p *uint16, defaultVal uint16) uint16 {
	var v = defaultVal

	if p != nil {
		v = *p
	}
	return v
}

// filterProtoToUnixProto converts FilterProtocol to unix protocol
func filterProtoToUnixProto(protocol types.FilterProtocol) uint16 {
	switch protocol {
	case types.FilterProtocolIPv4:
		return unix.ETH_P_IP
	case types.FilterProtocolIPv6:
		return unix.ETH_P_IPV6
	case types.FilterProtocol8021Q:
		return unix.ETH_P_8021Q
	case types.FilterProtocolAll:
		return unix.ETH_P_ALL
	}

	// we should not get here
	return 0
}

// unixProtoToFilterProto converts unix protocol to FilterProtocol
func unixProtoToFilterProto(protocol uint16) types.FilterProtocol {
	switch protocol {
	case unix.ETH_P_IP:
		return types.FilterProtocolIPv4
	case unix.ETH_P_IPV6:
		return types.FilterProtocolIPv6
	case unix.ETH_P_8021Q:
		return types.FilterProtocol8021Q
	case unix.ETH_P_ALL:
		return types.FilterProtocolAll
	}

	// we should not get here
	return types.FilterProtocol(fmt.Sprintf("Unknown(%d)", protocol))
}

// actionGenericToTcAction converts ActionGenericType to netlink TcAct
func actionGenericToTcAction(action types.ActionGenericType) netlink.TcAct {
	switch action {
	case types.ActionGenericPass, types.ActionGenericOk:
		return netlink.TC_ACT_OK
	case types.ActionGenericDrop:
		return netlink.TC_ACT_SHOT
	}
	return netlink.TC_ACT_UNSPEC
}

// tcActionToActionGeneric converts netlink TcAct to ActionGenericType
func tcActionToActionGeneric(action netlink.TcAct) types.ActionGenericType {
	switch action {
	case netlink.TC_ACT_OK:
		return types.ActionGenericPass
	case netlink.TC_ACT_SHOT:
		return types.ActionGenericDrop
	}

	// we should not get here
	return types.ActionGenericType(fmt.Sprintf("Unknown(%d)", action))
}

// actionGenericToTcPolAct converts ActionGenericType to netlink TcPolAct
func actionGenericToTcPolAct(action types.ActionGenericType) netlink.TcPolAct {
	switch action {
	case types.ActionGenericDrop:
		return netlink.TC_POLICE_SHOT
	case types.ActionGenericOk, types.ActionGenericPass:
		return netlink.TC_POLICE_OK
	}
	return netlink.TC_POLICE_UNSPEC
}

// tcPolActToActionGeneric converts netlink TcPolAct to ActionGenericType
func tcPolActToActionGeneric(action netlink.TcPolAct) types.ActionGenericType {
	switch action {
	case netlink.TC_POLICE_SHOT:
		return types.ActionGenericDrop
	case netlink.TC_POLICE_OK:
		return types.ActionGenericOk
	}

	// we should not get here
	return types.ActionGenericType(fmt.Sprintf("Unknown(%d)", action))
}

/*
Converters
*/

// qdiscToNlQdisc converts QDisc to netlink Qdisc
func qdiscToNlQdisc(qd types.QDisc, linkIdx int) netlink.Qdisc {
	attrs := netlink.QdiscAttrs{
		LinkIndex: linkIdx,
		Handle:    u32ValFromPtr(qd.Attrs().Handle, 0),
		Parent:    u32ValFromPtr(qd.Attrs().Parent, netlink.HANDLE_ROOT),
	}

	htbQdisc, ok := qd.(*types.HTBQDisc)
	if !ok {
		return &netlink.GenericQdisc{QdiscAttrs: attrs, QdiscType: string(qd.Type())}
	}

	nlHtb := netlink.NewHtb(attrs)
	nlHtb.Defcls = uint32(htbQdisc.DefaultClass)
	if htbQdisc.R2Q != nil {
		nlHtb.Rate2Quantum = *htbQdisc.R2Q
	}
	return nlHtb
}

// nlQdiscToQdisc converts netlink Qdisc to QDisc
func nlQdiscToQdisc(qd netlink.Qdisc) types.QDisc {
	nlHtb, ok := qd.(*netlink.Htb)
	if !ok {
		return types.NewGenericQdisc(
			types.NewQDiscAttrsBuilder().
				WithParent(qd.Attrs().Parent).
				WithHandle(qd.Attrs().Handle).Build(),
			types.QDiscType(qd.Type()))
	}

	return types.NewHTBQDiscBuilder().
		WithParent(nlHtb.Parent).
		WithHandle(nlHtb.Handle).
		WithDefaultClass(uint16(nlHtb.Defcls)).
		WithR2Q(nlHtb.Rate2Quantum).
		Build()
}

// htbClassToNlHtbClass converts HTBClass to netlink HtbClass
func htbClassToNlHtbClass(class *types.HTBClass, linkIdx int) *netlink.HtbClass {
	return netlink.NewHtbClass(
		netlink.ClassAttrs{
			LinkIndex: linkIdx,
			Parent:    class.Parent,
			Handle:    class.ClassID,
		},
		netlink.HtbClassAttrs{
			Rate: class.Rate,
			Ceil: class.Ceil,
			Prio: class.Prio,
		})
}

// nlHtbClassToHTBClass converts netlink HtbClass to HTBClass, netlink reports rates in bytes per second
func nlHtbClassToHTBClass(class *netlink.HtbClass) *types.HTBClass {
	parent := class.Parent
	if parent == netlink.HANDLE_ROOT {
		// classes directly under the qdisc report root as parent
		parent = types.MakeHandle(types.HandleMajor(class.Handle), 0)
	}

	return types.NewHTBClassBuilder().
		WithParent(parent).
		WithClassID(class.Handle).
		WithRate(class.Rate * 8).
		WithCeil(class.Ceil * 8).
		WithPrio(class.Prio).
		Build()
}

// actionToNlAction converts Action to netlink Action
func actionToNlAction(act types.Action, idx int) (netlink.Action, error) {
	switch a := act.(type) {
	case *types.GenericAction:
		return &netlink.GenericAction{
			ActionAttrs: netlink.ActionAttrs{
				Index:  idx,
				Action: actionGenericToTcAction(types.ActionGenericType(a.Spec()["control_action"])),
			},
		}, nil
	case *types.PoliceAction:
		nlPolice := netlink.NewPoliceAction()
		nlPolice.Index = idx
		// netlink police rate is in bytes per second
		nlPolice.Rate = uint32(a.Rate / 8)
		nlPolice.Burst = a.Burst
		nlPolice.ExceedAction = actionGenericToTcPolAct(a.ExceedAction)
		nlPolice.NotExceedAction = actionGenericToTcPolAct(a.ConformAction)
		return nlPolice, nil
	}
	return nil, fmt.Errorf("unsupported action type: %s", act.Type())
}

// nlActionToAction converts netlink Action to Action, returns nil for unsupported action types
func nlActionToAction(act netlink.Action) types.Action {
	switch a := act.(type) {
	case *netlink.GenericAction:
		return types.NewGenericAction(tcActionToActionGeneric(a.Attrs().Action))
	case *netlink.PoliceAction:
		return &types.PoliceAction{
			Rate:          uint64(a.Rate) * 8,
			Burst:         a.Burst,
			ExceedAction:  tcPolActToActionGeneric(a.ExceedAction),
			ConformAction: tcPolActToActionGeneric(a.NotExceedAction),
		}
	}
	return nil
}

// u32FilterToNlU32Filter converts U32Filter to netlink U32
func u32FilterToNlU32Filter(filter *types.U32Filter, parent uint32, linkIdx int) (*netlink.U32, error) {
	nlU32 := &netlink.U32{
		FilterAttrs: netlink.FilterAttrs{
			LinkIndex: linkIdx,
			Handle:    u32ValFromPtr(filter.Attrs().Handle, 0),
			Parent:    parent,
			Priority:  u16ValFromPtr(filter.Attrs().Priority, 0),
			Protocol:  filterProtoToUnixProto(filter.Attrs().Protocol),
		},
		ClassId: u32ValFromPtr(filter.ClassID, 0),
	}

	keys := filter.Match.Keys()
	sel := &netlink.TcU32Sel{
		Flags: netlink.TC_U32_TERMINAL,
		Nkeys: uint8(len(keys)),
	}
	for _, k := range keys {
		sel.Keys = append(sel.Keys, netlink.TcU32Key{Mask: k.Mask, Val: k.Val, Off: k.Off})
	}
	nlU32.Sel = sel

	for idx, act := range filter.Actions {
		nlAct, err := actionToNlAction(act, idx)
		if err != nil {
			return nil, err
		}
		nlU32.Actions = append(nlU32.Actions, nlAct)
	}

	return nlU32, nil
}

// nlU32FilterToU32Filter converts netlink U32 filter to U32Filter
func nlU32FilterToU32Filter(filter *netlink.U32) (*types.U32Filter, error) {
	fb := types.NewU32FilterBuilder().
		WithHandle(filter.Handle).
		WithProtocol(unixProtoToFilterProto(filter.Protocol)).
		WithPriority(filter.Priority)

	if filter.ClassId != 0 {
		fb.WithClassID(filter.ClassId)
	}

	u32Filter := fb.Build()
	if filter.Sel != nil {
		keys := make([]types.U32Key, 0, len(filter.Sel.Keys))
		for _, k := range filter.Sel.Keys {
			keys = append(keys, types.U32Key{Val: k.Val, Mask: k.Mask, Off: k.Off})
		}
		match, err := types.NewU32SpecFromKeys(keys)
		if err != nil {
			return nil, err
		}
		u32Filter.Match = match
	}

	for _, act := range filter.Actions {
		if a := nlActionToAction(act); a != nil {
			u32Filter.Actions = append(u32Filter.Actions, a)
		}
	}
	if filter.Police != nil {
		u32Filter.Actions = append(u32Filter.Actions, nlActionToAction(filter.Police))
	}

	return u32Filter, nil
}
