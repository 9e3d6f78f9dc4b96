package generator

import (
	tctypes "github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/types"
)

const (
	// RootMajor is the major of the root qdisc handle and of all its classes
	RootMajor uint16 = 1
	// ClassMinorBase is the minor of the first class, next classes step by ClassMinorStep
	ClassMinorBase uint16 = 0x10
	ClassMinorStep uint16 = 0x10
	// maxClasses is the number of classes minors can be allocated for
	maxClasses = (0xffff - int(ClassMinorBase)) / int(ClassMinorStep)
)

// RootHandle returns the handle of the root qdisc
func RootHandle() uint32 {
	return tctypes.MakeHandle(RootMajor, 0)
}

// ClassMinor returns the minor of the class at index idx of the topological order
func ClassMinor(idx int) uint16 {
	return ClassMinorBase + uint16(idx)*ClassMinorStep
}

// PrioFromOrder returns the filter priority for a classifier rule evaluation order.
// tc evaluates filters in ascending priority so the order is used as is.
func PrioFromOrder(order uint16) uint16 {
	return order
}
