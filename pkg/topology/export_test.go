package topology

import (
	"github.com/containernetworking/plugins/pkg/ns"
)

// SetNetNSFunc replaces how EmulatedProvider enters host network namespaces
func (e *EmulatedProvider) SetNetNSFunc(fn func(path string, fn func(ns.NetNS) error) error) {
	e.withNetNS = fn
}
