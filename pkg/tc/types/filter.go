package types

import (
	"net"
	"reflect"
	"strconv"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/utils"
)

const (
	// Values for FilterAttrs.Protocol
	FilterProtocolAll   FilterProtocol = "all"
	FilterProtocolIPv4  FilterProtocol = "ip"
	FilterProtocolIPv6  FilterProtocol = "ipv6"
	FilterProtocol8021Q FilterProtocol = "802.1q"

	// Filter kinds
	FilterKindFlower FilterKind = "flower"
	FilterKindU32    FilterKind = "u32"

	// FlowerKeys
	FlowerKeyIPProto     FlowerKey = "ip_proto"
	FlowerKeySrcIP       FlowerKey = "src_ip"
	FlowerKeyDstIP       FlowerKey = "dst_ip"
	FlowerKeySrcPort     FlowerKey = "src_port"
	FlowerKeyDstPort     FlowerKey = "dst_port"
	FlowerKeyVlanEthType FlowerKey = "vlan_ethtype"
	FlowerKeyClassID     FlowerKey = "classid"

	// FlowerFilter.Flower.IPProto
	FlowerIPProtoTCP  FlowerIPProto = "tcp"
	FlowerIPProtoUDP  FlowerIPProto = "udp"
	FlowerIPProtoICMP FlowerIPProto = "icmp"

	// FlowerFilter.Flower.VlanEthType
	FlowerVlanEthTypeIPv4 FlowerVlanEthType = "ip"
	FlowerVlanEthTypeIPv6 FlowerVlanEthType = "ipv6"
)

// FilterProtocol is the type of filter protocol
type FilterProtocol string

// FilterKind is the type of filter
type FilterKind string

// FlowerKey is the type of flower key
type FlowerKey string

// FlowerIPProto is the type of IPProto flower key
type FlowerIPProto string

// FlowerVlanEthType is the type of VlanEthType flower key
type FlowerVlanEthType string

// Filter represent a tc filter object
type Filter interface {
	// Attrs returns FilterAttrs
	Attrs() *FilterAttrs
	// Target returns the class id traffic matching the filter is steered to, nil if none
	Target() *uint32
	// Equals compares this Filter with other, returns true if they are equal or false otherwise
	Equals(other Filter) bool

	// Driver Specific related Interfaces
	CmdLineGenerator
}

// FilterAttrs holds filter object attributes
type FilterAttrs struct {
	Kind     FilterKind
	Protocol FilterProtocol
	Handle   *uint32
	Priority *uint16
}

// NewFilterAttrs creates new FilterAttrs instance
func NewFilterAttrs(
	kind FilterKind, protocol FilterProtocol, handle *uint32, priority *uint16) *FilterAttrs {
	return &FilterAttrs{
		Kind:     kind,
		Protocol: protocol,
		Handle:   handle,
		Priority: priority,
	}
}

// GenCmdLineArgs implements CmdLineGenerator interface, it generates the needed tc command line args for FilterAttrs
func (fa *FilterAttrs) GenCmdLineArgs() []string {
	args := []string{}

	if fa.Protocol != "" {
		args = append(args, "protocol", string(fa.Protocol))
	}

	if fa.Handle != nil {
		args = append(args, "handle", strconv.FormatUint(uint64(*fa.Handle), 10))
	}

	if fa.Priority != nil {
		args = append(args, "pref", strconv.FormatUint(uint64(*fa.Priority), 10))
	}

	// must be last as next are filter type specific params
	args = append(args, string(fa.Kind))

	return args
}

// Equals compares this FilterAttrs with other, returns true if they are equal or false otherwise
func (fa *FilterAttrs) Equals(other *FilterAttrs) bool {
	if fa == other {
		return true
	}

	if (fa == nil && other != nil) || (fa != nil && other == nil) {
		return false
	}

	if fa.Kind != other.Kind {
		return false
	}
	if fa.Protocol != other.Protocol {
		return false
	}
	if !compare(fa.Priority, other.Priority, nil) {
		return false
	}
	return true
}

// FlowerSpec holds flower filter specification (which consists of a list of Match)
type FlowerSpec struct {
	VlanEthType *FlowerVlanEthType
	IPProto     *FlowerIPProto
	SrcIP       *net.IPNet
	DstIP       *net.IPNet
	SrcPort     *uint16
	DstPort     *uint16
}

func ipNetArg(ipNet *net.IPNet) string {
	if ipNet.Mask != nil && !utils.IsMaskFull(ipNet.Mask) {
		return ipNet.String()
	}
	return ipNet.IP.String()
}

func ipNetEquals(a, b *net.IPNet) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.IP.Equal(b.IP) && reflect.DeepEqual(a.Mask, b.Mask)
}

// GenCmdLineArgs implements CmdLineGenerator interface, it generates the needed tc command line args for FlowerSpec
func (ff *FlowerSpec) GenCmdLineArgs() []string {
	args := []string{}

	if ff == nil {
		return args
	}

	if ff.VlanEthType != nil {
		args = append(args, string(FlowerKeyVlanEthType), string(*ff.VlanEthType))
	}

	if ff.IPProto != nil {
		args = append(args, string(FlowerKeyIPProto), string(*ff.IPProto))
	}

	if ff.SrcIP != nil {
		args = append(args, string(FlowerKeySrcIP), ipNetArg(ff.SrcIP))
	}

	if ff.DstIP != nil {
		args = append(args, string(FlowerKeyDstIP), ipNetArg(ff.DstIP))
	}

	if ff.SrcPort != nil {
		args = append(args, string(FlowerKeySrcPort), strconv.FormatUint(uint64(*ff.SrcPort), 10))
	}

	if ff.DstPort != nil {
		args = append(args, string(FlowerKeyDstPort), strconv.FormatUint(uint64(*ff.DstPort), 10))
	}

	return args
}

// Equals compares this FlowerSpec with other, returns true if they are equal or false otherwise
func (ff *FlowerSpec) Equals(other *FlowerSpec) bool {
	if ff == other {
		return true
	}

	if (ff == nil && other != nil) || (ff != nil && other == nil) {
		return false
	}

	// same Key/val
	if !compare(ff.VlanEthType, other.VlanEthType, nil) {
		return false
	}
	if !compare(ff.IPProto, other.IPProto, nil) {
		return false
	}
	if !ipNetEquals(ff.SrcIP, other.SrcIP) || !ipNetEquals(ff.DstIP, other.DstIP) {
		return false
	}
	if !compare(ff.SrcPort, other.SrcPort, nil) {
		return false
	}
	if !compare(ff.DstPort, other.DstPort, nil) {
		return false
	}

	return true
}

// FlowerFilter is a concrete implementation of Filter of kind Flower
type FlowerFilter struct {
	FilterAttrs
	// Flower Match keys, only valid if Kind == FilterKindFlower
	Flower *FlowerSpec
	// ClassID of the class matching traffic is steered to
	ClassID *uint32
	// Actions
	Actions []Action
}

// Attrs implements Filter interface, it returns FilterAttrs
func (f *FlowerFilter) Attrs() *FilterAttrs {
	return &f.FilterAttrs
}

// Target implements Filter interface
func (f *FlowerFilter) Target() *uint32 {
	return f.ClassID
}

// Equals implements Filter interface
func (f *FlowerFilter) Equals(other Filter) bool {
	// types equal
	otherFlower, ok := other.(*FlowerFilter)
	if !ok {
		return false
	}

	// FilterAttr equal
	if !f.Attrs().Equals(other.Attrs()) {
		return false
	}

	// FlowerSpec Equal
	if !f.Flower.Equals(otherFlower.Flower) {
		return false
	}

	if !compare(f.ClassID, otherFlower.ClassID, nil) {
		return false
	}

	return actionsEqual(f.Actions, otherFlower.Actions)
}

// actionsEqual compares two action lists, order matters
func actionsEqual(a, b []Action) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equals(b[i]) {
			return false
		}
	}
	return true
}

// GenCmdLineArgs implements CmdLineGenerator interface, it generates the needed tc command line args for FlowerFilter
func (f *FlowerFilter) GenCmdLineArgs() []string {
	args := []string{}

	args = append(args, f.FilterAttrs.GenCmdLineArgs()...)

	if f.Flower != nil {
		args = append(args, f.Flower.GenCmdLineArgs()...)
	}

	if f.ClassID != nil {
		args = append(args, string(FlowerKeyClassID), FormatHandle(*f.ClassID))
	}

	for _, action := range f.Actions {
		args = append(args, action.GenCmdLineArgs()...)
	}

	return args
}

// Builders

// NewFilterAttrsBuilder returns a new FilterAttrsBuilder
func NewFilterAttrsBuilder() *FilterAttrsBuilder {
	return &FilterAttrsBuilder{}
}

// FilterAttrsBuilder is a FilterAttr builder
type FilterAttrsBuilder struct {
	filterAttrs FilterAttrs
}

// WithKind adds Kind to FilterAttrsBuilder
func (fb *FilterAttrsBuilder) WithKind(k FilterKind) *FilterAttrsBuilder {
	fb.filterAttrs.Kind = k
	return fb
}

// WithProtocol adds Protocol to FilterAttrsBuilder
func (fb *FilterAttrsBuilder) WithProtocol(p FilterProtocol) *FilterAttrsBuilder {
	fb.filterAttrs.Protocol = p
	return fb
}

// WithHandle adds Handle to FilterAttrsBuilder
func (fb *FilterAttrsBuilder) WithHandle(h uint32) *FilterAttrsBuilder {
	fb.filterAttrs.Handle = &h
	return fb
}

// WithPriority adds Priority to FilterAttrsBuilder
func (fb *FilterAttrsBuilder) WithPriority(p uint16) *FilterAttrsBuilder {
	fb.filterAttrs.Priority = &p
	return fb
}

// Build builds and returns a new FilterAttrs instance
// Note: calling Build() multiple times will not return a completely
// new object on each call. that is, pointer/slice/map types will not be deep copied.
// to create several objects, different builders should be used.
func (fb *FilterAttrsBuilder) Build() *FilterAttrs {
	return NewFilterAttrs(fb.filterAttrs.Kind, fb.filterAttrs.Protocol, fb.filterAttrs.Handle, fb.filterAttrs.Priority)
}

// NewFlowerFilterBuilder returns a new instance of FlowerFilterBuilder
func NewFlowerFilterBuilder() *FlowerFilterBuilder {
	return &FlowerFilterBuilder{
		filterAttrsBuilder: NewFilterAttrsBuilder(),
		flowerFilter: FlowerFilter{
			Flower:  &FlowerSpec{},
			Actions: make([]Action, 0),
		},
	}
}

// FlowerFilterBuilder is a FlowerFilter builder
type FlowerFilterBuilder struct {
	filterAttrsBuilder *FilterAttrsBuilder
	flowerFilter       FlowerFilter
}

// WithProtocol adds Protocol to FlowerFilterBuilder
func (fb *FlowerFilterBuilder) WithProtocol(p FilterProtocol) *FlowerFilterBuilder {
	fb.filterAttrsBuilder = fb.filterAttrsBuilder.WithProtocol(p)
	return fb
}

// WithHandle adds Handle to FlowerFilterBuilder
func (fb *FlowerFilterBuilder) WithHandle(h uint32) *FlowerFilterBuilder {
	fb.filterAttrsBuilder = fb.filterAttrsBuilder.WithHandle(h)
	return fb
}

// WithPriority adds Priority to FlowerFilterBuilder
func (fb *FlowerFilterBuilder) WithPriority(p uint16) *FlowerFilterBuilder {
	fb.filterAttrsBuilder = fb.filterAttrsBuilder.WithPriority(p)
	return fb
}

// WithMatchKeyVlanEthType adds Match with FlowerKeyVlanEthType key and specified value to FlowerFilterBuilder
func (fb *FlowerFilterBuilder) WithMatchKeyVlanEthType(val FlowerVlanEthType) *FlowerFilterBuilder {
	fb.flowerFilter.Flower.VlanEthType = &val
	return fb
}

// WithMatchKeyIPProto adds Match with FlowerKeyIPProto key and specified value to FlowerFilterBuilder
func (fb *FlowerFilterBuilder) WithMatchKeyIPProto(val FlowerIPProto) *FlowerFilterBuilder {
	fb.flowerFilter.Flower.IPProto = &val
	return fb
}

// WithMatchKeySrcIP adds Match with FlowerKeySrcIP key and specified value to FlowerFilterBuilder
func (fb *FlowerFilterBuilder) WithMatchKeySrcIP(ipNet *net.IPNet) *FlowerFilterBuilder {
	fb.flowerFilter.Flower.SrcIP = ipNet
	return fb
}

// WithMatchKeySrcPort adds Match with FlowerKeySrcPort key and specified value to FlowerFilterBuilder
func (fb *FlowerFilterBuilder) WithMatchKeySrcPort(val uint16) *FlowerFilterBuilder {
	fb.flowerFilter.Flower.SrcPort = &val
	return fb
}

// WithClassID sets the class matching traffic is steered to
func (fb *FlowerFilterBuilder) WithClassID(classID uint32) *FlowerFilterBuilder {
	fb.flowerFilter.ClassID = &classID
	return fb
}

// WithMatchKeyDstIP adds Match with FlowerKeyDstIP key and specified value to FlowerFilterBuilder
func (fb *FlowerFilterBuilder) WithMatchKeyDstIP(ipNet *net.IPNet) *FlowerFilterBuilder {
	fb.flowerFilter.Flower.DstIP = ipNet
	return fb
}

// WithMatchKeyDstPort adds Match with FlowerKeyDstPort key and specified value to FlowerFilterBuilder
func (fb *FlowerFilterBuilder) WithMatchKeyDstPort(val uint16) *FlowerFilterBuilder {
	fb.flowerFilter.Flower.DstPort = &val
	return fb
}

// WithAction adds specified Action to FlowerFilterBuilder
func (fb *FlowerFilterBuilder) WithAction(a Action) *FlowerFilterBuilder {
	fb.flowerFilter.Actions = append(fb.flowerFilter.Actions, a)
	return fb
}

// Build builds and creates a new FlowerFilter instance
// Note: calling Build() multiple times will not return a completely
// new object on each call. that is, pointer/slice/map types will not be deep copied.
// to create several objects, different builders should be used.
func (fb *FlowerFilterBuilder) Build() *FlowerFilter {
	fb.flowerFilter.FilterAttrs = *fb.filterAttrsBuilder.Build()
	fb.flowerFilter.Kind = FilterKindFlower

	return &FlowerFilter{
		FilterAttrs: *fb.flowerFilter.Attrs(),
		Flower:      fb.flowerFilter.Flower,
		ClassID:     fb.flowerFilter.ClassID,
		Actions:     fb.flowerFilter.Actions,
	}
}
