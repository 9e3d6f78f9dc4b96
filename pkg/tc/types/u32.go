package types

import (
	"fmt"
	"net"
	"sort"
	"strconv"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/utils"
)

const (
	// offsets in the IPv4 header, L4 ports assume no IP options
	u32OffProto   int32 = 8
	u32OffSrcIP   int32 = 12
	u32OffDstIP   int32 = 16
	u32OffL4Ports int32 = 20

	u32MaskProto   uint32 = 0x00ff0000
	u32MaskSrcPort uint32 = 0xffff0000
	u32MaskDstPort uint32 = 0x0000ffff
)

// U32Key is a single 32bit match key of a u32 selector. Val and Mask are in host byte order.
type U32Key struct {
	Val  uint32
	Mask uint32
	Off  int32
}

// String returns the key in the same notation tc uses when dumping a u32 filter
func (k U32Key) String() string {
	return fmt.Sprintf("%08x/%08x at %d", k.Val, k.Mask, k.Off)
}

// U32Spec holds the IPv4 match of a u32 filter
type U32Spec struct {
	IPProto *uint8
	SrcIP   *net.IPNet
	DstIP   *net.IPNet
	SrcPort *uint16
	DstPort *uint16
}

// IsEmpty returns true if the spec matches all traffic
func (us *U32Spec) IsEmpty() bool {
	return us == nil || (us.IPProto == nil && us.SrcIP == nil && us.DstIP == nil && us.SrcPort == nil &&
		us.DstPort == nil)
}

// GenCmdLineArgs implements CmdLineGenerator interface
func (us *U32Spec) GenCmdLineArgs() []string {
	if us.IsEmpty() {
		return []string{"match", "u32", "0", "0"}
	}

	args := []string{}
	if us.IPProto != nil {
		args = append(args, "match", "ip", "protocol", strconv.FormatUint(uint64(*us.IPProto), 10), "0xff")
	}
	if us.SrcIP != nil {
		args = append(args, "match", "ip", "src", ipNetArg(us.SrcIP))
	}
	if us.DstIP != nil {
		args = append(args, "match", "ip", "dst", ipNetArg(us.DstIP))
	}
	if us.SrcPort != nil {
		args = append(args, "match", "ip", "sport", strconv.FormatUint(uint64(*us.SrcPort), 10), "0xffff")
	}
	if us.DstPort != nil {
		args = append(args, "match", "ip", "dport", strconv.FormatUint(uint64(*us.DstPort), 10), "0xffff")
	}
	return args
}

// Keys returns the selector keys for the spec, ordered by offset. keys at the same offset are merged
// into a single key the way tc does.
func (us *U32Spec) Keys() []U32Key {
	if us.IsEmpty() {
		return []U32Key{{Val: 0, Mask: 0, Off: 0}}
	}

	byOff := make(map[int32]*U32Key)
	add := func(off int32, val, mask uint32) {
		k, ok := byOff[off]
		if !ok {
			k = &U32Key{Off: off}
			byOff[off] = k
		}
		k.Mask |= mask
		k.Val |= val & mask
	}

	if us.IPProto != nil {
		add(u32OffProto, uint32(*us.IPProto)<<16, u32MaskProto)
	}
	if us.SrcIP != nil {
		if v, m, ok := ipNetKey(us.SrcIP); ok {
			add(u32OffSrcIP, v, m)
		}
	}
	if us.DstIP != nil {
		if v, m, ok := ipNetKey(us.DstIP); ok {
			add(u32OffDstIP, v, m)
		}
	}
	if us.SrcPort != nil {
		add(u32OffL4Ports, uint32(*us.SrcPort)<<16, u32MaskSrcPort)
	}
	if us.DstPort != nil {
		add(u32OffL4Ports, uint32(*us.DstPort), u32MaskDstPort)
	}

	keys := make([]U32Key, 0, len(byOff))
	for _, k := range byOff {
		keys = append(keys, *k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Off < keys[j].Off })
	return keys
}

// NewU32SpecFromKeys rebuilds a U32Spec from selector keys as read back from the kernel.
// keys which do not map to a known IPv4 match are reported via error.
func NewU32SpecFromKeys(keys []U32Key) (*U32Spec, error) {
	us := &U32Spec{}
	for _, k := range keys {
		if k.Mask == 0 {
			// match all
			continue
		}
		switch k.Off {
		case u32OffProto:
			if k.Mask != u32MaskProto {
				return nil, fmt.Errorf("unsupported u32 key %s", k)
			}
			proto := uint8((k.Val & u32MaskProto) >> 16)
			us.IPProto = &proto
		case u32OffSrcIP:
			us.SrcIP = keyIPNet(k)
		case u32OffDstIP:
			us.DstIP = keyIPNet(k)
		case u32OffL4Ports:
			if k.Mask&^(u32MaskSrcPort|u32MaskDstPort) != 0 {
				return nil, fmt.Errorf("unsupported u32 key %s", k)
			}
			if k.Mask&u32MaskSrcPort == u32MaskSrcPort {
				sport := uint16(k.Val >> 16)
				us.SrcPort = &sport
			}
			if k.Mask&u32MaskDstPort == u32MaskDstPort {
				dport := uint16(k.Val & u32MaskDstPort)
				us.DstPort = &dport
			}
		default:
			return nil, fmt.Errorf("unsupported u32 key %s", k)
		}
	}
	return us, nil
}

func ipNetKey(ipNet *net.IPNet) (uint32, uint32, bool) {
	ip, ok := utils.IPv4ToUint32(ipNet.IP)
	if !ok {
		return 0, 0, false
	}
	mask := uint32(0xffffffff)
	if ipNet.Mask != nil {
		ones, bits := ipNet.Mask.Size()
		if bits != 32 {
			return 0, 0, false
		}
		if ones == 0 {
			mask = 0
		} else {
			mask <<= uint(32 - ones)
		}
	}
	return ip & mask, mask, true
}

func keyIPNet(k U32Key) *net.IPNet {
	ones := 0
	for m := k.Mask; m&0x80000000 != 0; m <<= 1 {
		ones++
	}
	return &net.IPNet{IP: utils.Uint32ToIPv4(k.Val & k.Mask), Mask: net.CIDRMask(ones, 32)}
}

// Equals compares this U32Spec with other, returns true if they are equal or false otherwise
func (us *U32Spec) Equals(other *U32Spec) bool {
	if us.IsEmpty() || other.IsEmpty() {
		return us.IsEmpty() && other.IsEmpty()
	}
	if !compare(us.IPProto, other.IPProto, nil) {
		return false
	}
	if !ipNetEquals(us.SrcIP, other.SrcIP) || !ipNetEquals(us.DstIP, other.DstIP) {
		return false
	}
	if !compare(us.SrcPort, other.SrcPort, nil) {
		return false
	}
	return compare(us.DstPort, other.DstPort, nil)
}

// U32Filter is a concrete implementation of Filter of kind u32
type U32Filter struct {
	FilterAttrs
	Match *U32Spec
	// ClassID of the class matching traffic is steered to
	ClassID *uint32
	Actions []Action
}

// Attrs implements Filter interface, it returns FilterAttrs
func (f *U32Filter) Attrs() *FilterAttrs {
	return &f.FilterAttrs
}

// Target implements Filter interface
func (f *U32Filter) Target() *uint32 {
	return f.ClassID
}

// Equals implements Filter interface
func (f *U32Filter) Equals(other Filter) bool {
	otherU32, ok := other.(*U32Filter)
	if !ok {
		return false
	}
	if !f.Attrs().Equals(other.Attrs()) {
		return false
	}
	if !f.Match.Equals(otherU32.Match) {
		return false
	}
	if !compare(f.ClassID, otherU32.ClassID, nil) {
		return false
	}
	return actionsEqual(f.Actions, otherU32.Actions)
}

// GenCmdLineArgs implements CmdLineGenerator interface
func (f *U32Filter) GenCmdLineArgs() []string {
	args := f.FilterAttrs.GenCmdLineArgs()
	args = append(args, f.Match.GenCmdLineArgs()...)
	if f.ClassID != nil {
		args = append(args, "flowid", FormatHandle(*f.ClassID))
	}
	for _, action := range f.Actions {
		args = append(args, action.GenCmdLineArgs()...)
	}
	return args
}

// NewU32FilterBuilder returns a new instance of U32FilterBuilder
func NewU32FilterBuilder() *U32FilterBuilder {
	return &U32FilterBuilder{
		filterAttrsBuilder: NewFilterAttrsBuilder().WithKind(FilterKindU32),
		u32Filter: U32Filter{
			Match:   &U32Spec{},
			Actions: make([]Action, 0),
		},
	}
}

// U32FilterBuilder is a U32Filter builder
type U32FilterBuilder struct {
	filterAttrsBuilder *FilterAttrsBuilder
	u32Filter          U32Filter
}

// WithProtocol adds Protocol to U32FilterBuilder
func (ub *U32FilterBuilder) WithProtocol(p FilterProtocol) *U32FilterBuilder {
	ub.filterAttrsBuilder.WithProtocol(p)
	return ub
}

// WithHandle adds Handle to U32FilterBuilder
func (ub *U32FilterBuilder) WithHandle(h uint32) *U32FilterBuilder {
	ub.filterAttrsBuilder.WithHandle(h)
	return ub
}

// WithPriority adds Priority to U32FilterBuilder
func (ub *U32FilterBuilder) WithPriority(p uint16) *U32FilterBuilder {
	ub.filterAttrsBuilder.WithPriority(p)
	return ub
}

// WithMatchIPProto adds an ip protocol match
func (ub *U32FilterBuilder) WithMatchIPProto(proto uint8) *U32FilterBuilder {
	ub.u32Filter.Match.IPProto = &proto
	return ub
}

// WithMatchSrcIP adds an ip src match
func (ub *U32FilterBuilder) WithMatchSrcIP(ipNet *net.IPNet) *U32FilterBuilder {
	ub.u32Filter.Match.SrcIP = ipNet
	return ub
}

// WithMatchDstIP adds an ip dst match
func (ub *U32FilterBuilder) WithMatchDstIP(ipNet *net.IPNet) *U32FilterBuilder {
	ub.u32Filter.Match.DstIP = ipNet
	return ub
}

// WithMatchSrcPort adds an ip sport match
func (ub *U32FilterBuilder) WithMatchSrcPort(port uint16) *U32FilterBuilder {
	ub.u32Filter.Match.SrcPort = &port
	return ub
}

// WithMatchDstPort adds an ip dport match
func (ub *U32FilterBuilder) WithMatchDstPort(port uint16) *U32FilterBuilder {
	ub.u32Filter.Match.DstPort = &port
	return ub
}

// WithClassID sets the class matching traffic is steered to
func (ub *U32FilterBuilder) WithClassID(classID uint32) *U32FilterBuilder {
	ub.u32Filter.ClassID = &classID
	return ub
}

// WithAction adds specified Action to U32FilterBuilder
func (ub *U32FilterBuilder) WithAction(a Action) *U32FilterBuilder {
	ub.u32Filter.Actions = append(ub.u32Filter.Actions, a)
	return ub
}

// Build builds and creates a new U32Filter instance
// Note: calling Build() multiple times will not return a completely
// new object on each call. that is, pointer/slice/map types will not be deep copied.
func (ub *U32FilterBuilder) Build() *U32Filter {
	return &U32Filter{
		FilterAttrs: *ub.filterAttrsBuilder.Build(),
		Match:       ub.u32Filter.Match,
		ClassID:     ub.u32Filter.ClassID,
		Actions:     ub.u32Filter.Actions,
	}
}
