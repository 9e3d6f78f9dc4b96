package types

import (
	"golang.org/x/sys/unix"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/policy"
)

// compare first with second. They are equal if:
//  1. first and second point to the same address (nil or otherwise)
//  2. first and second contain the same value
//  3. if nilVal != nil
//     3.1 first is not nil and *nilVal equals to *first
//     3.2 second is not nil and *nilVal equals to *second
func compare[C comparable](first *C, second *C, nilVal *C) bool {
	if first == second {
		return true
	}

	if first != nil && second != nil {
		return *first == *second
	}

	if nilVal != nil {
		if first != nil && *first == *nilVal {
			return true
		}
		if second != nil && *second == *nilVal {
			return true
		}
	}
	return false
}

// ProtoToFlowerVlanEthType converts FilterProtocol to FlowerVlanEthType, returns "" if conversion is invalid.
func ProtoToFlowerVlanEthType(proto FilterProtocol) FlowerVlanEthType {
	var vlanEthType FlowerVlanEthType

	switch proto {
	case FilterProtocolIPv4:
		vlanEthType = FlowerVlanEthTypeIPv4
	case FilterProtocolIPv6:
		vlanEthType = FlowerVlanEthTypeIPv6
	}
	return vlanEthType
}

// ProtocolToFlowerIPProto converts policy.Protocol to FlowerIPProto,
// returns "" if conversion is invalid.
func ProtocolToFlowerIPProto(proto policy.Protocol) FlowerIPProto {
	var ipProto FlowerIPProto

	switch proto {
	case policy.ProtocolTCP:
		ipProto = FlowerIPProtoTCP
	case policy.ProtocolUDP:
		ipProto = FlowerIPProtoUDP
	case policy.ProtocolICMP:
		ipProto = FlowerIPProtoICMP
	}
	return ipProto
}

// ProtocolToIPProtoNumber converts policy.Protocol to its IP protocol number, returns 0 if conversion is invalid.
func ProtocolToIPProtoNumber(proto policy.Protocol) uint8 {
	switch proto {
	case policy.ProtocolTCP:
		return unix.IPPROTO_TCP
	case policy.ProtocolUDP:
		return unix.IPPROTO_UDP
	case policy.ProtocolICMP:
		return unix.IPPROTO_ICMP
	}
	return 0
}

// IPProtoNumberToFlowerIPProto converts an IP protocol number to FlowerIPProto, returns "" if unknown
func IPProtoNumberToFlowerIPProto(proto uint8) FlowerIPProto {
	switch proto {
	case unix.IPPROTO_TCP:
		return FlowerIPProtoTCP
	case unix.IPPROTO_UDP:
		return FlowerIPProtoUDP
	case unix.IPPROTO_ICMP:
		return FlowerIPProtoICMP
	}
	return ""
}
