package cmdline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/types"
)

const (
	allStr       = "all"
	ipStr        = "ip"
	ipv6Str      = "ipv6"
	vlanProtoStr = "802.1q"

	tcpStr  = "tcp"
	udpStr  = "udp"
	icmpStr = "icmp"
)

// sToFilterProtocol converts given string to types.FilterProtocol. returns "" in case of an invalid conversion
func sToFilterProtocol(proto string) types.FilterProtocol {
	var fp types.FilterProtocol

	switch strings.ToLower(proto) {
	case allStr:
		fp = types.FilterProtocolAll
	case ipStr:
		fp = types.FilterProtocolIPv4
	case ipv6Str:
		fp = types.FilterProtocolIPv6
	case vlanProtoStr:
		fp = types.FilterProtocol8021Q
	}

	return fp
}

// sToFlowerIPProto converts given string to types.FlowerIPProto. returns "" in case of an invalid conversion
func sToFlowerIPProto(ipp string) types.FlowerIPProto {
	var fp types.FlowerIPProto

	switch strings.ToLower(ipp) {
	case tcpStr:
		fp = types.FlowerIPProtoTCP
	case udpStr:
		fp = types.FlowerIPProtoUDP
	case icmpStr:
		fp = types.FlowerIPProtoICMP
	}

	return fp
}

// sToFlowerVlanEthType converts given string to types.FlowerVlanEthType. returns "" in case of an invalid conversion
func sToFlowerVlanEthType(ethtype string) types.FlowerVlanEthType {
	var vlanEthType types.FlowerVlanEthType

	switch strings.ToLower(ethtype) {
	case ipStr:
		vlanEthType = types.FlowerVlanEthTypeIPv4
	case ipv6Str:
		vlanEthType = types.FlowerVlanEthTypeIPv6
	}

	return vlanEthType
}

// parseHex parses a hex string with or without 0x prefix
func parseHex(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 16, 32)
	return uint32(v), err
}

// rawToDefaultClass converts htb default class as printed by tc to a class minor
func rawToDefaultClass(raw json.RawMessage) (uint16, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, err := parseHex(s)
		return uint16(v), err
	}
	var n uint32
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("failed to parse htb default class: %s", string(raw))
	}
	return uint16(n), nil
}

// cU32KeyToU32Key converts a u32 key as printed by tc to types.U32Key
func cU32KeyToU32Key(k cU32Key) (types.U32Key, error) {
	if k.OffMask != "" {
		return types.U32Key{}, fmt.Errorf("unsupported u32 key with offmask %s", k.OffMask)
	}
	val, err := parseHex(k.Value)
	if err != nil {
		return types.U32Key{}, err
	}
	mask, err := parseHex(k.Mask)
	if err != nil {
		return types.U32Key{}, err
	}
	return types.U32Key{Val: val, Mask: mask, Off: k.Off}, nil
}

var (
	rateUnits = []struct {
		suffix string
		mult   uint64
	}{
		{"gbit", 1000000000}, {"mbit", 1000000}, {"kbit", 1000}, {"bit", 1},
		{"gbps", 8000000000}, {"mbps", 8000000}, {"kbps", 8000}, {"bps", 8},
	}
	sizeUnits = []struct {
		suffix string
		mult   uint64
	}{
		{"gb", 1024 * 1024 * 1024}, {"mb", 1024 * 1024}, {"kb", 1024}, {"k", 1024}, {"b", 1},
	}
)

// parseRate parses a tc rate string (e.g 4Mbit) to bits per second
func parseRate(s string) (uint64, error) {
	ls := strings.ToLower(strings.TrimSpace(s))
	for _, u := range rateUnits {
		if strings.HasSuffix(ls, u.suffix) {
			v, err := strconv.ParseFloat(strings.TrimSuffix(ls, u.suffix), 64)
			if err != nil {
				return 0, fmt.Errorf("failed to parse rate %q: %w", s, err)
			}
			return uint64(v * float64(u.mult)), nil
		}
	}
	v, err := strconv.ParseUint(ls, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse rate %q: %w", s, err)
	}
	// plain numbers are bytes per second
	return v * 8, nil
}

// parseSize parses a tc size string (e.g 10Kb) to bytes
func parseSize(s string) (uint32, error) {
	ls := strings.ToLower(strings.TrimSpace(s))
	mult := uint64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(ls, u.suffix) {
			ls = strings.TrimSuffix(ls, u.suffix)
			mult = u.mult
			break
		}
	}
	v, err := strconv.ParseFloat(ls, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse size %q: %w", s, err)
	}
	return uint32(v * float64(mult)), nil
}

// cActionToAction converts an action as printed by tc to types.Action
func cActionToAction(a cAction) (types.Action, error) {
	switch a.Kind {
	case string(types.ActionTypeGeneric):
		return types.NewGenericAction(types.ActionGenericType(a.ControlAction.Type)), nil
	case string(types.ActionTypePolice):
		var rate uint64
		var burst uint32
		var err error
		if len(a.Rate) > 0 {
			var s string
			if json.Unmarshal(a.Rate, &s) == nil {
				rate, err = parseRate(s)
			} else {
				err = json.Unmarshal(a.Rate, &rate)
				rate *= 8
			}
			if err != nil {
				return nil, err
			}
		}
		if len(a.Burst) > 0 {
			var s string
			if json.Unmarshal(a.Burst, &s) == nil {
				burst, err = parseSize(s)
			} else {
				err = json.Unmarshal(a.Burst, &burst)
			}
			if err != nil {
				return nil, err
			}
		}
		return types.NewPoliceAction(rate, burst), nil
	}
	return nil, fmt.Errorf("unexpected action: %s", a.Kind)
}
