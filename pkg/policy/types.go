package policy

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

const (
	Kbit Rate = 1000
	Mbit      = 1000 * Kbit
	Gbit      = 1000 * Mbit

	ProtocolAny  Protocol = ""
	ProtocolTCP  Protocol = "tcp"
	ProtocolUDP  Protocol = "udp"
	ProtocolICMP Protocol = "icmp"

	// ClassifierU32 realizes rules as u32 filters, matching the semantics of `tc ... u32 match ip ...`
	ClassifierU32 Classifier = "u32"
	// ClassifierFlower realizes rules as flower filters, port matches then require a Protocol
	ClassifierFlower Classifier = "flower"

	// MaxPriority is the lowest priority tier (HTB supports 0-7)
	MaxPriority = 7
)

// Rate is a bitrate in bits per second
type Rate uint64

// String returns the rate in tc notation e.g 6Mbit
func (r Rate) String() string {
	switch {
	case r == 0:
		return "0bit"
	case r%Gbit == 0:
		return strconv.FormatUint(uint64(r/Gbit), 10) + "Gbit"
	case r%Mbit == 0:
		return strconv.FormatUint(uint64(r/Mbit), 10) + "Mbit"
	case r%Kbit == 0:
		return strconv.FormatUint(uint64(r/Kbit), 10) + "Kbit"
	}
	return strconv.FormatUint(uint64(r), 10) + "bit"
}

// Protocol is the IP protocol a MatchPredicate matches on
type Protocol string

// Classifier is the filter scheme used to realize ClassifierRules
type Classifier string

// BandwidthClass is a node in the bandwidth allocation tree
type BandwidthClass struct {
	// ID identifies the class within a policy
	ID string
	// ParentID is the ID of the parent class, empty for classes attached directly to the root
	ParentID string
	// Guaranteed is the rate this class is guaranteed
	Guaranteed Rate
	// Ceiling is the maximum rate this class may reach by borrowing from its parent
	Ceiling Rate
	// Priority among contending classes, lower is served first
	Priority uint8
}

// MatchPredicate selects IPv4 packets. zero valued fields are wildcards
type MatchPredicate struct {
	Protocol Protocol
	SrcIP    *net.IPNet
	DstIP    *net.IPNet
	SrcPort  uint16
	DstPort  uint16
}

// IsEmpty returns true if the predicate matches all IPv4 traffic
func (m MatchPredicate) IsEmpty() bool {
	return m.Protocol == ProtocolAny && m.SrcIP == nil && m.DstIP == nil && m.SrcPort == 0 && m.DstPort == 0
}

// HasPorts returns true if the predicate matches on a transport port
func (m MatchPredicate) HasPorts() bool {
	return m.SrcPort != 0 || m.DstPort != 0
}

// Equals returns true if both predicates select the same packets
func (m MatchPredicate) Equals(other MatchPredicate) bool {
	return m.Protocol == other.Protocol &&
		ipNetEqual(m.SrcIP, other.SrcIP) && ipNetEqual(m.DstIP, other.DstIP) &&
		m.SrcPort == other.SrcPort && m.DstPort == other.DstPort
}

// String returns a human readable representation of the predicate
func (m MatchPredicate) String() string {
	if m.IsEmpty() {
		return "all"
	}
	parts := []string{}
	if m.Protocol != ProtocolAny {
		parts = append(parts, "proto="+string(m.Protocol))
	}
	if m.SrcIP != nil {
		parts = append(parts, "src="+m.SrcIP.String())
	}
	if m.DstIP != nil {
		parts = append(parts, "dst="+m.DstIP.String())
	}
	if m.SrcPort != 0 {
		parts = append(parts, fmt.Sprintf("sport=%d", m.SrcPort))
	}
	if m.DstPort != 0 {
		parts = append(parts, fmt.Sprintf("dport=%d", m.DstPort))
	}
	return strings.Join(parts, ",")
}

func ipNetEqual(a, b *net.IPNet) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}

// Police drops traffic matched by a rule which exceeds Rate
type Police struct {
	Rate  Rate
	Burst uint32
}

// ClassifierRule maps a MatchPredicate to a BandwidthClass
type ClassifierRule struct {
	// Name is informational
	Name string
	// Match is the rule predicate, ignored for the default rule
	Match MatchPredicate
	// TargetClassID is the ID of the class matched traffic is assigned to
	TargetClassID string
	// Order is the evaluation order of the rule, lower is evaluated first. ignored for the default rule
	Order uint16
	// Default marks the rule which catches otherwise unmatched traffic
	Default bool
	// Police is an optional rate limit applied to matched traffic
	Police *Police
}

// QoSPolicy is a hierarchical bandwidth allocation for a single egress interface
type QoSPolicy struct {
	// Interface is the egress netdev the policy applies to
	Interface string
	// RootCapacity is the capacity of the link, root level classes share it
	RootCapacity Rate
	// Classifier is the filter scheme, defaults to ClassifierU32
	Classifier Classifier
	// Classes is the class tree
	Classes []BandwidthClass
	// Rules are the classifier rules, in declaration order
	Rules []ClassifierRule
}

// ClassifierOrDefault returns the policy classifier, ClassifierU32 if unset
func (p *QoSPolicy) ClassifierOrDefault() Classifier {
	if p.Classifier == "" {
		return ClassifierU32
	}
	return p.Classifier
}

// Class returns the class identified by id
func (p *QoSPolicy) Class(id string) (BandwidthClass, bool) {
	for _, c := range p.Classes {
		if c.ID == id {
			return c, true
		}
	}
	return BandwidthClass{}, false
}

// Children returns the direct children of the class identified by id in declaration order,
// an empty id returns the root level classes
func (p *QoSPolicy) Children(id string) []BandwidthClass {
	children := make([]BandwidthClass, 0)
	for _, c := range p.Classes {
		if c.ParentID == id {
			children = append(children, c)
		}
	}
	return children
}

// IsLeaf returns true if no class has id as parent
func (p *QoSPolicy) IsLeaf(id string) bool {
	return len(p.Children(id)) == 0
}

// DefaultRule returns the first rule marked as default or nil
func (p *QoSPolicy) DefaultRule() *ClassifierRule {
	for i := range p.Rules {
		if p.Rules[i].Default {
			return &p.Rules[i]
		}
	}
	return nil
}

// TopologicalOrder returns classes ordered parent before child, siblings keep declaration order.
// classes unreachable from the root (orphans, cycles) are omitted.
func (p *QoSPolicy) TopologicalOrder() []BandwidthClass {
	ordered := make([]BandwidthClass, 0, len(p.Classes))
	queue := p.Children("")
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		ordered = append(ordered, c)
		queue = append(queue, p.Children(c.ID)...)
	}
	return ordered
}

// OrderedRules returns the non default rules sorted by ascending evaluation order
func (p *QoSPolicy) OrderedRules() []ClassifierRule {
	rules := make([]ClassifierRule, 0, len(p.Rules))
	for _, r := range p.Rules {
		if !r.Default {
			rules = append(rules, r)
		}
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Order < rules[j].Order
	})
	return rules
}
