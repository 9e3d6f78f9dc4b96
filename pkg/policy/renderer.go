package policy

import (
	"net"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/klog/v2"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/config"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/utils"
)

// Renderer renders a QoSPolicy from its declarative form
type Renderer interface {
	// Render converts spec to a QoSPolicy. The returned policy is not validated.
	Render(spec *config.PolicySpec) (*QoSPolicy, error)
}

// NewRendererImpl creates a new instance of Renderer implementation
func NewRendererImpl(log klog.Logger) *RendererImpl {
	return &RendererImpl{log: log}
}

// RendererImpl implements Renderer Interface
type RendererImpl struct {
	log klog.Logger
}

// Render implements Renderer Interface
func (r *RendererImpl) Render(spec *config.PolicySpec) (*QoSPolicy, error) {
	r.log.V(5).Info("Rendering policy", "interface", spec.Interface)

	rootCapacity, err := quantityToRate(spec.RootCapacity)
	if err != nil {
		return nil, invalidf("rootCapacity: %v", err)
	}

	p := &QoSPolicy{
		Interface:    spec.Interface,
		RootCapacity: rootCapacity,
		Classifier:   Classifier(strings.ToLower(spec.Classifier)),
		Classes:      make([]BandwidthClass, 0, len(spec.Classes)),
		Rules:        make([]ClassifierRule, 0, len(spec.Rules)),
	}

	for _, cs := range spec.Classes {
		guaranteed, err := quantityToRate(cs.Guaranteed)
		if err != nil {
			return nil, invalidf("class %q guaranteed: %v", cs.ID, err)
		}
		ceiling, err := quantityToRate(cs.Ceiling)
		if err != nil {
			return nil, invalidf("class %q ceiling: %v", cs.ID, err)
		}
		p.Classes = append(p.Classes, BandwidthClass{
			ID:         cs.ID,
			ParentID:   cs.Parent,
			Guaranteed: guaranteed,
			Ceiling:    ceiling,
			Priority:   cs.Priority,
		})
	}

	for _, rs := range spec.Rules {
		rule, err := r.renderRule(rs)
		if err != nil {
			return nil, err
		}
		p.Rules = append(p.Rules, rule)
	}

	r.log.V(5).Info("Rendered policy", "classes", len(p.Classes), "rules", len(p.Rules))
	return p, nil
}

func (r *RendererImpl) renderRule(rs config.RuleSpec) (ClassifierRule, error) {
	rule := ClassifierRule{
		Name:          rs.Name,
		TargetClassID: rs.Target,
		Order:         rs.Order,
		Default:       rs.Default,
	}

	proto := Protocol(strings.ToLower(rs.Match.Protocol))
	switch proto {
	case ProtocolAny, ProtocolTCP, ProtocolUDP, ProtocolICMP:
		rule.Match.Protocol = proto
	default:
		return rule, invalidf("rule %q: unsupported protocol %q", rs.Name, rs.Match.Protocol)
	}

	var err error
	if rule.Match.SrcIP, err = parseIPv4Net(rs.Match.SrcIP); err != nil {
		return rule, invalidf("rule %q srcIP: %v", rs.Name, err)
	}
	if rule.Match.DstIP, err = parseIPv4Net(rs.Match.DstIP); err != nil {
		return rule, invalidf("rule %q dstIP: %v", rs.Name, err)
	}
	rule.Match.SrcPort = rs.Match.SrcPort
	rule.Match.DstPort = rs.Match.DstPort

	if rs.Police != nil {
		rate, err := quantityToRate(rs.Police.Rate)
		if err != nil {
			return rule, invalidf("rule %q police rate: %v", rs.Name, err)
		}
		rule.Police = &Police{Rate: rate, Burst: uint32(rs.Police.Burst.Value())}
	}
	return rule, nil
}

// parseIPv4Net parses an IPv4 address or CIDR, empty string yields nil
func parseIPv4Net(s string) (*net.IPNet, error) {
	if s == "" {
		return nil, nil
	}
	ipn, err := utils.IPToIPNet(s)
	if err != nil {
		return nil, err
	}
	if !utils.IsIPv4(ipn.IP) {
		return nil, invalidf("%s is not an IPv4 address", s)
	}
	return ipn, nil
}

// quantityToRate interprets q as bits per second
func quantityToRate(q resource.Quantity) (Rate, error) {
	if q.Sign() < 0 {
		return 0, invalidf("negative rate %s", q.String())
	}
	return Rate(q.Value()), nil
}
