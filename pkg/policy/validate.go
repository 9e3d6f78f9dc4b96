package policy

import (
	"github.com/pkg/errors"
)

// Validate checks the policy invariants. It returns an error wrapping ErrPolicyInvalid for a malformed
// class tree or rule set and ErrRuleConflict for colliding rule evaluation orders.
func (p *QoSPolicy) Validate() error {
	if p.Interface == "" {
		return invalidf("interface not specified")
	}
	if p.RootCapacity == 0 {
		return invalidf("root capacity must be greater than zero")
	}
	switch p.ClassifierOrDefault() {
	case ClassifierU32, ClassifierFlower:
	default:
		return invalidf("unknown classifier %q", p.Classifier)
	}

	if err := p.validateClasses(); err != nil {
		return err
	}
	if err := p.validateTree(); err != nil {
		return err
	}
	return p.validateRules()
}

func (p *QoSPolicy) validateClasses() error {
	if len(p.Classes) == 0 {
		return invalidf("no classes defined")
	}
	seen := make(map[string]struct{}, len(p.Classes))
	for _, c := range p.Classes {
		if c.ID == "" {
			return invalidf("class with empty id")
		}
		if _, ok := seen[c.ID]; ok {
			return invalidf("duplicate class %q", c.ID)
		}
		seen[c.ID] = struct{}{}

		if c.Ceiling == 0 {
			return invalidf("class %q: ceiling rate must be greater than zero", c.ID)
		}
		if c.Guaranteed == 0 {
			return invalidf("class %q: guaranteed rate must be greater than zero", c.ID)
		}
		if c.Guaranteed > c.Ceiling {
			return invalidf("class %q: guaranteed rate %s exceeds ceiling rate %s", c.ID, c.Guaranteed, c.Ceiling)
		}
		if c.Priority > MaxPriority {
			return invalidf("class %q: priority %d out of range [0-%d]", c.ID, c.Priority, MaxPriority)
		}
	}
	return nil
}

func (p *QoSPolicy) validateTree() error {
	// orphans
	for _, c := range p.Classes {
		if c.ParentID == "" {
			continue
		}
		if _, ok := p.Class(c.ParentID); !ok {
			return invalidf("class %q: orphaned, parent %q does not exist", c.ID, c.ParentID)
		}
	}

	// cycles, every chain of parents must end at the root within len(classes) steps
	for _, c := range p.Classes {
		cur := c
		for steps := 0; cur.ParentID != ""; steps++ {
			if steps >= len(p.Classes) || cur.ParentID == c.ID {
				return invalidf("class %q: cycle in class tree", c.ID)
			}
			cur, _ = p.Class(cur.ParentID)
		}
	}

	// overcommitted guarantees
	var rootSum Rate
	for _, c := range p.Children("") {
		rootSum += c.Guaranteed
	}
	if rootSum > p.RootCapacity {
		return invalidf("root level classes guarantee %s which exceeds root capacity %s", rootSum, p.RootCapacity)
	}
	for _, parent := range p.Classes {
		var sum Rate
		for _, c := range p.Children(parent.ID) {
			sum += c.Guaranteed
		}
		if sum > parent.Guaranteed {
			return invalidf("children of class %q guarantee %s which exceeds its guaranteed rate %s",
				parent.ID, sum, parent.Guaranteed)
		}
	}
	return nil
}

func (p *QoSPolicy) validateRules() error {
	defaults := 0
	for _, r := range p.Rules {
		if r.Default {
			defaults++
		}
		if _, ok := p.Class(r.TargetClassID); !ok {
			return invalidf("rule %q: target class %q does not exist", r.Name, r.TargetClassID)
		}
		if r.Police != nil && (r.Police.Rate == 0 || r.Police.Burst == 0) {
			return invalidf("rule %q: police rate and burst must be greater than zero", r.Name)
		}
	}
	switch {
	case defaults == 0:
		return invalidf("no default rule")
	case defaults > 1:
		return invalidf("%d default rules, exactly one is allowed", defaults)
	}
	if def := p.DefaultRule(); !p.IsLeaf(def.TargetClassID) {
		return invalidf("default class %q is not a leaf class", def.TargetClassID)
	}

	orders := make(map[uint16]string)
	for _, r := range p.Rules {
		if r.Default {
			continue
		}
		if r.Order == 0 {
			return invalidf("rule %q: evaluation order must be greater than zero", r.Name)
		}
		if p.ClassifierOrDefault() == ClassifierFlower && r.Match.HasPorts() &&
			r.Match.Protocol != ProtocolTCP && r.Match.Protocol != ProtocolUDP {
			return invalidf("rule %q: flower port match requires tcp or udp protocol", r.Name)
		}
		if other, ok := orders[r.Order]; ok {
			return errors.Wrapf(ErrRuleConflict, "rules %q and %q share evaluation order %d", other, r.Name, r.Order)
		}
		orders[r.Order] = r.Name
	}
	return nil
}
