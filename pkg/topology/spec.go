package topology

import (
	"context"

	"github.com/pkg/errors"
)

// Spec declares an emulated network
type Spec struct {
	Switches []string
	Hosts    []HostSpec
	Links    []LinkSpec
}

// HostSpec declares a host
type HostSpec struct {
	Name string
	// IP in CIDR notation
	IP string
}

// LinkSpec declares a link, Capacity is in bits per second
type LinkSpec struct {
	A        string
	B        string
	Capacity uint64
}

// Build declares spec on provider and starts it
func Build(ctx context.Context, provider Provider, spec Spec) ([]Link, error) {
	for _, s := range spec.Switches {
		if err := provider.CreateSwitch(s); err != nil {
			return nil, errors.Wrapf(err, "failed to create switch %s", s)
		}
	}
	for _, h := range spec.Hosts {
		if err := provider.CreateHost(h.Name, h.IP); err != nil {
			return nil, errors.Wrapf(err, "failed to create host %s", h.Name)
		}
	}

	links := make([]Link, 0, len(spec.Links))
	for _, l := range spec.Links {
		link, err := provider.AddLink(l.A, l.B, l.Capacity)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to add link %s <-> %s", l.A, l.B)
		}
		links = append(links, link)
	}

	if err := provider.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to start topology")
	}
	return links, nil
}
