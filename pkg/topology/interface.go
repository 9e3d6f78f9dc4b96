package topology

import (
	"context"
	"io"
)

// NodeKind is the kind of an emulated node
type NodeKind string

const (
	NodeKindSwitch NodeKind = "switch"
	NodeKindHost   NodeKind = "host"
)

// Link is a bandwidth capped point to point link between two nodes
type Link struct {
	A      string
	B      string
	AIface string
	BIface string
	// Capacity in bits per second, 0 means uncapped
	Capacity uint64
}

// Provider instantiates an emulated network and runs commands on its nodes.
// Nodes and links are declared first and materialized by Start.
type Provider interface {
	// CreateSwitch declares a switch
	CreateSwitch(id string) error
	// CreateHost declares a host, ip is in CIDR notation
	CreateHost(id string, ip string) error
	// AddLink declares a link between a and b, capacity in bits per second
	AddLink(a, b string, capacity uint64) (Link, error)
	// Start materializes declared nodes and links
	Start(ctx context.Context) error
	// Stop releases everything Start created
	Stop(ctx context.Context) error
	// RunCommand starts cmd on node without waiting for it, stdout and stderr are written to stdout
	RunCommand(ctx context.Context, node, cmd string, stdout io.Writer) (Process, error)
	// InterfaceName returns the name of the interface of node facing peer
	InterfaceName(node, peer string) (string, error)
}

// Process is a command running on a node
type Process interface {
	// Wait blocks until the process exits and returns its exit error
	Wait() error
	// Done is closed once the process exits
	Done() <-chan struct{}
	// Terminate stops the process. terminating an exited process is a no-op
	Terminate() error
}
