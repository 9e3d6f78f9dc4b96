package config

import (
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Experiment is the declarative description of a contention experiment run
type Experiment struct {
	Name          string          `json:"name"`
	Topology      TopologySpec    `json:"topology"`
	Policy        PolicySpec      `json:"policy"`
	Tasks         []TaskSpec      `json:"tasks"`
	Monitor       MonitorSpec     `json:"monitor"`
	TotalDuration metav1.Duration `json:"totalDuration"`
}

// TopologySpec describes the emulated network
type TopologySpec struct {
	Switches []string   `json:"switches"`
	Hosts    []HostSpec `json:"hosts"`
	// Links are created in order, interface names are derived from it (<node>-eth<n>)
	Links []LinkSpec `json:"links"`
	// Image is the container image used for hosts
	Image string `json:"image,omitempty"`
	// SharedDir is a host directory mounted in all hosts at the same path
	SharedDir string `json:"sharedDir,omitempty"`
}

// HostSpec describes an emulated host
type HostSpec struct {
	Name string `json:"name"`
	// IP in CIDR notation
	IP string `json:"ip"`
}

// LinkSpec describes a bandwidth capped link between two nodes
type LinkSpec struct {
	A        string            `json:"a"`
	B        string            `json:"b"`
	Capacity resource.Quantity `json:"capacity"`
}

// PolicySpec describes the QoS policy applied to the shared link
type PolicySpec struct {
	// Node is the node owning Interface
	Node         string            `json:"node"`
	Interface    string            `json:"interface"`
	RootCapacity resource.Quantity `json:"rootCapacity"`
	// Classifier is either u32 (default) or flower
	Classifier string      `json:"classifier,omitempty"`
	Classes    []ClassSpec `json:"classes"`
	Rules      []RuleSpec  `json:"rules"`
}

// ClassSpec describes a bandwidth class
type ClassSpec struct {
	ID         string            `json:"id"`
	Parent     string            `json:"parent,omitempty"`
	Guaranteed resource.Quantity `json:"guaranteed"`
	Ceiling    resource.Quantity `json:"ceiling"`
	Priority   uint8             `json:"priority"`
}

// RuleSpec describes a classifier rule
type RuleSpec struct {
	Name    string      `json:"name,omitempty"`
	Match   MatchSpec   `json:"match,omitempty"`
	Target  string      `json:"target"`
	Order   uint16      `json:"order,omitempty"`
	Default bool        `json:"default,omitempty"`
	Police  *PoliceSpec `json:"police,omitempty"`
}

// MatchSpec describes a rule predicate
type MatchSpec struct {
	Protocol string `json:"protocol,omitempty"`
	SrcIP    string `json:"srcIP,omitempty"`
	DstIP    string `json:"dstIP,omitempty"`
	SrcPort  uint16 `json:"srcPort,omitempty"`
	DstPort  uint16 `json:"dstPort,omitempty"`
}

// PoliceSpec describes a rule rate limit
type PoliceSpec struct {
	Rate  resource.Quantity `json:"rate"`
	Burst resource.Quantity `json:"burst"`
}

// TaskSpec describes a traffic task
type TaskSpec struct {
	Name        string          `json:"name"`
	Node        string          `json:"node"`
	Command     string          `json:"command"`
	StartOffset metav1.Duration `json:"startOffset"`
	// BlockingDuration unset means a background task
	BlockingDuration *metav1.Duration `json:"blockingDuration,omitempty"`
	Output           string           `json:"output,omitempty"`
	// Phase is either warmup (default) or contention
	Phase string `json:"phase,omitempty"`
}

// MonitorSpec describes the link monitor
type MonitorSpec struct {
	Node        string          `json:"node"`
	Interface   string          `json:"interface"`
	Interval    metav1.Duration `json:"interval"`
	StartOffset metav1.Duration `json:"startOffset"`
	Output      string          `json:"output,omitempty"`
	// Command overrides the sampler command line of the command monitor
	Command string `json:"command,omitempty"`
}
