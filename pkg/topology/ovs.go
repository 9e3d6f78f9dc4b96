package topology

import (
	"github.com/digitalocean/go-openvswitch/ovs"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// SwitchRuntime runs emulated switches
type SwitchRuntime interface {
	// AddSwitch creates a learning switch named name
	AddSwitch(name string) error
	// DeleteSwitch deletes the switch named name
	DeleteSwitch(name string) error
	// AddPort attaches netdev port to switch name
	AddPort(name, port string) error
}

// NewOVSRuntime creates a new OVSRuntime
func NewOVSRuntime(log klog.Logger) *OVSRuntime {
	return &OVSRuntime{client: ovs.New(), log: log}
}

// OVSRuntime is a SwitchRuntime running switches as Open vSwitch bridges
type OVSRuntime struct {
	client *ovs.Client
	log    klog.Logger
}

// AddSwitch implements SwitchRuntime interface. the bridge forwards with the NORMAL action
func (o *OVSRuntime) AddSwitch(name string) error {
	o.log.V(2).Info("creating ovs bridge", "name", name)

	if err := o.client.VSwitch.AddBridge(name); err != nil {
		return errors.Wrapf(err, "failed to add bridge %s", name)
	}
	if err := o.client.VSwitch.SetFailMode(name, ovs.FailModeStandalone); err != nil {
		return errors.Wrapf(err, "failed to set fail mode of bridge %s", name)
	}
	if err := o.client.OpenFlow.AddFlow(name, &ovs.Flow{
		Priority: 0,
		Actions:  []ovs.Action{ovs.Normal()},
	}); err != nil {
		return errors.Wrapf(err, "failed to add normal flow to bridge %s", name)
	}
	return nil
}

// DeleteSwitch implements SwitchRuntime interface
func (o *OVSRuntime) DeleteSwitch(name string) error {
	o.log.V(2).Info("deleting ovs bridge", "name", name)
	return o.client.VSwitch.DeleteBridge(name)
}

// AddPort implements SwitchRuntime interface
func (o *OVSRuntime) AddPort(name, port string) error {
	o.log.V(4).Info("adding port to ovs bridge", "name", name, "port", port)
	return o.client.VSwitch.AddPort(name, port)
}
