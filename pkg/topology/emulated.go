package topology

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/containernetworking/plugins/pkg/ns"
	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"
	"k8s.io/utils/exec"

	qosnet "github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/net"
)

const (
	// LinkCapHandle is the handle of the root qdisc capping link bandwidth
	LinkCapHandle uint16 = 5

	linkMTU = 1500
	// link cap bucket size and queueing latency
	linkCapBurst     = 15000
	linkCapLatencyMs = 50
)

type node struct {
	name string
	kind NodeKind
	ip   string
	// next interface index
	nextIface int
	// ifaces maps peer to interface name
	ifaces map[string]string
	// netnsPath of a started host
	netnsPath string
}

// NewEmulatedProvider creates a new EmulatedProvider
func NewEmulatedProvider(hosts HostRuntime, switches SwitchRuntime, netlinkProvider qosnet.NetlinkProvider,
	executor exec.Interface, log klog.Logger) *EmulatedProvider {
	return &EmulatedProvider{
		hosts:           hosts,
		switches:        switches,
		netlinkProvider: netlinkProvider,
		executor:        executor,
		log:             log,
		nodes:           make(map[string]*node),
		withNetNS:       withNetNS,
	}
}

// EmulatedProvider is a Provider emulating hosts as containers, switches as OVS bridges and links as veth pairs.
// interfaces are named <node>-eth<n>, hosts count from 0 and switches from 1.
type EmulatedProvider struct {
	hosts           HostRuntime
	switches        SwitchRuntime
	netlinkProvider qosnet.NetlinkProvider
	executor        exec.Interface
	log             klog.Logger

	mu        sync.Mutex
	nodes     map[string]*node
	order     []string
	links     []Link
	started   bool
	startedSw []string
	startedH  []string
	// switch side interfaces living in the root namespace
	rootIfaces []string

	withNetNS func(path string, fn func(ns.NetNS) error) error
}

func withNetNS(path string, fn func(ns.NetNS) error) error {
	netns, err := ns.GetNS(path)
	if err != nil {
		return errors.Wrapf(err, "failed to get network namespace %s", path)
	}
	defer netns.Close()
	return fn(netns)
}

func (e *EmulatedProvider) addNode(id string, kind NodeKind, ip string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("topology already started")
	}
	if _, ok := e.nodes[id]; ok {
		return fmt.Errorf("node %s already exists", id)
	}
	n := &node{name: id, kind: kind, ip: ip, ifaces: make(map[string]string)}
	if kind == NodeKindSwitch {
		n.nextIface = 1
	}
	e.nodes[id] = n
	e.order = append(e.order, id)
	return nil
}

// CreateSwitch implements Provider interface
func (e *EmulatedProvider) CreateSwitch(id string) error {
	return e.addNode(id, NodeKindSwitch, "")
}

// CreateHost implements Provider interface
func (e *EmulatedProvider) CreateHost(id string, ip string) error {
	if _, _, err := net.ParseCIDR(ip); err != nil {
		return errors.Wrapf(err, "invalid ip for host %s", id)
	}
	return e.addNode(id, NodeKindHost, ip)
}

// AddLink implements Provider interface
func (e *EmulatedProvider) AddLink(a, b string, capacity uint64) (Link, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return Link{}, fmt.Errorf("topology already started")
	}
	nodeA, ok := e.nodes[a]
	if !ok {
		return Link{}, fmt.Errorf("unknown node %s", a)
	}
	nodeB, ok := e.nodes[b]
	if !ok {
		return Link{}, fmt.Errorf("unknown node %s", b)
	}
	if _, ok := nodeA.ifaces[b]; ok {
		return Link{}, fmt.Errorf("link %s <-> %s already exists", a, b)
	}

	link := Link{A: a, B: b, AIface: nodeA.allocIface(), BIface: nodeB.allocIface(), Capacity: capacity}
	nodeA.ifaces[b] = link.AIface
	nodeB.ifaces[a] = link.BIface
	e.links = append(e.links, link)
	return link, nil
}

func (n *node) allocIface() string {
	name := fmt.Sprintf("%s-eth%d", n.name, n.nextIface)
	n.nextIface++
	return name
}

// InterfaceName implements Provider interface
func (e *EmulatedProvider) InterfaceName(nodeName, peer string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.nodes[nodeName]
	if !ok {
		return "", fmt.Errorf("unknown node %s", nodeName)
	}
	iface, ok := n.ifaces[peer]
	if !ok {
		return "", fmt.Errorf("no link between %s and %s", nodeName, peer)
	}
	return iface, nil
}

// Start implements Provider interface
func (e *EmulatedProvider) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}
	e.started = true

	for _, name := range e.order {
		n := e.nodes[name]
		switch n.kind {
		case NodeKindSwitch:
			if err := e.switches.AddSwitch(name); err != nil {
				return errors.Wrapf(err, "failed to start switch %s", name)
			}
			e.startedSw = append(e.startedSw, name)
		case NodeKindHost:
			netnsPath, err := e.hosts.CreateHost(ctx, name)
			if err != nil {
				return errors.Wrapf(err, "failed to start host %s", name)
			}
			n.netnsPath = netnsPath
			e.startedH = append(e.startedH, name)
		}
	}

	for _, l := range e.links {
		if err := e.startLink(l); err != nil {
			return errors.Wrapf(err, "failed to start link %s <-> %s", l.A, l.B)
		}
	}

	e.log.Info("topology started", "switches", len(e.startedSw), "hosts", len(e.startedH), "links", len(e.links))
	return nil
}

func (e *EmulatedProvider) startLink(l Link) error {
	e.log.V(2).Info("creating link", "a", l.AIface, "b", l.BIface, "capacity", l.Capacity)

	veth := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{Name: l.AIface, MTU: linkMTU},
		PeerName:  l.BIface,
	}
	if err := e.netlinkProvider.LinkAdd(veth); err != nil {
		return errors.Wrap(err, "failed to add veth pair")
	}

	if err := e.attach(e.nodes[l.A], l.AIface, l.Capacity); err != nil {
		return err
	}
	return e.attach(e.nodes[l.B], l.BIface, l.Capacity)
}

// attach connects the iface end of a link to n
func (e *EmulatedProvider) attach(n *node, iface string, capacity uint64) error {
	lnk, err := e.netlinkProvider.LinkByName(iface)
	if err != nil {
		return errors.Wrapf(err, "failed to get link %s", iface)
	}

	if n.kind == NodeKindSwitch {
		e.rootIfaces = append(e.rootIfaces, iface)
		if err := e.switches.AddPort(n.name, iface); err != nil {
			return errors.Wrapf(err, "failed to add %s to switch %s", iface, n.name)
		}
		if err := e.netlinkProvider.LinkSetUp(lnk); err != nil {
			return errors.Wrapf(err, "failed to set %s up", iface)
		}
		return e.capLink(lnk, capacity)
	}

	return e.withNetNS(n.netnsPath, func(netns ns.NetNS) error {
		if err := e.netlinkProvider.LinkSetNsFd(lnk, int(netns.Fd())); err != nil {
			return errors.Wrapf(err, "failed to move %s to host %s", iface, n.name)
		}
		return netns.Do(func(_ ns.NetNS) error {
			hostLink, err := e.netlinkProvider.LinkByName(iface)
			if err != nil {
				return errors.Wrapf(err, "failed to get link %s in host %s", iface, n.name)
			}
			// the first interface of a host carries its address
			if iface == n.name+"-eth0" {
				addr, err := netlink.ParseAddr(n.ip)
				if err != nil {
					return errors.Wrapf(err, "failed to parse address of host %s", n.name)
				}
				if err := e.netlinkProvider.AddrAdd(hostLink, addr); err != nil {
					return errors.Wrapf(err, "failed to add address to %s", iface)
				}
			}
			if err := e.netlinkProvider.LinkSetUp(hostLink); err != nil {
				return errors.Wrapf(err, "failed to set %s up", iface)
			}
			return e.capLink(hostLink, capacity)
		})
	})
}

// capLink installs a tbf root qdisc limiting lnk egress to capacity bits per second
func (e *EmulatedProvider) capLink(lnk netlink.Link, capacity uint64) error {
	if capacity == 0 {
		return nil
	}
	rate := capacity / 8
	tbf := &netlink.Tbf{
		QdiscAttrs: netlink.QdiscAttrs{
			LinkIndex: lnk.Attrs().Index,
			Handle:    netlink.MakeHandle(LinkCapHandle, 0),
			Parent:    netlink.HANDLE_ROOT,
		},
		Rate:   rate,
		Buffer: netlink.Xmittime(rate, linkCapBurst),
		Limit:  uint32(rate*linkCapLatencyMs/1000) + linkCapBurst,
	}
	if err := e.netlinkProvider.QdiscReplace(tbf); err != nil {
		return errors.Wrapf(err, "failed to cap %s", lnk.Attrs().Name)
	}
	return nil
}

// Stop implements Provider interface
func (e *EmulatedProvider) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	// host ends go away with their namespace, deleting the switch end removes the pair
	for _, iface := range e.rootIfaces {
		lnk, err := e.netlinkProvider.LinkByName(iface)
		if err != nil {
			continue
		}
		if err := e.netlinkProvider.LinkDel(lnk); err != nil {
			errs = append(errs, errors.Wrapf(err, "failed to delete link %s", iface))
		}
	}
	for _, h := range e.startedH {
		if err := e.hosts.RemoveHost(ctx, h); err != nil {
			errs = append(errs, errors.Wrapf(err, "failed to remove host %s", h))
		}
	}
	for _, s := range e.startedSw {
		if err := e.switches.DeleteSwitch(s); err != nil {
			errs = append(errs, errors.Wrapf(err, "failed to delete switch %s", s))
		}
	}

	e.rootIfaces = nil
	e.startedH = nil
	e.startedSw = nil
	e.log.Info("topology stopped", "errors", len(errs))
	return utilerrors.NewAggregate(errs)
}

// RunCommand implements Provider interface. commands on switches run on the local machine
func (e *EmulatedProvider) RunCommand(ctx context.Context, nodeName, cmd string, stdout io.Writer) (Process, error) {
	e.mu.Lock()
	n, ok := e.nodes[nodeName]
	started := e.started
	e.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unknown node %s", nodeName)
	}
	if !started {
		return nil, fmt.Errorf("topology not started")
	}

	if n.kind == NodeKindSwitch {
		return StartLocalCommand(ctx, e.executor, cmd, stdout, e.log.WithValues("node", nodeName))
	}
	return e.hosts.Exec(ctx, nodeName, []string{"sh", "-c", cmd}, stdout)
}
