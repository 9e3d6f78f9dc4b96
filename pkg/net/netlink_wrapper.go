package net

import (
	"github.com/vishvananda/netlink"
)

// NetlinkProvider is a wrapper interface over vishvananda/netlink lib
type NetlinkProvider interface {
	// LinkByName returns Link by netdev name
	LinkByName(name string) (netlink.Link, error)
	// LinkAdd adds a link
	LinkAdd(link netlink.Link) error
	// LinkDel deletes a link
	LinkDel(link netlink.Link) error
	// LinkSetUp sets link admin state up
	LinkSetUp(link netlink.Link) error
	// LinkSetNsFd moves link to the network namespace referred by fd
	LinkSetNsFd(link netlink.Link, fd int) error
	// LinkSetName renames link
	LinkSetName(link netlink.Link, name string) error
	// AddrAdd adds an address to link
	AddrAdd(link netlink.Link, addr *netlink.Addr) error

	// QdiscAdd adds qdisc
	QdiscAdd(qdisc netlink.Qdisc) error
	// QdiscReplace replaces qdisc
	QdiscReplace(qdisc netlink.Qdisc) error
	// QdiscDel deletes qdisc
	QdiscDel(qdisc netlink.Qdisc) error
	// QdiscList lists Qdiscs for link
	QdiscList(link netlink.Link) ([]netlink.Qdisc, error)

	// ClassAdd adds class
	ClassAdd(class netlink.Class) error
	// ClassList lists classes of link under parent
	ClassList(link netlink.Link, parent uint32) ([]netlink.Class, error)

	// FilterAdd adds filter
	FilterAdd(filter netlink.Filter) error
	// FilterList lists Filters
	FilterList(link netlink.Link, parent uint32) ([]netlink.Filter, error)
}

// NewNetlinkProviderImpl creates a new NetlinkProviderImpl
func NewNetlinkProviderImpl() *NetlinkProviderImpl {
	return &NetlinkProviderImpl{}
}

type NetlinkProviderImpl struct{}

// LinkByName implements NetlinkProvider interface
func (n NetlinkProviderImpl) LinkByName(name string) (netlink.Link, error) {
	return netlink.LinkByName(name)
}

// LinkAdd implements NetlinkProvider interface
func (n NetlinkProviderImpl) LinkAdd(link netlink.Link) error {
	return netlink.LinkAdd(link)
}

// LinkDel implements NetlinkProvider interface
func (n NetlinkProviderImpl) LinkDel(link netlink.Link) error {
	return netlink.LinkDel(link)
}

// LinkSetUp implements NetlinkProvider interface
func (n NetlinkProviderImpl) LinkSetUp(link netlink.Link) error {
	return netlink.LinkSetUp(link)
}

// LinkSetNsFd implements NetlinkProvider interface
func (n NetlinkProviderImpl) LinkSetNsFd(link netlink.Link, fd int) error {
	return netlink.LinkSetNsFd(link, fd)
}

// LinkSetName implements NetlinkProvider interface
func (n NetlinkProviderImpl) LinkSetName(link netlink.Link, name string) error {
	return netlink.LinkSetName(link, name)
}

// AddrAdd implements NetlinkProvider interface
func (n NetlinkProviderImpl) AddrAdd(link netlink.Link, addr *netlink.Addr) error {
	return netlink.AddrAdd(link, addr)
}

// QdiscAdd implements NetlinkProvider interface
func (n NetlinkProviderImpl) QdiscAdd(qdisc netlink.Qdisc) error {
	return netlink.QdiscAdd(qdisc)
}

// QdiscReplace implements NetlinkProvider interface
func (n NetlinkProviderImpl) QdiscReplace(qdisc netlink.Qdisc) error {
	return netlink.QdiscReplace(qdisc)
}

// QdiscDel implements NetlinkProvider interface
func (n NetlinkProviderImpl) QdiscDel(qdisc netlink.Qdisc) error {
	return netlink.QdiscDel(qdisc)
}

// QdiscList implements NetlinkProvider interface
func (n NetlinkProviderImpl) QdiscList(link netlink.Link) ([]netlink.Qdisc, error) {
	return netlink.QdiscList(link)
}

// ClassAdd implements NetlinkProvider interface
func (n NetlinkProviderImpl) ClassAdd(class netlink.Class) error {
	return netlink.ClassAdd(class)
}

// ClassList implements NetlinkProvider interface
func (n NetlinkProviderImpl) ClassList(link netlink.Link, parent uint32) ([]netlink.Class, error) {
	return netlink.ClassList(link, parent)
}

// FilterAdd implements NetlinkProvider interface
func (n NetlinkProviderImpl) FilterAdd(filter netlink.Filter) error {
	return netlink.FilterAdd(filter)
}

// FilterList implements NetlinkProvider interface
func (n NetlinkProviderImpl) FilterList(link netlink.Link, parent uint32) ([]netlink.Filter, error) {
	return netlink.FilterList(link, parent)
}
