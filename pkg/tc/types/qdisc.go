package types

import (
	"strconv"
)

const (
	QDiscHTBType QDiscType = "htb"
	QDiscTBFType QDiscType = "tbf"
)

// QDiscType is the type of qdisc
type QDiscType string

// QDiscAttrs holds QDisc object attributes
type QDiscAttrs struct {
	Parent *uint32
	Handle *uint32
}

// NewQDiscAttrs creates new QDiscAttrs instance
func NewQDiscAttrs(parent, handle *uint32) *QDiscAttrs {
	return &QDiscAttrs{
		Parent: parent,
		Handle: handle,
	}
}

// IsRoot returns true if qdisc is attached at the root of the netdev
func (qa *QDiscAttrs) IsRoot() bool {
	return qa.Parent == nil || *qa.Parent == HandleRoot
}

// GenCmdLineArgs implements CmdLineGenerator interface, it generates parent and handle args. a nil
// Parent is treated as root.
func (qa *QDiscAttrs) GenCmdLineArgs() []string {
	args := []string{}
	if qa.IsRoot() {
		args = append(args, "root")
	} else {
		args = append(args, "parent", FormatHandle(*qa.Parent))
	}
	if qa.Handle != nil && *qa.Handle != HandleNone {
		args = append(args, "handle", FormatHandle(*qa.Handle))
	}
	return args
}

// QDisc is an interface which represents a TC qdisc object
type QDisc interface {
	// Attrs returns QDiscAttrs for a qdisc
	Attrs() *QDiscAttrs
	// Type returns the QDisc type
	Type() QDiscType

	// Driver Specific related Interfaces
	CmdLineGenerator
}

// GenericQDisc is a generic qdisc of an arbitrary type
type GenericQDisc struct {
	QDiscAttrs
	QdiscType QDiscType
}

// Attrs implements QDisc interface
func (g *GenericQDisc) Attrs() *QDiscAttrs {
	return &g.QDiscAttrs
}

// Type implements QDisc interface
func (g *GenericQDisc) Type() QDiscType {
	return g.QdiscType
}

// GenCmdLineArgs implements CmdLineGenerator interface
func (g *GenericQDisc) GenCmdLineArgs() []string {
	return append(g.QDiscAttrs.GenCmdLineArgs(), string(g.QdiscType))
}

// NewGenericQdisc creates a new Generic QDisc object
func NewGenericQdisc(qDiscAttrs *QDiscAttrs, qType QDiscType) *GenericQDisc {
	return &GenericQDisc{
		QDiscAttrs: *qDiscAttrs,
		QdiscType:  qType,
	}
}

// HTBQDisc is a hierarchical token bucket qdisc
type HTBQDisc struct {
	QDiscAttrs
	// DefaultClass is the minor of the class receiving unclassified traffic
	DefaultClass uint16
	// R2Q is the rate to quantum divisor, kernel default if nil
	R2Q *uint32
}

// Attrs implements QDisc interface
func (h *HTBQDisc) Attrs() *QDiscAttrs {
	return &h.QDiscAttrs
}

// Type implements QDisc interface
func (h *HTBQDisc) Type() QDiscType {
	return QDiscHTBType
}

// GenCmdLineArgs implements CmdLineGenerator interface
func (h *HTBQDisc) GenCmdLineArgs() []string {
	args := append(h.QDiscAttrs.GenCmdLineArgs(), string(QDiscHTBType),
		"default", strconv.FormatUint(uint64(h.DefaultClass), 16))
	if h.R2Q != nil {
		args = append(args, "r2q", strconv.FormatUint(uint64(*h.R2Q), 10))
	}
	return args
}

// Builders

// NewQDiscAttrsBuilder returns a new QDiscAttrsBuilder
func NewQDiscAttrsBuilder() *QDiscAttrsBuilder {
	return &QDiscAttrsBuilder{}
}

// QDiscAttrsBuilder is a QDiscAttrs builder
type QDiscAttrsBuilder struct {
	qDiscAttrs QDiscAttrs
}

// WithParent adds Parent to QDiscAttrsBuilder
func (qb *QDiscAttrsBuilder) WithParent(p uint32) *QDiscAttrsBuilder {
	qb.qDiscAttrs.Parent = &p
	return qb
}

// WithHandle adds Handle to QDiscAttrsBuilder
func (qb *QDiscAttrsBuilder) WithHandle(h uint32) *QDiscAttrsBuilder {
	qb.qDiscAttrs.Handle = &h
	return qb
}

// Build builds and returns a new QDiscAttrs instance
// Note: calling Build() multiple times will not return a completely
// new object on each call. that is, pointer/slice/map types will not be deep copied.
// to create several objects, different builders should be used.
func (qb *QDiscAttrsBuilder) Build() *QDiscAttrs {
	return NewQDiscAttrs(qb.qDiscAttrs.Parent, qb.qDiscAttrs.Handle)
}

// NewHTBQDiscBuilder returns a new HTBQDiscBuilder for a root qdisc
func NewHTBQDiscBuilder() *HTBQDiscBuilder {
	return &HTBQDiscBuilder{qDiscAttrsBuilder: NewQDiscAttrsBuilder().WithParent(HandleRoot)}
}

// HTBQDiscBuilder is an HTBQDisc builder
type HTBQDiscBuilder struct {
	qDiscAttrsBuilder *QDiscAttrsBuilder
	defaultClass      uint16
	r2q               *uint32
}

// WithParent adds Parent to HTBQDiscBuilder
func (hb *HTBQDiscBuilder) WithParent(p uint32) *HTBQDiscBuilder {
	hb.qDiscAttrsBuilder.WithParent(p)
	return hb
}

// WithHandle adds Handle to HTBQDiscBuilder
func (hb *HTBQDiscBuilder) WithHandle(h uint32) *HTBQDiscBuilder {
	hb.qDiscAttrsBuilder.WithHandle(h)
	return hb
}

// WithDefaultClass adds the default class minor to HTBQDiscBuilder
func (hb *HTBQDiscBuilder) WithDefaultClass(minor uint16) *HTBQDiscBuilder {
	hb.defaultClass = minor
	return hb
}

// WithR2Q adds r2q to HTBQDiscBuilder
func (hb *HTBQDiscBuilder) WithR2Q(r2q uint32) *HTBQDiscBuilder {
	hb.r2q = &r2q
	return hb
}

// Build builds and returns a new HTBQDisc instance
func (hb *HTBQDiscBuilder) Build() *HTBQDisc {
	return &HTBQDisc{
		QDiscAttrs:   *hb.qDiscAttrsBuilder.Build(),
		DefaultClass: hb.defaultClass,
		R2Q:          hb.r2q,
	}
}
