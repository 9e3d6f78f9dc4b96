package types

import (
	"strconv"
)

const (
	ClassHTBType ClassType = "htb"
)

// ClassType is the type of a tc class
type ClassType string

// Class is an interface which represents a TC class object
type Class interface {
	// Attrs returns ClassAttrs for a class
	Attrs() *ClassAttrs
	// Type returns the class type
	Type() ClassType
	// Equals compares this Class with other, returns true if they are equal or false otherwise
	Equals(other Class) bool

	// Driver Specific related Interfaces
	CmdLineGenerator
}

// ClassAttrs holds Class object attributes
type ClassAttrs struct {
	Parent  uint32
	ClassID uint32
}

// GenCmdLineArgs implements CmdLineGenerator interface
func (ca *ClassAttrs) GenCmdLineArgs() []string {
	return []string{"parent", FormatHandle(ca.Parent), "classid", FormatHandle(ca.ClassID)}
}

// HTBClass is an htb class, rates are in bits per second
type HTBClass struct {
	ClassAttrs
	Rate uint64
	Ceil uint64
	Prio uint32
}

// Attrs implements Class interface
func (c *HTBClass) Attrs() *ClassAttrs {
	return &c.ClassAttrs
}

// Type implements Class interface
func (c *HTBClass) Type() ClassType {
	return ClassHTBType
}

// Equals implements Class interface
func (c *HTBClass) Equals(other Class) bool {
	o, ok := other.(*HTBClass)
	if !ok {
		return false
	}
	return *c == *o
}

// GenCmdLineArgs implements CmdLineGenerator interface
func (c *HTBClass) GenCmdLineArgs() []string {
	args := c.ClassAttrs.GenCmdLineArgs()
	args = append(args, string(ClassHTBType), "rate", FormatRate(c.Rate))
	if c.Ceil != 0 {
		args = append(args, "ceil", FormatRate(c.Ceil))
	}
	args = append(args, "prio", strconv.FormatUint(uint64(c.Prio), 10))
	return args
}

// FormatRate formats a rate in bits per second using the largest tc unit dividing it
func FormatRate(bps uint64) string {
	switch {
	case bps == 0:
		return "0bit"
	case bps%1000000000 == 0:
		return strconv.FormatUint(bps/1000000000, 10) + "gbit"
	case bps%1000000 == 0:
		return strconv.FormatUint(bps/1000000, 10) + "mbit"
	case bps%1000 == 0:
		return strconv.FormatUint(bps/1000, 10) + "kbit"
	}
	return strconv.FormatUint(bps, 10) + "bit"
}

// Builder

// NewHTBClassBuilder returns a new HTBClassBuilder
func NewHTBClassBuilder() *HTBClassBuilder {
	return &HTBClassBuilder{}
}

// HTBClassBuilder is an HTBClass builder
type HTBClassBuilder struct {
	htbClass HTBClass
}

// WithParent adds Parent to HTBClassBuilder
func (cb *HTBClassBuilder) WithParent(p uint32) *HTBClassBuilder {
	cb.htbClass.Parent = p
	return cb
}

// WithClassID adds ClassID to HTBClassBuilder
func (cb *HTBClassBuilder) WithClassID(id uint32) *HTBClassBuilder {
	cb.htbClass.ClassID = id
	return cb
}

// WithRate adds the guaranteed rate in bits per second to HTBClassBuilder
func (cb *HTBClassBuilder) WithRate(bps uint64) *HTBClassBuilder {
	cb.htbClass.Rate = bps
	return cb
}

// WithCeil adds the ceiling rate in bits per second to HTBClassBuilder
func (cb *HTBClassBuilder) WithCeil(bps uint64) *HTBClassBuilder {
	cb.htbClass.Ceil = bps
	return cb
}

// WithPrio adds Prio to HTBClassBuilder
func (cb *HTBClassBuilder) WithPrio(prio uint32) *HTBClassBuilder {
	cb.htbClass.Prio = prio
	return cb
}

// Build builds and returns a new HTBClass instance
func (cb *HTBClassBuilder) Build() *HTBClass {
	c := cb.htbClass
	return &c
}
