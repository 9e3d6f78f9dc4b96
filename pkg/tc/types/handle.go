package types

import (
	"fmt"
)

const (
	// HandleRoot is the parent of a root qdisc
	HandleRoot uint32 = 0xFFFFFFFF
	// HandleNone is an unspecified handle
	HandleNone uint32 = 0
)

// MakeHandle returns a tc handle from major and minor
func MakeHandle(major, minor uint16) uint32 {
	return uint32(major)<<16 | uint32(minor)
}

// HandleMajor returns the major part of a tc handle
func HandleMajor(h uint32) uint16 {
	return uint16(h >> 16)
}

// HandleMinor returns the minor part of a tc handle
func HandleMinor(h uint32) uint16 {
	return uint16(h & 0xffff)
}

// FormatHandle formats a tc handle the way tc expects it on the command line e.g 1:10 or 1:
func FormatHandle(h uint32) string {
	if h == HandleRoot {
		return "root"
	}
	if HandleMinor(h) == 0 {
		return fmt.Sprintf("%x:", HandleMajor(h))
	}
	return fmt.Sprintf("%x:%x", HandleMajor(h), HandleMinor(h))
}
