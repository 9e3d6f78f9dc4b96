package policy

import (
	"github.com/pkg/errors"
)

var (
	// ErrPolicyInvalid is returned for malformed class trees and rules
	ErrPolicyInvalid = errors.New("policy invalid")
	// ErrRuleConflict is returned when two non default rules share an evaluation order
	ErrRuleConflict = errors.New("rule conflict")
)

func invalidf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrPolicyInvalid, format, args...)
}
