package tc

import (
	"github.com/pkg/errors"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/generator"
)

// ErrAlreadyConfigured is returned when a plan without a reset operation is applied on an interface
// which already has a queuing discipline installed
var ErrAlreadyConfigured = errors.New("interface already configured")

// Actuator is an interface that applies a Plan on a netdev
type Actuator interface {
	// Actuate applies the operations of plan in order
	Actuate(plan *generator.Plan) error
}
