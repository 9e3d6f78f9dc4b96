package tc

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/tc/generator"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/utils"
)

// NewActuatorFileWriterImpl returns a new ActuatorFileWriterImpl instance
func NewActuatorFileWriterImpl(path string, log klog.Logger) *ActuatorFileWriterImpl {
	return &ActuatorFileWriterImpl{
		log:  log,
		path: path,
	}
}

// ActuatorFileWriterImpl implements Actuator interface and is used to save a Plan to file
type ActuatorFileWriterImpl struct {
	log  klog.Logger
	path string
}

// Actuate implements Actuator interface
// Note: the plan is saved as tc command lines, one operation per line, so it can be replayed with a shell.
func (a ActuatorFileWriterImpl) Actuate(plan *generator.Plan) error {
	if plan == nil {
		return errors.New("plan cannot be nil")
	}

	exist, err := utils.PathExists(a.path)
	if err != nil {
		return errors.Wrapf(err, "failed to determine if path exist: %s", a.path)
	}

	currentBuf := bytes.NewBuffer([]byte{})
	if exist {
		data, err := os.ReadFile(a.path)
		if err != nil {
			a.log.Error(err, "failed to read file", "path", a.path)
		} else {
			currentBuf = bytes.NewBuffer(data)
		}
	}

	newBuf := bytes.Buffer{}
	_, _ = newBuf.WriteString(fmt.Sprintf("# interface: %s\n", plan.Interface))
	for _, line := range plan.CmdLines() {
		_, _ = newBuf.WriteString(line)
		_, _ = newBuf.WriteRune('\n')
	}

	if bytes.Equal(currentBuf.Bytes(), newBuf.Bytes()) {
		a.log.Info("current and new plan are the same - no action needed.", "path", a.path)
		return nil
	}

	a.log.Info("saving plan", "path", a.path)

	file, err := os.Create(a.path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = newBuf.WriteTo(file)
	return err
}
