package topology

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"
	"k8s.io/utils/exec"
)

// process tracks the exit of a started command
type process struct {
	done    chan struct{}
	err     error
	once    sync.Once
	stopErr error
	stop    func() error
}

func newProcess(stop func() error) *process {
	return &process{done: make(chan struct{}), stop: stop}
}

// exited records the exit error and releases waiters
func (p *process) exited(err error) {
	p.err = err
	close(p.done)
}

// Wait implements Process interface
func (p *process) Wait() error {
	<-p.done
	return p.err
}

// Done implements Process interface
func (p *process) Done() <-chan struct{} {
	return p.done
}

// Terminate implements Process interface
func (p *process) Terminate() error {
	select {
	case <-p.done:
		return nil
	default:
	}

	p.once.Do(func() {
		p.stopErr = p.stop()
	})
	return p.stopErr
}

// processMarkerEnv tags every process spawned for a local command, pipelines and
// backgrounded jobs included, so the whole set can be signalled
const processMarkerEnv = "QOS_EXPERIMENT_PROCESS"

// killGrace is how long a terminated command has to exit before it is killed
var killGrace = 2 * time.Second

// StartLocalCommand runs cmd with sh on the machine running the experiment, where switches live
func StartLocalCommand(ctx context.Context, executor exec.Interface, cmd string, stdout io.Writer,
	log klog.Logger) (Process, error) {
	log.V(10).Info("executing", "cmd", "sh", "args", []string{"-c", cmd})

	marker := processMarkerEnv + "=" + uuid.NewString()
	c := executor.Command("sh", "-c", cmd)
	c.SetEnv(append(os.Environ(), marker))
	c.SetStdout(stdout)
	c.SetStderr(stdout)
	if err := c.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start %q", cmd)
	}

	var p *process
	p = newProcess(func() error {
		err := signalMarked(marker, unix.SIGTERM)
		select {
		case <-p.done:
			return err
		case <-time.After(killGrace):
		}
		log.V(2).Info("command ignored SIGTERM, killing", "cmd", cmd)
		c.Stop()
		return signalMarked(marker, unix.SIGKILL)
	})
	go func() {
		p.exited(c.Wait())
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = p.Terminate()
		case <-p.done:
		}
	}()
	return p, nil
}

// signalMarked sends sig to every process whose environment carries marker
func signalMarked(marker string, sig unix.Signal) error {
	var errs []error
	for _, pid := range markedPids(marker) {
		if err := unix.Kill(pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
			errs = append(errs, errors.Wrapf(err, "failed to signal pid %d", pid))
		}
	}
	return utilerrors.NewAggregate(errs)
}

// markedPids returns the pids whose initial environment contains marker
func markedPids(marker string) []int {
	var pids []int
	environs, _ := filepath.Glob("/proc/[0-9]*/environ")
	for _, environ := range environs {
		data, err := os.ReadFile(environ)
		if err != nil {
			continue
		}
		for _, kv := range strings.Split(string(data), "\x00") {
			if kv != marker {
				continue
			}
			if pid, err := strconv.Atoi(filepath.Base(filepath.Dir(environ))); err == nil && pid != os.Getpid() {
				pids = append(pids, pid)
			}
			break
		}
	}
	return pids
}

// signalTree sends sig to pid and all of its descendants, children first
func signalTree(pid int, sig unix.Signal) error {
	for _, child := range childPids(pid) {
		_ = signalTree(child, sig)
	}
	if err := unix.Kill(pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return errors.Wrapf(err, "failed to signal pid %d", pid)
	}
	return nil
}

// childPids returns the pids whose parent is pid
func childPids(pid int) []int {
	var children []int
	stats, _ := filepath.Glob("/proc/[0-9]*/stat")
	for _, stat := range stats {
		data, err := os.ReadFile(stat)
		if err != nil {
			continue
		}
		// comm may contain spaces, ppid is the second field after it
		s := string(data)
		idx := strings.LastIndexByte(s, ')')
		if idx < 0 {
			continue
		}
		fields := strings.Fields(s[idx+1:])
		if len(fields) < 2 {
			continue
		}
		ppid, err := strconv.Atoi(fields[1])
		if err != nil || ppid != pid {
			continue
		}
		child, err := strconv.Atoi(filepath.Base(filepath.Dir(stat)))
		if err == nil {
			children = append(children, child)
		}
	}
	return children
}
