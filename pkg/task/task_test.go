package task_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	klog "k8s.io/klog/v2"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/task"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/topology/mocks"
)

// fakeProcess is a topology.Process whose exit is driven by the test
type fakeProcess struct {
	done       chan struct{}
	once       sync.Once
	err        error
	terminated int
	out        io.Writer
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{done: make(chan struct{})}
}

func (p *fakeProcess) exit(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

func (p *fakeProcess) Wait() error {
	<-p.done
	return p.err
}

func (p *fakeProcess) Done() <-chan struct{} {
	return p.done
}

func (p *fakeProcess) Terminate() error {
	p.terminated++
	p.exit(errors.New("terminated"))
	return nil
}

var _ = Describe("Task", func() {
	var provider *mocks.Provider
	var fakeClock *testingclock.FakeClock
	var launcher task.Launcher
	var proc *fakeProcess
	var log = klog.NewKlogr().WithName("task-test")
	blocking := 20 * time.Second

	iperfSpec := task.Spec{
		Name:             "iperf-1",
		Node:             "h3",
		Command:          "iperf -c 10.0.0.4 -u -b 3M -t 20",
		StartOffset:      14 * time.Second,
		BlockingDuration: &blocking,
		Phase:            task.PhaseContention,
	}

	BeforeEach(func() {
		provider = mocks.NewProvider(GinkgoT())
		fakeClock = testingclock.NewFakeClock(time.Now())
		launcher = task.NewLauncherImpl(provider, fakeClock, log)
		proc = newFakeProcess()
	})

	AfterEach(func() {
		proc.exit(nil)
	})

	It("computes the end of the task window", func() {
		Expect(iperfSpec.End()).To(Equal(34 * time.Second))
		bg := task.Spec{StartOffset: 2 * time.Second}
		Expect(bg.End()).To(Equal(2 * time.Second))
	})

	Context("Launch", func() {
		It("wraps launch failures", func() {
			provider.On("RunCommand", mock.Anything, "h3", iperfSpec.Command, mock.Anything).
				Return(nil, errors.New("executable not found")).Once()

			h, err := launcher.Launch(context.Background(), iperfSpec)
			Expect(h).To(BeNil())
			Expect(err).To(MatchError(ContainSubstring("iperf-1")))
		})

		It("captures output to the sink", func() {
			dir := GinkgoT().TempDir()
			spec := iperfSpec
			spec.OutputSink = filepath.Join(dir, "logs", "iperf_1.log")
			provider.On("RunCommand", mock.Anything, "h3", spec.Command, mock.Anything).
				Run(func(args mock.Arguments) {
					proc.out = args.Get(3).(io.Writer)
				}).Return(proc, nil).Once()

			h, err := launcher.Launch(context.Background(), spec)
			Expect(err).ToNot(HaveOccurred())
			Expect(h.Running()).To(BeTrue())
			Expect(h.StartedAt()).To(Equal(fakeClock.Now()))

			_, err = proc.out.Write([]byte("[  3]  0.0-20.0 sec  7.15 MBytes  3.00 Mbits/sec\n"))
			Expect(err).ToNot(HaveOccurred())
			proc.exit(nil)

			Eventually(func() string {
				data, _ := os.ReadFile(spec.OutputSink)
				return string(data)
			}).Should(ContainSubstring("3.00 Mbits/sec"))
			Expect(h.Running()).To(BeFalse())
		})
	})

	Context("Handle", func() {
		var h *task.Handle

		launch := func(spec task.Spec) {
			provider.On("RunCommand", mock.Anything, spec.Node, spec.Command, mock.Anything).
				Return(proc, nil).Once()
			var err error
			h, err = launcher.Launch(context.Background(), spec)
			Expect(err).ToNot(HaveOccurred())
		}

		It("waits for the blocking duration", func() {
			launch(iperfSpec)
			waitErr := make(chan error, 1)
			go func() {
				waitErr <- h.Wait(context.Background())
			}()

			Eventually(fakeClock.HasWaiters).Should(BeTrue())
			fakeClock.Step(19 * time.Second)
			Consistently(waitErr, 50*time.Millisecond).ShouldNot(Receive())
			fakeClock.Step(time.Second)
			Eventually(waitErr).Should(Receive(BeNil()))
			Expect(h.Running()).To(BeTrue())
		})

		It("returns the exit error when the task exits first", func() {
			launch(iperfSpec)
			proc.exit(errors.New("exit status 1"))
			Expect(h.Wait(context.Background())).To(MatchError("exit status 1"))
		})

		It("waits for background tasks until they exit or the context is done", func() {
			bg := task.Spec{Name: "iperf-server", Node: "h4", Command: "iperf -s -u"}
			launch(bg)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			Expect(h.Wait(ctx)).To(MatchError(context.Canceled))
		})

		It("terminates idempotently", func() {
			launch(iperfSpec)
			Expect(h.Terminate()).To(Succeed())
			Expect(h.Terminate()).To(Succeed())
			Expect(proc.terminated).To(Equal(1))
			Expect(h.Running()).To(BeFalse())
		})

		It("does not terminate an exited task", func() {
			launch(iperfSpec)
			proc.exit(nil)
			Expect(h.Terminate()).To(Succeed())
			Expect(proc.terminated).To(BeZero())
		})
	})

	Context("OpenSink", func() {
		It("discards output when the sink cannot be opened", func() {
			dir := GinkgoT().TempDir()
			blocker := filepath.Join(dir, "file")
			Expect(os.WriteFile(blocker, nil, 0o600)).To(Succeed())

			sink := task.OpenSink(filepath.Join(blocker, "out.log"), log)
			_, err := sink.Write([]byte("lost"))
			Expect(err).ToNot(HaveOccurred())
			Expect(sink.Close()).To(Succeed())
		})

		It("discards output for an empty path", func() {
			sink := task.OpenSink("", log)
			_, err := sink.Write([]byte("lost"))
			Expect(err).ToNot(HaveOccurred())
		})
	})
})
