package orchestrator_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/orchestrator"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/task"
)

var _ = Describe("Experiment", func() {
	It("accepts the contention experiment", func() {
		exp := contentionExperiment()
		Expect(exp.Validate()).To(Succeed())
	})

	It("accepts a task window ending exactly at the total duration", func() {
		exp := contentionExperiment()
		exp.TotalDuration = 34 * time.Second
		Expect(exp.Validate()).To(Succeed())
	})

	DescribeTable("rejects inconsistent timelines",
		func(mutate func(exp *orchestrator.Experiment)) {
			exp := contentionExperiment()
			mutate(&exp)
			err := exp.Validate()
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, orchestrator.ErrInvalidExperiment)).To(BeTrue())
		},
		Entry("no name", func(exp *orchestrator.Experiment) { exp.Name = "" }),
		Entry("no policy", func(exp *orchestrator.Experiment) { exp.Policy = nil }),
		Entry("zero total duration", func(exp *orchestrator.Experiment) { exp.TotalDuration = 0 }),
		Entry("task window past the end", func(exp *orchestrator.Experiment) {
			exp.TotalDuration = 33 * time.Second
		}),
		Entry("duplicate task names", func(exp *orchestrator.Experiment) { exp.Tasks[2].Name = "bulk-1" }),
		Entry("task without command", func(exp *orchestrator.Experiment) { exp.Tasks[0].Command = "" }),
		Entry("negative start offset", func(exp *orchestrator.Experiment) { exp.Tasks[0].StartOffset = -time.Second }),
		Entry("zero blocking duration", func(exp *orchestrator.Experiment) {
			exp.Tasks[1].BlockingDuration = durationPtr(0)
		}),
		Entry("unknown phase", func(exp *orchestrator.Experiment) { exp.Tasks[0].Phase = "cooldown" }),
		Entry("monitor starting with contention", func(exp *orchestrator.Experiment) {
			exp.Monitor.StartOffset = 14 * time.Second
		}),
		Entry("contention before the monitor", func(exp *orchestrator.Experiment) {
			exp.Tasks[0].Phase = task.PhaseContention
		}),
		Entry("monitor starting at the end", func(exp *orchestrator.Experiment) {
			exp.Monitor.StartOffset = exp.TotalDuration
		}),
		Entry("monitor without interface", func(exp *orchestrator.Experiment) { exp.Monitor.Interface = "" }),
	)
})
