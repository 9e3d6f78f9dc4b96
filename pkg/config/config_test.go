package config_test

import (
	"os"
	"path/filepath"
	"time"

	"k8s.io/klog/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/config"
	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/policy"
)

const minimalExperiment = `
name: minimal
topology:
  switches: [s1]
  hosts:
  - name: h1
    ip: 10.0.0.1/8
  links:
  - a: h1
    b: s1
    capacity: 1M
policy:
  node: s1
  interface: s1-eth1
  rootCapacity: 1M
  classes:
  - id: all
    guaranteed: 500k
    ceiling: 1M
  rules:
  - target: all
    default: true
tasks:
- name: ping
  node: h1
  command: ping 10.0.0.2
  startOffset: 1s
  blockingDuration: 5s
  phase: contention
monitor:
  node: s1
  interface: s1-eth1
  interval: 250ms
  startOffset: 0s
totalDuration: 10s
`

var _ = Describe("Config", func() {
	Context("Default", func() {
		It("describes the reference experiment", func() {
			exp := config.Default()
			Expect(exp.Topology.Switches).To(Equal([]string{"s1", "s2"}))
			Expect(exp.Topology.Links).To(HaveLen(5))
			Expect(exp.Policy.Interface).To(Equal("s1-eth3"))
			Expect(exp.Tasks).To(HaveLen(6))
			Expect(exp.TotalDuration.Duration).To(Equal(60 * time.Second))

			contention := 0
			for _, t := range exp.Tasks {
				if t.Phase == "contention" {
					contention++
					Expect(t.StartOffset.Duration).To(BeNumerically(">", exp.Monitor.StartOffset.Duration))
				}
			}
			Expect(contention).To(Equal(3))
		})

		It("has a valid policy", func() {
			exp := config.Default()
			p, err := policy.NewRendererImpl(klog.NewKlogr()).Render(&exp.Policy)
			Expect(err).ToNot(HaveOccurred())
			Expect(p.Validate()).To(Succeed())
		})

		It("returns a new instance on each call", func() {
			a := config.Default()
			a.Tasks[0].Name = "changed"
			Expect(config.Default().Tasks[0].Name).To(Equal("video-stream"))
		})
	})

	Context("Parse", func() {
		It("decodes an experiment", func() {
			exp, err := config.Parse([]byte(minimalExperiment))
			Expect(err).ToNot(HaveOccurred())
			Expect(exp.Name).To(Equal("minimal"))
			Expect(exp.Topology.Links[0].Capacity.Value()).To(Equal(int64(1000000)))
			Expect(exp.Policy.Classes[0].Guaranteed.Value()).To(Equal(int64(500000)))
			Expect(exp.Policy.Rules[0].Default).To(BeTrue())
			Expect(exp.Tasks[0].StartOffset.Duration).To(Equal(time.Second))
			Expect(exp.Tasks[0].BlockingDuration.Duration).To(Equal(5 * time.Second))
			Expect(exp.Monitor.Interval.Duration).To(Equal(250 * time.Millisecond))
			Expect(exp.TotalDuration.Duration).To(Equal(10 * time.Second))
		})

		It("leaves blocking duration unset for background tasks", func() {
			data, err := config.Marshal(config.Default())
			Expect(err).ToNot(HaveOccurred())
			exp, err := config.Parse(data)
			Expect(err).ToNot(HaveOccurred())
			Expect(exp.Tasks[0].BlockingDuration).To(BeNil())
		})

		It("rejects unknown fields", func() {
			_, err := config.Parse([]byte(minimalExperiment + "unknownField: true\n"))
			Expect(err).To(HaveOccurred())
		})

		It("rejects malformed quantities", func() {
			_, err := config.Parse([]byte(`
name: bad
policy:
  rootCapacity: fast
`))
			Expect(err).To(HaveOccurred())
		})
	})

	Context("Marshal and Load", func() {
		It("loads what was marshaled", func() {
			exp := config.Default()
			data, err := config.Marshal(exp)
			Expect(err).ToNot(HaveOccurred())

			path := filepath.Join(GinkgoT().TempDir(), "exp.yaml")
			Expect(os.WriteFile(path, data, 0600)).To(Succeed())

			loaded, err := config.Load(path)
			Expect(err).ToNot(HaveOccurred())
			Expect(loaded.Name).To(Equal(exp.Name))
			Expect(loaded.Tasks).To(HaveLen(len(exp.Tasks)))
			Expect(loaded.Tasks[3].BlockingDuration.Duration).To(Equal(20 * time.Second))
			Expect(loaded.Policy.Classes[1].Ceiling.Cmp(exp.Policy.Classes[1].Ceiling)).To(Equal(0))
		})

		It("fails on a missing file", func() {
			_, err := config.Load(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
			Expect(err).To(HaveOccurred())
		})
	})
})
