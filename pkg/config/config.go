package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

// Load reads an Experiment from a YAML file
func Load(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read experiment file %s", path)
	}
	return Parse(data)
}

// Parse decodes an Experiment from YAML, unknown fields are rejected
func Parse(data []byte) (*Experiment, error) {
	exp := &Experiment{}
	if err := yaml.UnmarshalStrict(data, exp); err != nil {
		return nil, errors.Wrap(err, "failed to decode experiment")
	}
	return exp, nil
}

// Marshal encodes an Experiment as YAML
func Marshal(exp *Experiment) ([]byte, error) {
	return yaml.Marshal(exp)
}

func d(t time.Duration) metav1.Duration {
	return metav1.Duration{Duration: t}
}

func dp(t time.Duration) *metav1.Duration {
	return &metav1.Duration{Duration: t}
}

// Default returns the reference experiment: a RTP video stream from h1 to h2 contending with
// three UDP iperf flows from h3 to h4 over the s1 <-> s2 link, shaped by HTB on s1-eth3.
func Default() *Experiment {
	tenMbit := resource.MustParse("10M")

	exp := &Experiment{
		Name: "video-vs-iperf",
		Topology: TopologySpec{
			Switches: []string{"s1", "s2"},
			Hosts: []HostSpec{
				{Name: "h1", IP: "10.0.0.1/8"},
				{Name: "h2", IP: "10.0.0.2/8"},
				{Name: "h3", IP: "10.0.0.3/8"},
				{Name: "h4", IP: "10.0.0.4/8"},
			},
			Links: []LinkSpec{
				{A: "h1", B: "s1", Capacity: tenMbit},
				{A: "h3", B: "s1", Capacity: tenMbit},
				{A: "h2", B: "s2", Capacity: tenMbit},
				{A: "h4", B: "s2", Capacity: tenMbit},
				{A: "s1", B: "s2", Capacity: tenMbit},
			},
		},
		Policy: PolicySpec{
			Node:         "s1",
			Interface:    "s1-eth3",
			RootCapacity: tenMbit,
			Classes: []ClassSpec{
				{ID: "video", Guaranteed: resource.MustParse("6M"), Ceiling: tenMbit, Priority: 0},
				{ID: "bulk", Guaranteed: resource.MustParse("2M"), Ceiling: resource.MustParse("4M"), Priority: 1},
			},
			Rules: []RuleSpec{
				{Name: "rtp-video", Match: MatchSpec{DstPort: 5004}, Target: "video", Order: 1},
				{Name: "iperf", Match: MatchSpec{DstPort: 5001}, Target: "bulk", Order: 2},
				{Name: "best-effort", Target: "bulk", Default: true},
			},
		},
		Tasks: []TaskSpec{
			{
				Name: "video-stream",
				Node: "h1",
				Command: `ffmpeg -re -i video.mp4 ` +
					`-map 0:v:0 -c:v libx264 -preset ultrafast -tune zerolatency ` +
					`-x264-params "keyint=25:scenecut=0:repeat-headers=1" ` +
					`-f rtp rtp://10.0.0.2:5004?pkt_size=1200 ` +
					`-map 0:a:0 -c:a aac -ar 44100 -b:a 128k ` +
					`-f rtp rtp://10.0.0.2:5006?pkt_size=1200 ` +
					`-sdp_file video.sdp`,
				StartOffset: d(0),
				Output:      "/tmp/ffmpeg.log",
			},
			{
				Name:        "iperf-server",
				Node:        "h4",
				Command:     "iperf -s -u",
				StartOffset: d(0),
				Output:      "/tmp/iperf_server.log",
			},
			{
				Name:        "video-player",
				Node:        "h2",
				Command:     `ffplay -protocol_whitelist "file,udp,rtp" -fflags nobuffer -flags low_delay -i video.sdp`,
				StartOffset: d(2 * time.Second),
				Output:      "/tmp/ffplay.log",
			},
		},
		Monitor: MonitorSpec{
			Node:        "s1",
			Interface:   "s1-eth3",
			Interval:    d(500 * time.Millisecond),
			StartOffset: d(4 * time.Second),
			Output:      "/tmp/ifstat.log",
		},
		TotalDuration: d(60 * time.Second),
	}

	for i := 0; i < 3; i++ {
		exp.Tasks = append(exp.Tasks, TaskSpec{
			Name:             fmt.Sprintf("iperf-%d", i),
			Node:             "h3",
			Command:          "iperf -c 10.0.0.4 -u -b 3M -t 20",
			StartOffset:      d(14 * time.Second),
			BlockingDuration: dp(20 * time.Second),
			Output:           fmt.Sprintf("/tmp/iperf_%d.log", i),
			Phase:            "contention",
		})
	}
	return exp
}
