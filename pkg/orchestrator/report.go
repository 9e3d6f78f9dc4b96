package orchestrator

import (
	"fmt"
	"io"
	"time"

	prettytable "github.com/jedib0t/go-pretty/v6/table"

	"github.com/k8snetworkplumbingwg/qos-experiment-tc/pkg/task"
)

// TaskRecord is the outcome of a single task
type TaskRecord struct {
	Name        string
	Node        string
	Phase       task.Phase
	ScheduledAt time.Duration
	// StartedAt is the timeline offset the task was launched at, nil if it was never launched
	StartedAt *time.Duration
	// Err is set when the task failed to launch
	Err error
	// Terminated is set when the task was still running when the experiment drained
	Terminated bool
}

// Report summarizes a run
type Report struct {
	RunID      string
	Experiment string
	// PhaseReached is the furthest phase reached before draining
	PhaseReached     Phase
	Transitions      []Transition
	Tasks            []TaskRecord
	MonitorStartedAt *time.Duration
	// MonitorErr is a recoverable monitor error
	MonitorErr  error
	TeardownErr error
	Cancelled   bool
	// Err is the fatal error of the run
	Err error
}

func newReport(runID string, exp Experiment) *Report {
	r := &Report{
		RunID:      runID,
		Experiment: exp.Name,
		Tasks:      make([]TaskRecord, len(exp.Tasks)),
	}
	for i, t := range exp.Tasks {
		r.Tasks[i] = TaskRecord{Name: t.Name, Node: t.Node, Phase: t.Phase, ScheduledAt: t.StartOffset}
	}
	return r
}

func (r *Report) taskRecord(name string) *TaskRecord {
	for i := range r.Tasks {
		if r.Tasks[i].Name == name {
			return &r.Tasks[i]
		}
	}
	return &TaskRecord{}
}

// FailedTasks returns the names of the tasks which failed to launch
func (r *Report) FailedTasks() []string {
	var failed []string
	for _, t := range r.Tasks {
		if t.Err != nil {
			failed = append(failed, t.Name)
		}
	}
	return failed
}

// PhaseAt returns when phase was entered
func (r *Report) PhaseAt(phase Phase) (time.Time, bool) {
	for _, t := range r.Transitions {
		if t.Phase == phase {
			return t.At, true
		}
	}
	return time.Time{}, false
}

// Render writes the report as tables to w
func (r *Report) Render(w io.Writer) {
	summary := prettytable.NewWriter()
	summary.SetOutputMirror(w)
	summary.SetTitle("Experiment %s", r.Experiment)
	summary.AppendRows([]prettytable.Row{
		{"Run", r.RunID},
		{"Phase reached", r.PhaseReached},
		{"Cancelled", r.Cancelled},
		{"Monitor started", offsetString(r.MonitorStartedAt)},
		{"Monitor error", errString(r.MonitorErr)},
		{"Teardown error", errString(r.TeardownErr)},
		{"Error", errString(r.Err)},
	})
	summary.Render()

	tasks := prettytable.NewWriter()
	tasks.SetOutputMirror(w)
	tasks.AppendHeader(prettytable.Row{"Task", "Node", "Phase", "Scheduled", "Started", "Status"})
	for _, t := range r.Tasks {
		status := "not launched"
		switch {
		case t.Err != nil:
			status = fmt.Sprintf("launch failed: %v", t.Err)
		case t.Terminated:
			status = "terminated"
		case t.StartedAt != nil:
			status = "exited"
		}
		tasks.AppendRow(prettytable.Row{t.Name, t.Node, t.Phase, t.ScheduledAt, offsetString(t.StartedAt), status})
	}
	tasks.Render()
}

func offsetString(d *time.Duration) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

func errString(err error) string {
	if err == nil {
		return "-"
	}
	return err.Error()
}
