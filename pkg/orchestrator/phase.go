package orchestrator

import (
	"time"
)

// Phase of the experiment state machine
type Phase string

const (
	PhaseBuilding      Phase = "Building"
	PhaseProvisioned   Phase = "Provisioned"
	PhasePolicyApplied Phase = "PolicyApplied"
	PhaseRunning       Phase = "Running"
	PhaseDraining      Phase = "Draining"
	PhaseTornDown      Phase = "TornDown"
)

// Phases lists the phases in the order they are entered
var Phases = []Phase{
	PhaseBuilding,
	PhaseProvisioned,
	PhasePolicyApplied,
	PhaseRunning,
	PhaseDraining,
	PhaseTornDown,
}

func phaseNames() []string {
	names := make([]string, len(Phases))
	for i, p := range Phases {
		names[i] = string(p)
	}
	return names
}

// Transition records entering a phase
type Transition struct {
	Phase Phase
	At    time.Time
}
