package training

import "fmt"

// State is a stage of a training run
type State int

const (
	StateNew State = iota
	StateDataLoaded
	StateFeaturesPrepared
	StateGridSearched
	StateFinalFitted
	StateArtifactsSaved
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateDataLoaded:
		return "data_loaded"
	case StateFeaturesPrepared:
		return "features_prepared"
	case StateGridSearched:
		return "grid_searched"
	case StateFinalFitted:
		return "final_fitted"
	case StateArtifactsSaved:
		return "artifacts_saved"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// machine only moves one stage forward at a time
type machine struct {
	state State
}

func (m *machine) advance(to State) error {
	if to != m.state+1 {
		return fmt.Errorf("invalid training transition %s -> %s", m.state, to)
	}
	m.state = to
	return nil
}

// require fails unless the machine is at least in state s
func (m *machine) require(s State) error {
	if m.state < s {
		return fmt.Errorf("training run is %s, needs %s", m.state, s)
	}
	return nil
}
