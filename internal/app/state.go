package app

import "fmt"

// State is a step of the provisioning state machine.
type State int

const (
	Uninitialized State = iota
	Locating
	Found
	NotFound
	Downloading
	Extracting
	SourceBuilding
	Loading
	Ready
	Failed
)

var stateNames = [...]string{
	Uninitialized:  "uninitialized",
	Locating:       "locating",
	Found:          "found",
	NotFound:       "not_found",
	Downloading:    "downloading",
	Extracting:     "extracting",
	SourceBuilding: "source_building",
	Loading:        "loading",
	Ready:          "ready",
	Failed:         "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome tags why a transition happened.
type Outcome string

const (
	OutcomeStart            Outcome = "Start"
	OutcomeFound            Outcome = "Found"
	OutcomeLocated          Outcome = "Located"
	OutcomeNotFound         Outcome = "NotFound"
	OutcomePlatformResolved Outcome = "PlatformResolved"
	OutcomeSourceForced     Outcome = "SourceForced"
	OutcomeDownloaded       Outcome = "Downloaded"
	OutcomeNoPrebuilt       Outcome = "NoPrebuilt"
	OutcomeInstalled        Outcome = "Installed"
	OutcomeBuilt            Outcome = "Built"
	OutcomeLoaded           Outcome = "Loaded"
	OutcomeError            Outcome = "Error"
)

// Transition is one recorded edge of the state machine.
type Transition struct {
	From    State
	To      State
	Outcome Outcome
	Err     error
}

func (t Transition) String() string {
	return fmt.Sprintf("%s -[%s]-> %s", t.From, t.Outcome, t.To)
}
