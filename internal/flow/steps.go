// Package flow is the client-side consultation flow: which steps a widget
// mode walks through, what the visitor has selected, and when they may move
// on. A Machine is not safe for concurrent use.
package flow

import "github.com/intake/intake/internal/domain/widget"

type Step int

const (
	StepArea Step = iota
	StepConcerns
	StepServices
	StepForm
	StepSuccess
)

func (s Step) String() string {
	switch s {
	case StepArea:
		return "area"
	case StepConcerns:
		return "concerns"
	case StepServices:
		return "services"
	case StepForm:
		return "form"
	case StepSuccess:
		return "success"
	}
	return "unknown"
}

// detail reports whether s collects concerns or services.
func (s Step) detail() bool { return s == StepConcerns || s == StepServices }

type Phase int

const (
	PhaseLoading Phase = iota
	PhaseReady
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseError:
		return "error"
	}
	return "unknown"
}

var modeSteps = map[widget.Mode][]Step{
	widget.ModeRegionsConcernsServices: {StepArea, StepConcerns, StepServices, StepForm},
	widget.ModeRegionsServices:         {StepArea, StepServices, StepForm},
	widget.ModeRegionsConcerns:         {StepArea, StepConcerns, StepForm},
	widget.ModeConcernsOnly:            {StepConcerns, StepForm},
	widget.ModeServicesOnly:            {StepServices, StepForm},
}

// Steps returns the ordered steps for mode, excluding Success. Unknown modes
// use the default mode's steps.
func Steps(mode widget.Mode) []Step {
	steps, ok := modeSteps[mode]
	if !ok {
		steps = modeSteps[widget.DefaultMode]
	}
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}

func hasStep(steps []Step, s Step) bool {
	for _, x := range steps {
		if x == s {
			return true
		}
	}
	return false
}
