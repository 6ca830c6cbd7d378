package pipeline

import (
	"fmt"

	"github.com/comercia/comercia/internal/shared"
)

// Action is an operation on an opportunity's stage.
type Action string

const (
	ActionAdvance Action = "advance"
	ActionLose    Action = "lose"
	ActionWin     Action = "win"
)

// activeStages is the forward order of the open pipeline.
var activeStages = []Stage{StageNew, StageContacted, StageQualified, StageNegotiation}

// Terminal reports whether no further stage change is possible.
func (s Stage) Terminal() bool {
	return s == StageWon || s == StageLost
}

func (s Stage) position() int {
	for i, st := range activeStages {
		if st == s {
			return i
		}
	}
	return -1
}

// Transition returns the stage reached by applying action in from.
func Transition(from Stage, action Action) (Stage, error) {
	if from.Terminal() {
		return "", shared.Conflict(fmt.Sprintf("opportunity is already %s", from), "")
	}
	pos := from.position()
	if pos < 0 {
		return "", shared.Validation("unknown stage %q", from)
	}
	switch action {
	case ActionAdvance:
		if pos == len(activeStages)-1 {
			return "", shared.Conflict(fmt.Sprintf("opportunity in %s can only be won or lost", from), "")
		}
		return activeStages[pos+1], nil
	case ActionLose:
		return StageLost, nil
	case ActionWin:
		return StageWon, nil
	default:
		return "", shared.Validation("unknown stage action %q", action)
	}
}

// lastAction describes a stage change for the opportunity's activity stamp.
func lastAction(action Action, to Stage) string {
	switch action {
	case ActionLose:
		return "Marcada como perdida"
	case ActionWin:
		return "Marcada como ganada, proyecto creado"
	default:
		return fmt.Sprintf("Avanzó a %s", to)
	}
}
