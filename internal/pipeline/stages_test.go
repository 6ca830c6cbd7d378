package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comercia/comercia/internal/shared"
)

func TestAdvanceOneStepAtATime(t *testing.T) {
	stage := StageNew
	for _, want := range []Stage{StageContacted, StageQualified, StageNegotiation} {
		next, err := Transition(stage, ActionAdvance)
		require.NoError(t, err)
		assert.Equal(t, want, next)
		stage = next
	}
	_, err := Transition(stage, ActionAdvance)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestTerminalStagesRejectEverything(t *testing.T) {
	for _, st := range []Stage{StageWon, StageLost} {
		for _, action := range []Action{ActionAdvance, ActionLose, ActionWin} {
			_, err := Transition(st, action)
			require.ErrorIs(t, err, shared.ErrConflict, "%s/%s", st, action)
		}
	}
}

func TestLoseAndWinFromAnyActiveStage(t *testing.T) {
	for _, st := range activeStages {
		to, err := Transition(st, ActionLose)
		require.NoError(t, err)
		assert.Equal(t, StageLost, to)
		to, err = Transition(st, ActionWin)
		require.NoError(t, err)
		assert.Equal(t, StageWon, to)
	}
}

func TestUnknownStage(t *testing.T) {
	_, err := Transition("archivada", ActionAdvance)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestBudgetCategoryMapping(t *testing.T) {
	assert.Equal(t, BudgetHours, BudgetCategoryFor("mano_obra"))
	assert.Equal(t, BudgetSubcontracting, BudgetCategoryFor("mano_obra_subcontratada"))
	assert.Equal(t, BudgetMaterials, BudgetCategoryFor("materiales"))
	assert.Equal(t, BudgetTransport, BudgetCategoryFor("viaticos"))
	assert.Equal(t, BudgetProfessionalServices, BudgetCategoryFor("software"))
	assert.Equal(t, BudgetProfessionalServices, BudgetCategoryFor("servicios_profesionales"))
	assert.Equal(t, BudgetGeneral, BudgetCategoryFor("otro"))
}
