package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/onramp/pkg/models"
)

func step(title string, status models.StepStatus) models.Step {
	return models.Step{Title: title, Status: status}
}

func summarize(steps []models.Step) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Title+":"+string(s.Status))
	}

	return out
}

func TestMergeFullPreservesStatusAcrossReorder(t *testing.T) {
	current := []models.Step{
		step("A", models.StepStatusCompleted),
		step("B", models.StepStatusPending),
		step("C", models.StepStatusStuck),
		step("D", models.StepStatusCompleted),
	}
	tmpl := []models.Step{
		step("B", models.StepStatusPending),
		step("A", models.StepStatusPending),
		step("D", models.StepStatusPending),
		step("C", models.StepStatusPending),
	}

	merged := MergeSteps(current, tmpl, ModeFull)

	assert.Equal(t, []string{"B:pending", "A:completed", "D:completed", "C:stuck"}, summarize(merged))

	for i, s := range merged {
		assert.Equal(t, i+1, s.Position)
	}

	result := models.ComputeProgress(merged)
	assert.Equal(t, 50, result.Progress)
	assert.Equal(t, models.OnboardingStatusActive, result.Status)
}

func TestMergeFullDropsRemovedSteps(t *testing.T) {
	current := []models.Step{
		step("A", models.StepStatusCompleted),
		step("B", models.StepStatusPending),
		step("C", models.StepStatusCompleted),
	}
	tmpl := []models.Step{
		step("A", models.StepStatusPending),
		step("C", models.StepStatusPending),
	}

	merged := MergeSteps(current, tmpl, ModeFull)

	assert.Equal(t, []string{"A:completed", "C:completed"}, summarize(merged))
	assert.Equal(t, 100, models.ComputeProgress(merged).Progress)
}

func TestMergeFullAddsNewStepsAsPending(t *testing.T) {
	current := []models.Step{step("A", models.StepStatusCompleted)}
	tmpl := []models.Step{
		step("A", models.StepStatusPending),
		step("NewStep", models.StepStatusPending),
	}

	merged := MergeSteps(current, tmpl, ModeFull)

	assert.Equal(t, []string{"A:completed", "NewStep:pending"}, summarize(merged))
	assert.Equal(t, 50, models.ComputeProgress(merged).Progress)
}

func TestMergeFullTakesEverythingButStatusFromTemplate(t *testing.T) {
	current := []models.Step{{
		Title:       "Laptop setup",
		Description: "old text",
		Role:        "it",
		Owner:       "old owner",
		Status:      models.StepStatusCompleted,
	}}
	tmpl := []models.Step{{
		Title:       "Laptop setup",
		Description: "request hardware through the portal",
		Role:        "it-support",
		Owner:       "it-helpdesk",
		Expert:      "asset-team",
		Link:        "https://it.example.com/laptops",
	}}

	merged := MergeSteps(current, tmpl, ModeFull)

	require.Len(t, merged, 1)
	assert.Equal(t, models.StepStatusCompleted, merged[0].Status)
	assert.Equal(t, "request hardware through the portal", merged[0].Description)
	assert.Equal(t, "it-support", merged[0].Role)
	assert.Equal(t, "it-helpdesk", merged[0].Owner)
	assert.Equal(t, "asset-team", merged[0].Expert)
	assert.Equal(t, "https://it.example.com/laptops", merged[0].Link)
}

func TestMergeFullDuplicateTitleFirstMatchWins(t *testing.T) {
	current := []models.Step{
		step("A", models.StepStatusCompleted),
		step("A", models.StepStatusStuck),
	}
	tmpl := []models.Step{step("A", models.StepStatusPending)}

	merged := MergeSteps(current, tmpl, ModeFull)

	assert.Equal(t, []string{"A:completed"}, summarize(merged))
}

func TestMergeFullEmptyTemplateEmptiesInstance(t *testing.T) {
	current := []models.Step{step("A", models.StepStatusCompleted)}

	merged := MergeSteps(current, nil, ModeFull)

	assert.Empty(t, merged)
	assert.Equal(t, 0, models.ComputeProgress(merged).Progress)
}

func TestMergeAdditiveAppendsOnlyNewTitles(t *testing.T) {
	current := []models.Step{
		step("A", models.StepStatusCompleted),
		step("B", models.StepStatusStuck),
	}
	tmpl := []models.Step{
		step("B", models.StepStatusPending),
		step("C", models.StepStatusPending),
	}

	merged := MergeSteps(current, tmpl, ModeAdditive)

	assert.Equal(t, []string{"A:completed", "B:stuck", "C:pending"}, summarize(merged))

	for i, s := range merged {
		assert.Equal(t, i+1, s.Position)
	}
}

func TestMergeAdditiveIsIdempotent(t *testing.T) {
	current := []models.Step{step("A", models.StepStatusCompleted)}
	tmpl := []models.Step{
		step("A", models.StepStatusPending),
		step("B", models.StepStatusPending),
	}

	once := MergeSteps(current, tmpl, ModeAdditive)
	twice := MergeSteps(once, tmpl, ModeAdditive)

	assert.Equal(t, summarize(once), summarize(twice))
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	current := []models.Step{step("A", models.StepStatusCompleted)}
	tmpl := []models.Step{
		step("A", models.StepStatusPending),
		step("B", models.StepStatusPending),
	}

	MergeSteps(current, tmpl, ModeFull)
	MergeSteps(current, tmpl, ModeAdditive)

	assert.Equal(t, []string{"A:completed"}, summarize(current))
	assert.Equal(t, []string{"A:pending", "B:pending"}, summarize(tmpl))
	assert.Zero(t, current[0].Position, "inputs keep their original positions")
}

func TestValidMode(t *testing.T) {
	assert.True(t, ValidMode(ModeFull))
	assert.True(t, ValidMode(ModeAdditive))
	assert.False(t, ValidMode(Mode("partial")))
}
