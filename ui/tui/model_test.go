package tui

import (
	"context"
	"testing"
	"time"

	"gosegment/domain/segmentation"
	segwiz "gosegment/internal/segmentation"
	"gosegment/internal/testkit"
	"gosegment/internal/wizard"
	"gosegment/ports"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T) (Model, *segwiz.Wizard) {
	t.Helper()
	survey := testkit.GenerateSurvey(testkit.SurveyGeneratorConfig{Respondents: 30, Seed: 9})
	w, err := segwiz.New(testkit.NewStubAnalytics(survey, 9), survey, segwiz.Options{
		Range:           segmentation.Range{Low: 2, High: 4},
		DefaultClusters: 3,
	})
	require.NoError(t, err)
	t.Cleanup(w.Close)

	vars, err := ports.ClusterableVariables(context.Background(), survey)
	require.NoError(t, err)
	return New(w, vars), w
}

func press(t *testing.T, m Model, keys ...tea.KeyMsg) Model {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(k)
		m = next.(Model)
	}
	return m
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

var (
	space = tea.KeyMsg{Type: tea.KeySpace}
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	down  = tea.KeyMsg{Type: tea.KeyDown}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
)

// settle waits for the outstanding action and feeds the event to the model.
func settle(t *testing.T, m Model, w *segwiz.Wizard) Model {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Wait(ctx))
	next, _ := m.Update(eventMsg(wizard.Event{Kind: wizard.EventSettled}))
	return next.(Model)
}

func TestKeyboardFlow(t *testing.T) {
	m, w := newTestModel(t)
	assert.Contains(t, m.View(), "Pick at least two variables")

	m = press(t, m, space, down, space)
	assert.Equal(t, []string{"q1_satisfaction", "q2_value"}, w.State().Variables)

	m = press(t, m, enter)
	assert.Equal(t, segwiz.StepConfigureMethod, w.View().Step)

	m = press(t, m, runes("m"), runes("s"))
	assert.Equal(t, segmentation.Hierarchical{Linkage: segmentation.LinkageWard}, w.State().Method)
	assert.False(t, w.State().Standardize)
	assert.Contains(t, m.View(), "hierarchical (ward linkage)")

	m = press(t, m, enter)
	m = settle(t, m, w)
	require.NotNil(t, w.State().Detection)
	assert.Contains(t, m.View(), "silhouette")

	m = press(t, m, runes("a"), runes("+"))
	require.NotNil(t, w.State().ManualK)
	assert.Equal(t, 4, *w.State().ManualK)
	assert.Contains(t, m.View(), "Automatic detection is off")

	m = press(t, m, enter)
	m = settle(t, m, w)
	require.NotNil(t, w.State().Result)
	assert.Equal(t, 4, w.State().Result.NClusters)
	assert.Contains(t, m.View(), "Cluster")

	m = press(t, m, esc)
	assert.Equal(t, segwiz.StepDetectParameter, w.View().Step)
}

func TestBlockedNextShowsError(t *testing.T) {
	m, w := newTestModel(t)
	m = press(t, m, space, enter)
	assert.Equal(t, segwiz.StepSelectInputs, w.View().Step)
	assert.Contains(t, m.View(), "requirements")
}

func TestEscapeOnFirstStepQuits(t *testing.T) {
	m, w := newTestModel(t)
	next, cmd := m.Update(esc)
	require.NotNil(t, cmd)
	assert.True(t, w.View().Closed)
	assert.Empty(t, next.View())
}

func TestFailedEventIsShown(t *testing.T) {
	m, _ := newTestModel(t)
	next, _ := m.Update(eventMsg(wizard.Event{Kind: wizard.EventFailed, Err: assert.AnError}))
	assert.Contains(t, next.View(), assert.AnError.Error())
}
