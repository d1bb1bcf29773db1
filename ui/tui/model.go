// Package tui drives a segmentation wizard from the terminal. Remote
// requests run on the wizard's own goroutines; their outcomes arrive as
// messages through the wizard's event subscription.
package tui

import (
	"context"
	"fmt"
	"strings"

	"gosegment/domain/segmentation"
	"gosegment/internal/profile"
	segwiz "gosegment/internal/segmentation"
	"gosegment/internal/wizard"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

// eventMsg carries a wizard event into the update loop.
type eventMsg wizard.Event

var stepTitles = map[wizard.StepID]string{
	segwiz.StepSelectInputs:    "Select variables",
	segwiz.StepConfigureMethod: "Configure method",
	segwiz.StepDetectParameter: "Number of clusters",
	segwiz.StepExecute:         "Results",
}

// methodChoices is the cycle order of the method selector.
var methodChoices = []segmentation.Method{
	segmentation.KMeans{},
	segmentation.Hierarchical{Linkage: segmentation.LinkageWard},
	segmentation.Hierarchical{Linkage: segmentation.LinkageAverage},
	segmentation.Hierarchical{Linkage: segmentation.LinkageComplete},
	segmentation.Hierarchical{Linkage: segmentation.LinkageSingle},
}

// Model is the bubbletea model of one wizard.
type Model struct {
	wizard      *segwiz.Wizard
	variables   []segmentation.Variable
	picked      map[string]bool
	cursor      int
	events      chan wizard.Event
	unsubscribe func()

	styles   Styles
	spinner  spinner.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer

	view      segwiz.View
	reportFor *segmentation.ClusterResult
	status    string
	width     int
	quitting  bool
}

// New builds the model over w. variables are the selectable inputs.
func New(w *segwiz.Wizard, variables []segmentation.Variable) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	events := make(chan wizard.Event, 32)
	unsubscribe := w.Subscribe(func(ev wizard.Event) {
		select {
		case events <- ev:
		default:
			// the next refresh reads the snapshot anyway
		}
	})

	m := Model{
		wizard:      w,
		variables:   variables,
		picked:      make(map[string]bool),
		events:      events,
		unsubscribe: unsubscribe,
		styles:      DefaultStyles(),
		spinner:     sp,
		viewport:    viewport.New(80, 20),
		width:       80,
	}
	m.renderer = newRenderer(m.width)
	m.view = w.View()
	return m
}

func newRenderer(width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(width-4, 20)),
	)
	if err != nil {
		return nil
	}
	return r
}

func waitForEvent(events <-chan wizard.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-8, 5)
		m.renderer = newRenderer(msg.Width)
		m.reportFor = nil

	case eventMsg:
		if msg.Err != nil {
			m.status = msg.Err.Error()
		}
		cmds = append(cmds, waitForEvent(m.events))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		if m.handleKey(msg) {
			m.quitting = true
			m.unsubscribe()
			return m, tea.Quit
		}
	}

	m.refresh()
	if m.view.Step == segwiz.StepExecute && m.view.State.Result != nil {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// handleKey applies a key press and reports whether the program should quit.
func (m *Model) handleKey(msg tea.KeyMsg) bool {
	ctx := context.Background()
	m.status = ""

	switch msg.String() {
	case "ctrl+c", "q":
		return true
	case "esc":
		m.report(m.wizard.Back())
		return m.wizard.View().Closed
	case "ctrl+r":
		m.report(m.wizard.Reset())
		m.picked = make(map[string]bool)
		m.cursor = 0
		return false
	case "r":
		m.report(m.wizard.Retry(ctx))
		return false
	}

	switch m.view.Step {
	case segwiz.StepSelectInputs:
		m.keySelect(ctx, msg)
	case segwiz.StepConfigureMethod:
		m.keyMethod(ctx, msg)
	case segwiz.StepDetectParameter:
		m.keyDetect(ctx, msg)
	case segwiz.StepExecute:
		if msg.String() == "p" {
			s := m.view.State
			m.report(m.wizard.SetExecutionOptions(!s.Persist, s.NamePrefix))
		}
	}
	return false
}

func (m *Model) keySelect(ctx context.Context, msg tea.KeyMsg) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.variables)-1 {
			m.cursor++
		}
	case " ", "x":
		if len(m.variables) == 0 {
			return
		}
		name := m.variables[m.cursor].Name
		m.picked[name] = !m.picked[name]
		m.report(m.wizard.SelectInputs(ctx, m.pickedNames()))
	case "enter":
		m.report(m.wizard.Next(ctx))
	}
}

func (m *Model) keyMethod(ctx context.Context, msg tea.KeyMsg) {
	s := m.view.State
	switch msg.String() {
	case "m", "tab":
		m.report(m.wizard.ConfigureMethod(nextMethod(s.Method), s.Standardize))
	case "s":
		m.report(m.wizard.ConfigureMethod(s.Method, !s.Standardize))
	case "enter":
		m.report(m.wizard.Next(ctx))
	}
}

func (m *Model) keyDetect(ctx context.Context, msg tea.KeyMsg) {
	s := m.view.State
	switch msg.String() {
	case "a":
		m.report(m.wizard.SetAutoDetect(ctx, !s.AutoDetect))
	case "up", "k", "down", "j":
		if s.AutoDetect && s.Detection != nil {
			row := m.view.SelectedRow
			if row < 0 {
				row = m.view.RecommendedRow
			}
			if msg.String() == "up" || msg.String() == "k" {
				row--
			} else {
				row++
			}
			if row >= 0 && row < len(s.Detection.KValues) {
				m.report(m.wizard.SelectDetectedK(s.Detection.KValues[row]))
			}
		}
	case "+", "=":
		if !s.AutoDetect {
			m.report(m.wizard.SetManualK(m.view.EffectiveK + 1))
		}
	case "-":
		if !s.AutoDetect {
			m.report(m.wizard.SetManualK(m.view.EffectiveK - 1))
		}
	case "enter":
		m.report(m.wizard.Next(ctx))
	}
}

func (m *Model) report(err error) {
	if err != nil {
		m.status = err.Error()
	}
}

func (m *Model) pickedNames() []string {
	var names []string
	for _, v := range m.variables {
		if m.picked[v.Name] {
			names = append(names, v.Name)
		}
	}
	return names
}

// refresh re-reads the wizard snapshot and re-renders the report when a new result arrived.
func (m *Model) refresh() {
	m.view = m.wizard.View()
	result := m.view.State.Result
	if result == nil || result == m.reportFor {
		return
	}
	m.reportFor = result
	md := profile.Markdown(result)
	if m.renderer != nil {
		if out, err := m.renderer.Render(md); err == nil {
			md = out
		}
	}
	m.viewport.SetContent(md)
	m.viewport.GotoTop()
}

func nextMethod(current segmentation.Method) segmentation.Method {
	for i, choice := range methodChoices {
		if methodLabel(choice) == methodLabel(current) {
			return methodChoices[(i+1)%len(methodChoices)]
		}
	}
	return methodChoices[0]
}

func methodLabel(m segmentation.Method) string {
	if m == nil {
		return string(segmentation.MethodKMeans)
	}
	if l, ok := segmentation.LinkageOf(m); ok {
		return fmt.Sprintf("%s (%s linkage)", m.Kind(), l)
	}
	return string(m.Kind())
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")

	switch m.view.Step {
	case segwiz.StepSelectInputs:
		b.WriteString(m.selectView())
	case segwiz.StepConfigureMethod:
		b.WriteString(m.methodView())
	case segwiz.StepDetectParameter:
		b.WriteString(m.detectView())
	case segwiz.StepExecute:
		b.WriteString(m.executeView())
	}

	if m.status != "" {
		b.WriteString("\n" + m.styles.Error.Render(m.status))
	} else if m.view.Error != "" {
		b.WriteString("\n" + m.styles.Error.Render(m.view.Error+" (r to retry)"))
	}
	b.WriteString("\n" + m.styles.Footer.Render(m.help()))
	return b.String()
}

func (m Model) header() string {
	parts := make([]string, len(m.view.Steps))
	for i, id := range m.view.Steps {
		label := fmt.Sprintf("%d. %s", i+1, stepTitles[id])
		if id == m.view.Step {
			parts[i] = m.styles.Active.Render(label)
		} else {
			parts[i] = m.styles.Step.Render(label)
		}
	}
	return m.styles.Header.Render(strings.Join(parts, "  ›  "))
}

func (m Model) selectView() string {
	if len(m.variables) == 0 {
		return m.styles.Muted.Render("No numeric variables available.")
	}
	var b strings.Builder
	b.WriteString("Pick at least two variables:\n\n")
	for i, v := range m.variables {
		cursor := "  "
		if i == m.cursor {
			cursor = m.styles.Cursor.Render("> ")
		}
		box := "[ ]"
		line := v.DisplayName()
		if m.picked[v.Name] {
			box = "[x]"
			line = m.styles.Selected.Render(line)
		}
		fmt.Fprintf(&b, "%s%s %s\n", cursor, box, line)
	}
	return b.String()
}

func (m Model) methodView() string {
	s := m.view.State
	standardize := "off"
	if s.Standardize {
		standardize = "on"
	}
	return fmt.Sprintf("Variables:   %s\nMethod:      %s\nStandardize: %s\n",
		strings.Join(s.Variables, ", "),
		m.styles.Active.Render(methodLabel(s.Method)),
		standardize)
}

func (m Model) detectView() string {
	s := m.view.State
	var b strings.Builder
	if !s.AutoDetect {
		fmt.Fprintf(&b, "Automatic detection is off. Clusters: %s\n",
			m.styles.Active.Render(fmt.Sprint(m.view.EffectiveK)))
		return b.String()
	}
	if m.view.Busy {
		fmt.Fprintf(&b, "%s Sweeping k = %d..%d\n", m.spinner.View(), s.Range.Low, s.Range.High)
		return b.String()
	}
	if s.Detection == nil {
		return m.styles.Muted.Render("No detection result.") + "\n"
	}

	var t strings.Builder
	fmt.Fprintf(&t, "%-4s %-12s %-12s\n", "k", "silhouette", "inertia")
	for i, k := range s.Detection.KValues {
		line := fmt.Sprintf("%-4d %-12s %-12s", k, s.Detection.SilhouetteScores[i].Text(3), s.Detection.Inertias[i].Text(1))
		marker := "  "
		if i == m.view.RecommendedRow {
			marker = "★ "
		}
		if i == m.view.SelectedRow {
			line = m.styles.Selected.Render(line)
			marker = m.styles.Cursor.Render("> ")
		}
		t.WriteString(marker + line + "\n")
	}
	b.WriteString(m.styles.Table.Render(strings.TrimRight(t.String(), "\n")))
	fmt.Fprintf(&b, "\n%s\nUsing k = %d\n", m.styles.Muted.Render(s.Detection.Reason), m.view.EffectiveK)
	return b.String()
}

func (m Model) executeView() string {
	if m.view.Busy {
		return fmt.Sprintf("%s Running segmentation with k = %d\n", m.spinner.View(), m.view.EffectiveK)
	}
	if m.view.State.Result == nil {
		return m.styles.Muted.Render("No result yet.") + "\n"
	}
	return m.viewport.View()
}

func (m Model) help() string {
	switch m.view.Step {
	case segwiz.StepSelectInputs:
		return "↑/↓ move • space toggle • enter next • esc close • q quit"
	case segwiz.StepConfigureMethod:
		return "m method • s standardize • enter next • esc back • q quit"
	case segwiz.StepDetectParameter:
		return "a auto • ↑/↓ pick row • +/- clusters • enter run • esc back • q quit"
	default:
		return "↑/↓ scroll • p persist • r rerun • esc back • ctrl+r reset • q quit"
	}
}
