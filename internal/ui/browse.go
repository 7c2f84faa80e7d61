// Package ui renders the task list as an interactive terminal view over
// the optimistic client controller: live search, status filter cycling,
// pagination, optimistic edits with rollback, and a conflict resolution
// menu when a patch loses the version race.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/taskwell/taskwell/internal/client"
	"github.com/taskwell/taskwell/internal/query"
	"github.com/taskwell/taskwell/internal/task"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	conflictStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	tagStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	busyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

// stateChangedMsg tells the program the controller mutated its state.
type stateChangedMsg struct{}

// statusCycle is the order the status filter steps through; "" is all.
var statusCycle = []task.Status{"", task.StatusTodo, task.StatusInProgress, task.StatusDone, task.StatusArchived}

// Model is the bubbletea model for the browse view.
type Model struct {
	ctrl      *client.Controller
	search    textinput.Model
	cursor    int
	width     int
	height    int
	searching bool
	quitting  bool
}

// NewModel builds the browse view over an existing controller.
func NewModel(ctrl *client.Controller) *Model {
	ti := textinput.New()
	ti.Placeholder = "search title or description"
	ti.CharLimit = 200
	ti.Width = 40
	return &Model{ctrl: ctrl, search: ti}
}

// Run starts the program and blocks until the user quits.
func Run(ctrl *client.Controller) error {
	m := NewModel(ctrl)
	p := tea.NewProgram(m, tea.WithAltScreen())
	// Repaint whenever the controller reconciles an operation.
	ctrl.OnChange(func() { p.Send(stateChangedMsg{}) })
	ctrl.Refresh()
	_, err := p.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case stateChangedMsg:
		m.clampCursor()
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m *Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.searching = false
		m.search.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.ctrl.SetSearch(m.search.Value())
	return m, cmd
}

func (m *Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	st := m.ctrl.State()

	// A selected conflicted record captures v/o/c for resolution.
	if sel := m.selected(st); sel != nil {
		if _, ok := st.Conflicts[sel.ID]; ok {
			switch msg.String() {
			case "v":
				go m.ctrl.ResolveView(sel.ID)
				return m, nil
			case "o":
				go m.ctrl.ResolveOverwrite(context.Background(), sel.ID)
				return m, nil
			case "c":
				m.ctrl.ResolveCancel(sel.ID)
				return m, nil
			}
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "/":
		m.searching = true
		m.search.Focus()
		return m, textinput.Blink
	case "j", "down":
		m.cursor++
		m.clampCursor()
	case "k", "up":
		m.cursor--
		m.clampCursor()
	case "n", "right":
		if st.HasMore {
			m.ctrl.SetPage(st.Page + 1)
		}
	case "p", "left":
		if st.Page > 1 {
			m.ctrl.SetPage(st.Page - 1)
		}
	case "r":
		m.ctrl.Refresh()
	case "s":
		m.ctrl.SetFilters(func(p *query.Params) {
			p.Status = nextStatus(p.Status)
		})
	case "O":
		m.ctrl.SetFilters(func(p *query.Params) {
			p.Overdue = !p.Overdue
		})
	case "enter", " ":
		if sel := m.selected(st); sel != nil {
			next := nextWorkStatus(sel.Status)
			go m.ctrl.Update(context.Background(), sel.ID, task.Patch{Status: &next})
		}
	case "d":
		if sel := m.selected(st); sel != nil {
			go m.ctrl.Delete(context.Background(), sel.ID)
		}
	}
	return m, nil
}

func (m *Model) selected(st client.State) *task.Task {
	if m.cursor < 0 || m.cursor >= len(st.Items) {
		return nil
	}
	t := st.Items[m.cursor]
	return &t
}

func (m *Model) clampCursor() {
	n := len(m.ctrl.State().Items)
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	st := m.ctrl.State()

	var b strings.Builder
	header := titleStyle.Render("taskwell")
	if st.InFlight > 0 {
		header += " " + busyStyle.Render(fmt.Sprintf("(%d in flight)", st.InFlight))
	}
	b.WriteString(header + "\n")

	filter := fmt.Sprintf("page %d/%d  total %d  sort %s %s",
		st.Page, maxPage(st.Total, st.PageSize), st.Total, st.Params.Sort, st.Params.Order)
	if st.Params.Status != "" {
		filter += "  status=" + string(st.Params.Status)
	}
	if st.Params.Overdue {
		filter += "  overdue"
	}
	b.WriteString(dimStyle.Render(filter) + "\n")

	if m.searching || m.search.Value() != "" {
		b.WriteString(m.search.View() + "\n")
	}
	if st.Err != nil {
		b.WriteString(errorStyle.Render("error: "+st.Err.Message) + "\n")
	}
	b.WriteString("\n")

	if len(st.Items) == 0 && !st.Loading {
		b.WriteString(dimStyle.Render("  no tasks match") + "\n")
	}

	for i, t := range st.Items {
		line := renderTask(t, st)
		if i == m.cursor {
			line = selectedStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
		if conflict, ok := st.Conflicts[t.ID]; ok && i == m.cursor {
			b.WriteString(conflictStyle.Render(fmt.Sprintf(
				"    modified on server (v%d): [v]iew server copy  [o]verwrite  [c]ancel",
				conflict.Server.Version)) + "\n")
		}
	}

	b.WriteString("\n" + dimStyle.Render(
		"j/k move  enter advance status  d delete  / search  s status filter  O overdue  n/p page  r refresh  q quit"))
	return b.String()
}

func renderTask(t task.Task, st client.State) string {
	status := fmt.Sprintf("[%s]", t.Status)
	line := fmt.Sprintf("%-13s P%d  %s", status, t.Priority, t.Title)
	if len(t.Tags) > 0 {
		line += "  " + tagStyle.Render("#"+strings.Join(t.Tags, " #"))
	}
	if t.DueAt != nil {
		due := t.DueAt.Format("2006-01-02")
		if t.DueAt.Before(time.Now()) && t.Status != task.StatusDone && t.Status != task.StatusArchived {
			due = errorStyle.Render(due + " overdue")
		}
		line += "  " + dimStyle.Render("due "+due)
	}
	switch {
	case st.Updating[t.ID]:
		line += " " + busyStyle.Render("updating…")
	case st.Deleting[t.ID]:
		line += " " + busyStyle.Render("deleting…")
	}
	if _, ok := st.Conflicts[t.ID]; ok {
		line += " " + conflictStyle.Render("conflict!")
	}
	return line
}

func nextStatus(s task.Status) task.Status {
	for i, cur := range statusCycle {
		if cur == s {
			return statusCycle[(i+1)%len(statusCycle)]
		}
	}
	return ""
}

// nextWorkStatus advances a task along todo -> in_progress -> done -> todo.
func nextWorkStatus(s task.Status) task.Status {
	switch s {
	case task.StatusTodo:
		return task.StatusInProgress
	case task.StatusInProgress:
		return task.StatusDone
	default:
		return task.StatusTodo
	}
}

func maxPage(total, pageSize int) int {
	if pageSize < 1 {
		return 1
	}
	n := (total + pageSize - 1) / pageSize
	if n < 1 {
		n = 1
	}
	return n
}
