package monitor

import (
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/f18m/lime2node"
)

var stateColors = map[string]lipgloss.Color{
	lime2node.OperationAcked:       lipgloss.Color("#5fd75f"),
	lime2node.OperationUnconfirmed: lipgloss.Color("#ffaf00"),
	lime2node.OperationBusy:        lipgloss.Color("#ffaf00"),
	lime2node.OperationFailed:      lipgloss.Color("#ff5f5f"),
	lime2node.OperationRejected:    lipgloss.Color("#ff5f5f"),
}

type model struct {
	table table.Model
}

func newTUI() *model {
	columns := []table.Column{
		{Title: "Started", Width: 20},
		{Title: "Command", Width: 20},
		{Title: "Param", Width: 6},
		{Title: "State", Width: 14},
		{Title: "Duration", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		Foreground(lipgloss.Color("#00afff")).
		BorderForeground(lipgloss.Color("#00afff")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#ffffff")).
		Bold(false)
	t.SetStyles(s)

	return &model{
		table: t,
	}
}

func (m *model) Init() tea.Cmd {
	return nil
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.table.SetHeight(msg.Height)
	case []lime2node.Operation:
		m.update(msg)
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	}
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *model) View() string {
	return m.table.View()
}

func (m *model) update(ops []lime2node.Operation) {
	// Most recent first.
	slices.SortStableFunc(ops, func(a, b lime2node.Operation) int {
		return b.StartedAt.Compare(a.StartedAt)
	})

	rows := make([]table.Row, 0, len(ops))
	for _, op := range ops {
		state := op.State
		if c, ok := stateColors[op.State]; ok {
			state = lipgloss.NewStyle().Foreground(c).Render(op.State)
		}

		duration := "-"
		if op.Done() {
			duration = op.FinishedAt.Sub(op.StartedAt).Round(time.Second).String()
		}

		rows = append(rows, table.Row{
			op.StartedAt.Local().Format("2006-01-02 15:04:05"),
			op.Command,
			fmt.Sprint(op.Parameter),
			state,
			duration,
		})
	}

	m.table.SetRows(rows)
}
