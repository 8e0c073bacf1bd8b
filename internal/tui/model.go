// Package tui is the terminal tiger search: a debounced search box over the
// tiger registry with confidence-colored results.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sweeney/tigerwatch/internal/api"
	"github.com/sweeney/tigerwatch/internal/confidence"
)

// ResultsMsg delivers the outcome of a committed search.
type ResultsMsg struct {
	Query  string
	Tigers []api.Tiger
	Total  int
	Err    error
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F97316"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#DC2626"))
)

// PaletteStyle renders text in a confidence palette.
func PaletteStyle(p confidence.Palette) lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(p.Foreground)).
		Background(lipgloss.Color(p.Background)).
		Padding(0, 1)
}

// Model is the search screen.
type Model struct {
	input     textinput.Model
	table     table.Model
	search    func(string)
	tigers    []api.Tiger
	total     int
	lastQuery string
	searching bool
	err       error
	width     int
}

// New returns a search screen that hands every edit of the query to
// search.
func New(search func(string)) Model {
	in := textinput.New()
	in.Placeholder = "Search tigers by name, id or facility..."
	in.CharLimit = 80
	in.Width = 50
	in.Focus()

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 12},
			{Title: "Name", Width: 20},
			{Title: "Status", Width: 12},
			{Title: "Confidence", Width: 18},
			{Title: "Model", Width: 16},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	return Model{input: in, table: t, search: search, searching: true}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.table, cmd = m.table.Update(msg)
			return m, cmd
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if h := msg.Height - 8; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil
	case ResultsMsg:
		if msg.Query != m.input.Value() {
			// answers a query the user has already typed past
			return m, nil
		}
		m.lastQuery = msg.Query
		m.searching = false
		m.err = msg.Err
		if msg.Err == nil {
			m.tigers = msg.Tigers
			m.total = msg.Total
			m.table.SetRows(rows(msg.Tigers))
			m.table.SetCursor(0)
		}
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if v := m.input.Value(); v != before {
		m.searching = true
		m.search(v)
	}
	return m, tea.Batch(cmds...)
}

func rows(tigers []api.Tiger) []table.Row {
	out := make([]table.Row, 0, len(tigers))
	for _, t := range tigers {
		level := confidence.Classify(t.Confidence)
		out = append(out, table.Row{
			t.ID,
			t.Name,
			t.Status,
			fmt.Sprintf("%s %s", confidence.Percent(t.Confidence), level.Label()),
			t.Model,
		})
	}
	return out
}

// Selected returns the tiger under the cursor.
func (m Model) Selected() (api.Tiger, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.tigers) {
		return api.Tiger{}, false
	}
	return m.tigers[i], true
}

// View renders the screen.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Tigerwatch") + " " + dimStyle.Render("tiger search") + "\n\n")
	b.WriteString(m.input.View() + "\n")

	switch {
	case m.err != nil:
		b.WriteString(errStyle.Render("search failed: "+m.err.Error()) + "\n")
	case m.searching:
		b.WriteString(dimStyle.Render("searching...") + "\n")
	default:
		b.WriteString(dimStyle.Render(fmt.Sprintf("%d of %d tigers for %q", len(m.tigers), m.total, m.lastQuery)) + "\n")
	}

	b.WriteString(m.table.View() + "\n")

	if t, ok := m.Selected(); ok {
		level := confidence.Classify(t.Confidence)
		b.WriteString(fmt.Sprintf("%s  %s  %s\n",
			t.Name,
			PaletteStyle(confidence.Colors(level)).Render(confidence.Percent(t.Confidence)+" "+level.Label()),
			PaletteStyle(confidence.ModelColors(t.Model)).Render(t.Model),
		))
	}
	b.WriteString(dimStyle.Render("type to search • ↑/↓ select • esc quit") + "\n")
	return b.String()
}
