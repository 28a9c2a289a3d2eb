package components

import (
	"fmt"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/mindbridge/mindbridge/internal/ui/theme"
)

// Choice is one selectable option.
type Choice struct {
	Label string
	Value string
}

// MultiChoice is a single-choice selector. Options can be picked with the
// arrow keys or their number; enter confirms.
type MultiChoice struct {
	Question  string
	Options   []Choice
	Selected  int
	Chosen    int
	Submitted bool
}

// NewMultiChoice creates a selector. If current matches an option value that
// option is preselected and marked as the existing answer.
func NewMultiChoice(question string, options []Choice, current string) MultiChoice {
	m := MultiChoice{
		Question: question,
		Options:  options,
		Chosen:   -1,
	}
	for i, o := range options {
		if current != "" && o.Value == current {
			m.Selected = i
			m.Chosen = i
			break
		}
	}
	return m
}

// Init returns nil.
func (m MultiChoice) Init() tea.Cmd {
	return nil
}

// Update handles keyboard navigation and selection.
func (m MultiChoice) Update(msg tea.Msg) (MultiChoice, tea.Cmd) {
	if m.Submitted {
		return m, nil
	}

	kmsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	key := kmsg.String()
	switch key {
	case "up", "k":
		if m.Selected > 0 {
			m.Selected--
		}
	case "down", "j":
		if m.Selected < len(m.Options)-1 {
			m.Selected++
		}
	case "enter":
		if len(m.Options) > 0 {
			m.Submitted = true
			m.Chosen = m.Selected
		}
	default:
		if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
			if i := int(key[0] - '1'); i < len(m.Options) {
				m.Selected = i
			}
		}
	}

	return m, nil
}

// Value returns the value of the confirmed option, or "" if none.
func (m MultiChoice) Value() string {
	if m.Chosen < 0 || m.Chosen >= len(m.Options) {
		return ""
	}
	return m.Options[m.Chosen].Value
}

// Reset clears the submitted flag so the selector accepts input again.
func (m *MultiChoice) Reset() {
	m.Submitted = false
}

// View renders the selector.
func (m MultiChoice) View() string {
	questionStyle := lipgloss.NewStyle().Foreground(theme.Text).Bold(true)
	s := questionStyle.Render(m.Question) + "\n\n"

	for i, opt := range m.Options {
		prefix := "  "
		if i == m.Selected {
			prefix = "▸ "
		}
		line := fmt.Sprintf("%s%d)  %s", prefix, i+1, opt.Label)

		switch {
		case i == m.Selected:
			s += theme.Selected.Render(line)
		case i == m.Chosen:
			s += theme.Chosen.Render(line)
		default:
			s += theme.Unselected.Render(line)
		}
		if i == m.Chosen {
			s += lipgloss.NewStyle().Foreground(theme.Secondary).Render("  ✓")
		}
		s += "\n"
	}

	return s
}
