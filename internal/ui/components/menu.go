package components

import (
	"strconv"
	"strings"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/lessonsync/internal/ui/theme"
)

// Option is one choice of a Menu. Danger options are drawn in the error
// color.
type Option struct {
	Label  string
	Danger bool
	Action func() tea.Cmd
}

// Menu is a short vertical list of options. Up and down wrap around, and
// the digit keys pick an option directly.
type Menu struct {
	options []Option
	cursor  int
}

// NewMenu creates a menu with the first option highlighted.
func NewMenu(options ...Option) Menu {
	return Menu{options: options}
}

// Cursor is the index of the highlighted option.
func (m Menu) Cursor() int { return m.cursor }

func (m Menu) Update(msg tea.Msg) (Menu, tea.Cmd) {
	key, ok := msg.(tea.KeyPressMsg)
	if !ok || len(m.options) == 0 {
		return m, nil
	}

	n := len(m.options)
	switch s := key.String(); s {
	case "up", "k", "shift+tab":
		m.cursor = (m.cursor + n - 1) % n
	case "down", "j", "tab":
		m.cursor = (m.cursor + 1) % n
	case "enter":
		return m, m.choose()
	default:
		if i, err := strconv.Atoi(s); err == nil && i >= 1 && i <= n {
			m.cursor = i - 1
			return m, m.choose()
		}
	}
	return m, nil
}

func (m Menu) choose() tea.Cmd {
	if a := m.options[m.cursor].Action; a != nil {
		return a()
	}
	return nil
}

func (m Menu) View() string {
	var b strings.Builder
	for i, o := range m.options {
		label := strconv.Itoa(i+1) + ". " + o.Label
		switch {
		case i == m.cursor && o.Danger:
			b.WriteString(theme.ErrorText.Bold(true).Render("> " + label))
		case i == m.cursor:
			b.WriteString(theme.Selected.Render("> " + label))
		default:
			b.WriteString(theme.Unselected.Render("  " + label))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
