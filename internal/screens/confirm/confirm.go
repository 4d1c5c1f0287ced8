// Package confirm asks a yes/no question before a destructive action.
package confirm

import (
	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/lessonsync/internal/router"
	"github.com/abhisek/lessonsync/internal/screen"
	"github.com/abhisek/lessonsync/internal/ui/components"
	"github.com/abhisek/lessonsync/internal/ui/layout"
	"github.com/abhisek/lessonsync/internal/ui/theme"
)

// Confirm pops itself on either answer; the yes command runs after the pop.
type Confirm struct {
	title    string
	question string
	menu     components.Menu
}

var _ screen.Screen = (*Confirm)(nil)

func New(title, question, yesLabel string, onYes func() tea.Cmd) *Confirm {
	pop := func(then tea.Cmd) tea.Cmd {
		return func() tea.Msg { return router.PopScreenMsg{Then: then} }
	}
	return &Confirm{
		title:    title,
		question: question,
		menu: components.NewMenu(
			components.Option{Label: "No, keep it", Action: func() tea.Cmd { return pop(nil) }},
			components.Option{Label: yesLabel, Danger: true, Action: func() tea.Cmd { return pop(onYes()) }},
		),
	}
}

func (c *Confirm) Init() tea.Cmd { return nil }

func (c *Confirm) Title() string { return c.title }

func (c *Confirm) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "↑↓/1-2", Description: "Choose"},
		{Key: "Enter", Description: "Confirm"},
		{Key: "Esc", Description: "Cancel"},
	}
}

func (c *Confirm) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	var cmd tea.Cmd
	c.menu, cmd = c.menu.Update(msg)
	return c, cmd
}

func (c *Confirm) View(width, height int) string {
	body := theme.Title.Render(c.title) + "\n\n" + theme.Body.Render(c.question) + "\n\n" + c.menu.View()
	return theme.Card.Width(min(width, 72)).Render(body)
}
