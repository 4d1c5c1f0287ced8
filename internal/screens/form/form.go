// Package form is a generic screen of labelled text fields.
package form

import (
	"strings"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/lessonsync/internal/router"
	"github.com/abhisek/lessonsync/internal/screen"
	"github.com/abhisek/lessonsync/internal/ui/components"
	"github.com/abhisek/lessonsync/internal/ui/layout"
	"github.com/abhisek/lessonsync/internal/ui/theme"
)

// Field describes one input.
type Field struct {
	Key         string
	Label       string
	Placeholder string
	Value       string
	Numeric     bool
	Limit       int
}

// Values are the submitted inputs by field key, trimmed.
type Values map[string]string

// SubmitFunc validates values and returns the command that carries out the
// action. A non-nil error keeps the form open and is shown under it.
type SubmitFunc func(Values) (tea.Cmd, error)

// Form collects values and hands them to a SubmitFunc. On success it pops
// itself before the returned command runs, so the command's message reaches
// the screen below.
type Form struct {
	title  string
	keys   []string
	inputs []components.TextInput
	focus  int
	submit SubmitFunc
	err    string
}

var _ screen.Screen = (*Form)(nil)

func New(title string, fields []Field, submit SubmitFunc) *Form {
	f := &Form{title: title, submit: submit}
	for _, fd := range fields {
		in := components.NewTextInput(fd.Label, fd.Placeholder, fd.Value, fd.Limit)
		in.NumericOnly = fd.Numeric
		f.keys = append(f.keys, fd.Key)
		f.inputs = append(f.inputs, in)
	}
	return f
}

func (f *Form) Init() tea.Cmd {
	if len(f.inputs) == 0 {
		return nil
	}
	return f.inputs[0].Focus()
}

func (f *Form) Title() string { return f.title }

func (f *Form) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "Tab", Description: "Next field"},
		{Key: "Enter", Description: "Save"},
		{Key: "Esc", Description: "Cancel"},
	}
}

func (f *Form) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	if kmsg, ok := msg.(tea.KeyMsg); ok {
		switch kmsg.String() {
		case "tab", "down":
			return f, f.move(1)
		case "shift+tab", "up":
			return f, f.move(-1)
		case "enter":
			return f, f.save()
		}
	}
	if len(f.inputs) == 0 {
		return f, nil
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return f, cmd
}

func (f *Form) move(delta int) tea.Cmd {
	if len(f.inputs) == 0 {
		return nil
	}
	f.inputs[f.focus].Blur()
	f.focus = (f.focus + delta + len(f.inputs)) % len(f.inputs)
	return f.inputs[f.focus].Focus()
}

func (f *Form) save() tea.Cmd {
	cmd, err := f.submit(f.Values())
	if err != nil {
		f.err = err.Error()
		return nil
	}
	f.err = ""
	return func() tea.Msg { return router.PopScreenMsg{Then: cmd} }
}

// Values returns the current inputs.
func (f *Form) Values() Values {
	v := make(Values, len(f.inputs))
	for i, in := range f.inputs {
		v[f.keys[i]] = in.Value()
	}
	return v
}

func (f *Form) View(width, height int) string {
	var b strings.Builder
	b.WriteString(theme.Title.Render(f.title))
	b.WriteString("\n\n")
	for _, in := range f.inputs {
		b.WriteString(in.View())
		b.WriteString("\n\n")
	}
	if f.err != "" {
		b.WriteString(theme.ErrorText.Render(f.err))
	}
	return theme.Card.Width(min(width, 72)).Render(b.String())
}
