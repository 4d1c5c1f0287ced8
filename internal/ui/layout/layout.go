// Package layout draws the frame around the active screen: a one-line
// header bar, the screen content and a footer of key hints.
package layout

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/lessonsync/internal/ui/theme"
)

const (
	MinWidth  = 64
	MinHeight = 16

	// Below this width the agenda drops the sync column.
	CompactWidthThreshold = 100
)

// KeyHint is a key and what it does, shown in the footer.
type KeyHint struct {
	Key         string
	Description string
}

func IsCompactWidth(width int) bool {
	return width < CompactWidthThreshold
}

func IsTooSmall(width, height int) bool {
	return width < MinWidth || height < MinHeight
}

// RenderMinSizeMessage asks the user to enlarge the terminal.
func RenderMinSizeMessage(width, height int) string {
	return lipgloss.NewStyle().
		Width(width).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.TextDim).
		Render(fmt.Sprintf("The agenda needs at least %dx%d.\nThis terminal is %dx%d.",
			MinWidth, MinHeight, width, height))
}

var (
	barStyle   = lipgloss.NewStyle().Background(theme.BgCard).Foreground(theme.Text)
	brandStyle = barStyle.Foreground(theme.Primary).Bold(true)
	titleStyle = barStyle.Bold(true)
	statStyle  = barStyle.Foreground(theme.Accent)
	keyStyle   = lipgloss.NewStyle().Foreground(theme.Text).Bold(true)
	descStyle  = lipgloss.NewStyle().Foreground(theme.TextDim)
)

// RenderHeader draws the top bar: the app name, the screen title and, on
// the right, status such as the calendar connection. The status is dropped
// when the bar is too narrow for all three.
func RenderHeader(title, status string, width int) string {
	left := brandStyle.Render(" lessonsync ") + titleStyle.Render(" "+title)
	right := statStyle.Render(status + " ")
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		right, gap = "", max(width-lipgloss.Width(left), 0)
	}
	return left + barStyle.Render(strings.Repeat(" ", gap)) + right
}

// RenderFooter draws as many key hints as fit on one line.
func RenderFooter(hints []KeyHint, width int) string {
	const sep = "  "
	var b strings.Builder
	used := 1
	b.WriteString(" ")
	for i, h := range hints {
		part := keyStyle.Render(h.Key) + " " + descStyle.Render(h.Description)
		w := lipgloss.Width(part)
		if i > 0 {
			w += len(sep)
		}
		if used+w > width {
			break
		}
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(part)
		used += w
	}
	return lipgloss.NewStyle().
		Width(width).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(theme.Border).
		Render(b.String())
}

// RenderFrame stacks header, content and footer, giving the content all
// rows the other two leave.
func RenderFrame(header, content, footer string, width, height int) string {
	rows := max(height-lipgloss.Height(header)-lipgloss.Height(footer), 0)
	body := lipgloss.NewStyle().Width(width).Height(rows).MaxHeight(rows).Render(content)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}
