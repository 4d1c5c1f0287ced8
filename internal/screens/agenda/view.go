package agenda

import (
	"strconv"
	"strings"
	"time"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/lessonsync/internal/calview"
	"github.com/abhisek/lessonsync/internal/lesson"
	"github.com/abhisek/lessonsync/internal/ui/layout"
	"github.com/abhisek/lessonsync/internal/ui/theme"
)

func (a *Agenda) View(width, height int) string {
	lines, sel := a.lines(width)

	footer := a.statusLine()
	body := max(height-lipgloss.Height(footer)-1, 1)

	// Keep the selected line on screen.
	top := 0
	if sel >= body {
		top = sel - body + 1
	}
	end := min(top+body, len(lines))
	visible := lines[min(top, end):end]

	return strings.Join(visible, "\n") + strings.Repeat("\n", body-len(visible)+1) + footer
}

// lines renders the week and returns the index of the selected line.
func (a *Agenda) lines(width int) ([]string, int) {
	today := a.now().In(a.loc)
	compact := layout.IsCompactWidth(width)

	var out []string
	sel := 0
	idx := 0
	for _, day := range calview.Days(a.items, a.week, 7, a.loc) {
		head := day.Date.Format("Mon Jan 2")
		if sameDay(day.Date, today) {
			out = append(out, theme.Today.Render("  "+head+"  (today)"))
		} else {
			out = append(out, theme.DayHeader.Render("  "+head))
		}
		if len(day.Items) == 0 {
			out = append(out, theme.Hint.Render("      nothing scheduled"))
		}
		for _, it := range day.Items {
			if idx == a.selected {
				sel = len(out)
			}
			out = append(out, a.itemLine(it, idx == a.selected, compact))
			idx++
		}
	}
	return out, sel
}

func (a *Agenda) itemLine(it calview.Item, selected, compact bool) string {
	start, end := it.Start.In(a.loc), it.End.In(a.loc)
	when := start.Format("15:04") + "-" + end.Format("15:04")
	if !sameDay(start, end) {
		when = start.Format("15:04") + "-" + end.Format("Jan 2 15:04")
	}

	prefix := "    "
	if selected {
		prefix = "  > "
	}
	title := it.Title
	if it.Origin == calview.OriginRemote {
		title += " (calendar)"
	}

	style := theme.Unselected
	if it.Origin == calview.OriginRemote {
		style = theme.Remote
	}
	if selected {
		style = theme.Selected
	}
	line := style.Render(prefix + when + "  " + title)

	if mark := syncMark(it); mark != "" {
		line += "  " + mark
	}
	if !compact && it.ConferencingLink != "" {
		line += "  " + theme.Hint.Render(it.ConferencingLink)
	}
	return line
}

func syncMark(it calview.Item) string {
	if it.Origin != calview.OriginLocal {
		if !it.Editable {
			return theme.Hint.Render("read-only")
		}
		return ""
	}
	switch {
	case it.Status == lesson.StatusCompleted:
		return theme.Hint.Render("completed")
	case it.Detached:
		return theme.Detached.Render("event removed, press r to re-create")
	case it.NeedsSync:
		return theme.Pending.Render("pending sync")
	case it.SyncError != "":
		return theme.Detached.Render("not synced")
	case it.RemoteID != "":
		return theme.Synced.Render("synced")
	}
	return theme.Pending.Render("not synced")
}

func (a *Agenda) statusLine() string {
	var parts []string
	if a.loading {
		parts = append(parts, theme.Hint.Render("Loading..."))
	}
	if a.message != "" {
		if a.failed {
			parts = append(parts, theme.ErrorText.Render(a.message))
		} else {
			parts = append(parts, theme.Body.Render(a.message))
		}
	}
	if a.view != nil && !a.view.RemoteOK && a.view.Status != "" {
		parts = append(parts, theme.Pending.Render(a.view.Status))
	}
	return "  " + strings.Join(parts, "  ")
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func itoa(n int) string { return strconv.Itoa(n) }
