package agenda

import (
	"context"
	"errors"
	"strconv"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/lessonsync/internal/calview"
	"github.com/abhisek/lessonsync/internal/reconcile"
	"github.com/abhisek/lessonsync/internal/screens/form"
	"github.com/abhisek/lessonsync/internal/surface"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// defaultSlot picks the start offered for a new lesson: the selected item's
// day, or today when it is in view, at the next full hour.
func (a *Agenda) defaultSlot() time.Time {
	now := a.now().In(a.loc)
	day := a.week
	if it, ok := a.current(); ok {
		day = it.Start.In(a.loc)
	} else if !now.Before(a.week) && now.Before(a.week.AddDate(0, 0, 7)) {
		day = now
	}
	y, m, d := day.Date()
	if y == now.Year() && m == now.Month() && d == now.Day() {
		return now.Truncate(time.Hour).Add(time.Hour)
	}
	return time.Date(y, m, d, 9, 0, 0, 0, a.loc)
}

func (a *Agenda) createForm() *form.Form {
	at := a.defaultSlot()
	return form.New("New lesson", []form.Field{
		{Key: "student", Label: "Student", Placeholder: "Name", Limit: 200},
		{Key: "email", Label: "Student email (optional)", Limit: 200},
		{Key: "date", Label: "Date", Value: at.Format(dateLayout), Limit: 10},
		{Key: "time", Label: "Start", Value: at.Format(clockLayout), Limit: 5},
		{Key: "duration", Label: "Minutes", Value: strconv.Itoa(surface.DefaultDuration), Numeric: true, Limit: 3},
		{Key: "notes", Label: "Notes", Limit: 500},
	}, func(v form.Values) (tea.Cmd, error) {
		if v["student"] == "" {
			return nil, errors.New("student is required")
		}
		start, err := parseWhen(v["date"], v["time"], a.loc)
		if err != nil {
			return nil, err
		}
		dur, err := parseMinutes(v["duration"])
		if err != nil {
			return nil, err
		}
		req := surface.CreateRequest{
			StudentName:  v["student"],
			StudentEmail: v["email"],
			DurationMin:  dur,
			Notes:        v["notes"],
		}
		return a.run(func(ctx context.Context) surface.Result {
			return a.surface.CreateAt(ctx, start, req)
		}), nil
	})
}

func (a *Agenda) editForm(it calview.Item) *form.Form {
	start := it.Start.In(a.loc)
	mins := strconv.Itoa(int(it.Duration() / time.Minute))
	when := []form.Field{
		{Key: "date", Label: "Date", Value: start.Format(dateLayout), Limit: 10},
		{Key: "time", Label: "Start", Value: start.Format(clockLayout), Limit: 5},
		{Key: "duration", Label: "Minutes", Value: mins, Numeric: true, Limit: 3},
	}

	if it.Origin == calview.OriginLocal {
		fields := append([]form.Field{
			{Key: "student", Label: "Student", Value: it.StudentName, Limit: 200},
			{Key: "email", Label: "Student email", Placeholder: "unchanged", Limit: 200},
		}, when...)
		fields = append(fields, form.Field{Key: "notes", Label: "Notes", Value: it.Description, Limit: 500})
		return form.New("Edit lesson", fields, func(v form.Values) (tea.Cmd, error) {
			e, err := a.timeEdit(it, v)
			if err != nil {
				return nil, err
			}
			if v["student"] == "" {
				return nil, errors.New("student is required")
			}
			e.StudentName = changed(it.StudentName, v["student"])
			if email := v["email"]; email != "" {
				e.StudentEmail = &email
			}
			e.Notes = changed(it.Description, v["notes"])
			return a.run(func(ctx context.Context) surface.Result {
				return a.surface.EditItem(ctx, it, e)
			}), nil
		})
	}

	fields := append([]form.Field{{Key: "title", Label: "Title", Value: it.Title, Limit: 200}}, when...)
	fields = append(fields,
		form.Field{Key: "location", Label: "Location", Value: it.Location, Limit: 200},
		form.Field{Key: "description", Label: "Description", Value: it.Description, Limit: 500},
	)
	return form.New("Edit event", fields, func(v form.Values) (tea.Cmd, error) {
		e, err := a.timeEdit(it, v)
		if err != nil {
			return nil, err
		}
		e.Title = changed(it.Title, v["title"])
		e.Location = changed(it.Location, v["location"])
		e.Description = changed(it.Description, v["description"])
		return a.run(func(ctx context.Context) surface.Result {
			return a.surface.EditItem(ctx, it, e)
		}), nil
	})
}

// timeEdit returns an Edit carrying the start and length when they differ
// from the item.
func (a *Agenda) timeEdit(it calview.Item, v form.Values) (surface.Edit, error) {
	var e surface.Edit
	start, err := parseWhen(v["date"], v["time"], a.loc)
	if err != nil {
		return e, err
	}
	dur, err := parseMinutes(v["duration"])
	if err != nil {
		return e, err
	}
	if !start.Equal(it.Start) {
		e.Start = &start
	}
	if time.Duration(dur)*time.Minute != it.Duration() {
		e.DurationMin = &dur
	}
	return e, nil
}

func (a *Agenda) importForm(it calview.Item) *form.Form {
	return form.New("Import \""+it.Title+"\" as a lesson", []form.Field{
		{Key: "student", Label: "Student", Limit: 200},
		{Key: "email", Label: "Student email (optional)", Limit: 200},
	}, func(v form.Values) (tea.Cmd, error) {
		if v["student"] == "" {
			return nil, errors.New("student is required")
		}
		req := reconcile.ImportRequest{StudentName: v["student"], StudentEmail: v["email"]}
		return a.run(func(ctx context.Context) surface.Result {
			return a.surface.Import(ctx, it.Key, req)
		}), nil
	})
}

func parseWhen(date, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout+" "+clockLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, errors.New("date must look like 2024-02-05 and start like 14:00")
	}
	return t, nil
}

func parseMinutes(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("minutes must be a positive number")
	}
	return n, nil
}

func changed(old, cur string) *string {
	if old == cur {
		return nil
	}
	return &cur
}
