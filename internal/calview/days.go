package calview

import "time"

// Day holds the items starting on one calendar day.
type Day struct {
	Date  time.Time
	Items []Item
}

// Days groups items by the local day they start on, for n days from the
// day containing from. Items outside the window are dropped. Order within a
// day is preserved.
func Days(items []Item, from time.Time, n int, loc *time.Location) []Day {
	if loc == nil {
		loc = time.Local
	}
	from = from.In(loc)
	first := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)

	days := make([]Day, n)
	for i := range days {
		days[i].Date = first.AddDate(0, 0, i)
	}
	for _, it := range items {
		s := it.Start.In(loc)
		d := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
		for i := range days {
			if days[i].Date.Equal(d) {
				days[i].Items = append(days[i].Items, it)
				break
			}
		}
	}
	return days
}

// WeekStart returns midnight of the Monday on or before t.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	offset := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, loc)
}
