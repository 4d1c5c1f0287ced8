package calendar

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// maxOccurrences caps the instances produced for one recurring event.
const maxOccurrences = 500

// expandRecurrence returns the start times of every occurrence of a
// recurring event that overlaps r. exdates are excluded.
func expandRecurrence(rule string, start, end time.Time, exdates []time.Time, r TimeRange) ([]time.Time, error) {
	rr, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("parse RRULE %q: %w", rule, err)
	}
	rr.DTStart(start)

	var set rrule.Set
	set.RRule(rr)
	for _, ex := range exdates {
		set.ExDate(ex.In(start.Location()))
	}

	// An occurrence overlaps r if it starts before r.To and ends after r.From.
	dur := end.Sub(start)
	from := r.From.Add(-dur).In(start.Location())
	to := r.To.In(start.Location())

	var out []time.Time
	for _, occ := range set.Between(from, to, true) {
		if !r.Overlaps(occ, occ.Add(dur)) {
			continue
		}
		out = append(out, occ)
		if len(out) == maxOccurrences {
			break
		}
	}
	return out, nil
}

// occurrenceID names one instance of a recurring event.
func occurrenceID(uid string, start time.Time) string {
	return uid + "@" + start.UTC().Format(icsTimeLayout)
}
