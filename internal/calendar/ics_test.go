package calendar

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newICSTestProvider(t *testing.T) (*ICSProvider, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cal", "lessons.ics")
	p, err := NewICSProvider(ICSConfig{Path: path})
	require.NoError(t, err)
	return p, path
}

func TestICSProvider_CRUD(t *testing.T) {
	p, path := newICSTestProvider(t)
	ctx := context.Background()

	ev := descriptor()
	ev.Location = "Room 4"
	ev.Attendee = "ana@example.com"
	created, err := p.Create(ctx, "", ev)
	require.NoError(t, err)
	assert.Equal(t, keyedEventID(ev.Key), created.ID)
	assert.Equal(t, "lesson-1", created.Key)
	assert.Empty(t, created.ConferencingLink)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "X-LESSONSYNC-KEY:lesson-1")

	// A fresh provider re-reads the file.
	other, err := NewICSProvider(ICSConfig{Path: path})
	require.NoError(t, err)
	got, err := other.Get(ctx, "", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lesson with Ana", got.Title)
	assert.Equal(t, "Room 4", got.Location)
	assert.True(t, got.Start.Equal(ev.Start))

	newStart := ev.Start.Add(2 * time.Hour)
	updated, err := p.Update(ctx, "", created.ID, Reschedule(newStart, newStart.Add(50*time.Minute)))
	require.NoError(t, err)
	assert.True(t, updated.Start.Equal(newStart))

	require.NoError(t, p.Delete(ctx, "", created.ID))
	_, err = p.Get(ctx, "", created.ID)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(p.Delete(ctx, "", created.ID)))
}

func TestICSProvider_CreateIsIdempotent(t *testing.T) {
	p, path := newICSTestProvider(t)
	ctx := context.Background()

	a, err := p.Create(ctx, "", descriptor())
	require.NoError(t, err)
	b, err := p.Create(ctx, "", descriptor())
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "BEGIN:VEVENT"))
}

const recurringCalendar = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:weekly-1\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20240101T100000Z\r\n" +
	"DTEND:20240101T110000Z\r\n" +
	"RRULE:FREQ=WEEKLY;COUNT=10\r\n" +
	"EXDATE:20240212T100000Z\r\n" +
	"SUMMARY:Choir\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestICSProvider_RecurringOccurrences(t *testing.T) {
	p, path := newICSTestProvider(t)
	ctx := context.Background()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(recurringCalendar), 0o644))

	r := TimeRange{
		From: time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC),
	}
	got, err := p.List(ctx, "", r)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "weekly-1@20240205T100000Z", got[0].ID)
	assert.Equal(t, "weekly-1@20240219T100000Z", got[1].ID)
	assert.Equal(t, time.Hour, got[1].End.Sub(got[1].Start))
	assert.True(t, got[0].ReadOnly)

	occ, err := p.Get(ctx, "", got[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Choir", occ.Title)

	start := got[0].Start.Add(time.Hour)
	_, err = p.Update(ctx, "", got[0].ID, Reschedule(start, start.Add(time.Hour)))
	assert.Equal(t, KindInvalidRequest, Classify(err))
	assert.Equal(t, KindInvalidRequest, Classify(p.Delete(ctx, "", got[0].ID)))
}

func TestExpandRecurrence_OverlapAtRangeStart(t *testing.T) {
	start := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)
	r := TimeRange{
		From: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
	}
	got, err := expandRecurrence("FREQ=DAILY;COUNT=3", start, start.Add(time.Hour), nil, r)
	require.NoError(t, err)
	// The Jan 1 occurrence runs past midnight and overlaps; Jan 2 starts inside.
	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(start))

	_, err = expandRecurrence("FREQ=SOMETIMES", start, start.Add(time.Hour), nil, r)
	assert.Error(t, err)
}
