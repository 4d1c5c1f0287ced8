package calendar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ics "github.com/arran4/golang-ical"
)

const (
	icsTimeLayout = "20060102T150405Z"
	icsKeyProp    = ics.ComponentProperty("X-LESSONSYNC-KEY")
)

// ICSConfig holds configuration for the local iCalendar file backend.
type ICSConfig struct {
	Path string `yaml:"path"`
}

// ICSProvider keeps events in a local .ics file. The file is re-read on every
// call so external edits are picked up. It cannot mint conferencing links.
// Recurring events added externally are listed as individual occurrences and
// are read-only.
type ICSProvider struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

// NewICSProvider creates a provider backed by the file at cfg.Path.
func NewICSProvider(cfg ICSConfig) (*ICSProvider, error) {
	if cfg.Path == "" {
		return nil, errors.New("ics calendar: path is required")
	}
	return &ICSProvider{path: cfg.Path, now: time.Now}, nil
}

func (p *ICSProvider) Name() string { return "ics" }

func (p *ICSProvider) load() (*ics.Calendar, error) {
	f, err := os.Open(p.path)
	if errors.Is(err, os.ErrNotExist) {
		cal := ics.NewCalendar()
		cal.SetMethod(ics.MethodPublish)
		cal.SetProductId("-//lessonsync//EN")
		return cal, nil
	}
	if err != nil {
		return nil, &ErrTransient{Err: fmt.Errorf("open calendar file: %w", err)}
	}
	defer f.Close()

	cal, err := ics.ParseCalendar(f)
	if err != nil {
		return nil, &ErrInvalidResponse{Err: fmt.Errorf("parse calendar file: %w", err)}
	}
	return cal, nil
}

// save writes the calendar atomically.
func (p *ICSProvider) save(cal *ics.Calendar) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return &ErrTransient{Err: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".lessonsync-*.ics")
	if err != nil {
		return &ErrTransient{Err: err}
	}
	if _, err := tmp.WriteString(cal.Serialize()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &ErrTransient{Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &ErrTransient{Err: err}
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		os.Remove(tmp.Name())
		return &ErrTransient{Err: err}
	}
	return nil
}

func (p *ICSProvider) Create(_ context.Context, _ string, ev EventDescriptor) (*RemoteEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cal, err := p.load()
	if err != nil {
		return nil, err
	}
	for _, ve := range cal.Events() {
		if propValue(ve, icsKeyProp) == ev.Key {
			return fromVEvent(ve)
		}
	}

	now := p.now().UTC()
	ve := cal.AddEvent(keyedEventID(ev.Key))
	ve.SetDtStampTime(now)
	ve.SetModifiedAt(now)
	ve.SetStartAt(ev.Start.UTC())
	ve.SetEndAt(ev.End.UTC())
	ve.SetSummary(ev.Title)
	if ev.Description != "" {
		ve.SetDescription(ev.Description)
	}
	if ev.Location != "" {
		ve.SetLocation(ev.Location)
	}
	if ev.Attendee != "" {
		ve.AddAttendee("mailto:" + ev.Attendee)
	}
	ve.SetProperty(icsKeyProp, ev.Key)

	if err := p.save(cal); err != nil {
		return nil, err
	}
	return fromVEvent(ve)
}

func (p *ICSProvider) Get(_ context.Context, _ string, id string) (*RemoteEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cal, err := p.load()
	if err != nil {
		return nil, err
	}
	if ve := findVEvent(cal, id); ve != nil {
		return fromVEvent(ve)
	}
	// Occurrence of a recurring event.
	if uid, at, ok := splitOccurrence(id); ok {
		if ve := findVEvent(cal, uid); ve != nil {
			base, err := fromVEvent(ve)
			if err != nil {
				return nil, err
			}
			occs, err := p.occurrences(ve, base, TimeRange{From: at, To: at.Add(time.Second)})
			if err == nil && len(occs) == 1 && occs[0].Start.Equal(at) {
				return &occs[0], nil
			}
		}
	}
	return nil, &ErrNotFound{RemoteID: id}
}

func (p *ICSProvider) Update(_ context.Context, _ string, id string, patch Patch) (*RemoteEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cal, err := p.load()
	if err != nil {
		return nil, err
	}
	ve := findVEvent(cal, id)
	if ve == nil {
		if _, _, ok := splitOccurrence(id); ok {
			return nil, &ErrInvalidRequest{Reason: "recurring occurrences are read-only"}
		}
		return nil, &ErrNotFound{RemoteID: id}
	}

	if patch.Start != nil {
		ve.SetStartAt(patch.Start.UTC())
	}
	if patch.End != nil {
		ve.SetEndAt(patch.End.UTC())
	}
	if patch.Title != nil {
		ve.SetSummary(*patch.Title)
	}
	if patch.Description != nil {
		ve.SetDescription(*patch.Description)
	}
	if patch.Location != nil {
		ve.SetLocation(*patch.Location)
	}
	ve.SetModifiedAt(p.now().UTC())

	if err := p.save(cal); err != nil {
		return nil, err
	}
	return fromVEvent(ve)
}

func (p *ICSProvider) Delete(_ context.Context, _ string, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cal, err := p.load()
	if err != nil {
		return err
	}

	kept := cal.Components[:0]
	found := false
	for _, c := range cal.Components {
		if ve, ok := c.(*ics.VEvent); ok && ve.Id() == id {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		if _, _, ok := splitOccurrence(id); ok {
			return &ErrInvalidRequest{Reason: "recurring occurrences are read-only"}
		}
		return &ErrNotFound{RemoteID: id}
	}
	cal.Components = kept
	return p.save(cal)
}

func (p *ICSProvider) List(_ context.Context, _ string, r TimeRange) ([]RemoteEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cal, err := p.load()
	if err != nil {
		return nil, err
	}

	var out []RemoteEvent
	for _, ve := range cal.Events() {
		ev, err := fromVEvent(ve)
		if err != nil {
			// Skip events we cannot interpret rather than failing the listing.
			continue
		}
		if propValue(ve, ics.ComponentPropertyRrule) != "" {
			occs, err := p.occurrences(ve, ev, r)
			if err != nil {
				continue
			}
			out = append(out, occs...)
			continue
		}
		if r.Overlaps(ev.Start, ev.End) {
			out = append(out, *ev)
		}
	}
	sortEvents(out)
	return out, nil
}

func (p *ICSProvider) occurrences(ve *ics.VEvent, base *RemoteEvent, r TimeRange) ([]RemoteEvent, error) {
	var exdates []time.Time
	for _, prop := range ve.GetProperties(ics.ComponentPropertyExdate) {
		for _, part := range strings.Split(prop.Value, ",") {
			if t, err := parseICSTime(strings.TrimSpace(part)); err == nil {
				exdates = append(exdates, t)
			}
		}
	}

	starts, err := expandRecurrence(propValue(ve, ics.ComponentPropertyRrule), base.Start, base.End, exdates, r)
	if err != nil {
		return nil, err
	}
	dur := base.End.Sub(base.Start)
	out := make([]RemoteEvent, 0, len(starts))
	for _, s := range starts {
		occ := *base
		occ.ID = occurrenceID(base.ID, s)
		occ.Start = s
		occ.End = s.Add(dur)
		occ.Key = ""
		occ.ReadOnly = true
		out = append(out, occ)
	}
	return out, nil
}

func findVEvent(cal *ics.Calendar, id string) *ics.VEvent {
	for _, ve := range cal.Events() {
		if ve.Id() == id {
			return ve
		}
	}
	return nil
}

func splitOccurrence(id string) (string, time.Time, bool) {
	i := strings.LastIndex(id, "@")
	if i <= 0 {
		return "", time.Time{}, false
	}
	at, err := time.Parse(icsTimeLayout, id[i+1:])
	if err != nil {
		return "", time.Time{}, false
	}
	return id[:i], at, true
}

func fromVEvent(ve *ics.VEvent) (*RemoteEvent, error) {
	start, err := ve.GetStartAt()
	if err != nil {
		return nil, &ErrInvalidResponse{Err: fmt.Errorf("event %s start: %w", ve.Id(), err)}
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return nil, &ErrInvalidResponse{Err: fmt.Errorf("event %s end: %w", ve.Id(), err)}
	}
	ev := &RemoteEvent{
		ID:          ve.Id(),
		Start:       start,
		End:         end,
		Title:       propValue(ve, ics.ComponentPropertySummary),
		Description: propValue(ve, ics.ComponentPropertyDescription),
		Location:    propValue(ve, ics.ComponentPropertyLocation),
		Key:         propValue(ve, icsKeyProp),
	}
	if u := propValue(ve, ics.ComponentPropertyUrl); strings.HasPrefix(u, "http") {
		ev.ConferencingLink = u
	}
	if m := propValue(ve, ics.ComponentPropertyLastModified); m != "" {
		if t, err := parseICSTime(m); err == nil {
			ev.Updated = t
		}
	}
	return ev, nil
}

func propValue(ve *ics.VEvent, prop ics.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

func parseICSTime(v string) (time.Time, error) {
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse(icsTimeLayout, v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.Local)
	default:
		return time.ParseInLocation("20060102", v, time.Local)
	}
}
