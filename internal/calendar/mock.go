package calendar

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockCall records one call made to the MockProvider.
type MockCall struct {
	Op       string
	RemoteID string
	Key      string
	Patch    Patch
}

// MockProvider is an in-memory calendar for tests and demos. It honours
// idempotency keys, supports error injection per operation and records all
// calls. External edits are simulated through AddExternal, MoveExternal and
// RemoveExternal.
type MockProvider struct {
	mu     sync.Mutex
	events map[string]*RemoteEvent
	keys   map[string]string
	nextID int
	fail   map[string][]error
	now    func() time.Time

	// BeforeCall, when set, runs before each call outside the lock.
	BeforeCall func(op string)

	Calls []MockCall
}

// NewMockProvider creates an empty mock calendar.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		events: make(map[string]*RemoteEvent),
		keys:   make(map[string]string),
		fail:   make(map[string][]error),
		now:    time.Now,
	}
}

// Name returns "mock".
func (m *MockProvider) Name() string { return "mock" }

// FailNext queues errors returned by the next calls of op, in FIFO order.
func (m *MockProvider) FailNext(op string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = append(m.fail[op], errs...)
}

func (m *MockProvider) before(op string) {
	if m.BeforeCall != nil {
		m.BeforeCall(op)
	}
}

// record appends the call and pops an injected error. Callers hold m.mu.
func (m *MockProvider) record(c MockCall) error {
	m.Calls = append(m.Calls, c)
	if q := m.fail[c.Op]; len(q) > 0 {
		m.fail[c.Op] = q[1:]
		return q[0]
	}
	return nil
}

func (m *MockProvider) Create(_ context.Context, _ string, ev EventDescriptor) (*RemoteEvent, error) {
	m.before("create")
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record(MockCall{Op: "create", Key: ev.Key}); err != nil {
		return nil, err
	}

	if id, ok := m.keys[ev.Key]; ok {
		if existing, ok := m.events[id]; ok {
			out := *existing
			return &out, nil
		}
	}

	m.nextID++
	id := fmt.Sprintf("ev_%d", m.nextID)
	out := &RemoteEvent{
		ID:          id,
		Start:       ev.Start,
		End:         ev.End,
		Title:       ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Updated:     m.now().UTC(),
		Key:         ev.Key,
	}
	if ev.Conferencing {
		out.ConferencingLink = "https://meet.mock/" + id
	}
	m.events[id] = out
	if ev.Key != "" {
		m.keys[ev.Key] = id
	}
	cp := *out
	return &cp, nil
}

func (m *MockProvider) Get(_ context.Context, _ string, id string) (*RemoteEvent, error) {
	m.before("get")
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record(MockCall{Op: "get", RemoteID: id}); err != nil {
		return nil, err
	}

	ev, ok := m.events[id]
	if !ok {
		return nil, &ErrNotFound{RemoteID: id}
	}
	out := *ev
	return &out, nil
}

func (m *MockProvider) Update(_ context.Context, _ string, id string, p Patch) (*RemoteEvent, error) {
	m.before("update")
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record(MockCall{Op: "update", RemoteID: id, Patch: p}); err != nil {
		return nil, err
	}

	ev, ok := m.events[id]
	if !ok {
		return nil, &ErrNotFound{RemoteID: id}
	}
	applyPatch(ev, p)
	ev.Updated = m.now().UTC()
	out := *ev
	return &out, nil
}

func (m *MockProvider) Delete(_ context.Context, _ string, id string) error {
	m.before("delete")
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record(MockCall{Op: "delete", RemoteID: id}); err != nil {
		return err
	}

	if _, ok := m.events[id]; !ok {
		return &ErrNotFound{RemoteID: id}
	}
	delete(m.events, id)
	return nil
}

func (m *MockProvider) List(_ context.Context, _ string, r TimeRange) ([]RemoteEvent, error) {
	m.before("list")
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record(MockCall{Op: "list"}); err != nil {
		return nil, err
	}

	var out []RemoteEvent
	for _, ev := range m.events {
		if r.Overlaps(ev.Start, ev.End) {
			out = append(out, *ev)
		}
	}
	sortEvents(out)
	return out, nil
}

// AddExternal inserts an event as if created outside this system.
func (m *MockProvider) AddExternal(ev RemoteEvent) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == "" {
		m.nextID++
		ev.ID = fmt.Sprintf("ev_%d", m.nextID)
	}
	if ev.Updated.IsZero() {
		ev.Updated = m.now().UTC()
	}
	m.events[ev.ID] = &ev
	return ev.ID
}

// MoveExternal changes an event's window as if edited outside this system.
func (m *MockProvider) MoveExternal(id string, start, end time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return false
	}
	ev.Start, ev.End = start, end
	ev.Updated = m.now().UTC()
	return true
}

// SetExternalLink sets a conferencing link as if added outside this system.
func (m *MockProvider) SetExternalLink(id, link string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return false
	}
	ev.ConferencingLink = link
	ev.Updated = m.now().UTC()
	return true
}

// RemoveExternal deletes an event as if removed outside this system.
func (m *MockProvider) RemoveExternal(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, id)
}

// Event returns a copy of a stored event.
func (m *MockProvider) Event(id string) (RemoteEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return RemoteEvent{}, false
	}
	return *ev, true
}

// Len returns the number of live events.
func (m *MockProvider) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// CallCount returns the number of calls made for op, or all calls when op
// is empty.
func (m *MockProvider) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if op == "" {
		return len(m.Calls)
	}
	n := 0
	for _, c := range m.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func applyPatch(ev *RemoteEvent, p Patch) {
	if p.Start != nil {
		ev.Start = *p.Start
	}
	if p.End != nil {
		ev.End = *p.End
	}
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.Location != nil {
		ev.Location = *p.Location
	}
}

func sortEvents(evs []RemoteEvent) {
	sort.Slice(evs, func(i, j int) bool {
		if !evs[i].Start.Equal(evs[j].Start) {
			return evs[i].Start.Before(evs[j].Start)
		}
		return evs[i].ID < evs[j].ID
	})
}
