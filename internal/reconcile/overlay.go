package reconcile

import (
	"sync"
	"time"

	"github.com/abhisek/lessonsync/internal/lesson"
)

// Window is a lesson's time span.
type Window struct {
	Start time.Time
	End   time.Time
}

// overlay holds optimistic drag positions that are not yet persisted.
type overlay struct {
	mu      sync.Mutex
	seq     uint64
	entries map[string]overlayEntry
}

type overlayEntry struct {
	Window
	token uint64
}

func newOverlay() *overlay {
	return &overlay{entries: make(map[string]overlayEntry)}
}

func (o *overlay) set(id string, w Window) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	o.entries[id] = overlayEntry{Window: w, token: o.seq}
	return o.seq
}

func (o *overlay) get(id string) (Window, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[id]
	return e.Window, ok
}

// clear removes the entry for id if it is still the one set with token.
// A newer drag keeps its own entry.
func (o *overlay) clear(id string, token uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.entries[id]; ok && e.token == token {
		delete(o.entries, id)
	}
}

func (o *overlay) snapshot() map[string]Window {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]Window, len(o.entries))
	for id, e := range o.entries {
		out[id] = e.Window
	}
	return out
}

// Overlay returns the optimistic windows of drags still in flight.
func (r *Reconciler) Overlay() map[string]Window {
	return r.overlay.snapshot()
}

// ApplyOverlay returns the lessons with in-flight drag windows applied.
// Lessons without a pending drag are returned as is; others are copied.
func (r *Reconciler) ApplyOverlay(lessons []*lesson.Lesson) []*lesson.Lesson {
	ov := r.overlay.snapshot()
	if len(ov) == 0 {
		return lessons
	}
	out := make([]*lesson.Lesson, len(lessons))
	for i, l := range lessons {
		w, ok := ov[l.ID]
		if !ok {
			out[i] = l
			continue
		}
		cp := *l
		cp.StartAt = w.Start
		cp.DurationMin = int(w.End.Sub(w.Start) / time.Minute)
		out[i] = &cp
	}
	return out
}
