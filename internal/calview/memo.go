package calview

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"slices"
	"sync"

	"github.com/abhisek/lessonsync/internal/calendar"
	"github.com/abhisek/lessonsync/internal/lesson"
)

// Memo caches the last Merge result and recomputes it only when the inputs
// change. It is safe for concurrent use.
type Memo struct {
	mu     sync.Mutex
	valid  bool
	fp     uint64
	items  []Item
	hits   int
	misses int
}

// Merge returns Merge(lessons, events), reusing the previous result when
// the fingerprint of the inputs is unchanged. The returned slice is a copy.
func (m *Memo) Merge(lessons []*lesson.Lesson, events []calendar.RemoteEvent) []Item {
	fp := Fingerprint(lessons, events)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.valid && m.fp == fp {
		m.hits++
		return slices.Clone(m.items)
	}
	m.misses++
	m.items = Merge(lessons, events)
	m.fp = fp
	m.valid = true
	return slices.Clone(m.items)
}

// Invalidate drops the cached result.
func (m *Memo) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.valid = false
	m.items = nil
}

// Stats returns cache hits and misses.
func (m *Memo) Stats() (hits, misses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits, m.misses
}

// Fingerprint hashes every input field that Merge reads. Input order is
// part of the fingerprint.
func Fingerprint(lessons []*lesson.Lesson, events []calendar.RemoteEvent) uint64 {
	h := fnv.New64a()
	for _, l := range lessons {
		if l == nil {
			continue
		}
		writeStr(h, "L", l.ID, l.RemoteID, string(l.Status), string(l.SyncState),
			l.StudentName, l.Notes, l.SyncError, l.ConferencingLink, l.LastRemoteID)
		writeInt(h, l.Version, l.StartAt.UnixNano(), int64(l.DurationMin), boolInt(l.NeedsSync))
	}
	for _, ev := range events {
		writeStr(h, "E", ev.ID, ev.Key, ev.Title, ev.Description, ev.Location, ev.ConferencingLink)
		writeInt(h, ev.Start.UnixNano(), ev.End.UnixNano(), ev.Updated.UnixNano(), boolInt(ev.ReadOnly))
	}
	return h.Sum64()
}

func writeStr(h hash.Hash64, parts ...string) {
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
}

func writeInt(h hash.Hash64, vals ...int64) {
	var buf [8]byte
	for _, v := range vals {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
