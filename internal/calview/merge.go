package calview

import (
	"cmp"
	"slices"

	"github.com/abhisek/lessonsync/internal/calendar"
	"github.com/abhisek/lessonsync/internal/lesson"
)

// Merge combines lessons and remote events into one list ordered by start
// time, local items first on ties, then by key. An event claimed by a
// lesson, through the lesson's remote ID or the event's idempotency key, is
// shown only as that lesson. Merge does not modify its inputs.
func Merge(lessons []*lesson.Lesson, events []calendar.RemoteEvent) []Item {
	claimedIDs := make(map[string]struct{}, len(lessons))
	lessonIDs := make(map[string]struct{}, len(lessons))
	items := make([]Item, 0, len(lessons)+len(events))

	for _, l := range lessons {
		if l == nil {
			continue
		}
		if _, dup := lessonIDs[l.ID]; dup {
			continue
		}
		lessonIDs[l.ID] = struct{}{}
		if l.RemoteID != "" {
			claimedIDs[l.RemoteID] = struct{}{}
		}
		items = append(items, FromLesson(l))
	}

	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if _, ok := claimedIDs[ev.ID]; ok {
			continue
		}
		if id, ok := lesson.IDFromEventKey(ev.Key); ok {
			if _, ok := lessonIDs[id]; ok {
				continue
			}
		}
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}
		items = append(items, FromEvent(ev))
	}

	slices.SortFunc(items, compareItems)
	return items
}

func compareItems(a, b Item) int {
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	if c := cmp.Compare(originRank(a.Origin), originRank(b.Origin)); c != 0 {
		return c
	}
	return cmp.Compare(a.Key, b.Key)
}

func originRank(o Origin) int {
	if o == OriginLocal {
		return 0
	}
	return 1
}

// FromLesson builds the item for a lesson.
func FromLesson(l *lesson.Lesson) Item {
	return Item{
		Key:              LocalKey(l.ID),
		Origin:           OriginLocal,
		Route:            RouteReconciler,
		Editable:         l.Status == lesson.StatusScheduled,
		Title:            l.Title(),
		Start:            l.StartAt,
		End:              l.End(),
		Description:      l.Notes,
		LessonID:         l.ID,
		RemoteID:         l.RemoteID,
		StudentName:      l.StudentName,
		Status:           l.Status,
		SyncState:        l.SyncState,
		NeedsSync:        l.NeedsSync,
		SyncError:        l.SyncError,
		Detached:         l.IsDetached(),
		Version:          l.Version,
		ConferencingLink: l.ConferencingLink,
	}
}

// FromEvent builds the item for a remote-only event.
func FromEvent(ev calendar.RemoteEvent) Item {
	return Item{
		Key:              RemoteKey(ev.ID),
		Origin:           OriginRemote,
		Route:            RouteProvider,
		Editable:         !ev.ReadOnly,
		Title:            ev.Title,
		Start:            ev.Start,
		End:              ev.End,
		Description:      ev.Description,
		Location:         ev.Location,
		RemoteID:         ev.ID,
		ConferencingLink: ev.ConferencingLink,
	}
}

// Find returns the item with key.
func Find(items []Item, key string) (Item, bool) {
	for _, it := range items {
		if it.Key == key {
			return it, true
		}
	}
	return Item{}, false
}
