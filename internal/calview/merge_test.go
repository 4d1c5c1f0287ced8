package calview

import (
	"math/rand/v2"
	"reflect"
	"testing"
	"time"

	"github.com/abhisek/lessonsync/internal/calendar"
	"github.com/abhisek/lessonsync/internal/lesson"
)

var t0 = time.Date(2024, 2, 5, 14, 0, 0, 0, time.UTC)

func linkedLesson(id, remote string, start time.Time) *lesson.Lesson {
	return &lesson.Lesson{
		ID:          id,
		StudentName: "Ana",
		StartAt:     start,
		DurationMin: 50,
		Status:      lesson.StatusScheduled,
		RemoteID:    remote,
		SyncState:   lesson.SyncSynced,
		Version:     1,
	}
}

func event(id string, start time.Time) calendar.RemoteEvent {
	return calendar.RemoteEvent{ID: id, Title: "Event " + id, Start: start, End: start.Add(time.Hour)}
}

func keys(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Key
	}
	return out
}

func TestMerge_LinkedEventShownOnce(t *testing.T) {
	lessons := []*lesson.Lesson{linkedLesson("l1", "ev_1", t0)}
	events := []calendar.RemoteEvent{event("ev_1", t0), event("ev_2", t0.Add(2*time.Hour))}

	got := Merge(lessons, events)
	want := []string{"lesson:l1", "remote:ev_2"}
	if !reflect.DeepEqual(keys(got), want) {
		t.Fatalf("keys = %v, want %v", keys(got), want)
	}

	local := got[0]
	if local.Origin != OriginLocal || local.Route != RouteReconciler || !local.Editable {
		t.Errorf("local item = %+v", local)
	}
	if local.Title != "Lesson with Ana" || !local.End.Equal(t0.Add(50*time.Minute)) {
		t.Errorf("local item window/title = %q %v", local.Title, local.End)
	}
	remote := got[1]
	if remote.Origin != OriginRemote || remote.Route != RouteProvider || !remote.Editable || remote.LessonID != "" {
		t.Errorf("remote item = %+v", remote)
	}
}

func TestMerge_StaleReferenceStillClaimsEvent(t *testing.T) {
	l := linkedLesson("l1", "ev_1", t0)
	l.SyncState = lesson.SyncStale
	l.NeedsSync = true

	got := Merge([]*lesson.Lesson{l}, []calendar.RemoteEvent{event("ev_1", t0.Add(time.Hour))})
	if len(got) != 1 || got[0].Key != "lesson:l1" {
		t.Fatalf("got %v", keys(got))
	}
	if got[0].SyncState != lesson.SyncStale || !got[0].NeedsSync {
		t.Errorf("sync metadata not carried: %+v", got[0])
	}
}

func TestMerge_KeyedEventBelongsToLesson(t *testing.T) {
	// The create response was lost: the lesson holds no remote ID yet.
	l := linkedLesson("l1", "", t0)
	l.SyncState = lesson.SyncUnsynced
	ev := event("ev_7", t0)
	ev.Key = "lesson:l1"
	other := event("ev_8", t0)
	other.Key = "lesson:unknown"

	got := Merge([]*lesson.Lesson{l}, []calendar.RemoteEvent{ev, other})
	want := []string{"lesson:l1", "remote:ev_8"}
	if !reflect.DeepEqual(keys(got), want) {
		t.Fatalf("keys = %v, want %v", keys(got), want)
	}
}

func TestMerge_Ordering(t *testing.T) {
	lessons := []*lesson.Lesson{
		linkedLesson("b", "", t0.Add(time.Hour)),
		linkedLesson("a", "", t0.Add(time.Hour)),
		linkedLesson("c", "", t0),
	}
	events := []calendar.RemoteEvent{
		event("z", t0),
		event("y", t0.Add(-time.Hour)),
		event("x", t0.Add(time.Hour)),
	}
	got := Merge(lessons, events)
	want := []string{"remote:y", "lesson:c", "remote:z", "lesson:a", "lesson:b", "remote:x"}
	if !reflect.DeepEqual(keys(got), want) {
		t.Errorf("keys = %v, want %v", keys(got), want)
	}
}

func TestMerge_Deterministic(t *testing.T) {
	var lessons []*lesson.Lesson
	var events []calendar.RemoteEvent
	for i := range 30 {
		start := t0.Add(time.Duration(i%7) * time.Hour)
		id := string(rune('a' + i))
		if i%3 == 0 {
			lessons = append(lessons, linkedLesson("l"+id, "ev"+id, start))
			events = append(events, event("ev"+id, start))
		} else if i%3 == 1 {
			lessons = append(lessons, linkedLesson("l"+id, "", start))
		} else {
			events = append(events, event("ev"+id, start))
		}
	}

	want := Merge(lessons, events)
	r := rand.New(rand.NewPCG(1, 2))
	for range 20 {
		r.Shuffle(len(lessons), func(i, j int) { lessons[i], lessons[j] = lessons[j], lessons[i] })
		r.Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })
		if got := Merge(lessons, events); !reflect.DeepEqual(got, want) {
			t.Fatalf("merge depends on input order:\n got %v\nwant %v", keys(got), keys(want))
		}
	}

	seen := map[string]bool{}
	for _, it := range want {
		if it.RemoteID == "" {
			continue
		}
		if seen[it.RemoteID] {
			t.Fatalf("remote id %s appears twice", it.RemoteID)
		}
		seen[it.RemoteID] = true
	}
}

func TestMerge_EditableAndDuplicates(t *testing.T) {
	done := linkedLesson("l1", "", t0)
	done.Status = lesson.StatusCompleted
	ro := event("weekly@1", t0)
	ro.ReadOnly = true

	got := Merge(
		[]*lesson.Lesson{done, done, nil},
		[]calendar.RemoteEvent{ro, ro},
	)
	if len(got) != 2 {
		t.Fatalf("got %v", keys(got))
	}
	for _, it := range got {
		if it.Editable {
			t.Errorf("%s should not be editable", it.Key)
		}
	}
}

func TestMerge_DoesNotModifyInputs(t *testing.T) {
	lessons := []*lesson.Lesson{linkedLesson("b", "", t0.Add(time.Hour)), linkedLesson("a", "", t0)}
	events := []calendar.RemoteEvent{event("e2", t0.Add(time.Hour)), event("e1", t0)}
	Merge(lessons, events)
	if lessons[0].ID != "b" || events[0].ID != "e2" {
		t.Error("inputs reordered")
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		key    string
		origin Origin
		id     string
		ok     bool
	}{
		{"lesson:l1", OriginLocal, "l1", true},
		{"remote:ev_1@20240205T100000Z", OriginRemote, "ev_1@20240205T100000Z", true},
		{"lesson:", "", "", false},
		{"ev_1", "", "", false},
	}
	for _, tt := range tests {
		origin, id, err := ParseKey(tt.key)
		if (err == nil) != tt.ok || origin != tt.origin || id != tt.id {
			t.Errorf("ParseKey(%q) = %q, %q, %v", tt.key, origin, id, err)
		}
	}
}

func TestFind(t *testing.T) {
	items := Merge([]*lesson.Lesson{linkedLesson("l1", "", t0)}, nil)
	if _, ok := Find(items, "lesson:l1"); !ok {
		t.Error("lesson:l1 not found")
	}
	if _, ok := Find(items, "remote:x"); ok {
		t.Error("unexpected item")
	}
}
