// Package calview merges local lessons and remote calendar events into the
// single ordered list shown to the instructor.
package calview

import (
	"fmt"
	"strings"
	"time"

	"github.com/abhisek/lessonsync/internal/lesson"
)

// Origin tells where an item's data lives.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Route names the component that handles edits to an item.
type Route string

const (
	// RouteReconciler edits the lesson and lets the reconciler update the
	// remote event.
	RouteReconciler Route = "reconciler"
	// RouteProvider edits the remote event directly; there is no lesson.
	RouteProvider Route = "provider"
)

// Item is one entry of the merged calendar.
type Item struct {
	Key      string `json:"key"`
	Origin   Origin `json:"origin"`
	Route    Route  `json:"route"`
	Editable bool   `json:"editable"`

	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`

	LessonID string `json:"lesson_id,omitempty"`
	RemoteID string `json:"remote_id,omitempty"`

	// Lesson-only fields.
	StudentName string           `json:"student_name,omitempty"`
	Status      lesson.Status    `json:"status,omitempty"`
	SyncState   lesson.SyncState `json:"sync_state,omitempty"`
	NeedsSync   bool             `json:"needs_sync,omitempty"`
	SyncError   string           `json:"sync_error,omitempty"`
	Detached    bool             `json:"detached,omitempty"`
	Version     int64            `json:"version,omitempty"`

	ConferencingLink string `json:"conferencing_link,omitempty"`
}

// Duration returns the item length.
func (it Item) Duration() time.Duration {
	return it.End.Sub(it.Start)
}

const (
	localPrefix  = "lesson:"
	remotePrefix = "remote:"
)

// LocalKey is the item key of a lesson.
func LocalKey(lessonID string) string { return localPrefix + lessonID }

// RemoteKey is the item key of a remote-only event.
func RemoteKey(remoteID string) string { return remotePrefix + remoteID }

// ParseKey splits an item key into its origin and ID.
func ParseKey(key string) (Origin, string, error) {
	if id, ok := strings.CutPrefix(key, localPrefix); ok && id != "" {
		return OriginLocal, id, nil
	}
	if id, ok := strings.CutPrefix(key, remotePrefix); ok && id != "" {
		return OriginRemote, id, nil
	}
	return "", "", fmt.Errorf("invalid item key %q", key)
}
