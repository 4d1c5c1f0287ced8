// Package notify carries user-facing sync notices out of the reconciler.
// Notices are secondary, dismissible indicators; publishing one never fails
// the lesson operation that produced it.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Level is the severity of a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice codes.
const (
	CodePending       = "sync.pending"
	CodeReauth        = "sync.reauth_required"
	CodeDetached      = "sync.detached"
	CodeRejected      = "sync.rejected"
	CodeDeleteFailed  = "sync.delete_failed"
	CodeConflict      = "sync.conflict"
	CodeLocalFailure  = "sync.local_failure"
	CodeRemoteOnly    = "sync.remote_only"
	CodeLinkRecovered = "sync.link_recovered"
)

// Notice is a user-facing message about a lesson's calendar sync.
type Notice struct {
	Level    Level     `json:"level"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	LessonID string    `json:"lesson_id,omitempty"`
	RemoteID string    `json:"remote_id,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher delivers notices.
type Publisher interface {
	Publish(ctx context.Context, n Notice) error
}

// Nop discards notices.
type Nop struct{}

func (Nop) Publish(context.Context, Notice) error { return nil }

// Multi fans a notice out to several publishers and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, n Notice) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps the most recent notices in memory for display.
type Recorder struct {
	mu      sync.Mutex
	max     int
	notices []Notice
}

// NewRecorder keeps at most max notices (default 50).
func NewRecorder(max int) *Recorder {
	if max <= 0 {
		max = 50
	}
	return &Recorder{max: max}
}

func (r *Recorder) Publish(_ context.Context, n Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	if over := len(r.notices) - r.max; over > 0 {
		r.notices = r.notices[over:]
	}
	return nil
}

// Recent returns the retained notices, oldest first.
func (r *Recorder) Recent() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Dismiss drops all notices for a lesson.
func (r *Recorder) Dismiss(lessonID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.notices[:0]
	for _, n := range r.notices {
		if n.LessonID != lessonID {
			kept = append(kept, n)
		}
	}
	r.notices = kept
}

// Clear drops all notices.
func (r *Recorder) Clear() {
	r.mu.Lock()
	r.notices = nil
	r.mu.Unlock()
}
