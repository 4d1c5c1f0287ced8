package surface

import (
	"errors"
	"fmt"
	"strings"

	"github.com/abhisek/lessonsync/internal/calendar"
	"github.com/abhisek/lessonsync/internal/reconcile"
	"github.com/abhisek/lessonsync/internal/store"
)

// Describe turns an error into a message for the instructor.
func Describe(err error) string {
	var inv *reconcile.ErrInvalidInput
	if errors.As(err, &inv) {
		if inv.Err != nil {
			return capitalize(inv.Reason) + ": " + inv.Err.Error() + "."
		}
		return capitalize(inv.Reason) + "."
	}
	var lp *reconcile.ErrLocalPersistence
	if errors.As(err, &lp) {
		return "Could not save your change. Nothing was sent to the calendar; please try again."
	}
	if errors.Is(err, store.ErrNotFound) {
		return "That lesson no longer exists."
	}
	if IsCalendarError(err) {
		return describeRemote(err)
	}
	return "Something went wrong: " + err.Error()
}

func describeRemote(err error) string {
	switch calendar.Classify(err) {
	case calendar.KindUnauthenticated:
		return "Your calendar connection has expired. Reconnect it to continue."
	case calendar.KindNotFound:
		return "That event no longer exists in your calendar."
	case calendar.KindRateLimited:
		return "The calendar is busy right now. Try again in a moment."
	case calendar.KindTransient:
		return "The calendar is unavailable right now. Try again later."
	case calendar.KindInvalidRequest:
		var inv *calendar.ErrInvalidRequest
		if errors.As(err, &inv) && inv.Reason != "" {
			return "The calendar rejected the change: " + inv.Reason + "."
		}
		return "The calendar rejected the change."
	}
	return "The calendar returned an unexpected response."
}

// IsCalendarError reports whether err came from the calendar client.
func IsCalendarError(err error) bool {
	var (
		unauth *calendar.ErrUnauthenticated
		nf     *calendar.ErrNotFound
		rl     *calendar.ErrRateLimit
		tr     *calendar.ErrTransient
		inv    *calendar.ErrInvalidRequest
		resp   *calendar.ErrInvalidResponse
	)
	return errors.As(err, &unauth) || errors.As(err, &nf) || errors.As(err, &rl) ||
		errors.As(err, &tr) || errors.As(err, &inv) || errors.As(err, &resp)
}

// syncNote describes the calendar side of a lesson change.
func syncNote(out reconcile.Outcome) string {
	if out.Notice != nil {
		return out.Notice.Message
	}
	switch out.Sync {
	case reconcile.SyncPending:
		return "It will sync to your calendar later."
	case reconcile.SyncDetached:
		return "Its calendar event was removed; re-create it if you still need it."
	}
	return ""
}

func summarize(res *reconcile.PassResult) string {
	var parts []string
	if rep := res.Reconcile; rep != nil {
		parts = append(parts, fmt.Sprintf("%d lessons checked", rep.Checked))
		if n := len(rep.Conflicts); n > 0 {
			parts = append(parts, fmt.Sprintf("%d changed in the calendar", n))
		}
		if n := len(rep.Stale); n > 0 {
			parts = append(parts, fmt.Sprintf("%d with removed events", n))
		}
		if n := len(rep.RemoteOnly); n > 0 {
			parts = append(parts, fmt.Sprintf("%d calendar events without a lesson", n))
		}
	}
	if r := res.Retry; r != nil && r.Attempted > 0 {
		parts = append(parts, fmt.Sprintf("%d of %d pending changes synced", r.Synced, r.Attempted))
	}
	if len(parts) == 0 {
		return "Calendar is up to date."
	}
	return "Sync complete: " + strings.Join(parts, ", ") + "."
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
