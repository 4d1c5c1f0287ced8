package reconcile

import "fmt"

// ErrLocalPersistence reports a failed local write. It is fatal to the user
// action that triggered it.
type ErrLocalPersistence struct {
	Op       string
	LessonID string
	Err      error
}

func (e *ErrLocalPersistence) Error() string {
	if e.LessonID == "" {
		return fmt.Sprintf("%s: local persistence failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s lesson %s: local persistence failed: %v", e.Op, e.LessonID, e.Err)
}

func (e *ErrLocalPersistence) Unwrap() error { return e.Err }

// ErrInvalidInput reports a request the user has to correct.
type ErrInvalidInput struct {
	Reason string
	Err    error
}

func (e *ErrInvalidInput) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid input: %s: %v", e.Reason, e.Err)
	}
	return "invalid input: " + e.Reason
}

func (e *ErrInvalidInput) Unwrap() error { return e.Err }
