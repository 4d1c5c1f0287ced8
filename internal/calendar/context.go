package calendar

import "context"

type contextKey string

const lessonKey contextKey = "calendar_lesson"

// WithLesson attaches the lesson a provider call is made for, so the call
// log can attribute it.
func WithLesson(ctx context.Context, lessonID string) context.Context {
	return context.WithValue(ctx, lessonKey, lessonID)
}

// LessonFrom extracts the lesson ID from the context.
func LessonFrom(ctx context.Context) string {
	if v, ok := ctx.Value(lessonKey).(string); ok {
		return v
	}
	return ""
}
