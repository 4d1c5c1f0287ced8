package lesson

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const eventKeyPrefix = "lesson:"

// EventKey is the idempotency key for the lesson's remote event. A lesson
// re-created after its event vanished gets a key derived from the dead
// event, since providers may refuse to reuse a deleted event's identity.
func (l *Lesson) EventKey() string {
	if l.LastRemoteID == "" {
		return eventKeyPrefix + l.ID
	}
	sum := sha256.Sum256([]byte(l.LastRemoteID))
	return eventKeyPrefix + l.ID + ":r" + hex.EncodeToString(sum[:4])
}

// IDFromEventKey extracts the lesson ID from an idempotency key.
func IDFromEventKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, eventKeyPrefix)
	if !ok || rest == "" {
		return "", false
	}
	id, _, _ := strings.Cut(rest, ":")
	return id, id != ""
}
