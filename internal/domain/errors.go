package domain

import "errors"

var (
	// ErrSessionNotFound marks a session reference that does not exist in
	// the chat-log database. Permanent: safe to cache negatively.
	ErrSessionNotFound = errors.New("session not found")

	// ErrGroupNotFound marks a group id with no known sessions.
	ErrGroupNotFound = errors.New("group not found")

	// ErrSubscriberNotFound marks an operation on an unregistered handle.
	ErrSubscriberNotFound = errors.New("subscriber not found")
)

// IsPermanentLookupError reports whether a resolver error can never succeed
// on retry. The enrichment cache stores these as short-lived negative
// entries; everything else is transient and surfaces uncached.
func IsPermanentLookupError(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}
