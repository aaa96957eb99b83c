package domain

import "context"

// GroupUnknown is the placeholder group assigned when a session reference
// permanently fails to resolve. Viewers with filtering disabled still see
// the message; fail-closed filters exclude it.
const GroupUnknown = "unknown"

// SessionInfo is the display-safe resolution of a session reference.
type SessionInfo struct {
	SessionRef int64
	GroupID    string
	UserID     string
	GroupAlias string // optional, empty when no alias is configured
}

// SessionResolver looks up session metadata from the chat-log database.
// Implementations must return ErrSessionNotFound (possibly wrapped) for
// references that will never resolve; any other error is treated as
// transient and is not cached.
type SessionResolver interface {
	ResolveSession(ctx context.Context, sessionRef int64) (SessionInfo, error)
}
