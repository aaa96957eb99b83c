package domain

import "time"

// Position controls where a danmaku is rendered on the overlay.
type Position string

const (
	PositionScroll      Position = "scroll"
	PositionTopFixed    Position = "top-fixed"
	PositionBottomFixed Position = "bottom-fixed"
)

// Style is the closed set of presentation directives a message can carry.
type Style struct {
	Position Position `json:"position"`
	Color    string   `json:"color"`
	Outline  bool     `json:"outline"`
}

// DefaultStyle is what a message without any directive tokens renders as.
func DefaultStyle() Style {
	return Style{Position: PositionScroll, Color: "#FFFFFF", Outline: false}
}

// RawChangeEvent is the payload the database feed pushes on each row insert.
// It is transient: once enriched into a DisplayEvent it is not retained.
type RawChangeEvent struct {
	EventID    int64     `json:"id"`
	SessionRef int64     `json:"session_persist_id"`
	MessageRef string    `json:"message_id"`
	PlainText  string    `json:"plain_text"`
	OccurredAt time.Time `json:"time"`
}

// DisplayEvent is the normalized, styled unit delivered to viewers.
// EventID is the dedup key; it is unique and non-decreasing in feed
// arrival order on a single connection.
type DisplayEvent struct {
	Type         string    `json:"type"` // always "danmaku"
	EventID      int64     `json:"event_id"`
	GroupID      string    `json:"group_id"`
	UserID       string    `json:"user_id"`
	AccountColor string    `json:"account_color"`
	Content      string    `json:"content"`
	Style        Style     `json:"style"`
	OccurredAt   time.Time `json:"time"` // UTC; converted at the presentation boundary
}
