package domain

// Outbound message kinds on the viewer websocket. DisplayEvent carries its
// own "danmaku" tag; everything else uses these envelopes.
const (
	MessageTypeConnection      = "connection"
	MessageTypeDanmaku         = "danmaku"
	MessageTypeStats           = "stats"
	MessageTypeCommandResponse = "command_response"
	MessageTypeSettingUpdate   = "setting_update"
	MessageTypeResync          = "resync"
)

// StatusMessage is the connection-status / heartbeat outbound kind.
type StatusMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	// FeedConnected tells the viewer whether the change feed is live, so
	// it can show "reconnecting" without dropping its own state.
	FeedConnected bool `json:"feed_connected"`
}

// StatsMessage reports the live subscriber count.
type StatsMessage struct {
	Type        string `json:"type"`
	Subscribers int    `json:"connections"`
}

// ResyncMessage tells a subscriber to discard currently displayed items
// and request a replay; sent when its filter turns fail-closed or off.
type ResyncMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// CommandResponse acknowledges an inbound control command.
type CommandResponse struct {
	Type    string   `json:"type"`
	Action  string   `json:"action"`
	Status  string   `json:"status"`
	Message string   `json:"message,omitempty"`
	Groups  []string `json:"group_ids,omitempty"`
}

// SettingUpdate pushes a runtime setting change to all subscribers.
type SettingUpdate struct {
	Type  string `json:"type"`
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Inbound control actions.
const (
	ControlTypeCommand = "command"

	ActionSetFilter = "set_filter"
	ActionReplay    = "replay"
)

// ControlMessage is the inbound control kind a viewer sends: a filter
// update or a replay request.
type ControlMessage struct {
	Type    string   `json:"type"`
	Action  string   `json:"action"`
	Enabled bool     `json:"filter_enabled"`
	Groups  []string `json:"group_ids"`
}
