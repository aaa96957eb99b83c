package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/domain"
)

var errMissingField = errors.New("missing required field")

// feedPayload mirrors the JSON the chat logger's trigger publishes.
// Pointer fields distinguish absent from zero; unrecognized fields are
// ignored for forward compatibility.
type feedPayload struct {
	ID         *int64     `json:"id"`
	SessionRef *int64     `json:"session_persist_id"`
	MessageID  string     `json:"message_id"`
	PlainText  string     `json:"plain_text"`
	Time       *time.Time `json:"time"`
}

// decodePayload parses one NOTIFY payload into a RawChangeEvent. id,
// session_persist_id, and time are required; anything else is optional.
func decodePayload(data []byte) (domain.RawChangeEvent, error) {
	var p feedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.RawChangeEvent{}, fmt.Errorf("invalid feed payload: %w", err)
	}

	switch {
	case p.ID == nil:
		return domain.RawChangeEvent{}, fmt.Errorf("%w: id", errMissingField)
	case p.SessionRef == nil:
		return domain.RawChangeEvent{}, fmt.Errorf("%w: session_persist_id", errMissingField)
	case p.Time == nil:
		return domain.RawChangeEvent{}, fmt.Errorf("%w: time", errMissingField)
	}

	return domain.RawChangeEvent{
		EventID:    *p.ID,
		SessionRef: *p.SessionRef,
		MessageRef: p.MessageID,
		PlainText:  p.PlainText,
		OccurredAt: p.Time.UTC(),
	}, nil
}
