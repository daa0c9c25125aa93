// Package sink delivers moderation and notification actions to the chat gateway.
package sink

import (
	"time"

	"github.com/okian/zen/internal/domain/model"
)

// ActionType names a gateway action.
type ActionType string

const (
	ActionDeleteMessage ActionType = "delete_message"
	ActionSendWarning   ActionType = "send_warning"
	ActionNotify        ActionType = "notify"
)

// Action is the wire form of a single gateway instruction.
type Action struct {
	Type      ActionType    `json:"type"`
	ChannelID string        `json:"channel_id,omitempty"`
	MessageID string        `json:"message_id,omitempty"`
	UserID    string        `json:"user_id,omitempty"`
	Text      string        `json:"text,omitempty"`
	Notice    *model.Notice `json:"notice,omitempty"`
	At        time.Time     `json:"at"`
}
