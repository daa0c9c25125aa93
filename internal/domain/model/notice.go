package model

import "time"

// NoticeKind identifies a user-facing announcement emitted after a ledger change.
type NoticeKind string

const (
	NoticeReputation NoticeKind = "reputation"
	NoticeLevelUp    NoticeKind = "level_up"
	NoticeReward     NoticeKind = "reward"
)

// Notice is forwarded to the message action sink. It never carries message content.
type Notice struct {
	Kind      NoticeKind `json:"kind"`
	ServerID  string     `json:"server_id"`
	ChannelID string     `json:"channel_id,omitempty"`
	UserID    string     `json:"user_id"`
	ActorID   string     `json:"actor_id,omitempty"`
	Value     int64      `json:"value"`
	Level     int        `json:"level,omitempty"`
	RewardID  string     `json:"reward_id,omitempty"`
	At        time.Time  `json:"at"`
}
