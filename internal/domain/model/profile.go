package model

import (
	"time"

	"github.com/google/uuid"
)

// MemberKey identifies a member within one server.
type MemberKey struct {
	ServerID string
	UserID   string
}

// String renders the key as server/user.
func (k MemberKey) String() string {
	return k.ServerID + "/" + k.UserID
}

// ReputationProfile is a member's reputation state. Score never decreases.
type ReputationProfile struct {
	Key          MemberKey
	Score        int64
	LastGivenTo  map[string]time.Time
	LastReceived time.Time
}

// Clone returns a deep copy safe to hand to callers.
func (p *ReputationProfile) Clone() *ReputationProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.LastGivenTo = make(map[string]time.Time, len(p.LastGivenTo))
	for k, v := range p.LastGivenTo {
		c.LastGivenTo[k] = v
	}
	return &c
}

// ExperienceProfile is a member's experience state.
type ExperienceProfile struct {
	Key      MemberKey
	XP       int64
	Level    int
	LastGain time.Time
	Messages int64
}

// Clone returns a copy.
func (p *ExperienceProfile) Clone() *ExperienceProfile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// GrantSource records what produced a reputation grant.
type GrantSource string

const (
	SourceMention  GrantSource = "mention"
	SourceReply    GrantSource = "reply"
	SourceReaction GrantSource = "reaction"
)

// ReputationGrant is one audit row of the reputation log. It never carries message content.
type ReputationGrant struct {
	ID         uuid.UUID   `json:"id"`
	ServerID   string      `json:"server_id"`
	GiverID    string      `json:"giver_id"`
	ReceiverID string      `json:"receiver_id"`
	Source     GrantSource `json:"source"`
	ChannelID  string      `json:"channel_id,omitempty"`
	MessageID  string      `json:"message_id,omitempty"`
	Amount     int64       `json:"amount"`
	At         time.Time   `json:"at"`
}

// LeaderboardEntry is one dense-ranked row.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Value  int64  `json:"value"`
	Level  int    `json:"level,omitempty"`
}
