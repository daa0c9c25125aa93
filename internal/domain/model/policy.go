package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Feature is a per-server toggle.
type Feature string

const (
	FeatureReputation Feature = "rep"
	FeatureExperience Feature = "xp"
	FeatureHashtag    Feature = "hashtag"
)

// Ledger names a scoring system.
type Ledger string

const (
	LedgerReputation Ledger = "rep"
	LedgerExperience Ledger = "xp"
)

// Set is a set of identifiers.
type Set map[string]struct{}

// NewSet builds a set from the given values, skipping empty strings.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		if v != "" {
			s[v] = struct{}{}
		}
	}
	return s
}

// Has reports membership. A nil set has no members.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s Set) clone() Set {
	out := make(Set, len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	return out
}

// XPPolicy computes the experience awarded for one message.
// The increment is Base plus one point per PerChars characters, capped at MaxBonus.
type XPPolicy struct {
	Base     int64 `koanf:"base" json:"base"`
	PerChars int64 `koanf:"per_chars" json:"per_chars"`
	MaxBonus int64 `koanf:"max_bonus" json:"max_bonus"`
}

// Increment returns the xp awarded for a message of the given length.
func (p XPPolicy) Increment(messageLength int) int64 {
	if messageLength < 0 {
		messageLength = 0
	}
	bonus := int64(0)
	if p.PerChars > 0 {
		bonus = int64(messageLength) / p.PerChars
	}
	if bonus > p.MaxBonus {
		bonus = p.MaxBonus
	}
	if bonus < 0 {
		bonus = 0
	}
	inc := p.Base + bonus
	if inc < 0 {
		return 0
	}
	return inc
}

// LevelCurve maps experience to levels: reaching level l costs
// Base*l + Step*l*(l-1)/2 total xp.
type LevelCurve struct {
	Base int64 `koanf:"base" json:"base"`
	Step int64 `koanf:"step" json:"step"`
}

// XPFor returns the total xp needed to reach level.
func (c LevelCurve) XPFor(level int) int64 {
	if level <= 0 {
		return 0
	}
	l := int64(level)
	return c.Base*l + c.Step*l*(l-1)/2
}

// Level returns the highest level whose requirement xp satisfies.
func (c LevelCurve) Level(xp int64) int {
	if c.Base <= 0 && c.Step <= 0 {
		return 0
	}
	level := 0
	for c.XPFor(level+1) <= xp {
		level++
	}
	return level
}

// Reward is a milestone granted once a ledger value reaches Threshold.
// Reputation rewards compare against score, experience rewards against level.
type Reward struct {
	Ledger    Ledger `koanf:"ledger" json:"ledger"`
	Threshold int64  `koanf:"threshold" json:"threshold"`
	RewardID  string `koanf:"reward_id" json:"reward_id"`
}

// Policy is the read-only per-server configuration snapshot.
type Policy struct {
	ServerID            string
	Features            map[Feature]bool
	ModeratedChannels   Set
	HashtagChannels     Set
	ExcludedRepChannels Set
	TriggerWords        []string
	UpvoteEmoji         Set
	RepCooldown         time.Duration
	XPCooldown          time.Duration
	XP                  XPPolicy
	Levels              LevelCurve
	Rewards             []Reward
	HashtagWarning      string
}

// Enabled reports whether feature f is switched on.
func (p *Policy) Enabled(f Feature) bool {
	return p != nil && p.Features[f]
}

// RequiresHashtag reports whether posts in channel must carry a [tag] prefix.
func (p *Policy) RequiresHashtag(channelID string) bool {
	return p.ModeratedChannels.Has(channelID) || p.HashtagChannels.Has(channelID)
}

// IsUpvote reports whether emoji is a designated upvote reaction.
func (p *Policy) IsUpvote(emoji string) bool {
	return p.UpvoteEmoji.Has(strings.TrimSpace(emoji))
}

// RewardsCrossed returns the rewards of ledger whose threshold lies in (from, to].
func (p *Policy) RewardsCrossed(ledger Ledger, from, to int64) []Reward {
	var out []Reward
	for _, r := range p.Rewards {
		if r.Ledger == ledger && r.Threshold > from && r.Threshold <= to {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Threshold < out[j].Threshold })
	return out
}

// Clone returns a deep copy of p with ServerID set to serverID.
func (p *Policy) Clone(serverID string) *Policy {
	c := *p
	c.ServerID = serverID
	c.Features = make(map[Feature]bool, len(p.Features))
	for f, on := range p.Features {
		c.Features[f] = on
	}
	c.ModeratedChannels = p.ModeratedChannels.clone()
	c.HashtagChannels = p.HashtagChannels.clone()
	c.ExcludedRepChannels = p.ExcludedRepChannels.clone()
	c.UpvoteEmoji = p.UpvoteEmoji.clone()
	c.TriggerWords = append([]string(nil), p.TriggerWords...)
	c.Rewards = append([]Reward(nil), p.Rewards...)
	return &c
}

// Validate checks the invariants the ledgers rely on.
func (p *Policy) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil policy", ErrInvalidPolicy)
	}
	if p.RepCooldown < 0 || p.XPCooldown < 0 {
		return fmt.Errorf("%w: cooldown windows must not be negative", ErrInvalidPolicy)
	}
	if p.Levels.Base <= 0 || p.Levels.Step < 0 {
		return fmt.Errorf("%w: level curve must be increasing", ErrInvalidPolicy)
	}
	if p.XP.Base < 0 || p.XP.MaxBonus < 0 || p.XP.PerChars < 0 {
		return fmt.Errorf("%w: xp increment terms must not be negative", ErrInvalidPolicy)
	}
	for _, r := range p.Rewards {
		if r.Ledger != LedgerReputation && r.Ledger != LedgerExperience {
			return fmt.Errorf("%w: reward %q has unknown ledger %q", ErrInvalidPolicy, r.RewardID, r.Ledger)
		}
	}
	return nil
}

// Default trigger words and policy values.
var (
	DefaultTriggerWords = []string{"thanks", "thank", "thx", "thnx", "ty", "tyvm", "danke", "dankee", "ありがとう", ":upvote:"}
	DefaultUpvoteEmoji  = []string{"👍", ":upvote:"}
)

const (
	DefaultRepCooldown    = 5 * time.Minute
	DefaultXPCooldown     = time.Minute
	DefaultHashtagWarning = "Posts in this channel must start with a tag such as [question] or [help]."
)

// DefaultPolicy returns the baseline policy for serverID with every feature disabled.
func DefaultPolicy(serverID string) *Policy {
	return &Policy{
		ServerID:            serverID,
		Features:            map[Feature]bool{},
		ModeratedChannels:   NewSet(),
		HashtagChannels:     NewSet(),
		ExcludedRepChannels: NewSet(),
		TriggerWords:        append([]string(nil), DefaultTriggerWords...),
		UpvoteEmoji:         NewSet(DefaultUpvoteEmoji...),
		RepCooldown:         DefaultRepCooldown,
		XPCooldown:          DefaultXPCooldown,
		XP:                  XPPolicy{Base: 15, PerChars: 20, MaxBonus: 10},
		Levels:              LevelCurve{Base: 400, Step: 200},
		HashtagWarning:      DefaultHashtagWarning,
	}
}
