package config

import (
	"fmt"
	"time"

	"github.com/okian/zen/internal/domain/model"
)

// PolicyConfig selects where per-server policy comes from and how long
// lookups are cached.
type PolicyConfig struct {
	Source    string                    `koanf:"source"`
	CacheSize int                       `koanf:"cache_size"`
	CacheTTL  time.Duration             `koanf:"cache_ttl"`
	Defaults  PolicySettings            `koanf:"defaults"`
	Servers   map[string]PolicySettings `koanf:"servers"`
}

// PolicySettings is the file/env form of model.Policy. Unset fields inherit
// from the layer below: server entries from Defaults, Defaults from
// model.DefaultPolicy.
type PolicySettings struct {
	Features            map[string]bool   `koanf:"features"`
	ModeratedChannels   []string          `koanf:"moderated_channels"`
	HashtagChannels     []string          `koanf:"hashtag_channels"`
	ExcludedRepChannels []string          `koanf:"excluded_rep_channels"`
	TriggerWords        []string          `koanf:"trigger_words"`
	UpvoteEmoji         []string          `koanf:"upvote_emoji"`
	RepCooldown         *time.Duration    `koanf:"rep_cooldown"`
	XPCooldown          *time.Duration    `koanf:"xp_cooldown"`
	XP                  *model.XPPolicy   `koanf:"xp"`
	Levels              *model.LevelCurve `koanf:"levels"`
	Rewards             []model.Reward    `koanf:"rewards"`
	HashtagWarning      string            `koanf:"hashtag_warning"`
}

var knownFeatures = map[string]model.Feature{
	string(model.FeatureReputation): model.FeatureReputation,
	string(model.FeatureExperience): model.FeatureExperience,
	string(model.FeatureHashtag):    model.FeatureHashtag,
}

// Template returns the policy every server starts from.
func (c PolicyConfig) Template() (*model.Policy, error) {
	p := model.DefaultPolicy("")
	if err := c.Defaults.applyTo(p); err != nil {
		return nil, fmt.Errorf("policy.defaults: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("policy.defaults: %w", err)
	}
	return p, nil
}

// Overrides returns one fully resolved policy per configured server.
func (c PolicyConfig) Overrides() (map[string]*model.Policy, error) {
	tmpl, err := c.Template()
	if err != nil {
		return nil, err
	}
	out := make(map[string]*model.Policy, len(c.Servers))
	for id, s := range c.Servers {
		p := tmpl.Clone(id)
		if err := s.applyTo(p); err != nil {
			return nil, fmt.Errorf("policy.servers.%s: %w", id, err)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("policy.servers.%s: %w", id, err)
		}
		out[id] = p
	}
	return out, nil
}

func (s PolicySettings) applyTo(p *model.Policy) error {
	for name, on := range s.Features {
		f, ok := knownFeatures[name]
		if !ok {
			return fmt.Errorf("%w: unknown feature %q", ErrInvalidConfig, name)
		}
		p.Features[f] = on
	}
	if s.ModeratedChannels != nil {
		p.ModeratedChannels = model.NewSet(s.ModeratedChannels...)
	}
	if s.HashtagChannels != nil {
		p.HashtagChannels = model.NewSet(s.HashtagChannels...)
	}
	if s.ExcludedRepChannels != nil {
		p.ExcludedRepChannels = model.NewSet(s.ExcludedRepChannels...)
	}
	if len(s.TriggerWords) > 0 {
		p.TriggerWords = append([]string(nil), s.TriggerWords...)
	}
	if len(s.UpvoteEmoji) > 0 {
		p.UpvoteEmoji = model.NewSet(s.UpvoteEmoji...)
	}
	if s.RepCooldown != nil {
		p.RepCooldown = *s.RepCooldown
	}
	if s.XPCooldown != nil {
		p.XPCooldown = *s.XPCooldown
	}
	if s.XP != nil {
		p.XP = *s.XP
	}
	if s.Levels != nil {
		p.Levels = *s.Levels
	}
	if s.Rewards != nil {
		p.Rewards = append([]model.Reward(nil), s.Rewards...)
	}
	if s.HashtagWarning != "" {
		p.HashtagWarning = s.HashtagWarning
	}
	return nil
}
