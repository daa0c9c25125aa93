// Package trigger classifies chat content: bracketed hashtags, reputation
// trigger words with their targets, upvote reactions and XP eligibility.
// Every function is pure.
package trigger

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/okian/zen/internal/domain/model"
)

// negation cancels a trigger word that directly follows it ("no thanks").
const negation = "no"

// Candidate is one proposed reputation grant.
type Candidate struct {
	GiverID    string
	ReceiverID string
	Source     model.GrantSource
	Trigger    string
}

// Matcher detects trigger words in content.
type Matcher struct {
	whole map[string]string // normalized -> configured word
	sub   []string
	orig  map[string]string
}

// Compile prepares a matcher for words.
func Compile(words []string) *Matcher {
	m := &Matcher{whole: make(map[string]string, len(words)), orig: make(map[string]string)}
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		n := normalize(w)
		if unspaced(w) {
			m.sub = append(m.sub, n)
			m.orig[n] = w
			continue
		}
		m.whole[n] = w
	}
	return m
}

// Match returns the first trigger word found in content.
func (m *Matcher) Match(content string) (string, bool) {
	tokens := Tokenize(content)
	for i, tok := range tokens {
		if i > 0 && tokens[i-1] == negation {
			continue
		}
		if w, ok := m.whole[tok]; ok {
			return w, true
		}
		for _, s := range m.sub {
			if strings.Contains(tok, s) {
				return m.orig[s], true
			}
		}
	}
	return "", false
}

// MatchTrigger reports whether content contains one of words as a whole token.
func MatchTrigger(content string, words []string) (string, bool) {
	return Compile(words).Match(content)
}

// ReputationCandidates returns one candidate per distinct eligible target of a
// message carrying a trigger word: the replied-to author first, then mentions.
// The author and bot accounts are never targets.
func ReputationCandidates(ev *model.Event, p *model.Policy) []Candidate {
	if ev == nil || p == nil || ev.Kind != model.KindMessageCreate || ev.AuthorBot {
		return nil
	}
	if !ev.IsReply() && len(ev.MentionedUserIDs) == 0 {
		return nil
	}
	word, ok := MatchTrigger(ev.Content, p.TriggerWords)
	if !ok {
		return nil
	}

	bots := model.NewSet(ev.MentionedBotIDs...)
	seen := make(map[string]struct{}, len(ev.MentionedUserIDs)+1)
	var out []Candidate
	add := func(target string, src model.GrantSource) {
		if target == "" || target == ev.AuthorID || bots.Has(target) {
			return
		}
		if _, dup := seen[target]; dup {
			return
		}
		seen[target] = struct{}{}
		out = append(out, Candidate{GiverID: ev.AuthorID, ReceiverID: target, Source: src, Trigger: word})
	}

	if ev.IsReply() && !ev.ReferencedAuthorBot {
		add(ev.ReferencedAuthorID, model.SourceReply)
	}
	for _, id := range ev.MentionedUserIDs {
		add(id, model.SourceMention)
	}
	return out
}

// ReactionCandidate returns the grant proposed by an upvote reaction.
func ReactionCandidate(ev *model.Event, p *model.Policy) (Candidate, bool) {
	if ev == nil || p == nil || ev.Kind != model.KindReactionAdd {
		return Candidate{}, false
	}
	if ev.ReactorBot || ev.AuthorBot || ev.ReactorID == "" || ev.ReactorID == ev.AuthorID {
		return Candidate{}, false
	}
	if !IsUpvote(ev.ReactionEmoji, p) {
		return Candidate{}, false
	}
	return Candidate{GiverID: ev.ReactorID, ReceiverID: ev.AuthorID, Source: model.SourceReaction, Trigger: ev.ReactionEmoji}, true
}

// IsUpvote matches unicode emoji exactly and custom emoji (<:name:id>) by shortcode.
func IsUpvote(emoji string, p *model.Policy) bool {
	emoji = strings.TrimSpace(emoji)
	if p.IsUpvote(emoji) {
		return true
	}
	if strings.HasPrefix(emoji, "<") && strings.HasSuffix(emoji, ">") {
		parts := strings.Split(strings.Trim(emoji, "<>"), ":")
		if len(parts) == 3 && parts[1] != "" {
			return p.IsUpvote(":" + parts[1] + ":")
		}
	}
	return false
}

// XPEligible reports whether a message can earn experience. Bot messages and
// commands (content opening with a symbol such as ! or /) are not eligible.
func XPEligible(ev *model.Event) bool {
	if ev == nil || ev.Kind != model.KindMessageCreate || ev.AuthorBot {
		return false
	}
	if ev.Content == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(ev.Content)
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '"' || r == '\'' || r == '.'
}
