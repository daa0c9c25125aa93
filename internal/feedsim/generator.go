package feedsim

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/zen/internal/domain/model"
)

// Channel names used by the generator. ModeratedChannel is where tagged
// questions are expected; servers must list it as moderated for enforcement.
const (
	GeneralChannel   = "general"
	HelpChannel      = "help"
	ModeratedChannel = "questions"
)

// Mix of generated event kinds, in percent.
const (
	pctPlain    = 40
	pctReply    = 15
	pctMention  = 10
	pctQuestion = 10
	pctReaction = 17
	pctEdit     = 4
	// the remainder are deletes
)

const recentWindow = 64

var (
	plainPhrases = []string{
		"has anyone tried the new release yet",
		"lunch break, back in 10",
		"the build is green again",
		"what editor do you all use",
		"deploying to staging now",
		"good morning everyone",
		"that benchmark looks suspicious to me",
		"reading through the proposal, will comment later",
	}
	thanksPhrases = []string{
		"thanks, that fixed it",
		"ty for the help",
		"thank you so much for the pointer",
		"thx!",
		"danke, läuft jetzt",
		"ありがとうございます",
		"no thanks, I'm good",
		"tyvm :upvote:",
	}
	questionPhrases = []string{
		"how do I cancel a context from another goroutine",
		"pod is stuck in pending after the upgrade",
		"why does my migration run twice",
		"is there a way to stream rows without loading them all",
	}
	questionTags = []string{"[go]", "[k8s]", "[sql]", "[help]"}
	reactions    = []string{"👍", ":upvote:", "🎉", "😂", "👀"}
)

type sent struct {
	channel string
	message string
	author  string
}

// Generator produces a plausible stream of normalized chat events. Message
// contents, targets and kinds are drawn from a seeded source so two
// generators with the same seed yield the same stream apart from event IDs.
// A Generator is not safe for concurrent use.
type Generator struct {
	rng     *rand.Rand
	runID   string
	servers []string
	members map[string][]string
	recent  map[string][]sent
	emitted []model.Event
	seq     int

	duplicateRate float64
	botRate       float64
	now           func() time.Time
}

// NewGenerator creates a generator for cfg.
func NewGenerator(cfg *Config) *Generator {
	g := &Generator{
		rng:           rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		runID:         uuid.NewString()[:8],
		members:       make(map[string][]string, cfg.Servers),
		recent:        make(map[string][]sent, cfg.Servers),
		duplicateRate: cfg.DuplicateRate,
		botRate:       cfg.BotRate,
		now:           time.Now,
	}
	for s := 1; s <= cfg.Servers; s++ {
		server := fmt.Sprintf("server-%d", s)
		g.servers = append(g.servers, server)
		members := make([]string, cfg.Members)
		for m := range members {
			members[m] = fmt.Sprintf("user-%03d", m+1)
		}
		g.members[server] = members
	}
	return g
}

// Generate returns n events.
func (g *Generator) Generate(n int) []model.Event {
	out := make([]model.Event, n)
	for i := range out {
		out[i] = g.Next()
	}
	return out
}

// Next returns the next event. Redeliveries reuse an earlier event verbatim.
func (g *Generator) Next() model.Event {
	if len(g.emitted) > 0 && g.rng.Float64() < g.duplicateRate {
		return g.emitted[g.rng.IntN(len(g.emitted))]
	}

	server := g.servers[g.rng.IntN(len(g.servers))]
	ev := g.base(server)

	roll := g.rng.IntN(100)
	switch {
	case roll < pctPlain:
		g.plain(&ev)
	case roll < pctPlain+pctReply:
		g.reply(&ev)
	case roll < pctPlain+pctReply+pctMention:
		g.mention(&ev)
	case roll < pctPlain+pctReply+pctMention+pctQuestion:
		g.question(&ev)
	case roll < pctPlain+pctReply+pctMention+pctQuestion+pctReaction:
		g.reaction(&ev)
	case roll < pctPlain+pctReply+pctMention+pctQuestion+pctReaction+pctEdit:
		g.edit(&ev, model.KindMessageEdit)
	default:
		g.edit(&ev, model.KindMessageDelete)
	}

	if ev.Kind == model.KindMessageCreate {
		g.remember(ev)
	}
	g.emitted = append(g.emitted, ev)
	return ev
}

func (g *Generator) base(server string) model.Event {
	g.seq++
	return model.Event{
		ID:        fmt.Sprintf("sim-%s-%07d", g.runID, g.seq),
		Kind:      model.KindMessageCreate,
		ServerID:  server,
		ChannelID: GeneralChannel,
		MessageID: fmt.Sprintf("msg-%s-%07d", g.runID, g.seq),
		AuthorID:  g.member(server),
		At:        g.now().UTC(),
	}
}

func (g *Generator) plain(ev *model.Event) {
	if g.rng.Float64() < g.botRate {
		ev.AuthorID = "bot-helper"
		ev.AuthorBot = true
	}
	if g.rng.IntN(2) == 0 {
		ev.ChannelID = HelpChannel
	}
	text := plainPhrases[g.rng.IntN(len(plainPhrases))]
	// longer posts earn the length bonus
	ev.Content = strings.Repeat(text+". ", 1+g.rng.IntN(6))
}

func (g *Generator) reply(ev *model.Event) {
	ev.ChannelID = HelpChannel
	ev.Content = thanksPhrases[g.rng.IntN(len(thanksPhrases))]
	if prev, ok := g.pick(ev.ServerID, ev.AuthorID); ok {
		ev.ChannelID = prev.channel
		ev.ReferencedAuthorID = prev.author
		return
	}
	ev.ReferencedAuthorID = g.other(ev.ServerID, ev.AuthorID)
}

func (g *Generator) mention(ev *model.Event) {
	first := g.other(ev.ServerID, ev.AuthorID)
	ev.MentionedUserIDs = []string{first}
	if g.rng.IntN(3) == 0 {
		if second := g.other(ev.ServerID, ev.AuthorID); second != first {
			ev.MentionedUserIDs = append(ev.MentionedUserIDs, second)
		}
	}
	if g.rng.IntN(10) == 0 {
		ev.MentionedBotIDs = []string{"bot-helper"}
	}
	ev.Content = thanksPhrases[g.rng.IntN(len(thanksPhrases))]
}

func (g *Generator) question(ev *model.Event) {
	ev.ChannelID = ModeratedChannel
	text := questionPhrases[g.rng.IntN(len(questionPhrases))]
	// roughly a third forget the tag
	if g.rng.IntN(3) == 0 {
		ev.Content = text
		return
	}
	ev.Content = questionTags[g.rng.IntN(len(questionTags))] + " " + text
}

func (g *Generator) reaction(ev *model.Event) {
	ev.Kind = model.KindReactionAdd
	ev.ReactorID = ev.AuthorID
	ev.ReactionEmoji = reactions[g.rng.IntN(len(reactions))]
	if prev, ok := g.pick(ev.ServerID, ev.ReactorID); ok {
		ev.ChannelID = prev.channel
		ev.MessageID = prev.message
		ev.AuthorID = prev.author
		return
	}
	ev.AuthorID = g.other(ev.ServerID, ev.ReactorID)
}

func (g *Generator) edit(ev *model.Event, kind model.EventKind) {
	ev.Kind = kind
	if prev, ok := g.pick(ev.ServerID, ""); ok {
		ev.ChannelID = prev.channel
		ev.MessageID = prev.message
		ev.AuthorID = prev.author
	}
	if kind == model.KindMessageEdit {
		ev.Content = plainPhrases[g.rng.IntN(len(plainPhrases))] + " (edited)"
	}
}

func (g *Generator) remember(ev model.Event) {
	if ev.AuthorBot {
		return
	}
	r := append(g.recent[ev.ServerID], sent{channel: ev.ChannelID, message: ev.MessageID, author: ev.AuthorID})
	if len(r) > recentWindow {
		r = r[len(r)-recentWindow:]
	}
	g.recent[ev.ServerID] = r
}

// pick returns a recent message on server not written by exclude.
func (g *Generator) pick(server, exclude string) (sent, bool) {
	r := g.recent[server]
	for range 4 {
		if len(r) == 0 {
			break
		}
		if s := r[g.rng.IntN(len(r))]; s.author != exclude {
			return s, true
		}
	}
	return sent{}, false
}

func (g *Generator) member(server string) string {
	m := g.members[server]
	return m[g.rng.IntN(len(m))]
}

// other returns a member of server distinct from id.
func (g *Generator) other(server, id string) string {
	m := g.members[server]
	for {
		if o := m[g.rng.IntN(len(m))]; o != id {
			return o
		}
	}
}
