package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/zen/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestEventValidate(t *testing.T) {
	convey.Convey("Given a message event", t, func() {
		ev := model.Event{ID: "e1", Kind: model.KindMessageCreate, ServerID: "s", ChannelID: "c", AuthorID: "a"}

		convey.Convey("Then a complete event is valid", func() {
			convey.So(ev.Validate(), convey.ShouldBeNil)
			convey.So(ev.ActorID(), convey.ShouldEqual, "a")
		})

		convey.Convey("When the id is missing", func() {
			ev.ID = ""
			convey.So(errors.Is(ev.Validate(), model.ErrInvalidEvent), convey.ShouldBeTrue)
		})

		convey.Convey("When the kind is unknown", func() {
			ev.Kind = "typing"
			convey.So(errors.Is(ev.Validate(), model.ErrInvalidEvent), convey.ShouldBeTrue)
		})

		convey.Convey("When it is a reaction without a reactor", func() {
			ev.Kind = model.KindReactionAdd
			ev.ReactionEmoji = "👍"
			convey.So(ev.Validate(), convey.ShouldNotBeNil)

			ev.ReactorID = "r"
			ev.ReactorBot = true
			convey.So(ev.Validate(), convey.ShouldBeNil)
			convey.So(ev.ActorID(), convey.ShouldEqual, "r")
			convey.So(ev.ActorIsBot(), convey.ShouldBeTrue)
		})
	})
}

func TestLevelCurve(t *testing.T) {
	convey.Convey("Given the default level curve", t, func() {
		curve := model.LevelCurve{Base: 400, Step: 200}

		convey.Convey("Then requirements follow the triangular formula", func() {
			convey.So(curve.XPFor(0), convey.ShouldEqual, 0)
			convey.So(curve.XPFor(1), convey.ShouldEqual, 400)
			convey.So(curve.XPFor(2), convey.ShouldEqual, 1000)
			convey.So(curve.XPFor(3), convey.ShouldEqual, 1800)
		})

		convey.Convey("Then levels switch exactly at the requirement", func() {
			convey.So(curve.Level(0), convey.ShouldEqual, 0)
			convey.So(curve.Level(399), convey.ShouldEqual, 0)
			convey.So(curve.Level(400), convey.ShouldEqual, 1)
			convey.So(curve.Level(999), convey.ShouldEqual, 1)
			convey.So(curve.Level(1000), convey.ShouldEqual, 2)
		})

		convey.Convey("Then Level never decreases as xp grows", func() {
			prev := 0
			for xp := int64(0); xp < 20_000; xp += 37 {
				l := curve.Level(xp)
				convey.So(l, convey.ShouldBeGreaterThanOrEqualTo, prev)
				prev = l
			}
		})
	})
}

func TestXPIncrement(t *testing.T) {
	convey.Convey("Given the default increment policy", t, func() {
		p := model.XPPolicy{Base: 15, PerChars: 20, MaxBonus: 10}

		convey.So(p.Increment(0), convey.ShouldEqual, 15)
		convey.So(p.Increment(-3), convey.ShouldEqual, 15)
		convey.So(p.Increment(45), convey.ShouldEqual, 17)
		convey.So(p.Increment(10_000), convey.ShouldEqual, 25)
	})
}

func TestPolicy(t *testing.T) {
	convey.Convey("Given a default policy", t, func() {
		p := model.DefaultPolicy("s1")

		convey.Convey("Then every feature is disabled and it validates", func() {
			convey.So(p.Enabled(model.FeatureReputation), convey.ShouldBeFalse)
			convey.So(p.Enabled(model.FeatureExperience), convey.ShouldBeFalse)
			convey.So(p.Validate(), convey.ShouldBeNil)
			convey.So(p.IsUpvote(" 👍 "), convey.ShouldBeTrue)
		})

		convey.Convey("When channels are moderated", func() {
			p.ModeratedChannels = model.NewSet("m1")
			p.HashtagChannels = model.NewSet("h1", "")

			convey.So(p.RequiresHashtag("m1"), convey.ShouldBeTrue)
			convey.So(p.RequiresHashtag("h1"), convey.ShouldBeTrue)
			convey.So(p.RequiresHashtag("other"), convey.ShouldBeFalse)
			convey.So(p.HashtagChannels.Sorted(), convey.ShouldResemble, []string{"h1"})
		})

		convey.Convey("When rewards are configured", func() {
			p.Rewards = []model.Reward{
				{Ledger: model.LedgerReputation, Threshold: 10, RewardID: "helper"},
				{Ledger: model.LedgerReputation, Threshold: 5, RewardID: "friendly"},
				{Ledger: model.LedgerExperience, Threshold: 5, RewardID: "regular"},
			}

			convey.Convey("Then only thresholds inside the half-open range are crossed", func() {
				crossed := p.RewardsCrossed(model.LedgerReputation, 4, 10)
				convey.So(len(crossed), convey.ShouldEqual, 2)
				convey.So(crossed[0].RewardID, convey.ShouldEqual, "friendly")
				convey.So(p.RewardsCrossed(model.LedgerReputation, 5, 9), convey.ShouldBeEmpty)
			})

			convey.Convey("Then an unknown ledger fails validation", func() {
				p.Rewards = append(p.Rewards, model.Reward{Ledger: "karma", Threshold: 1})
				convey.So(errors.Is(p.Validate(), model.ErrInvalidPolicy), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a cooldown is negative", func() {
			p.XPCooldown = -time.Second
			convey.So(p.Validate(), convey.ShouldNotBeNil)
		})
	})
}

func TestProfileClone(t *testing.T) {
	convey.Convey("Given a reputation profile", t, func() {
		p := &model.ReputationProfile{Score: 2, LastGivenTo: map[string]time.Time{"b": time.Unix(1, 0)}}
		c := p.Clone()
		c.LastGivenTo["x"] = time.Unix(2, 0)

		convey.So(len(p.LastGivenTo), convey.ShouldEqual, 1)
		convey.So(model.MemberKey{ServerID: "s", UserID: "u"}.String(), convey.ShouldEqual, "s/u")
	})
}

func TestPolicyClone(t *testing.T) {
	convey.Convey("Given a default policy", t, func() {
		base := model.DefaultPolicy("")
		c := base.Clone("s9")
		c.Features[model.FeatureReputation] = true
		c.ModeratedChannels["c1"] = struct{}{}
		c.TriggerWords[0] = "cheers"

		convey.Convey("Then the copy is independent of the template", func() {
			convey.So(c.ServerID, convey.ShouldEqual, "s9")
			convey.So(base.Enabled(model.FeatureReputation), convey.ShouldBeFalse)
			convey.So(base.ModeratedChannels.Has("c1"), convey.ShouldBeFalse)
			convey.So(base.TriggerWords[0], convey.ShouldEqual, "thanks")
		})
	})
}
