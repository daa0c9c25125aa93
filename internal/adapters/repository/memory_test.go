package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okian/zen/internal/domain/model"
	"github.com/okian/zen/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func grant(server, giver, receiver string, at time.Time) *model.ReputationGrant {
	return &model.ReputationGrant{
		ID: uuid.New(), ServerID: server, GiverID: giver, ReceiverID: receiver,
		Source: model.SourceMention, Amount: 1, At: at,
	}
}

func TestBoard(t *testing.T) {
	Convey("Given a board with tied values", t, func() {
		b := newBoard()
		b.set("carol", 5)
		b.set("alice", 10)
		b.set("bob", 10)
		b.set("dave", 1)

		Convey("Then top lists values desc, ids asc, with dense ranks", func() {
			top := b.top(10)
			So(len(top), ShouldEqual, 4)
			So(top[0], ShouldResemble, model.LeaderboardEntry{Rank: 1, UserID: "alice", Value: 10})
			So(top[1], ShouldResemble, model.LeaderboardEntry{Rank: 1, UserID: "bob", Value: 10})
			So(top[2], ShouldResemble, model.LeaderboardEntry{Rank: 2, UserID: "carol", Value: 5})
			So(top[3], ShouldResemble, model.LeaderboardEntry{Rank: 3, UserID: "dave", Value: 1})
		})

		Convey("Then rank agrees with top", func() {
			r, v, ok := b.rank("carol")
			So(ok, ShouldBeTrue)
			So(r, ShouldEqual, 2)
			So(v, ShouldEqual, 5)

			_, _, ok = b.rank("nobody")
			So(ok, ShouldBeFalse)
		})

		Convey("When a member moves up", func() {
			b.set("dave", 10)

			Convey("Then the old distinct value is released", func() {
				r, _, _ := b.rank("dave")
				So(r, ShouldEqual, 1)
				So(b.values.len(), ShouldEqual, 2)
				So(b.members.len(), ShouldEqual, 4)
			})
		})

		Convey("When top is truncated", func() {
			So(len(b.top(2)), ShouldEqual, 2)
		})
	})
}

func TestBoardRandomized(t *testing.T) {
	Convey("Given many random updates", t, func() {
		b := newBoard()
		values := map[string]int64{}
		for i := 0; i < 2000; i++ {
			id := fmt.Sprintf("u%03d", i%300)
			values[id] += int64(i % 7)
			b.set(id, values[id])
		}

		Convey("Then dense ranks match a sorted reference", func() {
			distinct := map[int64]struct{}{}
			for _, v := range values {
				distinct[v] = struct{}{}
			}
			sorted := make([]int64, 0, len(distinct))
			for v := range distinct {
				sorted = append(sorted, v)
			}
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
			want := map[int64]int{}
			for i, v := range sorted {
				want[v] = i + 1
			}
			for id, v := range values {
				r, _, ok := b.rank(id)
				So(ok, ShouldBeTrue)
				So(r, ShouldEqual, want[v])
			}
		})
	})
}

func TestMemoryStoreReputation(t *testing.T) {
	Convey("Given a memory store", t, func() {
		ctx := context.Background()
		s := NewMemoryStore(ctx, WithLogRetention(3))
		defer s.Close()
		now := time.Unix(1_700_000_000, 0)

		Convey("When a missing profile is read", func() {
			p, err := s.ReputationProfile(ctx, model.MemberKey{ServerID: "s1", UserID: "ghost"})

			Convey("Then a zero profile is returned", func() {
				So(err, ShouldBeNil)
				So(p.Score, ShouldEqual, 0)
				So(p.LastGivenTo, ShouldNotBeNil)
			})
		})

		Convey("When reputation is applied", func() {
			score, err := s.ApplyReputation(ctx, grant("s1", "alice", "bob", now))
			So(err, ShouldBeNil)
			So(score, ShouldEqual, 1)
			score, _ = s.ApplyReputation(ctx, grant("s1", "carol", "bob", now.Add(time.Second)))
			So(score, ShouldEqual, 2)

			Convey("Then receiver and giver profiles are updated", func() {
				bob, _ := s.ReputationProfile(ctx, model.MemberKey{ServerID: "s1", UserID: "bob"})
				So(bob.Score, ShouldEqual, 2)
				So(bob.LastReceived, ShouldEqual, now.Add(time.Second))

				alice, _ := s.ReputationProfile(ctx, model.MemberKey{ServerID: "s1", UserID: "alice"})
				So(alice.Score, ShouldEqual, 0)
				So(alice.LastGivenTo["bob"], ShouldEqual, now)
			})

			Convey("Then other servers are unaffected", func() {
				other, _ := s.ReputationProfile(ctx, model.MemberKey{ServerID: "s2", UserID: "bob"})
				So(other.Score, ShouldEqual, 0)
				top, err := s.TopReputation(ctx, "s2", 10)
				So(err, ShouldBeNil)
				So(top, ShouldBeEmpty)
			})

			Convey("Then the leaderboard and rank reflect it", func() {
				top, err := s.TopReputation(ctx, "s1", 10)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 1)
				So(top[0].UserID, ShouldEqual, "bob")
				r, err := s.ReputationRank(ctx, model.MemberKey{ServerID: "s1", UserID: "bob"})
				So(err, ShouldBeNil)
				So(r, ShouldEqual, 1)
				_, err = s.ReputationRank(ctx, model.MemberKey{ServerID: "s1", UserID: "alice"})
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})

			Convey("Then the log is newest first and bounded", func() {
				_, _ = s.ApplyReputation(ctx, grant("s1", "dave", "bob", now.Add(2*time.Second)))
				_, _ = s.ApplyReputation(ctx, grant("s1", "erin", "bob", now.Add(3*time.Second)))
				rows, err := s.ReputationLog(ctx, "s1", 10)
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 3)
				So(rows[0].GiverID, ShouldEqual, "erin")
				So(rows[2].GiverID, ShouldEqual, "carol")
			})

			Convey("Then the log keeps the newest rows after wrapping several times", func() {
				givers := []string{"dave", "erin", "frank", "gina", "hal", "ivy", "jack"}
				for i, g := range givers {
					_, _ = s.ApplyReputation(ctx, grant("s1", g, "bob", now.Add(time.Duration(i+2)*time.Second)))
				}
				rows, err := s.ReputationLog(ctx, "s1", 10)
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 3)
				So(rows[0].GiverID, ShouldEqual, "jack")
				So(rows[1].GiverID, ShouldEqual, "ivy")
				So(rows[2].GiverID, ShouldEqual, "hal")

				top, _ := s.ReputationLog(ctx, "s1", 2)
				So(len(top), ShouldEqual, 2)
				So(top[1].GiverID, ShouldEqual, "ivy")
			})
		})

		Convey("When limits are invalid", func() {
			_, err := s.TopReputation(ctx, "s1", 0)
			So(errors.Is(err, ErrInvalidLimit), ShouldBeTrue)
			_, err = s.ReputationLog(ctx, "s1", -1)
			So(errors.Is(err, ErrInvalidLimit), ShouldBeTrue)
		})
	})
}

func TestMemoryStoreExperience(t *testing.T) {
	Convey("Given a memory store", t, func() {
		ctx := context.Background()
		s := NewMemoryStore(ctx)
		defer s.Close()
		key := model.MemberKey{ServerID: "s1", UserID: "alice"}

		Convey("When experience is updated", func() {
			p, err := s.UpdateExperience(ctx, key, func(p *model.ExperienceProfile) error {
				p.XP += 500
				p.Level = 1
				p.Messages++
				return nil
			})

			Convey("Then the profile is persisted and ranked", func() {
				So(err, ShouldBeNil)
				So(p.XP, ShouldEqual, 500)
				stored, _ := s.ExperienceProfile(ctx, key)
				So(stored.XP, ShouldEqual, 500)
				top, _ := s.TopExperience(ctx, "s1", 5)
				So(top[0].Level, ShouldEqual, 1)
				r, _ := s.ExperienceRank(ctx, key)
				So(r, ShouldEqual, 1)
			})
		})

		Convey("When the update function fails", func() {
			_, err := s.UpdateExperience(ctx, key, func(p *model.ExperienceProfile) error {
				p.XP = 99
				return errors.New("nope")
			})

			Convey("Then nothing is persisted", func() {
				So(err, ShouldNotBeNil)
				stored, _ := s.ExperienceProfile(ctx, key)
				So(stored.XP, ShouldEqual, 0)
				rep, xp := s.Counts()
				So(rep, ShouldEqual, 0)
				So(xp, ShouldEqual, 0)
			})
		})

		Convey("When a returned profile is mutated", func() {
			p, _ := s.UpdateExperience(ctx, key, func(p *model.ExperienceProfile) error { p.XP = 10; return nil })
			p.XP = 1_000_000

			Convey("Then the stored copy is unchanged", func() {
				stored, _ := s.ExperienceProfile(ctx, key)
				So(stored.XP, ShouldEqual, 10)
			})
		})
	})
}

func TestMemoryStoreConcurrency(t *testing.T) {
	Convey("Given concurrent grants to one receiver", t, func() {
		ctx := context.Background()
		s := NewMemoryStore(ctx)
		defer s.Close()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _ = s.ApplyReputation(ctx, grant("s1", fmt.Sprintf("g%d", i), "bob", time.Now()))
			}(i)
		}
		wg.Wait()

		Convey("Then every increment is kept", func() {
			bob, _ := s.ReputationProfile(ctx, model.MemberKey{ServerID: "s1", UserID: "bob"})
			So(bob.Score, ShouldEqual, 50)
		})
	})
}
