package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/zen/internal/domain/model"
)

// PolicyStore reads per-server policy from the settings, moderated_channels,
// trigger_words and rewards tables. Values that are absent fall back to the
// template policy.
type PolicyStore struct {
	pool     *pgxpool.Pool
	template *model.Policy
}

// NewPolicyStore creates a PolicyStore. A nil template uses model.DefaultPolicy.
func NewPolicyStore(pool *pgxpool.Pool, template *model.Policy) *PolicyStore {
	if template == nil {
		template = model.DefaultPolicy("")
	}
	return &PolicyStore{pool: pool, template: template}
}

// Policy returns the snapshot for serverID. A server without a settings row
// gets the template with every feature disabled.
func (s *PolicyStore) Policy(ctx context.Context, serverID string) (*model.Policy, error) {
	q := QuerierFromCtx(ctx, s.pool)
	p := s.template.Clone(serverID)

	var (
		enableRep, enableXP, enableHashtag bool
		excluded, hashtagChannels, upvote  []string
		repCooldownMS, xpCooldownMS        *int64
		warning                            *string
	)
	sql, args, err := psql.
		Select("enable_rep", "enable_xp", "enable_hashtag", "excluded_rep_channels", "hashtag_channels",
			"upvote_emoji", "rep_cooldown_ms", "xp_cooldown_ms", "hashtag_warning").
		From("settings").
		Where(squirrel.Eq{"server_id": serverID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build settings query: %w", err)
	}
	err = q.QueryRow(ctx, sql, args...).Scan(&enableRep, &enableXP, &enableHashtag, &excluded,
		&hashtagChannels, &upvote, &repCooldownMS, &xpCooldownMS, &warning)
	if errors.Is(err, pgx.ErrNoRows) {
		p.Features = map[model.Feature]bool{}
		return p, nil
	}
	if err != nil {
		return nil, mapError(err, "settings", serverID)
	}

	p.Features = map[model.Feature]bool{
		model.FeatureReputation: enableRep,
		model.FeatureExperience: enableXP,
		model.FeatureHashtag:    enableHashtag,
	}
	p.ExcludedRepChannels = model.NewSet(excluded...)
	p.HashtagChannels = model.NewSet(hashtagChannels...)
	if len(upvote) > 0 {
		p.UpvoteEmoji = model.NewSet(upvote...)
	}
	if repCooldownMS != nil {
		p.RepCooldown = time.Duration(*repCooldownMS) * time.Millisecond
	}
	if xpCooldownMS != nil {
		p.XPCooldown = time.Duration(*xpCooldownMS) * time.Millisecond
	}
	if warning != nil && *warning != "" {
		p.HashtagWarning = *warning
	}

	channels, err := s.strings(ctx, q, "moderated_channels", "channel_id", serverID)
	if err != nil {
		return nil, err
	}
	p.ModeratedChannels = model.NewSet(channels...)

	words, err := s.strings(ctx, q, "trigger_words", "word", serverID)
	if err != nil {
		return nil, err
	}
	if len(words) > 0 {
		p.TriggerWords = words
	}

	rewards, err := s.rewards(ctx, q, serverID)
	if err != nil {
		return nil, err
	}
	p.Rewards = rewards

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("settings %s: %w", serverID, err)
	}
	return p, nil
}

func (s *PolicyStore) strings(ctx context.Context, q Querier, table, column, serverID string) ([]string, error) {
	sql, args, err := psql.Select(column).From(table).
		Where(squirrel.Eq{"server_id": serverID}).
		OrderBy(column).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", table, err)
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, table, serverID)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapError(err, table, serverID)
	}
	return out, nil
}

func (s *PolicyStore) rewards(ctx context.Context, q Querier, serverID string) ([]model.Reward, error) {
	sql, args, err := psql.Select("ledger", "threshold", "reward_id").From("rewards").
		Where(squirrel.Eq{"server_id": serverID}).
		OrderBy("threshold", "reward_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build rewards query: %w", err)
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "rewards", serverID)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Reward, error) {
		var r model.Reward
		var ledger string
		err := row.Scan(&ledger, &r.Threshold, &r.RewardID)
		r.Ledger = model.Ledger(ledger)
		return r, err
	})
	if err != nil {
		return nil, mapError(err, "rewards", serverID)
	}
	return out, nil
}

// ServerSettings is the writable subset of a server's policy row.
type ServerSettings struct {
	ServerID            string
	EnableReputation    bool
	EnableExperience    bool
	EnableHashtag       bool
	ExcludedRepChannels []string
	HashtagChannels     []string
	ModeratedChannels   []string
	TriggerWords        []string
	Rewards             []model.Reward
}

// SaveSettings replaces the stored policy of one server.
func (s *PolicyStore) SaveSettings(ctx context.Context, in ServerSettings) error {
	return NewTxManager(s.pool).RunInTx(ctx, func(ctx context.Context) error {
		q := QuerierFromCtx(ctx, s.pool)
		if _, err := q.Exec(ctx, `
			INSERT INTO settings (server_id, enable_rep, enable_xp, enable_hashtag, excluded_rep_channels, hashtag_channels, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (server_id) DO UPDATE SET
				enable_rep = EXCLUDED.enable_rep,
				enable_xp = EXCLUDED.enable_xp,
				enable_hashtag = EXCLUDED.enable_hashtag,
				excluded_rep_channels = EXCLUDED.excluded_rep_channels,
				hashtag_channels = EXCLUDED.hashtag_channels,
				updated_at = now()`,
			in.ServerID, in.EnableReputation, in.EnableExperience, in.EnableHashtag,
			nonNil(in.ExcludedRepChannels), nonNil(in.HashtagChannels),
		); err != nil {
			return mapError(err, "settings", in.ServerID)
		}

		for _, table := range []string{"moderated_channels", "trigger_words", "rewards"} {
			sql, args, err := psql.Delete(table).Where(squirrel.Eq{"server_id": in.ServerID}).ToSql()
			if err != nil {
				return fmt.Errorf("build %s delete: %w", table, err)
			}
			if _, err := q.Exec(ctx, sql, args...); err != nil {
				return mapError(err, table, in.ServerID)
			}
		}

		if len(in.ModeratedChannels) > 0 {
			ins := psql.Insert("moderated_channels").Columns("server_id", "channel_id")
			for _, c := range in.ModeratedChannels {
				ins = ins.Values(in.ServerID, c)
			}
			if err := execBuilder(ctx, q, ins, "moderated_channels", in.ServerID); err != nil {
				return err
			}
		}
		if len(in.TriggerWords) > 0 {
			ins := psql.Insert("trigger_words").Columns("server_id", "word")
			for _, w := range in.TriggerWords {
				ins = ins.Values(in.ServerID, w)
			}
			if err := execBuilder(ctx, q, ins, "trigger_words", in.ServerID); err != nil {
				return err
			}
		}
		if len(in.Rewards) > 0 {
			ins := psql.Insert("rewards").Columns("server_id", "reward_id", "ledger", "threshold")
			for _, r := range in.Rewards {
				ins = ins.Values(in.ServerID, r.RewardID, string(r.Ledger), r.Threshold)
			}
			if err := execBuilder(ctx, q, ins, "rewards", in.ServerID); err != nil {
				return err
			}
		}
		return nil
	})
}

func execBuilder(ctx context.Context, q Querier, b squirrel.InsertBuilder, table, id string) error {
	sql, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build %s insert: %w", table, err)
	}
	if _, err := q.Exec(ctx, sql, args...); err != nil {
		return mapError(err, table, id)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
