package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/zen/internal/domain/ledger"
	"github.com/okian/zen/internal/domain/model"
	"github.com/okian/zen/pkg/metrics"
)

var (
	_ ledger.Store = (*Store)(nil)
	_ ledger.Board = (*Store)(nil)
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Store implements ledger.Store and ledger.Board on PostgreSQL. Writes run in
// a transaction; experience updates lock the member row with SELECT ... FOR UPDATE.
type Store struct {
	pool *pgxpool.Pool
	tx   *TxManager
}

// NewStore creates a Store over pool. Migrations must already be applied.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, tx: NewTxManager(pool)}
}

// ReputationProfile loads the score and the giver's last grants. Unknown members get a zero profile.
func (s *Store) ReputationProfile(ctx context.Context, key model.MemberKey) (*model.ReputationProfile, error) {
	q := QuerierFromCtx(ctx, s.pool)
	p := &model.ReputationProfile{Key: key, LastGivenTo: map[string]time.Time{}}

	var last *time.Time
	err := q.QueryRow(ctx,
		`SELECT score, last_received FROM rep WHERE server_id = $1 AND user_id = $2`,
		key.ServerID, key.UserID,
	).Scan(&p.Score, &last)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, mapError(err, "rep", key.String())
	}
	if last != nil {
		p.LastReceived = *last
	}

	rows, err := q.Query(ctx,
		`SELECT receiver_id, last_given FROM rep_given WHERE server_id = $1 AND giver_id = $2`,
		key.ServerID, key.UserID,
	)
	if err != nil {
		return nil, mapError(err, "rep_given", key.String())
	}
	defer rows.Close()
	for rows.Next() {
		var receiver string
		var at time.Time
		if err := rows.Scan(&receiver, &at); err != nil {
			return nil, mapError(err, "rep_given", key.String())
		}
		p.LastGivenTo[receiver] = at
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "rep_given", key.String())
	}
	return p, nil
}

// ExperienceProfile loads the experience row. Unknown members get a zero profile.
func (s *Store) ExperienceProfile(ctx context.Context, key model.MemberKey) (*model.ExperienceProfile, error) {
	p := &model.ExperienceProfile{Key: key}
	var last *time.Time
	err := QuerierFromCtx(ctx, s.pool).QueryRow(ctx,
		`SELECT xp, level, last_gain, messages FROM xp WHERE server_id = $1 AND user_id = $2`,
		key.ServerID, key.UserID,
	).Scan(&p.XP, &p.Level, &last, &p.Messages)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return nil, mapError(err, "xp", key.String())
	}
	if last != nil {
		p.LastGain = *last
	}
	return p, nil
}

// ApplyReputation increments the receiver score, stamps the giver's last grant
// to the receiver and appends the audit row in one transaction.
func (s *Store) ApplyReputation(ctx context.Context, grant *model.ReputationGrant) (int64, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("pg_apply_reputation", float64(time.Since(start).Microseconds())/1000) }()

	var score int64
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q := QuerierFromCtx(ctx, s.pool)
		err := q.QueryRow(ctx, `
			INSERT INTO rep (server_id, user_id, score, last_received)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (server_id, user_id)
			DO UPDATE SET score = rep.score + EXCLUDED.score, last_received = EXCLUDED.last_received
			RETURNING score`,
			grant.ServerID, grant.ReceiverID, grant.Amount, grant.At,
		).Scan(&score)
		if err != nil {
			return mapError(err, "rep", grant.ReceiverID)
		}

		if _, err := q.Exec(ctx, `
			INSERT INTO rep_given (server_id, giver_id, receiver_id, last_given)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (server_id, giver_id, receiver_id)
			DO UPDATE SET last_given = EXCLUDED.last_given`,
			grant.ServerID, grant.GiverID, grant.ReceiverID, grant.At,
		); err != nil {
			return mapError(err, "rep_given", grant.GiverID)
		}

		sql, args, err := psql.Insert("rep_log").
			Columns("id", "server_id", "giver_id", "receiver_id", "source", "channel_id", "message_id", "amount", "created_at").
			Values(grant.ID, grant.ServerID, grant.GiverID, grant.ReceiverID, string(grant.Source), grant.ChannelID, grant.MessageID, grant.Amount, grant.At).
			ToSql()
		if err != nil {
			return fmt.Errorf("build rep_log insert: %w", err)
		}
		if _, err := q.Exec(ctx, sql, args...); err != nil {
			return mapError(err, "rep_log", grant.ID.String())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return score, nil
}

// UpdateExperience locks the member row, applies fn to it and writes it back.
// When fn fails the transaction is rolled back.
func (s *Store) UpdateExperience(ctx context.Context, key model.MemberKey, fn func(p *model.ExperienceProfile) error) (*model.ExperienceProfile, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("pg_update_experience", float64(time.Since(start).Microseconds())/1000) }()

	var out *model.ExperienceProfile
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q := QuerierFromCtx(ctx, s.pool)
		if _, err := q.Exec(ctx,
			`INSERT INTO xp (server_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			key.ServerID, key.UserID,
		); err != nil {
			return mapError(err, "xp", key.String())
		}

		p := &model.ExperienceProfile{Key: key}
		var last *time.Time
		if err := q.QueryRow(ctx,
			`SELECT xp, level, last_gain, messages FROM xp WHERE server_id = $1 AND user_id = $2 FOR UPDATE`,
			key.ServerID, key.UserID,
		).Scan(&p.XP, &p.Level, &last, &p.Messages); err != nil {
			return mapError(err, "xp", key.String())
		}
		if last != nil {
			p.LastGain = *last
		}

		if err := fn(p); err != nil {
			return err
		}

		sql, args, err := psql.Update("xp").
			Set("xp", p.XP).
			Set("level", p.Level).
			Set("last_gain", p.LastGain).
			Set("messages", p.Messages).
			Where(squirrel.Eq{"server_id": key.ServerID, "user_id": key.UserID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build xp update: %w", err)
		}
		if _, err := q.Exec(ctx, sql, args...); err != nil {
			return mapError(err, "xp", key.String())
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TopReputation returns the dense-ranked reputation leaderboard of serverID.
func (s *Store) TopReputation(ctx context.Context, serverID string, limit int) ([]model.LeaderboardEntry, error) {
	return s.top(ctx, "rep", "score", serverID, limit)
}

// TopExperience returns the dense-ranked experience leaderboard of serverID.
func (s *Store) TopExperience(ctx context.Context, serverID string, limit int) ([]model.LeaderboardEntry, error) {
	return s.top(ctx, "xp", "xp", serverID, limit)
}

func (s *Store) top(ctx context.Context, table, column, serverID string, limit int) ([]model.LeaderboardEntry, error) {
	if limit < 1 {
		return nil, model.ErrInvalidLimit
	}
	levelExpr := "0"
	if table == "xp" {
		levelExpr = "level"
	}
	sql, args, err := psql.
		Select(
			fmt.Sprintf("DENSE_RANK() OVER (ORDER BY %s DESC)", column),
			"user_id",
			column,
			levelExpr,
		).
		From(table).
		Where(squirrel.Eq{"server_id": serverID}).
		OrderBy(column+" DESC", "user_id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s leaderboard: %w", table, err)
	}

	rows, err := QuerierFromCtx(ctx, s.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, table, serverID)
	}
	defer rows.Close()

	out := make([]model.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var e model.LeaderboardEntry
		var rank int64
		if err := rows.Scan(&rank, &e.UserID, &e.Value, &e.Level); err != nil {
			return nil, mapError(err, table, serverID)
		}
		e.Rank = int(rank)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, table, serverID)
	}
	return out, nil
}

// ReputationRank returns the dense reputation rank of key.
func (s *Store) ReputationRank(ctx context.Context, key model.MemberKey) (int, error) {
	return s.rank(ctx, "rep", "score", key)
}

// ExperienceRank returns the dense experience rank of key.
func (s *Store) ExperienceRank(ctx context.Context, key model.MemberKey) (int, error) {
	return s.rank(ctx, "xp", "xp", key)
}

// rank returns the dense rank of key: one plus the number of distinct higher values.
func (s *Store) rank(ctx context.Context, table, column string, key model.MemberKey) (int, error) {
	q := QuerierFromCtx(ctx, s.pool)
	var value int64
	sql, args, err := psql.Select(column).From(table).
		Where(squirrel.Eq{"server_id": key.ServerID, "user_id": key.UserID}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s lookup: %w", table, err)
	}
	if err := q.QueryRow(ctx, sql, args...).Scan(&value); err != nil {
		return 0, mapError(err, table, key.String())
	}

	sql, args, err = psql.Select(fmt.Sprintf("COUNT(DISTINCT %s)", column)).From(table).
		Where(squirrel.Eq{"server_id": key.ServerID}).
		Where(squirrel.Gt{column: value}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s rank: %w", table, err)
	}
	var higher int64
	if err := q.QueryRow(ctx, sql, args...).Scan(&higher); err != nil {
		return 0, mapError(err, table, key.String())
	}
	return int(higher) + 1, nil
}

// ReputationLog returns up to limit grants for serverID, newest first.
func (s *Store) ReputationLog(ctx context.Context, serverID string, limit int) ([]model.ReputationGrant, error) {
	if limit < 1 {
		return nil, model.ErrInvalidLimit
	}
	sql, args, err := psql.
		Select("id", "server_id", "giver_id", "receiver_id", "source", "channel_id", "message_id", "amount", "created_at").
		From("rep_log").
		Where(squirrel.Eq{"server_id": serverID}).
		OrderBy("created_at DESC", "id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build rep_log query: %w", err)
	}
	rows, err := QuerierFromCtx(ctx, s.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "rep_log", serverID)
	}
	defer rows.Close()

	out := make([]model.ReputationGrant, 0, limit)
	for rows.Next() {
		var g model.ReputationGrant
		var source string
		if err := rows.Scan(&g.ID, &g.ServerID, &g.GiverID, &g.ReceiverID, &source, &g.ChannelID, &g.MessageID, &g.Amount, &g.At); err != nil {
			return nil, mapError(err, "rep_log", serverID)
		}
		g.Source = model.GrantSource(source)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "rep_log", serverID)
	}
	return out, nil
}
