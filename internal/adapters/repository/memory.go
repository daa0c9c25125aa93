// Package repository holds the in-memory persistence adapter: member profiles,
// per-server treap leaderboards and the reputation log.
package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/zen/internal/domain/ledger"
	"github.com/okian/zen/internal/domain/model"
	"github.com/okian/zen/pkg/metrics"
)

var (
	_ ledger.Store = (*MemoryStore)(nil)
	_ ledger.Board = (*MemoryStore)(nil)
)

// MemoryStore implements ledger.Store and ledger.Board in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	rep       map[model.MemberKey]*model.ReputationProfile
	xp        map[model.MemberKey]*model.ExperienceProfile
	repBoards map[string]*board
	xpBoards  map[string]*board
	log       map[string]*grantRing

	logRetention          int
	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore constructs an empty store and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		rep:                   make(map[model.MemberKey]*model.ReputationProfile),
		xp:                    make(map[model.MemberKey]*model.ExperienceProfile),
		repBoards:             make(map[string]*board),
		xpBoards:              make(map[string]*board),
		log:                   make(map[string]*grantRing),
		logRetention:          10_000,
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background metrics updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// ReputationProfile returns a copy of the profile, or a zero profile for an unknown member.
func (s *MemoryStore) ReputationProfile(_ context.Context, key model.MemberKey) (*model.ReputationProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.rep[key]; ok {
		return p.Clone(), nil
	}
	return &model.ReputationProfile{Key: key, LastGivenTo: map[string]time.Time{}}, nil
}

// ExperienceProfile returns a copy of the profile, or a zero profile for an unknown member.
func (s *MemoryStore) ExperienceProfile(_ context.Context, key model.MemberKey) (*model.ExperienceProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.xp[key]; ok {
		return p.Clone(), nil
	}
	return &model.ExperienceProfile{Key: key}, nil
}

// ApplyReputation adds the grant to the receiver, stamps the giver and logs it.
func (s *MemoryStore) ApplyReputation(_ context.Context, grant *model.ReputationGrant) (int64, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("apply_reputation", float64(time.Since(start).Microseconds())/1000) }()

	giverKey := model.MemberKey{ServerID: grant.ServerID, UserID: grant.GiverID}
	receiverKey := model.MemberKey{ServerID: grant.ServerID, UserID: grant.ReceiverID}

	s.mu.Lock()
	defer s.mu.Unlock()

	receiver := s.repProfileLocked(receiverKey)
	receiver.Score += grant.Amount
	receiver.LastReceived = grant.At

	giver := s.repProfileLocked(giverKey)
	giver.LastGivenTo[grant.ReceiverID] = grant.At

	s.boardLocked(s.repBoards, grant.ServerID).set(grant.ReceiverID, receiver.Score)

	ring, ok := s.log[grant.ServerID]
	if !ok {
		ring = &grantRing{}
		s.log[grant.ServerID] = ring
	}
	ring.push(*grant, s.logRetention)

	return receiver.Score, nil
}

// UpdateExperience applies fn to a copy of the profile and stores it when fn succeeds.
func (s *MemoryStore) UpdateExperience(_ context.Context, key model.MemberKey, fn func(p *model.ExperienceProfile) error) (*model.ExperienceProfile, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("update_experience", float64(time.Since(start).Microseconds())/1000) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.xp[key]
	if !ok {
		current = &model.ExperienceProfile{Key: key}
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.xp[key] = next
	s.boardLocked(s.xpBoards, key.ServerID).set(key.UserID, next.XP)
	return next.Clone(), nil
}

// TopReputation returns the dense-ranked reputation leaderboard of serverID.
func (s *MemoryStore) TopReputation(_ context.Context, serverID string, limit int) ([]model.LeaderboardEntry, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.repBoards[serverID]
	if !ok {
		return []model.LeaderboardEntry{}, nil
	}
	return b.top(limit), nil
}

// TopExperience returns the dense-ranked experience leaderboard of serverID.
func (s *MemoryStore) TopExperience(_ context.Context, serverID string, limit int) ([]model.LeaderboardEntry, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.xpBoards[serverID]
	if !ok {
		return []model.LeaderboardEntry{}, nil
	}
	out := b.top(limit)
	for i := range out {
		if p, ok := s.xp[model.MemberKey{ServerID: serverID, UserID: out[i].UserID}]; ok {
			out[i].Level = p.Level
		}
	}
	return out, nil
}

// ReputationRank returns the dense reputation rank of key.
func (s *MemoryStore) ReputationRank(_ context.Context, key model.MemberKey) (int, error) {
	return s.rank(s.repBoards, key)
}

// ExperienceRank returns the dense experience rank of key.
func (s *MemoryStore) ExperienceRank(_ context.Context, key model.MemberKey) (int, error) {
	return s.rank(s.xpBoards, key)
}

func (s *MemoryStore) rank(boards map[string]*board, key model.MemberKey) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := boards[key.ServerID]
	if !ok {
		return 0, ErrNotFound
	}
	r, _, ok := b.rank(key.UserID)
	if !ok {
		return 0, ErrNotFound
	}
	return r, nil
}

// ReputationLog returns up to limit grants for serverID, newest first.
func (s *MemoryStore) ReputationLog(_ context.Context, serverID string, limit int) ([]model.ReputationGrant, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ring, ok := s.log[serverID]
	if !ok {
		return []model.ReputationGrant{}, nil
	}
	return ring.newest(limit), nil
}

// Counts returns the number of reputation and experience profiles.
func (s *MemoryStore) Counts() (rep, xp int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rep), len(s.xp)
}

func (s *MemoryStore) repProfileLocked(key model.MemberKey) *model.ReputationProfile {
	p, ok := s.rep[key]
	if !ok {
		p = &model.ReputationProfile{Key: key, LastGivenTo: map[string]time.Time{}}
		s.rep[key] = p
	}
	return p
}

func (s *MemoryStore) boardLocked(boards map[string]*board, serverID string) *board {
	b, ok := boards[serverID]
	if !ok {
		b = newBoard()
		boards[serverID] = b
	}
	return b
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				rep, xp := s.Counts()
				metrics.UpdateTrackedMembers(string(model.LedgerReputation), rep)
				metrics.UpdateTrackedMembers(string(model.LedgerExperience), xp)
			}
		}
	}()
}
