package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"number_merge_game/internal/domain"
)

// MemoryStore keeps sessions and records in process. It backs tests and
// single-node runs without a database, with the same versioning rules as
// PostgresStore.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	records  map[string]*domain.PlayerRecord

	// FailCommit, when set, is returned by the next Commit and then cleared.
	FailCommit error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*domain.Session),
		records:  make(map[string]*domain.PlayerRecord),
	}
}

func (m *MemoryStore) LoadSession(_ context.Context, guildID string, defaultGridSize int) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[guildID]
	if !ok {
		s = domain.NewSession(guildID, defaultGridSize)
		s.UpdatedAt = time.Now()
		m.sessions[guildID] = s
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Commit(_ context.Context, s *domain.Session, records []domain.RecordDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.FailCommit; err != nil {
		m.FailCommit = nil
		return err
	}
	cur, ok := m.sessions[s.GuildID]
	if !ok {
		return errors.New("session not found")
	}
	if cur.Version != s.Version {
		return fmt.Errorf("%w: %s at version %d", ErrVersionConflict, s.GuildID, s.Version)
	}

	saved := s.Clone()
	saved.Version++
	saved.UpdatedAt = time.Now()
	m.sessions[s.GuildID] = saved
	for _, d := range records {
		rec, ok := m.records[d.UserID]
		if !ok {
			rec = &domain.PlayerRecord{UserID: d.UserID, CreatedAt: saved.UpdatedAt}
			m.records[d.UserID] = rec
		}
		d.Apply(rec)
		rec.UpdatedAt = saved.UpdatedAt
	}
	s.Version++
	return nil
}

func (m *MemoryStore) LoadRecords(_ context.Context, userIDs []string) (map[string]*domain.PlayerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]*domain.PlayerRecord, len(userIDs))
	for _, id := range userIDs {
		if r, ok := m.records[id]; ok {
			cp := *r
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *MemoryStore) EnsureRecord(_ context.Context, userID, username string) (*domain.PlayerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[userID]
	if !ok {
		now := time.Now()
		r = &domain.PlayerRecord{UserID: userID, Username: username, CreatedAt: now, UpdatedAt: now}
		m.records[userID] = r
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) TopRecords(_ context.Context, metric domain.LeaderboardMetric, limit int) ([]*domain.PlayerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.PlayerRecord, 0, len(m.records))
	for _, r := range m.records {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		vi, vj := metric.Value(out[i]), metric.Value(out[j])
		if vi != vj {
			return vi > vj
		}
		return out[i].UserID < out[j].UserID
	})
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) BestAcrossGuilds(_ context.Context) (*domain.BestRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *domain.Session
	for _, s := range m.sessions {
		if best == nil || s.Best > best.Best || (s.Best == best.Best && s.GuildID < best.GuildID) {
			best = s
		}
	}
	if best == nil {
		return nil, nil
	}
	return &domain.BestRecord{
		GuildID:       best.GuildID,
		Best:          best.Best,
		HighestNumber: best.HighestNumber,
		BestPlayers:   append([]domain.BestPlayer(nil), best.BestPlayers...),
	}, nil
}

func (m *MemoryStore) PendingPrompts(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, s := range m.sessions {
		if s.Pending.Expired(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Session returns a copy of the stored session, for assertions.
func (m *MemoryStore) Session(guildID string) *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[guildID].Clone()
}

// Record returns a copy of the stored record or nil.
func (m *MemoryStore) Record(userID string) *domain.PlayerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[userID]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

// PutSession replaces a stored session, for fixtures.
func (m *MemoryStore) PutSession(s *domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.GuildID] = s.Clone()
}
