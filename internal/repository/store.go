package repository

import (
	"context"
	"time"

	"number_merge_game/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore combines the session and record repositories behind the
// store the session service needs.
type PostgresStore struct {
	db       *pgxpool.Pool
	sessions *SessionRepository
	records  *PlayerRecordRepository
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		db:       db,
		sessions: NewSessionRepository(db),
		records:  NewPlayerRecordRepository(db),
	}
}

func (s *PostgresStore) LoadSession(ctx context.Context, guildID string, defaultGridSize int) (*domain.Session, error) {
	return s.sessions.GetOrCreate(ctx, guildID, defaultGridSize)
}

// Commit saves the session and applies the record deltas in one transaction.
func (s *PostgresStore) Commit(ctx context.Context, sess *domain.Session, records []domain.RecordDelta) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.sessions.UpdateWithTx(ctx, tx, sess); err != nil {
			return err
		}
		for _, d := range records {
			if err := s.records.ApplyWithTx(ctx, tx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	sess.Version++
	return nil
}

func (s *PostgresStore) LoadRecords(ctx context.Context, userIDs []string) (map[string]*domain.PlayerRecord, error) {
	return s.records.GetMany(ctx, userIDs)
}

func (s *PostgresStore) EnsureRecord(ctx context.Context, userID, username string) (*domain.PlayerRecord, error) {
	return s.records.Ensure(ctx, userID, username)
}

func (s *PostgresStore) TopRecords(ctx context.Context, metric domain.LeaderboardMetric, limit int) ([]*domain.PlayerRecord, error) {
	return s.records.Top(ctx, metric, limit)
}

func (s *PostgresStore) BestAcrossGuilds(ctx context.Context) (*domain.BestRecord, error) {
	return s.sessions.BestAcrossGuilds(ctx)
}

func (s *PostgresStore) PendingPrompts(ctx context.Context, now time.Time) ([]string, error) {
	return s.sessions.PendingPrompts(ctx, now)
}
