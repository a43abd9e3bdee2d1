package service

import (
	"context"
	"time"

	"number_merge_game/internal/domain"
)

// Ledger moves currency in and out of player accounts. Amounts are always
// positive; the sign is implied by the method.
type Ledger interface {
	Debit(ctx context.Context, userID string, amount int64, txType string, meta map[string]any) (int64, error)
	Credit(ctx context.Context, userID string, amount int64, txType string, meta map[string]any) (int64, error)
}

// Store persists sessions and player records.
type Store interface {
	// LoadSession returns the session of guildID, creating a blank one on
	// first use.
	LoadSession(ctx context.Context, guildID string, defaultGridSize int) (*domain.Session, error)
	// Commit writes the session and applies the record deltas atomically.
	// It fails with ErrVersionConflict when the stored version differs from
	// s.Version and bumps s.Version on success.
	Commit(ctx context.Context, s *domain.Session, records []domain.RecordDelta) error
	// LoadRecords returns existing records keyed by user id.
	LoadRecords(ctx context.Context, userIDs []string) (map[string]*domain.PlayerRecord, error)
	// EnsureRecord returns the record of userID, creating an empty one.
	EnsureRecord(ctx context.Context, userID, username string) (*domain.PlayerRecord, error)
	TopRecords(ctx context.Context, metric domain.LeaderboardMetric, limit int) ([]*domain.PlayerRecord, error)
	// BestAcrossGuilds returns the session with the highest best score, or
	// nil when no group has played yet.
	BestAcrossGuilds(ctx context.Context) (*domain.BestRecord, error)
	// PendingPrompts lists guilds whose prompt deadline is at or before now.
	PendingPrompts(ctx context.Context, now time.Time) ([]string, error)
}

// Publisher delivers render requests to whatever presents the board.
type Publisher interface {
	Publish(ctx context.Context, r RenderRequest)
}

// Auditor records money-relevant events.
type Auditor interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, RenderRequest) {}

type nopAuditor struct{}

func (nopAuditor) Log(context.Context, *domain.AuditLog) {}
