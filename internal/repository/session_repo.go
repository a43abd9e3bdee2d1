package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"number_merge_game/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrVersionConflict = errors.New("session was modified concurrently")

// SessionRepository stores one row per group plus its seats.
type SessionRepository struct {
	db *pgxpool.Pool
}

func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// GetOrCreate returns the group's session, inserting a blank row first.
func (r *SessionRepository) GetOrCreate(ctx context.Context, guildID string, gridSize int) (*domain.Session, error) {
	if _, err := r.db.Exec(ctx,
		`INSERT INTO merge_sessions (guild_id, grid_size) VALUES ($1, $2)
		 ON CONFLICT (guild_id) DO NOTHING`,
		guildID, gridSize,
	); err != nil {
		return nil, err
	}
	return r.Get(ctx, guildID)
}

func (r *SessionRepository) Get(ctx context.Context, guildID string) (*domain.Session, error) {
	var (
		s                               domain.Session
		gridJSON, bestJSON, pendingJSON []byte
	)
	err := r.db.QueryRow(ctx,
		`SELECT guild_id, status, grid, grid_size, score, best, highest_number, best_players,
		        is_won, is_keep_playing, last_mover, pending, version, updated_at
		 FROM merge_sessions
		 WHERE guild_id = $1`,
		guildID,
	).Scan(
		&s.GuildID, &s.Status, &gridJSON, &s.GridSize, &s.Score, &s.Best, &s.HighestNumber, &bestJSON,
		&s.IsWon, &s.IsKeepPlaying, &s.LastMover, &pendingJSON, &s.Version, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(gridJSON) > 0 {
		if err := json.Unmarshal(gridJSON, &s.Grid); err != nil {
			return nil, fmt.Errorf("decode grid of %s: %w", guildID, err)
		}
	}
	if len(bestJSON) > 0 {
		if err := json.Unmarshal(bestJSON, &s.BestPlayers); err != nil {
			return nil, fmt.Errorf("decode best players of %s: %w", guildID, err)
		}
	}
	if len(pendingJSON) > 0 {
		var p domain.Prompt
		if err := json.Unmarshal(pendingJSON, &p); err != nil {
			return nil, fmt.Errorf("decode prompt of %s: %w", guildID, err)
		}
		s.Pending = &p
	}

	rows, err := r.db.Query(ctx,
		`SELECT user_id, display_name, wager FROM merge_seats
		 WHERE guild_id = $1
		 ORDER BY seat_no`,
		guildID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.SeatedPlayer
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.Wager); err != nil {
			return nil, err
		}
		s.Players = append(s.Players, p)
	}
	return &s, rows.Err()
}

// UpdateWithTx writes the session row if its version still matches and
// replaces the seat list.
func (r *SessionRepository) UpdateWithTx(ctx context.Context, tx pgx.Tx, s *domain.Session) error {
	var gridJSON, pendingJSON []byte
	var deadline *time.Time
	var err error
	if s.Grid != nil {
		if gridJSON, err = json.Marshal(s.Grid); err != nil {
			return err
		}
	}
	if s.Pending != nil {
		if pendingJSON, err = json.Marshal(s.Pending); err != nil {
			return err
		}
		if !s.Pending.Deadline.IsZero() {
			d := s.Pending.Deadline
			deadline = &d
		}
	}
	bestPlayers := s.BestPlayers
	if bestPlayers == nil {
		bestPlayers = []domain.BestPlayer{}
	}
	bestJSON, err := json.Marshal(bestPlayers)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE merge_sessions SET
		    status = $2, grid = $3, grid_size = $4, score = $5, best = $6, highest_number = $7,
		    best_players = $8, is_won = $9, is_keep_playing = $10, last_mover = $11,
		    pending = $12, pending_deadline = $13, version = version + 1, updated_at = NOW()
		 WHERE guild_id = $1 AND version = $14`,
		s.GuildID, s.Status, gridJSON, s.GridSize, s.Score, s.Best, s.HighestNumber,
		bestJSON, s.IsWon, s.IsKeepPlaying, s.LastMover,
		pendingJSON, deadline, s.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s at version %d", ErrVersionConflict, s.GuildID, s.Version)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM merge_seats WHERE guild_id = $1`, s.GuildID); err != nil {
		return err
	}
	for i, p := range s.Players {
		if _, err := tx.Exec(ctx,
			`INSERT INTO merge_seats (guild_id, user_id, display_name, wager, seat_no)
			 VALUES ($1, $2, $3, $4, $5)`,
			s.GuildID, p.UserID, p.DisplayName, p.Wager, i,
		); err != nil {
			return err
		}
	}
	return nil
}

// BestAcrossGuilds returns the group with the highest best score.
func (r *SessionRepository) BestAcrossGuilds(ctx context.Context) (*domain.BestRecord, error) {
	var (
		rec      domain.BestRecord
		bestJSON []byte
	)
	err := r.db.QueryRow(ctx,
		`SELECT guild_id, best, highest_number, best_players
		 FROM merge_sessions
		 ORDER BY best DESC, updated_at ASC
		 LIMIT 1`,
	).Scan(&rec.GuildID, &rec.Best, &rec.HighestNumber, &bestJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bestJSON) > 0 {
		if err := json.Unmarshal(bestJSON, &rec.BestPlayers); err != nil {
			return nil, fmt.Errorf("decode best players of %s: %w", rec.GuildID, err)
		}
	}
	return &rec, nil
}

// PendingPrompts lists guilds with a prompt due at or before now.
func (r *SessionRepository) PendingPrompts(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT guild_id FROM merge_sessions
		 WHERE pending_deadline IS NOT NULL AND pending_deadline <= $1
		 ORDER BY pending_deadline`,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
