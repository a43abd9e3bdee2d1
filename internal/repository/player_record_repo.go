package repository

import (
	"context"

	"number_merge_game/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PlayerRecordRepository struct {
	db *pgxpool.Pool
}

func NewPlayerRecordRepository(db *pgxpool.Pool) *PlayerRecordRepository {
	return &PlayerRecordRepository{db: db}
}

const recordColumns = `user_id, username, wins, losses, best_score, highest_number, money_change, created_at, updated_at`

func scanRecord(row pgx.Row) (*domain.PlayerRecord, error) {
	var r domain.PlayerRecord
	if err := row.Scan(&r.UserID, &r.Username, &r.Wins, &r.Losses, &r.BestScore,
		&r.HighestNumber, &r.MoneyChange, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetMany returns the existing records of userIDs keyed by id.
func (r *PlayerRecordRepository) GetMany(ctx context.Context, userIDs []string) (map[string]*domain.PlayerRecord, error) {
	out := make(map[string]*domain.PlayerRecord, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+recordColumns+` FROM player_records WHERE user_id = ANY($1)`,
		userIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out[rec.UserID] = rec
	}
	return out, rows.Err()
}

// Ensure returns the record of userID, inserting an empty one if needed.
// The stored username is kept when one already exists.
func (r *PlayerRecordRepository) Ensure(ctx context.Context, userID, username string) (*domain.PlayerRecord, error) {
	return scanRecord(r.db.QueryRow(ctx,
		`INSERT INTO player_records (user_id, username) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE
		     SET username = CASE WHEN player_records.username = '' THEN EXCLUDED.username ELSE player_records.username END
		 RETURNING `+recordColumns,
		userID, username,
	))
}

// ApplyWithTx adds d to the stored record inside an existing transaction,
// creating the record first if needed. The row lock taken by the upsert
// orders concurrent deltas for the same player.
func (r *PlayerRecordRepository) ApplyWithTx(ctx context.Context, tx pgx.Tx, d domain.RecordDelta) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO player_records (user_id, username, wins, losses, best_score, highest_number, money_change)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id) DO UPDATE SET
		     username = CASE WHEN EXCLUDED.username = '' THEN player_records.username ELSE EXCLUDED.username END,
		     wins = player_records.wins + EXCLUDED.wins,
		     losses = player_records.losses + EXCLUDED.losses,
		     best_score = GREATEST(player_records.best_score, EXCLUDED.best_score),
		     highest_number = GREATEST(player_records.highest_number, EXCLUDED.highest_number),
		     money_change = player_records.money_change + EXCLUDED.money_change,
		     updated_at = NOW()`,
		d.UserID, d.Username, d.Wins, d.Losses, d.BestScore, d.HighestNumber, d.MoneyChange,
	)
	return err
}

// Top returns the best limit records by metric, ties broken by user id.
func (r *PlayerRecordRepository) Top(ctx context.Context, metric domain.LeaderboardMetric, limit int) ([]*domain.PlayerRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+recordColumns+` FROM player_records
		 ORDER BY `+metric.Column()+` DESC, user_id ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.PlayerRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
