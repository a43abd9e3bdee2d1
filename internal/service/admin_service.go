package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"number_merge_game/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AdminService provides operator statistics
type AdminService struct {
	db *pgxpool.Pool
}

// NewAdminService creates a new admin service
func NewAdminService(db *pgxpool.Pool) *AdminService {
	return &AdminService{db: db}
}

// Stats represents platform statistics
type Stats struct {
	TotalPlayers       int64 `json:"total_players"`
	ActivePlayersToday int64 `json:"active_players_today"`
	SessionsWaiting    int64 `json:"sessions_waiting"`
	SessionsInProgress int64 `json:"sessions_in_progress"`
	PendingPrompts     int64 `json:"pending_prompts"`
	EscrowHeld         int64 `json:"escrow_held"`   // wagers sitting on seats right now
	TotalWagered       int64 `json:"total_wagered"` // All-time wagered
	WageredToday       int64 `json:"wagered_today"`
	TotalPaidOut       int64 `json:"total_paid_out"` // wins plus high-tile bonuses
	TotalRefunded      int64 `json:"total_refunded"`
	FailedCredits      int64 `json:"failed_credits"`
}

// GetStats returns platform statistics
func (s *AdminService) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	today := time.Now().Truncate(24 * time.Hour)

	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM player_records`).Scan(&stats.TotalPlayers); err != nil {
		return nil, err
	}

	// Players whose record changed today
	_ = s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM player_records WHERE updated_at >= $1
	`, today).Scan(&stats.ActivePlayersToday)

	_ = s.db.QueryRow(ctx, `
		SELECT
		    COUNT(*) FILTER (WHERE status = $1 AND EXISTS (SELECT 1 FROM merge_seats ms WHERE ms.guild_id = merge_sessions.guild_id)),
		    COUNT(*) FILTER (WHERE status = $2),
		    COUNT(*) FILTER (WHERE pending IS NOT NULL)
		FROM merge_sessions
	`, domain.SessionNotStarted, domain.SessionInProgress).Scan(&stats.SessionsWaiting, &stats.SessionsInProgress, &stats.PendingPrompts)

	_ = s.db.QueryRow(ctx, `SELECT COALESCE(SUM(wager), 0) FROM merge_seats`).Scan(&stats.EscrowHeld)

	// Debits are stored as negative amounts
	_ = s.db.QueryRow(ctx, `
		SELECT
		    COALESCE(SUM(-amount) FILTER (WHERE type = $1), 0),
		    COALESCE(SUM(-amount) FILTER (WHERE type = $1 AND created_at >= $2), 0),
		    COALESCE(SUM(amount) FILTER (WHERE type IN ($3, $4)), 0),
		    COALESCE(SUM(amount) FILTER (WHERE type = $5), 0)
		FROM transactions
	`, domain.TxTypeWager, today, domain.TxTypeWinPayout, domain.TxTypeHighBonus, domain.TxTypeRefund,
	).Scan(&stats.TotalWagered, &stats.WageredToday, &stats.TotalPaidOut, &stats.TotalRefunded)

	_ = s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM audit_logs WHERE action = $1
	`, domain.AuditActionCreditFailed).Scan(&stats.FailedCredits)

	return stats, nil
}

// Format renders stats as the plain-text block printed by the CLI.
func (st *Stats) Format() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Players:            %d (%d active today)\n", st.TotalPlayers, st.ActivePlayersToday)
	fmt.Fprintf(&sb, "Sessions waiting:   %d\n", st.SessionsWaiting)
	fmt.Fprintf(&sb, "Sessions running:   %d (%d waiting on a prompt)\n", st.SessionsInProgress, st.PendingPrompts)
	fmt.Fprintf(&sb, "Escrow held:        %d\n", st.EscrowHeld)
	fmt.Fprintf(&sb, "Wagered:            %d (%d today)\n", st.TotalWagered, st.WageredToday)
	fmt.Fprintf(&sb, "Paid out:           %d\n", st.TotalPaidOut)
	fmt.Fprintf(&sb, "Refunded:           %d\n", st.TotalRefunded)
	fmt.Fprintf(&sb, "Failed credits:     %d", st.FailedCredits)
	return sb.String()
}

// PlayerInfo joins a player's record with their wallet.
type PlayerInfo struct {
	*domain.PlayerRecord
	Balance       int64 `json:"balance"`
	WageredGroups int64 `json:"wagered_groups"`
}

// GetPlayer looks a player up by user id or, failing that, by username.
func (s *AdminService) GetPlayer(ctx context.Context, identifier string) (*PlayerInfo, error) {
	rec := &domain.PlayerRecord{}
	err := s.db.QueryRow(ctx, `
		SELECT user_id, username, wins, losses, best_score, highest_number, money_change, created_at, updated_at
		FROM player_records
		WHERE user_id = $1 OR LOWER(username) = LOWER($1)
		ORDER BY (user_id = $1) DESC
		LIMIT 1
	`, strings.TrimPrefix(identifier, "@")).Scan(&rec.UserID, &rec.Username, &rec.Wins, &rec.Losses,
		&rec.BestScore, &rec.HighestNumber, &rec.MoneyChange, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	info := &PlayerInfo{PlayerRecord: rec}
	_ = s.db.QueryRow(ctx, `SELECT COALESCE((SELECT balance FROM accounts WHERE user_id = $1), 0)`, rec.UserID).Scan(&info.Balance)
	_ = s.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT meta->>'guild_id') FROM transactions WHERE user_id = $1 AND type = $2
	`, rec.UserID, domain.TxTypeWager).Scan(&info.WageredGroups)
	return info, nil
}
