package domain

import "time"

// AuditLog represents an audit log entry for tracking money-relevant actions
type AuditLog struct {
	ID        int64          `db:"id" json:"id"`
	UserID    string         `db:"user_id" json:"user_id"`
	GuildID   string         `db:"guild_id" json:"guild_id,omitempty"`
	Action    string         `db:"action" json:"action"`
	Category  string         `db:"category" json:"category"`
	Details   map[string]any `db:"details" json:"details"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// Audit action categories
const (
	AuditCategoryAuth    = "auth"
	AuditCategoryGame    = "game"
	AuditCategoryBalance = "balance"
	AuditCategoryAdmin   = "admin"
)

// Audit actions
const (
	AuditActionLogin = "login"

	AuditActionSeatJoin    = "seat_join"
	AuditActionSeatLeave   = "seat_leave"
	AuditActionGameStart   = "game_start"
	AuditActionGameReset   = "game_reset"
	AuditActionGameWin     = "game_win"
	AuditActionGameLose    = "game_lose"
	AuditActionGameBonus   = "game_high_bonus"
	AuditActionGameStopped = "game_stopped"

	AuditActionCreditFailed     = "credit_failed"
	AuditActionCompensateFailed = "compensation_failed"
	AuditActionAdminCredit      = "admin_credit"
)
