package domain

import "time"

// Transaction types written to the ledger
const (
	TxTypeWager       = "merge_wager"
	TxTypeRefund      = "merge_refund"
	TxTypeWinPayout   = "merge_win"
	TxTypeHighBonus   = "merge_high_bonus"
	TxTypeCompensate  = "merge_compensation"
	TxTypeAdminCredit = "admin_credit"
)

type Transaction struct {
	ID        int64          `db:"id" json:"id"`
	UserID    string         `db:"user_id" json:"user_id"`
	Type      string         `db:"type" json:"type"`
	Amount    int64          `db:"amount" json:"amount"`
	Meta      map[string]any `db:"meta" json:"meta,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

type Account struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Balance   int64     `db:"balance" json:"balance"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
