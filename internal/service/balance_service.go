package service

import (
	"context"
	"errors"

	"number_merge_game/internal/domain"
	"number_merge_game/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BalanceService is the PostgreSQL ledger: one accounts row per player and
// one transactions row per movement.
type BalanceService struct {
	db              *pgxpool.Pool
	transactionRepo *repository.TransactionRepository
}

// NewBalanceService creates a new balance service
func NewBalanceService(db *pgxpool.Pool) *BalanceService {
	return &BalanceService{
		db:              db,
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

// GetBalance returns the current balance; players without an account have 0.
func (s *BalanceService) GetBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

// Debit takes amount from the player's balance (wagers, compensations).
func (s *BalanceService) Debit(ctx context.Context, userID string, amount int64, txType string, meta map[string]any) (newBalance int64, err error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock and check balance
	var balance int64
	err = tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE user_id = $1 FOR UPDATE`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrInsufficientFunds
		}
		return 0, err
	}
	if balance < amount {
		return 0, ErrInsufficientFunds
	}

	err = tx.QueryRow(ctx,
		`UPDATE accounts SET balance = balance - $1, updated_at = NOW() WHERE user_id = $2 RETURNING balance`,
		amount, userID,
	).Scan(&newBalance)
	if err != nil {
		return 0, err
	}

	if err = s.transactionRepo.CreateWithTx(ctx, tx, &domain.Transaction{
		UserID: userID,
		Type:   txType,
		Amount: -amount,
		Meta:   meta,
	}); err != nil {
		return 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Credit adds amount to the player's balance, opening the account if needed.
func (s *BalanceService) Credit(ctx context.Context, userID string, amount int64, txType string, meta map[string]any) (newBalance int64, err error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO accounts (user_id, balance) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE
		     SET balance = accounts.balance + EXCLUDED.balance, updated_at = NOW()
		 RETURNING balance`,
		userID, amount,
	).Scan(&newBalance)
	if err != nil {
		return 0, err
	}

	if err = s.transactionRepo.CreateWithTx(ctx, tx, &domain.Transaction{
		UserID: userID,
		Type:   txType,
		Amount: amount,
		Meta:   meta,
	}); err != nil {
		return 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// GetTransactionHistory returns user's transaction history
func (s *BalanceService) GetTransactionHistory(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	return s.transactionRepo.GetByUserID(ctx, userID, limit)
}

// GetRound returns the credits booked by one settlement.
func (s *BalanceService) GetRound(ctx context.Context, roundID string) ([]*domain.Transaction, error) {
	return s.transactionRepo.GetByRound(ctx, roundID)
}
