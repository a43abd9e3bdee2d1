package service

import (
	"context"

	"number_merge_game/internal/domain"
	"number_merge_game/internal/logger"
	"number_merge_game/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditService handles audit logging
type AuditService struct {
	repo *repository.AuditRepository
}

// NewAuditService creates a new audit service
func NewAuditService(db *pgxpool.Pool) *AuditService {
	return &AuditService{
		repo: repository.NewAuditRepository(db),
	}
}

// Log writes an entry. Failures are logged and swallowed so that auditing
// never fails a command.
func (s *AuditService) Log(ctx context.Context, entry *domain.AuditLog) {
	if err := s.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		logger.Error("failed to create audit log", "err", err, "action", entry.Action, "user_id", entry.UserID)
	}
}

// LogLogin records a successful WebApp authentication.
func (s *AuditService) LogLogin(ctx context.Context, userID string, details map[string]any) {
	s.Log(ctx, &domain.AuditLog{
		UserID:   userID,
		Action:   domain.AuditActionLogin,
		Category: domain.AuditCategoryAuth,
		Details:  details,
	})
}

// FailedCredits lists the most recent credits that did not reach the ledger.
func (s *AuditService) FailedCredits(ctx context.Context, limit int) ([]*domain.AuditLog, error) {
	return s.repo.GetByAction(ctx, domain.AuditActionCreditFailed, limit)
}

// ForUser returns the latest entries of one user.
func (s *AuditService) ForUser(ctx context.Context, userID string, limit int) ([]*domain.AuditLog, error) {
	return s.repo.GetByUserID(ctx, userID, limit)
}
