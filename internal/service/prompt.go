package service

import (
	"context"
	"strings"
	"time"

	"number_merge_game/internal/domain"
)

type Decision string

const (
	DecisionContinue  Decision = "continue"
	DecisionStop      Decision = "stop"
	DecisionRetry     Decision = "retry"
	DecisionExhausted Decision = "exhausted"
	DecisionTimeout   Decision = "timeout"
)

// ParseDecision maps an answer to continue or stop. Anything else yields "".
func ParseDecision(text string) Decision {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "继续游戏", "continue", "c":
		return DecisionContinue
	case "到此为止", "stop", "s":
		return DecisionStop
	}
	return ""
}

func (s *SessionService) decideLocked(ctx context.Context, sess *domain.Session, userID, choice string) (*Outcome, error) {
	switch ParseDecision(choice) {
	case DecisionContinue:
		sess.IsKeepPlaying = true
		sess.Pending = nil
		if err := s.commit(ctx, sess); err != nil {
			return nil, err
		}
		out := s.outcome(sess, "continue", nil)
		out.Decision = DecisionContinue
		return out, nil

	case DecisionStop:
		return s.stopLocked(ctx, sess, DecisionStop)
	}

	sess.Pending.Attempts++
	if sess.Pending.Attempts >= sess.Pending.MaxAttempts {
		return s.stopLocked(ctx, sess, DecisionExhausted)
	}
	if err := s.commit(ctx, sess); err != nil {
		return nil, err
	}
	p := *sess.Pending
	return &Outcome{Session: sess.Clone(), Prompt: &p, Decision: DecisionRetry}, nil
}

// stopLocked ends a won game. The win was already paid, so the seats go away
// without any refund.
func (s *SessionService) stopLocked(ctx context.Context, sess *domain.Session, d Decision) (*Outcome, error) {
	decider := ""
	if sess.Pending != nil {
		decider = sess.Pending.UserID
	}
	sess.Reset()
	if err := s.commit(ctx, sess); err != nil {
		return nil, err
	}
	s.auditor.Log(ctx, &domain.AuditLog{
		UserID: decider, GuildID: sess.GuildID,
		Action: domain.AuditActionGameStopped, Category: domain.AuditCategoryGame,
		Details: map[string]any{"decision": string(d)},
	})
	out := s.outcome(sess, "stop", nil)
	out.Decision = d
	return out, nil
}

// expireLocked resolves an overdue prompt. An unanswered move prompt is
// dropped; an unanswered continue question stops the game.
func (s *SessionService) expireLocked(ctx context.Context, sess *domain.Session) (*Outcome, error) {
	kind := sess.Pending.Kind
	PromptsExpired.WithLabelValues(string(kind)).Inc()
	if kind == domain.PromptContinueDecision {
		return s.stopLocked(ctx, sess, DecisionTimeout)
	}
	sess.Pending = nil
	if err := s.commit(ctx, sess); err != nil {
		return nil, err
	}
	return s.outcome(sess, "prompt_expired", nil), nil
}

// ExpirePrompts resolves every prompt whose deadline has passed and returns
// how many it resolved.
func (s *SessionService) ExpirePrompts(ctx context.Context) (int, error) {
	guilds, err := s.store.PendingPrompts(ctx, s.now())
	if err != nil {
		return 0, external("list pending prompts", err)
	}
	n := 0
	for _, guildID := range guilds {
		_, expired, err := s.runLocked(ctx, "expire", guildID, func(context.Context, *domain.Session) (*Outcome, error) {
			return nil, nil
		})
		if err != nil {
			s.log.Warn("failed to expire prompt", "guild_id", guildID, "err", err)
			continue
		}
		if expired != nil {
			n++
		}
	}
	return n, nil
}

// RunSweeper calls ExpirePrompts every interval until ctx is done. A
// non-positive interval disables the sweeper.
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.log.Warn("prompt sweeper disabled", "interval", interval)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ExpirePrompts(ctx)
			if err != nil {
				s.log.Error("prompt sweep failed", "err", err)
				continue
			}
			if n > 0 {
				s.log.Info("expired prompts resolved", "count", n)
			}
		}
	}
}
