package service

import (
	"context"
	"math"

	"number_merge_game/internal/domain"
	"number_merge_game/internal/game"

	"github.com/google/uuid"
)

type SettlementPath string

const (
	SettlementLoss      SettlementPath = "loss"
	SettlementHighBonus SettlementPath = "high_bonus"
	SettlementWin       SettlementPath = "win"
)

// Payout is what one seat received and what was booked to its record.
type Payout struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Wager    int64  `json:"wager"`
	Credited int64  `json:"credited"`
	Recorded int64  `json:"recorded"`
}

type SettlementResult struct {
	Path         SettlementPath `json:"path"`
	RoundID      string         `json:"round_id"`
	Highest      int            `json:"highest"`
	Payouts      []Payout       `json:"payouts,omitempty"`
	Reset        bool           `json:"reset"`
	PromptOpened bool           `json:"prompt_opened"`
}

type ledgerMove struct {
	userID string
	amount int64
	txType string
}

type settlementPlan struct {
	result     SettlementResult
	credits    []ledgerMove
	overlay    Overlay
	finalScore int64
}

// money converts a fractional payout to whole units, rounding down.
func money(v float64) int64 {
	return int64(math.Floor(v))
}

// settle evaluates the end-of-move rules in fixed priority and mutates the
// session and records accordingly. Credits are only planned here; they are
// paid once the session has been saved.
func (s *SessionService) settle(sess *domain.Session, recs *recordSet, lastMover string, highest int, terminal bool) *settlementPlan {
	plan := &settlementPlan{finalScore: sess.Score}
	plan.result.Highest = highest

	switch {
	case terminal && !sess.IsKeepPlaying && !sess.IsWon:
		plan.result.Path = SettlementLoss
		plan.overlay = OverlayLost
		if sess.IsClassic() {
			for _, p := range sess.Players {
				rec := recs.get(p.UserID)
				rec.Losses++
				rec.MoneyChange -= p.Wager
				plan.result.Payouts = append(plan.result.Payouts, Payout{UserID: p.UserID, Name: p.DisplayName, Wager: p.Wager, Recorded: -p.Wager})
			}
		}
		sess.Reset()
		plan.result.Reset = true

	case terminal && sess.IsKeepPlaying:
		plan.result.Path = SettlementHighBonus
		plan.overlay = OverlayLost
		if s.rules.RewardHighNumbers {
			factor := float64(highest)/game.WinningValue - 1
			for _, p := range sess.Players {
				var credited, recorded int64
				if s.rules.IncrementalHighNumberReward {
					credited = money(float64(p.Wager) * s.rules.WinMultiplier * factor)
					recorded = credited
				} else {
					credited = p.Wager
					recorded = money(float64(p.Wager) * factor)
					if s.rules.ReconcileFlatBonus {
						recorded = credited
					}
				}
				recs.get(p.UserID).MoneyChange += recorded
				plan.credits = append(plan.credits, ledgerMove{userID: p.UserID, amount: credited, txType: domain.TxTypeHighBonus})
				plan.result.Payouts = append(plan.result.Payouts, Payout{UserID: p.UserID, Name: p.DisplayName, Wager: p.Wager, Credited: credited, Recorded: recorded})
			}
		}
		sess.Reset()
		plan.result.Reset = true

	case sess.IsWon && !sess.IsKeepPlaying && sess.IsClassic():
		plan.result.Path = SettlementWin
		plan.overlay = OverlayWon
		for _, p := range sess.Players {
			amount := money(float64(p.Wager) * s.rules.WinMultiplier)
			rec := recs.get(p.UserID)
			rec.Wins++
			rec.MoneyChange += amount
			plan.credits = append(plan.credits, ledgerMove{userID: p.UserID, amount: amount, txType: domain.TxTypeWinPayout})
			plan.result.Payouts = append(plan.result.Payouts, Payout{UserID: p.UserID, Name: p.DisplayName, Wager: p.Wager, Credited: amount, Recorded: amount})
		}
		if !s.rules.EnableKeepPlaying {
			sess.Reset()
			plan.result.Reset = true
		} else {
			sess.Pending = &domain.Prompt{
				Kind:        domain.PromptContinueDecision,
				UserID:      lastMover,
				MaxAttempts: s.rules.PromptAttempts,
				Deadline:    s.now().Add(s.rules.PromptTimeout),
			}
			plan.result.PromptOpened = true
		}

	default:
		return nil
	}

	plan.result.RoundID = uuid.NewString()
	return plan
}

func (s *SessionService) applySettlement(ctx context.Context, guildID string, plan *settlementPlan) []LedgerFailure {
	SettlementsTotal.WithLabelValues(string(plan.result.Path)).Inc()

	action := domain.AuditActionGameLose
	switch plan.result.Path {
	case SettlementWin:
		action = domain.AuditActionGameWin
	case SettlementHighBonus:
		action = domain.AuditActionGameBonus
	}
	for _, p := range plan.result.Payouts {
		s.auditor.Log(ctx, &domain.AuditLog{
			UserID: p.UserID, GuildID: guildID,
			Action: action, Category: domain.AuditCategoryGame,
			Details: map[string]any{
				"ledger_round": plan.result.RoundID,
				"wager":        p.Wager,
				"credited":     p.Credited,
				"recorded":     p.Recorded,
				"highest":      plan.result.Highest,
			},
		})
	}

	meta := map[string]any{
		"guild_id":     guildID,
		"ledger_round": plan.result.RoundID,
		"path":         string(plan.result.Path),
	}
	return s.payOut(ctx, guildID, meta, plan.credits)
}

// payOut credits each move independently. A failed credit is reported and
// never retried.
func (s *SessionService) payOut(ctx context.Context, guildID string, meta map[string]any, moves []ledgerMove) []LedgerFailure {
	ctx = context.WithoutCancel(ctx)
	var failures []LedgerFailure
	for _, m := range moves {
		if m.amount <= 0 {
			continue
		}
		if _, err := s.ledger.Credit(ctx, m.userID, m.amount, m.txType, meta); err != nil {
			failures = append(failures, s.reportLedgerFailure(ctx, guildID, m, err, domain.AuditActionCreditFailed))
		}
	}
	return failures
}

func (s *SessionService) reportLedgerFailure(ctx context.Context, guildID string, m ledgerMove, err error, action string) LedgerFailure {
	LedgerFailures.WithLabelValues(m.txType).Inc()
	s.log.Error("ledger movement failed", "guild_id", guildID, "user_id", m.userID, "amount", m.amount, "tx_type", m.txType, "err", err)
	s.auditor.Log(ctx, &domain.AuditLog{
		UserID: m.userID, GuildID: guildID,
		Action: action, Category: domain.AuditCategoryBalance,
		Details: map[string]any{"amount": m.amount, "tx_type": m.txType, "error": err.Error()},
	})
	return LedgerFailure{UserID: m.userID, Amount: m.amount, TxType: m.txType, Err: err.Error()}
}

// compensation undoes one ledger movement of an unfinished command.
type compensation struct {
	move  ledgerMove
	debit bool
	meta  map[string]any
}

func (s *SessionService) creditBack(userID string, amount int64, meta map[string]any) compensation {
	return compensation{move: ledgerMove{userID: userID, amount: amount, txType: domain.TxTypeCompensate}, meta: meta}
}

func (s *SessionService) debitBack(userID string, amount int64, meta map[string]any) compensation {
	return compensation{move: ledgerMove{userID: userID, amount: amount, txType: domain.TxTypeCompensate}, debit: true, meta: meta}
}

// unwind runs compensations newest first and reports whether all of them
// went through.
func (s *SessionService) unwind(ctx context.Context, guildID string, steps []compensation) bool {
	ctx = context.WithoutCancel(ctx)
	ok := true
	for i := len(steps) - 1; i >= 0; i-- {
		c := steps[i]
		var err error
		if c.debit {
			_, err = s.ledger.Debit(ctx, c.move.userID, c.move.amount, c.move.txType, c.meta)
		} else {
			_, err = s.ledger.Credit(ctx, c.move.userID, c.move.amount, c.move.txType, c.meta)
		}
		if err != nil {
			ok = false
			s.reportLedgerFailure(ctx, guildID, c.move, err, domain.AuditActionCompensateFailed)
		}
	}
	return ok
}
