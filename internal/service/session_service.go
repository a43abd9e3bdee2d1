package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"number_merge_game/internal/domain"
	"number_merge_game/internal/game"
	"number_merge_game/internal/logger"
)

// Rules are the gameplay settings a SessionService enforces.
type Rules struct {
	DefaultGridSize             int
	MaxWager                    int64
	LeaderboardSize             int
	WinMultiplier               float64
	ImageType                   string
	EnableKeepPlaying           bool
	RewardHighNumbers           bool
	IncrementalHighNumberReward bool
	ReconcileFlatBonus          bool
	PromptAttempts              int
	PromptTimeout               time.Duration
}

func DefaultRules() Rules {
	return Rules{
		DefaultGridSize:             game.ClassicGridSize,
		MaxWager:                    50,
		LeaderboardSize:             10,
		WinMultiplier:               2,
		ImageType:                   "png",
		EnableKeepPlaying:           true,
		RewardHighNumbers:           true,
		IncrementalHighNumberReward: true,
		PromptAttempts:              3,
		PromptTimeout:               60 * time.Second,
	}
}

// PrivateChatGuild is the session key used for one-to-one chats.
func PrivateChatGuild(userID string) string {
	return privateChatPrefix + userID
}

const privateChatPrefix = "privateChat_"

// CanActIn reports whether userID may issue commands in guildID. Group
// sessions are open to everyone; a private chat session only to its owner.
func CanActIn(guildID, userID string) bool {
	if !strings.HasPrefix(guildID, privateChatPrefix) {
		return true
	}
	return userID != "" && guildID == PrivateChatGuild(userID)
}

// Outcome describes what a command changed.
type Outcome struct {
	Session    *domain.Session   `json:"session"`
	Render     *RenderRequest    `json:"render,omitempty"`
	Settlement *SettlementResult `json:"settlement,omitempty"`
	Prompt     *domain.Prompt    `json:"prompt,omitempty"`
	Decision   Decision          `json:"decision,omitempty"`
	Moved      bool              `json:"moved,omitempty"`
	Refunded   int64             `json:"refunded,omitempty"`
	Failures   []LedgerFailure   `json:"failures,omitempty"`
}

// LedgerFailure is a credit or compensation that did not go through after
// the session had already been saved.
type LedgerFailure struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
	TxType string `json:"tx_type"`
	Err    string `json:"error"`
}

// SessionService runs the per-group state machine.
type SessionService struct {
	store     Store
	ledger    Ledger
	locks     *LockManager
	rules     Rules
	publisher Publisher
	auditor   Auditor
	rng       game.Rand
	now       func() time.Time
	log       *slog.Logger
}

type Option func(*SessionService)

func WithPublisher(p Publisher) Option {
	return func(s *SessionService) { s.publisher = p }
}

func WithAuditor(a Auditor) Option {
	return func(s *SessionService) { s.auditor = a }
}

func WithRand(r game.Rand) Option {
	return func(s *SessionService) { s.rng = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *SessionService) { s.now = now }
}

func WithLockManager(m *LockManager) Option {
	return func(s *SessionService) { s.locks = m }
}

func NewSessionService(store Store, ledger Ledger, rules Rules, opts ...Option) *SessionService {
	s := &SessionService{
		store:     store,
		ledger:    ledger,
		rules:     rules,
		publisher: nopPublisher{},
		auditor:   nopAuditor{},
		rng:       game.DefaultRand,
		now:       time.Now,
		log:       logger.With("component", "session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locks == nil {
		s.locks = NewLockManager()
	}
	if s.rules.PromptAttempts <= 0 {
		s.rules.PromptAttempts = 3
	}
	if s.rules.PromptTimeout <= 0 {
		s.rules.PromptTimeout = DefaultRules().PromptTimeout
	}
	return s
}

func (s *SessionService) Rules() Rules { return s.rules }

// run loads the session under its guild lock, resolves an expired prompt
// and hands the session to fn. The render of a successful command is
// published after the lock is released.
func (s *SessionService) run(ctx context.Context, command, guildID string, fn func(context.Context, *domain.Session) (*Outcome, error)) (*Outcome, error) {
	out, _, err := s.runLocked(ctx, command, guildID, fn)
	return out, err
}

// runLocked is run that also returns the outcome of a prompt that expired
// before fn got the session.
func (s *SessionService) runLocked(ctx context.Context, command, guildID string, fn func(context.Context, *domain.Session) (*Outcome, error)) (out, expired *Outcome, err error) {
	start := time.Now()
	err = s.locks.WithLock(ctx, guildID, func(ctx context.Context) error {
		sess, err := s.store.LoadSession(ctx, guildID, s.rules.DefaultGridSize)
		if err != nil {
			return external("load session", err)
		}
		if sess.Pending.Expired(s.now()) {
			if expired, err = s.expireLocked(ctx, sess); err != nil {
				return err
			}
		}
		out, err = fn(ctx, sess)
		return err
	})
	observeCommand(command, err, time.Since(start))

	if expired != nil && expired.Render != nil {
		s.publisher.Publish(ctx, *expired.Render)
	}
	if err != nil {
		s.log.Debug("command rejected", "command", command, "guild_id", guildID, "err", err)
		return nil, expired, err
	}
	if out != nil && out.Render != nil {
		s.publisher.Publish(ctx, *out.Render)
	}
	return out, expired, nil
}

func (s *SessionService) commit(ctx context.Context, sess *domain.Session, records ...domain.RecordDelta) error {
	if err := s.store.Commit(ctx, sess, records); err != nil {
		return external("save session", err)
	}
	return nil
}

func requireIDs(guildID, userID string) error {
	if strings.TrimSpace(guildID) == "" || strings.TrimSpace(userID) == "" {
		return ErrEmptyUserID
	}
	return nil
}

// recordSet holds the records a command works on together with the state
// they were loaded in. Only the difference is written back, so records
// shared with other groups are never overwritten wholesale.
type recordSet struct {
	loaded map[string]*domain.PlayerRecord
	recs   map[string]*domain.PlayerRecord
}

// recordsFor loads the records of players, building empty ones for users
// the store has not seen yet. New records are persisted with the next commit.
func (s *SessionService) recordsFor(ctx context.Context, players []domain.SeatedPlayer) (*recordSet, error) {
	ids := make([]string, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.UserID)
	}
	stored, err := s.store.LoadRecords(ctx, ids)
	if err != nil {
		return nil, external("load player records", err)
	}

	rs := &recordSet{
		loaded: make(map[string]*domain.PlayerRecord, len(players)),
		recs:   make(map[string]*domain.PlayerRecord, len(players)),
	}
	for _, p := range players {
		if _, ok := rs.recs[p.UserID]; ok {
			continue
		}
		if rec, ok := stored[p.UserID]; ok {
			before := *rec
			rs.loaded[p.UserID] = &before
			rs.recs[p.UserID] = rec
			continue
		}
		rs.recs[p.UserID] = &domain.PlayerRecord{UserID: p.UserID, Username: p.DisplayName}
	}
	return rs, nil
}

func (rs *recordSet) get(userID string) *domain.PlayerRecord { return rs.recs[userID] }

// deltas lists the changes in seat order, then any record not seated.
func (rs *recordSet) deltas(sess *domain.Session) []domain.RecordDelta {
	out := make([]domain.RecordDelta, 0, len(rs.recs))
	seen := make(map[string]bool, len(rs.recs))
	for _, p := range sess.Players {
		if r, ok := rs.recs[p.UserID]; ok && !seen[p.UserID] {
			out = append(out, domain.DiffRecord(rs.loaded[p.UserID], r))
			seen[p.UserID] = true
		}
	}
	for id, r := range rs.recs {
		if !seen[id] {
			out = append(out, domain.DiffRecord(rs.loaded[id], r))
		}
	}
	return out
}

// Join seats userID with an optional wager, or changes the wager of a player
// who is already seated.
func (s *SessionService) Join(ctx context.Context, guildID, userID, name string, wager int64) (*Outcome, error) {
	if err := requireIDs(guildID, userID); err != nil {
		return nil, err
	}
	if wager < 0 {
		return nil, ErrNegativeWager
	}
	if wager > s.rules.MaxWager {
		return nil, fmt.Errorf("%w: %d > %d", ErrWagerAboveCap, wager, s.rules.MaxWager)
	}

	return s.run(ctx, "join", guildID, func(ctx context.Context, sess *domain.Session) (*Outcome, error) {
		seat := sess.Seat(userID)
		if sess.Status != domain.SessionNotStarted {
			if seat != nil {
				return nil, ErrAlreadyPlaying
			}
			return nil, ErrGameInProgress
		}
		if seat != nil && wager == 0 {
			return nil, ErrAlreadySeated
		}

		recs, err := s.recordsFor(ctx, []domain.SeatedPlayer{{UserID: userID, DisplayName: name}})
		if err != nil {
			return nil, err
		}
		rec := recs.get(userID)
		if name != "" {
			rec.Username = name
			sess.RenameBestPlayer(userID, name)
		}
		delta := recs.deltas(sess)

		if seat != nil {
			return s.rewager(ctx, sess, seat, delta, name, wager)
		}

		meta := map[string]any{"guild_id": guildID}
		if wager > 0 {
			if _, err := s.ledger.Debit(ctx, userID, wager, domain.TxTypeWager, meta); err != nil {
				return nil, ledgerError("debit wager", err)
			}
		}
		sess.Players = append(sess.Players, domain.SeatedPlayer{UserID: userID, DisplayName: name, Wager: wager})
		if err := s.commit(ctx, sess, delta...); err != nil {
			if wager > 0 {
				s.unwind(ctx, guildID, []compensation{s.creditBack(userID, wager, meta)})
			}
			return nil, err
		}

		s.auditor.Log(ctx, &domain.AuditLog{
			UserID: userID, GuildID: guildID,
			Action: domain.AuditActionSeatJoin, Category: domain.AuditCategoryGame,
			Details: map[string]any{"wager": wager},
		})
		return s.outcome(sess, "join", nil), nil
	})
}

// rewager swaps the escrow of a seated player: refund the old wager, take
// the new one, and undo both if anything after the refund fails.
func (s *SessionService) rewager(ctx context.Context, sess *domain.Session, seat *domain.SeatedPlayer, delta []domain.RecordDelta, name string, wager int64) (*Outcome, error) {
	guildID, userID := sess.GuildID, seat.UserID
	old := seat.Wager
	if name != "" {
		seat.DisplayName = name
	}
	if old == wager {
		if err := s.commit(ctx, sess, delta...); err != nil {
			return nil, err
		}
		return s.outcome(sess, "join", nil), nil
	}

	meta := map[string]any{"guild_id": guildID, "previous_wager": old}
	var undo []compensation
	if old > 0 {
		if _, err := s.ledger.Credit(ctx, userID, old, domain.TxTypeRefund, meta); err != nil {
			return nil, ledgerError("refund previous wager", err)
		}
		undo = append(undo, s.debitBack(userID, old, meta))
	}

	if _, err := s.ledger.Debit(ctx, userID, wager, domain.TxTypeWager, meta); err != nil {
		if !s.unwind(ctx, guildID, undo) {
			// the old escrow went back to the player and could not be taken again
			seat.Wager = 0
			if cerr := s.commit(ctx, sess, delta...); cerr != nil {
				s.log.Error("failed to clear unrecoverable escrow", "guild_id", guildID, "user_id", userID, "err", cerr)
			}
		}
		return nil, ledgerError("debit wager", err)
	}
	undo = append(undo, s.creditBack(userID, wager, meta))

	seat.Wager = wager
	if err := s.commit(ctx, sess, delta...); err != nil {
		s.unwind(ctx, guildID, undo)
		return nil, err
	}

	s.auditor.Log(ctx, &domain.AuditLog{
		UserID: userID, GuildID: guildID,
		Action: domain.AuditActionSeatJoin, Category: domain.AuditCategoryGame,
		Details: map[string]any{"wager": wager, "previous_wager": old},
	})
	return s.outcome(sess, "join", nil), nil
}

// Leave unseats userID before the game starts and returns the wager.
func (s *SessionService) Leave(ctx context.Context, guildID, userID string) (*Outcome, error) {
	if err := requireIDs(guildID, userID); err != nil {
		return nil, err
	}
	return s.run(ctx, "leave", guildID, func(ctx context.Context, sess *domain.Session) (*Outcome, error) {
		if sess.Status != domain.SessionNotStarted {
			return nil, ErrGameInProgress
		}
		seat, ok := sess.RemoveSeat(userID)
		if !ok {
			return nil, ErrNotSeated
		}
		if err := s.commit(ctx, sess); err != nil {
			return nil, err
		}

		out := s.outcome(sess, "leave", nil)
		out.Refunded = seat.Wager
		out.Failures = s.payOut(ctx, guildID, map[string]any{"guild_id": guildID},
			[]ledgerMove{{userID: userID, amount: seat.Wager, txType: domain.TxTypeRefund}})
		s.auditor.Log(ctx, &domain.AuditLog{
			UserID: userID, GuildID: guildID,
			Action: domain.AuditActionSeatLeave, Category: domain.AuditCategoryGame,
			Details: map[string]any{"refund": seat.Wager},
		})
		return out, nil
	})
}

// Start deals a fresh board. Boards other than the classic size are played
// for fun, so every wager goes back to its owner.
func (s *SessionService) Start(ctx context.Context, guildID, userID string, gridSize int) (*Outcome, error) {
	if err := requireIDs(guildID, userID); err != nil {
		return nil, err
	}
	if gridSize == 0 {
		gridSize = s.rules.DefaultGridSize
	}
	if !game.ValidGridSize(gridSize) {
		return nil, fmt.Errorf("%w: got %d", game.ErrInvalidGridSize, gridSize)
	}

	return s.run(ctx, "start", guildID, func(ctx context.Context, sess *domain.Session) (*Outcome, error) {
		if sess.Status != domain.SessionNotStarted {
			return nil, ErrGameInProgress
		}
		if len(sess.Players) == 0 {
			return nil, ErrNoPlayers
		}

		sess.GridSize = gridSize
		sess.Grid = game.Spawn(game.NewGrid(gridSize), 2, s.rng)
		sess.Score = 0
		sess.IsWon = false
		sess.IsKeepPlaying = false
		sess.LastMover = ""
		sess.Pending = nil
		sess.Status = domain.SessionInProgress

		var refunds []ledgerMove
		if !sess.IsClassic() {
			for i := range sess.Players {
				if w := sess.Players[i].Wager; w > 0 {
					refunds = append(refunds, ledgerMove{userID: sess.Players[i].UserID, amount: w, txType: domain.TxTypeRefund})
					sess.Players[i].Wager = 0
				}
			}
		}

		if err := s.commit(ctx, sess); err != nil {
			return nil, err
		}

		out := s.outcome(sess, "start", nil)
		out.Failures = s.payOut(ctx, guildID, map[string]any{"guild_id": guildID, "reason": "casual_mode"}, refunds)
		for _, r := range refunds {
			out.Refunded += r.amount
		}
		s.auditor.Log(ctx, &domain.AuditLog{
			UserID: userID, GuildID: guildID,
			Action: domain.AuditActionGameStart, Category: domain.AuditCategoryGame,
			Details: map[string]any{"grid_size": gridSize, "players": len(sess.Players), "refunded": out.Refunded},
		})
		return out, nil
	})
}

// Reset abandons the running game. Wagers are forfeited.
func (s *SessionService) Reset(ctx context.Context, guildID, userID string) (*Outcome, error) {
	if err := requireIDs(guildID, userID); err != nil {
		return nil, err
	}
	return s.run(ctx, "reset", guildID, func(ctx context.Context, sess *domain.Session) (*Outcome, error) {
		if sess.Status == domain.SessionNotStarted {
			return nil, ErrNotStarted
		}
		if err := checkPending(sess, ""); err != nil {
			return nil, err
		}
		forfeited := sess.TotalEscrow()
		sess.Reset()
		if err := s.commit(ctx, sess); err != nil {
			return nil, err
		}
		s.auditor.Log(ctx, &domain.AuditLog{
			UserID: userID, GuildID: guildID,
			Action: domain.AuditActionGameReset, Category: domain.AuditCategoryGame,
			Details: map[string]any{"forfeited": forfeited},
		})
		return s.outcome(sess, "reset", nil), nil
	})
}

// checkPending rejects a command while a prompt is open. The prompted user
// may answer their own move prompt by moving.
func checkPending(sess *domain.Session, userID string) error {
	if sess.Pending == nil {
		return nil
	}
	if sess.AwaitingDecision() {
		return ErrAwaitingDecision
	}
	if userID != "" && sess.Pending.UserID == userID && sess.Pending.Kind == domain.PromptMoveInput {
		return nil
	}
	return ErrPromptPending
}

// Move applies a sequence of directions. An empty sequence asks the player
// for one instead.
func (s *SessionService) Move(ctx context.Context, guildID, userID, directions string) (*Outcome, error) {
	if err := requireIDs(guildID, userID); err != nil {
		return nil, err
	}
	var dirs []game.Direction
	if strings.TrimSpace(directions) != "" {
		var err error
		if dirs, err = game.ParseDirections(directions); err != nil {
			return nil, err
		}
	}

	return s.run(ctx, "move", guildID, func(ctx context.Context, sess *domain.Session) (*Outcome, error) {
		if sess.Status != domain.SessionInProgress {
			return nil, ErrNotStarted
		}
		if sess.Seat(userID) == nil {
			return nil, ErrNotSeated
		}
		if err := checkPending(sess, userID); err != nil {
			return nil, err
		}
		if len(dirs) == 0 {
			return s.openMovePrompt(ctx, sess, userID)
		}
		return s.moveLocked(ctx, sess, userID, dirs)
	})
}

func (s *SessionService) openMovePrompt(ctx context.Context, sess *domain.Session, userID string) (*Outcome, error) {
	sess.Pending = &domain.Prompt{
		Kind:        domain.PromptMoveInput,
		UserID:      userID,
		MaxAttempts: 1,
		Deadline:    s.now().Add(s.rules.PromptTimeout),
	}
	if err := s.commit(ctx, sess); err != nil {
		return nil, err
	}
	out := &Outcome{Session: sess.Clone(), Prompt: sess.Pending}
	return out, nil
}

func (s *SessionService) moveLocked(ctx context.Context, sess *domain.Session, userID string, dirs []game.Direction) (*Outcome, error) {
	sess.Pending = nil
	bestBefore := sess.Best

	grid := sess.Grid
	anyMoved := false
	for _, d := range dirs {
		next, delta, moved := game.Move(grid, d)
		if !moved {
			continue
		}
		anyMoved = true
		grid = game.Spawn(next, game.SpawnCount(sess.GridSize), s.rng)
		sess.Score += int64(delta)
		if sess.Score > sess.Best {
			sess.Best = sess.Score
		}
	}
	sess.Grid = grid
	sess.LastMover = userID

	highest := game.HighestValue(grid)
	if sess.IsClassic() && (game.HasValue(grid, game.WinningValue) || highest > game.WinningValue) {
		sess.IsWon = true
	}

	recs, err := s.recordsFor(ctx, sess.Players)
	if err != nil {
		return nil, err
	}
	if sess.IsClassic() {
		if highest > sess.HighestNumber {
			sess.HighestNumber = highest
		}
		if sess.Best > bestBefore {
			best := make([]domain.BestPlayer, 0, len(sess.Players))
			for _, p := range sess.Players {
				best = append(best, domain.BestPlayer{UserID: p.UserID, Name: p.DisplayName})
			}
			sess.BestPlayers = best
		}
		for _, p := range sess.Players {
			rec := recs.get(p.UserID)
			if sess.Score > rec.BestScore {
				rec.BestScore = sess.Score
			}
			if highest > rec.HighestNumber {
				rec.HighestNumber = highest
			}
		}
	}

	finalGrid := grid.Clone()
	terminal := game.HasTerminalState(grid)
	plan := s.settle(sess, recs, userID, highest, terminal)

	if err := s.commit(ctx, sess, recs.deltas(sess)...); err != nil {
		return nil, err
	}

	out := s.outcome(sess, "move", finalGrid)
	out.Moved = anyMoved
	if plan != nil {
		out.Settlement = &plan.result
		out.Failures = s.applySettlement(ctx, sess.GuildID, plan)
		out.Render.Settlement = out.Settlement
		out.Render.Overlay = plan.overlay
		out.Render.Score = plan.finalScore
	}
	out.Prompt = sess.Pending
	return out, nil
}

// Reply feeds free text from the prompted player into whatever the session
// is waiting for.
func (s *SessionService) Reply(ctx context.Context, guildID, userID, text string) (*Outcome, error) {
	if err := requireIDs(guildID, userID); err != nil {
		return nil, err
	}
	return s.run(ctx, "reply", guildID, func(ctx context.Context, sess *domain.Session) (*Outcome, error) {
		p := sess.Pending
		if p == nil || p.UserID != userID {
			return nil, ErrNoPendingPrompt
		}
		switch p.Kind {
		case domain.PromptContinueDecision:
			return s.decideLocked(ctx, sess, userID, text)
		default:
			if sess.Seat(userID) == nil {
				return nil, ErrNotSeated
			}
			dirs, err := game.ParseDirections(text)
			if err != nil {
				return nil, err
			}
			return s.moveLocked(ctx, sess, userID, dirs)
		}
	})
}

// Decide answers the continue-or-stop question asked after a classic win.
func (s *SessionService) Decide(ctx context.Context, guildID, userID, choice string) (*Outcome, error) {
	if err := requireIDs(guildID, userID); err != nil {
		return nil, err
	}
	return s.run(ctx, "decide", guildID, func(ctx context.Context, sess *domain.Session) (*Outcome, error) {
		if !sess.AwaitingDecision() {
			return nil, ErrNoPendingPrompt
		}
		if sess.Pending.UserID != userID {
			return nil, ErrNotLastMover
		}
		return s.decideLocked(ctx, sess, userID, choice)
	})
}

// State returns the current session of a group.
func (s *SessionService) State(ctx context.Context, guildID string) (*domain.Session, *RenderRequest, error) {
	if strings.TrimSpace(guildID) == "" {
		return nil, nil, ErrEmptyUserID
	}
	sess, err := s.store.LoadSession(ctx, guildID, s.rules.DefaultGridSize)
	if err != nil {
		return nil, nil, external("load session", err)
	}
	return sess, s.render(sess, "state", nil), nil
}

// BestRecord returns the best game of this group or of all groups.
func (s *SessionService) BestRecord(ctx context.Context, guildID string, acrossGroups bool) (*domain.BestRecord, error) {
	if acrossGroups {
		best, err := s.store.BestAcrossGuilds(ctx)
		if err != nil {
			return nil, external("load best record", err)
		}
		return best, nil
	}
	sess, err := s.store.LoadSession(ctx, guildID, s.rules.DefaultGridSize)
	if err != nil {
		return nil, external("load session", err)
	}
	return &domain.BestRecord{
		GuildID:       sess.GuildID,
		Best:          sess.Best,
		HighestNumber: sess.HighestNumber,
		BestPlayers:   sess.BestPlayers,
	}, nil
}

// Leaderboard ranks players by metric. A zero limit means the configured
// default.
func (s *SessionService) Leaderboard(ctx context.Context, metric string, limit int) ([]*domain.PlayerRecord, domain.LeaderboardMetric, error) {
	m, ok := domain.ParseMetric(metric)
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidMetric, metric)
	}
	if limit < 0 {
		return nil, m, ErrInvalidLimit
	}
	if limit == 0 {
		limit = s.rules.LeaderboardSize
	}
	recs, err := s.store.TopRecords(ctx, m, limit)
	if err != nil {
		return nil, m, external("load leaderboard", err)
	}
	return recs, m, nil
}

// PlayerRecord looks up a player's statistics, creating an empty record on
// first query.
func (s *SessionService) PlayerRecord(ctx context.Context, userID, username string) (*domain.PlayerRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrEmptyUserID
	}
	rec, err := s.store.EnsureRecord(ctx, userID, username)
	if err != nil {
		return nil, external("load player record", err)
	}
	return rec, nil
}
