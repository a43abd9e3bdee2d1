package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"number_merge_game/internal/domain"
	"number_merge_game/internal/game"
	"number_merge_game/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ledgerCall struct {
	userID string
	amount int64
	txType string
}

type fakeLedger struct {
	mu         sync.Mutex
	balances   map[string]int64
	failCredit map[string]error
	debits     []ledgerCall
	credits    []ledgerCall
}

func newFakeLedger(balances map[string]int64) *fakeLedger {
	if balances == nil {
		balances = map[string]int64{}
	}
	return &fakeLedger{balances: balances, failCredit: map[string]error{}}
}

func (l *fakeLedger) Debit(_ context.Context, userID string, amount int64, txType string, _ map[string]any) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if l.balances[userID] < amount {
		return l.balances[userID], ErrInsufficientFunds
	}
	l.balances[userID] -= amount
	l.debits = append(l.debits, ledgerCall{userID, amount, txType})
	return l.balances[userID], nil
}

func (l *fakeLedger) Credit(_ context.Context, userID string, amount int64, txType string, _ map[string]any) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if err := l.failCredit[userID]; err != nil {
		return l.balances[userID], err
	}
	l.balances[userID] += amount
	l.credits = append(l.credits, ledgerCall{userID, amount, txType})
	return l.balances[userID], nil
}

func (l *fakeLedger) balance(userID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

func (l *fakeLedger) setBalance(userID string, v int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = v
}

type recordingPublisher struct {
	mu      sync.Mutex
	renders []RenderRequest
}

func (p *recordingPublisher) Publish(_ context.Context, r RenderRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renders = append(p.renders, r)
}

type testEnv struct {
	svc    *SessionService
	store  *repository.MemoryStore
	ledger *fakeLedger
	pub    *recordingPublisher
	now    time.Time
}

func newTestEnv(t *testing.T, rules Rules, balances map[string]int64) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  repository.NewMemoryStore(),
		ledger: newFakeLedger(balances),
		pub:    &recordingPublisher{},
		now:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	env.svc = NewSessionService(env.store, env.ledger, rules,
		WithPublisher(env.pub),
		WithRand(rand.New(rand.NewPCG(7, 7))),
		WithClock(func() time.Time { return env.now }),
	)
	return env
}

// seedGame stores a running classic or casual game with the given board.
func (e *testEnv) seedGame(guildID string, board [][]int, players ...domain.SeatedPlayer) {
	e.store.PutSession(&domain.Session{
		GuildID:  guildID,
		Status:   domain.SessionInProgress,
		GridSize: len(board),
		Grid:     game.FromValues(board),
		Players:  players,
	})
}

// escrowHeld checks that what left the players' balances equals the wagers
// sitting on seats.
func escrowHeld(t *testing.T, env *testEnv, guildID string, initial map[string]int64) {
	t.Helper()
	var spent int64
	for id, start := range initial {
		spent += start - env.ledger.balance(id)
	}
	assert.Equal(t, env.store.Session(guildID).TotalEscrow(), spent)
}

func TestJoinLeaveRejoinConservesEscrow(t *testing.T) {
	initial := map[string]int64{"a": 100, "b": 100}
	env := newTestEnv(t, DefaultRules(), map[string]int64{"a": 100, "b": 100})
	ctx := context.Background()

	_, err := env.svc.Join(ctx, "g", "a", "Alice", 10)
	require.NoError(t, err)
	escrowHeld(t, env, "g", initial)

	_, err = env.svc.Join(ctx, "g", "b", "Bob", 0)
	require.NoError(t, err)
	escrowHeld(t, env, "g", initial)

	out, err := env.svc.Join(ctx, "g", "a", "Alice", 20)
	require.NoError(t, err)
	assert.Equal(t, int64(20), out.Session.Seat("a").Wager)
	assert.Equal(t, int64(80), env.ledger.balance("a"))
	escrowHeld(t, env, "g", initial)

	out, err = env.svc.Leave(ctx, "g", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(20), out.Refunded)
	assert.Equal(t, int64(100), env.ledger.balance("a"))
	escrowHeld(t, env, "g", initial)

	_, err = env.svc.Join(ctx, "g", "a", "Alice", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(95), env.ledger.balance("a"))
	escrowHeld(t, env, "g", initial)
	assert.Len(t, env.store.Session("g").Players, 2)
}

func TestJoinValidation(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), map[string]int64{"a": 5})
	ctx := context.Background()

	_, err := env.svc.Join(ctx, "g", "a", "Alice", -1)
	assert.Equal(t, KindInvalidInput, KindOf(err))

	_, err = env.svc.Join(ctx, "g", "a", "Alice", 51)
	assert.Equal(t, KindInsufficientFunds, KindOf(err))

	_, err = env.svc.Join(ctx, "g", "a", "Alice", 10)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Empty(t, env.store.Session("g").Players)
	assert.Equal(t, int64(5), env.ledger.balance("a"))

	_, err = env.svc.Join(ctx, "g", "a", "Alice", 0)
	require.NoError(t, err)
	_, err = env.svc.Join(ctx, "g", "a", "Alice", 0)
	assert.ErrorIs(t, err, ErrAlreadySeated)
	assert.Equal(t, KindIllegalTransition, KindOf(err))
}

func TestJoinRefreshesNames(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), nil)
	ctx := context.Background()

	env.store.PutSession(&domain.Session{
		GuildID:     "g",
		Status:      domain.SessionNotStarted,
		GridSize:    4,
		BestPlayers: []domain.BestPlayer{{UserID: "a", Name: "old"}},
	})

	_, err := env.svc.Join(ctx, "g", "a", "new", 0)
	require.NoError(t, err)

	assert.Equal(t, "new", env.store.Session("g").BestPlayers[0].Name)
	assert.Equal(t, "new", env.store.Record("a").Username)
}

func TestJoinWhileRunning(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), nil)
	ctx := context.Background()
	env.seedGame("g", [][]int{{2, 0, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}},
		domain.SeatedPlayer{UserID: "a", DisplayName: "Alice"})

	_, err := env.svc.Join(ctx, "g", "a", "Alice", 0)
	assert.ErrorIs(t, err, ErrAlreadyPlaying)

	_, err = env.svc.Join(ctx, "g", "b", "Bob", 0)
	assert.ErrorIs(t, err, ErrGameInProgress)

	_, err = env.svc.Leave(ctx, "g", "a")
	assert.ErrorIs(t, err, ErrGameInProgress)
}

func TestJoinCompensatesWhenSaveFails(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), map[string]int64{"a": 100})
	ctx := context.Background()

	_, err := env.store.LoadSession(ctx, "g", 4)
	require.NoError(t, err)
	env.store.FailCommit = errors.New("connection reset")

	_, err = env.svc.Join(ctx, "g", "a", "Alice", 10)
	require.Error(t, err)
	assert.Equal(t, KindExternalFailure, KindOf(err))
	assert.Equal(t, int64(100), env.ledger.balance("a"))
	assert.Empty(t, env.store.Session("g").Players)
	require.Len(t, env.ledger.credits, 1)
	assert.Equal(t, domain.TxTypeCompensate, env.ledger.credits[0].txType)
}

func TestRewagerRestoresEscrowWhenNewDebitFails(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), map[string]int64{"a": 100})
	ctx := context.Background()

	_, err := env.svc.Join(ctx, "g", "a", "Alice", 10)
	require.NoError(t, err)
	env.ledger.setBalance("a", 30)

	_, err = env.svc.Join(ctx, "g", "a", "Alice", 50)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	assert.Equal(t, int64(30), env.ledger.balance("a"))
	assert.Equal(t, int64(10), env.store.Session("g").Seat("a").Wager)
}

func TestConcurrentJoinsAreSerialized(t *testing.T) {
	balances := map[string]int64{}
	for i := 0; i < 20; i++ {
		balances[fmt.Sprintf("u%d", i)] = 10
	}
	env := newTestEnv(t, DefaultRules(), balances)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.svc.Join(ctx, "g", fmt.Sprintf("u%d", i), "p", 1)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	sess := env.store.Session("g")
	assert.Len(t, sess.Players, 20)
	assert.Equal(t, int64(20), sess.TotalEscrow())
	assert.Equal(t, int64(20), sess.Version)
}

func TestStart(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), map[string]int64{"a": 100})
	ctx := context.Background()

	_, err := env.svc.Start(ctx, "g", "a", 0)
	assert.ErrorIs(t, err, ErrNoPlayers)

	_, err = env.svc.Start(ctx, "g", "a", 9)
	assert.Equal(t, KindInvalidInput, KindOf(err))

	_, err = env.svc.Join(ctx, "g", "a", "Alice", 10)
	require.NoError(t, err)

	out, err := env.svc.Start(ctx, "g", "a", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionInProgress, out.Session.Status)
	assert.Equal(t, 4, out.Session.GridSize)
	assert.Len(t, out.Session.Grid.EmptyCells(), 14)
	assert.Equal(t, int64(10), out.Session.Seat("a").Wager, "classic keeps the escrow")

	_, err = env.svc.Start(ctx, "g", "a", 0)
	assert.ErrorIs(t, err, ErrGameInProgress)
}

func TestCasualStartRefundsWagers(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), map[string]int64{"a": 100, "b": 100, "c": 100})
	ctx := context.Background()

	_, err := env.svc.Join(ctx, "g", "a", "Alice", 10)
	require.NoError(t, err)
	_, err = env.svc.Join(ctx, "g", "b", "Bob", 5)
	require.NoError(t, err)
	// another group's escrow is left alone
	_, err = env.svc.Join(ctx, "other", "c", "Carol", 7)
	require.NoError(t, err)

	out, err := env.svc.Start(ctx, "g", "a", 5)
	require.NoError(t, err)

	assert.Equal(t, int64(15), out.Refunded)
	assert.Equal(t, int64(100), env.ledger.balance("a"))
	assert.Equal(t, int64(100), env.ledger.balance("b"))
	assert.Equal(t, int64(93), env.ledger.balance("c"))
	assert.Zero(t, env.store.Session("g").TotalEscrow())
	assert.Equal(t, int64(7), env.store.Session("other").TotalEscrow())
	assert.Len(t, out.Session.Grid.EmptyCells(), 23)
}

func TestMoveGuards(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), nil)
	ctx := context.Background()

	_, err := env.svc.Move(ctx, "g", "a", "l")
	assert.ErrorIs(t, err, ErrNotStarted)

	env.seedGame("g", [][]int{{2, 2, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}},
		domain.SeatedPlayer{UserID: "a", DisplayName: "Alice"})

	_, err = env.svc.Move(ctx, "g", "b", "l")
	assert.ErrorIs(t, err, ErrNotSeated)

	_, err = env.svc.Move(ctx, "g", "a", "lq")
	assert.Equal(t, KindInvalidInput, KindOf(err))
	assert.Equal(t, int64(0), env.store.Session("g").Version, "rejected move must not touch the session")
}

func TestMoveScoresAndTracksRecords(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), nil)
	ctx := context.Background()
	env.seedGame("g", [][]int{{2, 2, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}},
		domain.SeatedPlayer{UserID: "a", DisplayName: "Alice"},
		domain.SeatedPlayer{UserID: "b", DisplayName: "Bob"})

	out, err := env.svc.Move(ctx, "g", "a", "l")
	require.NoError(t, err)
	assert.True(t, out.Moved)
	assert.Equal(t, int64(4), out.Session.Score)
	assert.Equal(t, int64(4), out.Session.Best)
	assert.Equal(t, 4, out.Session.Grid.Values()[0][0])
	assert.Len(t, out.Session.Grid.EmptyCells(), 14)
	assert.Equal(t, "a", out.Session.LastMover)
	assert.Equal(t, []domain.BestPlayer{{UserID: "a", Name: "Alice"}, {UserID: "b", Name: "Bob"}}, out.Session.BestPlayers)

	rec := env.store.Record("b")
	require.NotNil(t, rec)
	assert.Equal(t, int64(4), rec.BestScore)
	assert.Equal(t, 4, rec.HighestNumber)

	prev := out.Session.Score
	for _, dirs := range []string{"r", "u", "d", "上下左右"} {
		out, err = env.svc.Move(ctx, "g", "b", dirs)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, out.Session.Score, prev)
		prev = out.Session.Score
	}
	assert.NotEmpty(t, env.pub.renders)
}

func TestMoveCasualDoesNotTouchRecords(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), nil)
	ctx := context.Background()
	board := make([][]int, 5)
	for i := range board {
		board[i] = make([]int, 5)
	}
	board[0][0], board[0][1] = 2, 2
	env.seedGame("g", board, domain.SeatedPlayer{UserID: "a", DisplayName: "Alice"})

	out, err := env.svc.Move(ctx, "g", "a", "l")
	require.NoError(t, err)
	assert.Len(t, out.Session.Grid.EmptyCells(), 25-1-2)
	assert.Zero(t, out.Session.HighestNumber)
	assert.Zero(t, out.Session.BestPlayers)
	rec := env.store.Record("a")
	require.NotNil(t, rec)
	assert.Zero(t, rec.BestScore)
	assert.Zero(t, rec.HighestNumber)
}

// lossBoard becomes terminal after a left move whatever tile spawns.
func lossBoard(highest int) [][]int {
	return [][]int{
		{2, 2, 8, 16},
		{32, 64, 128, 256},
		{512, highest, 32, 64},
		{2, 4, 8, 16},
	}
}

func TestLossSettlement(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), map[string]int64{"a": 90})
	ctx := context.Background()
	env.seedGame("g", lossBoard(1024), domain.SeatedPlayer{UserID: "a", DisplayName: "Alice", Wager: 10})

	out, err := env.svc.Move(ctx, "g", "a", "l")
	require.NoError(t, err)
	require.NotNil(t, out.Settlement)
	assert.Equal(t, SettlementLoss, out.Settlement.Path)
	assert.Equal(t, OverlayLost, out.Render.Overlay)
	assert.NotEmpty(t, out.Render.Grid)
	assert.Equal(t, int64(4), out.Render.Score)

	sess := env.store.Session("g")
	assert.Equal(t, domain.SessionNotStarted, sess.Status)
	assert.Empty(t, sess.Players)
	assert.Nil(t, sess.Grid)
	assert.Equal(t, 1024, sess.HighestNumber)
	assert.Equal(t, int64(4), sess.Best)

	rec := env.store.Record("a")
	assert.Equal(t, 1, rec.Losses)
	assert.Equal(t, int64(-10), rec.MoneyChange)
	assert.Empty(t, env.ledger.credits)
	assert.Equal(t, int64(90), env.ledger.balance("a"))
}

// gatedStore holds the first commit of one guild until release is closed.
type gatedStore struct {
	*repository.MemoryStore
	guild   string
	reached chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) Commit(ctx context.Context, s *domain.Session, records []domain.RecordDelta) error {
	if s.GuildID == g.guild {
		g.once.Do(func() {
			close(g.reached)
			<-g.release
		})
	}
	return g.MemoryStore.Commit(ctx, s, records)
}

func TestRecordsSurviveParallelGroups(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), map[string]int64{"a": 90})
	ctx := context.Background()
	store := &gatedStore{MemoryStore: env.store, guild: "g2", reached: make(chan struct{}), release: make(chan struct{})}
	svc := NewSessionService(store, env.ledger, DefaultRules(), WithRand(rand.New(rand.NewPCG(7, 7))))

	_, err := env.store.EnsureRecord(ctx, "a", "Alice")
	require.NoError(t, err)
	env.seedGame("g1", lossBoard(1024), domain.SeatedPlayer{UserID: "a", DisplayName: "Alice", Wager: 10})
	env.seedGame("g2", [][]int{
		{2, 2, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}, domain.SeatedPlayer{UserID: "a", DisplayName: "Alice"})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Move(ctx, "g2", "a", "l")
		done <- err
	}()
	<-store.reached

	out, err := svc.Move(ctx, "g1", "a", "l")
	require.NoError(t, err)
	require.NotNil(t, out.Settlement)
	require.Equal(t, SettlementLoss, out.Settlement.Path)
	require.Equal(t, 1, env.store.Record("a").Losses)

	close(store.release)
	require.NoError(t, <-done)

	rec := env.store.Record("a")
	assert.Equal(t, 1, rec.Losses)
	assert.Equal(t, int64(-10), rec.MoneyChange)
	assert.Equal(t, int64(4), rec.BestScore)
	assert.Equal(t, 1024, rec.HighestNumber)
	assert.Equal(t, "Alice", rec.Username)
}

func winBoard() [][]int {
	return [][]int{
		{1024, 1024, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}
}

func TestWinWithKeepPlayingDisabled(t *testing.T) {
	rules := DefaultRules()
	rules.EnableKeepPlaying = false
	env := newTestEnv(t, rules, map[string]int64{"a": 90, "b": 100})
	ctx := context.Background()
	env.seedGame("g", winBoard(),
		domain.SeatedPlayer{UserID: "a", DisplayName: "Alice", Wager: 10},
		domain.SeatedPlayer{UserID: "b", DisplayName: "Bob"})

	out, err := env.svc.Move(ctx, "g", "a", "l")
	require.NoError(t, err)
	require.NotNil(t, out.Settlement)
	assert.Equal(t, SettlementWin, out.Settlement.Path)
	assert.True(t, out.Settlement.Reset)
	assert.NotEmpty(t, out.Settlement.RoundID)
	assert.Equal(t, OverlayWon, out.Render.Overlay)

	assert.Equal(t, int64(110), env.ledger.balance("a"))
	assert.Equal(t, int64(100), env.ledger.balance("b"))
	require.Len(t, env.ledger.credits, 1, "zero payouts never reach the ledger")

	ra, rb := env.store.Record("a"), env.store.Record("b")
	assert.Equal(t, 1, ra.Wins)
	assert.Equal(t, int64(20), ra.MoneyChange)
	assert.Equal(t, 1, rb.Wins)
	assert.Zero(t, rb.MoneyChange)

	sess := env.store.Session("g")
	assert.Equal(t, domain.SessionNotStarted, sess.Status)
	assert.Empty(t, sess.Players)
	assert.Equal(t, 2048, sess.HighestNumber)
	assert.Equal(t, int64(2048), sess.Best)
}

func TestWinOpensContinuePromptAndContinue(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), map[string]int64{"a": 90, "b": 100})
	ctx := context.Background()
	env.seedGame("g", winBoard(),
		domain.SeatedPlayer{UserID: "a", DisplayName: "Alice", Wager: 10},
		domain.SeatedPlayer{UserID: "b", DisplayName: "Bob"})

	out, err := env.svc.Move(ctx, "g", "a", "l")
	require.NoError(t, err)
	require.NotNil(t, out.Prompt)
	assert.Equal(t, domain.PromptContinueDecision, out.Prompt.Kind)
	assert.Equal(t, "a", out.Prompt.UserID)
	assert.True(t, out.Settlement.PromptOpened)
	assert.Equal(t, int64(110), env.ledger.balance("a"))

	_, err = env.svc.Move(ctx, "g", "b", "r")
	assert.ErrorIs(t, err, ErrAwaitingDecision)
	_, err = env.svc.Reset(ctx, "g", "b")
	assert.ErrorIs(t, err, ErrAwaitingDecision)
	_, err = env.svc.Decide(ctx, "g", "b", "continue")
	assert.ErrorIs(t, err, ErrNotLastMover)

	out, err = env.svc.Decide(ctx, "g", "a", "继续游戏")
	require.NoError(t, err)
	assert.Equal(t, DecisionContinue, out.Decision)
	assert.True(t, out.Session.IsKeepPlaying)
	assert.Nil(t, out.Session.Pending)
	assert.Equal(t, int64(10), out.Session.Seat("a").Wager)

	out, err = env.svc.Move(ctx, "g", "b", "r")
	require.NoError(t, err)
	assert.Nil(t, out.Settlement, "a win is paid once")
	assert.Equal(t, int64(110), env.ledger.balance("a"))
}

func TestDecisionAttemptsExhausted(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), map[string]int64{"a": 90})
	ctx := context.Background()
	env.seedGame("g", winBoard(), domain.SeatedPlayer{UserID: "a", DisplayName: "Alice", Wager: 10})

	_, err := env.svc.Move(ctx, "g", "a", "l")
	require.NoError(t, err)

	for i := 1; i < 3; i++ {
		out, err := env.svc.Reply(ctx, "g", "a", "maybe")
		require.NoError(t, err)
		assert.Equal(t, DecisionRetry, out.Decision)
		assert.Equal(t, i, out.Prompt.Attempts)
	}
	out, err := env.svc.Decide(ctx, "g", "a", "hmm")
	require.NoError(t, err)
	assert.Equal(t, DecisionExhausted, out.Decision)

	sess := env.store.Session("g")
	assert.Equal(t, domain.SessionNotStarted, sess.Status)
	assert.Empty(t, sess.Players)
	assert.Equal(t, int64(110), env.ledger.balance("a"), "stopping neither refunds nor claws back")
}

func TestZeroPromptTimeoutKeepsDecisionOpen(t *testing.T) {
	rules := DefaultRules()
	rules.PromptTimeout = 0
	env := newTestEnv(t, rules, map[string]int64{"a": 90})
	ctx := context.Background()
	env.seedGame("g", winBoard(), domain.SeatedPlayer{UserID: "a", DisplayName: "Alice", Wager: 10})

	out, err := env.svc.Move(ctx, "g", "a", "l")
	require.NoError(t, err)
	require.NotNil(t, out.Prompt)
	assert.Equal(t, env.now.Add(DefaultRules().PromptTimeout), out.Prompt.Deadline)

	n, err := env.svc.ExpirePrompts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NotNil(t, env.store.Session("g").Pending)
}

func TestRunSweeperIgnoresNonPositiveInterval(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NotPanics(t, func() { env.svc.RunSweeper(ctx, 0) })
	assert.NoError(t, ctx.Err(), "a disabled sweeper returns at once")
}

func TestDecisionTimesOut(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), map[string]int64{"a": 90})
	ctx := context.Background()
	env.seedGame("g", winBoard(), domain.SeatedPlayer{UserID: "a", DisplayName: "Alice", Wager: 10})

	_, err := env.svc.Move(ctx, "g", "a", "l")
	require.NoError(t, err)

	n, err := env.svc.ExpirePrompts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.now = env.now.Add(61 * time.Second)
	n, err = env.svc.ExpirePrompts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sess := env.store.Session("g")
	assert.Equal(t, domain.SessionNotStarted, sess.Status)
	assert.Nil(t, sess.Pending)
}

func TestHighNumberBonus(t *testing.T) {
	tests := []struct {
		name         string
		incremental  bool
		reconcile    bool
		wantCredit   int64
		wantRecorded int64
	}{
		{"incremental", true, false, 60, 60},
		{"flat keeps booked bonus", false, false, 10, 30},
		{"flat reconciled", false, true, 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := DefaultRules()
			rules.IncrementalHighNumberReward = tt.incremental
			rules.ReconcileFlatBonus = tt.reconcile
			env := newTestEnv(t, rules, map[string]int64{"a": 0})
			env.store.PutSession(&domain.Session{
				GuildID:       "g",
				Status:        domain.SessionInProgress,
				GridSize:      4,
				Grid:          game.FromValues(lossBoard(8192)),
				Players:       []domain.SeatedPlayer{{UserID: "a", DisplayName: "Alice", Wager: 10}},
				IsWon:         true,
				IsKeepPlaying: true,
			})

			out, err := env.svc.Move(context.Background(), "g", "a", "l")
			require.NoError(t, err)
			require.NotNil(t, out.Settlement)
			assert.Equal(t, SettlementHighBonus, out.Settlement.Path)
			assert.Equal(t, tt.wantCredit, env.ledger.balance("a"))
			assert.Equal(t, tt.wantRecorded, env.store.Record("a").MoneyChange)
			assert.Equal(t, domain.SessionNotStarted, env.store.Session("g").Status)
		})
	}
}

func TestFailedCreditIsReportedNotRetried(t *testing.T) {
	rules := DefaultRules()
	rules.EnableKeepPlaying = false
	env := newTestEnv(t, rules, map[string]int64{"a": 90})
	env.ledger.failCredit["a"] = errors.New("ledger unavailable")
	env.seedGame("g", winBoard(), domain.SeatedPlayer{UserID: "a", DisplayName: "Alice", Wager: 10})

	out, err := env.svc.Move(context.Background(), "g", "a", "l")
	require.NoError(t, err)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, int64(20), out.Failures[0].Amount)
	assert.Equal(t, domain.TxTypeWinPayout, out.Failures[0].TxType)
	assert.Equal(t, 1, env.store.Record("a").Wins, "the session is already settled")
}

func TestMovePromptAndReply(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), nil)
	ctx := context.Background()
	env.seedGame("g", [][]int{{2, 2, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}},
		domain.SeatedPlayer{UserID: "a", DisplayName: "Alice"},
		domain.SeatedPlayer{UserID: "b", DisplayName: "Bob"})

	out, err := env.svc.Move(ctx, "g", "a", "  ")
	require.NoError(t, err)
	require.NotNil(t, out.Prompt)
	assert.Equal(t, domain.PromptMoveInput, out.Prompt.Kind)

	_, err = env.svc.Move(ctx, "g", "b", "l")
	assert.ErrorIs(t, err, ErrPromptPending)
	_, err = env.svc.Reply(ctx, "g", "b", "l")
	assert.ErrorIs(t, err, ErrNoPendingPrompt)

	out, err = env.svc.Reply(ctx, "g", "a", "左")
	require.NoError(t, err)
	assert.True(t, out.Moved)
	assert.Nil(t, out.Session.Pending)
}

func TestMovePromptExpiresLazily(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), nil)
	ctx := context.Background()
	env.seedGame("g", [][]int{{2, 2, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}, {0, 0, 0, 0}},
		domain.SeatedPlayer{UserID: "a", DisplayName: "Alice"},
		domain.SeatedPlayer{UserID: "b", DisplayName: "Bob"})

	_, err := env.svc.Move(ctx, "g", "a", "")
	require.NoError(t, err)

	env.now = env.now.Add(2 * time.Minute)
	out, err := env.svc.Move(ctx, "g", "b", "l")
	require.NoError(t, err)
	assert.True(t, out.Moved)
}

func TestResetForfeitsWagers(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), map[string]int64{"a": 90})
	ctx := context.Background()

	_, err := env.svc.Reset(ctx, "g", "a")
	assert.ErrorIs(t, err, ErrNotStarted)

	env.seedGame("g", winBoard(), domain.SeatedPlayer{UserID: "a", DisplayName: "Alice", Wager: 10})
	out, err := env.svc.Reset(ctx, "g", "a")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionNotStarted, out.Session.Status)
	assert.Empty(t, out.Session.Players)
	assert.Equal(t, int64(90), env.ledger.balance("a"))
	assert.Empty(t, env.ledger.credits)
}

func TestLeaderboardAndRecords(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), nil)
	ctx := context.Background()

	_, _, err := env.svc.Leaderboard(ctx, "wins", -1)
	assert.Equal(t, KindInvalidInput, KindOf(err))
	_, _, err = env.svc.Leaderboard(ctx, "bogus", 5)
	assert.Equal(t, KindInvalidInput, KindOf(err))

	env.seedGame("g", lossBoard(1024),
		domain.SeatedPlayer{UserID: "a", DisplayName: "Alice"},
		domain.SeatedPlayer{UserID: "b", DisplayName: "Bob"})
	_, err = env.svc.Move(ctx, "g", "a", "l")
	require.NoError(t, err)

	rec, err := env.svc.PlayerRecord(ctx, "z", "Zed")
	require.NoError(t, err)
	assert.Zero(t, rec.Wins)
	require.NotNil(t, env.store.Record("z"), "lookup creates an empty record")

	top, metric, err := env.svc.Leaderboard(ctx, "lose", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.MetricLosses, metric)
	require.Len(t, top, 3)
	assert.Equal(t, "a", top[0].UserID)
	assert.Equal(t, "b", top[1].UserID)

	top, _, err = env.svc.Leaderboard(ctx, "best", 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, int64(4), top[0].BestScore)
}

func TestBestRecord(t *testing.T) {
	env := newTestEnv(t, DefaultRules(), nil)
	ctx := context.Background()

	env.store.PutSession(&domain.Session{GuildID: "g1", Best: 300, HighestNumber: 64})
	env.store.PutSession(&domain.Session{GuildID: "g2", Best: 900, HighestNumber: 128,
		BestPlayers: []domain.BestPlayer{{UserID: "a", Name: "Alice"}}})

	local, err := env.svc.BestRecord(ctx, "g1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(300), local.Best)

	across, err := env.svc.BestRecord(ctx, "g1", true)
	require.NoError(t, err)
	assert.Equal(t, "g2", across.GuildID)
	assert.Equal(t, int64(900), across.Best)
	assert.Equal(t, "Alice", across.BestPlayers[0].Name)
}

func TestVersionConflictIsExternal(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()

	s1, err := store.LoadSession(ctx, "g", 4)
	require.NoError(t, err)
	s2, err := store.LoadSession(ctx, "g", 4)
	require.NoError(t, err)

	require.NoError(t, store.Commit(ctx, s1, nil))
	err = store.Commit(ctx, s2, nil)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, KindExternalFailure, KindOf(external("save session", err)))
}

func TestPrivateChatGuild(t *testing.T) {
	assert.Equal(t, "privateChat_7", PrivateChatGuild("7"))
}

func TestCanActIn(t *testing.T) {
	assert.True(t, CanActIn("-1001", "7"))
	assert.True(t, CanActIn("privateChat_7", "7"))
	assert.False(t, CanActIn("privateChat_7", "8"))
	assert.False(t, CanActIn("privateChat_70", "7"))
	assert.False(t, CanActIn("privateChat_", ""))
}

func TestParseDecision(t *testing.T) {
	assert.Equal(t, DecisionContinue, ParseDecision(" Continue "))
	assert.Equal(t, DecisionStop, ParseDecision("到此为止"))
	assert.Equal(t, Decision(""), ParseDecision("later"))
}
