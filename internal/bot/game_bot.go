package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"number_merge_game/internal/domain"
	"number_merge_game/internal/game"
	"number_merge_game/internal/logger"
	"number_merge_game/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of the Bot API the game bot writes through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// GameBot plays group sessions over Telegram.
type GameBot struct {
	api      *tgbotapi.BotAPI
	sender   Sender
	sessions *service.SessionService
	stopCh   chan struct{}
	wg       sync.WaitGroup
	log      *slog.Logger
}

// NewGameBot creates a new game bot
func NewGameBot(token string, sessions *service.SessionService) (*GameBot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	b := newGameBot(api, sessions)
	b.api = api
	b.log.Info("game bot authorized", "username", api.Self.UserName)
	return b, nil
}

func newGameBot(sender Sender, sessions *service.SessionService) *GameBot {
	return &GameBot{
		sender:   sender,
		sessions: sessions,
		stopCh:   make(chan struct{}),
		log:      logger.With("component", "game_bot"),
	}
}

// Start starts the long-polling update loop
func (b *GameBot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("starting bot update loop")

	for {
		select {
		case <-b.stopCh:
			b.log.Info("stopping bot update loop")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}

			b.wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer b.wg.Done()
				b.handleMessage(msg)
			}(update.Message)
		}
	}
}

// Stop gracefully stops the bot
func (b *GameBot) Stop() {
	b.log.Info("stopping game bot...")
	close(b.stopCh)
	if b.api != nil {
		b.api.StopReceivingUpdates()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.log.Info("game bot stopped gracefully")
	case <-time.After(10 * time.Second):
		b.log.Warn("game bot shutdown timeout, some handlers may not have completed")
	}
}

// guildFor maps a chat to its session key.
func guildFor(msg *tgbotapi.Message) string {
	if msg.Chat == nil || msg.Chat.IsPrivate() {
		return service.PrivateChatGuild(strconv.FormatInt(msg.From.ID, 10))
	}
	return strconv.FormatInt(msg.Chat.ID, 10)
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (b *GameBot) handleMessage(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	response := b.respond(ctx, msg)
	if response == "" {
		return
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, response)
	reply.ParseMode = "HTML"
	reply.ReplyToMessageID = msg.MessageID

	if _, err := b.sender.Send(reply); err != nil {
		b.log.Error("error sending message", "err", err)
	}
}

// respond runs msg against the session service and returns the reply text.
// An empty reply means the message is ignored.
func (b *GameBot) respond(ctx context.Context, msg *tgbotapi.Message) string {
	guildID := guildFor(msg)
	userID := strconv.FormatInt(msg.From.ID, 10)
	name := displayName(msg.From)
	args := strings.TrimSpace(msg.CommandArguments())

	if !msg.IsCommand() {
		// free text only matters while a prompt waits for this user
		out, err := b.sessions.Reply(ctx, guildID, userID, msg.Text)
		if errors.Is(err, service.ErrNoPendingPrompt) {
			return ""
		}
		return b.outcomeText(out, err)
	}

	switch msg.Command() {
	case "help":
		return helpMessage()

	case "join":
		var wager int64
		if args != "" {
			n, err := strconv.ParseInt(args, 10, 64)
			if err != nil {
				return "❌ Wager must be a whole number."
			}
			wager = n
		}
		out, err := b.sessions.Join(ctx, guildID, userID, name, wager)
		if errors.Is(err, service.ErrAlreadyPlaying) {
			_, render, serr := b.sessions.State(ctx, guildID)
			if serr == nil {
				return "You are already playing.\n" + RenderText(render)
			}
		}
		if err != nil {
			return errorText(err)
		}
		return fmt.Sprintf("✅ %s joined (%d seated, wager %d).", html.EscapeString(name), len(out.Session.Players), wager)

	case "leave":
		out, err := b.sessions.Leave(ctx, guildID, userID)
		if err != nil {
			return errorText(err)
		}
		text := fmt.Sprintf("👋 %s left.", html.EscapeString(name))
		if out.Refunded > 0 {
			text += fmt.Sprintf(" Refunded %d.", out.Refunded)
		}
		return text + failuresText(out.Failures)

	case "start2048":
		size := 0
		if args != "" {
			n, err := strconv.Atoi(args)
			if err != nil {
				return "❌ Grid size must be a number."
			}
			size = n
		}
		out, err := b.sessions.Start(ctx, guildID, userID, size)
		if err != nil {
			return errorText(err)
		}
		text := RenderText(out.Render)
		if out.Refunded > 0 {
			text += fmt.Sprintf("\nCasual board, %d in wagers returned.", out.Refunded)
		}
		return text + failuresText(out.Failures)

	case "reset":
		if _, err := b.sessions.Reset(ctx, guildID, userID); err != nil {
			return errorText(err)
		}
		return "🔄 Game reset, wagers on the table are lost."

	case "move":
		out, err := b.sessions.Move(ctx, guildID, userID, args)
		if err == nil && out.Prompt != nil && out.Prompt.Kind == domain.PromptMoveInput && out.Render == nil {
			return "Send your directions: " + html.EscapeString(game.DirectionHelp())
		}
		return b.outcomeText(out, err)

	case "decide":
		return b.outcomeText(b.sessions.Decide(ctx, guildID, userID, args))

	case "best":
		across := args == "-a"
		best, err := b.sessions.BestRecord(ctx, guildID, across)
		if err != nil {
			return errorText(err)
		}
		return bestText(best)

	case "top":
		return b.topText(ctx, args)

	case "record":
		target, targetName := userID, name
		if r := msg.ReplyToMessage; r != nil && r.From != nil {
			target, targetName = strconv.FormatInt(r.From.ID, 10), displayName(r.From)
		}
		rec, err := b.sessions.PlayerRecord(ctx, target, targetName)
		if err != nil {
			return errorText(err)
		}
		return recordText(rec, targetName)
	}
	return ""
}

func (b *GameBot) outcomeText(out *service.Outcome, err error) string {
	if err != nil {
		return errorText(err)
	}
	if out == nil {
		return ""
	}
	switch out.Decision {
	case service.DecisionRetry:
		left := out.Prompt.MaxAttempts - out.Prompt.Attempts
		return fmt.Sprintf("Please answer continue or stop (%d tries left).", left)
	case service.DecisionStop, service.DecisionExhausted, service.DecisionTimeout:
		return "🏁 Game over, thanks for playing."
	}

	text := RenderText(out.Render)
	if s := settlementText(out.Settlement); s != "" {
		text += "\n" + s
	}
	return text + failuresText(out.Failures)
}

func (b *GameBot) topText(ctx context.Context, args string) string {
	fields := strings.Fields(args)
	metric, limit := "", 0
	for _, f := range fields {
		if n, err := strconv.Atoi(f); err == nil {
			limit = n
			continue
		}
		metric = f
	}

	recs, m, err := b.sessions.Leaderboard(ctx, metric, limit)
	if err != nil {
		return errorText(err)
	}
	if len(recs) == 0 {
		return "No players yet."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>🏆 Top by %s</b>\n\n", m)
	for i, r := range recs {
		name := r.Username
		if name == "" {
			name = "id:" + r.UserID
		}
		fmt.Fprintf(&sb, "%d. %s: %d\n", i+1, html.EscapeString(name), m.Value(r))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func bestText(best *domain.BestRecord) string {
	if best == nil || best.Best == 0 {
		return "No record yet."
	}
	names := make([]string, 0, len(best.BestPlayers))
	for _, p := range best.BestPlayers {
		names = append(names, html.EscapeString(p.Name))
	}
	return fmt.Sprintf("🏅 Best: <b>%d</b>, highest tile %d\nBy: %s", best.Best, best.HighestNumber, strings.Join(names, ", "))
}

func recordText(rec *domain.PlayerRecord, name string) string {
	if name == "" {
		name = rec.Username
	}
	return fmt.Sprintf("<b>%s</b>\nWins: %d\nLosses: %d\nBest score: %d\nHighest tile: %d\nMoney change: %+d",
		html.EscapeString(name), rec.Wins, rec.Losses, rec.BestScore, rec.HighestNumber, rec.MoneyChange)
}

func failuresText(failures []service.LedgerFailure) string {
	if len(failures) == 0 {
		return ""
	}
	return fmt.Sprintf("\n⚠️ %d payment(s) could not be completed and were reported.", len(failures))
}

func errorText(err error) string {
	if service.KindOf(err) == service.KindExternalFailure {
		return "❌ Something went wrong, please try again later."
	}
	return "❌ " + html.EscapeString(err.Error())
}

func helpMessage() string {
	return `<b>🎮 2048 together</b>

/join [wager] - take a seat, optionally betting
/leave - leave before the game starts
/start2048 [size] - start (4 is classic, 5-8 casual)
/move &lt;directions&gt; - e.g. /move 上左 or /move ul
/decide &lt;continue|stop&gt; - after reaching 2048
/reset - abandon the game (wagers are lost)
/best [-a] - best score here or everywhere
/top [wins|losses|best] [n] - leaderboard
/record - your record (reply to someone for theirs)`
}
