package bot

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"number_merge_game/internal/repository"
	"number_merge_game/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type walletStub struct {
	mu       sync.Mutex
	balances map[string]int64
}

func (w *walletStub) Debit(_ context.Context, userID string, amount int64, _ string, _ map[string]any) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.balances[userID] < amount {
		return w.balances[userID], service.ErrInsufficientFunds
	}
	w.balances[userID] -= amount
	return w.balances[userID], nil
}

func (w *walletStub) Credit(_ context.Context, userID string, amount int64, _ string, _ map[string]any) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balances[userID] += amount
	return w.balances[userID], nil
}

type sentLog struct {
	mu   sync.Mutex
	msgs []tgbotapi.MessageConfig
}

func (s *sentLog) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		s.msgs = append(s.msgs, m)
	}
	return tgbotapi.Message{}, nil
}

func newTestBot(t *testing.T) (*GameBot, *sentLog, *walletStub) {
	t.Helper()
	wallet := &walletStub{balances: map[string]int64{"1": 100, "2": 5}}
	svc := service.NewSessionService(repository.NewMemoryStore(), wallet, service.DefaultRules(),
		service.WithRand(rand.New(rand.NewPCG(3, 3))))
	sent := &sentLog{}
	return newGameBot(sent, svc), sent, wallet
}

var groupChat = &tgbotapi.Chat{ID: -1001, Type: "group"}

func userFor(id int64) *tgbotapi.User {
	return &tgbotapi.User{ID: id, UserName: fmt.Sprintf("user%d", id)}
}

func command(from int64, cmd, args string) *tgbotapi.Message {
	text := cmd
	if args != "" {
		text += " " + args
	}
	return &tgbotapi.Message{
		MessageID: 10,
		From:      userFor(from),
		Chat:      groupChat,
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

func text(from int64, body string) *tgbotapi.Message {
	return &tgbotapi.Message{MessageID: 11, From: userFor(from), Chat: groupChat, Text: body}
}

func TestGuildFor(t *testing.T) {
	assert.Equal(t, "-1001", guildFor(text(1, "hi")))

	private := &tgbotapi.Message{From: userFor(7), Chat: &tgbotapi.Chat{ID: 7, Type: "private"}}
	assert.Equal(t, service.PrivateChatGuild("7"), guildFor(private))
}

func TestGameBot_JoinAndStart(t *testing.T) {
	b, _, wallet := newTestBot(t)
	ctx := context.Background()

	assert.Contains(t, b.respond(ctx, command(1, "/join", "abc")), "whole number")

	reply := b.respond(ctx, command(1, "/join", "10"))
	assert.Contains(t, reply, "user1 joined")
	assert.Equal(t, int64(90), wallet.balances["1"])

	reply = b.respond(ctx, command(2, "/join", "10"))
	assert.Contains(t, reply, "insufficient funds")

	reply = b.respond(ctx, command(1, "/start2048", ""))
	assert.Contains(t, reply, "<pre>")
	assert.Contains(t, reply, "Score: <b>0</b>")

	reply = b.respond(ctx, command(1, "/join", ""))
	assert.Contains(t, reply, "already playing")
}

func TestGameBot_MovePromptThenText(t *testing.T) {
	b, _, _ := newTestBot(t)
	ctx := context.Background()

	b.respond(ctx, command(1, "/join", ""))
	b.respond(ctx, command(1, "/start2048", ""))

	// chatter is ignored while nothing is pending
	assert.Empty(t, b.respond(ctx, text(1, "hello")))

	reply := b.respond(ctx, command(1, "/move", ""))
	assert.Contains(t, reply, "Send your directions")

	assert.Empty(t, b.respond(ctx, text(2, "l")), "other users cannot answer the prompt")

	reply = b.respond(ctx, text(1, "l"))
	assert.Contains(t, reply, "Score:")

	reply = b.respond(ctx, command(1, "/decide", "continue"))
	assert.Contains(t, reply, "nothing is waiting")
}

func TestGameBot_Records(t *testing.T) {
	b, _, _ := newTestBot(t)
	ctx := context.Background()

	assert.Equal(t, "No record yet.", b.respond(ctx, command(1, "/best", "")))
	assert.Equal(t, "No record yet.", b.respond(ctx, command(1, "/best", "-a")))

	reply := b.respond(ctx, command(1, "/record", ""))
	assert.Contains(t, reply, "<b>user1</b>")
	assert.Contains(t, reply, "Wins: 0")

	msg := command(1, "/record", "")
	msg.ReplyToMessage = text(2, "hey")
	assert.Contains(t, b.respond(ctx, msg), "<b>user2</b>")

	reply = b.respond(ctx, command(1, "/top", "wins 5"))
	assert.Contains(t, reply, "Top by wins")
	assert.Contains(t, reply, "user1: 0")

	assert.Contains(t, b.respond(ctx, command(1, "/top", "nope")), "unknown leaderboard metric")
	assert.Contains(t, b.respond(ctx, command(1, "/help", "")), "/join")
}

func TestGameBot_HandleMessageRepliesInHTML(t *testing.T) {
	b, sent, _ := newTestBot(t)

	b.handleMessage(command(1, "/join", "5"))
	b.handleMessage(text(1, "just chatting"))

	require.Len(t, sent.msgs, 1)
	assert.Equal(t, "HTML", sent.msgs[0].ParseMode)
	assert.Equal(t, 10, sent.msgs[0].ReplyToMessageID)
	assert.Equal(t, groupChat.ID, sent.msgs[0].ChatID)
}

func TestErrorText(t *testing.T) {
	assert.Equal(t, "❌ not joined", errorText(service.ErrNotSeated))

	masked := errorText(fmt.Errorf("%w: dial tcp: refused", service.ErrExternal))
	assert.NotContains(t, masked, "dial tcp")

	assert.Contains(t, errorText(fmt.Errorf("%w: <b>", service.ErrNotSeated)), "&lt;b&gt;")
	assert.NotContains(t, errorText(errors.New("boom")), "boom")
}
