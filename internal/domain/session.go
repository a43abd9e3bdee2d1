package domain

import (
	"time"

	"number_merge_game/internal/game"
)

// SessionStatus - статус сессии группы
type SessionStatus string

const (
	SessionNotStarted SessionStatus = "not_started"
	SessionInProgress SessionStatus = "in_progress"
)

// PromptKind - какой ответ ожидается от игрока
type PromptKind string

const (
	PromptMoveInput        PromptKind = "move_input"
	PromptContinueDecision PromptKind = "continue_decision"
)

// Prompt is an outstanding question addressed to one player. While it is set
// the session accepts only that player's answer.
type Prompt struct {
	Kind        PromptKind `json:"kind"`
	UserID      string     `json:"user_id"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	Deadline    time.Time  `json:"deadline"`
}

func (p *Prompt) Expired(now time.Time) bool {
	return p != nil && !p.Deadline.IsZero() && !now.Before(p.Deadline)
}

// SeatedPlayer - игрок за столом и его ставка в эскроу
type SeatedPlayer struct {
	UserID      string `db:"user_id" json:"user_id"`
	DisplayName string `db:"display_name" json:"display_name"`
	Wager       int64  `db:"wager" json:"wager"`
}

type BestPlayer struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// Session is the single game a chat group plays. It is created on first use
// and reset in place, never deleted.
type Session struct {
	GuildID       string         `db:"guild_id" json:"guild_id"`
	Status        SessionStatus  `db:"status" json:"status"`
	Grid          game.Grid      `db:"grid" json:"grid"`
	GridSize      int            `db:"grid_size" json:"grid_size"`
	Score         int64          `db:"score" json:"score"`
	Best          int64          `db:"best" json:"best"`
	HighestNumber int            `db:"highest_number" json:"highest_number"`
	BestPlayers   []BestPlayer   `db:"best_players" json:"best_players"`
	IsWon         bool           `db:"is_won" json:"is_won"`
	IsKeepPlaying bool           `db:"is_keep_playing" json:"is_keep_playing"`
	Players       []SeatedPlayer `json:"players"`
	LastMover     string         `db:"last_mover" json:"last_mover,omitempty"`
	Pending       *Prompt        `db:"pending" json:"pending,omitempty"`
	Version       int64          `db:"version" json:"version"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// NewSession returns the blank state a group starts from.
func NewSession(guildID string, gridSize int) *Session {
	return &Session{
		GuildID:  guildID,
		Status:   SessionNotStarted,
		GridSize: gridSize,
	}
}

// Seat returns the seat of userID or nil.
func (s *Session) Seat(userID string) *SeatedPlayer {
	for i := range s.Players {
		if s.Players[i].UserID == userID {
			return &s.Players[i]
		}
	}
	return nil
}

func (s *Session) RemoveSeat(userID string) (SeatedPlayer, bool) {
	for i, p := range s.Players {
		if p.UserID == userID {
			s.Players = append(s.Players[:i], s.Players[i+1:]...)
			return p, true
		}
	}
	return SeatedPlayer{}, false
}

// TotalEscrow is the sum of all wagers currently held for this session.
func (s *Session) TotalEscrow() int64 {
	var total int64
	for _, p := range s.Players {
		total += p.Wager
	}
	return total
}

// IsClassic reports whether the board size is the one that scores and pays out.
func (s *Session) IsClassic() bool {
	return s.GridSize == game.ClassicGridSize
}

// AwaitingDecision is the won-but-undecided sub-state.
func (s *Session) AwaitingDecision() bool {
	return s.IsWon && !s.IsKeepPlaying && s.Pending != nil && s.Pending.Kind == PromptContinueDecision
}

// RenameBestPlayer refreshes the display name stored with the best record.
func (s *Session) RenameBestPlayer(userID, name string) bool {
	changed := false
	for i := range s.BestPlayers {
		if s.BestPlayers[i].UserID == userID && s.BestPlayers[i].Name != name {
			s.BestPlayers[i].Name = name
			changed = true
		}
	}
	return changed
}

// Reset returns the session to NotStarted. Seats are dropped without any
// ledger movement; best, highest number and best players survive.
func (s *Session) Reset() {
	s.Status = SessionNotStarted
	s.Grid = nil
	s.Score = 0
	s.IsWon = false
	s.IsKeepPlaying = false
	s.Players = nil
	s.LastMover = ""
	s.Pending = nil
}

// Clone deep-copies the aggregate.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Grid = s.Grid.Clone()
	if s.BestPlayers != nil {
		cp.BestPlayers = append([]BestPlayer(nil), s.BestPlayers...)
	}
	if s.Players != nil {
		cp.Players = append([]SeatedPlayer(nil), s.Players...)
	}
	if s.Pending != nil {
		p := *s.Pending
		cp.Pending = &p
	}
	return &cp
}
