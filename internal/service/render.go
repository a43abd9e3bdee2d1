package service

import (
	"number_merge_game/internal/domain"
	"number_merge_game/internal/game"
)

type Overlay string

const (
	OverlayNone Overlay = ""
	OverlayWon  Overlay = "won"
	OverlayLost Overlay = "lost"
)

// RenderRequest is everything a presenter needs to draw the board. Turning
// it into an image is left to the presenter.
type RenderRequest struct {
	GuildID    string                `json:"guild_id"`
	Event      string                `json:"event"`
	Status     domain.SessionStatus  `json:"status"`
	GridSize   int                   `json:"grid_size"`
	Grid       [][]int               `json:"grid"`
	Score      int64                 `json:"score"`
	Best       int64                 `json:"best"`
	Overlay    Overlay               `json:"overlay,omitempty"`
	ImageType  string                `json:"image_type"`
	Players    []domain.SeatedPlayer `json:"players"`
	Prompt     *domain.Prompt        `json:"prompt,omitempty"`
	Settlement *SettlementResult     `json:"settlement,omitempty"`
}

// render snapshots sess. A non-nil grid replaces the session board, which
// lets a finished game show its last position after the reset.
func (s *SessionService) render(sess *domain.Session, event string, grid game.Grid) *RenderRequest {
	if grid == nil {
		grid = sess.Grid
	}
	r := &RenderRequest{
		GuildID:   sess.GuildID,
		Event:     event,
		Status:    sess.Status,
		GridSize:  sess.GridSize,
		Grid:      grid.Values(),
		Score:     sess.Score,
		Best:      sess.Best,
		ImageType: s.rules.ImageType,
		Players:   append([]domain.SeatedPlayer(nil), sess.Players...),
	}
	if sess.Pending != nil {
		p := *sess.Pending
		r.Prompt = &p
	}
	if sess.IsWon && !sess.IsKeepPlaying {
		r.Overlay = OverlayWon
	}
	return r
}

func (s *SessionService) outcome(sess *domain.Session, event string, grid game.Grid) *Outcome {
	return &Outcome{Session: sess.Clone(), Render: s.render(sess, event, grid)}
}
