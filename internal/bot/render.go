package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"number_merge_game/internal/domain"
	"number_merge_game/internal/service"
)

// RenderText draws a render request as an HTML message with a monospace
// board.
func RenderText(r *service.RenderRequest) string {
	if r == nil {
		return ""
	}
	var sb strings.Builder

	switch r.Overlay {
	case service.OverlayWon:
		sb.WriteString("🎉 <b>2048!</b>\n")
	case service.OverlayLost:
		sb.WriteString("💀 <b>Game over</b>\n")
	}
	fmt.Fprintf(&sb, "Score: <b>%d</b>  Best: <b>%d</b>\n", r.Score, r.Best)

	if len(r.Grid) > 0 {
		sb.WriteString("<pre>")
		sb.WriteString(gridText(r.Grid))
		sb.WriteString("</pre>\n")
	}

	if len(r.Players) > 0 {
		names := make([]string, 0, len(r.Players))
		for _, p := range r.Players {
			name := html.EscapeString(p.DisplayName)
			if p.Wager > 0 {
				name += fmt.Sprintf(" (%d)", p.Wager)
			}
			names = append(names, name)
		}
		sb.WriteString("Players: " + strings.Join(names, ", ") + "\n")
	}

	if r.Prompt != nil {
		switch r.Prompt.Kind {
		case domain.PromptContinueDecision:
			sb.WriteString("Continue playing? Reply <code>继续游戏</code> / <code>continue</code> or <code>到此为止</code> / <code>stop</code>.\n")
		case domain.PromptMoveInput:
			sb.WriteString("Send your directions.\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// gridText lays the board out in fixed-width cells, dots for empty tiles.
func gridText(grid [][]int) string {
	width := 1
	for _, row := range grid {
		for _, v := range row {
			if n := len(strconv.Itoa(v)); n > width {
				width = n
			}
		}
	}

	var sb strings.Builder
	for i, row := range grid {
		cells := make([]string, len(row))
		for j, v := range row {
			s := "."
			if v != 0 {
				s = strconv.Itoa(v)
			}
			cells[j] = fmt.Sprintf("%*s", width, s)
		}
		sb.WriteString(strings.Join(cells, " "))
		if i < len(grid)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func settlementText(s *service.SettlementResult) string {
	if s == nil || len(s.Payouts) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range s.Payouts {
		switch {
		case p.Credited > 0:
			fmt.Fprintf(&sb, "%s +%d\n", html.EscapeString(p.Name), p.Credited)
		case p.Recorded < 0:
			fmt.Fprintf(&sb, "%s %d\n", html.EscapeString(p.Name), p.Recorded)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
