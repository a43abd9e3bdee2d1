package game

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrInvalidDirection = errors.New("invalid direction")

type Direction int

const (
	Up Direction = iota + 1
	Down
	Left
	Right
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return "unknown"
}

// directionTokens maps every accepted synonym onto a direction: the Chinese
// glyph, its pinyin initial and the English initial.
var directionTokens = map[rune]Direction{
	'上': Up, 's': Up, 'u': Up,
	'下': Down, 'x': Down, 'd': Down,
	'左': Left, 'z': Left, 'l': Left,
	'右': Right, 'y': Right, 'r': Right,
}

// ParseDirections turns a string of concatenated tokens into a move sequence.
// Whitespace is skipped; any unknown token rejects the whole input.
func ParseDirections(s string) ([]Direction, error) {
	var dirs []Direction
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		d, ok := directionTokens[unicode.ToLower(r)]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDirection, r)
		}
		dirs = append(dirs, d)
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("%w: empty sequence", ErrInvalidDirection)
	}
	return dirs, nil
}

// DirectionHelp lists the accepted tokens for user-facing messages.
func DirectionHelp() string {
	return strings.Join([]string{"上/s/u", "下/x/d", "左/z/l", "右/y/r"}, " ")
}
