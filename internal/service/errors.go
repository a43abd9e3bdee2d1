package service

import (
	"errors"
	"fmt"

	"number_merge_game/internal/game"
	"number_merge_game/internal/repository"
)

// Kind groups errors by how a caller should react to them.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindIllegalTransition
	KindInsufficientFunds
	KindExternalFailure
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindIllegalTransition:
		return "illegal_transition"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindExternalFailure:
		return "external_failure"
	}
	return "unknown"
}

// Invalid input
var (
	ErrNegativeWager = errors.New("wager must not be negative")
	ErrInvalidLimit  = errors.New("limit must not be negative")
	ErrInvalidMetric = errors.New("unknown leaderboard metric")
	ErrEmptyUserID   = errors.New("user id is required")
)

// Illegal transitions
var (
	ErrGameInProgress   = errors.New("game already in progress")
	ErrAlreadyPlaying   = errors.New("you are already playing in the running game")
	ErrAlreadySeated    = errors.New("already joined")
	ErrNotSeated        = errors.New("not joined")
	ErrNoPlayers        = errors.New("nobody has joined yet")
	ErrNotStarted       = errors.New("game has not started")
	ErrPromptPending    = errors.New("waiting for another player's input")
	ErrAwaitingDecision = errors.New("waiting for the last mover to decide whether to continue")
	ErrNoPendingPrompt  = errors.New("nothing is waiting for your input")
	ErrNotLastMover     = errors.New("only the last mover can decide")
)

// Funds
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWagerAboveCap     = errors.New("wager exceeds the maximum allowed")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// External failures
var (
	ErrExternal        = errors.New("external failure")
	ErrVersionConflict = repository.ErrVersionConflict
	ErrAccountNotFound = errors.New("account not found")
)

// external marks err as a collaborator failure while keeping it inspectable.
func external(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrExternal, op, err)
}

// ledgerError keeps insufficient funds visible as such and treats anything
// else coming out of the ledger as an outage.
func ledgerError(op string, err error) error {
	if errors.Is(err, ErrInsufficientFunds) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return external(op, err)
}

// KindOf classifies err. Unrecognised errors count as external failures.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrWagerAboveCap):
		return KindInsufficientFunds
	case errors.Is(err, ErrExternal), errors.Is(err, ErrVersionConflict), errors.Is(err, ErrAccountNotFound):
		return KindExternalFailure
	case errors.Is(err, ErrNegativeWager),
		errors.Is(err, ErrInvalidLimit),
		errors.Is(err, ErrInvalidMetric),
		errors.Is(err, ErrEmptyUserID),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, game.ErrInvalidGridSize),
		errors.Is(err, game.ErrInvalidDirection):
		return KindInvalidInput
	case errors.Is(err, ErrGameInProgress),
		errors.Is(err, ErrAlreadyPlaying),
		errors.Is(err, ErrAlreadySeated),
		errors.Is(err, ErrNotSeated),
		errors.Is(err, ErrNoPlayers),
		errors.Is(err, ErrNotStarted),
		errors.Is(err, ErrPromptPending),
		errors.Is(err, ErrAwaitingDecision),
		errors.Is(err, ErrNoPendingPrompt),
		errors.Is(err, ErrNotLastMover):
		return KindIllegalTransition
	}
	return KindExternalFailure
}
