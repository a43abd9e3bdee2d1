package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatsFormat(t *testing.T) {
	st := &Stats{
		TotalPlayers:       12,
		ActivePlayersToday: 3,
		SessionsInProgress: 2,
		PendingPrompts:     1,
		EscrowHeld:         40,
		TotalWagered:       500,
		WageredToday:       50,
		FailedCredits:      1,
	}
	out := st.Format()

	assert.Contains(t, out, "Players:            12 (3 active today)")
	assert.Contains(t, out, "Sessions running:   2 (1 waiting on a prompt)")
	assert.Contains(t, out, "Wagered:            500 (50 today)")
	assert.Len(t, strings.Split(out, "\n"), 8)
}
