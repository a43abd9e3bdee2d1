package domain

import "time"

// PlayerRecord holds lifetime statistics of one user across all groups.
type PlayerRecord struct {
	UserID        string    `db:"user_id" json:"user_id"`
	Username      string    `db:"username" json:"username"`
	Wins          int       `db:"wins" json:"wins"`
	Losses        int       `db:"losses" json:"losses"`
	BestScore     int64     `db:"best_score" json:"best_score"`
	HighestNumber int       `db:"highest_number" json:"highest_number"`
	MoneyChange   int64     `db:"money_change" json:"money_change"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// LeaderboardMetric - по какому полю строится рейтинг
type LeaderboardMetric string

const (
	MetricWins      LeaderboardMetric = "wins"
	MetricLosses    LeaderboardMetric = "losses"
	MetricBestScore LeaderboardMetric = "best_score"
)

// ParseMetric accepts the column names plus the short chat aliases.
func ParseMetric(s string) (LeaderboardMetric, bool) {
	switch s {
	case "", "wins", "win":
		return MetricWins, true
	case "losses", "lose", "loss":
		return MetricLosses, true
	case "best_score", "best", "bestScore":
		return MetricBestScore, true
	}
	return "", false
}

// Value reads the field the metric ranks by.
func (m LeaderboardMetric) Value(r *PlayerRecord) int64 {
	switch m {
	case MetricLosses:
		return int64(r.Losses)
	case MetricBestScore:
		return r.BestScore
	default:
		return int64(r.Wins)
	}
}

// Column is the player_records column backing the metric.
func (m LeaderboardMetric) Column() string {
	switch m {
	case MetricLosses:
		return "losses"
	case MetricBestScore:
		return "best_score"
	default:
		return "wins"
	}
}

// BestRecord is the best score ever reached by a group.
type BestRecord struct {
	GuildID       string       `json:"guild_id"`
	Best          int64        `json:"best"`
	HighestNumber int          `json:"highest_number"`
	BestPlayers   []BestPlayer `json:"best_players"`
}

// RecordDelta is a change to one PlayerRecord. Counters are added to the
// stored values and maxima only ever raise them, so deltas written by
// different groups at the same time all survive.
type RecordDelta struct {
	UserID        string `json:"user_id"`
	Username      string `json:"username,omitempty"` // empty keeps the stored name
	Wins          int    `json:"wins"`
	Losses        int    `json:"losses"`
	MoneyChange   int64  `json:"money_change"`
	BestScore     int64  `json:"best_score"`
	HighestNumber int    `json:"highest_number"`
}

// DiffRecord returns what turns before into after. A nil before stands for
// a record that does not exist yet.
func DiffRecord(before, after *PlayerRecord) RecordDelta {
	var base PlayerRecord
	if before != nil {
		base = *before
	}
	d := RecordDelta{
		UserID:      after.UserID,
		Wins:        after.Wins - base.Wins,
		Losses:      after.Losses - base.Losses,
		MoneyChange: after.MoneyChange - base.MoneyChange,
	}
	if before == nil || after.Username != base.Username {
		d.Username = after.Username
	}
	if after.BestScore > base.BestScore {
		d.BestScore = after.BestScore
	}
	if after.HighestNumber > base.HighestNumber {
		d.HighestNumber = after.HighestNumber
	}
	return d
}

// Apply folds d into r.
func (d RecordDelta) Apply(r *PlayerRecord) {
	if d.Username != "" {
		r.Username = d.Username
	}
	r.Wins += d.Wins
	r.Losses += d.Losses
	r.MoneyChange += d.MoneyChange
	r.BestScore = max(r.BestScore, d.BestScore)
	r.HighestNumber = max(r.HighestNumber, d.HighestNumber)
}
