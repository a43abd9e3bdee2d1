package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merge_commands_total",
			Help: "Session commands handled, by command and outcome",
		},
		[]string{"command", "outcome"},
	)
	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "merge_command_duration_seconds",
			Help:    "Time spent handling a session command including lock wait",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	SettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merge_settlements_total",
			Help: "Settlements applied, by path",
		},
		[]string{"path"},
	)
	LedgerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merge_ledger_failures_total",
			Help: "Credits or compensations the ledger rejected after the session was saved",
		},
		[]string{"tx_type"},
	)
	PromptsExpired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merge_prompts_expired_total",
			Help: "Prompts resolved because their deadline passed",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(CommandsTotal, CommandDuration, SettlementsTotal, LedgerFailures, PromptsExpired)
}

func observeCommand(command string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	CommandsTotal.WithLabelValues(command, outcome).Inc()
	CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}
