package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"number_merge_game/internal/repository"
	"number_merge_game/internal/service"

	"github.com/spf13/cobra"
)

func sessionService(cmd *cobra.Command) (*service.SessionService, func(), error) {
	pool, err := openPool(cmd)
	if err != nil {
		return nil, nil, err
	}
	svc := service.NewSessionService(repository.NewPostgresStore(pool), service.NewBalanceService(pool), service.DefaultRules())
	return svc, pool.Close, nil
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard [wins|losses|best_score]",
	Short: "Print the player leaderboard",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		metric := ""
		if len(args) == 1 {
			metric = args[0]
		}

		svc, closeFn, err := sessionService(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		recs, m, err := svc.Leaderboard(cmd.Context(), metric, limit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "#\tUSER\tNAME\t%s\n", m)
		for i, r := range recs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", i+1, r.UserID, r.Username, m.Value(r))
		}
		return w.Flush()
	},
}

var recordCmd = &cobra.Command{
	Use:   "record <user-id>",
	Short: "Print one player's record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := sessionService(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		rec, err := svc.PlayerRecord(cmd.Context(), args[0], "")
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session <guild-id>",
	Short: "Print the stored session of a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := sessionService(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		sess, _, err := svc.State(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(sess, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	leaderboardCmd.Flags().Int("limit", 10, "Number of players")
	rootCmd.AddCommand(leaderboardCmd, recordCmd, sessionCmd)
}
