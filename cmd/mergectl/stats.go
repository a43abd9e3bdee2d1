package main

import (
	"encoding/json"
	"fmt"

	"number_merge_game/internal/service"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print platform statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := openPool(cmd)
		if err != nil {
			return err
		}
		defer pool.Close()

		stats, err := service.NewAdminService(pool).GetStats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), stats.Format())
		return nil
	},
}

var playerCmd = &cobra.Command{
	Use:   "player <user-id|@username>",
	Short: "Show a player's record and balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := openPool(cmd)
		if err != nil {
			return err
		}
		defer pool.Close()

		info, err := service.NewAdminService(pool).GetPlayer(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("player %s: %w", args[0], err)
		}
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd, playerCmd)
}
