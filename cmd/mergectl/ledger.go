package main

import (
	"fmt"
	"text/tabwriter"

	"number_merge_game/internal/service"

	"github.com/spf13/cobra"
)

var roundCmd = &cobra.Command{
	Use:   "round <round-id>",
	Short: "List the credits booked by one settlement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := openPool(cmd)
		if err != nil {
			return err
		}
		defer pool.Close()

		txs, err := service.NewBalanceService(pool).GetRound(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(txs) == 0 {
			return fmt.Errorf("round %s not found", args[0])
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "USER\tTYPE\tAMOUNT\tAT")
		for _, tx := range txs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", tx.UserID, tx.Type, tx.Amount, tx.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit <user-id>",
	Short: "Show the audit trail of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		pool, err := openPool(cmd)
		if err != nil {
			return err
		}
		defer pool.Close()

		entries, err := service.NewAuditService(pool).ForUser(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %-16s %-8s guild=%s %v\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, e.Category, e.GuildID, e.Details)
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().Int("limit", 50, "Maximum entries to show")
	rootCmd.AddCommand(roundCmd, auditCmd)
}
