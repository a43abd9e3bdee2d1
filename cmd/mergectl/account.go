package main

import (
	"fmt"
	"os"
	"strconv"

	"number_merge_game/internal/service"

	"github.com/spf13/cobra"
)

var seedAccountCmd = &cobra.Command{
	Use:   "seed-account <user-id> <amount>",
	Short: "Credit an account, creating it if needed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || amount <= 0 {
			return fmt.Errorf("amount must be a positive integer, got %q", args[1])
		}

		pool, err := openPool(cmd)
		if err != nil {
			return err
		}
		defer pool.Close()

		balance, err := service.NewBalanceService(pool).Credit(cmd.Context(), args[0], amount, "admin_credit", map[string]any{"source": "mergectl"})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %s balance=%d\n", args[0], balance)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id> [name]",
	Short: "Print a JWT for testing the HTTP API",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetString("secret")
		if secret == "" {
			return fmt.Errorf("--secret or JWT_SECRET is required")
		}
		service.InitJWT(secret)

		name := ""
		if len(args) == 2 {
			name = args[1]
		}
		token, err := service.GenerateJWT(args[0], name)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var failedCreditsCmd = &cobra.Command{
	Use:   "failed-credits",
	Short: "List credits that could not be paid out",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		pool, err := openPool(cmd)
		if err != nil {
			return err
		}
		defer pool.Close()

		entries, err := service.NewAuditService(pool).FailedCredits(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No failed credits.")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%s user=%s guild=%s %v\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.UserID, e.GuildID, e.Details)
		}
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("secret", "", "JWT secret (defaults to JWT_SECRET)")
	tokenCmd.PreRun = func(cmd *cobra.Command, args []string) {
		if s, _ := cmd.Flags().GetString("secret"); s == "" {
			_ = cmd.Flags().Set("secret", os.Getenv("JWT_SECRET"))
		}
	}
	failedCreditsCmd.Flags().Int("limit", 50, "Maximum entries to show")
	rootCmd.AddCommand(seedAccountCmd, tokenCmd, failedCreditsCmd)
}
