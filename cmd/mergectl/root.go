package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"number_merge_game/internal/db"
	"number_merge_game/internal/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mergectl",
	Short: "Operator tool for the group 2048 service",
	Long:  `mergectl applies migrations, funds accounts and inspects player records directly in PostgreSQL.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		level, _ := cmd.Flags().GetString("log-level")
		logger.Init(level, false)
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("dsn", "", "PostgreSQL DSN (defaults to DATABASE_URL)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level")
}

// openPool connects with --dsn or DATABASE_URL.
func openPool(cmd *cobra.Command) (*pgxpool.Pool, error) {
	dsn, _ := cmd.Flags().GetString("dsn")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	return db.Open(ctx, dsn)
}
