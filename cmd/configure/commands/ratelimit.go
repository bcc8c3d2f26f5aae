package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/strideapp/stride/internal/config"
	"github.com/strideapp/stride/internal/database"
	"github.com/strideapp/stride/internal/models"
)

var ratelimitKeys = []string{models.RatelimitKeyHTTP, models.RatelimitKeySummary}

// NewRatelimitCmd creates the ratelimit configuration command with list and
// set subcommands. Two limits exist: the per-IP HTTP limit and the per-user
// summary generation limit.
func NewRatelimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Manage rate limit configuration",
		Long:  "List or update rate limits (e.g. 5-S, 100-M, 10-H). Stored in database.",
	}
	cmd.AddCommand(newRatelimitListCmd())
	cmd.AddCommand(newRatelimitSetCmd())
	return cmd
}

func newRatelimitListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List current rate limit configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer func() { _ = db.Close() }()
			repo := database.NewRatelimitConfigRepository(db)

			fmt.Println("Rate limit configuration:")
			for _, key := range ratelimitKeys {
				c, err := repo.Get(context.Background(), key)
				if err != nil {
					return fmt.Errorf("get ratelimit config %q: %w", key, err)
				}
				if c == nil {
					fmt.Printf("  %s: (not set, server default applies)\n", key)
					continue
				}
				fmt.Printf("  %s: %s\n", key, c.Rate)
			}
			return nil
		},
	}
}

func newRatelimitSetCmd() *cobra.Command {
	var key, rate string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set a rate limit",
		Long:  "Update a rate limit (e.g. 5-S, 100-M, 10-H). Stored in database and hot-reloaded by the server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rate = strings.TrimSpace(rate)
			if rate == "" {
				return fmt.Errorf("--rate is required (e.g. 5-S, 100-M)")
			}
			valid := false
			for _, k := range ratelimitKeys {
				if key == k {
					valid = true
					break
				}
			}
			if !valid {
				return fmt.Errorf("--key must be one of: %s", strings.Join(ratelimitKeys, ", "))
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer func() { _ = db.Close() }()
			repo := database.NewRatelimitConfigRepository(db)
			if err := repo.Set(context.Background(), &models.RatelimitConfig{ConfigKey: key, Rate: rate}); err != nil {
				return fmt.Errorf("set ratelimit config: %w", err)
			}
			fmt.Printf("Rate limit %q updated to %s.\n", key, rate)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", models.RatelimitKeyHTTP, "Which limit to set (http or summary)")
	cmd.Flags().StringVar(&rate, "rate", "", "Rate (e.g. 5-S, 100-M, 10-H) (required)")
	return cmd
}
