package commands

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/agency-service/internal/cli/clierrors"
	"github.com/otherjamesbrown/agency-service/internal/recovery"
)

// RecoveryCommand groups password reset token housekeeping.
func RecoveryCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recovery",
		Short: "Password reset token housekeeping",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Remove expired reset tokens from Redis and count the live ones",
		Long: `sweep runs one pass of the reset token sweeper against the Redis token
store. Redis expires token keys itself, so the removed count is normally 0;
the pending count shows how many tokens are still redeemable.

The in-memory token store lives inside the API process and is swept there.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if cfg.RedisAddr == "" {
				return clierrors.NewValidationError("redis address is not configured",
					"Pass --redis-addr or set AGENCY_CLI_REDIS_ADDR.")
			}

			client := redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			defer client.Close()

			ctx := cmd.Context()
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := client.Ping(pingCtx).Err(); err != nil {
				return clierrors.NewServiceUnavailableError("redis", err)
			}

			store := recovery.NewRedisStore(client)
			removed := recovery.NewSweeper(store, time.Minute, g.logger()).SweepOnce(ctx)
			pending, err := store.Pending(ctx)
			if err != nil {
				return clierrors.NewOperationError("recovery sweep", err)
			}

			return emit(cmd.OutOrStdout(), cfg, result{
				command: "recovery sweep",
				headers: []string{"REMOVED", "PENDING"},
				rows:    [][]string{{strconv.Itoa(removed), strconv.Itoa(pending)}},
				data:    map[string]int{"removed": removed, "pending": pending},
			})
		},
	})
	return cmd
}
