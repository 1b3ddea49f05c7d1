package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Skotchmaster/shop_checkout/internal/config"
	"github.com/Skotchmaster/shop_checkout/internal/payment"
	"github.com/Skotchmaster/shop_checkout/internal/repo"
	"github.com/Skotchmaster/shop_checkout/internal/service"
	"github.com/Skotchmaster/shop_checkout/pkg/db"
	"github.com/Skotchmaster/shop_checkout/pkg/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "reconcilectl",
		Short:         "One-shot maintenance runs of the checkout reconciliation jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().Duration("timeout", 5*time.Minute, "Abort the run after this long")

	rootCmd.AddCommand(syncCouponsCmd())
	rootCmd.AddCommand(sweepOrphansCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every subcommand needs: a context carrying the logger and an
// open store.
type env struct {
	cfg    config.ServiceConfig
	logger *slog.Logger
	store  *repo.GormRepo
}

func setup(cmd *cobra.Command) (context.Context, *env, func(), error) {
	cfg := config.LoadJobs()
	logger := logging.New(cfg.ServiceName, cfg.LogLevel).With("command", cmd.Name())

	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(logging.IntoContext(cmd.Context(), logger), timeout)

	gdb, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := db.Close(gdb); err != nil {
			logger.Error("db_close_error", "error", err)
		}
		cancel()
	}
	return ctx, &env{cfg: cfg, logger: logger, store: &repo.GormRepo{DB: gdb}}, cleanup, nil
}

func syncCouponsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync-coupons",
		Short: "Create processor coupons for promo codes that have none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, cleanup, err := setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			batch, _ := cmd.Flags().GetInt("batch")
			syncer := &service.CouponSyncer{
				Repo:      env.store,
				Gateway:   payment.NewStripeGateway(env.cfg.StripeSecretKey, env.cfg.StripeWebhookSecret),
				Currency:  env.cfg.Currency,
				BatchSize: batch,
			}
			rep, err := syncer.SyncOnce(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, rep)
		},
	}
	cmd.Flags().Int("batch", 100, "Maximum promo codes to sync in this run")
	return cmd
}

func sweepOrphansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep-orphans",
		Short: "Fail pending orders that never received a payment session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, cleanup, err := setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			after, _ := cmd.Flags().GetDuration("after")
			if after <= 0 {
				after = env.cfg.OrphanAfter
			}
			batch, _ := cmd.Flags().GetInt("batch")
			sweeper := &service.OrphanSweeper{Repo: env.store, After: after, BatchSize: batch}

			n, err := sweeper.SweepOnce(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{"failed": n})
		},
	}
	cmd.Flags().Duration("after", 0, "Minimum order age (default ORPHAN_AFTER)")
	cmd.Flags().Int("batch", 200, "Maximum orders to inspect in this run")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
