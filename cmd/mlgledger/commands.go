package main

import (
	"context"
	"fmt"
	"time"

	"github.com/natebag/MLG-BETA/internal/catalog"
	"github.com/natebag/MLG-BETA/internal/clock"
	"github.com/natebag/MLG-BETA/internal/config"
	"github.com/natebag/MLG-BETA/internal/gate"
	"github.com/natebag/MLG-BETA/internal/janitor"
	"github.com/natebag/MLG-BETA/internal/ledger"
	"github.com/natebag/MLG-BETA/internal/migration"
	"github.com/natebag/MLG-BETA/internal/observability"
	"github.com/natebag/MLG-BETA/internal/quota"
	"github.com/natebag/MLG-BETA/internal/ratelimit"
	"github.com/natebag/MLG-BETA/internal/server"
	"github.com/natebag/MLG-BETA/internal/wallet"
	"github.com/natebag/MLG-BETA/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"
)

const migrateTimeout = 2 * time.Minute

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mlgledger",
		Short:         "Token-gated action ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newCatalogCommand())

	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service and the quota janitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				// Core infrastructure
				config.Module,
				observability.Module,
				clock.Module,
				db.Module,
				migration.Module,

				// Domains
				catalog.Module,
				quota.Module,
				ledger.Module,
				wallet.Module,
				gate.Module,
				ratelimit.Module,
				janitor.Module,

				server.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				fx.NopLogger,
				config.Module,
				observability.Module,
				db.Module,
				migration.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return err
			}
			return app.Stop(ctx)
		},
	}
}

func newCatalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the resolved action catalog as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			c, err := catalog.Provide(cfg)
			if err != nil {
				return fmt.Errorf("load catalog: %w", err)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(c.Config(cfg.TokenDecimals)); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
