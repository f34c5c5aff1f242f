package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/studio233/batchd/billing"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "migrate",
		Args:    cobra.NoArgs,
		Aliases: []string{"m"},
		Short:   "Create the quota ledger tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, opts.configFile)
			if err != nil {
				return err
			}
			defer a.close()

			if a.data.DB == nil {
				return errors.New("data.database.source is not configured")
			}
			ledger := billing.NewLedger(a.data.DB, a.cfg.Data.Database.Driver, a.cfg.Billing.InitialGrant)
			if err := ledger.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ledger schema is up to date")
			return nil
		},
	}
}
