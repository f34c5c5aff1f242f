package commands

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newQuotaCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect and grant usage quota",
	}
	cmd.AddCommand(newQuotaGrantCommand(opts), newQuotaBalanceCommand(opts))
	return cmd
}

func newQuotaGrantCommand(opts *rootOptions) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "grant <user-id> <amount>",
		Short: "Add quota to an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("invalid amount %q", args[1])
			}
			if key == "" {
				key = "grant:" + uuid.NewString()
			}

			ctx := cmd.Context()
			a, err := bootstrap(ctx, opts.configFile)
			if err != nil {
				return err
			}
			defer a.close()
			quota, err := a.quota()
			if err != nil {
				return err
			}
			if err := quota.Grant(ctx, args[0], amount, key); err != nil {
				return err
			}
			balance, err := quota.Balance(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %d to %s (key %s), balance %d\n", amount, args[0], key, balance)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "idempotency key; repeating a key grants once")
	return cmd
}

func newQuotaBalanceCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <user-id>",
		Short: "Print an account balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, opts.configFile)
			if err != nil {
				return err
			}
			defer a.close()
			quota, err := a.quota()
			if err != nil {
				return err
			}
			balance, err := quota.Balance(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), balance)
			return nil
		},
	}
}
