package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the schema and the default user and mailbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			database, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			userID, err := database.GetOrCreateUser(ctx, a.user)
			if err != nil {
				return fmt.Errorf("create user %s: %w", a.user, err)
			}
			mbox, err := database.GetOrCreateMailbox(ctx, userID, a.cfg.Import.Mailbox)
			if err != nil {
				return fmt.Errorf("create mailbox %s: %w", a.cfg.Import.Mailbox, err)
			}

			a.logger.Info("store initialized",
				zap.String("driver", a.cfg.Database.Driver),
				zap.String("user", a.user),
				zap.String("mailbox", mbox.Name))
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s/%s\n", a.user, mbox.Name)
			return nil
		},
	}
}
