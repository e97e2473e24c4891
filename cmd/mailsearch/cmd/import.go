package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mailsearch/internal/db"
	"mailsearch/internal/delivery/storage"
)

func (a *app) newImportCmd() *cobra.Command {
	var (
		mailboxName string
		flags       db.Flags
	)

	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Append RFC 5322 message files to a mailbox",
		Long: `Append message files to a mailbox of the selected user. The user and
the mailbox are created when missing. Files are appended in the order given,
so UIDs follow argument order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if mailboxName == "" {
				mailboxName = a.cfg.Import.Mailbox
			}

			database, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			stor := storage.NewStorage(database, a.logger)
			for _, path := range args {
				raw, err := os.ReadFile(filepath.Clean(path))
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				uid, err := stor.Deliver(ctx, a.user, mailboxName, raw, flags)
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
				a.logger.Info("message imported", zap.String("file", path), zap.Uint64("uid", uid))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d messages into %s/%s\n", len(args), a.user, mailboxName)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mailboxName, "mailbox", "m", "", "target mailbox (default: import.mailbox from the config)")
	cmd.Flags().BoolVar(&flags.Seen, "seen", false, "mark imported messages \\Seen")
	cmd.Flags().BoolVar(&flags.Flagged, "flagged", false, "mark imported messages \\Flagged")
	cmd.Flags().BoolVar(&flags.Recent, "recent", true, "mark imported messages \\Recent")
	return cmd
}
