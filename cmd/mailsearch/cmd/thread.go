package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mailsearch/internal/search"
)

func (a *app) newThreadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thread <mailbox> <algorithm> <charset> <search-key>...",
		Short: "Run an IMAP THREAD against a mailbox",
		Long: `Run an IMAP THREAD (RFC 5256) against a mailbox and print the untagged
response. ORDEREDSUBJECT is supported.

Example:
  mailsearch thread INBOX ORDEREDSUBJECT UTF-8 SINCE 1-Jan-2024`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.run(cmd, args[0], args[1:], search.ModeThread)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatThreads(res, a.useUID))
			return nil
		},
	}
}
