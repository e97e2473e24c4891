package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mailsearch/internal/search"
)

func (a *app) newSortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sort <mailbox> <sort-criteria> [charset] <search-key>...",
		Short: "Run an IMAP SORT against a mailbox",
		Long: `Run an IMAP SORT (RFC 5256) against a mailbox and print the untagged
response.

Examples:
  mailsearch sort INBOX '(REVERSE DATE) UTF-8 ALL'
  mailsearch --uid sort INBOX '(SUBJECT ARRIVAL) UTF-8 UNSEEN'`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.run(cmd, args[0], args[1:], search.ModeSort)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatSort(res, a.useUID))
			return nil
		},
	}
}
