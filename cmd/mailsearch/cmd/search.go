package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mailsearch/internal/search"
)

func (a *app) newSearchCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "search <mailbox> <search-key>...",
		Short: "Run an IMAP SEARCH against a mailbox",
		Long: `Run an IMAP SEARCH against a mailbox and print the untagged response.

With --all every mailbox of the user is searched concurrently and the mailbox
argument is omitted.

Examples:
  mailsearch search INBOX UNSEEN
  mailsearch search INBOX 'OR FROM alice (SUBJECT "project plan" SINCE 1-Jan-2024)'
  mailsearch --uid search INBOX 'MODSEQ 120 FLAGGED'
  mailsearch search --all 'TEXT invoice'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				return a.searchAll(cmd, args)
			}
			if len(args) < 1 {
				return fmt.Errorf("mailbox argument is required")
			}
			res, err := a.run(cmd, args[0], args[1:], search.ModeSearch)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatSearch(res, a.useUID))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "search every mailbox of the user")
	return cmd
}

// run executes one command against a named mailbox.
func (a *app) run(cmd *cobra.Command, mailboxName string, args []string, mode search.Mode) (*result, error) {
	ctx := cmd.Context()
	tokens, err := tokenizeArgs(args)
	if err != nil {
		return nil, err
	}
	opts, err := a.engineOptions()
	if err != nil {
		return nil, err
	}

	database, err := a.openDB(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = database.Close() }()

	mbox, err := a.mailbox(ctx, database, mailboxName)
	if err != nil {
		return nil, err
	}
	return execute(ctx, database, mbox, tokens, mode, opts)
}

// searchAll searches every mailbox of the user, at most search.concurrency at once.
func (a *app) searchAll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tokens, err := tokenizeArgs(args)
	if err != nil {
		return err
	}
	opts, err := a.engineOptions()
	if err != nil {
		return err
	}

	database, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	userID, err := database.GetUserByName(ctx, a.user)
	if err != nil {
		return err
	}
	mailboxes, err := database.ListMailboxes(ctx, userID)
	if err != nil {
		return fmt.Errorf("list mailboxes: %w", err)
	}

	results := make([]*result, len(mailboxes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Search.Concurrency)
	for i := range mailboxes {
		mbox := &mailboxes[i]
		g.Go(func() error {
			res, err := execute(gctx, database, mbox, tokens, search.ModeSearch, opts)
			if err != nil {
				return fmt.Errorf("mailbox %s: %w", mbox.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, res := range results {
		fmt.Fprintf(out, "%s: %s\n", res.mailbox, formatSearch(res, a.useUID))
	}
	return nil
}
