package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"mailsearch/internal/db"
	"mailsearch/internal/mailbox"
	"mailsearch/internal/search"
)

// result is the outcome of one command against one mailbox.
type result struct {
	mailbox   string
	found     *mailbox.FoundSet
	sorted    []uint64
	threads   []search.Thread
	condStore bool
	modSeq    uint64
}

// execute compiles tokens in mode and runs them against one mailbox on a
// dedicated connection.
func execute(ctx context.Context, database *db.DB, mbox *db.Mailbox, tokens []string, mode search.Mode, opts search.Options) (*result, error) {
	cursor := 0
	tree, err := search.Compile(tokens, &cursor, mode)
	if err != nil {
		return nil, err
	}

	session, err := database.Session(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = session.Close() }()

	snap, err := session.LoadSnapshot(ctx, mbox.ID)
	if err != nil {
		return nil, err
	}

	engine := search.New(session, snap, opts)
	found, err := engine.Evaluate(ctx, tree)
	if err != nil {
		return nil, err
	}

	res := &result{mailbox: mbox.Name, found: found, condStore: tree.CondStore}
	if tree.CondStore {
		res.modSeq = engine.HighestModSeq(found)
	}

	switch mode {
	case search.ModeSort:
		if res.sorted, err = engine.Sort(ctx, found, tree.SortChain()); err != nil {
			return nil, err
		}
	case search.ModeThread:
		if res.threads, err = engine.Thread(ctx, found, tree.Algorithm); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// number returns the UID or the sequence number of a found message.
func number(found *mailbox.FoundSet, uid uint64, useUID bool) (uint64, bool) {
	if useUID {
		return uid, true
	}
	seq, ok := found.Seq(uid)
	return uint64(seq), ok
}

func joinNumbers(nums []uint64) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.FormatUint(n, 10)
	}
	return strings.Join(parts, " ")
}

// formatSearch renders a SEARCH response line.
func formatSearch(res *result, useUID bool) string {
	var nums []uint64
	for _, uid := range res.found.UIDs() {
		if n, ok := number(res.found, uid, useUID); ok {
			nums = append(nums, n)
		}
	}
	return respond("SEARCH", joinNumbers(nums), res)
}

// formatSort renders a SORT response line.
func formatSort(res *result, useUID bool) string {
	var nums []uint64
	for _, uid := range res.sorted {
		if n, ok := number(res.found, uid, useUID); ok {
			nums = append(nums, n)
		}
	}
	return respond("SORT", joinNumbers(nums), res)
}

// formatThreads renders a THREAD response line. The first message of each
// subject group is the parent of the others.
func formatThreads(res *result, useUID bool) string {
	var b strings.Builder
	for _, th := range res.threads {
		nums := th.Numbers(res.found, useUID)
		switch len(nums) {
		case 0:
			continue
		case 1, 2:
			fmt.Fprintf(&b, "(%s)", joinNumbers(nums))
		default:
			fmt.Fprintf(&b, "(%d ", nums[0])
			for _, n := range nums[1:] {
				fmt.Fprintf(&b, "(%d)", n)
			}
			b.WriteByte(')')
		}
	}
	if b.Len() == 0 {
		return "* THREAD"
	}
	return "* THREAD " + b.String()
}

func respond(name, body string, res *result) string {
	line := "* " + name
	if body != "" {
		line += " " + body
	}
	if res.condStore && res.found.Len() > 0 {
		line += fmt.Sprintf(" (MODSEQ %d)", res.modSeq)
	}
	return line
}
