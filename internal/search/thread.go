package search

import (
	"context"
	"fmt"
	"time"

	sortthread "github.com/emersion/go-imap-sortthread"

	"mailsearch/internal/mailbox"
)

// ThreadAlgorithm names a THREAD algorithm.
type ThreadAlgorithm = sortthread.ThreadAlgorithm

const (
	ThreadOrderedSubject = sortthread.OrderedSubject
	ThreadReferences     = sortthread.References
)

// Thread is one group of messages sharing a base subject.
type Thread struct {
	Subject string
	UIDs    []uint64
}

// Numbers returns the thread members as UIDs, or as sequence numbers taken
// from found when uid is false.
func (t Thread) Numbers(found *mailbox.FoundSet, uid bool) []uint64 {
	nums := make([]uint64, 0, len(t.UIDs))
	for _, id := range t.UIDs {
		if uid {
			nums = append(nums, id)
			continue
		}
		if seq, ok := found.Seq(id); ok {
			nums = append(nums, uint64(seq))
		}
	}
	return nums
}

// Thread groups the messages of found with the given algorithm.
func (e *Engine) Thread(ctx context.Context, found *mailbox.FoundSet, alg ThreadAlgorithm) ([]Thread, error) {
	start := time.Now()
	var (
		threads []Thread
		err     error
	)
	switch alg {
	case ThreadOrderedSubject:
		threads, err = e.threadBySubject(ctx, found)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
	observeCommand("thread", start, err)
	return threads, err
}

// threadBySubject groups by base subject. Groups are ordered by subject and
// members by sent date, then UID.
func (e *Engine) threadBySubject(ctx context.Context, found *mailbox.FoundSet) ([]Thread, error) {
	threads := []Thread{}
	if found.Len() == 0 {
		return threads, nil
	}

	where, args := e.scope(found)
	args = append([]any{"subject"}, args...)
	query := fmt.Sprintf(`SELECT mm.uid, COALESCE(h.sort_value, '')
		FROM message_mailbox mm %s
		LEFT JOIN message_headers h ON h.message_id = mm.message_id AND h.name = ?
		WHERE %s
		ORDER BY COALESCE(h.sort_value, ''), COALESCE(m.sent_date, mm.internal_date), mm.uid`,
		joinMessages, where)

	rows, err := e.store.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &DatabaseError{Op: "thread messages", Err: err}
	}
	defer func() { _ = rows.Close() }()

	groups := map[string]int{}
	seen := map[uint64]bool{}
	for rows.Next() {
		var (
			id      int64
			subject string
		)
		if err := rows.Scan(&id, &subject); err != nil {
			return nil, &DatabaseError{Op: "thread messages", Err: err}
		}
		uid := uint64(id)
		if seen[uid] || !found.Contains(uid) {
			continue
		}
		seen[uid] = true

		g, ok := groups[subject]
		if !ok {
			g = len(threads)
			groups[subject] = g
			threads = append(threads, Thread{Subject: subject})
		}
		threads[g].UIDs = append(threads[g].UIDs, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, &DatabaseError{Op: "thread messages", Err: err}
	}
	return threads, nil
}
