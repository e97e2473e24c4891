package search

import (
	"context"
	"fmt"
	"strings"

	"mailsearch/internal/mailbox"
)

// likePattern builds a substring LIKE pattern using '!' as the escape character.
func likePattern(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + r.Replace(s) + "%"
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// predicate returns the WHERE clause and arguments of a leaf, plus any join it needs.
func (e *Engine) predicate(n *Node) (join, clause string, args []any) {
	like := e.store.InsensitiveLike()

	switch n.Kind {
	case KindFlag:
		parts := make([]string, 0, len(n.Flags))
		for _, cond := range n.Flags {
			parts = append(parts, "mm."+cond.Flag.Column()+" = ?")
			args = append(args, boolInt(cond.Set))
		}
		return "", strings.Join(parts, " AND "), args

	case KindKeyword, KindUnKeyword:
		return "", `EXISTS (SELECT 1 FROM message_keywords k
			WHERE k.mailbox_id = mm.mailbox_id AND k.uid = mm.uid AND LOWER(k.keyword) = LOWER(?))`,
			[]any{n.Value}

	case KindHeader:
		return "", fmt.Sprintf(`EXISTS (SELECT 1 FROM message_headers h
			WHERE h.message_id = mm.message_id AND h.name = ? AND h.value %s ? ESCAPE '!')`, like),
			[]any{n.Field, likePattern(n.Value)}

	case KindBody:
		return "", fmt.Sprintf(`EXISTS (SELECT 1 FROM message_parts p
			WHERE p.message_id = mm.message_id AND p.text_content %s ? ESCAPE '!')`, like),
			[]any{likePattern(n.Value)}

	case KindText:
		pattern := likePattern(n.Value)
		return "", fmt.Sprintf(`(EXISTS (SELECT 1 FROM message_headers h
			WHERE h.message_id = mm.message_id AND h.value %[1]s ? ESCAPE '!')
			OR EXISTS (SELECT 1 FROM message_parts p
			WHERE p.message_id = mm.message_id AND p.text_content %[1]s ? ESCAPE '!'))`, like),
			[]any{pattern, pattern}

	case KindSizeLarger:
		return joinMessages, "m.size_bytes > ?", []any{n.Number}
	case KindSizeSmaller:
		return joinMessages, "m.size_bytes < ?", []any{n.Number}

	case KindBefore:
		return "", "mm.internal_date < ?", []any{n.Date.Unix()}
	case KindOn:
		return "", "mm.internal_date >= ? AND mm.internal_date < ?",
			[]any{n.Date.Unix(), n.Date.Add(day).Unix()}
	case KindSince:
		return "", "mm.internal_date >= ?", []any{n.Date.Unix()}
	case KindOlder:
		return "", "mm.internal_date <= ?", []any{e.cutoff(n.Number).Unix()}
	case KindYounger:
		return "", "mm.internal_date > ?", []any{e.cutoff(n.Number).Unix()}

	case KindSentBefore:
		return joinMessages, "m.sent_date < ?", []any{n.Date.Unix()}
	case KindSentOn:
		return joinMessages, "m.sent_date >= ? AND m.sent_date < ?",
			[]any{n.Date.Unix(), n.Date.Add(day).Unix()}
	case KindSentSince:
		return joinMessages, "m.sent_date >= ?", []any{n.Date.Unix()}
	}
	return "", "1 = 0", nil
}

const joinMessages = "JOIN messages m ON m.id = mm.message_id"

// scope returns the mailbox restriction shared by every query, narrowed to the
// candidates when there are few enough of them.
func (e *Engine) scope(candidates *mailbox.FoundSet) (string, []any) {
	clause := "mm.mailbox_id = ? AND mm.status < ?"
	args := []any{e.snap.MailboxID(), mailbox.StatusDeleted}

	if n := candidates.Len(); n > 0 && n <= e.opts.InListThreshold {
		uids := candidates.UIDs()
		marks := make([]string, len(uids))
		for i, uid := range uids {
			marks[i] = "?"
			args = append(args, int64(uid))
		}
		clause += " AND mm.uid IN (" + strings.Join(marks, ",") + ")"
	}
	return clause, args
}

// evaluateQuery runs a leaf as a single store query.
func (e *Engine) evaluateQuery(ctx context.Context, n *Node) (*mailbox.FoundSet, error) {
	metricLeaf.WithLabelValues(StrategyQuery.String()).Inc()

	found := mailbox.NewFoundSet()
	if e.universe.Len() == 0 {
		return found, nil
	}

	join, clause, predArgs := e.predicate(n)
	where, args := e.scope(e.universe)
	args = append(args, predArgs...)
	query := fmt.Sprintf("SELECT mm.uid FROM message_mailbox mm %s WHERE %s AND (%s)", join, where, clause)

	uids, err := e.queryUIDs(ctx, query, args, "search "+n.Kind.String())
	if err != nil {
		return nil, err
	}
	for _, uid := range uids {
		seq, ok := e.snap.Seq(uid)
		if !ok {
			e.syncError(uid, "query")
			continue
		}
		found.Add(uid, seq)
	}
	return found, nil
}

// queryUIDs runs query and returns the first column of every row in order.
// The rows are closed before returning.
func (e *Engine) queryUIDs(ctx context.Context, query string, args []any, op string) ([]uint64, error) {
	rows, err := e.store.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &DatabaseError{Op: op, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var uids []uint64
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, &DatabaseError{Op: op, Err: err}
		}
		uids = append(uids, uint64(uid))
	}
	if err := rows.Err(); err != nil {
		return nil, &DatabaseError{Op: op, Err: err}
	}
	return uids, nil
}
