package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mailsearch/internal/mailbox"
)

// SortField is one SORT criterion.
type SortField int

const (
	SortArrival SortField = iota
	SortCc
	SortDate
	SortFrom
	SortSize
	SortSubject
	SortTo
)

var sortFields = map[string]SortField{
	"ARRIVAL": SortArrival,
	"CC":      SortCc,
	"DATE":    SortDate,
	"FROM":    SortFrom,
	"SIZE":    SortSize,
	"SUBJECT": SortSubject,
	"TO":      SortTo,
}

// header returns the decoded header the field sorts on, or "" when the field
// lives on the message rows.
func (f SortField) header() string {
	switch f {
	case SortCc:
		return "cc"
	case SortFrom:
		return "from"
	case SortSubject:
		return "subject"
	case SortTo:
		return "to"
	}
	return ""
}

// NeedsJoin reports whether sorting on f requires the header table.
func (f SortField) NeedsJoin() bool {
	return f.header() != ""
}

func (f SortField) String() string {
	for name, field := range sortFields {
		if field == f {
			return name
		}
	}
	return "UNKNOWN"
}

// SortKey is one field of a sort chain.
type SortKey struct {
	Field   SortField
	Reverse bool
}

// SortChain lists sort keys from most to least significant.
type SortChain []SortKey

func (c SortChain) String() string {
	parts := make([]string, 0, len(c))
	for _, k := range c {
		if k.Reverse {
			parts = append(parts, "REVERSE "+k.Field.String())
		} else {
			parts = append(parts, k.Field.String())
		}
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Sort orders the messages of found by chain. Messages compare equal on every
// key are ordered by UID.
func (e *Engine) Sort(ctx context.Context, found *mailbox.FoundSet, chain SortChain) ([]uint64, error) {
	start := time.Now()
	uids, err := e.sort(ctx, found, chain)
	observeCommand("sort", start, err)
	return uids, err
}

func (e *Engine) sort(ctx context.Context, found *mailbox.FoundSet, chain SortChain) ([]uint64, error) {
	if found.Len() == 0 {
		return []uint64{}, nil
	}
	if len(chain) == 0 {
		return found.UIDs(), nil
	}

	query, args := e.sortQuery(found, chain)
	rows, err := e.queryUIDs(ctx, query, args, "sort messages")
	if err != nil {
		return nil, err
	}

	sorted := make([]uint64, 0, found.Len())
	seen := make(map[uint64]bool, found.Len())
	for _, uid := range rows {
		if seen[uid] || !found.Contains(uid) {
			continue
		}
		seen[uid] = true
		sorted = append(sorted, uid)
	}
	return sorted, nil
}

func (e *Engine) sortQuery(found *mailbox.FoundSet, chain SortChain) (string, []any) {
	var (
		joins   []string
		orders  []string
		args    []any
		aliases = map[string]string{}
	)

	for _, key := range chain {
		var expr string
		switch key.Field {
		case SortArrival:
			expr = "mm.internal_date"
		case SortSize:
			expr = "m.size_bytes"
		case SortDate:
			expr = "COALESCE(m.sent_date, mm.internal_date)"
		default:
			name := key.Field.header()
			alias, ok := aliases[name]
			if !ok {
				alias = fmt.Sprintf("h%d", len(aliases))
				aliases[name] = alias
				joins = append(joins, fmt.Sprintf(
					"LEFT JOIN message_headers %[1]s ON %[1]s.message_id = mm.message_id AND %[1]s.name = ?", alias))
				args = append(args, name)
			}
			expr = "COALESCE(" + alias + ".sort_value, '')"
		}
		if key.Reverse {
			expr += " DESC"
		}
		orders = append(orders, expr)
	}
	orders = append(orders, "mm.uid")

	where, scopeArgs := e.scope(found)
	args = append(args, scopeArgs...)
	query := fmt.Sprintf("SELECT mm.uid FROM message_mailbox mm %s %s WHERE %s ORDER BY %s",
		joinMessages, strings.Join(joins, " "), where, strings.Join(orders, ", "))
	return query, args
}
