package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mailsearch/internal/mailbox"
)

// LoadSnapshot captures the live messages of a mailbox.
func (db *DB) LoadSnapshot(ctx context.Context, mailboxID int64) (*mailbox.State, error) {
	return db.Store().LoadSnapshot(ctx, mailboxID)
}

// LoadSnapshot captures the live messages of a mailbox through this store's connection.
func (s *Store) LoadSnapshot(ctx context.Context, mailboxID int64) (*mailbox.State, error) {
	var uidNext uint64
	err := s.q.QueryRowContext(ctx, s.dialect.Rebind(
		"SELECT uid_next FROM mailboxes WHERE id = ?"), mailboxID).Scan(&uidNext)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mailbox %d: %w", mailboxID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mailbox: %w", err)
	}

	rows, err := s.q.QueryContext(ctx, s.dialect.Rebind(`
		SELECT mm.uid, mm.seen_flag, mm.answered_flag, mm.deleted_flag, mm.flagged_flag,
			mm.recent_flag, mm.draft_flag, m.size_bytes, mm.internal_date, mm.modseq
		FROM message_mailbox mm
		JOIN messages m ON m.id = mm.message_id
		WHERE mm.mailbox_id = ? AND mm.status < ?
		ORDER BY mm.uid`), mailboxID, mailbox.StatusDeleted)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []mailbox.MessageInfo
	for rows.Next() {
		var (
			m                                           mailbox.MessageInfo
			seen, answered, deleted, flagged, rec, draft int
			internalDate                                int64
		)
		if err := rows.Scan(&m.UID, &seen, &answered, &deleted, &flagged, &rec, &draft,
			&m.Size, &internalDate, &m.ModSeq); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Seen = seen != 0
		m.Answered = answered != 0
		m.Deleted = deleted != 0
		m.Flagged = flagged != 0
		m.Recent = rec != 0
		m.Draft = draft != 0
		m.InternalDate = time.Unix(internalDate, 0).UTC()
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	return mailbox.NewState(mailboxID, uidNext, msgs), nil
}
