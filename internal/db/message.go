package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mailsearch/internal/mailbox"
)

// Flags are the system flags of a message in a mailbox.
type Flags struct {
	Seen     bool
	Answered bool
	Deleted  bool
	Flagged  bool
	Recent   bool
	Draft    bool
}

// Header is one decoded header field.
type Header struct {
	Name      string
	Value     string
	SortValue string
}

// Part is one leaf MIME part. Text is set for textual parts only.
type Part struct {
	ContentType string
	Filename    string
	Text        string
	Size        int64
}

// Message is everything stored when a message is appended to a mailbox.
type Message struct {
	Subject      string
	MessageID    string
	InReplyTo    string
	References   string
	SentDate     time.Time
	Size         int64
	Headers      []Header
	Parts        []Part
	Flags        Flags
	Keywords     []string
	InternalDate time.Time
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

// nextUID reserves the next UID and modification sequence of a mailbox.
func (db *DB) nextUID(ctx context.Context, tx *sql.Tx, mailboxID int64) (uint64, uint64, error) {
	d := db.dialect
	if _, err := tx.ExecContext(ctx, d.Rebind(`
		UPDATE mailboxes SET uid_next = uid_next + 1, highest_modseq = highest_modseq + 1
		WHERE id = ?`), mailboxID); err != nil {
		return 0, 0, err
	}

	var uidNext, modseq uint64
	err := tx.QueryRowContext(ctx, d.Rebind(
		"SELECT uid_next, highest_modseq FROM mailboxes WHERE id = ?"), mailboxID).Scan(&uidNext, &modseq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, fmt.Errorf("mailbox %d: %w", mailboxID, ErrNotFound)
	}
	if err != nil {
		return 0, 0, err
	}
	return uidNext - 1, modseq, nil
}

// AppendMessage stores msg in a mailbox and returns its UID.
func (db *DB) AppendMessage(ctx context.Context, mailboxID int64, msg *Message) (uint64, error) {
	d := db.dialect
	tx, err := db.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	uid, modseq, err := db.nextUID(ctx, tx, mailboxID)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate uid: %w", err)
	}

	messageID, err := d.insert(ctx, tx, `
		INSERT INTO messages (subject, message_id_header, in_reply_to, references_header, sent_date, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.Subject, msg.MessageID, msg.InReplyTo, msg.References, nullUnix(msg.SentDate), msg.Size, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to create message: %w", err)
	}

	for i, h := range msg.Headers {
		if _, err := tx.ExecContext(ctx, d.Rebind(`
			INSERT INTO message_headers (message_id, name, value, sort_value, seq_num)
			VALUES (?, ?, ?, ?, ?)`),
			messageID, strings.ToLower(h.Name), h.Value, h.SortValue, i); err != nil {
			return 0, fmt.Errorf("failed to add header %s: %w", h.Name, err)
		}
	}

	for i, p := range msg.Parts {
		if _, err := tx.ExecContext(ctx, d.Rebind(`
			INSERT INTO message_parts (message_id, part_number, content_type, filename, text_content, size_bytes)
			VALUES (?, ?, ?, ?, ?, ?)`),
			messageID, i+1, p.ContentType, p.Filename, p.Text, p.Size); err != nil {
			return 0, fmt.Errorf("failed to add part %d: %w", i+1, err)
		}
	}

	internalDate := msg.InternalDate
	if internalDate.IsZero() {
		internalDate = time.Now()
	}
	f := msg.Flags
	if _, err := tx.ExecContext(ctx, d.Rebind(`
		INSERT INTO message_mailbox (message_id, mailbox_id, uid, status,
			seen_flag, answered_flag, deleted_flag, flagged_flag, recent_flag, draft_flag,
			internal_date, modseq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		messageID, mailboxID, uid, mailbox.StatusNew,
		boolInt(f.Seen), boolInt(f.Answered), boolInt(f.Deleted), boolInt(f.Flagged), boolInt(f.Recent), boolInt(f.Draft),
		internalDate.Unix(), modseq); err != nil {
		return 0, fmt.Errorf("failed to add message to mailbox: %w", err)
	}

	for _, kw := range msg.Keywords {
		if err := addKeyword(ctx, tx, d, mailboxID, uid, kw); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit message: %w", err)
	}
	return uid, nil
}

// bumpModSeq assigns a new modification sequence to one message.
func (db *DB) bumpModSeq(ctx context.Context, tx *sql.Tx, mailboxID int64, uid uint64) error {
	d := db.dialect
	if _, err := tx.ExecContext(ctx, d.Rebind(
		"UPDATE mailboxes SET highest_modseq = highest_modseq + 1 WHERE id = ?"), mailboxID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, d.Rebind(`
		UPDATE message_mailbox SET modseq = (SELECT highest_modseq FROM mailboxes WHERE id = ?)
		WHERE mailbox_id = ? AND uid = ?`), mailboxID, mailboxID, uid)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %d: %w", uid, ErrNotFound)
	}
	return nil
}

// SetFlags replaces the system flags of a message.
func (db *DB) SetFlags(ctx context.Context, mailboxID int64, uid uint64, f Flags) error {
	return db.update(ctx, mailboxID, uid, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, db.dialect.Rebind(`
			UPDATE message_mailbox SET seen_flag = ?, answered_flag = ?, deleted_flag = ?,
				flagged_flag = ?, recent_flag = ?, draft_flag = ?
			WHERE mailbox_id = ? AND uid = ?`),
			boolInt(f.Seen), boolInt(f.Answered), boolInt(f.Deleted), boolInt(f.Flagged), boolInt(f.Recent), boolInt(f.Draft),
			mailboxID, uid)
		return err
	})
}

func (db *DB) AddKeyword(ctx context.Context, mailboxID int64, uid uint64, keyword string) error {
	return db.update(ctx, mailboxID, uid, func(tx *sql.Tx) error {
		return addKeyword(ctx, tx, db.dialect, mailboxID, uid, keyword)
	})
}

func (db *DB) RemoveKeyword(ctx context.Context, mailboxID int64, uid uint64, keyword string) error {
	return db.update(ctx, mailboxID, uid, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, db.dialect.Rebind(
			"DELETE FROM message_keywords WHERE mailbox_id = ? AND uid = ? AND keyword = ?"),
			mailboxID, uid, keyword)
		return err
	})
}

func addKeyword(ctx context.Context, tx *sql.Tx, d Dialect, mailboxID int64, uid uint64, keyword string) error {
	if keyword == "" {
		return fmt.Errorf("keyword cannot be empty")
	}
	_, err := tx.ExecContext(ctx, d.Rebind(
		"INSERT INTO message_keywords (mailbox_id, uid, keyword) VALUES (?, ?, ?)"),
		mailboxID, uid, keyword)
	if d.isDuplicate(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to add keyword %s: %w", keyword, err)
	}
	return nil
}

// update runs fn and bumps the message's modification sequence in one transaction.
func (db *DB) update(ctx context.Context, mailboxID int64, uid uint64, fn func(*sql.Tx) error) error {
	tx, err := db.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := db.bumpModSeq(ctx, tx, mailboxID, uid); err != nil {
		return fmt.Errorf("failed to update modseq: %w", err)
	}
	return tx.Commit()
}

// Expunge marks every \Deleted message of a mailbox as removed and returns
// how many were affected.
func (db *DB) Expunge(ctx context.Context, mailboxID int64) (int64, error) {
	res, err := db.exec(ctx, `
		UPDATE message_mailbox SET status = ?
		WHERE mailbox_id = ? AND deleted_flag = 1 AND status < ?`,
		mailbox.StatusDeleted, mailboxID, mailbox.StatusDeleted)
	if err != nil {
		return 0, fmt.Errorf("failed to expunge mailbox: %w", err)
	}
	return res.RowsAffected()
}
