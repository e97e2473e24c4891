package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Mailbox is one row of the mailboxes table.
type Mailbox struct {
	ID            int64
	UserID        int64
	Name          string
	UIDValidity   int64
	UIDNext       uint64
	HighestModSeq uint64
}

func (db *DB) CreateUser(ctx context.Context, username string) (int64, error) {
	if username == "" {
		return 0, fmt.Errorf("username cannot be empty")
	}
	id, err := db.dialect.insert(ctx, db.pool,
		"INSERT INTO users (username, created_at) VALUES (?, ?)",
		username, time.Now().Unix())
	if db.dialect.isDuplicate(err) {
		return 0, fmt.Errorf("user %s: %w", username, ErrExists)
	}
	return id, err
}

func (db *DB) GetUserByName(ctx context.Context, username string) (int64, error) {
	var id int64
	err := db.queryRow(ctx, "SELECT id FROM users WHERE username = ?", username).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	return id, err
}

// GetOrCreateUser returns the id of username, creating the user when needed.
func (db *DB) GetOrCreateUser(ctx context.Context, username string) (int64, error) {
	id, err := db.GetUserByName(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return db.CreateUser(ctx, username)
	}
	return id, err
}

func (db *DB) CreateMailbox(ctx context.Context, userID int64, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("mailbox name cannot be empty")
	}

	// UID validity is the creation time
	id, err := db.dialect.insert(ctx, db.pool, `
		INSERT INTO mailboxes (user_id, name, uid_validity, uid_next, highest_modseq)
		VALUES (?, ?, ?, ?, ?)`,
		userID, name, time.Now().Unix(), 1, 0)
	if db.dialect.isDuplicate(err) {
		return 0, fmt.Errorf("mailbox %s: %w", name, ErrExists)
	}
	return id, err
}

func (db *DB) GetMailboxByName(ctx context.Context, userID int64, name string) (*Mailbox, error) {
	mbox := &Mailbox{}
	err := db.queryRow(ctx, `
		SELECT id, user_id, name, uid_validity, uid_next, highest_modseq
		FROM mailboxes WHERE user_id = ? AND name = ?`, userID, name).
		Scan(&mbox.ID, &mbox.UserID, &mbox.Name, &mbox.UIDValidity, &mbox.UIDNext, &mbox.HighestModSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mailbox %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return mbox, nil
}

// GetOrCreateMailbox returns the named mailbox, creating it when needed.
func (db *DB) GetOrCreateMailbox(ctx context.Context, userID int64, name string) (*Mailbox, error) {
	mbox, err := db.GetMailboxByName(ctx, userID, name)
	if !errors.Is(err, ErrNotFound) {
		return mbox, err
	}
	if _, err := db.CreateMailbox(ctx, userID, name); err != nil && !errors.Is(err, ErrExists) {
		return nil, err
	}
	return db.GetMailboxByName(ctx, userID, name)
}

func (db *DB) ListMailboxes(ctx context.Context, userID int64) ([]Mailbox, error) {
	rows, err := db.query(ctx, `
		SELECT id, user_id, name, uid_validity, uid_next, highest_modseq
		FROM mailboxes WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var mailboxes []Mailbox
	for rows.Next() {
		var m Mailbox
		if err := rows.Scan(&m.ID, &m.UserID, &m.Name, &m.UIDValidity, &m.UIDNext, &m.HighestModSeq); err != nil {
			return nil, err
		}
		mailboxes = append(mailboxes, m)
	}
	return mailboxes, rows.Err()
}
