package db

import (
	"context"
	"fmt"
	"strings"
)

// InitSchema creates the mail store tables and indexes when missing.
func (db *DB) InitSchema(ctx context.Context) error {
	tables := []struct {
		name   string
		create func(Dialect) string
	}{
		{"users", usersTable},
		{"mailboxes", mailboxesTable},
		{"messages", messagesTable},
		{"message_headers", messageHeadersTable},
		{"message_parts", messagePartsTable},
		{"message_mailbox", messageMailboxTable},
		{"message_keywords", messageKeywordsTable},
	}

	for _, t := range tables {
		if _, err := db.pool.ExecContext(ctx, t.create(db.dialect)); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}

	if err := db.createIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func usersTable(d Dialect) string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS users (
		id %s,
		username VARCHAR(255) NOT NULL UNIQUE,
		created_at BIGINT NOT NULL
	)`, d.autoID())
}

func mailboxesTable(d Dialect) string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS mailboxes (
		id %s,
		user_id BIGINT NOT NULL,
		name VARCHAR(255) NOT NULL,
		uid_validity BIGINT NOT NULL,
		uid_next BIGINT NOT NULL,
		highest_modseq BIGINT NOT NULL DEFAULT 0,
		FOREIGN KEY (user_id) REFERENCES users(id),
		UNIQUE (user_id, name)
	)`, d.autoID())
}

func messagesTable(d Dialect) string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS messages (
		id %s,
		subject %s,
		message_id_header %[2]s,
		in_reply_to %[2]s,
		references_header %[2]s,
		sent_date BIGINT,
		size_bytes BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL
	)`, d.autoID(), d.longText())
}

// message_headers holds decoded header values. sort_value is the normalized
// form used by SORT and THREAD.
func messageHeadersTable(d Dialect) string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS message_headers (
		id %s,
		message_id BIGINT NOT NULL,
		name VARCHAR(255) NOT NULL,
		value %s NOT NULL,
		sort_value VARCHAR(255) NOT NULL DEFAULT '',
		seq_num INTEGER NOT NULL,
		FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
	)`, d.autoID(), d.longText())
}

func messagePartsTable(d Dialect) string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS message_parts (
		id %s,
		message_id BIGINT NOT NULL,
		part_number INTEGER NOT NULL,
		content_type VARCHAR(255) NOT NULL,
		filename VARCHAR(255),
		text_content %s,
		size_bytes BIGINT NOT NULL DEFAULT 0,
		FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
	)`, d.autoID(), d.longText())
}

// message_mailbox places a message in a mailbox. The uid is the identifier
// used by SEARCH; status at or above StatusDeleted hides the row.
func messageMailboxTable(d Dialect) string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS message_mailbox (
		id %s,
		message_id BIGINT NOT NULL,
		mailbox_id BIGINT NOT NULL,
		uid BIGINT NOT NULL,
		status INTEGER NOT NULL DEFAULT 0,
		seen_flag INTEGER NOT NULL DEFAULT 0,
		answered_flag INTEGER NOT NULL DEFAULT 0,
		deleted_flag INTEGER NOT NULL DEFAULT 0,
		flagged_flag INTEGER NOT NULL DEFAULT 0,
		recent_flag INTEGER NOT NULL DEFAULT 0,
		draft_flag INTEGER NOT NULL DEFAULT 0,
		internal_date BIGINT NOT NULL,
		modseq BIGINT NOT NULL DEFAULT 0,
		FOREIGN KEY (message_id) REFERENCES messages(id),
		FOREIGN KEY (mailbox_id) REFERENCES mailboxes(id),
		UNIQUE (mailbox_id, uid)
	)`, d.autoID())
}

func messageKeywordsTable(Dialect) string {
	return `
	CREATE TABLE IF NOT EXISTS message_keywords (
		mailbox_id BIGINT NOT NULL,
		uid BIGINT NOT NULL,
		keyword VARCHAR(255) NOT NULL,
		PRIMARY KEY (mailbox_id, uid, keyword)
	)`
}

func (db *DB) createIndexes(ctx context.Context) error {
	indexes := []struct{ name, on string }{
		{"idx_mailboxes_user", "mailboxes(user_id)"},
		{"idx_messages_sent_date", "messages(sent_date)"},
		{"idx_message_headers_message", "message_headers(message_id, name)"},
		{"idx_message_headers_sort", "message_headers(name, sort_value)"},
		{"idx_message_parts_message", "message_parts(message_id)"},
		{"idx_message_mailbox_message", "message_mailbox(message_id)"},
		{"idx_message_mailbox_status", "message_mailbox(mailbox_id, status)"},
		{"idx_message_mailbox_date", "message_mailbox(mailbox_id, internal_date)"},
	}

	for _, idx := range indexes {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s", idx.name, idx.on)
		if db.dialect.Driver == DriverMySQL {
			stmt = fmt.Sprintf("CREATE INDEX %s ON %s", idx.name, idx.on)
		}
		if _, err := db.pool.ExecContext(ctx, stmt); err != nil {
			if db.dialect.Driver == DriverMySQL && strings.Contains(err.Error(), "Duplicate key name") {
				continue
			}
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}
	return nil
}
