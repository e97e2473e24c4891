package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"mailsearch/internal/db"
	"mailsearch/internal/delivery/parser"
	"mailsearch/internal/mailbox"
)

// testNow is the clock used by OLDER and YOUNGER tests.
var testNow = time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)

type testMessage struct {
	from, to, cc, subject string
	sent                  string
	body                  string
	flags                 db.Flags
	keywords              []string
	size                  int64
	day                   int
}

// testMessages become UIDs 1 to 5. Seen is set on 1, 3 and 5.
var testMessages = []testMessage{
	{
		from: "Alice <alice@example.com>", to: "bob@example.com", subject: "Project plan",
		sent: "Mon, 01 Jan 2024 10:00:00 +0000", body: "Let's discuss the roadmap.",
		flags: db.Flags{Seen: true}, keywords: []string{"$Important"}, size: 100, day: 1,
	},
	{
		from: "Carol <carol@example.com>", to: "bob@example.com", cc: "dave@example.com", subject: "Re: Project plan",
		sent: "Tue, 02 Jan 2024 10:00:00 +0000", body: "Sounds good, see attached budget.",
		size: 200, day: 2,
	},
	{
		from: "bob@example.com", to: "team@example.com", subject: "Lunch?",
		sent: "Wed, 03 Jan 2024 10:00:00 +0000", body: "Pizza at noon",
		flags: db.Flags{Seen: true, Flagged: true}, size: 300, day: 3,
	},
	{
		from: "Dave <dave@example.com>", to: "bob@example.com", subject: "[team] RE: project plan",
		sent: "Thu, 04 Jan 2024 10:00:00 +0000", body: "Updated roadmap attached",
		flags: db.Flags{Recent: true}, size: 400, day: 4,
	},
	{
		from: "Erin <erin@example.com>", to: "team@example.com", subject: "Lunch?",
		sent: "Fri, 05 Jan 2024 10:00:00 +0000", body: "count me in",
		flags: db.Flags{Seen: true}, keywords: []string{"$important"}, size: 500, day: 5,
	},
}

func (m testMessage) raw() []byte {
	raw := fmt.Sprintf("From: %s\r\nTo: %s\r\n", m.from, m.to)
	if m.cc != "" {
		raw += fmt.Sprintf("Cc: %s\r\n", m.cc)
	}
	raw += fmt.Sprintf("Subject: %s\r\nDate: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		m.subject, m.sent, m.body)
	return []byte(raw)
}

// setupMailbox stores testMessages in an in-memory SQLite store and returns
// it with a snapshot of the mailbox.
func setupMailbox(t *testing.T) (*db.DB, *mailbox.State) {
	t.Helper()
	ctx := context.Background()

	database, err := db.Open(db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if err := database.InitSchema(ctx); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}

	userID, err := database.CreateUser(ctx, "bob")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	mailboxID, err := database.CreateMailbox(ctx, userID, "INBOX")
	if err != nil {
		t.Fatalf("CreateMailbox failed: %v", err)
	}

	for i, m := range testMessages {
		parsed, err := parser.ParseMessage(m.raw())
		if err != nil {
			t.Fatalf("ParseMessage(%d) failed: %v", i+1, err)
		}
		internal := time.Date(2024, 1, m.day, 10, 0, 0, 0, time.UTC)
		rec := parsed.Record(m.flags, internal)
		rec.Size = m.size
		rec.Keywords = m.keywords
		if _, err := database.AppendMessage(ctx, mailboxID, rec); err != nil {
			t.Fatalf("AppendMessage(%d) failed: %v", i+1, err)
		}
	}

	snap, err := database.LoadSnapshot(ctx, mailboxID)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	return database, snap
}

// strategies lists the engine configurations every search test runs under.
var strategies = []struct {
	name string
	opts Options
}{
	{"query", Options{Strategy: StrategyQuery, InListThreshold: DefaultInListThreshold, Now: func() time.Time { return testNow }}},
	{"query without IN list", Options{Strategy: StrategyQuery, Now: func() time.Time { return testNow }}},
	{"snapshot", Options{Strategy: StrategySnapshot, InListThreshold: DefaultInListThreshold, Now: func() time.Time { return testNow }}},
}

// compileSearch compiles tokens in search mode and fails the test on error.
func compileSearch(t *testing.T, tokens ...string) *Tree {
	t.Helper()
	cursor := 0
	tree, err := Compile(tokens, &cursor, ModeSearch)
	if err != nil {
		t.Fatalf("Compile(%q) failed: %v", tokens, err)
	}
	if cursor != len(tokens) {
		t.Fatalf("Compile(%q) stopped at %d", tokens, cursor)
	}
	return tree
}
