package parser_test

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"mailsearch/internal/db"
	"mailsearch/internal/delivery/parser"
)

func TestParseMessage(t *testing.T) {
	rawEmail := "From: Sender Name <Sender@example.com>\r\n" +
		"To: recipient@example.com, other@example.com\r\n" +
		"Subject: Re: Test Message\r\n" +
		"Date: Mon, 01 Jan 2024 12:00:00 +0100\r\n" +
		"Message-Id: <test123@example.com>\r\n" +
		"In-Reply-To: <parent@example.com>\r\n" +
		"\r\n" +
		"This is a test message body.\r\n"

	msg, err := parser.ParseMessage([]byte(rawEmail))
	if err != nil {
		t.Fatalf("Failed to parse message: %v", err)
	}

	if msg.Subject != "Re: Test Message" {
		t.Errorf("Expected Subject: Re: Test Message, got: %s", msg.Subject)
	}
	if msg.BaseSubject != "test message" {
		t.Errorf("Expected base subject: test message, got: %s", msg.BaseSubject)
	}
	if msg.MessageID != "test123@example.com" {
		t.Errorf("Expected Message-Id: test123@example.com, got: %s", msg.MessageID)
	}
	if msg.InReplyTo != "<parent@example.com>" {
		t.Errorf("Expected In-Reply-To: <parent@example.com>, got: %s", msg.InReplyTo)
	}
	if want := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC); !msg.Date.Equal(want) {
		t.Errorf("Expected Date %v, got: %v", want, msg.Date)
	}
	if msg.SizeBytes != int64(len(rawEmail)) {
		t.Errorf("Expected size %d, got: %d", len(rawEmail), msg.SizeBytes)
	}

	sortValues := map[string]string{}
	for _, h := range msg.Headers {
		sortValues[h.Name] = h.SortValue
	}
	wantSort := map[string]string{
		"from":        "sender",
		"to":          "recipient",
		"subject":     "test message",
		"date":        "mon, 01 jan 2024 12:00:00 +0100",
		"message-id":  "<test123@example.com>",
		"in-reply-to": "<parent@example.com>",
	}
	if diff := cmp.Diff(wantSort, sortValues); diff != "" {
		t.Errorf("Sort values mismatch (-want +got):\n%s", diff)
	}

	if len(msg.Parts) != 1 {
		t.Fatalf("Expected 1 part, got: %d", len(msg.Parts))
	}
	if !strings.Contains(msg.Parts[0].TextContent, "This is a test message body") {
		t.Errorf("Body does not contain expected text: %q", msg.Parts[0].TextContent)
	}
	if msg.Parts[0].ContentType != "text/plain" {
		t.Errorf("Expected text/plain, got: %s", msg.Parts[0].ContentType)
	}
}

func TestParseMessageMultipart(t *testing.T) {
	rawEmail := "From: sender@example.com\r\n" +
		"Subject: Report\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=\"b1\"\r\n" +
		"\r\n" +
		"--b1\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Quarterly numbers attached.\r\n" +
		"--b1\r\n" +
		"Content-Type: text/csv\r\n" +
		"Content-Disposition: attachment; filename=\"report.csv\"\r\n" +
		"\r\n" +
		"region,total\r\n" +
		"--b1--\r\n"

	msg, err := parser.ParseMessage([]byte(rawEmail))
	if err != nil {
		t.Fatalf("Failed to parse message: %v", err)
	}
	if len(msg.Parts) != 2 {
		t.Fatalf("Expected 2 parts, got: %d", len(msg.Parts))
	}

	text, attachment := msg.Parts[0], msg.Parts[1]
	if !strings.Contains(text.TextContent, "Quarterly numbers") {
		t.Errorf("Text part content = %q", text.TextContent)
	}
	if attachment.Filename != "report.csv" {
		t.Errorf("Expected filename report.csv, got: %s", attachment.Filename)
	}
	if attachment.TextContent != "" {
		t.Errorf("Attachment text should not be indexed, got: %q", attachment.TextContent)
	}
	if attachment.PartNumber != 2 {
		t.Errorf("Expected part number 2, got: %d", attachment.PartNumber)
	}
}

func TestParseMessageEncodedSubject(t *testing.T) {
	rawEmail := "From: sender@example.com\r\n" +
		"Subject: =?ISO-8859-1?Q?Caf=E9_menu?=\r\n" +
		"\r\n" +
		"Body\r\n"

	msg, err := parser.ParseMessage([]byte(rawEmail))
	if err != nil {
		t.Fatalf("Failed to parse message: %v", err)
	}
	if msg.Subject != "Café menu" {
		t.Errorf("Expected decoded subject, got: %q", msg.Subject)
	}
	if msg.BaseSubject != "café menu" {
		t.Errorf("Expected base subject café menu, got: %q", msg.BaseSubject)
	}
}

func TestParseMessageLongSubject(t *testing.T) {
	subject := strings.Repeat("é", 300)
	msg, err := parser.ParseMessage([]byte("Subject: " + subject + "\r\n\r\nBody\r\n"))
	if err != nil {
		t.Fatalf("Failed to parse message: %v", err)
	}
	if n := utf8.RuneCountInString(msg.BaseSubject); n != 255 {
		t.Errorf("Expected base subject of 255 runes, got: %d", n)
	}
	if msg.Subject != subject {
		t.Error("Subject should not be truncated")
	}
}

func TestBaseSubject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello", "hello"},
		{"Re: Hello", "hello"},
		{"RE: re: Fwd: Hello", "hello"},
		{"[list] Re: Hello", "hello"},
		{"[team] RE: Project Plan", "project plan"},
		{"Hello (fwd)", "hello"},
		{"[Fwd: Hello]", "hello"},
		{"  Hello \t  World  ", "hello world"},
		{"Reply needed", "reply needed"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := parser.BaseSubject(tt.in); got != tt.want {
			t.Errorf("BaseSubject(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecord(t *testing.T) {
	msg, err := parser.ParseMessage([]byte("From: a@example.com\r\nSubject: Hi\r\n\r\nHello\r\n"))
	if err != nil {
		t.Fatalf("Failed to parse message: %v", err)
	}

	internal := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	rec := msg.Record(db.Flags{Seen: true}, internal)

	if rec.Subject != "Hi" || !rec.Flags.Seen || !rec.InternalDate.Equal(internal) {
		t.Errorf("Unexpected record: %+v", rec)
	}
	if len(rec.Headers) != len(msg.Headers) || len(rec.Parts) != len(msg.Parts) {
		t.Errorf("Record has %d headers and %d parts, want %d and %d",
			len(rec.Headers), len(rec.Parts), len(msg.Headers), len(msg.Parts))
	}
	if rec.Parts[0].Text != msg.Parts[0].TextContent {
		t.Errorf("Part text = %q, want %q", rec.Parts[0].Text, msg.Parts[0].TextContent)
	}
}

func TestStoreMessage(t *testing.T) {
	ctx := context.Background()
	database, err := db.Open(db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	defer func() { _ = database.Close() }()
	if err := database.InitSchema(ctx); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}

	userID, err := database.CreateUser(ctx, "alice")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	mailboxID, err := database.CreateMailbox(ctx, userID, "INBOX")
	if err != nil {
		t.Fatalf("Failed to create mailbox: %v", err)
	}

	raw := []byte("From: bob@example.com\r\nSubject: Stored\r\n\r\nBody\r\n")
	for want := uint64(1); want <= 2; want++ {
		uid, err := parser.StoreMessage(ctx, database, mailboxID, raw, db.Flags{Recent: true}, time.Now())
		if err != nil {
			t.Fatalf("StoreMessage failed: %v", err)
		}
		if uid != want {
			t.Errorf("Expected UID %d, got: %d", want, uid)
		}
	}

	snap, err := database.LoadSnapshot(ctx, mailboxID)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if snap.Exists() != 2 {
		t.Errorf("Expected 2 messages, got: %d", snap.Exists())
	}
	if m, _ := snap.Info(1); !m.Recent || m.Size != int64(len(raw)) {
		t.Errorf("Unexpected stored message: %+v", m)
	}
}
