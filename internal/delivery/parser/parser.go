package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"mailsearch/internal/db"
)

// sortWidth bounds the normalized values kept for SORT and THREAD.
const sortWidth = 255

// addressHeaders sort on the local part of their first address.
var addressHeaders = map[string]bool{
	"from": true,
	"to":   true,
	"cc":   true,
	"bcc":  true,
}

// ParsedMessage is a message decoded for storage.
type ParsedMessage struct {
	Subject     string
	BaseSubject string
	MessageID   string
	InReplyTo   string
	References  string
	Date        time.Time
	Headers     []MessageHeader
	Parts       []MessagePart
	SizeBytes   int64
}

// MessageHeader is one header field with its value decoded to UTF-8.
type MessageHeader struct {
	Name      string
	Value     string
	SortValue string
}

// MessagePart is one leaf MIME part. TextContent is only set for text parts.
type MessagePart struct {
	PartNumber  int
	ContentType string
	Filename    string
	TextContent string
	SizeBytes   int64
}

// ParseMessage decodes a raw RFC 5322 message. Header words in unknown
// charsets are kept in their encoded form.
func ParseMessage(raw []byte) (*ParsedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && mr == nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	defer func() { _ = mr.Close() }()

	parsed := &ParsedMessage{SizeBytes: int64(len(raw))}
	h := mr.Header

	parsed.Headers = decodeHeaders(h)
	parsed.Subject, _ = h.Subject()
	parsed.BaseSubject = truncate(BaseSubject(parsed.Subject))
	parsed.MessageID, _ = h.MessageID()
	parsed.InReplyTo = h.Get("In-Reply-To")
	parsed.References = h.Get("References")
	if date, err := h.Date(); err == nil {
		parsed.Date = date.UTC()
	}

	partNumber := 1
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read part %d: %w", partNumber, err)
		}

		body, err := io.ReadAll(p.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read part %d: %w", partNumber, err)
		}

		part := MessagePart{PartNumber: partNumber, SizeBytes: int64(len(body))}
		switch ph := p.Header.(type) {
		case *mail.InlineHeader:
			part.ContentType, _, _ = ph.ContentType()
		case *mail.AttachmentHeader:
			part.ContentType, _, _ = ph.ContentType()
			part.Filename, _ = ph.Filename()
		}
		if part.ContentType == "" {
			part.ContentType = "text/plain"
		}
		if strings.HasPrefix(part.ContentType, "text/") && part.Filename == "" && utf8.Valid(body) {
			part.TextContent = string(body)
		}

		parsed.Parts = append(parsed.Parts, part)
		partNumber++
	}

	return parsed, nil
}

// decodeHeaders returns every header field in message order.
func decodeHeaders(h mail.Header) []MessageHeader {
	var headers []MessageHeader
	fields := h.Fields()
	for fields.Next() {
		name := strings.ToLower(fields.Key())
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		headers = append(headers, MessageHeader{
			Name:      name,
			Value:     value,
			SortValue: truncate(sortValue(h, name, value)),
		})
	}
	return headers
}

// sortValue returns the normalized value of a header used by SORT and THREAD.
func sortValue(h mail.Header, name, value string) string {
	switch {
	case name == "subject":
		return BaseSubject(value)
	case addressHeaders[name]:
		if addrs, err := h.AddressList(name); err == nil && len(addrs) > 0 {
			local, _, _ := strings.Cut(addrs[0].Address, "@")
			return strings.ToLower(local)
		}
	}
	return strings.ToLower(strings.TrimSpace(value))
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= sortWidth {
		return s
	}
	return string([]rune(s)[:sortWidth])
}

// Record converts the parsed message into a store record.
func (p *ParsedMessage) Record(flags db.Flags, internalDate time.Time) *db.Message {
	msg := &db.Message{
		Subject:      p.Subject,
		MessageID:    p.MessageID,
		InReplyTo:    p.InReplyTo,
		References:   p.References,
		SentDate:     p.Date,
		Size:         p.SizeBytes,
		Flags:        flags,
		InternalDate: internalDate,
	}
	for _, h := range p.Headers {
		msg.Headers = append(msg.Headers, db.Header{Name: h.Name, Value: h.Value, SortValue: h.SortValue})
	}
	for _, part := range p.Parts {
		msg.Parts = append(msg.Parts, db.Part{
			ContentType: part.ContentType,
			Filename:    part.Filename,
			Text:        part.TextContent,
			Size:        part.SizeBytes,
		})
	}
	return msg
}

// StoreMessage parses raw and appends it to a mailbox, returning the new UID.
func StoreMessage(ctx context.Context, database *db.DB, mailboxID int64, raw []byte, flags db.Flags, internalDate time.Time) (uint64, error) {
	parsed, err := ParseMessage(raw)
	if err != nil {
		return 0, err
	}
	uid, err := database.AppendMessage(ctx, mailboxID, parsed.Record(flags, internalDate))
	if err != nil {
		return 0, fmt.Errorf("failed to store message: %w", err)
	}
	return uid, nil
}
