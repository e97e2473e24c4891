package lmtp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/emersion/go-smtp"

	"mailsearch/internal/conf"
	"mailsearch/internal/db"
	"mailsearch/internal/delivery/storage"
)

type statusRecorder map[string]error

func (r statusRecorder) SetStatus(rcpt string, err error) { r[rcpt] = err }

func newTestSession(t *testing.T, allowed ...string) (*Session, *storage.Storage) {
	t.Helper()
	database, err := db.Open(db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if err := database.InitSchema(context.Background()); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}

	cfg := conf.DefaultConfig()
	cfg.Delivery.AllowedDomains = allowed
	stor := storage.NewStorage(database, nil)
	return newSession(NewServer(cfg, stor, nil), "127.0.0.1:54321"), stor
}

func TestSessionRcpt(t *testing.T) {
	s, _ := newTestSession(t, "example.com")

	if err := s.Mail("sender@example.com", nil); err != nil {
		t.Fatalf("Mail failed: %v", err)
	}
	if err := s.Rcpt("user@example.com", nil); err != nil {
		t.Errorf("Allowed recipient rejected: %v", err)
	}
	if err := s.Rcpt("user@example.org", nil); !errors.Is(err, errRelayDenied) {
		t.Errorf("Expected relay denied, got %v", err)
	}
	if err := s.Rcpt("no-domain", nil); !errors.Is(err, errInvalidRecipient) {
		t.Errorf("Expected invalid recipient, got %v", err)
	}
	if len(s.recipients) != 1 {
		t.Errorf("Expected 1 recipient, got %v", s.recipients)
	}

	s.Reset()
	if s.mailFrom != "" || len(s.recipients) != 0 {
		t.Errorf("Reset left state behind: %q %v", s.mailFrom, s.recipients)
	}
}

func TestSessionLMTPData(t *testing.T) {
	s, stor := newTestSession(t)
	_ = s.Mail("sender@example.com", nil)
	_ = s.Rcpt("dave@example.com", nil)
	_ = s.Rcpt("erin@example.com", nil)

	status := statusRecorder{}
	raw := []byte("From: sender@example.com\r\nSubject: hi\r\n\r\nbody\r\n")
	if err := s.LMTPData(bytes.NewReader(raw), status); err != nil {
		t.Fatalf("LMTPData failed: %v", err)
	}
	if len(status) != 2 || status["dave@example.com"] != nil || status["erin@example.com"] != nil {
		t.Errorf("Unexpected statuses: %v", status)
	}

	count, err := stor.GetMessageCountInFolder(context.Background(), "erin", "INBOX")
	if err != nil || count != 1 {
		t.Errorf("Expected 1 message for erin, got %d (%v)", count, err)
	}
}

func TestSessionLMTPData_AfterShutdown(t *testing.T) {
	s, stor := newTestSession(t)
	_ = s.Mail("sender@example.com", nil)
	_ = s.Rcpt("gina@example.com", nil)

	if err := s.server.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	status := statusRecorder{}
	raw := []byte("From: sender@example.com\r\nSubject: late\r\n\r\nbody\r\n")
	if err := s.LMTPData(bytes.NewReader(raw), status); err != nil {
		t.Fatalf("LMTPData failed: %v", err)
	}

	var smtpErr *smtp.SMTPError
	if err := status["gina@example.com"]; !errors.As(err, &smtpErr) || smtpErr.Code != 451 {
		t.Errorf("Expected temporary failure after shutdown, got %v", err)
	}
	count, err := stor.GetMessageCountInFolder(context.Background(), "gina", "INBOX")
	if err != nil || count != 0 {
		t.Errorf("Expected nothing delivered after shutdown, got %d (%v)", count, err)
	}
}

func TestSessionData(t *testing.T) {
	s, _ := newTestSession(t)
	_ = s.Mail("sender@example.com", nil)
	_ = s.Rcpt("frank@example.com", nil)

	raw := []byte("From: sender@example.com\r\nSubject: hi\r\n\r\nbody\r\n")
	if err := s.Data(bytes.NewReader(raw)); err != nil {
		t.Errorf("Data failed: %v", err)
	}
}

func TestDeliveryStatus(t *testing.T) {
	if deliveryStatus(nil) != nil {
		t.Error("Expected nil status for successful delivery")
	}

	var smtpErr *smtp.SMTPError
	if err := deliveryStatus(fmt.Errorf("disk full")); !errors.As(err, &smtpErr) || smtpErr.Code != 451 {
		t.Errorf("Expected temporary failure, got %v", err)
	}

	wrapped := fmt.Errorf("wrapped: %w", errRelayDenied)
	if err := deliveryStatus(wrapped); !errors.As(err, &smtpErr) || smtpErr.Code != 550 {
		t.Errorf("Expected the wrapped SMTP error, got %v", err)
	}
}
