package lmtp

import (
	"errors"
	"io"
	"slices"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"mailsearch/internal/delivery/storage"
)

// Session holds the envelope of one LMTP transaction
type Session struct {
	server     *Server
	log        *zap.Logger
	mailFrom   string
	recipients []string
}

func newSession(server *Server, remote string) *Session {
	return &Session{
		server: server,
		log:    server.log.With(zap.String("remote", remote)),
	}
}

var (
	errInvalidRecipient = &smtp.SMTPError{
		Code:         501,
		EnhancedCode: smtp.EnhancedCode{5, 1, 3},
		Message:      "Invalid recipient address",
	}
	errRelayDenied = &smtp.SMTPError{
		Code:         550,
		EnhancedCode: smtp.EnhancedCode{5, 7, 1},
		Message:      "Relay not permitted",
	}
)

// Mail handles the MAIL FROM command
func (s *Session) Mail(from string, _ *smtp.MailOptions) error {
	s.mailFrom = from
	return nil
}

// Rcpt handles the RCPT TO command
func (s *Session) Rcpt(to string, _ *smtp.RcptOptions) error {
	domain, err := storage.ExtractDomain(to)
	if err != nil {
		return errInvalidRecipient
	}
	if allowed := s.server.delivery.AllowedDomains; len(allowed) > 0 && !slices.Contains(allowed, domain) {
		s.log.Info("recipient rejected", zap.String("rcpt", to))
		return errRelayDenied
	}
	s.recipients = append(s.recipients, to)
	return nil
}

// Data delivers to every recipient and reports the first failure for all of them.
func (s *Session) Data(r io.Reader) error {
	results, err := s.deliver(r)
	if err != nil {
		return err
	}
	for _, rcpt := range s.recipients {
		if err := results[rcpt]; err != nil {
			return deliveryStatus(err)
		}
	}
	return nil
}

// LMTPData delivers to every recipient and reports one status per recipient.
func (s *Session) LMTPData(r io.Reader, status smtp.StatusCollector) error {
	results, err := s.deliver(r)
	if err != nil {
		return err
	}
	for _, rcpt := range s.recipients {
		status.SetStatus(rcpt, deliveryStatus(results[rcpt]))
	}
	return nil
}

func (s *Session) deliver(r io.Reader) (map[string]error, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.log.Warn("failed to read message data", zap.Error(err))
		return nil, err
	}

	folder := s.server.delivery.DefaultFolder
	results := s.server.storage.DeliverToMultipleRecipients(s.server.ctx, s.recipients, raw, folder)
	for _, rcpt := range s.recipients {
		if err := results[rcpt]; err != nil {
			metricDeliveries.WithLabelValues("error").Inc()
			s.log.Error("delivery failed", zap.String("rcpt", rcpt), zap.Error(err))
			continue
		}
		metricDeliveries.WithLabelValues("ok").Inc()
		s.log.Info("message delivered",
			zap.String("from", s.mailFrom),
			zap.String("rcpt", rcpt),
			zap.String("mailbox", folder))
	}
	return results, nil
}

// deliveryStatus maps a storage error onto the reply sent for a recipient.
func deliveryStatus(err error) error {
	if err == nil {
		return nil
	}
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return smtpErr
	}
	return &smtp.SMTPError{
		Code:         451,
		EnhancedCode: smtp.EnhancedCode{4, 3, 0},
		Message:      "Delivery failed, try again later",
	}
}

// Reset handles RSET and the end of a transaction
func (s *Session) Reset() {
	s.mailFrom = ""
	s.recipients = nil
}

// Logout is called when the client disconnects
func (s *Session) Logout() error {
	s.log.Debug("connection closed")
	return nil
}
