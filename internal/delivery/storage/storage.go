package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"mailsearch/internal/db"
	"mailsearch/internal/delivery/parser"
)

// Storage handles message storage operations
type Storage struct {
	db  *db.DB
	log *zap.Logger
	now func() time.Time
}

// NewStorage creates a new storage handler
func NewStorage(database *db.DB, logger *zap.Logger) *Storage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Storage{
		db:  database,
		log: logger,
		now: time.Now,
	}
}

// Deliver stores raw in a mailbox of username, creating the user and the
// mailbox when needed, and returns the new UID.
func (s *Storage) Deliver(ctx context.Context, username, folder string, raw []byte, flags db.Flags) (uint64, error) {
	userID, err := s.db.GetOrCreateUser(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("failed to get/create user: %w", err)
	}

	mbox, err := s.db.GetOrCreateMailbox(ctx, userID, folder)
	if err != nil {
		return 0, fmt.Errorf("failed to get/create mailbox: %w", err)
	}

	uid, err := parser.StoreMessage(ctx, s.db, mbox.ID, raw, flags, s.now())
	if err != nil {
		return 0, err
	}

	s.log.Debug("message stored",
		zap.String("user", username),
		zap.String("mailbox", folder),
		zap.Uint64("uid", uid),
		zap.Int("size", len(raw)))
	return uid, nil
}

// DeliverMessage stores a message for a recipient address. New mail is
// flagged recent.
func (s *Storage) DeliverMessage(ctx context.Context, recipient string, raw []byte, folder string) error {
	username, err := ExtractLocalPart(recipient)
	if err != nil {
		return fmt.Errorf("failed to extract username: %w", err)
	}
	_, err = s.Deliver(ctx, username, folder, raw, db.Flags{Recent: true})
	return err
}

// DeliverToMultipleRecipients delivers a message to multiple recipients
func (s *Storage) DeliverToMultipleRecipients(ctx context.Context, recipients []string, raw []byte, folder string) map[string]error {
	results := make(map[string]error, len(recipients))
	for _, recipient := range recipients {
		results[recipient] = s.DeliverMessage(ctx, recipient, raw, folder)
	}
	return results
}

// CheckUserExists checks if a user exists in the store
func (s *Storage) CheckUserExists(ctx context.Context, username string) (bool, error) {
	_, err := s.db.GetUserByName(ctx, username)
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CheckRecipientExists checks if a recipient address maps onto a known user
func (s *Storage) CheckRecipientExists(ctx context.Context, recipient string) (bool, error) {
	username, err := ExtractLocalPart(recipient)
	if err != nil {
		return false, err
	}
	return s.CheckUserExists(ctx, username)
}

// GetMessageCountInFolder returns the number of live messages in a folder.
// Unknown users and folders count as empty.
func (s *Storage) GetMessageCountInFolder(ctx context.Context, username, folder string) (int, error) {
	userID, err := s.db.GetUserByName(ctx, username)
	if errors.Is(err, db.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	mbox, err := s.db.GetMailboxByName(ctx, userID, folder)
	if errors.Is(err, db.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	snap, err := s.db.LoadSnapshot(ctx, mbox.ID)
	if err != nil {
		return 0, err
	}
	return snap.Exists(), nil
}

// ExtractLocalPart extracts the local part of an address such as
// "user@example.com" or "Name <user@example.com>".
func ExtractLocalPart(address string) (string, error) {
	local, _, err := splitAddress(address)
	return local, err
}

// ExtractDomain extracts the lowercased domain of an address.
func ExtractDomain(address string) (string, error) {
	_, domain, err := splitAddress(address)
	return strings.ToLower(domain), err
}

func splitAddress(address string) (string, string, error) {
	address = strings.TrimSpace(address)
	if strings.ContainsAny(address, "<>") {
		addr, err := mail.ParseAddress(address)
		if err != nil {
			return "", "", fmt.Errorf("failed to parse address: %w", err)
		}
		address = addr.Address
	}

	local, domain, ok := strings.Cut(address, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return "", "", fmt.Errorf("invalid email format: %s", address)
	}
	return local, domain, nil
}
