package search

import (
	"errors"
	"fmt"
)

var (
	// ErrBadCharset is wrapped by the SyntaxError returned for an unsupported CHARSET.
	ErrBadCharset = errors.New("unsupported charset")

	// ErrUnsupportedAlgorithm is returned by Thread for algorithms without an executor.
	ErrUnsupportedAlgorithm = errors.New("unsupported thread algorithm")
)

// SyntaxError reports a malformed search, sort or thread argument list. It is
// only ever produced while compiling.
type SyntaxError struct {
	Token  string
	Reason string
	Err    error
}

func (e *SyntaxError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("search syntax error: %s", e.Reason)
	}
	return fmt.Sprintf("search syntax error at %q: %s", e.Token, e.Reason)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// DatabaseError wraps a failed store query. Any DatabaseError aborts the whole
// search, sort or thread call.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

func syntaxErr(token, reason string) error {
	return &SyntaxError{Token: token, Reason: reason}
}
