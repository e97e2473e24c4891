package parser

import (
	"strings"

	sortthread "github.com/emersion/go-imap-sortthread"
)

// BaseSubject reduces a subject to the lowercased base subject compared by
// SORT SUBJECT and THREAD=ORDEREDSUBJECT.
func BaseSubject(subject string) string {
	base, _ := sortthread.GetBaseSubject(subject)
	return strings.ToLower(base)
}
