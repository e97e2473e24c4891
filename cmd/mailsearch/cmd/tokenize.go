package cmd

import (
	"fmt"
	"strings"
)

// tokenize splits IMAP search arguments into tokens. Parentheses outside
// quotes are tokens of their own and quoted strings lose their quotes, so
// `SUBJECT "a b"` yields SUBJECT and a b.
func tokenize(criteria string) ([]string, error) {
	var (
		tokens   []string
		current  strings.Builder
		inQuotes bool
		quoted   bool
	)

	flush := func() {
		if current.Len() > 0 || quoted {
			tokens = append(tokens, current.String())
		}
		current.Reset()
		quoted = false
	}

	for i := 0; i < len(criteria); i++ {
		ch := criteria[i]

		if inQuotes {
			switch ch {
			case '\\':
				if i+1 < len(criteria) && (criteria[i+1] == '"' || criteria[i+1] == '\\') {
					i++
					current.WriteByte(criteria[i])
				} else {
					current.WriteByte(ch)
				}
			case '"':
				inQuotes = false
			default:
				current.WriteByte(ch)
			}
			continue
		}

		switch ch {
		case '"':
			inQuotes = true
			quoted = true
		case '(', ')':
			flush()
			tokens = append(tokens, string(ch))
		case ' ', '\t', '\r', '\n':
			flush()
		default:
			current.WriteByte(ch)
		}
	}

	if inQuotes {
		return nil, fmt.Errorf("unterminated quoted string")
	}
	flush()
	return tokens, nil
}

// tokenizeArgs joins command line arguments and tokenizes the result.
func tokenizeArgs(args []string) ([]string, error) {
	return tokenize(strings.Join(args, " "))
}
