package search

import (
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// literalDecoder returns the decoder turning literals in charset into UTF-8.
// A nil decoder means literals are used as given.
func literalDecoder(charset string) (*encoding.Decoder, error) {
	switch strings.ToUpper(charset) {
	case "UTF-8", "UTF8", "US-ASCII", "ASCII":
		return nil, nil
	}
	enc, err := ianaindex.MIME.Encoding(charset)
	if err != nil || enc == nil {
		return nil, &SyntaxError{Token: charset, Reason: "unknown charset", Err: ErrBadCharset}
	}
	return enc.NewDecoder(), nil
}

// threadCharsets are the charsets accepted by THREAD.
var threadCharsets = map[string]bool{
	"UTF-8":      true,
	"US-ASCII":   true,
	"ISO-8859-1": true,
}
