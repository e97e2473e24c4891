package mailbox

import (
	"fmt"
	"math"

	imap "github.com/emersion/go-imap"
)

// IsSetToken reports whether s only uses the characters of the set grammar.
func IsSetToken(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && c != ':' && c != ',' && c != '*' {
			return false
		}
	}
	return true
}

// ParseNumSet parses a set such as "1:5,7,9:*". A zero bound in the result
// stands for "*".
func ParseNumSet(s string) ([]imap.Seq, error) {
	if !IsSetToken(s) {
		return nil, fmt.Errorf("invalid set %q", s)
	}
	set, err := imap.ParseSeqSet(s)
	if err != nil {
		return nil, fmt.Errorf("invalid set %q: %w", s, err)
	}
	return set.Set, nil
}

// resolveRange maps r onto [lo, hi], returning ok=false when nothing is left.
// Zero and the largest 32-bit value both resolve to hi.
func resolveRange(r imap.Seq, lo, hi uint64) (uint64, uint64, bool) {
	start, stop := uint64(r.Start), uint64(r.Stop)
	if start == 0 || start == math.MaxUint32 {
		start = hi
	}
	if stop == 0 || stop == math.MaxUint32 {
		stop = hi
	}
	if start > stop {
		start, stop = stop, start
	}
	start = max(start, lo)
	stop = min(stop, hi)
	return start, stop, start <= stop
}
