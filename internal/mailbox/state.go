package mailbox

import (
	"slices"
	"sort"
	"time"
)

// Message status values stored in message_mailbox.status. Rows at or above
// StatusDeleted are no longer part of the mailbox view.
const (
	StatusNew     = 0
	StatusSeen    = 1
	StatusDeleted = 2
	StatusPurge   = 3
)

// MessageInfo is the per-message metadata held by a mailbox snapshot.
type MessageInfo struct {
	UID          uint64
	Seen         bool
	Answered     bool
	Deleted      bool
	Flagged      bool
	Recent       bool
	Draft        bool
	Size         int64
	InternalDate time.Time
	ModSeq       uint64
}

// State is a read-only view of one selected mailbox, captured once per command.
type State struct {
	mailboxID int64
	uidNext   uint64
	uids      []uint64
	info      map[uint64]MessageInfo
	seqs      map[uint64]uint32
}

// NewState builds a snapshot from the live messages of a mailbox. Sequence
// numbers are assigned in ascending UID order.
func NewState(mailboxID int64, uidNext uint64, msgs []MessageInfo) *State {
	s := &State{
		mailboxID: mailboxID,
		uidNext:   uidNext,
		uids:      make([]uint64, 0, len(msgs)),
		info:      make(map[uint64]MessageInfo, len(msgs)),
		seqs:      make(map[uint64]uint32, len(msgs)),
	}
	for _, m := range msgs {
		if _, dup := s.info[m.UID]; dup {
			continue
		}
		s.info[m.UID] = m
		s.uids = append(s.uids, m.UID)
	}
	slices.Sort(s.uids)
	for i, uid := range s.uids {
		s.seqs[uid] = uint32(i + 1)
	}
	return s
}

func (s *State) MailboxID() int64 { return s.mailboxID }

func (s *State) UIDNext() uint64 { return s.uidNext }

// Exists returns the number of live messages.
func (s *State) Exists() int { return len(s.uids) }

// IDs returns the live UIDs in ascending order. Callers must not modify the slice.
func (s *State) IDs() []uint64 { return s.uids }

func (s *State) Info(uid uint64) (MessageInfo, bool) {
	m, ok := s.info[uid]
	return m, ok
}

func (s *State) Seq(uid uint64) (uint32, bool) {
	seq, ok := s.seqs[uid]
	return seq, ok
}

// All returns a found set holding every live message.
func (s *State) All() *FoundSet {
	f := NewFoundSet()
	for i, uid := range s.uids {
		f.Add(uid, uint32(i+1))
	}
	return f
}

// ResolveSet resolves a sequence set, or a UID set when uid is true, against the
// live messages. "*" is the highest sequence number or UID and ranges are
// clamped to the mailbox bounds.
func (s *State) ResolveSet(set string, uid bool) (*FoundSet, error) {
	ranges, err := ParseNumSet(set)
	if err != nil {
		return nil, err
	}

	found := NewFoundSet()
	if len(s.uids) == 0 {
		return found, nil
	}

	if uid {
		lo, hi := s.uids[0], s.uids[len(s.uids)-1]
		for _, r := range ranges {
			start, stop, ok := resolveRange(r, lo, hi)
			if !ok {
				continue
			}
			i := sort.Search(len(s.uids), func(i int) bool { return s.uids[i] >= start })
			for ; i < len(s.uids) && s.uids[i] <= stop; i++ {
				found.Add(s.uids[i], uint32(i+1))
			}
		}
		return found, nil
	}

	for _, r := range ranges {
		start, stop, ok := resolveRange(r, 1, uint64(len(s.uids)))
		if !ok {
			continue
		}
		for seq := start; seq <= stop; seq++ {
			found.Add(s.uids[seq-1], uint32(seq))
		}
	}
	return found, nil
}
