package mailbox

import (
	"slices"
)

// FoundSet maps message UIDs to their sequence numbers. Iteration is always in
// ascending UID order.
type FoundSet struct {
	seqs map[uint64]uint32
}

// NewFoundSet returns an empty found set.
func NewFoundSet() *FoundSet {
	return &FoundSet{seqs: make(map[uint64]uint32)}
}

// Add inserts uid with its sequence number, replacing any previous entry.
func (f *FoundSet) Add(uid uint64, seq uint32) {
	f.seqs[uid] = seq
}

// Remove drops uid from the set.
func (f *FoundSet) Remove(uid uint64) {
	delete(f.seqs, uid)
}

// Contains reports whether uid is in the set.
func (f *FoundSet) Contains(uid uint64) bool {
	if f == nil {
		return false
	}
	_, ok := f.seqs[uid]
	return ok
}

// Seq returns the sequence number recorded for uid.
func (f *FoundSet) Seq(uid uint64) (uint32, bool) {
	if f == nil {
		return 0, false
	}
	seq, ok := f.seqs[uid]
	return seq, ok
}

// Len returns the number of entries.
func (f *FoundSet) Len() int {
	if f == nil {
		return 0
	}
	return len(f.seqs)
}

// UIDs returns the UIDs in ascending order.
func (f *FoundSet) UIDs() []uint64 {
	if f == nil {
		return nil
	}
	uids := make([]uint64, 0, len(f.seqs))
	for uid := range f.seqs {
		uids = append(uids, uid)
	}
	slices.Sort(uids)
	return uids
}

// SeqNums returns the sequence numbers in ascending UID order.
func (f *FoundSet) SeqNums() []uint32 {
	uids := f.UIDs()
	seqs := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		seqs = append(seqs, f.seqs[uid])
	}
	return seqs
}

// Clone returns an independent copy.
func (f *FoundSet) Clone() *FoundSet {
	c := &FoundSet{seqs: make(map[uint64]uint32, f.Len())}
	if f != nil {
		for uid, seq := range f.seqs {
			c.seqs[uid] = seq
		}
	}
	return c
}

// Intersect keeps only the entries also present in other.
func (f *FoundSet) Intersect(other *FoundSet) {
	for uid := range f.seqs {
		if !other.Contains(uid) {
			delete(f.seqs, uid)
		}
	}
}

// Union adds every entry of other.
func (f *FoundSet) Union(other *FoundSet) {
	if other == nil {
		return
	}
	for uid, seq := range other.seqs {
		f.seqs[uid] = seq
	}
}

// Subtract removes every entry present in other.
func (f *FoundSet) Subtract(other *FoundSet) {
	if other == nil {
		return
	}
	for uid := range other.seqs {
		delete(f.seqs, uid)
	}
}

// And returns the intersection of a and b.
func And(a, b *FoundSet) *FoundSet {
	if a.Len() > b.Len() {
		a, b = b, a
	}
	r := a.Clone()
	r.Intersect(b)
	return r
}

// Or returns the union of a and b.
func Or(a, b *FoundSet) *FoundSet {
	r := a.Clone()
	r.Union(b)
	return r
}

// Not returns the entries of universe that are not in a.
func Not(universe, a *FoundSet) *FoundSet {
	r := universe.Clone()
	r.Subtract(a)
	return r
}
