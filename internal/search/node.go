package search

import (
	"time"

	"mailsearch/internal/mailbox"
)

// Kind identifies the predicate or combinator held by a Node.
type Kind int

const (
	KindSequenceSet Kind = iota
	KindUIDSet
	KindFlag
	KindKeyword
	KindUnKeyword
	KindHeader
	KindBody
	KindText
	KindSizeLarger
	KindSizeSmaller
	KindBefore
	KindOn
	KindSince
	KindOlder
	KindYounger
	KindSentBefore
	KindSentOn
	KindSentSince
	KindModSeq
	KindSort
	KindAnd
	KindOr
	KindNot
)

var kindNames = map[Kind]string{
	KindSequenceSet: "seqset",
	KindUIDSet:      "uidset",
	KindFlag:        "flag",
	KindKeyword:     "keyword",
	KindUnKeyword:   "unkeyword",
	KindHeader:      "header",
	KindBody:        "body",
	KindText:        "text",
	KindSizeLarger:  "larger",
	KindSizeSmaller: "smaller",
	KindBefore:      "before",
	KindOn:          "on",
	KindSince:       "since",
	KindOlder:       "older",
	KindYounger:     "younger",
	KindSentBefore:  "sentbefore",
	KindSentOn:      "senton",
	KindSentSince:   "sentsince",
	KindModSeq:      "modseq",
	KindSort:        "sort",
	KindAnd:         "and",
	KindOr:          "or",
	KindNot:         "not",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsCombinator reports whether k combines child results instead of matching messages.
func (k Kind) IsCombinator() bool {
	return k == KindAnd || k == KindOr || k == KindNot
}

// Flag is one of the six system flags kept per message.
type Flag int

const (
	FlagSeen Flag = iota
	FlagAnswered
	FlagDeleted
	FlagFlagged
	FlagRecent
	FlagDraft
)

// Column returns the message_mailbox column holding the flag.
func (f Flag) Column() string {
	switch f {
	case FlagSeen:
		return "seen_flag"
	case FlagAnswered:
		return "answered_flag"
	case FlagDeleted:
		return "deleted_flag"
	case FlagFlagged:
		return "flagged_flag"
	case FlagRecent:
		return "recent_flag"
	default:
		return "draft_flag"
	}
}

// Test reports the flag's value in m.
func (f Flag) Test(m mailbox.MessageInfo) bool {
	switch f {
	case FlagSeen:
		return m.Seen
	case FlagAnswered:
		return m.Answered
	case FlagDeleted:
		return m.Deleted
	case FlagFlagged:
		return m.Flagged
	case FlagRecent:
		return m.Recent
	default:
		return m.Draft
	}
}

// FlagCond requires Flag to have value Set.
type FlagCond struct {
	Flag Flag
	Set  bool
}

// Node is one predicate or combinator of a compiled search. Children are
// indexes into the owning Tree.
type Node struct {
	Kind     Kind
	Value    string
	Field    string
	Number   int64
	Date     time.Time
	Flags    []FlagCond
	Sort     SortChain
	Children []int

	found     *mailbox.FoundSet
	evaluated bool
	merged    bool
}

// Found returns the node's result from the last evaluation, or nil.
func (n *Node) Found() *mailbox.FoundSet {
	if !n.evaluated {
		return nil
	}
	return n.found
}

// Mode selects the grammar accepted by Compile.
type Mode int

const (
	ModeSearch Mode = iota
	ModeSort
	ModeThread
)

// Tree is a compiled search. Nodes[0] is always the root And node.
type Tree struct {
	Nodes     []Node
	Mode      Mode
	Charset   string
	ModSeq    uint64
	CondStore bool
	Algorithm ThreadAlgorithm
}

const root = 0

// Root returns the root node.
func (t *Tree) Root() *Node { return &t.Nodes[root] }

// SortChain returns the sort criteria compiled in sort mode.
func (t *Tree) SortChain() SortChain {
	for i := range t.Nodes {
		if t.Nodes[i].Kind == KindSort {
			return t.Nodes[i].Sort
		}
	}
	return nil
}

func (t *Tree) add(n Node) int {
	t.Nodes = append(t.Nodes, n)
	return len(t.Nodes) - 1
}

func (t *Tree) appendChild(parent, child int) {
	t.Nodes[parent].Children = append(t.Nodes[parent].Children, child)
}

func (t *Tree) reset() {
	for i := range t.Nodes {
		t.Nodes[i].found = nil
		t.Nodes[i].evaluated = false
		t.Nodes[i].merged = false
	}
}
