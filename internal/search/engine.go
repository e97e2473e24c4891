package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailsearch/internal/mailbox"
)

// DefaultInListThreshold is the largest candidate set that is passed to the
// store as a "uid IN (...)" restriction.
const DefaultInListThreshold = 200

// Strategy selects how metadata predicates are evaluated.
type Strategy int

const (
	// StrategyQuery runs every predicate as a store query.
	StrategyQuery Strategy = iota
	// StrategySnapshot tests flag, size and internal date predicates against
	// the mailbox snapshot in memory.
	StrategySnapshot
)

func (s Strategy) String() string {
	if s == StrategySnapshot {
		return "snapshot"
	}
	return "query"
}

// ParseStrategy parses a configured strategy name.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(name) {
	case "", "query":
		return StrategyQuery, nil
	case "snapshot":
		return StrategySnapshot, nil
	}
	return StrategyQuery, fmt.Errorf("unknown search strategy %q", name)
}

// Store runs queries for the engine. Queries use "?" placeholders.
type Store interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	// InsensitiveLike returns the case-insensitive LIKE operator of the dialect.
	InsensitiveLike() string
}

// Snapshot is the read-only view of the selected mailbox.
type Snapshot interface {
	MailboxID() int64
	IDs() []uint64
	Info(uid uint64) (mailbox.MessageInfo, bool)
	Seq(uid uint64) (uint32, bool)
	ResolveSet(set string, uid bool) (*mailbox.FoundSet, error)
}

// Options configures an Engine.
type Options struct {
	Strategy Strategy
	// InListThreshold of zero disables the IN-list restriction.
	InListThreshold int
	Logger          *zap.Logger
	Now             func() time.Time
}

// DefaultOptions returns the query strategy with the default IN-list threshold.
func DefaultOptions() Options {
	return Options{
		Strategy:        StrategyQuery,
		InListThreshold: DefaultInListThreshold,
	}
}

// Engine evaluates compiled trees against one mailbox snapshot. An Engine is
// not safe for concurrent use.
type Engine struct {
	store    Store
	snap     Snapshot
	opts     Options
	log      *zap.Logger
	universe *mailbox.FoundSet
}

// New returns an Engine over snap that runs its queries through store.
func New(store Store, snap Snapshot, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.InListThreshold < 0 {
		opts.InListThreshold = 0
	}
	return &Engine{
		store: store,
		snap:  snap,
		opts:  opts,
		log:   opts.Logger.With(zap.Int64("mailbox", snap.MailboxID())),
	}
}

// Evaluate computes the messages matching t. The tree's per-node results are
// reset first, so a tree may be evaluated again after the mailbox changed.
func (e *Engine) Evaluate(ctx context.Context, t *Tree) (*mailbox.FoundSet, error) {
	start := time.Now()
	found, err := e.evaluate(ctx, t)
	observeCommand("search", start, err)
	return found, err
}

func (e *Engine) evaluate(ctx context.Context, t *Tree) (*mailbox.FoundSet, error) {
	if len(t.Nodes) == 0 {
		return nil, syntaxErr("", "empty search")
	}
	t.reset()
	e.universe = e.all()

	if err := e.prescan(t); err != nil {
		return nil, err
	}
	if err := e.evaluateLeaves(ctx, t, root); err != nil {
		return nil, err
	}

	found := e.merge(t, root).Clone()
	if t.CondStore {
		e.filterModSeq(found, t.ModSeq)
	}

	e.log.Debug("search finished",
		zap.Int("nodes", len(t.Nodes)),
		zap.Int("universe", e.universe.Len()),
		zap.Int("found", found.Len()))
	return found, nil
}

// all returns every live message of the snapshot.
func (e *Engine) all() *mailbox.FoundSet {
	found := mailbox.NewFoundSet()
	for _, uid := range e.snap.IDs() {
		if seq, ok := e.snap.Seq(uid); ok {
			found.Add(uid, seq)
		}
	}
	return found
}

// prescan resolves the set keys directly under the root first and narrows the
// universe with them before any other predicate runs.
func (e *Engine) prescan(t *Tree) error {
	for _, idx := range t.Nodes[root].Children {
		n := &t.Nodes[idx]
		if n.evaluated || (n.Kind != KindSequenceSet && n.Kind != KindUIDSet) {
			continue
		}
		if err := e.evaluateSet(n); err != nil {
			return err
		}
		e.universe.Intersect(n.found)
		n.merged = true
	}
	return nil
}

// evaluateLeaves walks the tree in pre-order and evaluates every leaf that
// the prescan did not handle.
func (e *Engine) evaluateLeaves(ctx context.Context, t *Tree, idx int) error {
	n := &t.Nodes[idx]
	if n.Kind.IsCombinator() {
		for _, child := range n.Children {
			if err := e.evaluateLeaves(ctx, t, child); err != nil {
				return err
			}
		}
		return nil
	}
	if n.evaluated {
		return nil
	}
	return e.evaluateLeaf(ctx, n)
}

// merge combines child results bottom-up. Each child is folded into its parent
// once; combinator results are kept on the node.
func (e *Engine) merge(t *Tree, idx int) *mailbox.FoundSet {
	n := &t.Nodes[idx]
	if n.evaluated {
		return n.found
	}

	var found *mailbox.FoundSet
	switch n.Kind {
	case KindAnd:
		if idx == root {
			found = e.universe.Clone()
		}
		for _, c := range n.Children {
			child := &t.Nodes[c]
			if child.merged || child.Kind == KindSort {
				continue
			}
			cf := e.merge(t, c)
			if found == nil {
				found = cf.Clone()
			} else {
				found.Intersect(cf)
			}
			child.merged = true
		}
		if found == nil {
			found = e.universe.Clone()
		}
	case KindOr:
		found = mailbox.Or(e.merge(t, n.Children[0]), e.merge(t, n.Children[1]))
		t.Nodes[n.Children[0]].merged = true
		t.Nodes[n.Children[1]].merged = true
	case KindNot:
		found = mailbox.Not(e.universe, e.merge(t, n.Children[0]))
		t.Nodes[n.Children[0]].merged = true
	default:
		found = mailbox.NewFoundSet()
	}

	n.found = found
	n.evaluated = true
	return found
}

// filterModSeq drops messages whose modification sequence does not exceed threshold.
func (e *Engine) filterModSeq(found *mailbox.FoundSet, threshold uint64) {
	for _, uid := range found.UIDs() {
		m, ok := e.snap.Info(uid)
		if !ok || m.ModSeq <= threshold {
			found.Remove(uid)
		}
	}
}

// HighestModSeq returns the largest modification sequence among found, as
// reported after a CONDSTORE search.
func (e *Engine) HighestModSeq(found *mailbox.FoundSet) uint64 {
	var highest uint64
	for _, uid := range found.UIDs() {
		if m, ok := e.snap.Info(uid); ok && m.ModSeq > highest {
			highest = m.ModSeq
		}
	}
	return highest
}

// syncError records a message reported by the store but missing from the snapshot.
func (e *Engine) syncError(uid uint64, source string) {
	metricSyncErrors.Inc()
	e.log.Warn("message not in mailbox snapshot",
		zap.Uint64("uid", uid),
		zap.String("source", source))
}
