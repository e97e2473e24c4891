package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mailsearch/internal/mailbox"
)

const day = 24 * time.Hour

// evaluateLeaf computes the found set of one leaf predicate.
func (e *Engine) evaluateLeaf(ctx context.Context, n *Node) error {
	var (
		found *mailbox.FoundSet
		err   error
	)

	switch n.Kind {
	case KindSort:
		n.evaluated = true
		return nil
	case KindSequenceSet, KindUIDSet:
		return e.evaluateSet(n)
	case KindModSeq:
		// the threshold is applied to the final result
		found = e.universe.Clone()
	case KindUnKeyword:
		found, err = e.evaluateQuery(ctx, n)
		if err == nil {
			found = mailbox.Not(e.all(), found)
		}
	default:
		if e.opts.Strategy == StrategySnapshot && snapshotExpressible(n.Kind) {
			found = e.scan(n)
		} else {
			found, err = e.evaluateQuery(ctx, n)
		}
	}
	if err != nil {
		return err
	}

	n.found = found
	n.evaluated = true
	e.log.Debug("leaf evaluated",
		zap.Stringer("kind", n.Kind),
		zap.Int("found", found.Len()))
	return nil
}

func (e *Engine) evaluateSet(n *Node) error {
	found, err := e.snap.ResolveSet(n.Value, n.Kind == KindUIDSet)
	if err != nil {
		return syntaxErr(n.Value, err.Error())
	}
	metricLeaf.WithLabelValues("set").Inc()
	n.found = found
	n.evaluated = true
	return nil
}

// snapshotExpressible reports whether a predicate only needs snapshot metadata.
func snapshotExpressible(k Kind) bool {
	switch k {
	case KindFlag, KindSizeLarger, KindSizeSmaller,
		KindBefore, KindOn, KindSince, KindOlder, KindYounger:
		return true
	}
	return false
}

// scan tests a metadata predicate against every candidate of the universe.
func (e *Engine) scan(n *Node) *mailbox.FoundSet {
	metricLeaf.WithLabelValues(StrategySnapshot.String()).Inc()

	found := mailbox.NewFoundSet()
	for _, uid := range e.universe.UIDs() {
		m, ok := e.snap.Info(uid)
		if !ok {
			e.syncError(uid, "snapshot")
			continue
		}
		if !e.matches(n, m) {
			continue
		}
		seq, _ := e.universe.Seq(uid)
		found.Add(uid, seq)
	}
	return found
}

func (e *Engine) matches(n *Node, m mailbox.MessageInfo) bool {
	internal := m.InternalDate.UTC()
	switch n.Kind {
	case KindFlag:
		for _, cond := range n.Flags {
			if cond.Flag.Test(m) != cond.Set {
				return false
			}
		}
		return true
	case KindSizeLarger:
		return m.Size > n.Number
	case KindSizeSmaller:
		return m.Size < n.Number
	case KindBefore:
		return internal.Before(n.Date)
	case KindOn:
		return !internal.Before(n.Date) && internal.Before(n.Date.Add(day))
	case KindSince:
		return !internal.Before(n.Date)
	case KindOlder:
		return !internal.After(e.cutoff(n.Number))
	case KindYounger:
		return internal.After(e.cutoff(n.Number))
	}
	return false
}

// cutoff returns the instant seconds before now, truncated to whole seconds.
func (e *Engine) cutoff(seconds int64) time.Time {
	return e.opts.Now().UTC().Truncate(time.Second).Add(-time.Duration(seconds) * time.Second)
}
