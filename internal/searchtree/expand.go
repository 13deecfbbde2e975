package searchtree

import (
	"fmt"

	"boardmcts/internal/mctsapi"
)

// ExpandOutcome reports what TryExpand accomplished for the calling
// worker.
type ExpandOutcome int

const (
	// ExpandLost means another worker already owns (or has finished)
	// expanding this node; the caller should spin-wait for it to finish.
	ExpandLost ExpandOutcome = iota
	// ExpandedTerminal means this worker won the CAS and the engine
	// reported a terminal position; TerminalValues holds the result and
	// no evaluator call is needed.
	ExpandedTerminal
	// ExpandedInternal means this worker won the CAS and published live
	// child edges with uniform priors; the caller must still queue the
	// node for evaluator inference to fill real priors and produce a
	// backprop value.
	ExpandedInternal
	// ExpandFailed means the winner could not materialise every child
	// (NodePool exhaustion, or usage already past MemoryThreshold); the
	// node reverts to CREATED so a later worker may retry once nodes free
	// up.
	ExpandFailed
	// ExpandContractViolation means the engine broke its contract (e.g.
	// ValidActions returned more actions than MaxValidActions declares);
	// this is fatal, not retryable, and the returned error carries the
	// detail.
	ExpandContractViolation
)

// TryExpand expands nodeIdx exactly once across the entire search: only
// the worker that wins tryLockExpansion's CAS executes the body; every
// other concurrent caller gets ExpandLost immediately. The returned
// error is only non-nil alongside ExpandContractViolation.
func (t *Tree[S, A]) TryExpand(nodeIdx uint32, cache *WorkerCache) (ExpandOutcome, []float64, error) {
	n := &t.nodes[nodeIdx]
	if !tryLockExpansion(&n.flags) {
		return ExpandLost, nil, nil
	}

	state := n.state
	values := make([]float64, t.numPlayers)
	if t.engine.IsTerminal(state, values) {
		n.childOffset.Store(uint32(t.slotBase(nodeIdx)))
		n.childCount.Store(0)
		publishExpanded(&n.flags, true)
		return ExpandedTerminal, values, nil
	}

	actions := t.engine.ValidActions(state)
	if len(actions) == 0 {
		// No legal actions but the engine didn't call it terminal: treat
		// as terminal with a neutral (zero) result rather than violating
		// the engine contract by guessing a winner.
		n.childOffset.Store(uint32(t.slotBase(nodeIdx)))
		n.childCount.Store(0)
		publishExpanded(&n.flags, true)
		return ExpandedTerminal, values, nil
	}
	if len(actions) > t.maxChildren {
		cancelExpansion(&n.flags)
		return ExpandContractViolation, nil, &mctsapi.EngineContractViolation{
			Detail:       fmt.Sprintf("valid_actions returned %d actions, exceeding max_valid_actions %d", len(actions), t.maxChildren),
			StateSnippet: fmt.Sprintf("%+v", state),
		}
	}

	if t.pool.UsedFraction() >= t.cfg.MemoryThreshold {
		cancelExpansion(&n.flags)
		return ExpandFailed, nil, nil
	}

	base := t.slotBase(nodeIdx)
	uniform := float32(1) / float32(len(actions))

	acquired := make([]uint32, 0, len(actions))
	ok := true
	for range actions {
		childIdx := t.pool.Alloc(cache)
		if childIdx == SentinelIdx {
			ok = false
			break
		}
		acquired = append(acquired, childIdx)
	}

	if !ok {
		for _, idx := range acquired {
			t.pool.Free(cache, idx)
		}
		cancelExpansion(&n.flags)
		return ExpandFailed, nil, nil
	}

	for k, action := range actions {
		childState := state
		t.engine.ApplyAction(action, &childState)
		childIdx := acquired[k]

		c := &t.nodes[childIdx]
		c.state = childState
		c.parentIdx.Store(nodeIdx)
		c.childOffset.Store(SentinelIdx)
		c.childCount.Store(0)
		c.flags.Store(0)

		s := base + uint64(k)
		t.edges.action[s] = action
		t.edges.prior[s].Store(uniform)
		t.edges.n[s].Store(0)
		for p := 0; p < t.numPlayers; p++ {
			t.edges.w[s*uint64(t.numPlayers)+uint64(p)].Store(0)
		}
		// Publish last, with release ordering, per invariant 5.
		t.edges.childNodeIdx[s].Store(childIdx)
	}

	n.childOffset.Store(uint32(base))
	n.childCount.Store(uint32(len(actions)))
	publishExpanded(&n.flags, false)
	return ExpandedInternal, nil, nil
}

// SpinWaitExpanded waits for another worker's in-flight expansion to
// finish, bounded by ExpansionSpinTimeout: it spins with bounded yield
// until EXPANDED is observed or the deadline elapses. Returns false on
// deadline (caller should abort the descent).
func (t *Tree[S, A]) SpinWaitExpanded(nodeIdx uint32, deadline func() bool) bool {
	n := &t.nodes[nodeIdx]
	for {
		if isExpanded(&n.flags) {
			return true
		}
		if !isExpanding(&n.flags) {
			// Expansion was cancelled (OOM) or never started; nothing to
			// wait for.
			return isExpanded(&n.flags)
		}
		if deadline() {
			return isExpanded(&n.flags)
		}
		gosched()
	}
}
