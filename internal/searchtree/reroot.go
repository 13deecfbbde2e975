package searchtree

import (
	"math"
	"math/rand"

	"boardmcts/internal/mctsapi"
)

// FreeSubtree returns every node reachable from rootIdx to the pool via an
// iterative DFS (an explicit stack, not recursion, to bound stack depth on
// deep trees). Every visited edge's child index is set to sentinel before
// descending into it; pinned nodes (keep_k retention) are skipped.
func (t *Tree[S, A]) FreeSubtree(rootIdx uint32, cache *WorkerCache) {
	if rootIdx == SentinelIdx {
		return
	}
	stack := []uint32{rootIdx}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &t.nodes[idx]
		if isPinned(&n.flags) {
			continue
		}

		base, count := t.windowFor(idx)
		for k := uint32(0); k < count; k++ {
			s := base + uint64(k)
			child := t.edges.childNodeIdx[s].Load()
			t.edges.childNodeIdx[s].Store(SentinelIdx)
			if child != SentinelIdx {
				stack = append(stack, child)
			}
		}

		n.flags.Store(0)
		n.childOffset.Store(SentinelIdx)
		n.childCount.Store(0)
		n.parentIdx.Store(SentinelIdx)

		if cache != nil {
			t.pool.Free(cache, idx)
		} else {
			t.pool.FreeGlobal(idx)
		}
	}
}

// RerootByPlayedAction advances the tree to the state after action,
// reusing the matching child subtree when configured to. It must observe
// SearchActive == false (InvalidLifecycleError otherwise). expand is the
// same eager-expansion callback StartSearch uses, invoked only on the
// restart-from-scratch path.
func (t *Tree[S, A]) RerootByPlayedAction(action A, expand func(nodeIdx uint32, state S) error) error {
	if t.searchActive.Load() {
		return &mctsapi.InvalidLifecycleError{Operation: "reroot_by_played_action"}
	}

	rootIdx := t.rootIdx.Load()
	oldState := t.nodes[rootIdx].state
	actionIdx := t.engine.ActionToIdx(action)

	base, count := t.windowFor(rootIdx)
	var matchK uint32
	found := false
	for k := uint32(0); k < count; k++ {
		if t.edges.action[base+uint64(k)] == action {
			matchK = k
			found = true
			break
		}
	}

	if t.cfg.ReuseTree && found {
		childIdx := t.edges.childNodeIdx[base+uint64(matchK)].Load()
		if childIdx != SentinelIdx {
			// Detach the chosen child, free every sibling and the old
			// root, then promote the child in place. Siblings may carry
			// the PINNED mark from a prior PruneRootToTopK call; unpin
			// before freeing since none of them are retained once the
			// root actually advances.
			t.edges.childNodeIdx[base+uint64(matchK)].Store(SentinelIdx)
			for k := uint32(0); k < count; k++ {
				if k == matchK {
					continue
				}
				sib := t.edges.childNodeIdx[base+uint64(k)].Load()
				t.edges.childNodeIdx[base+uint64(k)].Store(SentinelIdx)
				if sib != SentinelIdx {
					setPinned(&t.nodes[sib].flags, false)
					t.FreeSubtree(sib, nil)
				}
			}
			t.pool.FreeGlobal(rootIdx)

			setPinned(&t.nodes[childIdx].flags, false)
			t.nodes[childIdx].parentIdx.Store(SentinelIdx)
			t.rootIdx.Store(childIdx)
			t.simulationCount.Store(0)
			t.stopFlag.Store(false)
			t.appendHistory(oldState, actionIdx)
			t.CacheRootHistory()
			return nil
		}
	}

	// Not reusable: apply the action to the old root state, free the
	// entire old tree, and restart from scratch. Unpin every direct
	// child first so a prior PruneRootToTopK retention doesn't leak
	// pool slots once the whole tree is discarded.
	t.unpinDirectChildren(rootIdx)
	newState := oldState
	t.engine.ApplyAction(action, &newState)
	t.FreeSubtree(rootIdx, nil)
	if err := t.StartSearch(newState, expand); err != nil {
		return err
	}
	t.appendHistory(oldState, actionIdx)
	t.CacheRootHistory()
	return nil
}

func (t *Tree[S, A]) appendHistory(state S, actionIdx int) {
	t.historyMu.Lock()
	defer t.historyMu.Unlock()
	t.history = append(t.history, HistoryEntry{
		StateIdx:  t.engine.ObsToIdx(state),
		MetaIdx:   t.engine.ObsToMetaIdx(state),
		ActionIdx: actionIdx,
	})
	if over := len(t.history) - t.cfg.HistorySize; over > 0 {
		t.history = append([]HistoryEntry{}, t.history[over:]...)
	}
}

// HistoryLen returns the current root history length.
func (t *Tree[S, A]) HistoryLen() int {
	t.historyMu.Lock()
	defer t.historyMu.Unlock()
	return len(t.history)
}

// BestActionFromRoot selects a move at the root: argmax visit count at
// temperature 0 (ties broken first-found), sampling proportional to
// N^(1/tau) above the 1e-3 floor, and a highest-prior fallback when no
// root edge has visits.
func (t *Tree[S, A]) BestActionFromRoot(temperature float32, rng *rand.Rand) (A, bool) {
	rootIdx := t.rootIdx.Load()
	base, count := t.windowFor(rootIdx)

	var zero A
	if count == 0 {
		return zero, false
	}

	anyVisits := false
	for k := uint32(0); k < count; k++ {
		if t.edges.n[base+uint64(k)].Load() > 0 {
			anyVisits = true
			break
		}
	}
	if !anyVisits {
		bestK := uint32(0)
		bestP := float32(-1)
		for k := uint32(0); k < count; k++ {
			if t.edges.childNodeIdx[base+uint64(k)].Load() == SentinelIdx {
				continue
			}
			if p := t.edges.prior[base+uint64(k)].Load(); p > bestP {
				bestP = p
				bestK = k
			}
		}
		return t.edges.action[base+uint64(bestK)], true
	}

	if temperature < 1e-3 {
		bestK := uint32(0)
		bestN := int64(-1)
		for k := uint32(0); k < count; k++ {
			if n := t.edges.n[base+uint64(k)].Load(); n > bestN {
				bestN = n
				bestK = k
			}
		}
		return t.edges.action[base+uint64(bestK)], true
	}

	weights := make([]float64, count)
	var total float64
	invTau := 1 / float64(temperature)
	for k := uint32(0); k < count; k++ {
		n := float64(t.edges.n[base+uint64(k)].Load())
		w := math.Pow(n, invTau)
		weights[k] = w
		total += w
	}
	if total <= 0 {
		return t.BestActionFromRoot(0, rng)
	}
	r := rng.Float64() * total
	var acc float64
	for k := uint32(0); k < count; k++ {
		acc += weights[k]
		if r < acc {
			return t.edges.action[base+uint64(k)], true
		}
	}
	return t.edges.action[base+uint64(count-1)], true
}

// PruneRootToTopK frees every root child outside the top-k by visit
// count and pins the retained children, which FreeSubtree then skips.
// RerootByPlayedAction unpins root children before it frees any of them,
// so a pinned child is still released once the root advances past it.
//
// Safe to call repeatedly with an intervening search: visit counts may
// reshuffle the ranking between calls, so every previously-pinned child
// is unpinned before re-ranking. A child that drops out of the top-k on
// this call is therefore unpinned by the time FreeSubtree walks it and
// gets freed rather than skipped; one still in the top-k is immediately
// re-pinned below before any freeing happens.
func (t *Tree[S, A]) PruneRootToTopK(k int) {
	if k <= 0 {
		return
	}
	rootIdx := t.rootIdx.Load()
	base, count := t.windowFor(rootIdx)
	t.unpinDirectChildren(rootIdx)
	if int(count) <= k {
		return
	}

	type ranked struct {
		slot uint32
		n    int64
	}
	all := make([]ranked, 0, count)
	for i := uint32(0); i < count; i++ {
		all = append(all, ranked{i, t.edges.n[base+uint64(i)].Load()})
	}
	for i := 0; i < len(all)-1; i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].n > all[i].n {
				all[i], all[j] = all[j], all[i]
			}
		}
	}
	for _, r := range all[:k] {
		if child := t.edges.childNodeIdx[base+uint64(r.slot)].Load(); child != SentinelIdx {
			setPinned(&t.nodes[child].flags, true)
		}
	}
	for _, r := range all[k:] {
		s := base + uint64(r.slot)
		child := t.edges.childNodeIdx[s].Load()
		t.edges.childNodeIdx[s].Store(SentinelIdx)
		if child != SentinelIdx {
			t.FreeSubtree(child, nil)
		}
	}
}

// unpinDirectChildren clears PINNED on nodeIdx's immediate live children,
// undoing a prior PruneRootToTopK retention before the whole subtree is
// discarded.
func (t *Tree[S, A]) unpinDirectChildren(nodeIdx uint32) {
	base, count := t.windowFor(nodeIdx)
	for k := uint32(0); k < count; k++ {
		if child := t.edges.childNodeIdx[base+uint64(k)].Load(); child != SentinelIdx {
			setPinned(&t.nodes[child].flags, false)
		}
	}
}
