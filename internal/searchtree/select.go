package searchtree

import "math"

// PathEntry records one descended edge: node n_i and its edge index k_i.
type PathEntry struct {
	NodeIdx uint32
	EdgeK   uint32
}

// SelectChild runs one PUCT step at nodeIdx for the player to move there.
// It returns the winning edge index and the
// materialised child node index; ok is false if the node has no live
// (materialised) edge to select, which the simulator treats as a stuck
// expanded leaf.
func (t *Tree[S, A]) SelectChild(nodeIdx uint32, player int) (edgeK uint32, childIdx uint32, ok bool) {
	base, count := t.windowFor(nodeIdx)

	sumN := int64(0)
	for k := uint32(0); k < count; k++ {
		s := base + uint64(k)
		if t.edges.childNodeIdx[s].Load() == SentinelIdx {
			continue
		}
		sumN += t.edges.n[s].Load()
	}
	sqrtSum := float32(math.Sqrt(math.Max(1, float64(sumN))))

	fpu := t.fpuValue(nodeIdx, player)

	bestScore := float32(math.Inf(-1))
	bestK := uint32(0)
	bestChild := SentinelIdx
	found := false

	for k := uint32(0); k < count; k++ {
		s := base + uint64(k)
		child := t.edges.childNodeIdx[s].Load()
		if child == SentinelIdx {
			continue
		}
		n := t.edges.n[s].Load()
		var q float32
		if n > 0 {
			w := t.edges.w[s*uint64(t.numPlayers)+uint64(player)].Load()
			q = float32(w) / float32(n)
		} else {
			q = fpu
		}
		prior := t.edges.prior[s].Load()
		u := t.cfg.CPuct * prior * sqrtSum / (1 + float32(n))
		score := q + u

		if !found || score > bestScore {
			bestScore = score
			bestK = k
			bestChild = child
			found = true
		}
	}

	if !found {
		return 0, SentinelIdx, false
	}
	return bestK, bestChild, true
}

// fpuValue implements first-play urgency for unvisited edges: with
// FPUReductionMax == 0 (the default) this reduces to a flat Q=0.
func (t *Tree[S, A]) fpuValue(nodeIdx uint32, player int) float32 {
	if t.cfg.FPUReductionMax == 0 {
		return 0
	}
	base, count := t.windowFor(nodeIdx)
	var exploredMass float32
	for k := uint32(0); k < count; k++ {
		s := base + uint64(k)
		if t.edges.n[s].Load() > 0 {
			exploredMass += t.edges.prior[s].Load()
		}
	}
	return -t.cfg.FPUReductionMax * float32(math.Sqrt(float64(exploredMass)))
}

// ApplyVirtualLoss is a pessimistic bias applied before descending into a
// child: N is bumped and W debited atomically for the traversing player.
func (t *Tree[S, A]) ApplyVirtualLoss(nodeIdx uint32, edgeK uint32, player int) {
	s := t.slotBase(nodeIdx) + uint64(edgeK)
	t.edges.n[s].Add(1)
	t.edges.w[s*uint64(t.numPlayers)+uint64(player)].Add(-float64(t.cfg.VirtualLoss))
}

// RevertVirtualLoss undoes ApplyVirtualLoss for an aborted descent.
func (t *Tree[S, A]) RevertVirtualLoss(nodeIdx uint32, edgeK uint32, player int) {
	s := t.slotBase(nodeIdx) + uint64(edgeK)
	t.edges.n[s].Add(-1)
	t.edges.w[s*uint64(t.numPlayers)+uint64(player)].Add(float64(t.cfg.VirtualLoss))
}

// CleanupPath reverts every edge in a partial path; called when a
// descent cannot complete (depth cap, no selectable child, OOM,
// expansion failure).
func (t *Tree[S, A]) CleanupPath(path []PathEntry, players []int) {
	for i, e := range path {
		t.RevertVirtualLoss(e.NodeIdx, e.EdgeK, players[i])
	}
}

// EdgeChild returns the materialised child of edge (nodeIdx, k), or
// SentinelIdx if not yet materialised.
func (t *Tree[S, A]) EdgeChild(nodeIdx uint32, k uint32) uint32 {
	s := t.slotBase(nodeIdx) + uint64(k)
	return t.edges.childNodeIdx[s].Load()
}

// EdgeAction returns the action label on edge (nodeIdx, k).
func (t *Tree[S, A]) EdgeAction(nodeIdx uint32, k uint32) A {
	s := t.slotBase(nodeIdx) + uint64(k)
	return t.edges.action[s]
}

// EdgeVisits and EdgePrior expose read-only edge stats for best-action
// selection and diagnostics.
func (t *Tree[S, A]) EdgeVisits(nodeIdx uint32, k uint32) int64 {
	s := t.slotBase(nodeIdx) + uint64(k)
	return t.edges.n[s].Load()
}

func (t *Tree[S, A]) EdgePrior(nodeIdx uint32, k uint32) float32 {
	s := t.slotBase(nodeIdx) + uint64(k)
	return t.edges.prior[s].Load()
}

func (t *Tree[S, A]) EdgeValueSum(nodeIdx uint32, k uint32, player int) float64 {
	s := t.slotBase(nodeIdx) + uint64(k)
	return t.edges.w[s*uint64(t.numPlayers)+uint64(player)].Load()
}
