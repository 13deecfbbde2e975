package searchtree

// Backpropagate commits a completed descent's result along path.
// players[i] is the player who was to move at path[i].NodeIdx (the
// player virtual loss was debited against during selection); values is
// indexed by player.
//
// The virtual-loss cancellation term is added only to the column
// selection actually debited (players[i]); values[p] is added to every
// column. This keeps no stray virtual-loss residual for any player, not
// only the mover (see DESIGN.md).
func (t *Tree[S, A]) Backpropagate(path []PathEntry, players []int, values []float64) {
	for i, e := range path {
		s := t.slotBase(e.NodeIdx) + uint64(e.EdgeK)
		for p := 0; p < t.numPlayers; p++ {
			delta := values[p]
			if p == players[i] {
				delta += float64(t.cfg.VirtualLoss)
			}
			t.edges.w[s*uint64(t.numPlayers)+uint64(p)].Add(delta)
		}
	}
	t.simulationCount.Add(1)
}

// ApplyPriors overwrites the priors on every live edge of nodeIdx from a
// policy vector indexed by the engine's global action ids, normalising to
// sum 1 (falling back to uniform on a near-zero sum).
func (t *Tree[S, A]) ApplyPriors(nodeIdx uint32, policy []float32) {
	base, count := t.windowFor(nodeIdx)
	if count == 0 {
		return
	}

	gathered := make([]float32, count)
	var sum float32
	for k := uint32(0); k < count; k++ {
		s := base + uint64(k)
		action := t.edges.action[s]
		idx := t.engine.ActionToIdx(action)
		var p float32
		if idx >= 0 && idx < len(policy) {
			p = policy[idx]
		}
		if p < 0 {
			p = 0
		}
		gathered[k] = p
		sum += p
	}

	const epsilon = 1e-6
	if sum < epsilon {
		uniform := float32(1) / float32(count)
		for k := uint32(0); k < count; k++ {
			t.edges.prior[base+uint64(k)].Store(uniform)
		}
		return
	}
	inv := 1 / sum
	for k := uint32(0); k < count; k++ {
		t.edges.prior[base+uint64(k)].Store(gathered[k] * inv)
	}
}
