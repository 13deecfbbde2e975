package searchtree

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardmcts/internal/mctsapi"
	"boardmcts/internal/refgame"
)

func testConfig() mctsapi.Config {
	cfg := mctsapi.DefaultConfig()
	cfg.MaxNodes = 4096
	cfg.NumSearchThreads = 4
	return cfg
}

func newTestTree(t *testing.T) (*Tree[refgame.Position, refgame.Move], refgame.Engine) {
	t.Helper()
	engine := refgame.Engine{}
	tree := NewTree[refgame.Position, refgame.Move](engine, testConfig())
	cache := NewWorkerCache(0)
	tree.StartSearch(engine.InitialState(0), func(nodeIdx uint32, state refgame.Position) error {
		outcome, _, err := tree.TryExpand(nodeIdx, cache)
		require.Equal(t, ExpandedInternal, outcome)
		return err
	})
	// Return the expansion cache's unused indices to the stripes, so
	// FreeCount (which counts stripes only) sees every free index.
	for _, idx := range cache.local {
		s := tree.pool.stripes[idx%numStripes]
		s.free = append(s.free, idx)
	}
	return tree, engine
}

func TestStartSearchExpandsRootEagerly(t *testing.T) {
	tree, _ := newTestTree(t)
	root := tree.RootIdx()
	assert.True(t, tree.IsExpanded(root))
	assert.False(t, tree.IsTerminal(root))
	assert.Greater(t, tree.ChildCount(root), uint32(0))
}

func TestSelectChildReturnsLiveEdge(t *testing.T) {
	tree, engine := newTestTree(t)
	root := tree.RootIdx()
	player := engine.CurrentPlayer(engine.InitialState(0))

	k, child, ok := tree.SelectChild(root, player)
	require.True(t, ok)
	assert.Less(t, k, tree.ChildCount(root))
	assert.NotEqual(t, SentinelIdx, child)
}

func TestVirtualLossRevertIsNeutral(t *testing.T) {
	tree, engine := newTestTree(t)
	root := tree.RootIdx()
	player := engine.CurrentPlayer(engine.InitialState(0))

	k, _, ok := tree.SelectChild(root, player)
	require.True(t, ok)

	nBefore := tree.EdgeVisits(root, k)
	wBefore := tree.EdgeValueSum(root, k, player)

	tree.ApplyVirtualLoss(root, k, player)
	assert.Equal(t, nBefore+1, tree.EdgeVisits(root, k))

	tree.RevertVirtualLoss(root, k, player)
	assert.Equal(t, nBefore, tree.EdgeVisits(root, k))
	assert.InDelta(t, wBefore, tree.EdgeValueSum(root, k, player), 1e-9)
}

func TestExpansionIsExactlyOnce(t *testing.T) {
	engine := refgame.Engine{}
	tree := NewTree[refgame.Position, refgame.Move](engine, testConfig())
	tree.StartSearch(engine.InitialState(0), func(uint32, refgame.Position) error { return nil })

	root := tree.RootIdx()
	const workers = 16
	outcomes := make([]ExpandOutcome, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cache := NewWorkerCache(uint32(i))
			outcome, _, _ := tree.TryExpand(root, cache)
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, o := range outcomes {
		if o == ExpandedInternal || o == ExpandedTerminal {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one caller should win the expansion CAS")
}

func TestNodePoolAllocFreeConservesCapacity(t *testing.T) {
	const capacity = 256
	pool := NewNodePool(capacity)
	cache := NewWorkerCache(0)

	allocated := make([]uint32, 0, capacity)
	for {
		idx := pool.Alloc(cache)
		if idx == SentinelIdx {
			break
		}
		allocated = append(allocated, idx)
	}
	assert.Equal(t, capacity, len(allocated))

	for _, idx := range allocated {
		pool.Free(cache, idx)
	}
	assert.Equal(t, capacity, pool.FreeCount(cache))
}

// TestNodePoolFreeDoesNotDuplicateOrLoseIndices drives enough sequential
// Free calls on one cache to trigger several flushes to a stripe (cap=256,
// soft-max=128, flush batch=64 means every 64 frees past the soft max
// flushes), then asserts every free index appears in exactly one of the
// stripe free-lists or the local cache — never zero times (lost) and never
// more than once (duplicated, which would let two Alloc calls hand out the
// same node index).
func TestNodePoolFreeDoesNotDuplicateOrLoseIndices(t *testing.T) {
	const capacity = 256
	pool := NewNodePool(capacity)
	cache := NewWorkerCache(0)

	allocated := make([]uint32, 0, capacity)
	for {
		idx := pool.Alloc(cache)
		if idx == SentinelIdx {
			break
		}
		allocated = append(allocated, idx)
	}
	require.Equal(t, capacity, len(allocated))

	for _, idx := range allocated {
		pool.Free(cache, idx)
	}

	seen := make(map[uint32]int, capacity)
	for _, s := range pool.stripes {
		for _, idx := range s.free {
			seen[idx]++
		}
	}
	for _, idx := range cache.local {
		seen[idx]++
	}

	assert.Len(t, seen, capacity, "every freed index should be present somewhere")
	for idx, count := range seen {
		assert.Equal(t, 1, count, "index %d appeared %d times across stripes/cache, want exactly 1", idx, count)
	}
}

// TestPruneRootToTopKReleasesDemotedChildrenAcrossCalls calls
// PruneRootToTopK twice with no intervening reroot, the second call with
// a smaller k than the first: a child pinned (retained) by the first
// call is demoted out of the top-k by the second. It must actually be
// freed back to the pool, not orphaned — unreachable from the tree yet
// absent from every free-list, which would permanently shrink usable
// pool capacity.
func TestPruneRootToTopKReleasesDemotedChildrenAcrossCalls(t *testing.T) {
	tree, _ := newTestTree(t)
	root := tree.RootIdx()
	base, count := tree.windowFor(root)
	require.GreaterOrEqual(t, count, uint32(4), "need at least 4 root children for a meaningful prune test")

	for i := uint32(0); i < count; i++ {
		tree.edges.n[base+uint64(i)].Store(int64(count-i) * 10)
	}

	tree.PruneRootToTopK(3)
	for i := uint32(0); i < 3; i++ {
		child := tree.edges.childNodeIdx[base+uint64(i)].Load()
		require.NotEqual(t, SentinelIdx, child)
		assert.True(t, isPinned(&tree.nodes[child].flags), "top-3 child %d should be pinned after the first prune", i)
	}
	for i := uint32(3); i < count; i++ {
		assert.Equal(t, SentinelIdx, tree.edges.childNodeIdx[base+uint64(i)].Load())
	}

	tree.PruneRootToTopK(1)

	survivor := tree.edges.childNodeIdx[base].Load()
	require.NotEqual(t, SentinelIdx, survivor)
	assert.True(t, isPinned(&tree.nodes[survivor].flags))
	for i := uint32(1); i < count; i++ {
		assert.Equal(t, SentinelIdx, tree.edges.childNodeIdx[base+uint64(i)].Load())
	}

	inUse := 2 // root + the one surviving pinned child
	assert.Equal(t, int(tree.pool.Capacity())-inUse, tree.pool.FreeCount(),
		"children demoted by the second prune must be freed, not leaked")
}

func TestApplyPriorsNormalisesToOne(t *testing.T) {
	tree, engine := newTestTree(t)
	root := tree.RootIdx()

	policy := make([]float32, engine.ActionSpace())
	for i := range policy {
		policy[i] = 0.01
	}
	tree.ApplyPriors(root, policy)

	base, count := tree.windowFor(root)
	var sum float32
	for k := uint32(0); k < count; k++ {
		sum += tree.edges.prior[base+uint64(k)].Load()
	}
	assert.InDelta(t, 1.0, float64(sum), 1e-3)
}

func TestRerootByPlayedActionReusesMatchingChild(t *testing.T) {
	tree, engine := newTestTree(t)
	root := tree.RootIdx()

	base, count := tree.windowFor(root)
	require.Greater(t, count, uint32(0))
	action := tree.edges.action[base]
	expectedChild := tree.edges.childNodeIdx[base].Load()

	err := tree.RerootByPlayedAction(action, func(nodeIdx uint32, state refgame.Position) error {
		_, _, err := tree.TryExpand(nodeIdx, NewWorkerCache(0))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, expectedChild, tree.RootIdx())
	assert.Equal(t, 1, tree.HistoryLen())
	_ = engine
}

func TestRerootWhileSearchActiveIsRejected(t *testing.T) {
	tree, _ := newTestTree(t)
	tree.SetSearchActive(true)
	defer tree.SetSearchActive(false)

	base, _ := tree.windowFor(tree.RootIdx())
	action := tree.edges.action[base]

	err := tree.RerootByPlayedAction(action, func(uint32, refgame.Position) error { return nil })
	var lifecycleErr *mctsapi.InvalidLifecycleError
	require.ErrorAs(t, err, &lifecycleErr)
}

func TestBestActionFromRootIsDeterministicAtZeroTemperature(t *testing.T) {
	tree, _ := newTestTree(t)
	root := tree.RootIdx()
	base, count := tree.windowFor(root)
	require.Greater(t, count, uint32(0))

	// Give one edge a clear visit-count lead.
	tree.edges.n[base].Store(100)

	a1, ok1 := tree.BestActionFromRoot(0, nil)
	a2, ok2 := tree.BestActionFromRoot(0, nil)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, a1, a2)
	assert.Equal(t, tree.edges.action[base], a1)
}
