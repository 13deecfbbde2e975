// Package searchtree implements the shared search tree and its node
// allocator: node/edge state stored Structure-of-Arrays, selected and
// mutated through atomics, with PUCT selection under virtual loss,
// expansion, backpropagation, path abort and reroot.
package searchtree

import (
	"sync"
	"sync/atomic"

	"boardmcts/internal/mctsapi"
)

// nodeSlot is one arena entry. Edge state lives in the parallel edge
// arrays below, not here — only the node's own bookkeeping (parent,
// child window, flags) and its owned state.
type nodeSlot[S any] struct {
	parentIdx   atomic.Uint32
	flags       atomic.Uint32
	childOffset atomic.Uint32
	childCount  atomic.Uint32
	state       S
}

// edgeArrays holds the parallel, Structure-of-Arrays edge columns. Slot
// s = childOffset + k addresses one outgoing edge; W is indexed
// s*numPlayers+p.
type edgeArrays[A comparable] struct {
	childNodeIdx []atomic.Uint32
	action       []A
	prior        []atomicFloat32
	n            []atomic.Int64
	w            []atomicFloat64
}

// HistoryEntry is one (state, meta, action) triple in the root history
// window, stored in the encoded idx form the evaluator consumes.
type HistoryEntry struct {
	StateIdx  []float32
	MetaIdx   []float32
	ActionIdx int
}

// Tree is the shared search tree: the node/edge arena plus the root
// lifecycle state workers and the controller coordinate through.
type Tree[S any, A comparable] struct {
	engine mctsapi.Engine[S, A]
	cfg    mctsapi.Config

	numPlayers  int
	maxChildren int

	nodes []nodeSlot[S]
	edges edgeArrays[A]
	pool  *NodePool

	rootIdx atomic.Uint32

	historyMu   sync.Mutex
	history     []HistoryEntry
	historySnap []HistoryEntry // snapshot taken by CacheRootHistory, read during search

	searchActive      atomic.Bool
	stopFlag          atomic.Bool
	simulationCount   atomic.Int64
	targetSimulations atomic.Int64
}

// NewTree allocates the node/edge arenas for MaxNodes*MaxValidActions
// edges, one fixed-size edge window per node slot.
func NewTree[S any, A comparable](engine mctsapi.Engine[S, A], cfg mctsapi.Config) *Tree[S, A] {
	maxChildren := engine.MaxValidActions()
	numPlayers := engine.NumPlayers()
	capacity := uint32(cfg.MaxNodes)
	slots := uint64(capacity) * uint64(maxChildren)

	t := &Tree[S, A]{
		engine:      engine,
		cfg:         cfg,
		numPlayers:  numPlayers,
		maxChildren: maxChildren,
		nodes:       make([]nodeSlot[S], capacity),
		pool:        NewNodePool(capacity),
	}
	t.edges.childNodeIdx = make([]atomic.Uint32, slots)
	t.edges.action = make([]A, slots)
	t.edges.prior = make([]atomicFloat32, slots)
	t.edges.n = make([]atomic.Int64, slots)
	t.edges.w = make([]atomicFloat64, slots*uint64(numPlayers))
	for i := range t.edges.childNodeIdx {
		t.edges.childNodeIdx[i].Store(SentinelIdx)
	}
	t.rootIdx.Store(SentinelIdx)
	return t
}

// Pool exposes the NodePool for the lifecycle controller and simulators.
func (t *Tree[S, A]) Pool() *NodePool { return t.pool }

// Engine exposes the collaborator, e.g. for the controller's terminal
// detection outside a live descent.
func (t *Tree[S, A]) Engine() mctsapi.Engine[S, A] { return t.engine }

// Config returns the tree's configuration snapshot.
func (t *Tree[S, A]) Config() mctsapi.Config { return t.cfg }

// RootIdx returns the current root node index.
func (t *Tree[S, A]) RootIdx() uint32 { return t.rootIdx.Load() }

// SearchActive reports whether the tree currently accepts new descents.
func (t *Tree[S, A]) SearchActive() bool { return t.searchActive.Load() }

// SimulationCount returns the monotonic per-search simulation counter.
func (t *Tree[S, A]) SimulationCount() int64 { return t.simulationCount.Load() }

// SetSearchActive flips the flag workers consult to decide whether to
// keep descending.
func (t *Tree[S, A]) SetSearchActive(active bool) { t.searchActive.Store(active) }

// RequestStop asks every worker to abandon its current round at the
// next opportunity, independent of reaching target_simulations (used by
// the controller when ExecuteSearch's deadline passes).
func (t *Tree[S, A]) RequestStop() { t.stopFlag.Store(true) }

// StopRequested reports whether RequestStop has been called for the
// current search.
func (t *Tree[S, A]) StopRequested() bool { return t.stopFlag.Load() }

// SetTargetSimulations records how many simulations the current search
// is aiming for.
func (t *Tree[S, A]) SetTargetSimulations(n int64) { t.targetSimulations.Store(n) }

// TargetReached reports whether the simulation counter has met or passed
// the configured target.
func (t *Tree[S, A]) TargetReached() bool {
	return t.simulationCount.Load() >= t.targetSimulations.Load()
}

func (t *Tree[S, A]) slotBase(nodeIdx uint32) uint64 {
	return uint64(nodeIdx) * uint64(t.maxChildren)
}

// windowFor returns [start, start+childCount) for a node's fixed-size
// edge window.
func (t *Tree[S, A]) windowFor(nodeIdx uint32) (start uint64, count uint32) {
	start = t.slotBase(nodeIdx)
	count = t.nodes[nodeIdx].childCount.Load()
	return
}

// StartSearch allocates the root, eagerly expands it so workers never
// race on an unexpanded root, resets counters and caches root history.
// expand's error (e.g. an EngineContractViolation from the eager
// TryExpand call) propagates straight back to the caller.
func (t *Tree[S, A]) StartSearch(rootState S, expand func(nodeIdx uint32, state S) error) error {
	cache := NewWorkerCache(0)
	rootIdx := t.pool.Alloc(cache)
	// Alloc refilled this one-off cache with a whole stripe batch; hand the
	// unused remainder back to the stripes so it is not lost with the cache.
	for _, idx := range cache.local {
		s := t.pool.stripes[idx%numStripes]
		s.mu.Lock()
		s.free = append(s.free, idx)
		s.mu.Unlock()
	}
	n := &t.nodes[rootIdx]
	n.state = rootState
	n.parentIdx.Store(SentinelIdx)
	n.childOffset.Store(SentinelIdx)
	n.childCount.Store(0)
	n.flags.Store(0)

	t.rootIdx.Store(rootIdx)
	t.simulationCount.Store(0)
	t.stopFlag.Store(false)

	if err := expand(rootIdx, rootState); err != nil {
		return err
	}

	t.CacheRootHistory()
	return nil
}

// NodeState returns the state owned by a node. Safe to call once the
// node's existence has been observed via an atomically-published child
// index or the root index.
func (t *Tree[S, A]) NodeState(nodeIdx uint32) S {
	return t.nodes[nodeIdx].state
}

// IsExpanded, IsTerminal, IsExpanding report a node's flag bits.
func (t *Tree[S, A]) IsExpanded(nodeIdx uint32) bool  { return isExpanded(&t.nodes[nodeIdx].flags) }
func (t *Tree[S, A]) IsTerminal(nodeIdx uint32) bool  { return isTerminal(&t.nodes[nodeIdx].flags) }
func (t *Tree[S, A]) IsExpanding(nodeIdx uint32) bool { return isExpanding(&t.nodes[nodeIdx].flags) }

// ChildCount returns a node's current outgoing-edge count.
func (t *Tree[S, A]) ChildCount(nodeIdx uint32) uint32 {
	return t.nodes[nodeIdx].childCount.Load()
}

// CacheRootHistory snapshots the history window under the history mutex,
// so concurrent workers read a stable read-only view during a batch round.
func (t *Tree[S, A]) CacheRootHistory() {
	t.historyMu.Lock()
	defer t.historyMu.Unlock()
	snap := make([]HistoryEntry, len(t.history))
	copy(snap, t.history)
	t.historySnap = snap
}

// RootHistorySnapshot returns the last cached history snapshot. Workers
// read this during a batch round rather than the live (mutex-guarded)
// history, which is only mutated between searches.
func (t *Tree[S, A]) RootHistorySnapshot() []HistoryEntry {
	return t.historySnap
}
