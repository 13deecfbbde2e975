// Package simulate implements per-worker tree descent under PUCT with
// virtual loss, and the coordinator that turns accumulated leaves from
// many workers into a single batched evaluator call per round.
package simulate

import (
	"time"

	"boardmcts/internal/mctsapi"
	"boardmcts/internal/searchtree"
)

// Outcome is the per-call result of Simulator.RunSimulation: Continue to
// keep descending, BatchFull once the worker's pending batch is full, or
// Stopped once the tree's search-active flag has gone false.
type Outcome int

const (
	Continue Outcome = iota
	BatchFull
	Stopped
)

// PendingLeaf is one queued, non-terminal leaf awaiting evaluator
// inference.
type PendingLeaf struct {
	Path     []searchtree.PathEntry
	Players  []int
	LeafNode uint32
	History  []float32 // HistorySize*mctsapi.HistorySlotWidth flat tensor
}

// Simulator is per-worker descent state: a path scratch buffer, a
// pending-leaves batch, and a NodePool local cache.
type Simulator[S any, A comparable] struct {
	WorkerID uint32

	tree    *searchtree.Tree[S, A]
	engine  mctsapi.Engine[S, A]
	cfg     mctsapi.Config
	cache   *searchtree.WorkerCache
	pending []PendingLeaf
	cap     int
}

// New creates a worker's simulator. cap is
// ceil(global_batch_size / num_workers).
func New[S any, A comparable](workerID uint32, tree *searchtree.Tree[S, A], cfg mctsapi.Config) *Simulator[S, A] {
	cap := (cfg.BatchSize + cfg.NumSearchThreads - 1) / cfg.NumSearchThreads
	if cap < 1 {
		cap = 1
	}
	return &Simulator[S, A]{
		WorkerID: workerID,
		tree:     tree,
		engine:   tree.Engine(),
		cfg:      cfg,
		cache:    searchtree.NewWorkerCache(workerID),
		pending:  make([]PendingLeaf, 0, cap),
		cap:      cap,
	}
}

// TakePending drains and returns the worker's accumulated pending
// leaves, resetting the batch. Called by the controller when it flushes
// the worker's batch to the coordinator.
func (s *Simulator[S, A]) TakePending() []PendingLeaf {
	out := s.pending
	s.pending = make([]PendingLeaf, 0, s.cap)
	return out
}

// HasWork reports whether the worker has anything to contribute to the
// current batch round.
func (s *Simulator[S, A]) HasWork() bool { return len(s.pending) > 0 }

// RunSimulation performs one root-to-leaf descent.
func (s *Simulator[S, A]) RunSimulation() (Outcome, error) {
	if !s.tree.SearchActive() {
		return Stopped, nil
	}

	var path []searchtree.PathEntry
	var players []int
	nodeIdx := s.tree.RootIdx()

	for depth := 0; ; depth++ {
		if s.tree.IsTerminal(nodeIdx) {
			values := s.terminalValues(nodeIdx)
			s.tree.Backpropagate(path, players, values)
			return Continue, nil
		}
		if !s.tree.IsExpanded(nodeIdx) {
			break // candidate leaf
		}
		if s.tree.ChildCount(nodeIdx) == 0 {
			s.tree.CleanupPath(path, players)
			return Continue, nil
		}
		if depth >= s.cfg.MaxDepth {
			s.tree.CleanupPath(path, players)
			return Continue, nil
		}

		player := s.engine.CurrentPlayer(s.tree.NodeState(nodeIdx))
		k, child, ok := s.tree.SelectChild(nodeIdx, player)
		if !ok {
			s.tree.CleanupPath(path, players)
			return Continue, nil
		}
		s.tree.ApplyVirtualLoss(nodeIdx, k, player)
		path = append(path, searchtree.PathEntry{NodeIdx: nodeIdx, EdgeK: k})
		players = append(players, player)
		nodeIdx = child
	}

	outcome, terminalValues, expandErr := s.tree.TryExpand(nodeIdx, s.cache)
	switch outcome {
	case searchtree.ExpandLost:
		deadline := time.Now().Add(s.cfg.ExpansionSpinTimeout)
		if !s.tree.SpinWaitExpanded(nodeIdx, func() bool { return time.Now().After(deadline) }) {
			s.tree.CleanupPath(path, players)
			return Continue, nil
		}
		if s.tree.IsTerminal(nodeIdx) {
			s.tree.Backpropagate(path, players, s.terminalValues(nodeIdx))
			return Continue, nil
		}
	case searchtree.ExpandFailed:
		s.tree.CleanupPath(path, players)
		return Continue, &mctsapi.OutOfMemoryError{NodeIdx: nodeIdx}
	case searchtree.ExpandContractViolation:
		s.tree.CleanupPath(path, players)
		return Continue, expandErr
	case searchtree.ExpandedTerminal:
		s.tree.Backpropagate(path, players, terminalValues)
		return Continue, nil
	case searchtree.ExpandedInternal:
		// fall through to enqueue for inference
	}

	history := BuildHistory(s.tree, s.engine, s.cfg, path, nodeIdx)
	s.pending = append(s.pending, PendingLeaf{
		Path:     path,
		Players:  players,
		LeafNode: nodeIdx,
		History:  history,
	})
	if len(s.pending) >= s.cap {
		return BatchFull, nil
	}
	return Continue, nil
}

func (s *Simulator[S, A]) terminalValues(nodeIdx uint32) []float64 {
	values := make([]float64, s.engine.NumPlayers())
	s.engine.IsTerminal(s.tree.NodeState(nodeIdx), values)
	return values
}

// BuildHistory assembles the history window supplied to the evaluator
// for leafNode: the tree's cached root history followed by the (state,
// action) pairs along the current descent, truncated to the most recent
// HistorySize entries and zero-padded at the front when shorter. Shared
// by the per-worker descent loop and the controller's eager root
// expansion, so both feed the evaluator an identically shaped tensor.
//
// Each slot carries a state segment (NumElements wide), a meta-fact
// segment (NumMeta wide), and a one-hot action segment (ActionSpace
// wide), per mctsapi.HistorySlotWidth. A root-history entry has the
// state and meta segments real, since the state it was observed in and
// the action played from it are both known. A path entry (the current,
// still in-flight descent) only has a real action — the action taken at
// that step — since its resulting child state is itself the next slot,
// not this one; its state and meta segments are left zero-padded. The
// leaf entry being evaluated has a real state and meta segment and no
// action yet chosen, so its action segment is left zero-padded.
func BuildHistory[S any, A comparable](tree *searchtree.Tree[S, A], engine mctsapi.Engine[S, A], cfg mctsapi.Config, path []searchtree.PathEntry, leafNode uint32) []float32 {
	historySize := cfg.HistorySize
	numElements := engine.NumElements()
	numMeta := engine.NumMeta()
	actionSpace := engine.ActionSpace()
	slotWidth := numElements + numMeta + actionSpace

	type slot struct {
		state     []float32 // nil means zero-padded
		meta      []float32 // nil means zero-padded
		actionIdx int        // -1 means zero-padded
	}

	entries := make([]slot, 0, historySize)
	for _, h := range tree.RootHistorySnapshot() {
		entries = append(entries, slot{state: h.StateIdx, meta: h.MetaIdx, actionIdx: h.ActionIdx})
	}
	for _, p := range path {
		action := tree.EdgeAction(p.NodeIdx, p.EdgeK)
		entries = append(entries, slot{state: nil, meta: nil, actionIdx: engine.ActionToIdx(action)})
	}
	leafState := tree.NodeState(leafNode)
	entries = append(entries, slot{state: engine.ObsToIdx(leafState), meta: engine.ObsToMetaIdx(leafState), actionIdx: -1})

	if over := len(entries) - historySize; over > 0 {
		entries = entries[over:]
	}

	out := make([]float32, historySize*slotWidth)
	pad := historySize - len(entries)
	for i, e := range entries {
		base := (pad + i) * slotWidth
		if e.state != nil {
			copy(out[base:base+numElements], e.state)
		}
		if e.meta != nil {
			copy(out[base+numElements:base+numElements+numMeta], e.meta)
		}
		if e.actionIdx >= 0 && e.actionIdx < actionSpace {
			out[base+numElements+numMeta+e.actionIdx] = 1
		}
	}
	return out
}
