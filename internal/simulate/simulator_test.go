package simulate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"boardmcts/internal/mctsapi"
	"boardmcts/internal/refgame"
	"boardmcts/internal/searchtree"
)

func newTestTree(t *testing.T) (*searchtree.Tree[refgame.Position, refgame.Move], mctsapi.Config) {
	t.Helper()
	engine := refgame.Engine{}
	cfg := mctsapi.DefaultConfig()
	cfg.MaxNodes = 2048
	cfg.NumSearchThreads = 2
	cfg.BatchSize = 8

	tree := searchtree.NewTree[refgame.Position, refgame.Move](engine, cfg)
	require.NoError(t, tree.StartSearch(engine.InitialState(0), func(nodeIdx uint32, state refgame.Position) error {
		_, _, err := tree.TryExpand(nodeIdx, searchtree.NewWorkerCache(0))
		return err
	}))
	tree.SetSearchActive(true)
	return tree, cfg
}

func TestRunSimulationQueuesALeaf(t *testing.T) {
	tree, cfg := newTestTree(t)
	sim := New[refgame.Position, refgame.Move](0, tree, cfg)

	outcome, err := sim.RunSimulation()
	require.NoError(t, err)
	require.Equal(t, Continue, outcome)
	require.Len(t, sim.pending, 1)

	leaf := sim.pending[0]
	engine := refgame.Engine{}
	require.Len(t, leaf.History, cfg.HistorySize*mctsapi.HistorySlotWidth[refgame.Position, refgame.Move](engine))
	require.NotEmpty(t, leaf.Path)
}

func TestRunSimulationStopsWhenSearchInactive(t *testing.T) {
	tree, cfg := newTestTree(t)
	tree.SetSearchActive(false)
	sim := New[refgame.Position, refgame.Move](0, tree, cfg)

	outcome, err := sim.RunSimulation()
	require.NoError(t, err)
	require.Equal(t, Stopped, outcome)
}

func TestBuildHistoryPadsToHistorySize(t *testing.T) {
	tree, cfg := newTestTree(t)
	engine := refgame.Engine{}
	root := tree.RootIdx()

	slotWidth := mctsapi.HistorySlotWidth[refgame.Position, refgame.Move](engine)
	history := BuildHistory(tree, engine, cfg, nil, root)
	require.Len(t, history, cfg.HistorySize*slotWidth)
}

// TestBuildHistoryEncodesPathActions drives one real descent step and
// checks the resulting history tensor actually carries the taken action
// as a one-hot bit, not just state: the path slot before the leaf must
// have its action half set at the played action's index and its state
// half left zero, and the leaf slot must have a real state with a
// zero-padded action half.
func TestBuildHistoryEncodesPathActions(t *testing.T) {
	tree, cfg := newTestTree(t)
	engine := refgame.Engine{}
	root := tree.RootIdx()

	player := engine.CurrentPlayer(engine.InitialState(0))
	k, child, ok := tree.SelectChild(root, player)
	require.True(t, ok)
	action := tree.EdgeAction(root, k)
	path := []searchtree.PathEntry{{NodeIdx: root, EdgeK: k}}

	numElements := engine.NumElements()
	numMeta := engine.NumMeta()
	actionSpace := engine.ActionSpace()
	slotWidth := numElements + numMeta + actionSpace

	history := BuildHistory(tree, engine, cfg, path, child)
	require.Len(t, history, cfg.HistorySize*slotWidth)

	pathSlot := history[(cfg.HistorySize-2)*slotWidth : (cfg.HistorySize-1)*slotWidth]
	for _, v := range pathSlot[:numElements+numMeta] {
		require.Zero(t, v, "path slot's state and meta segments must be zero-padded")
	}
	require.Equal(t, float32(1), pathSlot[numElements+numMeta+engine.ActionToIdx(action)],
		"path slot's action segment must have the played action's bit set")

	leafSlot := history[(cfg.HistorySize-1)*slotWidth:]
	require.Equal(t, engine.ObsToIdx(tree.NodeState(child)), leafSlot[:numElements],
		"leaf slot's state segment must carry the leaf's encoded state")
	for _, v := range leafSlot[numElements+numMeta:] {
		require.Zero(t, v, "leaf slot's action segment must be zero-padded, no action chosen yet")
	}
}
