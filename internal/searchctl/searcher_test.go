package searchctl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"boardmcts/internal/mctsapi"
	"boardmcts/internal/nneval"
	"boardmcts/internal/refgame"
	"boardmcts/internal/searchlog"
)

func testSearcher(t *testing.T, numSimulations int) *Searcher[refgame.Position, refgame.Move] {
	t.Helper()
	engine := refgame.Engine{}
	fake := &nneval.Fake{ActionSpace: engine.ActionSpace(), NumPlayers: engine.NumPlayers()}

	cfg := mctsapi.DefaultConfig()
	cfg.MaxNodes = 8192
	cfg.NumSearchThreads = 4
	cfg.BatchSize = 16
	cfg.NumSimulations = numSimulations
	cfg.WaitForIdleTimeout = 5 * time.Second

	s, err := New[refgame.Position, refgame.Move](engine, fake, cfg, searchlog.New(testWriter{t}, "test"))
	require.NoError(t, err)
	require.NoError(t, s.NewGame(0))
	return s
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestExecuteSearchReachesTargetSimulations(t *testing.T) {
	s := testSearcher(t, 64)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.ExecuteSearch(ctx))

	require.GreaterOrEqual(t, s.Tree().SimulationCount(), int64(64))

	action, ok := s.BestAction()
	require.True(t, ok)
	_ = action
}

func TestRerootAfterSearchReusesTree(t *testing.T) {
	s := testSearcher(t, 32)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.ExecuteSearch(ctx))

	action, ok := s.BestAction()
	require.True(t, ok)
	require.NoError(t, s.ReRoot(action))

	require.NoError(t, s.ExecuteSearch(ctx))
	require.GreaterOrEqual(t, s.Tree().SimulationCount(), int64(32))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	engine := refgame.Engine{}
	fake := &nneval.Fake{ActionSpace: engine.ActionSpace(), NumPlayers: engine.NumPlayers()}
	cfg := mctsapi.DefaultConfig()
	cfg.MaxNodes = 0

	_, err := New[refgame.Position, refgame.Move](engine, fake, cfg, searchlog.New(testWriter{t}, "test"))
	require.Error(t, err)
	var cfgErr *mctsapi.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
