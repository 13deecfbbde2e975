package simulate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"boardmcts/internal/mctsapi"
	"boardmcts/internal/nneval"
)

func TestCoordinatorMergesConcurrentSubmissions(t *testing.T) {
	fake := &nneval.Fake{ActionSpace: 4, NumPlayers: 2}
	coord := NewCoordinator[int](fake, 20*time.Millisecond, 64, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			leaves := []PendingLeaf{{LeafNode: uint32(i), History: make([]float32, 4)}}
			_, err := coord.Submit(ctx, uint32(i), leaves)
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, fake.Calls, 1, "all three submissions should have merged into one evaluator call")
	require.Equal(t, 3, fake.Calls[0])
}

func TestCoordinatorPropagatesEvaluatorError(t *testing.T) {
	fake := &nneval.Fake{ActionSpace: 4, NumPlayers: 2, FailNext: 1}
	coord := NewCoordinator[int](fake, 5*time.Millisecond, 64, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx)

	_, err := coord.Submit(ctx, 0, []PendingLeaf{{History: make([]float32, 4)}})
	require.Error(t, err)
	var evalErr *mctsapi.EvaluatorError
	require.ErrorAs(t, err, &evalErr)
}
