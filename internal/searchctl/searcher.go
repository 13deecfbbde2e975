// Package searchctl is the lifecycle controller: it owns the Tree, wires
// up one Simulator per worker plus the shared InferenceCoordinator, and
// drives ExecuteSearch's run-until-target-or-timeout protocol over a
// golang.org/x/sync/errgroup worker pool.
package searchctl

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"boardmcts/internal/mctsapi"
	"boardmcts/internal/searchtree"
	"boardmcts/internal/simulate"
)

// Searcher is one long-lived controller per ongoing game: it owns the
// tree, the worker pool, and the evaluator binding.
type Searcher[S any, A comparable] struct {
	tree      *searchtree.Tree[S, A]
	engine    mctsapi.Engine[S, A]
	cfg       mctsapi.Config
	evaluator mctsapi.Evaluator
	coord     *simulate.Coordinator[A]
	log       zerolog.Logger
	rng       *rand.Rand

	rootCache *searchtree.WorkerCache
}

// New validates cfg and wires a fresh Searcher around engine and
// evaluator. A ConfigError propagates straight from cfg.Validate.
func New[S any, A comparable](engine mctsapi.Engine[S, A], evaluator mctsapi.Evaluator, cfg mctsapi.Config, log zerolog.Logger) (*Searcher[S, A], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Searcher[S, A]{
		tree:      searchtree.NewTree[S, A](engine, cfg),
		engine:    engine,
		cfg:       cfg,
		evaluator: evaluator,
		coord:     simulate.NewCoordinator[A](evaluator, cfg.BarrierAnnounceDelay, cfg.BatchSize, log),
		log:       log,
		rng:       rand.New(rand.NewSource(1)),
		rootCache: searchtree.NewWorkerCache(0),
	}, nil
}

// Tree exposes the underlying SearchTree for callers that need direct
// read access (e.g. diagnostics, tests).
func (s *Searcher[S, A]) Tree() *searchtree.Tree[S, A] { return s.tree }

// NewGame starts the very first search of a game from the engine's
// initial state for playerID. An EngineContractViolation raised by the
// eager root expansion is fatal and propagates to the caller.
func (s *Searcher[S, A]) NewGame(playerID int) error {
	return s.tree.StartSearch(s.engine.InitialState(playerID), s.expandRoot)
}

// ReRoot plays action at the root, reusing the matching subtree when
// configured to.
func (s *Searcher[S, A]) ReRoot(action A) error {
	return s.tree.RerootByPlayedAction(action, s.expandRoot)
}

// expandRoot is StartSearch/RerootByPlayedAction's eager-expansion
// callback: expand the root synchronously and run one evaluator call
// immediately so root priors are real before any worker starts
// selecting, instead of leaving them uniform until the first batch
// round completes. An EngineContractViolation is logged and returned
// fatal; OOM and evaluator failures are recovered locally by keeping
// uniform priors.
func (s *Searcher[S, A]) expandRoot(nodeIdx uint32, state S) error {
	outcome, _, err := s.tree.TryExpand(nodeIdx, s.rootCache)
	if outcome == searchtree.ExpandContractViolation {
		s.log.Error().Err(err).Msg("searchctl: engine contract violation expanding root")
		return err
	}
	if outcome != searchtree.ExpandedInternal {
		return nil
	}
	history := simulate.BuildHistory(s.tree, s.engine, s.cfg, nil, nodeIdx)
	results, err := s.evaluator.ForwardBatch([][]float32{history})
	if err != nil {
		s.log.Warn().Err(err).Msg("searchctl: root evaluator call failed, keeping uniform priors")
		return nil
	}
	s.tree.ApplyPriors(nodeIdx, results[0].Policy)
	return nil
}

// ExecuteSearch runs NumSimulations simulations across NumSearchThreads
// workers, or until the supplied context is cancelled — a synchronous
// run-to-completion call.
func (s *Searcher[S, A]) ExecuteSearch(ctx context.Context) error {
	searchID := uuid.NewString()
	log := s.log.With().Str("search_id", searchID).Logger()

	target := int64(s.cfg.NumSimulations)
	s.tree.SetTargetSimulations(target)
	s.tree.SetSearchActive(true)
	defer s.tree.SetSearchActive(false)

	coordCtx, cancelCoord := context.WithCancel(ctx)
	defer cancelCoord()
	go s.coord.Run(coordCtx)

	group, groupCtx := errgroup.WithContext(ctx)
	for w := 0; w < s.cfg.NumSearchThreads; w++ {
		workerID := uint32(w)
		group.Go(func() error {
			return s.runWorker(groupCtx, workerID)
		})
	}

	waited := make(chan error, 1)
	go func() { waited <- group.Wait() }()

	deadline := s.cfg.WaitForIdleTimeout + time.Duration(target)*time.Microsecond

	select {
	case err := <-waited:
		if err != nil {
			log.Error().Err(err).Msg("searchctl: search terminated with an error")
		}
		return err
	case <-time.After(deadline):
		s.tree.RequestStop()
		<-waited
		return &mctsapi.SearchLivenessTimeout{SearchID: searchID, Waited: deadline.String()}
	}
}

func (s *Searcher[S, A]) runWorker(ctx context.Context, workerID uint32) error {
	sim := simulate.New(workerID, s.tree, s.cfg)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if s.tree.StopRequested() || s.tree.TargetReached() {
			return s.flush(ctx, sim)
		}

		outcome, err := sim.RunSimulation()
		switch {
		case err != nil:
			var oom *mctsapi.OutOfMemoryError
			if ok := isOutOfMemory(err, &oom); !ok {
				return err
			}
			s.log.Warn().Uint32("node", oom.NodeIdx).Msg("searchctl: node pool exhausted, continuing with a reduced tree")
			continue
		case outcome == simulate.Stopped:
			return s.flush(ctx, sim)
		case outcome == simulate.BatchFull:
			if err := s.flush(ctx, sim); err != nil {
				return err
			}
		}
	}
}

func (s *Searcher[S, A]) flush(ctx context.Context, sim *simulate.Simulator[S, A]) error {
	leaves := sim.TakePending()
	if len(leaves) == 0 {
		return nil
	}
	results, err := s.coord.Submit(ctx, sim.WorkerID, leaves)
	if err != nil {
		var evalErr *mctsapi.EvaluatorError
		if isEvaluatorError(err, &evalErr) {
			s.log.Error().Err(err).Msg("searchctl: evaluator call failed, discarding this round's pending leaves")
			for _, leaf := range leaves {
				s.tree.CleanupPath(leaf.Path, leaf.Players)
			}
			return nil
		}
		return err
	}
	for i, leaf := range leaves {
		s.tree.ApplyPriors(leaf.LeafNode, results[i].Policy)
		s.tree.Backpropagate(leaf.Path, leaf.Players, results[i].Values)
	}
	return nil
}

func isOutOfMemory(err error, target **mctsapi.OutOfMemoryError) bool {
	oom, ok := err.(*mctsapi.OutOfMemoryError)
	if ok {
		*target = oom
	}
	return ok
}

func isEvaluatorError(err error, target **mctsapi.EvaluatorError) bool {
	evalErr, ok := err.(*mctsapi.EvaluatorError)
	if ok {
		*target = evalErr
	}
	return ok
}

// BestAction returns the move ExecuteSearch's result recommends, using
// temperature-based selection over root visit counts.
func (s *Searcher[S, A]) BestAction() (A, bool) {
	return s.tree.BestActionFromRoot(s.cfg.Temperature, s.rng)
}

// PruneRoot applies the optional keep_k root-pruning feature between
// searches.
func (s *Searcher[S, A]) PruneRoot() {
	if s.cfg.KeepK > 0 {
		s.tree.PruneRootToTopK(s.cfg.KeepK)
	}
}

// WaitForIdle blocks until the current search (if any) has stopped
// accepting new descents, bounded by timeout.
func (s *Searcher[S, A]) WaitForIdle(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for s.tree.SearchActive() {
		if time.Now().After(deadline) {
			return fmt.Errorf("searchctl: wait for idle exceeded %s", timeout)
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}
