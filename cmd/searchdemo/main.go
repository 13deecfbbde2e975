// Command searchdemo plays a self-play game against itself using the
// searchctl Searcher: parse a handful of flags, run a move loop, print a
// progress line per move. It takes an -onnx model path; without one it
// falls back to the deterministic fake evaluator so the demo runs without
// a model on disk.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/rs/zerolog"

	"boardmcts/internal/mctsapi"
	"boardmcts/internal/nneval"
	"boardmcts/internal/refgame"
	"boardmcts/internal/searchctl"
	"boardmcts/internal/searchlog"
)

func main() {
	modelPath := flag.String("onnx", "", "path to an ONNX model; empty uses a deterministic fake evaluator")
	libPath := flag.String("lib", "onnxruntime.so", "path to the onnxruntime shared library")
	simulations := flag.Int("simulations", 400, "num_simulations per move")
	threads := flag.Int("threads", 8, "num_search_threads")
	maxMoves := flag.Int("maxmoves", 80, "max moves to play before stopping")
	temperature := flag.Float64("temperature", 0, "move-selection temperature")
	verbose := flag.Bool("verbose", false, "debug-level logging")
	flag.Parse()

	if *verbose {
		searchlog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		searchlog.SetGlobalLevel(zerolog.InfoLevel)
	}
	logLevel := searchlog.Default()

	engine := refgame.Engine{}
	evaluator, cleanup := buildEvaluator(engine, *modelPath, *libPath, *threads, logLevel)
	defer cleanup()

	cfg := mctsapi.DefaultConfig()
	cfg.NumSimulations = *simulations
	cfg.NumSearchThreads = *threads
	cfg.Temperature = float32(*temperature)

	searcher, err := searchctl.New[refgame.Position, refgame.Move](engine, evaluator, cfg, logLevel)
	if err != nil {
		log.Fatalf("searchdemo: config error: %v", err)
	}
	if err := searcher.NewGame(0); err != nil {
		log.Fatalf("searchdemo: new_game failed: %v", err)
	}

	ctx := context.Background()
	for move := 0; move < *maxMoves; move++ {
		start := time.Now()
		if err := searcher.ExecuteSearch(ctx); err != nil {
			log.Fatalf("searchdemo: execute_search failed: %v", err)
		}

		action, ok := searcher.BestAction()
		if !ok {
			log.Printf("searchdemo: no legal moves, game over at move %d", move+1)
			break
		}

		log.Printf("move %d: %+v (search took %v, %d simulations)", move+1, action, time.Since(start), searcher.Tree().SimulationCount())

		if err := searcher.ReRoot(action); err != nil {
			log.Fatalf("searchdemo: reroot failed: %v", err)
		}
		searcher.PruneRoot()

		state := searcher.Tree().NodeState(searcher.Tree().RootIdx())
		values := make([]float64, engine.NumPlayers())
		if engine.IsTerminal(state, values) {
			log.Printf("searchdemo: game over after move %d, values=%v", move+1, values)
			break
		}
	}
}

func buildEvaluator(engine refgame.Engine, modelPath, libPath string, threads int, logger zerolog.Logger) (mctsapi.Evaluator, func()) {
	if modelPath == "" {
		logger.Info().Msg("searchdemo: no -onnx path given, using the deterministic fake evaluator")
		return &nneval.Fake{ActionSpace: engine.ActionSpace(), NumPlayers: engine.NumPlayers()}, func() {}
	}

	cfg := nneval.Config{
		ModelPath:    modelPath,
		LibPath:      libPath,
		MaxBatchSize: 64,
		HistorySize:  engine.HistorySize(),
		NumElements:  mctsapi.HistorySlotWidth[refgame.Position, refgame.Move](engine),
		ActionSpace:  engine.ActionSpace(),
		NumPlayers:   engine.NumPlayers(),
	}
	ev, err := nneval.New(cfg, logger)
	if err != nil {
		log.Fatalf("searchdemo: loading ONNX model: %v", err)
	}
	return ev, ev.Close
}
