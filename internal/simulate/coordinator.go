package simulate

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"boardmcts/internal/mctsapi"
)

// submission is one worker's flushed batch of pending leaves, offered to
// the Coordinator for the current round.
type submission[A comparable] struct {
	workerID uint32
	leaves   []PendingLeaf
	reply    chan roundResult
}

type roundResult struct {
	results []mctsapi.InferenceResult
	err     error
}

// Coordinator merges concurrently flushed worker batches into a single
// evaluator call per round.
//
// Each worker that fills (or flushes) a batch sends a submission on a
// shared channel and blocks on its own reply channel; the coordinator
// goroutine drains whatever has arrived within a short collection window,
// runs one evaluator.ForwardBatch call, and replies to every submitter.
// This is race-free by construction (only one goroutine ever forms a
// batch) and is adaptive: a worker with no work simply never submits, so
// it can never stall a round.
type Coordinator[A comparable] struct {
	evaluator mctsapi.Evaluator
	sem       *semaphore.Weighted
	window    time.Duration
	maxBatch  int
	log       zerolog.Logger

	submissions chan submission[A]
}

// NewCoordinator constructs a Coordinator. window is the collection delay
// used to let concurrently-arriving submissions join the same batch;
// maxBatch caps the size of a single evaluator call; a submission that
// would push a batch past it waits for the next round, and a single
// submission larger than maxBatch runs as one call on its own.
func NewCoordinator[A comparable](evaluator mctsapi.Evaluator, window time.Duration, maxBatch int, log zerolog.Logger) *Coordinator[A] {
	return &Coordinator[A]{
		evaluator:   evaluator,
		sem:         semaphore.NewWeighted(1),
		window:      window,
		maxBatch:    maxBatch,
		log:         log,
		submissions: make(chan submission[A]),
	}
}

// Run drives the coordinator's batch-collection loop until ctx is
// cancelled. It must run in its own goroutine for the lifetime of a
// search — exactly one coordinator goroutine per search.
func (c *Coordinator[A]) Run(ctx context.Context) {
	var carried *submission[A]
	for {
		var first submission[A]
		if carried != nil {
			first, carried = *carried, nil
		} else {
			select {
			case <-ctx.Done():
				return
			case first = <-c.submissions:
			}
		}
		batch := []submission[A]{first}
		size := len(first.leaves)

		collecting := true
		deadline := time.After(c.window)
		for collecting {
			select {
			case <-ctx.Done():
				c.failAll(batch, ctx.Err())
				return
			case s := <-c.submissions:
				if size+len(s.leaves) > c.maxBatch {
					// Would overflow this call: it opens the next round.
					carried = &s
					collecting = false
					break
				}
				batch = append(batch, s)
				size += len(s.leaves)
				if size >= c.maxBatch {
					collecting = false
				}
			case <-deadline:
				collecting = false
			}
		}
		c.runBatch(ctx, batch)
	}
}

// Submit hands the worker's flushed leaves to the coordinator and blocks
// until results for exactly those leaves, in submission order, are
// ready.
func (c *Coordinator[A]) Submit(ctx context.Context, workerID uint32, leaves []PendingLeaf) ([]mctsapi.InferenceResult, error) {
	reply := make(chan roundResult, 1)
	select {
	case c.submissions <- submission[A]{workerID: workerID, leaves: leaves, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.results, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator[A]) runBatch(ctx context.Context, batch []submission[A]) {
	var histories [][]float32
	for _, s := range batch {
		for _, leaf := range s.leaves {
			histories = append(histories, leaf.History)
		}
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		c.failAll(batch, err)
		return
	}
	results, err := c.evaluator.ForwardBatch(histories)
	c.sem.Release(1)

	if err != nil {
		wrapped := &mctsapi.EvaluatorError{Cause: err}
		c.log.Error().Err(err).Int("batch_size", len(histories)).Msg("evaluator forward_batch failed")
		c.failAll(batch, wrapped)
		return
	}
	if len(results) != len(histories) {
		wrapped := &mctsapi.EvaluatorError{Cause: errMismatch(len(histories), len(results))}
		c.failAll(batch, wrapped)
		return
	}

	offset := 0
	for _, s := range batch {
		n := len(s.leaves)
		s.reply <- roundResult{results: results[offset : offset+n]}
		offset += n
	}
}

func (c *Coordinator[A]) failAll(batch []submission[A], err error) {
	for _, s := range batch {
		s.reply <- roundResult{err: err}
	}
}

type mismatchError struct {
	want, got int
}

func errMismatch(want, got int) error {
	return &mismatchError{want: want, got: got}
}

func (e *mismatchError) Error() string {
	return "evaluator returned a result count that does not match the submitted batch size"
}
