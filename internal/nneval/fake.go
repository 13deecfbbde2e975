package nneval

import (
	"boardmcts/internal/mctsapi"
)

// Fake is a deterministic mctsapi.Evaluator used by package tests that
// would otherwise need a real ONNX model on disk. It returns a uniform
// policy over ActionSpace and an even split of value across NumPlayers,
// unless a Respond hook is set.
type Fake struct {
	ActionSpace int
	NumPlayers  int

	// Respond, if set, overrides the default uniform response for each
	// history in the batch.
	Respond func(history []float32) mctsapi.InferenceResult

	// Calls records every batch size ForwardBatch was invoked with, for
	// assertions in tests exercising the coordinator's batching.
	Calls []int

	// FailNext, if positive, makes the next N calls return an error
	// instead of results (for exercising EvaluatorError handling).
	FailNext int
}

func (f *Fake) ForwardBatch(histories [][]float32) ([]mctsapi.InferenceResult, error) {
	f.Calls = append(f.Calls, len(histories))
	if f.FailNext > 0 {
		f.FailNext--
		return nil, &mctsapi.EvaluatorError{Cause: errFakeFailure}
	}

	out := make([]mctsapi.InferenceResult, len(histories))
	for i, h := range histories {
		if f.Respond != nil {
			out[i] = f.Respond(h)
			continue
		}
		policy := make([]float32, f.ActionSpace)
		uniform := float32(1) / float32(f.ActionSpace)
		for k := range policy {
			policy[k] = uniform
		}
		values := make([]float64, f.NumPlayers)
		for p := range values {
			values[p] = 1 / float64(f.NumPlayers)
		}
		out[i] = mctsapi.InferenceResult{Policy: policy, Values: values}
	}
	return out, nil
}

type fakeFailureError struct{}

func (fakeFailureError) Error() string { return "nneval: fake evaluator forced failure" }

var errFakeFailure = fakeFailureError{}
